// Package ws handles WebSocket connection management: upgrading HTTP
// connections, tracking authenticated clients, queueing outbound frames and
// dispatching incoming messages to the appropriate handlers.
package ws

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	SendQueue      int           // per-connection outbound buffer size
	SendTimeout    time.Duration // per-event delivery deadline
}

// DefaultServerConfig returns a ServerConfig with sensible production
// defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		SendQueue:      256,
		SendTimeout:    5 * time.Second,
	}
}

// Server is the WebSocket server built on gobwas/ws and Linux epoll. It
// upgrades HTTP connections, registers them with a readiness poller, and
// dispatches ready connections to a bounded worker pool for frame reading.
// The HTTP mux is owned by the caller; mount HandleUpgrade wherever the
// WebSocket endpoint should live.
type Server struct {
	config       ServerConfig
	poller       *poller
	registry     *Registry
	workerPool   chan struct{} // semaphore limiting concurrent read workers
	onMessage    func(conn *Connection, data []byte)
	onDisconnect func(conn *Connection)
	done         chan struct{}
	startedAt    time.Time
}

// NewServer creates a Server with the given configuration and message
// callback. onMessage is called from a worker goroutine whenever a complete
// text frame arrives.
func NewServer(config ServerConfig, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:     config,
		registry:   NewRegistry(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		done:       make(chan struct{}),
	}
}

// SetOnDisconnect registers a callback invoked after a connection is removed
// (read error, heartbeat timeout, slow consumer, or graceful close).
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) {
	s.onDisconnect = fn
}

// Registry exposes the connection registry, which also serves as the event
// sender for the application layer.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Uptime reports how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Start initializes the readiness poller and begins the event loop and
// heartbeat in background goroutines. It returns once the loop is running.
func (s *Server) Start() error {
	var err error
	s.poller, err = newPoller()
	if err != nil {
		return fmt.Errorf("ws: failed to create poller: %w", err)
	}
	s.startedAt = time.Now()

	go s.startEventLoop()
	StartHeartbeat(s, DefaultHeartbeatConfig())

	log.Printf("ws: server started (workers=%d, max_conns=%d, send_queue=%d)",
		s.config.WorkerPoolSize, s.config.MaxConnections, s.config.SendQueue)
	return nil
}

// HandleUpgrade upgrades an HTTP request to a WebSocket connection using the
// gobwas/ws zero-copy upgrader and registers it with the registry and poller.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.registry.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	fd := socketFD(conn)
	connID := uuid.New().String()
	c := newConnection(conn, fd, connID, s.config.SendQueue, s.config.SendTimeout, s.RemoveConnection)

	s.registry.Add(c)
	if err := s.poller.add(conn); err != nil {
		log.Printf("ws: poller add failed for conn %s: %v", connID, err)
		s.registry.Remove(connID)
		return
	}

	log.Printf("ws: new connection conn=%s fd=%d (total=%d)", connID, fd, s.registry.Count())
}

// startEventLoop runs the poller wait loop. Each ready connection is handed
// to a worker goroutine bounded by the worker pool semaphore.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.poller.wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				// EINTR is expected during signal handling.
				if isEINTR(err) {
					continue
				}
				log.Printf("ws: poller wait error: %v", err)
				continue
			}
		}

		for _, conn := range conns {
			conn := conn

			s.workerPool <- struct{}{}
			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads a single WebSocket frame from a ready connection using
// wsutil.NextReader so control frames are handled without blocking on a data
// frame that may never arrive. A failed read removes the connection.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.registry.GetByConn(netConn)
	if c == nil {
		return
	}

	// Guard against duplicate dispatch from level-triggered epoll.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A read timeout means no data was available (stale epoll dispatch).
		// The heartbeat handles genuinely dead connections.
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}
	_ = netConn.SetReadDeadline(time.Time{})

	// Any frame proves the connection is alive.
	c.LastPing = time.Now()

	if header.OpCode.IsControl() {
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
		}
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}
	if len(data) == 0 {
		return
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// RemoveConnection removes a connection from the poller and the registry and
// closes it. Exported so the heartbeat and the slow-consumer path can evict
// connections.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.poller.remove(c.Conn)

	// Only proceed if the connection was actually registered; this prevents
	// double cleanup when read error and heartbeat race.
	if _, _, removed := s.registry.Remove(c.ID); !removed {
		return
	}

	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}
	log.Printf("ws: connection closed conn=%s user=%s (total=%d)",
		c.ID, c.UserID(), s.registry.Count())
}

// Shutdown signals the event loop to exit and closes every connection and
// the poller.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")
	close(s.done)

	for _, c := range s.registry.All() {
		_ = s.poller.remove(c.Conn)
		c.Close()
	}
	if s.poller != nil {
		_ = s.poller.close()
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}

// isEINTR checks whether the error is an interrupted syscall (EINTR), which
// is expected during signal handling and should be retried.
func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "interrupted system call" ||
		err.Error() == "errno 4"
}
