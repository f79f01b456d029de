package ws

import (
	"net"
	"sync"
)

// Registry is the thread-safe connection registry. It answers O(1) lookups by
// connection ID and file descriptor, and tracks which connections currently
// represent each authenticated user. The newest authenticated connection for
// a user is their primary: user-addressed sends go there.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byFd   map[int]*Connection
	byUser map[string][]*Connection // oldest first, last is primary
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Connection),
		byFd:   make(map[int]*Connection),
		byUser: make(map[string][]*Connection),
	}
}

// Add registers a new, not-yet-authenticated connection.
func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	r.byID[conn.ID] = conn
	r.byFd[conn.Fd] = conn
	r.mu.Unlock()
}

// Authenticate binds a connection to a user and makes it that user's primary.
func (r *Registry) Authenticate(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.byID[connID]
	if !ok {
		return
	}
	conn.bindUser(userID)
	r.byUser[userID] = append(r.byUser[userID], conn)
}

// Remove unregisters a connection and closes it. It reports whether the
// connection was present and whether it was the user's last connection.
func (r *Registry) Remove(connID string) (userID string, last bool, removed bool) {
	r.mu.Lock()
	conn, ok := r.byID[connID]
	if ok {
		delete(r.byID, connID)
		delete(r.byFd, conn.Fd)
		userID = conn.UserID()
		if userID != "" {
			conns := r.byUser[userID]
			for i, c := range conns {
				if c.ID == connID {
					conns = append(conns[:i], conns[i+1:]...)
					break
				}
			}
			if len(conns) == 0 {
				delete(r.byUser, userID)
				last = true
			} else {
				r.byUser[userID] = conns
			}
		}
	}
	r.mu.Unlock()

	if ok {
		conn.Close()
	}
	return userID, last, ok
}

// Get returns the connection for the given connection ID, or nil.
func (r *Registry) Get(connID string) *Connection {
	r.mu.RLock()
	conn := r.byID[connID]
	r.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil.
func (r *Registry) GetByFd(fd int) *Connection {
	r.mu.RLock()
	conn := r.byFd[fd]
	r.mu.RUnlock()
	return conn
}

// GetByConn resolves a net.Conn to its registered Connection via its file
// descriptor. Returns nil if not found.
func (r *Registry) GetByConn(c net.Conn) *Connection {
	return r.GetByFd(socketFD(c))
}

// Primary returns the user's primary connection, or nil if the user has no
// authenticated connection.
func (r *Registry) Primary(userID string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.byUser[userID]
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

// Count returns the current number of connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byID)
	r.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections, safe to iterate without
// holding the lock.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byID))
	for _, conn := range r.byID {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()
	return conns
}

// Send queues a must-deliver frame on the user's primary connection.
// Delivery to a user with no connection is a no-op.
func (r *Registry) Send(userID string, data []byte) {
	if conn := r.Primary(userID); conn != nil {
		conn.Enqueue(data, false)
	}
}

// SendDroppable queues a frame that may be shed under backpressure.
func (r *Registry) SendDroppable(userID string, data []byte) {
	if conn := r.Primary(userID); conn != nil {
		conn.Enqueue(data, true)
	}
}
