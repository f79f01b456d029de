package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/kindredchat/kindred/internal/metrics"
)

// outFrame is one queued outbound frame. Droppable frames (typing
// indicators) may be shed under backpressure; ping frames carry no payload.
type outFrame struct {
	data      []byte
	droppable bool
	ping      bool
}

// sendQueue is the bounded per-connection outbound buffer. When full, the
// oldest droppable frame is evicted to make room; if nothing is droppable,
// a non-droppable push fails and the connection is treated as a slow
// consumer.
type sendQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []outFrame
	max    int
	closed bool
}

func newSendQueue(max int) *sendQueue {
	q := &sendQueue{max: max}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues a frame. It returns false only when a non-droppable frame
// cannot be accepted, which means the consumer is too slow to keep.
func (q *sendQueue) push(f outFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return true
	}
	if len(q.frames) >= q.max {
		if !q.evictDroppable() {
			// Queue full of must-deliver frames.
			if f.droppable {
				metrics.SendQueueDrops.Inc()
				return true // shed the new frame instead
			}
			return false
		}
		metrics.SendQueueDrops.Inc()
	}
	q.frames = append(q.frames, f)
	q.cond.Signal()
	return true
}

// evictDroppable removes the oldest droppable frame. Caller holds the lock.
func (q *sendQueue) evictDroppable() bool {
	for i, f := range q.frames {
		if f.droppable {
			q.frames = append(q.frames[:i], q.frames[i+1:]...)
			return true
		}
	}
	return false
}

// pop blocks until a frame is available or the queue is closed.
func (q *sendQueue) pop() (outFrame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.frames) == 0 {
		return outFrame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.frames = nil
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Connection is a single WebSocket client connection. All outbound traffic
// goes through the send queue and a single writer goroutine, so frame bytes
// never interleave.
type Connection struct {
	ID        string   // connection ID (UUID)
	Conn      net.Conn // underlying TCP connection
	Fd        int      // file descriptor for epoll lookups
	CreatedAt time.Time
	LastPing  time.Time // last activity observed from the client

	mu     sync.Mutex
	userID string // bound by authenticate, empty until then

	queue       *sendQueue
	sendTimeout time.Duration
	closeOnce   sync.Once
	onDead      func(*Connection) // invoked when the writer gives up
	processing  int32             // atomic flag: 0 = idle, 1 = being read
}

func newConnection(conn net.Conn, fd int, id string, queueSize int, sendTimeout time.Duration, onDead func(*Connection)) *Connection {
	c := &Connection{
		ID:          id,
		Conn:        conn,
		Fd:          fd,
		CreatedAt:   time.Now(),
		LastPing:    time.Now(),
		queue:       newSendQueue(queueSize),
		sendTimeout: sendTimeout,
		onDead:      onDead,
	}
	go c.writeLoop()
	return c
}

// UserID returns the authenticated user id, or "" before authentication.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) bindUser(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// Enqueue queues a text frame for delivery. A slow consumer that cannot
// accept a must-deliver frame is torn down.
func (c *Connection) Enqueue(data []byte, droppable bool) {
	if !c.queue.push(outFrame{data: data, droppable: droppable}) {
		if c.onDead != nil {
			c.onDead(c)
		}
	}
}

// EnqueuePing queues a WebSocket protocol-level ping frame.
func (c *Connection) EnqueuePing() {
	c.queue.push(outFrame{ping: true, droppable: true})
}

// writeLoop drains the send queue. Each write runs under the per-event
// delivery deadline; a write failure kills the connection.
func (c *Connection) writeLoop() {
	for {
		f, ok := c.queue.pop()
		if !ok {
			return
		}
		if c.sendTimeout > 0 {
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
		}
		var err error
		if f.ping {
			err = ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
		} else {
			err = wsutil.WriteServerMessage(c.Conn, ws.OpText, f.data)
		}
		_ = c.Conn.SetWriteDeadline(time.Time{})
		if err != nil {
			if c.onDead != nil {
				c.onDead(c)
			}
			return
		}
	}
}

// Close shuts the send queue and the underlying network connection. Safe to
// call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.queue.close()
		err = c.Conn.Close()
	})
	return err
}
