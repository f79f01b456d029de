package chat

import "sync"

// MaxBufferMessages is the number of recent messages retained per session for
// abuse-report snapshots.
const MaxBufferMessages = 5

// BufferedMessage is a single message held in the ring buffer.
type BufferedMessage struct {
	From string `json:"from"` // sender user ID
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// MessageBuffer stores the last N messages per session in memory.
// It is goroutine-safe and uses a ring buffer internally.
type MessageBuffer struct {
	mu      sync.RWMutex
	buffers map[string]*ringBuffer // sessionID -> ring buffer
}

type ringBuffer struct {
	items []BufferedMessage
	pos   int
	count int
}

// NewMessageBuffer creates a new empty MessageBuffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{
		buffers: make(map[string]*ringBuffer),
	}
}

// Add appends a message to the session's ring buffer. If the buffer is full,
// the oldest message is overwritten.
func (mb *MessageBuffer) Add(sessionID string, msg BufferedMessage) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	rb, ok := mb.buffers[sessionID]
	if !ok {
		rb = &ringBuffer{
			items: make([]BufferedMessage, MaxBufferMessages),
		}
		mb.buffers[sessionID] = rb
	}

	rb.items[rb.pos] = msg
	rb.pos = (rb.pos + 1) % MaxBufferMessages
	if rb.count < MaxBufferMessages {
		rb.count++
	}
}

// Get returns the buffered messages for a session in chronological order
// (oldest first). Returns an empty slice if the session has no buffer.
func (mb *MessageBuffer) Get(sessionID string) []BufferedMessage {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	rb, ok := mb.buffers[sessionID]
	if !ok {
		return []BufferedMessage{}
	}

	result := make([]BufferedMessage, rb.count)
	// The oldest message is at position (pos - count) mod MaxBufferMessages.
	start := (rb.pos - rb.count + MaxBufferMessages) % MaxBufferMessages
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%MaxBufferMessages]
	}
	return result
}

// Remove deletes the buffer for a session (called when the session ends).
func (mb *MessageBuffer) Remove(sessionID string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	delete(mb.buffers, sessionID)
}
