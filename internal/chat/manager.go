// Package chat manages active chat sessions: opening and ending them,
// validating and persisting messages, and fanning events out to the two
// participants. Event order within a session is fixed by a per-session lock
// held across persist-then-fanout.
package chat

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/kindredchat/kindred/internal/fault"
	"github.com/kindredchat/kindred/internal/store"
)

// Sender delivers encoded frames to a user's primary connection. Send is for
// events that must not be silently lost; SendDroppable is for transient
// indicators that may be shed under backpressure. Delivery to an offline user
// is a no-op.
type Sender interface {
	Send(userID string, data []byte)
	SendDroppable(userID string, data []byte)
}

// Manager owns the live view of chat sessions.
type Manager struct {
	store      store.Store
	sender     Sender
	buffer     *MessageBuffer
	maxContent int

	mu   sync.Mutex
	live map[string]*liveSession
}

// liveSession serialises all event processing for one session.
type liveSession struct {
	mu sync.Mutex
	id string
}

// NewManager creates a chat manager over the given store and sender.
// maxContentBytes caps message payload size; zero selects the default.
func NewManager(st store.Store, sender Sender, maxContentBytes int) *Manager {
	return &Manager{
		store:      st,
		sender:     sender,
		buffer:     NewMessageBuffer(),
		maxContent: maxContentBytes,
		live:       make(map[string]*liveSession),
	}
}

// Open creates (or returns the existing) active session between two users and
// registers it as live.
func (m *Manager) Open(ctx context.Context, userA, userB string, chatType store.ChatType) (*store.Session, error) {
	sess, err := m.store.Sessions().Create(ctx, userA, userB, chatType)
	if err != nil {
		return nil, fault.Wrap(fault.StorageFailure, "could not open session", err)
	}
	m.liveFor(sess.ID)
	return sess, nil
}

// Get loads a session the caller participates in.
func (m *Manager) Get(ctx context.Context, sessionID, userID string) (*store.Session, error) {
	sess, err := m.store.Sessions().Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.New(fault.SessionNotFound, "session does not exist")
	}
	if err != nil {
		return nil, fault.Wrap(fault.StorageFailure, "could not load session", err)
	}
	if !sess.HasParticipant(userID) {
		return nil, fault.New(fault.NotAParticipant, "not part of this session")
	}
	return sess, nil
}

// activeFor loads a session and requires it to be active with userID as a
// participant.
func (m *Manager) activeFor(ctx context.Context, sessionID, userID string) (*store.Session, error) {
	sess, err := m.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, fault.New(fault.SessionNotActive, "session has ended")
	}
	return sess, nil
}

func (m *Manager) liveFor(sessionID string) *liveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.live[sessionID]
	if !ok {
		ls = &liveSession{id: sessionID}
		m.live[sessionID] = ls
	}
	return ls
}

// SendMessage validates, persists and fans out a chat message. The persisted
// message is returned so the caller can echo it to the sender.
func (m *Manager) SendMessage(ctx context.Context, sessionID, senderID, content string) (*store.Message, error) {
	if err := ValidateContent(content, m.maxContent); err != nil {
		return nil, err
	}
	sess, err := m.activeFor(ctx, sessionID, senderID)
	if err != nil {
		return nil, err
	}

	ls := m.liveFor(sessionID)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	msg, err := m.store.Messages().Insert(ctx, sessionID, senderID, content)
	if err != nil {
		return nil, fault.Wrap(fault.StorageFailure, "could not persist message", err)
	}
	m.buffer.Add(sessionID, BufferedMessage{
		From: senderID,
		Text: content,
		Ts:   msg.CreatedAt.Unix(),
	})

	data, err := encodeNewMessage(sess.ID, msg)
	if err != nil {
		log.Printf("[chat] encode new-message: %v", err)
		return msg, nil
	}
	m.sender.Send(sess.UserA, data)
	m.sender.Send(sess.UserB, data)
	return msg, nil
}

// Typing relays a typing or stop-typing indicator to the partner. Indicators
// are droppable: they are never persisted and may be shed under load.
func (m *Manager) Typing(ctx context.Context, sessionID, userID string, stop bool) error {
	sess, err := m.activeFor(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	data, err := encodeTyping(sessionID, userID, stop)
	if err != nil {
		return fault.Wrap(fault.Internal, "could not encode typing event", err)
	}
	m.sender.SendDroppable(sess.Partner(userID), data)
	return nil
}

// ReadAll marks every partner message in the session as read, then notifies
// the partner. The receipt is only sent after persistence succeeds.
func (m *Manager) ReadAll(ctx context.Context, sessionID, readerID string) error {
	sess, err := m.activeFor(ctx, sessionID, readerID)
	if err != nil {
		return err
	}

	ls := m.liveFor(sessionID)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	upTo, err := m.store.Messages().MarkRead(ctx, sessionID, readerID)
	if err != nil {
		return fault.Wrap(fault.StorageFailure, "could not mark messages read", err)
	}
	if upTo == "" {
		// Nothing new was read; no receipt.
		return nil
	}

	data, err := encodeReadAll(sessionID, readerID, upTo)
	if err != nil {
		return fault.Wrap(fault.Internal, "could not encode read receipt", err)
	}
	m.sender.Send(sess.Partner(readerID), data)
	return nil
}

// End closes a session on behalf of userID and notifies the partner. Ending
// an already-ended session fails with session_not_active.
func (m *Manager) End(ctx context.Context, sessionID, userID string) (*store.Session, error) {
	sess, err := m.activeFor(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	ls := m.liveFor(sessionID)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := m.store.Sessions().SetActive(ctx, sessionID, false); err != nil {
		return nil, fault.Wrap(fault.StorageFailure, "could not end session", err)
	}
	sess.Active = false

	data, err := encodeSessionEnded(sessionID, userID)
	if err != nil {
		log.Printf("[chat] encode session-ended: %v", err)
	} else {
		m.sender.Send(sess.Partner(userID), data)
	}

	m.buffer.Remove(sessionID)
	m.mu.Lock()
	delete(m.live, sessionID)
	m.mu.Unlock()
	return sess, nil
}

// Archive sets or clears the archived flag for a session the user
// participates in. Only ended sessions can be archived.
func (m *Manager) Archive(ctx context.Context, sessionID, userID string, archived bool) error {
	sess, err := m.Get(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if sess.Active && archived {
		return fault.New(fault.SessionNotActive, "cannot archive an active session")
	}
	if err := m.store.Sessions().SetArchived(ctx, sessionID, archived); err != nil {
		return fault.Wrap(fault.StorageFailure, "could not update archive flag", err)
	}
	return nil
}

// LiveCount returns the number of sessions with live event processing.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// RecentSnapshot returns the buffered tail of a session's messages, used for
// abuse-report evidence.
func (m *Manager) RecentSnapshot(sessionID string) []BufferedMessage {
	return m.buffer.Get(sessionID)
}
