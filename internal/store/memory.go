package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store used by tests and by single-node development
// runs when no Postgres DSN is configured. It honours the same transactional
// semantics as the Postgres implementation: multi-record mutations happen
// under one lock acquisition.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]*memUser
	sessions map[string]*Session
	messages map[string]*Message
	bySess   map[string][]string // session id -> message ids in insert order
	reports  []*Report
}

type memUser struct {
	user User
	hash string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		users:    make(map[string]*memUser),
		sessions: make(map[string]*Session),
		messages: make(map[string]*Message),
		bySess:   make(map[string][]string),
	}
}

// SetNow overrides the timestamp source, letting coordinator tests stamp
// records from a fake clock.
func (m *Memory) SetNow(now func() time.Time) { m.now = now }

func (m *Memory) Users() Users       { return (*memUsers)(m) }
func (m *Memory) Sessions() Sessions { return (*memSessions)(m) }
func (m *Memory) Messages() Messages { return (*memMessages)(m) }
func (m *Memory) Reports() Reports   { return (*memReports)(m) }
func (m *Memory) Close() error       { return nil }

// --- users ---

type memUsers Memory

func (r *memUsers) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := u.user
	return &cp, nil
}

func (r *memUsers) Create(_ context.Context, username, passwordHash string, interests []string, pref ChatType) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.user.Username == username {
			return nil, ErrConflict
		}
	}
	u := User{
		ID:         uuid.New().String(),
		Username:   username,
		Interests:  append([]string(nil), interests...),
		Preference: pref,
		Status:     "offline",
		LastActive: r.now(),
		CreatedAt:  r.now(),
	}
	r.users[u.ID] = &memUser{user: u, hash: passwordHash}
	cp := u
	return &cp, nil
}

func (r *memUsers) FindByCredentials(_ context.Context, username string) (*User, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.user.Username == username {
			cp := u.user
			return &cp, u.hash, nil
		}
	}
	return nil, "", ErrNotFound
}

func (r *memUsers) UpdatePresence(_ context.Context, id string, online bool, status string, lastActive time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.user.Online = online
	u.user.Status = status
	u.user.LastActive = lastActive
	return nil
}

func (r *memUsers) UpdateProfile(_ context.Context, id string, interests []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.user.Interests = append([]string(nil), interests...)
	return nil
}

func (r *memUsers) UpdatePreference(_ context.Context, id string, pref ChatType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.user.Preference = pref
	return nil
}

// --- sessions ---

type memSessions Memory

func (r *memSessions) Create(_ context.Context, userA, userB string, typ ChatType) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.activeBetween(userA, userB); s != nil {
		cp := *s
		return &cp, nil
	}
	now := r.now()
	s := &Session{
		ID:        uuid.New().String(),
		UserA:     userA,
		UserB:     userB,
		Type:      typ,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (r *memSessions) activeBetween(a, b string) *Session {
	for _, s := range r.sessions {
		if !s.Active {
			continue
		}
		if (s.UserA == a && s.UserB == b) || (s.UserA == b && s.UserB == a) {
			return s
		}
	}
	return nil
}

func (r *memSessions) Get(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSessions) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Active = active
	s.UpdatedAt = r.now()
	return nil
}

func (r *memSessions) SetArchived(_ context.Context, id string, archived bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Archived = archived
	s.UpdatedAt = r.now()
	return nil
}

func (r *memSessions) FindActiveBetween(_ context.Context, a, b string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.activeBetween(a, b)
	if s == nil {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSessions) ListForUser(_ context.Context, userID string, f SessionFilter) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.UserA != userID && s.UserB != userID {
			continue
		}
		if f.ActiveOnly && !s.Active {
			continue
		}
		if f.Archived != nil && s.Archived != *f.Archived {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// --- messages ---

type memMessages Memory

func (r *memMessages) Insert(_ context.Context, sessionID, senderID, content string) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	m := &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: r.now(),
		ReadBy:    []string{senderID},
	}
	r.messages[m.ID] = m
	r.bySess[sessionID] = append(r.bySess[sessionID], m.ID)
	s.LastMessageID = m.ID
	s.UpdatedAt = m.CreatedAt
	cp := copyMessage(m)
	return &cp, nil
}

func (r *memMessages) MarkRead(_ context.Context, sessionID, readerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var upTo string
	for _, id := range r.bySess[sessionID] {
		m := r.messages[id]
		if m == nil {
			continue
		}
		upTo = m.ID
		if m.SenderID == readerID || m.ReadBySet(readerID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, readerID)
	}
	return upTo, nil
}

func (r *memMessages) Edit(_ context.Context, id, senderID, content string) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.SenderID != senderID {
		return nil, ErrNotFound
	}
	now := r.now()
	m.Content = content
	m.Edited = true
	m.EditedAt = &now
	cp := copyMessage(m)
	return &cp, nil
}

func (r *memMessages) Delete(_ context.Context, id, senderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.SenderID != senderID {
		return ErrNotFound
	}
	delete(r.messages, id)
	ids := r.bySess[m.SessionID]
	for i, mid := range ids {
		if mid == id {
			r.bySess[m.SessionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memMessages) Search(_ context.Context, sessionID, substring string, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(substring)
	var out []*Message
	ids := r.bySess[sessionID]
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.messages[ids[i]]
		if m == nil {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), needle) {
			cp := copyMessage(m)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMessages) Paginate(_ context.Context, sessionID string, page, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if page < 1 {
		page = 1
	}
	ids := r.bySess[sessionID]
	// Newest page first, oldest-first within the page, matching Postgres.
	end := len(ids) - (page-1)*limit
	if end <= 0 {
		return nil, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]*Message, 0, end-start)
	for _, id := range ids[start:end] {
		if m := r.messages[id]; m != nil {
			cp := copyMessage(m)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMessages) AddReaction(_ context.Context, messageID, reactorID, emoji string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, UserID: reactorID})
	return nil
}

func copyMessage(m *Message) Message {
	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	cp.Reactions = append([]Reaction(nil), m.Reactions...)
	return cp
}

// --- reports ---

type memReports Memory

func (r *memReports) Create(_ context.Context, report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *report
	cp.CreatedAt = r.now()
	r.reports = append(r.reports, &cp)
	return nil
}

func (r *memReports) CountRecent(_ context.Context, reportedID string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-window)
	count := 0
	for _, rep := range r.reports {
		if rep.ReportedID == reportedID && rep.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}
