package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/kindredchat/kindred/internal/fault"
	"github.com/kindredchat/kindred/internal/store"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] encode response: %v", err)
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeError maps an error onto an HTTP status and the stable code/message
// envelope.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeErrorStatus(w, http.StatusNotFound, "not_found", "no such record")
		return
	}
	if errors.Is(err, store.ErrConflict) {
		writeErrorStatus(w, http.StatusConflict, "conflict", "record already exists")
		return
	}
	code := fault.CodeOf(err)
	writeErrorStatus(w, statusFor(code), string(code), fault.MessageOf(err))
}

func statusFor(code fault.Code) int {
	switch code {
	case fault.AuthRequired:
		return http.StatusUnauthorized
	case fault.NotAParticipant:
		return http.StatusForbidden
	case fault.SessionNotFound:
		return http.StatusNotFound
	case fault.SessionNotActive, fault.AlreadyInSession, fault.InvalidState:
		return http.StatusConflict
	case fault.MatchExpired:
		return http.StatusGone
	case fault.InvalidContent:
		return http.StatusBadRequest
	case fault.RateLimited:
		return http.StatusTooManyRequests
	case fault.StorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody parses a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fault.New(fault.InvalidContent, "invalid request body")
	}
	return nil
}

// JSON views. The store types carry internal fields; these are the shapes
// clients see.

type userView struct {
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	Interests  []string `json:"interests"`
	Preference string   `json:"chat_preference"`
	Online     bool     `json:"online"`
	Status     string   `json:"status"`
	LastActive int64    `json:"last_active"`
	CreatedAt  int64    `json:"created_at"`
}

func viewUser(u *store.User) userView {
	return userView{
		ID:         u.ID,
		Username:   u.Username,
		Interests:  u.Interests,
		Preference: string(u.Preference),
		Online:     u.Online,
		Status:     u.Status,
		LastActive: u.LastActive.Unix(),
		CreatedAt:  u.CreatedAt.Unix(),
	}
}

type sessionView struct {
	ID            string `json:"id"`
	UserA         string `json:"user_a"`
	UserB         string `json:"user_b"`
	Type          string `json:"type"`
	Active        bool   `json:"active"`
	Archived      bool   `json:"archived"`
	LastMessageID string `json:"last_message_id,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

func viewSession(s *store.Session) sessionView {
	return sessionView{
		ID:            s.ID,
		UserA:         s.UserA,
		UserB:         s.UserB,
		Type:          string(s.Type),
		Active:        s.Active,
		Archived:      s.Archived,
		LastMessageID: s.LastMessageID,
		CreatedAt:     s.CreatedAt.Unix(),
		UpdatedAt:     s.UpdatedAt.Unix(),
	}
}

func viewSessions(ss []*store.Session) []sessionView {
	out := make([]sessionView, len(ss))
	for i, s := range ss {
		out[i] = viewSession(s)
	}
	return out
}

type messageView struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	SenderID  string           `json:"sender_id"`
	Content   string           `json:"content"`
	CreatedAt int64            `json:"created_at"`
	ReadBy    []string         `json:"read_by"`
	Edited    bool             `json:"edited"`
	EditedAt  *int64           `json:"edited_at,omitempty"`
	Reactions []store.Reaction `json:"reactions,omitempty"`
}

func viewMessage(m *store.Message) messageView {
	v := messageView{
		ID:        m.ID,
		SessionID: m.SessionID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.Unix(),
		ReadBy:    m.ReadBy,
		Edited:    m.Edited,
		Reactions: m.Reactions,
	}
	if m.EditedAt != nil {
		ts := m.EditedAt.Unix()
		v.EditedAt = &ts
	}
	return v
}

func viewMessages(ms []*store.Message) []messageView {
	out := make([]messageView, len(ms))
	for i, m := range ms {
		out[i] = viewMessage(m)
	}
	return out
}
