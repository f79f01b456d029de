// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeAuthenticate = "authenticate"
	TypeStartSearch  = "start-search"
	TypeEndSearch    = "end-search"
	TypeAcceptMatch  = "accept-match"
	TypeRejectMatch  = "reject-match"
	TypeSendMessage  = "send-message"
	TypeTyping       = "typing"
	TypeStopTyping   = "stop-typing"
	TypeReadAll      = "read-all"
	TypeJoinSession  = "join-session"
	TypeReport       = "report"
	TypePing         = "ping"
)

// Server -> Client message types. typing, stop-typing and read-all are echoed
// outbound under the same names as the inbound frames, with the acting user
// attached.
const (
	TypeAuthOK         = "auth-ok"
	TypeAuthError      = "auth-error"
	TypeMatchFound     = "match-found"
	TypeMatchConfirmed = "match-confirmed"
	TypeMatchRejected  = "match-rejected"
	TypeMatchExpired   = "match-expired"
	TypeNewMessage     = "new-message"
	TypeSessionEnded   = "session-ended"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// AuthenticateMsg carries the bearer token that binds this connection to a
// user identity.
type AuthenticateMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// StartSearchMsg enters the search pool using the user's stored profile.
type StartSearchMsg struct {
	Type string `json:"type"`
}

// EndSearchMsg leaves the search pool.
type EndSearchMsg struct {
	Type string `json:"type"`
}

// AcceptMatchMsg records an accept vote on a pending match.
type AcceptMatchMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

// RejectMatchMsg records a reject vote on a pending match.
type RejectMatchMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

// SendMessageMsg posts a chat message to a session.
type SendMessageMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// TypingMsg signals the user started typing in a session.
type TypingMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// StopTypingMsg signals the user stopped typing.
type StopTypingMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ReadAllMsg marks every partner message in the session as read.
type ReadAllMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// JoinSessionMsg re-subscribes this connection to an active session, used
// after a reconnect.
type JoinSessionMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ReportMsg files an abuse report against the chat partner.
type ReportMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// Partner is the public profile attached to match events.
type Partner struct {
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	Interests []string `json:"interests"`
}

// Message is the wire shape of a persisted chat message.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Edited    bool      `json:"edited,omitempty"`
}

// AuthOKMsg confirms a successful authenticate frame.
type AuthOKMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// AuthErrorMsg rejects an authenticate frame.
type AuthErrorMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// MatchFoundMsg proposes a match; PromptUser is true when the recipient must
// vote before the ballot deadline.
type MatchFoundMsg struct {
	Type       string  `json:"type"`
	MatchID    string  `json:"match_id"`
	Partner    Partner `json:"partner"`
	PromptUser bool    `json:"prompt_user"`
}

// MatchConfirmedMsg announces the session opened by a unanimous accept.
type MatchConfirmedMsg struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	Partner   Partner `json:"partner"`
}

// MatchRejectedMsg announces the ballot was rejected.
type MatchRejectedMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

// MatchExpiredMsg announces the ballot expired undecided.
type MatchExpiredMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

// NewMessageMsg delivers a chat message to a session subscriber.
type NewMessageMsg struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	Message   Message `json:"message"`
}

// PeerTypingMsg relays a typing or stop-typing indicator to the partner.
type PeerTypingMsg struct {
	Type      string `json:"type"` // "typing" or "stop-typing"
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// ReadAllEventMsg tells the partner their messages were read.
type ReadAllEventMsg struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	ReaderID      string `json:"reader_id"`
	UpToMessageID string `json:"up_to_message_id"`
}

// SessionEndedMsg announces a session end to the other participant.
type SessionEndedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	By        string `json:"by"`
}

// ErrorMsg communicates an error with a stable code.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeAuthenticate:
		var m AuthenticateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStartSearch:
		var m StartSearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEndSearch:
		var m EndSearchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAcceptMatch:
		var m AcceptMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRejectMatch:
		var m RejectMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopTyping:
		var m StopTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReadAll:
		var m ReadAllMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinSession:
		var m JoinSessionMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
