package store

import "time"

// ChatType is the chat preference a user searches with and the type of the
// resulting session.
type ChatType string

const (
	ChatFriendship ChatType = "friendship"
	ChatDating     ChatType = "dating"
)

// Valid reports whether t is one of the known chat types.
func (t ChatType) Valid() bool {
	return t == ChatFriendship || t == ChatDating
}

// User is the durable user record. Status mirrors the in-memory state machine
// for presence queries; the coordinator is authoritative while a user is
// connected.
type User struct {
	ID         string
	Username   string
	Interests  []string
	Preference ChatType
	Online     bool
	Status     string
	LastActive time.Time
	CreatedAt  time.Time
}

// Session is a two-party chat. Active is true from creation until End; an
// ended session's record persists but is immutable.
type Session struct {
	ID            string
	UserA         string
	UserB         string
	Type          ChatType
	Active        bool
	Archived      bool
	LastMessageID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (s *Session) HasParticipant(userID string) bool {
	return userID == s.UserA || userID == s.UserB
}

// Partner returns the other participant's id, or "" if userID is not a
// participant.
func (s *Session) Partner(userID string) string {
	switch userID {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	default:
		return ""
	}
}

// Reaction is an emoji reaction attached to a message.
type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// Message is a persisted chat message. ReadBy always contains the sender.
type Message struct {
	ID        string
	SessionID string
	SenderID  string
	Content   string
	CreatedAt time.Time
	ReadBy    []string
	Edited    bool
	EditedAt  *time.Time
	Reactions []Reaction
}

// ReadBySet reports whether userID has read the message.
func (m *Message) ReadBySet(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// reportReasons is the set of accepted report reasons, mirroring the CHECK
// constraint on the reports table.
var reportReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"other":      true,
}

// ValidReportReason reports whether reason is one of the accepted values.
// Callers validate before insert so a bad reason never reaches the database
// constraint.
func ValidReportReason(reason string) bool {
	return reportReasons[reason]
}

// Report is an abuse report with a snapshot of recent conversation for
// moderator review.
type Report struct {
	ReporterID string
	ReportedID string
	SessionID  string
	Reason     string
	Messages   []ReportMessage
	CreatedAt  time.Time
}

// ReportMessage is one message in the snapshot attached to a report.
type ReportMessage struct {
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
	Ts       int64  `json:"ts"`
}

// SessionFilter narrows ListForUser results.
type SessionFilter struct {
	ActiveOnly bool
	Archived   *bool // nil = both
}
