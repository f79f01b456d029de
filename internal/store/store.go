// Package store is the narrow contract to the durable user/session/message
// records. The coordinator treats it as an external resource: failures are
// retryable unless stated otherwise, and every method that mutates more than
// one record does so in a single transaction.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist. Callers map it to the
// appropriate client-facing code.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a uniqueness constraint rejects a write, such
// as registering a username that is already taken.
var ErrConflict = errors.New("store: conflict")

// Users is the durable user surface consumed by the coordinator and the
// auth boundary.
type Users interface {
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, username, passwordHash string, interests []string, pref ChatType) (*User, error)
	// FindByCredentials returns the user and its password hash for the
	// external auth layer to verify.
	FindByCredentials(ctx context.Context, username string) (*User, string, error)
	UpdatePresence(ctx context.Context, id string, online bool, status string, lastActive time.Time) error
	UpdateProfile(ctx context.Context, id string, interests []string) error
	UpdatePreference(ctx context.Context, id string, pref ChatType) error
}

// Sessions manages durable chat session records.
type Sessions interface {
	Create(ctx context.Context, userA, userB string, typ ChatType) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetArchived(ctx context.Context, id string, archived bool) error
	// FindActiveBetween returns the active session between a and b in either
	// order, or ErrNotFound.
	FindActiveBetween(ctx context.Context, a, b string) (*Session, error)
	ListForUser(ctx context.Context, userID string, f SessionFilter) ([]*Session, error)
}

// Messages manages the message stream of a session. Insert also bumps the
// session's last-message pointer and updated-at in the same transaction.
type Messages interface {
	Insert(ctx context.Context, sessionID, senderID, content string) (*Message, error)
	// MarkRead adds readerID to every unread message not sent by them and
	// returns the id of the newest message covered.
	MarkRead(ctx context.Context, sessionID, readerID string) (string, error)
	Edit(ctx context.Context, id, senderID, content string) (*Message, error)
	Delete(ctx context.Context, id, senderID string) error
	Search(ctx context.Context, sessionID, substring string, limit int) ([]*Message, error)
	// Paginate returns page (1-based) of messages in created-at order,
	// newest page first, messages within a page oldest first.
	Paginate(ctx context.Context, sessionID string, page, limit int) ([]*Message, error)
	AddReaction(ctx context.Context, messageID, reactorID, emoji string) error
}

// Reports stores abuse reports for moderator review.
type Reports interface {
	Create(ctx context.Context, r *Report) error
	CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error)
}

// Store bundles the repositories behind one handle.
type Store interface {
	Users() Users
	Sessions() Sessions
	Messages() Messages
	Reports() Reports
	Close() error
}
