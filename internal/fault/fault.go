// Package fault defines the stable error codes surfaced to clients. Handlers
// discriminate on the code; the message is human-readable and safe to relay.
package fault

import (
	"errors"
	"fmt"
)

// Code identifies an error category with a stable wire representation.
type Code string

const (
	AuthRequired     Code = "auth_required"
	NotAParticipant  Code = "not_a_participant"
	SessionNotFound  Code = "session_not_found"
	SessionNotActive Code = "session_not_active"
	AlreadyInSession Code = "already_in_session"
	MatchExpired     Code = "match_expired"
	InvalidState     Code = "invalid_state"
	InvalidContent   Code = "invalid_content"
	RateLimited      Code = "rate_limited"
	StorageFailure   Code = "storage_failure"
	Internal         Code = "internal"
)

// Error carries a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an Error so callers can still errors.Is/As into
// the underlying failure. Used mainly for StorageFailure.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the Code from err. Errors that are not *Error map to
// Internal, which is the only code clients should treat as unexpected.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return Internal
}

// MessageOf extracts the client-safe message from err. Non-fault errors
// produce a generic message so internals never leak to clients.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "internal error"
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
