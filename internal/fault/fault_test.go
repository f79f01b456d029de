package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf_FaultError(t *testing.T) {
	err := New(SessionNotFound, "no such session")
	if CodeOf(err) != SessionNotFound {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), SessionNotFound)
	}
}

func TestCodeOf_WrappedFaultError(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(RateLimited, "slow down"))
	if CodeOf(err) != RateLimited {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), RateLimited)
	}
	if MessageOf(err) != "slow down" {
		t.Errorf("MessageOf = %q, want %q", MessageOf(err), "slow down")
	}
}

func TestCodeOf_PlainErrorIsInternal(t *testing.T) {
	err := errors.New("boom")
	if CodeOf(err) != Internal {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), Internal)
	}
	if MessageOf(err) != "internal error" {
		t.Errorf("MessageOf leaked internals: %q", MessageOf(err))
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(StorageFailure, "insert message", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause with errors.Is")
	}
	if !Is(err, StorageFailure) {
		t.Error("wrapped error should keep its code")
	}
}
