package auth

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.Issue("user-1", "alice")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Username != "alice" {
		t.Errorf("username = %q, want alice", claims.Username)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).Issue("user-1", "alice")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := NewManager("secret-b", time.Hour).Verify(token); err == nil {
		t.Error("token signed with a different secret verified")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)
	token, err := m.Issue("user-1", "alice")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Error("expired token verified")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := m.Verify(tok); err == nil {
			t.Errorf("Verify(%q) succeeded", tok)
		}
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/chat", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if tok, err := TokenFromRequest(r); err != nil || tok != "abc123" {
		t.Errorf("header token = %q, %v", tok, err)
	}

	r = httptest.NewRequest("GET", "/ws?token=xyz789", nil)
	if tok, err := TokenFromRequest(r); err != nil || tok != "xyz789" {
		t.Errorf("query token = %q, %v", tok, err)
	}

	r = httptest.NewRequest("GET", "/chat", nil)
	r.Header.Set("Authorization", "Basic abc123")
	if _, err := TokenFromRequest(r); err == nil {
		t.Error("non-bearer header accepted")
	}

	r = httptest.NewRequest("GET", "/chat", nil)
	if _, err := TokenFromRequest(r); err == nil {
		t.Error("request without credentials accepted")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2!")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "hunter2!" {
		t.Fatal("password stored in the clear")
	}
	if !CheckPassword(hash, "hunter2!") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "hunter3!") {
		t.Error("wrong password accepted")
	}
}
