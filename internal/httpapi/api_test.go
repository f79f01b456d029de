package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kindredchat/kindred/internal/auth"
	"github.com/kindredchat/kindred/internal/clock"
	"github.com/kindredchat/kindred/internal/coordinator"
	"github.com/kindredchat/kindred/internal/store"
)

type nopSender struct{}

func (nopSender) Send(string, []byte)          {}
func (nopSender) SendDroppable(string, []byte) {}

type env struct {
	srv    *httptest.Server
	store  *store.Memory
	tokens *auth.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fake := clock.NewFake(time.Unix(10_000, 0))
	mem := store.NewMemory()
	mem.SetNow(fake.Now)
	coord := coordinator.New(coordinator.Options{
		Clock:        fake,
		Store:        mem,
		Sender:       nopSender{},
		TickInterval: 3 * time.Second,
		BallotTTL:    120 * time.Second,
	})
	tokens := auth.NewManager("test-secret", time.Hour)
	api := New(Options{
		Store:       mem,
		Coordinator: coord,
		Tokens:      tokens,
		PageSizeMax: 100,
	})
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: mem, tokens: tokens}
}

// do sends a JSON request and decodes the JSON response body.
func (e *env) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

// register creates an account and returns (userID, token).
func (e *env) register(t *testing.T, username string) (string, string) {
	t.Helper()
	status, body := e.do(t, "POST", "/auth/register", "", map[string]interface{}{
		"username":        username,
		"password":        "correct horse",
		"interests":       []string{"music", "art"},
		"chat_preference": "friendship",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d body %v", username, status, body)
	}
	user := body["user"].(map[string]interface{})
	return user["id"].(string), body["token"].(string)
}

func TestRegisterLoginMe(t *testing.T) {
	e := newEnv(t)
	userID, token := e.register(t, "alice")

	status, body := e.do(t, "GET", "/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status %d", status)
	}
	if body["id"] != userID || body["username"] != "alice" {
		t.Errorf("me = %v, want id %s username alice", body, userID)
	}

	status, body = e.do(t, "POST", "/auth/login", "", map[string]string{
		"username": "alice", "password": "correct horse",
	})
	if status != http.StatusOK || body["token"] == "" {
		t.Errorf("login: status %d body %v", status, body)
	}

	status, _ = e.do(t, "POST", "/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d, want 401", status)
	}
	status, _ = e.do(t, "POST", "/auth/login", "", map[string]string{
		"username": "nobody", "password": "correct horse",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("unknown user: status %d, want 401", status)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice")

	cases := []map[string]interface{}{
		{"username": "alice", "password": "correct horse"},        // taken
		{"username": "", "password": "correct horse"},             // empty name
		{"username": "bob", "password": "short"},                  // weak password
		{"username": "bob", "password": "okpassword", "chat_preference": "marriage"}, // bad pref
	}
	for i, c := range cases {
		if status, _ := e.do(t, "POST", "/auth/register", "", c); status != http.StatusBadRequest {
			t.Errorf("case %d: status %d, want 400", i, status)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newEnv(t)

	if status, _ := e.do(t, "GET", "/auth/me", "", nil); status != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", status)
	}
	if status, _ := e.do(t, "GET", "/auth/me", "garbage", nil); status != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", status)
	}
}

func TestProfileAndPreference(t *testing.T) {
	e := newEnv(t)
	_, token := e.register(t, "alice")

	status, body := e.do(t, "PUT", "/auth/profile", token, map[string]interface{}{
		"interests": []string{"  Hiking ", "hiking", "chess"},
	})
	if status != http.StatusOK {
		t.Fatalf("profile: status %d", status)
	}
	got := body["interests"].([]interface{})
	if len(got) != 2 {
		t.Errorf("interests = %v, want normalized [hiking chess]", got)
	}

	status, _ = e.do(t, "PUT", "/auth/profile", token, map[string]interface{}{
		"interests": []string{"  ", ""},
	})
	if status != http.StatusBadRequest {
		t.Errorf("empty interests: status %d, want 400", status)
	}

	status, _ = e.do(t, "PUT", "/auth/chat-preference", token, map[string]string{
		"chat_preference": "dating",
	})
	if status != http.StatusOK {
		t.Errorf("preference: status %d", status)
	}
	status, _ = e.do(t, "PUT", "/auth/chat-preference", token, map[string]string{
		"chat_preference": "marriage",
	})
	if status != http.StatusBadRequest {
		t.Errorf("bad preference: status %d, want 400", status)
	}
}

// A missing session carries the same stable code here as on the WebSocket
// surface, not a generic not_found.
func TestMissingSessionCode(t *testing.T) {
	e := newEnv(t)
	_, token := e.register(t, "alice")

	for _, path := range []string{
		"/chat/no-such-session",
		"/chat/no-such-session/messages",
	} {
		status, body := e.do(t, "GET", path, token, nil)
		if status != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, status)
		}
		errObj, _ := body["error"].(map[string]interface{})
		if errObj["code"] != "session_not_found" {
			t.Errorf("GET %s code = %v, want session_not_found", path, errObj["code"])
		}
	}
}

func TestSessionAndMessages(t *testing.T) {
	e := newEnv(t)
	_, tokenA := e.register(t, "alice")
	bobID, tokenB := e.register(t, "bob")
	_, tokenC := e.register(t, "carol")

	status, body := e.do(t, "POST", "/chat/create-session", tokenA, map[string]string{
		"user_id": bobID, "type": "friendship",
	})
	if status != http.StatusCreated {
		t.Fatalf("create-session: status %d body %v", status, body)
	}
	sessionID := body["id"].(string)

	// Post a few messages from both sides.
	for i, tok := range []string{tokenA, tokenB, tokenA} {
		status, _ = e.do(t, "POST", "/chat/"+sessionID+"/messages", tok, map[string]string{
			"content": fmt.Sprintf("message %d", i+1),
		})
		if status != http.StatusCreated {
			t.Fatalf("post message %d: status %d", i+1, status)
		}
	}

	// Non-participant is rejected.
	if status, _ = e.do(t, "GET", "/chat/"+sessionID, tokenC, nil); status != http.StatusForbidden {
		t.Errorf("outsider get chat: status %d, want 403", status)
	}
	if status, _ = e.do(t, "POST", "/chat/"+sessionID+"/messages", tokenC, map[string]string{"content": "hi"}); status != http.StatusForbidden {
		t.Errorf("outsider post: status %d, want 403", status)
	}

	status, body = e.do(t, "GET", "/chat/"+sessionID+"/messages?page=1&limit=500", tokenA, nil)
	if status != http.StatusOK {
		t.Fatalf("list messages: status %d", status)
	}
	if int(body["limit"].(float64)) != 100 {
		t.Errorf("limit = %v, want clamped to 100", body["limit"])
	}
	msgs := body["messages"].([]interface{})
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	first := msgs[0].(map[string]interface{})
	if first["content"] != "message 1" {
		t.Errorf("first message = %v, want message 1", first["content"])
	}

	status, body = e.do(t, "GET", "/chat/"+sessionID+"/messages/search?q=message+2", tokenB, nil)
	if status != http.StatusOK || len(body["messages"].([]interface{})) != 1 {
		t.Errorf("search: status %d body %v, want one hit", status, body)
	}
	if status, _ = e.do(t, "GET", "/chat/"+sessionID+"/messages/search", tokenB, nil); status != http.StatusBadRequest {
		t.Errorf("empty query: status %d, want 400", status)
	}

	status, body = e.do(t, "GET", "/chat?active=true", tokenA, nil)
	if status != http.StatusOK || len(body["sessions"].([]interface{})) != 1 {
		t.Errorf("list chats: status %d body %v", status, body)
	}
}

func TestEditDeleteReact(t *testing.T) {
	e := newEnv(t)
	_, tokenA := e.register(t, "alice")
	bobID, tokenB := e.register(t, "bob")

	_, body := e.do(t, "POST", "/chat/create-session", tokenA, map[string]string{
		"user_id": bobID, "type": "dating",
	})
	sessionID := body["id"].(string)

	status, body := e.do(t, "POST", "/chat/"+sessionID+"/messages", tokenA, map[string]string{"content": "helo"})
	if status != http.StatusCreated {
		t.Fatalf("post: status %d", status)
	}
	msgID := body["id"].(string)

	// Only the sender can edit or delete.
	if status, _ = e.do(t, "PUT", "/messages/"+msgID, tokenB, map[string]string{"content": "hax"}); status == http.StatusOK {
		t.Error("partner edited someone else's message")
	}
	status, body = e.do(t, "PUT", "/messages/"+msgID, tokenA, map[string]string{"content": "hello"})
	if status != http.StatusOK || body["content"] != "hello" || body["edited"] != true {
		t.Errorf("edit: status %d body %v", status, body)
	}
	if status, _ = e.do(t, "PUT", "/messages/"+msgID, tokenA, map[string]string{"content": strings.Repeat("a", 5000)}); status != http.StatusBadRequest {
		t.Errorf("oversized edit: status %d, want 400", status)
	}

	if status, _ = e.do(t, "POST", "/messages/"+msgID+"/reactions", tokenB, map[string]string{"emoji": "👍"}); status != http.StatusOK {
		t.Errorf("react: status %d", status)
	}
	if status, _ = e.do(t, "POST", "/messages/"+msgID+"/reactions", tokenB, map[string]string{"emoji": " "}); status != http.StatusBadRequest {
		t.Errorf("empty emoji: status %d, want 400", status)
	}

	if status, _ = e.do(t, "DELETE", "/messages/"+msgID, tokenA, nil); status != http.StatusNoContent {
		t.Errorf("delete: status %d, want 204", status)
	}
	if status, _ = e.do(t, "DELETE", "/messages/"+msgID, tokenA, nil); status != http.StatusNotFound {
		t.Errorf("double delete: status %d, want 404", status)
	}
}

func TestEndAndArchive(t *testing.T) {
	e := newEnv(t)
	_, tokenA := e.register(t, "alice")
	bobID, _ := e.register(t, "bob")

	_, body := e.do(t, "POST", "/chat/create-session", tokenA, map[string]string{
		"user_id": bobID, "type": "friendship",
	})
	sessionID := body["id"].(string)

	// Active sessions cannot be archived.
	if status, _ := e.do(t, "PUT", "/chat/"+sessionID+"/archive", tokenA, nil); status != http.StatusConflict {
		t.Errorf("archive active: status %d, want 409", status)
	}

	if status, _ := e.do(t, "PUT", "/chat/"+sessionID+"/end", tokenA, nil); status != http.StatusOK {
		t.Errorf("end: status %d", status)
	}
	if status, _ := e.do(t, "PUT", "/chat/"+sessionID+"/end", tokenA, nil); status != http.StatusConflict {
		t.Errorf("double end: status %d, want 409", status)
	}

	if status, _ := e.do(t, "PUT", "/chat/"+sessionID+"/archive", tokenA, nil); status != http.StatusOK {
		t.Errorf("archive: status %d", status)
	}
	status, body := e.do(t, "GET", "/chat/"+sessionID, tokenA, nil)
	if status != http.StatusOK || body["archived"] != true {
		t.Errorf("archived flag: status %d body %v", status, body)
	}
	if status, _ := e.do(t, "PUT", "/chat/"+sessionID+"/unarchive", tokenA, nil); status != http.StatusOK {
		t.Errorf("unarchive: status %d", status)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	e := newEnv(t)
	selfID, token := e.register(t, "alice")

	if status, _ := e.do(t, "POST", "/chat/create-session", token, map[string]string{
		"user_id": selfID, "type": "friendship",
	}); status != http.StatusBadRequest {
		t.Errorf("self session: status %d, want 400", status)
	}
	if status, _ := e.do(t, "POST", "/chat/create-session", token, map[string]string{
		"user_id": "someone", "type": "marriage",
	}); status != http.StatusBadRequest {
		t.Errorf("bad type: status %d, want 400", status)
	}
}

func TestBlockEndpointsDisabled(t *testing.T) {
	e := newEnv(t)
	_, token := e.register(t, "alice")

	if status, _ := e.do(t, "POST", "/chat/block/bob", token, nil); status != http.StatusServiceUnavailable {
		t.Errorf("block without backend: status %d, want 503", status)
	}
}

func TestStartSearchViaREST(t *testing.T) {
	e := newEnv(t)
	_, token := e.register(t, "alice")

	// The user has no live coordinator presence, so search requires the
	// WebSocket authenticate first.
	if status, _ := e.do(t, "POST", "/chat/start-search", token, nil); status != http.StatusUnauthorized {
		t.Errorf("search while offline: status %d, want 401", status)
	}
}
