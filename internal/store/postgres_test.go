package store

import (
	"context"
	"os"
	"testing"
)

// setupTestPostgres connects to the Postgres instance named by TEST_POSTGRES_DSN.
// Tests are skipped when the variable is unset or the database is unreachable.
func setupTestPostgres(t *testing.T) (*Postgres, context.Context) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skipping: TEST_POSTGRES_DSN not set")
	}

	p, err := OpenPostgres(dsn)
	if err != nil {
		t.Skipf("skipping: Postgres not available: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		p.db.ExecContext(ctx, "TRUNCATE abuse_reports, messages, sessions, users CASCADE")
		p.Close()
	})
	return p, context.Background()
}

func TestPostgres_UserRoundTrip(t *testing.T) {
	p, ctx := setupTestPostgres(t)

	u, err := p.Users().Create(ctx, "pg-alice", "hash", []string{"music", "art"}, ChatDating)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := p.Users().GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "pg-alice" || got.Preference != ChatDating || len(got.Interests) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := p.Users().Create(ctx, "pg-alice", "hash2", nil, ChatFriendship); err != ErrConflict {
		t.Errorf("duplicate username err = %v, want ErrConflict", err)
	}
}

func TestPostgres_MessageFlow(t *testing.T) {
	p, ctx := setupTestPostgres(t)

	a, _ := p.Users().Create(ctx, "pg-a", "h", nil, ChatFriendship)
	b, _ := p.Users().Create(ctx, "pg-b", "h", nil, ChatFriendship)
	sess, err := p.Sessions().Create(ctx, a.ID, b.ID, ChatFriendship)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	msg, err := p.Messages().Insert(ctx, sess.ID, a.ID, "hello from pg")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !msg.ReadBySet(a.ID) {
		t.Error("sender missing from read_by")
	}

	got, _ := p.Sessions().Get(ctx, sess.ID)
	if got.LastMessageID != msg.ID {
		t.Errorf("last_message_id = %s, want %s", got.LastMessageID, msg.ID)
	}

	upTo, err := p.Messages().MarkRead(ctx, sess.ID, b.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if upTo != msg.ID {
		t.Errorf("upTo = %s, want %s", upTo, msg.ID)
	}

	if err := p.Messages().AddReaction(ctx, msg.ID, b.ID, "🔥"); err != nil {
		t.Fatalf("add reaction: %v", err)
	}
	page, err := p.Messages().Paginate(ctx, sess.ID, 1, 10)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if len(page) != 1 || len(page[0].Reactions) != 1 {
		t.Errorf("expected one message with one reaction, got %+v", page)
	}
}
