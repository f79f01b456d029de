package block

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store connected to a local Redis instance and
// flushes leftover test keys. Tests that call this helper require a running
// Redis on localhost:6379 and are skipped otherwise.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	cleanup := func() {
		for _, pattern := range []string{blocksPrefix + "test_*", banPrefix + "test_*", offensesPrefix + "test_*"} {
			iter := client.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewStore(client)
}

func TestBlockedIsSymmetric(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if store.Blocked("test_a", "test_b") {
		t.Error("fresh pair reported blocked")
	}

	if err := store.Block(ctx, "test_a", "test_b"); err != nil {
		t.Fatalf("Block() error: %v", err)
	}
	if !store.Blocked("test_a", "test_b") {
		t.Error("blocker side not reported blocked")
	}
	if !store.Blocked("test_b", "test_a") {
		t.Error("blocked side not reported blocked")
	}

	if err := store.Unblock(ctx, "test_a", "test_b"); err != nil {
		t.Fatalf("Unblock() error: %v", err)
	}
	if store.Blocked("test_a", "test_b") {
		t.Error("pair still blocked after unblock")
	}
}

func TestBanAndCheck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := "test_ban_check"

	if err := store.Ban(ctx, user, 30*time.Second, "spam"); err != nil {
		t.Fatalf("Ban() error: %v", err)
	}

	banned, remaining, reason, err := store.IsBanned(ctx, user)
	if err != nil {
		t.Fatalf("IsBanned() error: %v", err)
	}
	if !banned || reason != "spam" {
		t.Errorf("banned=%v reason=%q, want banned with reason spam", banned, reason)
	}
	if remaining <= 0 || remaining > 30 {
		t.Errorf("remaining=%d, want within (0, 30]", remaining)
	}

	if err := store.Unban(ctx, user); err != nil {
		t.Fatalf("Unban() error: %v", err)
	}
	if banned, _, _, _ := store.IsBanned(ctx, user); banned {
		t.Error("still banned after Unban")
	}
}

func TestEscalationLadder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := "test_escalate"

	want := []time.Duration{Ban15Min, Ban1Hour, Ban24Hour, Ban24Hour}
	for i, expected := range want {
		got, err := store.Escalate(ctx, user, "abuse")
		if err != nil {
			t.Fatalf("Escalate() #%d error: %v", i+1, err)
		}
		if got != expected {
			t.Errorf("offense %d duration = %v, want %v", i+1, got, expected)
		}
	}
}

func TestReportAndCheckThreshold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := "test_threshold"

	for i := 1; i < AutoBanThreshold; i++ {
		banned, _, err := store.ReportAndCheck(ctx, user)
		if err != nil {
			t.Fatalf("ReportAndCheck() #%d error: %v", i, err)
		}
		if banned {
			t.Fatalf("banned after %d reports, threshold is %d", i, AutoBanThreshold)
		}
	}

	banned, duration, err := store.ReportAndCheck(ctx, user)
	if err != nil {
		t.Fatalf("ReportAndCheck() at threshold error: %v", err)
	}
	if !banned || duration != Ban24Hour {
		t.Errorf("at threshold: banned=%v duration=%v, want banned for %v", banned, duration, Ban24Hour)
	}
}
