package matching

import (
	"errors"
	"testing"
	"time"

	"github.com/kindredchat/kindred/internal/clock"
	"github.com/kindredchat/kindred/internal/store"
)

type proposal struct {
	a, b   string
	shared []string
}

type capturePropose struct {
	got  []proposal
	fail bool
}

func (c *capturePropose) propose(a, b Entry, shared []string) error {
	if c.fail {
		return errors.New("induced failure")
	}
	c.got = append(c.got, proposal{a: a.UserID, b: b.UserID, shared: shared})
	return nil
}

type blockPair struct{ x, y string }

func (b blockPair) Blocked(a, c string) bool {
	return (a == b.x && c == b.y) || (a == b.y && c == b.x)
}

func TestMatcher_PrefersMoreSharedInterests(t *testing.T) {
	p := NewPool()
	base := time.Unix(1000, 0)
	p.Add(entry("seeker", store.ChatFriendship, base, "music", "art"))
	p.Add(entry("one-shared", store.ChatFriendship, base.Add(time.Second), "music"))
	p.Add(entry("two-shared", store.ChatFriendship, base.Add(2*time.Second), "music", "art"))

	cap := &capturePropose{}
	m := NewMatcher(p, clock.NewFake(base), time.Second, nil, cap.propose)
	m.Pass()

	if len(cap.got) != 1 {
		t.Fatalf("proposals = %v, want exactly one", cap.got)
	}
	if cap.got[0].a != "seeker" || cap.got[0].b != "two-shared" {
		t.Errorf("paired %s/%s, want seeker/two-shared", cap.got[0].a, cap.got[0].b)
	}
	if len(cap.got[0].shared) != 2 {
		t.Errorf("shared = %v, want two interests", cap.got[0].shared)
	}
	if !p.Contains("one-shared") {
		t.Error("losing candidate should stay in the pool")
	}
}

func TestMatcher_TieBreaksByWaitThenID(t *testing.T) {
	p := NewPool()
	base := time.Unix(1000, 0)
	p.Add(entry("seeker", store.ChatFriendship, base, "music"))
	p.Add(entry("late", store.ChatFriendship, base.Add(5*time.Second), "music"))
	p.Add(entry("early", store.ChatFriendship, base.Add(time.Second), "music"))

	cap := &capturePropose{}
	NewMatcher(p, clock.NewFake(base), time.Second, nil, cap.propose).Pass()

	if len(cap.got) != 1 || cap.got[0].b != "early" {
		t.Fatalf("proposals = %v, want seeker/early", cap.got)
	}
}

func TestMatcher_PairsOldestFirst(t *testing.T) {
	p := NewPool()
	base := time.Unix(1000, 0)
	// Four mutually compatible users; the two oldest pair first.
	p.Add(entry("d", store.ChatFriendship, base.Add(3*time.Second), "x"))
	p.Add(entry("a", store.ChatFriendship, base, "x"))
	p.Add(entry("c", store.ChatFriendship, base.Add(2*time.Second), "x"))
	p.Add(entry("b", store.ChatFriendship, base.Add(time.Second), "x"))

	cap := &capturePropose{}
	NewMatcher(p, clock.NewFake(base), time.Second, nil, cap.propose).Pass()

	if len(cap.got) != 2 {
		t.Fatalf("proposals = %v, want two pairs", cap.got)
	}
	if cap.got[0].a != "a" || cap.got[0].b != "b" {
		t.Errorf("first pair = %s/%s, want a/b", cap.got[0].a, cap.got[0].b)
	}
	if cap.got[1].a != "c" || cap.got[1].b != "d" {
		t.Errorf("second pair = %s/%s, want c/d", cap.got[1].a, cap.got[1].b)
	}
	if p.Len() != 0 {
		t.Errorf("pool should be drained, %d left", p.Len())
	}
}

func TestMatcher_SkipsBlockedPairs(t *testing.T) {
	p := NewPool()
	base := time.Unix(1000, 0)
	p.Add(entry("a", store.ChatFriendship, base, "x"))
	p.Add(entry("b", store.ChatFriendship, base.Add(time.Second), "x"))

	cap := &capturePropose{}
	NewMatcher(p, clock.NewFake(base), time.Second, blockPair{"a", "b"}, cap.propose).Pass()

	if len(cap.got) != 0 {
		t.Errorf("blocked pair was proposed: %v", cap.got)
	}
	if !p.Contains("a") || !p.Contains("b") {
		t.Error("blocked users should remain in the pool")
	}
}

func TestMatcher_RequeuesOnProposalFailure(t *testing.T) {
	p := NewPool()
	base := time.Unix(1000, 0)
	p.Add(entry("a", store.ChatFriendship, base, "x"))
	p.Add(entry("b", store.ChatFriendship, base.Add(time.Second), "x"))

	cap := &capturePropose{fail: true}
	NewMatcher(p, clock.NewFake(base), time.Second, nil, cap.propose).Pass()

	if !p.Contains("a") || !p.Contains("b") {
		t.Error("failed proposal should return both users to the pool")
	}
}

func TestMatcher_TickDrivesPasses(t *testing.T) {
	p := NewPool()
	base := time.Unix(1000, 0)
	fake := clock.NewFake(base)

	cap := &capturePropose{}
	m := NewMatcher(p, fake, 3*time.Second, nil, cap.propose)
	m.Start()
	defer m.Stop()

	p.Add(entry("a", store.ChatFriendship, base, "x"))
	p.Add(entry("b", store.ChatFriendship, base, "x"))

	fake.Advance(3 * time.Second)
	waitFor(t, func() bool { return p.Len() == 0 })
}

func TestMatcher_KickTriggersImmediatePass(t *testing.T) {
	p := NewPool()
	base := time.Unix(1000, 0)

	cap := &capturePropose{}
	m := NewMatcher(p, clock.NewFake(base), time.Hour, nil, cap.propose)
	m.Start()
	defer m.Stop()

	p.Add(entry("a", store.ChatFriendship, base, "x"))
	p.Add(entry("b", store.ChatFriendship, base, "x"))
	m.Kick()

	waitFor(t, func() bool { return p.Len() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
