package matching

import (
	"reflect"
	"testing"
	"time"

	"github.com/kindredchat/kindred/internal/store"
)

func entry(id string, pref store.ChatType, at time.Time, interests ...string) Entry {
	return Entry{
		UserID:     id,
		Username:   "user-" + id,
		Interests:  interests,
		Preference: pref,
		EnqueuedAt: at,
	}
}

func TestNormalizeInterests(t *testing.T) {
	got := NormalizeInterests([]string{" Music ", "music", "", "ART", "art"})
	want := []string{"music", "art"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPool_CandidatesRequireSharedInterest(t *testing.T) {
	p := NewPool()
	now := time.Unix(1000, 0)
	p.Add(entry("a", store.ChatFriendship, now, "music"))
	p.Add(entry("b", store.ChatFriendship, now, "hiking"))

	if cands := p.CandidatesFor(entry("a", store.ChatFriendship, now, "music")); len(cands) != 0 {
		t.Errorf("expected no candidates without a shared interest, got %v", cands)
	}

	p.Add(entry("c", store.ChatFriendship, now, "music", "art"))
	cands := p.CandidatesFor(entry("a", store.ChatFriendship, now, "music"))
	if len(cands) != 1 || cands[0].Entry.UserID != "c" {
		t.Fatalf("candidates = %v, want just c", cands)
	}
	if !reflect.DeepEqual(cands[0].Shared, []string{"music"}) {
		t.Errorf("shared = %v, want [music]", cands[0].Shared)
	}
}

func TestPool_CandidatesRequireSamePreference(t *testing.T) {
	p := NewPool()
	now := time.Unix(1000, 0)
	p.Add(entry("a", store.ChatFriendship, now, "music"))
	p.Add(entry("b", store.ChatDating, now, "music"))

	cands := p.CandidatesFor(entry("a", store.ChatFriendship, now, "music"))
	if len(cands) != 0 {
		t.Errorf("friendship searcher matched a dating entry: %v", cands)
	}
}

func TestPool_CandidateExcludesSelf(t *testing.T) {
	p := NewPool()
	now := time.Unix(1000, 0)
	p.Add(entry("a", store.ChatFriendship, now, "music"))

	if cands := p.CandidatesFor(entry("a", store.ChatFriendship, now, "music")); len(cands) != 0 {
		t.Errorf("searcher matched itself: %v", cands)
	}
}

func TestPool_MatchingIsCaseInsensitive(t *testing.T) {
	p := NewPool()
	now := time.Unix(1000, 0)
	p.Add(entry("b", store.ChatFriendship, now, "Music"))

	cands := p.CandidatesFor(entry("a", store.ChatFriendship, now, "mUsIc "))
	if len(cands) != 1 {
		t.Fatalf("case-insensitive match failed: %v", cands)
	}
}

func TestPool_RemoveDropsFromIndex(t *testing.T) {
	p := NewPool()
	now := time.Unix(1000, 0)
	p.Add(entry("b", store.ChatFriendship, now, "music"))
	p.Remove("b")

	if p.Contains("b") {
		t.Error("pool still contains removed user")
	}
	if cands := p.CandidatesFor(entry("a", store.ChatFriendship, now, "music")); len(cands) != 0 {
		t.Errorf("removed user still indexed: %v", cands)
	}
	// Removing twice is fine.
	p.Remove("b")
}

func TestPool_ReAddReplacesProfile(t *testing.T) {
	p := NewPool()
	now := time.Unix(1000, 0)
	p.Add(entry("b", store.ChatFriendship, now, "music"))
	p.Add(entry("b", store.ChatFriendship, now, "hiking"))

	if cands := p.CandidatesFor(entry("a", store.ChatFriendship, now, "music")); len(cands) != 0 {
		t.Errorf("stale interests survived re-add: %v", cands)
	}
	if cands := p.CandidatesFor(entry("a", store.ChatFriendship, now, "hiking")); len(cands) != 1 {
		t.Errorf("new interests not indexed: %v", cands)
	}
	if p.Len() != 1 {
		t.Errorf("len = %d, want 1", p.Len())
	}
}

func TestPool_InOrderIsOldestFirst(t *testing.T) {
	p := NewPool()
	base := time.Unix(1000, 0)
	p.Add(entry("c", store.ChatFriendship, base.Add(2*time.Second), "x"))
	p.Add(entry("a", store.ChatFriendship, base, "x"))
	p.Add(entry("b", store.ChatFriendship, base.Add(time.Second), "x"))

	order := p.InOrder()
	var ids []string
	for _, e := range order {
		ids = append(ids, e.UserID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("order = %v, want [a b c]", ids)
	}
}
