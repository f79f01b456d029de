// Package matching implements the search pool, the periodic pairing pass and
// the two-party accept ballot. The pool keeps an inverted index from
// (chat type, interest) to the waiting users carrying that interest, so a
// candidate scan touches only users who can actually match.
package matching

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kindredchat/kindred/internal/store"
)

// Entry is one user waiting in the search pool.
type Entry struct {
	UserID     string
	Username   string
	Interests  []string
	Preference store.ChatType
	EnqueuedAt time.Time
}

// Candidate is a pool entry paired with the interests it shares with the
// searcher being matched.
type Candidate struct {
	Entry  Entry
	Shared []string
}

// Pool is the set of searching users, indexed by chat type and interest.
type Pool struct {
	mu      sync.Mutex
	entries map[string]Entry
	// index[preference][interest] -> set of user ids
	index map[store.ChatType]map[string]map[string]struct{}
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		entries: make(map[string]Entry),
		index:   make(map[store.ChatType]map[string]map[string]struct{}),
	}
}

// NormalizeInterests lowercases and trims interests and drops duplicates and
// empties, preserving first-seen order. Matching is case-insensitive.
func NormalizeInterests(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, it := range raw {
		it = strings.ToLower(strings.TrimSpace(it))
		if it == "" {
			continue
		}
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Add puts an entry into the pool, replacing any previous entry for the same
// user. Interests are normalized on the way in.
func (p *Pool) Add(e Entry) {
	e.Interests = NormalizeInterests(e.Interests)

	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.entries[e.UserID]; ok {
		p.unindex(old)
	}
	p.entries[e.UserID] = e

	byInterest, ok := p.index[e.Preference]
	if !ok {
		byInterest = make(map[string]map[string]struct{})
		p.index[e.Preference] = byInterest
	}
	for _, it := range e.Interests {
		set, ok := byInterest[it]
		if !ok {
			set = make(map[string]struct{})
			byInterest[it] = set
		}
		set[e.UserID] = struct{}{}
	}
}

// Remove takes a user out of the pool. Removing an absent user is a no-op.
func (p *Pool) Remove(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[userID]
	if !ok {
		return
	}
	delete(p.entries, userID)
	p.unindex(e)
}

func (p *Pool) unindex(e Entry) {
	byInterest, ok := p.index[e.Preference]
	if !ok {
		return
	}
	for _, it := range e.Interests {
		if set, ok := byInterest[it]; ok {
			delete(set, e.UserID)
			if len(set) == 0 {
				delete(byInterest, it)
			}
		}
	}
}

// Contains reports whether a user is currently waiting.
func (p *Pool) Contains(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[userID]
	return ok
}

// Len returns the number of waiting users.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// InOrder returns all entries sorted oldest-first, ties broken by user id so
// repeated passes see a stable order.
func (p *Pool) InOrder() []Entry {
	p.mu.Lock()
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// CandidatesFor returns every pool entry compatible with e: same preference
// and at least one shared interest, excluding e itself. Shared interests are
// listed in e's interest order.
func (p *Pool) CandidatesFor(e Entry) []Candidate {
	interests := NormalizeInterests(e.Interests)

	p.mu.Lock()
	defer p.mu.Unlock()

	byInterest, ok := p.index[e.Preference]
	if !ok {
		return nil
	}

	shared := make(map[string][]string)
	for _, it := range interests {
		for uid := range byInterest[it] {
			if uid == e.UserID {
				continue
			}
			shared[uid] = append(shared[uid], it)
		}
	}

	out := make([]Candidate, 0, len(shared))
	for uid, its := range shared {
		out = append(out, Candidate{Entry: p.entries[uid], Shared: its})
	}
	return out
}
