package matching

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/kindredchat/kindred/internal/clock"
)

// Blocklist filters candidate pairs. A nil Blocklist blocks nobody.
type Blocklist interface {
	// Blocked reports whether either user has blocked the other.
	Blocked(a, b string) bool
}

// ProposeFunc is invoked for each pair the matcher forms. Both entries have
// already been removed from the pool; if the proposal cannot be opened the
// matcher puts them back.
type ProposeFunc func(a, b Entry, shared []string) error

// Matcher runs the periodic pairing pass over the pool. Each pass walks
// waiting users oldest-first and pairs each with its best-ranked candidate.
type Matcher struct {
	pool    *Pool
	clk     clock.Clock
	tick    time.Duration
	blocks  Blocklist
	propose ProposeFunc

	kick chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewMatcher creates a matcher over pool. blocks may be nil.
func NewMatcher(pool *Pool, clk clock.Clock, tick time.Duration, blocks Blocklist, propose ProposeFunc) *Matcher {
	return &Matcher{
		pool:    pool,
		clk:     clk,
		tick:    tick,
		blocks:  blocks,
		propose: propose,
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Start launches the background pairing loop.
func (m *Matcher) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop terminates the pairing loop and waits for the in-flight pass.
func (m *Matcher) Stop() {
	close(m.stop)
	m.wg.Wait()
}

// Kick requests an immediate pairing pass, coalescing with any pending kick.
// Called when a user enters the pool so small pools do not wait a full tick.
func (m *Matcher) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Matcher) run() {
	defer m.wg.Done()
	ticker := m.clk.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C():
			m.Pass()
		case <-m.kick:
			m.Pass()
		}
	}
}

// Pass runs one pairing pass. Exported so tests and a fake-clock driver can
// run passes synchronously.
func (m *Matcher) Pass() {
	paired := make(map[string]bool)

	for _, e := range m.pool.InOrder() {
		if paired[e.UserID] {
			continue
		}
		// The entry may have left the pool since the snapshot.
		if !m.pool.Contains(e.UserID) {
			continue
		}

		best, ok := m.pickCandidate(e, paired)
		if !ok {
			continue
		}

		m.pool.Remove(e.UserID)
		m.pool.Remove(best.Entry.UserID)
		paired[e.UserID] = true
		paired[best.Entry.UserID] = true

		if err := m.propose(e, best.Entry, best.Shared); err != nil {
			log.Printf("[matcher] proposal %s/%s failed, requeueing: %v",
				e.UserID, best.Entry.UserID, err)
			m.pool.Add(e)
			m.pool.Add(best.Entry)
			delete(paired, e.UserID)
			delete(paired, best.Entry.UserID)
		}
	}
}

// pickCandidate ranks e's candidates: most shared interests first, then
// longest-waiting, then lowest user id. Users already paired this pass and
// blocked pairs are skipped.
func (m *Matcher) pickCandidate(e Entry, paired map[string]bool) (Candidate, bool) {
	cands := m.pool.CandidatesFor(e)
	filtered := cands[:0]
	for _, c := range cands {
		if paired[c.Entry.UserID] {
			continue
		}
		if m.blocks != nil && m.blocks.Blocked(e.UserID, c.Entry.UserID) {
			continue
		}
		filtered = append(filtered, c)
	}
	if len(filtered) == 0 {
		return Candidate{}, false
	}

	sort.Slice(filtered, func(i, j int) bool {
		if len(filtered[i].Shared) != len(filtered[j].Shared) {
			return len(filtered[i].Shared) > len(filtered[j].Shared)
		}
		if !filtered[i].Entry.EnqueuedAt.Equal(filtered[j].Entry.EnqueuedAt) {
			return filtered[i].Entry.EnqueuedAt.Before(filtered[j].Entry.EnqueuedAt)
		}
		return filtered[i].Entry.UserID < filtered[j].Entry.UserID
	})
	return filtered[0], true
}
