package matching

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kindredchat/kindred/internal/clock"
	"github.com/kindredchat/kindred/internal/fault"
)

// Ballot is one pending two-party accept/reject vote. A ballot resolves
// accepted only when both participants vote accept; any reject resolves it
// rejected immediately; an undecided ballot expires at Deadline.
type Ballot struct {
	ID       string
	Users    [2]Entry
	Shared   []string
	Deadline time.Time

	votes map[string]bool
	timer clock.Timer
}

// Partner returns the other participant's entry.
func (b *Ballot) Partner(userID string) Entry {
	if b.Users[0].UserID == userID {
		return b.Users[1]
	}
	return b.Users[0]
}

func (b *Ballot) has(userID string) bool {
	return b.Users[0].UserID == userID || b.Users[1].UserID == userID
}

// Outcome describes the effect of a vote.
type Outcome struct {
	Decided  bool
	Accepted bool
	Ballot   *Ballot
}

// ExpireFunc is called when a ballot's deadline passes undecided. The ballot
// has already been removed from the table when the callback runs.
type ExpireFunc func(b *Ballot)

// Table holds all open ballots and owns their expiry timers. Creating a
// ballot and binding both users to it happens under one lock, so no observer
// can see a user bound to a ballot that does not exist.
type Table struct {
	mu       sync.Mutex
	clk      clock.Clock
	ttl      time.Duration
	onExpire ExpireFunc
	ballots  map[string]*Ballot
	byUser   map[string]*Ballot
}

// NewTable creates a ballot table with the given vote window.
func NewTable(clk clock.Clock, ttl time.Duration, onExpire ExpireFunc) *Table {
	return &Table{
		clk:      clk,
		ttl:      ttl,
		onExpire: onExpire,
		ballots:  make(map[string]*Ballot),
		byUser:   make(map[string]*Ballot),
	}
}

// Create opens a ballot for a and b. bind is called for each user while the
// table lock is held; if binding the second user fails, unbind rolls back the
// first and no ballot exists. Either user already holding a ballot is an
// InvalidState failure.
func (t *Table) Create(a, b Entry, shared []string, bind func(userID string) error, unbind func(userID string)) (*Ballot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.byUser[a.UserID]; busy {
		return nil, fault.Newf(fault.InvalidState, "user %s already has a pending match", a.UserID)
	}
	if _, busy := t.byUser[b.UserID]; busy {
		return nil, fault.Newf(fault.InvalidState, "user %s already has a pending match", b.UserID)
	}

	if err := bind(a.UserID); err != nil {
		return nil, err
	}
	if err := bind(b.UserID); err != nil {
		unbind(a.UserID)
		return nil, err
	}

	bal := &Ballot{
		ID:       uuid.NewString(),
		Users:    [2]Entry{a, b},
		Shared:   shared,
		Deadline: t.clk.Now().Add(t.ttl),
		votes:    make(map[string]bool, 2),
	}
	t.ballots[bal.ID] = bal
	t.byUser[a.UserID] = bal
	t.byUser[b.UserID] = bal

	bal.timer = t.clk.AfterFunc(t.ttl, func() { t.expire(bal.ID) })
	return bal, nil
}

// Vote records userID's vote on ballotID. Voting is idempotent: repeating the
// same vote is a no-op, flipping a vote is an InvalidState failure. A reject
// decides the ballot immediately; the second accept decides it accepted.
// Decided ballots are removed from the table before Vote returns.
func (t *Table) Vote(ballotID, userID string, accept bool) (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.ballots[ballotID]
	if !ok {
		return Outcome{}, fault.New(fault.MatchExpired, "match no longer exists")
	}
	if !bal.has(userID) {
		return Outcome{}, fault.New(fault.NotAParticipant, "not part of this match")
	}

	if prev, voted := bal.votes[userID]; voted {
		if prev == accept {
			return Outcome{Ballot: bal}, nil
		}
		return Outcome{}, fault.New(fault.InvalidState, "vote already recorded")
	}
	bal.votes[userID] = accept

	if !accept {
		t.removeLocked(bal)
		return Outcome{Decided: true, Accepted: false, Ballot: bal}, nil
	}
	if len(bal.votes) == 2 {
		t.removeLocked(bal)
		return Outcome{Decided: true, Accepted: true, Ballot: bal}, nil
	}
	return Outcome{Ballot: bal}, nil
}

// Abandon decides the ballot rejected on behalf of userID regardless of any
// prior vote. Used when a participant disconnects mid-ballot.
func (t *Table) Abandon(ballotID, userID string) (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.ballots[ballotID]
	if !ok {
		return Outcome{}, fault.New(fault.MatchExpired, "match no longer exists")
	}
	if !bal.has(userID) {
		return Outcome{}, fault.New(fault.NotAParticipant, "not part of this match")
	}
	bal.votes[userID] = false
	t.removeLocked(bal)
	return Outcome{Decided: true, Accepted: false, Ballot: bal}, nil
}

// ByUser returns the open ballot userID is bound to, if any.
func (t *Table) ByUser(userID string) (*Ballot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.byUser[userID]
	return bal, ok
}

// Len returns the number of open ballots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ballots)
}

func (t *Table) removeLocked(bal *Ballot) {
	if bal.timer != nil {
		bal.timer.Stop()
	}
	delete(t.ballots, bal.ID)
	delete(t.byUser, bal.Users[0].UserID)
	delete(t.byUser, bal.Users[1].UserID)
}

func (t *Table) expire(ballotID string) {
	t.mu.Lock()
	bal, ok := t.ballots[ballotID]
	if ok {
		t.removeLocked(bal)
	}
	t.mu.Unlock()

	if ok && t.onExpire != nil {
		t.onExpire(bal)
	}
}
