// Package state holds the authoritative in-memory status of every known user
// and enforces the status state machine. All operations on one user are
// serialised; transitions are compare-and-swap on the current status so that
// racing callers observe a stale-state failure instead of clobbering each
// other.
package state

import (
	"sync"

	"github.com/kindredchat/kindred/internal/fault"
	"github.com/kindredchat/kindred/internal/store"
)

// Status is a user's position in the connection/search/chat state machine.
type Status string

const (
	Offline   Status = "offline"
	Online    Status = "online"
	Searching Status = "searching"
	Pending   Status = "pending"
	InChat    Status = "in_chat"
)

// legalTransitions is the full set of permitted status changes. Anything else
// is a programming error or a client/server race and fails with InvalidState.
var legalTransitions = map[Status]map[Status]bool{
	Offline:   {Online: true},
	Online:    {Offline: true, Searching: true},
	Searching: {Online: true, Pending: true},
	Pending:   {Online: true, InChat: true},
	InChat:    {Online: true},
}

// Profile is the search profile attached to a user while they are connected.
type Profile struct {
	Username   string
	Interests  []string
	Preference store.ChatType
}

// Snapshot is a point-in-time copy of a user's coordinator-side state.
type Snapshot struct {
	Status    Status
	Profile   Profile
	SessionID string
	BallotID  string
}

// Observer is notified after every successful transition. It must not call
// back into the Index.
type Observer func(userID string, from, to Status)

// Index is the user state index. The zero value is not usable; call New.
type Index struct {
	mu       sync.Mutex
	users    map[string]*userEntry
	observer Observer
}

type userEntry struct {
	mu        sync.Mutex
	status    Status
	profile   Profile
	sessionID string
	ballotID  string
}

// New creates an empty Index. The observer may be nil.
func New(observer Observer) *Index {
	return &Index{
		users:    make(map[string]*userEntry),
		observer: observer,
	}
}

// entry returns the entry for userID, creating an Offline one if needed.
func (ix *Index) entry(userID string) *userEntry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.users[userID]
	if !ok {
		e = &userEntry{status: Offline}
		ix.users[userID] = e
	}
	return e
}

// Transition moves userID from one status to another. It fails with
// InvalidState both when the current status differs from `from` (stale state:
// the caller lost a race) and when the pair is not a legal transition.
func (ix *Index) Transition(userID string, from, to Status) error {
	e := ix.entry(userID)
	e.mu.Lock()
	if e.status != from {
		cur := e.status
		e.mu.Unlock()
		return fault.Newf(fault.InvalidState,
			"cannot move from %s to %s: current status is %s", from, to, cur)
	}
	if !legalTransitions[from][to] {
		e.mu.Unlock()
		return fault.Newf(fault.InvalidState, "illegal transition %s -> %s", from, to)
	}
	e.status = to
	// Leaving a session or ballot clears the association; the invariant is
	// sessionID set iff InChat, ballotID set iff Pending.
	if to != InChat {
		e.sessionID = ""
	}
	if to != Pending {
		e.ballotID = ""
	}
	e.mu.Unlock()

	if ix.observer != nil {
		ix.observer(userID, from, to)
	}
	return nil
}

// Status returns the current status of userID. Unknown users are Offline.
func (ix *Index) Status(userID string) Status {
	e := ix.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Get returns a snapshot of userID's state.
func (ix *Index) Get(userID string) Snapshot {
	e := ix.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Status:    e.status,
		Profile:   e.profile,
		SessionID: e.sessionID,
		BallotID:  e.ballotID,
	}
}

// SetProfile replaces the user's search profile.
func (ix *Index) SetProfile(userID string, p Profile) {
	e := ix.entry(userID)
	e.mu.Lock()
	e.profile = p
	e.mu.Unlock()
}

// SetSession records the session a user is chatting in. Only meaningful while
// the user is InChat.
func (ix *Index) SetSession(userID, sessionID string) {
	e := ix.entry(userID)
	e.mu.Lock()
	e.sessionID = sessionID
	e.mu.Unlock()
}

// SetBallot records the pending ballot a user is voting in. Only meaningful
// while the user is Pending.
func (ix *Index) SetBallot(userID, ballotID string) {
	e := ix.entry(userID)
	e.mu.Lock()
	e.ballotID = ballotID
	e.mu.Unlock()
}

// Forget drops a user from the index entirely. Used when a user's last
// connection is gone and they are back to Offline.
func (ix *Index) Forget(userID string) {
	ix.mu.Lock()
	delete(ix.users, userID)
	ix.mu.Unlock()
}
