// Package coordinator wires the user state index, the search pool, the accept
// ballot and the chat manager into the single in-process authority for
// matchmaking and session lifecycle. Every client-visible operation enters
// through one of its methods.
package coordinator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/kindredchat/kindred/internal/chat"
	"github.com/kindredchat/kindred/internal/clock"
	"github.com/kindredchat/kindred/internal/fault"
	"github.com/kindredchat/kindred/internal/matching"
	"github.com/kindredchat/kindred/internal/metrics"
	"github.com/kindredchat/kindred/internal/state"
	"github.com/kindredchat/kindred/internal/store"
)

// ModerationPublisher forwards filed reports to the moderation pipeline.
// A nil publisher disables forwarding.
type ModerationPublisher interface {
	ReportFiled(r *store.Report) error
}

// Options configures a Coordinator. Clock, Store and Sender are required.
type Options struct {
	Clock           clock.Clock
	Store           store.Store
	Sender          chat.Sender
	Blocks          matching.Blocklist  // optional
	Moderation      ModerationPublisher // optional
	Observer        state.Observer      // optional, notified on every transition
	TickInterval    time.Duration
	BallotTTL       time.Duration
	MaxContentBytes int // message payload cap, zero for the default
}

// Coordinator is the matchmaking and session authority. One instance runs per
// process; all of its state is in memory except what it writes to the store.
type Coordinator struct {
	clk        clock.Clock
	store      store.Store
	sender     chat.Sender
	states     *state.Index
	pool       *matching.Pool
	matcher    *matching.Matcher
	ballots    *matching.Table
	chats      *chat.Manager
	moderation ModerationPublisher
}

// New assembles a coordinator from its parts. Call Start to begin pairing.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		clk:        opts.Clock,
		store:      opts.Store,
		sender:     opts.Sender,
		states:     state.New(opts.Observer),
		pool:       matching.NewPool(),
		chats:      chat.NewManager(opts.Store, opts.Sender, opts.MaxContentBytes),
		moderation: opts.Moderation,
	}
	c.matcher = matching.NewMatcher(c.pool, opts.Clock, opts.TickInterval, opts.Blocks, c.propose)
	c.ballots = matching.NewTable(opts.Clock, opts.BallotTTL, c.expireBallot)
	return c
}

// Start launches the background pairing loop.
func (c *Coordinator) Start() { c.matcher.Start() }

// Stop halts the pairing loop. Open ballots and sessions are left as-is.
func (c *Coordinator) Stop() { c.matcher.Stop() }

// PoolSize reports how many users are currently in the search pool.
func (c *Coordinator) PoolSize() int { return c.pool.Len() }

// ActiveSessions reports how many sessions have live event processing.
func (c *Coordinator) ActiveSessions() int { return c.chats.LiveCount() }

// Status returns a user's current coordinator-side status.
func (c *Coordinator) Status(userID string) state.Status {
	return c.states.Status(userID)
}

// Authenticate binds a verified user to the coordinator: loads the profile,
// marks them Online and records presence. Safe to call again for additional
// connections of the same user.
func (c *Coordinator) Authenticate(ctx context.Context, userID string) (*store.User, error) {
	u, err := c.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.New(fault.AuthRequired, "unknown user")
	}
	if err != nil {
		return nil, fault.Wrap(fault.StorageFailure, "could not load user", err)
	}

	c.states.SetProfile(userID, state.Profile{
		Username:   u.Username,
		Interests:  u.Interests,
		Preference: u.Preference,
	})
	if c.states.Status(userID) == state.Offline {
		if err := c.states.Transition(userID, state.Offline, state.Online); err != nil {
			return nil, err
		}
	}
	if err := c.store.Users().UpdatePresence(ctx, userID, true, string(state.Online), c.clk.Now()); err != nil {
		log.Printf("[coordinator] update presence for %s: %v", userID, err)
	}
	return u, nil
}

// StartSearch puts the user into the search pool. Already-searching is a
// no-op; a user in a chat cannot search.
func (c *Coordinator) StartSearch(ctx context.Context, userID string) error {
	switch c.states.Status(userID) {
	case state.Searching:
		return nil
	case state.InChat:
		return fault.New(fault.AlreadyInSession, "leave the current chat before searching")
	case state.Offline:
		return fault.New(fault.AuthRequired, "authenticate before searching")
	}

	snap := c.states.Get(userID)
	if !snap.Profile.Preference.Valid() {
		return fault.New(fault.InvalidContent, "chat preference not set")
	}
	if len(matching.NormalizeInterests(snap.Profile.Interests)) == 0 {
		return fault.New(fault.InvalidContent, "at least one interest is required to search")
	}

	if err := c.states.Transition(userID, state.Online, state.Searching); err != nil {
		return err
	}
	c.pool.Add(matching.Entry{
		UserID:     userID,
		Username:   snap.Profile.Username,
		Interests:  snap.Profile.Interests,
		Preference: snap.Profile.Preference,
		EnqueuedAt: c.clk.Now(),
	})
	c.matcher.Kick()
	return nil
}

// EndSearch removes the user from the pool. A user who is not searching is
// left untouched.
func (c *Coordinator) EndSearch(ctx context.Context, userID string) error {
	if c.states.Status(userID) != state.Searching {
		return nil
	}
	c.pool.Remove(userID)
	return c.states.Transition(userID, state.Searching, state.Online)
}

// propose is the matcher callback: open a ballot for the pair and prompt both
// sides. Both entries are already out of the pool; an error requeues them.
func (c *Coordinator) propose(a, b matching.Entry, shared []string) error {
	bind := func(userID string) error {
		return c.states.Transition(userID, state.Searching, state.Pending)
	}
	unbind := func(userID string) {
		if err := c.states.Transition(userID, state.Pending, state.Searching); err != nil {
			log.Printf("[coordinator] rollback to searching for %s: %v", userID, err)
		}
	}

	bal, err := c.ballots.Create(a, b, shared, bind, unbind)
	if err != nil {
		return err
	}
	c.states.SetBallot(a.UserID, bal.ID)
	c.states.SetBallot(b.UserID, bal.ID)

	metrics.OpenBallots.Inc()
	now := c.clk.Now()
	metrics.MatchDuration.Observe(now.Sub(a.EnqueuedAt).Seconds())
	metrics.MatchDuration.Observe(now.Sub(b.EnqueuedAt).Seconds())

	c.sendMatchFound(a.UserID, bal.ID, b)
	c.sendMatchFound(b.UserID, bal.ID, a)
	return nil
}

// AcceptMatch records an accept vote. The second accept confirms the match
// and opens the session.
func (c *Coordinator) AcceptMatch(ctx context.Context, userID, matchID string) error {
	out, err := c.ballots.Vote(matchID, userID, true)
	if err != nil {
		return err
	}
	if out.Decided && out.Accepted {
		return c.confirmMatch(ctx, out.Ballot)
	}
	return nil
}

// RejectMatch records a reject vote, which decides the ballot immediately.
func (c *Coordinator) RejectMatch(ctx context.Context, userID, matchID string) error {
	out, err := c.ballots.Vote(matchID, userID, false)
	if err != nil {
		return err
	}
	if out.Decided {
		c.resolveUnmatched(out.Ballot, false)
	}
	return nil
}

// confirmMatch opens the session for a unanimously accepted ballot and moves
// both users into the chat.
func (c *Coordinator) confirmMatch(ctx context.Context, bal *matching.Ballot) error {
	metrics.OpenBallots.Dec()
	a, b := bal.Users[0], bal.Users[1]

	sess, err := c.chats.Open(ctx, a.UserID, b.UserID, a.Preference)
	if err != nil {
		// Handoff write failed: both users roll back to Searching and keep
		// their original queue position.
		for _, e := range bal.Users {
			if terr := c.states.Transition(e.UserID, state.Pending, state.Searching); terr != nil {
				log.Printf("[coordinator] recover %s after failed session open: %v", e.UserID, terr)
				continue
			}
			c.pool.Add(e)
		}
		c.matcher.Kick()
		return err
	}

	metrics.MatchOutcomes.WithLabelValues("confirmed").Inc()
	for i, e := range bal.Users {
		if err := c.states.Transition(e.UserID, state.Pending, state.InChat); err != nil {
			log.Printf("[coordinator] move %s into chat: %v", e.UserID, err)
			continue
		}
		c.states.SetSession(e.UserID, sess.ID)
		c.sendMatchConfirmed(e.UserID, sess.ID, bal.Users[1-i])
	}
	return nil
}

// resolveUnmatched returns both participants of a dead ballot to Online and
// tells them why. expired selects the frame type.
func (c *Coordinator) resolveUnmatched(bal *matching.Ballot, expired bool) {
	metrics.OpenBallots.Dec()
	outcome := "rejected"
	if expired {
		outcome = "expired"
	}
	metrics.MatchOutcomes.WithLabelValues(outcome).Inc()

	for _, e := range bal.Users {
		if err := c.states.Transition(e.UserID, state.Pending, state.Online); err != nil {
			// The user may have disconnected already.
			log.Printf("[coordinator] return %s to online: %v", e.UserID, err)
		}
		c.sendMatchDead(e.UserID, bal.ID, expired)
	}
}

func (c *Coordinator) expireBallot(bal *matching.Ballot) {
	c.resolveUnmatched(bal, true)
}

// SendMessage posts a chat message on behalf of userID.
func (c *Coordinator) SendMessage(ctx context.Context, userID, sessionID, content string) (*store.Message, error) {
	return c.chats.SendMessage(ctx, sessionID, userID, content)
}

// Typing relays a typing or stop-typing indicator.
func (c *Coordinator) Typing(ctx context.Context, userID, sessionID string, stop bool) error {
	return c.chats.Typing(ctx, sessionID, userID, stop)
}

// ReadAll marks the session read for userID and notifies the partner.
func (c *Coordinator) ReadAll(ctx context.Context, userID, sessionID string) error {
	return c.chats.ReadAll(ctx, sessionID, userID)
}

// JoinSession verifies userID may attach to an active session, used when an
// additional connection wants the live event stream.
func (c *Coordinator) JoinSession(ctx context.Context, userID, sessionID string) (*store.Session, error) {
	sess, err := c.chats.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, fault.New(fault.SessionNotActive, "session has ended")
	}
	return sess, nil
}

// EndChat closes a session on userID's behalf and returns both participants
// to Online.
func (c *Coordinator) EndChat(ctx context.Context, userID, sessionID string) error {
	sess, err := c.chats.End(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	for _, id := range []string{sess.UserA, sess.UserB} {
		if c.states.Get(id).SessionID != sessionID {
			continue
		}
		if err := c.states.Transition(id, state.InChat, state.Online); err != nil {
			log.Printf("[coordinator] return %s to online after chat end: %v", id, err)
		}
	}
	return nil
}

// ArchiveChat sets or clears the archived flag on an ended session userID
// participates in.
func (c *Coordinator) ArchiveChat(ctx context.Context, userID, sessionID string, archived bool) error {
	return c.chats.Archive(ctx, sessionID, userID, archived)
}

// CreateSession opens (or returns the existing) durable session between two
// users without touching either user's live status. Used by the REST surface.
func (c *Coordinator) CreateSession(ctx context.Context, userA, userB string, typ store.ChatType) (*store.Session, error) {
	if !typ.Valid() {
		return nil, fault.New(fault.InvalidContent, "unknown chat type")
	}
	if userA == userB {
		return nil, fault.New(fault.InvalidContent, "cannot open a session with yourself")
	}
	return c.chats.Open(ctx, userA, userB, typ)
}

// Report files an abuse report against the partner in sessionID, attaching
// the buffered message tail as evidence.
func (c *Coordinator) Report(ctx context.Context, reporterID, sessionID, reason string) error {
	if !store.ValidReportReason(reason) {
		return fault.Newf(fault.InvalidContent, "unknown report reason %q", reason)
	}
	sess, err := c.chats.Get(ctx, sessionID, reporterID)
	if err != nil {
		return err
	}

	snapshot := c.chats.RecentSnapshot(sessionID)
	msgs := make([]store.ReportMessage, len(snapshot))
	for i, m := range snapshot {
		msgs[i] = store.ReportMessage{SenderID: m.From, Content: m.Text, Ts: m.Ts}
	}
	rep := &store.Report{
		ReporterID: reporterID,
		ReportedID: sess.Partner(reporterID),
		SessionID:  sessionID,
		Reason:     reason,
		Messages:   msgs,
		CreatedAt:  c.clk.Now(),
	}
	if err := c.store.Reports().Create(ctx, rep); err != nil {
		return fault.Wrap(fault.StorageFailure, "could not file report", err)
	}
	if c.moderation != nil {
		if err := c.moderation.ReportFiled(rep); err != nil {
			log.Printf("[coordinator] forward report to moderation: %v", err)
		}
	}
	return nil
}

// Disconnect tears down a user's live state when their last connection goes
// away: a searcher leaves the pool, a pending voter implicitly rejects, a
// chatting user's session ends, and the user lands Offline.
func (c *Coordinator) Disconnect(ctx context.Context, userID string) {
	switch c.states.Status(userID) {
	case state.Offline:
		return
	case state.Searching:
		c.pool.Remove(userID)
		if err := c.states.Transition(userID, state.Searching, state.Online); err != nil {
			log.Printf("[coordinator] disconnect %s from searching: %v", userID, err)
		}
	case state.Pending:
		if bal, ok := c.ballots.ByUser(userID); ok {
			if out, err := c.ballots.Abandon(bal.ID, userID); err == nil && out.Decided {
				c.resolveUnmatched(out.Ballot, false)
			}
		} else if err := c.states.Transition(userID, state.Pending, state.Online); err != nil {
			log.Printf("[coordinator] disconnect %s from pending: %v", userID, err)
		}
	case state.InChat:
		if snap := c.states.Get(userID); snap.SessionID != "" {
			if err := c.EndChat(ctx, userID, snap.SessionID); err != nil {
				log.Printf("[coordinator] end chat on disconnect of %s: %v", userID, err)
			}
		}
		if c.states.Status(userID) == state.InChat {
			c.states.Transition(userID, state.InChat, state.Online)
		}
	}

	if err := c.states.Transition(userID, state.Online, state.Offline); err != nil {
		log.Printf("[coordinator] disconnect %s: %v", userID, err)
	}
	if err := c.store.Users().UpdatePresence(ctx, userID, false, string(state.Offline), c.clk.Now()); err != nil {
		log.Printf("[coordinator] update presence for %s: %v", userID, err)
	}
	c.states.Forget(userID)
}
