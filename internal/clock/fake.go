package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Timers and tickers fire
// synchronously from Advance, in deadline order, so a test that advances past
// a ballot TTL observes the expiry before Advance returns.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFake returns a Fake clock frozen at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d, firing every timer and ticker whose
// deadline falls within the window, in chronological order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		fn := f.nextDue(target)
		if fn == nil {
			break
		}
		fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

// nextDue finds the earliest pending timer or ticker due at or before target,
// advances the clock to its deadline, and returns a closure that fires it.
// Returns nil when nothing is due.
func (f *Fake) nextDue(target time.Time) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		bestAt     time.Time
		bestTimer  *fakeTimer
		bestTicker *fakeTicker
	)

	sort.Slice(f.timers, func(i, j int) bool { return f.timers[i].at.Before(f.timers[j].at) })
	for _, t := range f.timers {
		if t.stopped || t.at.After(target) {
			continue
		}
		bestAt, bestTimer = t.at, t
		break
	}
	for _, tk := range f.tickers {
		if tk.stopped || tk.next.After(target) {
			continue
		}
		if bestTimer == nil && bestTicker == nil || tk.next.Before(bestAt) {
			bestAt, bestTimer, bestTicker = tk.next, nil, tk
		}
	}

	switch {
	case bestTimer != nil:
		bestTimer.stopped = true
		f.now = bestAt
		fn := bestTimer.fn
		return fn
	case bestTicker != nil:
		tick := bestTicker.next
		bestTicker.next = tick.Add(bestTicker.interval)
		f.now = tick
		ch := bestTicker.ch
		return func() {
			// Non-blocking, like time.Ticker: a slow receiver drops ticks.
			select {
			case ch <- tick:
			default:
			}
		}
	default:
		return nil
	}
}

// NewTicker creates a ticker that fires on Advance.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	tk := &fakeTicker{
		interval: d,
		next:     f.now.Add(d),
		ch:       make(chan time.Time, 1),
		clock:    f,
	}
	f.tickers = append(f.tickers, tk)
	return tk
}

// AfterFunc schedules f to run when the clock is advanced past d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{at: f.now.Add(d), fn: fn, clock: f}
	f.timers = append(f.timers, t)
	return t
}

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	clock   *Fake
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeTicker struct {
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
	clock    *Fake
}

func (tk *fakeTicker) C() <-chan time.Time { return tk.ch }

func (tk *fakeTicker) Stop() {
	tk.clock.mu.Lock()
	defer tk.clock.mu.Unlock()
	tk.stopped = true
}
