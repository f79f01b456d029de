// Package clock abstracts wall-clock reads and timer creation so that the
// coordinator's tick loops and ballot deadlines can be driven deterministically
// in tests. Production code uses the real clock; tests inject a Fake.
package clock

import "time"

// Clock provides the current time and cancellable timers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Timer
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is a one-shot timer created by AfterFunc.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// function from firing.
	Stop() bool
}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }
