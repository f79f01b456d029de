package clock

import (
	"testing"
	"time"
)

func TestFake_AfterFuncFiresOnAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	fired := false
	f.AfterFunc(10*time.Second, func() { fired = true })

	f.Advance(9 * time.Second)
	if fired {
		t.Fatal("timer fired before its deadline")
	}

	f.Advance(1 * time.Second)
	if !fired {
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestFake_StoppedTimerNeverFires(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	fired := false
	timer := f.AfterFunc(5*time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop should report true for a pending timer")
	}
	f.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("second Stop should report false")
	}
}

func TestFake_TimersFireInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))

	var order []string
	f.AfterFunc(3*time.Second, func() { order = append(order, "b") })
	f.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	f.AfterFunc(5*time.Second, func() { order = append(order, "c") })

	f.Advance(10 * time.Second)

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("fired %d timers, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestFake_TimerSeesAdvancedNow(t *testing.T) {
	start := time.Unix(100, 0)
	f := NewFake(start)

	var at time.Time
	f.AfterFunc(30*time.Second, func() { at = f.Now() })

	f.Advance(time.Minute)

	if !at.Equal(start.Add(30 * time.Second)) {
		t.Errorf("callback observed now=%v, want %v", at, start.Add(30*time.Second))
	}
	if !f.Now().Equal(start.Add(time.Minute)) {
		t.Errorf("final now=%v, want %v", f.Now(), start.Add(time.Minute))
	}
}

func TestFake_TickerDeliversTicks(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tk := f.NewTicker(3 * time.Second)

	f.Advance(3 * time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatal("expected a tick after one interval")
	}

	tk.Stop()
	f.Advance(time.Minute)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestReal_NowMonotonic(t *testing.T) {
	c := New()
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Fatalf("time went backwards: %v then %v", a, b)
	}
}
