package graphql

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(s BreakerSettings) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(s)
	b.now = clock.now
	b.windowStart = clock.now()
	return b, clock
}

func TestBreaker_startsClosed(t *testing.T) {
	b, _ := newTestBreaker(BreakerSettings{})
	if s := b.State(); s != BreakerClosed {
		t.Errorf("initial state = %v, want closed", s)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() error = %v", err)
	}
}

func TestBreaker_tripsAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerSettings{FailureThreshold: 3})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	if s := b.State(); s != BreakerClosed {
		t.Fatalf("state = %v, want closed after a success reset", s)
	}

	b.Failure()
	if s := b.State(); s != BreakerOpen {
		t.Fatalf("state = %v, want open", s)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() error = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_halfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(BreakerSettings{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})

	b.Failure()
	clock.advance(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after timeout error = %v", err)
	}
	if s := b.State(); s != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", s)
	}

	b.Success()
	if s := b.State(); s != BreakerHalfOpen {
		t.Errorf("state after 1 success = %v, want half-open", s)
	}
	b.Success()
	if s := b.State(); s != BreakerClosed {
		t.Errorf("state after 2 successes = %v, want closed", s)
	}
}

func TestBreaker_halfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(BreakerSettings{FailureThreshold: 1, OpenTimeout: time.Second})

	b.Failure()
	clock.advance(2 * time.Second)
	b.Allow()
	b.Failure()

	if s := b.State(); s != BreakerOpen {
		t.Errorf("state = %v, want open", s)
	}
}

func TestBreaker_errorRateTrips(t *testing.T) {
	b, _ := newTestBreaker(BreakerSettings{
		FailureThreshold:   100,
		ErrorRateThreshold: 0.5,
		ErrorRateWindow:    time.Minute,
	})

	for i := 0; i < 5; i++ {
		b.Success()
		b.Failure()
	}
	if s := b.State(); s != BreakerOpen {
		t.Errorf("state = %v, want open at 50%% error rate", s)
	}
}

func TestBreaker_errorRateNeedsSamples(t *testing.T) {
	b, _ := newTestBreaker(BreakerSettings{
		FailureThreshold:   100,
		ErrorRateThreshold: 0.5,
		ErrorRateWindow:    time.Minute,
	})

	b.Failure()
	b.Failure()
	if s := b.State(); s != BreakerClosed {
		t.Errorf("state = %v, want closed below the sample minimum", s)
	}
}

func TestBreaker_errorRateWindowExpires(t *testing.T) {
	b, clock := newTestBreaker(BreakerSettings{
		FailureThreshold:   100,
		ErrorRateThreshold: 0.5,
		ErrorRateWindow:    time.Minute,
	})

	for i := 0; i < 4; i++ {
		b.Success()
	}
	for i := 0; i < 5; i++ {
		b.Failure()
	}
	clock.advance(2 * time.Minute)
	b.Failure()
	if s := b.State(); s != BreakerClosed {
		t.Errorf("state = %v, want closed once the window rolled over", s)
	}
}

func TestBreaker_onStateChange(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(BreakerSettings{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	b.Failure()
	clock.advance(2 * time.Second)
	b.Allow()
	b.Success()

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestBreakerState_String(t *testing.T) {
	if BreakerState(42).String() != "unknown" {
		t.Error("unknown state should stringify as unknown")
	}
}
