package graphql

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls to the API.
var ErrCircuitOpen = errors.New("graphql: circuit breaker is open")

// BreakerState is the state of the API circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets every call through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerHalfOpen lets probe calls through until enough succeed.
	BreakerHalfOpen
	// BreakerOpen rejects calls until the open timeout elapses.
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// minErrorRateSamples is the number of calls a window needs before its error
// rate can trip the breaker.
const minErrorRateSamples = 10

// BreakerSettings configures a Breaker. Zero values fall back to defaults.
type BreakerSettings struct {
	FailureThreshold   int
	SuccessThreshold   int
	OpenTimeout        time.Duration
	ErrorRateThreshold float64
	ErrorRateWindow    time.Duration
	// OnStateChange is called with the breaker lock released.
	OnStateChange func(from, to BreakerState)
}

// Breaker guards the GraphQL API. It trips after FailureThreshold
// consecutive failures or when the error rate of a tumbling window reaches
// ErrorRateThreshold. It is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	settings BreakerSettings
	now      func() time.Time

	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	windowStart    time.Time
	windowTotal    int
	windowFailures int
}

// NewBreaker returns a closed breaker.
func NewBreaker(s BreakerSettings) *Breaker {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold < 1 {
		s.SuccessThreshold = 2
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	b := &Breaker{settings: s, now: time.Now}
	b.windowStart = b.now()
	return b
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen while
// the breaker is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	from, to := b.advance()
	state := b.state
	b.mu.Unlock()
	b.notify(from, to)

	if state == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Success records a call that reached the API and got an answer.
func (b *Breaker) Success() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case BreakerClosed:
		b.failures = 0
		b.countWindow(false)
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
			b.resetWindow()
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// Failure records a call that could not reach the API or got a server error.
func (b *Breaker) Failure() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case BreakerClosed:
		b.failures++
		b.countWindow(true)
		if b.failures >= b.settings.FailureThreshold || b.errorRateExceeded() {
			b.trip()
		}
	case BreakerHalfOpen:
		b.trip()
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// State returns the current state, moving an expired open breaker to
// half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	from, to := b.advance()
	state := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return state
}

// advance must be called with the lock held.
func (b *Breaker) advance() (from, to BreakerState) {
	from = b.state
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) > b.settings.OpenTimeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return from, b.state
}

func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.successes = 0
	b.resetWindow()
}

func (b *Breaker) notify(from, to BreakerState) {
	if from != to && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(from, to)
	}
}

func (b *Breaker) countWindow(failed bool) {
	if b.settings.ErrorRateWindow <= 0 {
		return
	}
	if b.now().Sub(b.windowStart) > b.settings.ErrorRateWindow {
		b.resetWindow()
	}
	b.windowTotal++
	if failed {
		b.windowFailures++
	}
}

func (b *Breaker) resetWindow() {
	b.windowStart = b.now()
	b.windowTotal = 0
	b.windowFailures = 0
}

func (b *Breaker) errorRateExceeded() bool {
	if b.settings.ErrorRateThreshold <= 0 || b.settings.ErrorRateWindow <= 0 {
		return false
	}
	if b.windowTotal < minErrorRateSamples {
		return false
	}
	return float64(b.windowFailures)/float64(b.windowTotal) >= b.settings.ErrorRateThreshold
}
