package errors

import (
	stdErrors "errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Breaker.Allow while calls are refused.
var ErrCircuitOpen = stdErrors.New("circuit breaker is open")

// BreakerState is the position of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerOptions tunes a Breaker. Zero fields take the defaults below.
type BreakerOptions struct {
	// FailureRatio trips the breaker once MinCalls outcomes are recorded.
	FailureRatio float64
	MinCalls     int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Probes successful half-open calls close the breaker again.
	Probes int
}

// Breaker stops calls to a failing dependency for a cooldown, then lets a
// few probes through before closing again.
type Breaker struct {
	opts BreakerOptions
	now  func() time.Time

	mu       sync.Mutex
	state    BreakerState
	calls    int
	failures int
	inFlight int
	openedAt time.Time
}

// NewBreaker builds a closed Breaker.
func NewBreaker(opts BreakerOptions) *Breaker {
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = 0.5
	}
	if opts.MinCalls <= 0 {
		opts.MinCalls = 10
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Probes <= 0 {
		opts.Probes = 3
	}

	return &Breaker{opts: opts, now: time.Now}
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by exactly one Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.opts.Cooldown {
			return ErrCircuitOpen
		}
		b.reset(BreakerHalfOpen)
	}

	if b.state == BreakerHalfOpen {
		if b.inFlight+b.calls >= b.opts.Probes {
			return ErrCircuitOpen
		}
		b.inFlight++
	}

	return nil
}

// Record feeds the outcome of an allowed call.
func (b *Breaker) Record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		if b.inFlight > 0 {
			b.inFlight--
		}
		if !ok {
			b.trip()
			return
		}
		b.calls++
		if b.calls >= b.opts.Probes {
			b.reset(BreakerClosed)
		}

	case BreakerClosed:
		b.calls++
		if !ok {
			b.failures++
		}
		if b.calls >= b.opts.MinCalls && float64(b.failures)/float64(b.calls) >= b.opts.FailureRatio {
			b.trip()
		}
	}
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) trip() {
	b.reset(BreakerOpen)
	b.openedAt = b.now()
}

func (b *Breaker) reset(state BreakerState) {
	b.state = state
	b.calls = 0
	b.failures = 0
	b.inFlight = 0
}
