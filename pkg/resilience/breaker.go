// Package resilience provides the failure-isolation primitives wrapped
// around external calls: a circuit breaker and a dual-check rate limiter.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned without invoking the wrapped call while the
// breaker is open or a half-open trial is already in flight.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerState is the breaker's position.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold opens the breaker after this many consecutive
	// failures (default 5).
	FailureThreshold int

	// Cooldown is how long the breaker stays open before allowing a
	// single half-open trial (default 30s).
	Cooldown time.Duration
}

func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Second
	}
}

// CircuitBreaker fails fast once a dependency is known-bad. Closed passes
// everything through; open rejects immediately; after the cooldown exactly
// one trial call probes the dependency, and its outcome snaps the breaker
// closed or open again.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time // injectable clock
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// State returns the current position, accounting for cooldown expiry.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Do runs fn through the breaker. While open, Do returns ErrBreakerOpen
// without calling fn. ctx cancellation before the call counts as a
// caller-side error, not a dependency failure.
func (b *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.settle(err)
	return err
}

func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrBreakerOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

func (b *CircuitBreaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	probe := b.state == StateHalfOpen
	b.probing = false

	if err == nil {
		b.state = StateClosed
		b.failures = 0
		return
	}

	if probe {
		// Failed trial reopens for a full cooldown.
		b.state = StateOpen
		b.openedAt = b.now()
		return
	}

	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}
