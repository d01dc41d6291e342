package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned when either admission check refuses the call.
var ErrRateLimited = errors.New("rate limited")

// WindowCounter counts events per key over a sliding window. Implemented
// in-memory for single-process deployments and on Redis for fleets.
type WindowCounter interface {
	// Incr records one event for key and returns the count of events
	// inside the trailing window, including this one.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// LimiterConfig tunes the rate limiter.
type LimiterConfig struct {
	// BucketCapacity is the burst size of the token bucket (default 10).
	BucketCapacity float64

	// RefillPerSecond is the bucket's sustained rate (default 2).
	RefillPerSecond float64

	// WindowMax caps events per key inside Window (default 60).
	WindowMax int64

	// Window is the sliding window span (default 1m).
	Window time.Duration
}

func (c *LimiterConfig) applyDefaults() {
	if c.BucketCapacity == 0 {
		c.BucketCapacity = 10
	}
	if c.RefillPerSecond == 0 {
		c.RefillPerSecond = 2
	}
	if c.WindowMax == 0 {
		c.WindowMax = 60
	}
	if c.Window == 0 {
		c.Window = time.Minute
	}
}

// RateLimiter admits a call only when BOTH checks pass: the process-wide
// token bucket (burst control) and the per-key sliding window (sustained
// volume control). Two mechanisms because they fail differently: the
// bucket absorbs spikes, the window catches slow sustained abuse that
// refills would forgive.
type RateLimiter struct {
	mu     sync.Mutex
	cfg    LimiterConfig
	tokens float64
	last   time.Time
	window WindowCounter

	now func() time.Time
}

// NewRateLimiter creates a limiter. A nil counter gets an in-memory one.
func NewRateLimiter(cfg LimiterConfig, counter WindowCounter) *RateLimiter {
	cfg.applyDefaults()
	if counter == nil {
		counter = NewMemoryWindow()
	}
	return &RateLimiter{
		cfg:    cfg,
		tokens: cfg.BucketCapacity,
		last:   time.Now(),
		window: counter,
		now:    time.Now,
	}
}

// Allow admits or refuses one call for key. A window counter error is
// returned as-is so callers can decide between failing open and closed.
// A call the window refuses returns its bucket token, so refused callers
// are not double-charged.
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	if !l.takeToken() {
		return fmt.Errorf("%w: token bucket empty", ErrRateLimited)
	}
	n, err := l.window.Incr(ctx, key, l.cfg.Window)
	if err != nil {
		l.refundToken()
		return fmt.Errorf("window counter: %w", err)
	}
	if n > l.cfg.WindowMax {
		l.refundToken()
		return fmt.Errorf("%w: %d calls in window (max %d)", ErrRateLimited, n, l.cfg.WindowMax)
	}
	return nil
}

func (l *RateLimiter) takeToken() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.cfg.RefillPerSecond
		if l.tokens > l.cfg.BucketCapacity {
			l.tokens = l.cfg.BucketCapacity
		}
		l.last = now
	}
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

func (l *RateLimiter) refundToken() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens++
	if l.tokens > l.cfg.BucketCapacity {
		l.tokens = l.cfg.BucketCapacity
	}
}

// MemoryWindow is the in-process WindowCounter.
type MemoryWindow struct {
	mu     sync.Mutex
	events map[string][]time.Time

	now func() time.Time
}

// NewMemoryWindow creates an empty in-memory counter.
func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Incr implements WindowCounter.
func (w *MemoryWindow) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-window)
	kept := w.events[key][:0]
	for _, t := range w.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.events[key] = kept
	return int64(len(kept)), nil
}
