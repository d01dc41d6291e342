package httputil

import (
	"context"
	"sync/atomic"
)

// Semaphore caps concurrent outbound calls. The escalation path holds a
// slot for the duration of each shadow-agent request so a slow upstream
// cannot pile up goroutines.
type Semaphore struct {
	slots   chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore. capacity <= 0 defaults to 100.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 100
	}
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

// Acquire blocks for a slot until the context ends.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking. A false return is counted as
// a drop for backpressure monitoring.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}

// Stats reports the semaphore state for the health endpoint.
type Stats struct {
	Capacity int   `json:"capacity"`
	InUse    int   `json:"in_use"`
	Dropped  int64 `json:"dropped"`
}

func (s *Semaphore) Stats() Stats {
	return Stats{
		Capacity: cap(s.slots),
		InUse:    len(s.slots),
		Dropped:  s.dropped.Load(),
	}
}
