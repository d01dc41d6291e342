package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("dependency down")

func failing(context.Context) error { return errDown }
func succeeding(context.Context) error { return nil }

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	b := NewCircuitBreaker(BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown})
	clock := time.Unix(1000, 0)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, failing); !errors.Is(err, errDown) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	// Fail fast: the wrapped call must not run.
	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if called {
		t.Error("open breaker invoked the call")
	}
}

func TestBreaker_SingleHalfOpenTrial(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("state = %s", b.State())
	}

	*clock = clock.Add(2 * time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("state after cooldown = %s", b.State())
	}

	// First admission probes; a concurrent second is rejected.
	if err := b.admit(); err != nil {
		t.Fatalf("trial admission refused: %v", err)
	}
	if err := b.admit(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("second trial admitted: %v", err)
	}
	b.settle(nil)

	if b.State() != StateClosed {
		t.Errorf("successful trial left state %s", b.State())
	}
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, failing)
	*clock = clock.Add(2 * time.Minute)

	if err := b.Do(ctx, failing); !errors.Is(err, errDown) {
		t.Fatalf("trial err = %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("failed trial left state %s", b.State())
	}

	// Back to fail-fast for a fresh cooldown.
	if err := b.Do(ctx, succeeding); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, succeeding)
	_ = b.Do(ctx, failing)
	_ = b.Do(ctx, failing)

	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed (failures interleaved with success)", b.State())
	}
}

func TestBreaker_ContextCancelled(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Do(ctx, succeeding); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("cancellation moved breaker to %s", b.State())
	}
}
