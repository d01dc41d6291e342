// Package escalate sends borderline requests to a second, stronger
// classifier (the shadow agent). Escalation is advisory-up only: a shadow
// verdict can raise the block decision but never lower it, and every
// failure mode falls back to the pre-escalation decision.
package escalate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/karteekp20/aegisgate/pkg/resilience"
	"github.com/karteekp20/aegisgate/pkg/risk"
)

// State tracks one escalation's lifecycle, recorded for audit.
type State string

const (
	StateIdle       State = "IDLE"
	StateEvaluating State = "EVALUATING"
	StateEscalated  State = "ESCALATED"
	StateSkipped    State = "SKIPPED"
	StateDone       State = "DONE"
)

// Verdict is the shadow classifier's answer.
type Verdict struct {
	Malicious  bool    `json:"malicious"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Classifier is the shadow agent. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Decision records what escalation did to a request. State is the
// terminal machine state, DONE on every path once Evaluate returns; Path
// keeps the transitions for audit.
type Decision struct {
	State          State         `json:"state"`
	Path           []State       `json:"path,omitempty"`
	Ran            bool          `json:"ran"`
	Verdict        *Verdict      `json:"verdict,omitempty"`
	FallbackReason string        `json:"fallback_reason,omitempty"`
	Latency        time.Duration `json:"latency"`
}

func (d *Decision) step(s State) {
	d.State = s
	d.Path = append(d.Path, s)
}

// Skipped reports whether the classifier's verdict was never applied,
// either because escalation did not trigger or because the call fell back.
func (d *Decision) Skipped() bool {
	for _, s := range d.Path {
		if s == StateSkipped {
			return true
		}
	}
	return false
}

// Config tunes the escalator.
type Config struct {
	// Trigger escalates at or above this aggregate score (default 0.5).
	Trigger float64

	// RaiseAt is the shadow confidence required to raise a block
	// (default 0.7).
	RaiseAt float64

	// Timeout bounds one classification call (default 5s).
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Trigger == 0 {
		c.Trigger = 0.5
	}
	if c.RaiseAt == 0 {
		c.RaiseAt = 0.7
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

// Escalator wires the classifier behind the breaker and limiter so a
// slow or dead shadow agent cannot take the pipeline down with it.
type Escalator struct {
	cfg        Config
	classifier Classifier
	breaker    *resilience.CircuitBreaker
	limiter    *resilience.RateLimiter
	logger     *zap.Logger
}

// New assembles an escalator. breaker and limiter may be nil, which
// disables that protection (tests mostly).
func New(cfg Config, classifier Classifier, breaker *resilience.CircuitBreaker, limiter *resilience.RateLimiter, logger *zap.Logger) *Escalator {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Escalator{
		cfg:        cfg,
		classifier: classifier,
		breaker:    breaker,
		limiter:    limiter,
		logger:     logger,
	}
}

// Evaluate decides whether to escalate and applies the verdict. The
// returned risk is never softer than the input risk.
func (e *Escalator) Evaluate(ctx context.Context, callerID, text string, agg risk.Aggregated) (risk.Aggregated, Decision) {
	var dec Decision
	dec.step(StateIdle)

	skip := func(reason string) (risk.Aggregated, Decision) {
		dec.FallbackReason = reason
		dec.step(StateSkipped)
		dec.step(StateDone)
		return agg, dec
	}

	if e.classifier == nil {
		return skip("no shadow classifier configured")
	}
	if agg.ShouldBlock {
		return skip("already blocked")
	}
	if agg.Score < e.cfg.Trigger {
		return skip(fmt.Sprintf("score %.2f below trigger %.2f", agg.Score, e.cfg.Trigger))
	}

	dec.step(StateEvaluating)
	start := time.Now()
	verdict, err := e.classify(ctx, callerID, text)
	dec.Latency = time.Since(start)

	if err != nil {
		e.logger.Warn("escalation fell back",
			zap.String("reason", fallbackReason(err)), zap.Error(err))
		return skip(fallbackReason(err))
	}

	dec.Ran = true
	dec.Verdict = &verdict
	dec.step(StateEscalated)

	if verdict.Malicious && verdict.Confidence >= e.cfg.RaiseAt {
		agg.ShouldBlock = true
		agg.BlockReason = "shadow agent verdict: " + verdict.Reason
		if verdict.Confidence > agg.Score {
			agg.Score = verdict.Confidence
		}
		agg.Level = risk.LevelFor(agg.Score)
	}
	// A benign verdict changes nothing: escalation raises, never lowers.

	dec.step(StateDone)
	return agg, dec
}

func (e *Escalator) classify(ctx context.Context, callerID, text string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Allow(ctx, callerID); err != nil {
			return Verdict{}, err
		}
	}

	var verdict Verdict
	call := func(ctx context.Context) error {
		v, err := e.classifier.Classify(ctx, text)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	}
	if e.breaker != nil {
		if err := e.breaker.Do(ctx, call); err != nil {
			return Verdict{}, err
		}
		return verdict, nil
	}
	if err := call(ctx); err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, resilience.ErrBreakerOpen):
		return "shadow agent circuit open"
	case errors.Is(err, resilience.ErrRateLimited):
		return "shadow agent rate limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "shadow agent timeout"
	default:
		return "shadow agent error: " + err.Error()
	}
}
