// Package risk folds per-stage guard results into one decision.
package risk

import (
	"github.com/karteekp20/aegisgate/pkg/guard"
)

// Level buckets an aggregate score for reporting.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Fixed level thresholds. These are reporting buckets, not tunables; the
// blocking decision uses Config.BlockThreshold.
const (
	criticalAt = 0.9
	highAt     = 0.7
	mediumAt   = 0.4
)

// Weights distributes stage influence over the aggregate. Defaults weigh
// the guards at 0.4 each and the state monitor at 0.2.
type Weights struct {
	Input  float64
	State  float64
	Output float64
}

// DefaultWeights returns the standard 0.4/0.2/0.4 split.
func DefaultWeights() Weights {
	return Weights{Input: 0.4, State: 0.2, Output: 0.4}
}

// Config tunes aggregation.
type Config struct {
	Weights Weights

	// BlockThreshold blocks at or above this aggregate score
	// (default 0.9).
	BlockThreshold float64
}

func (c *Config) applyDefaults() {
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.BlockThreshold == 0 {
		c.BlockThreshold = 0.9
	}
}

// Aggregated is the combined risk decision for a request.
type Aggregated struct {
	Score       float64        `json:"score"`
	Level       Level          `json:"level"`
	ShouldBlock bool           `json:"should_block"`
	BlockReason string         `json:"block_reason,omitempty"`
	Stages      []guard.Result `json:"stages"`
	Degraded    bool           `json:"degraded,omitempty"`
}

// Aggregate combines stage results. The score is the weighted sum of
// stage scores; a stage veto blocks regardless of the weighted score and
// is never overridden. Missing stages simply contribute nothing.
func Aggregate(stages []guard.Result, cfg Config) Aggregated {
	cfg.applyDefaults()

	agg := Aggregated{Stages: stages}
	for _, s := range stages {
		agg.Score += stageWeight(s.Stage, cfg.Weights) * clamp01(s.Score)
		if s.Degraded {
			agg.Degraded = true
		}
		if s.ShouldBlock && !agg.ShouldBlock {
			agg.ShouldBlock = true
			agg.BlockReason = string(s.Stage) + " veto: " + s.Reason
		}
	}
	agg.Score = clamp01(agg.Score)

	if !agg.ShouldBlock && agg.Score >= cfg.BlockThreshold {
		agg.ShouldBlock = true
		agg.BlockReason = "aggregate risk at block threshold"
	}

	// The level reports the weighted score only. A veto carries the block
	// decision itself; it does not reclassify a low-scoring request.
	agg.Level = LevelFor(agg.Score)
	return agg
}

// LevelFor buckets a score.
func LevelFor(score float64) Level {
	switch {
	case score >= criticalAt:
		return LevelCritical
	case score >= highAt:
		return LevelHigh
	case score >= mediumAt:
		return LevelMedium
	default:
		return LevelLow
	}
}

func stageWeight(s guard.Stage, w Weights) float64 {
	switch s {
	case guard.StageInput:
		return w.Input
	case guard.StageState:
		return w.State
	case guard.StageOutput:
		return w.Output
	default:
		return 0
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
