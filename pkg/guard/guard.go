// Package guard implements the per-stage inspections of the pipeline:
// the input guard (PII + injection on the request) and the output guard
// (PII + leaks on the agent response). Each stage produces a GuardResult;
// the risk aggregator combines them.
package guard

import (
	"time"

	"github.com/karteekp20/aegisgate/pkg/detect"
)

// Stage names the pipeline stage a result belongs to.
type Stage string

const (
	StageInput  Stage = "input_guard"
	StageState  Stage = "state_monitor"
	StageOutput Stage = "output_guard"
)

// Result is the outcome of one stage inspection.
type Result struct {
	Stage Stage `json:"stage"`

	// Score is the stage risk in [0,1].
	Score float64 `json:"score"`

	// ShouldBlock is this stage's veto. A stage veto is absolute: the
	// aggregator never overrides it downward.
	ShouldBlock bool   `json:"should_block"`
	Reason      string `json:"reason,omitempty"`

	// Entities are the merged findings that produced the score.
	Entities []detect.ThreatEntity `json:"entities,omitempty"`

	// SanitizedText is the redacted text to forward.
	SanitizedText string `json:"-"`

	// Degraded is set when a detector failed and its signal is missing.
	// A degraded result still flows through aggregation; it just carries
	// less evidence. Degradation alone never blocks.
	Degraded bool `json:"degraded,omitempty"`

	Latency time.Duration `json:"latency,omitempty"`
}
