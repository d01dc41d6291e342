package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/karteekp20/aegisgate/pkg/detect"
	"github.com/karteekp20/aegisgate/pkg/redact"
)

// OutputConfig tunes the output guard.
type OutputConfig struct {
	// BlockThreshold is the stage score at or above which the response is
	// withheld (default 0.9).
	BlockThreshold float64

	// MinEntityConfidence drops merged entities below this confidence
	// (default 0.8).
	MinEntityConfidence float64

	// PIIRiskWeight scales the PII contribution, mirroring the input
	// guard (default 0.6). Leak hits are not weighted; they veto.
	PIIRiskWeight float64
}

func (c *OutputConfig) applyDefaults() {
	if c.BlockThreshold == 0 {
		c.BlockThreshold = 0.9
	}
	if c.MinEntityConfidence == 0 {
		c.MinEntityConfidence = 0.8
	}
	if c.PIIRiskWeight == 0 {
		c.PIIRiskWeight = 0.6
	}
}

// OutputGuard inspects the agent response before it reaches the caller.
// Any leak finding is an unconditional veto: a response that echoes the
// system prompt or another user's data never ships, whatever the rest of
// the pipeline thinks.
type OutputGuard struct {
	cfg       OutputConfig
	detectors []detect.Detector
	leaks     *detect.PatternDetector
	redactor  *redact.Redactor
	logger    *zap.Logger
}

// NewOutputGuard assembles the output stage.
func NewOutputGuard(cfg OutputConfig, detectors []detect.Detector, redactor *redact.Redactor, logger *zap.Logger) *OutputGuard {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if redactor == nil {
		redactor = redact.MustNew(redact.StrategyTokenize, nil)
	}
	return &OutputGuard{
		cfg:       cfg,
		detectors: detectors,
		leaks:     detect.NewLeakDetector(),
		redactor:  redactor,
		logger:    logger,
	}
}

// Inspect analyzes the agent response.
func (g *OutputGuard) Inspect(ctx context.Context, text string) Result {
	start := time.Now()
	res := Result{Stage: StageOutput}

	norm := detect.Normalize(text)

	var entities []detect.ThreatEntity
	for _, d := range g.detectors {
		found, err := d.Detect(ctx, norm)
		if err != nil {
			res.Degraded = true
			g.logger.Warn("output detector degraded",
				zap.String("detector", d.Name()), zap.Error(err))
			continue
		}
		entities = append(entities, found...)
	}
	merged := detect.Merge(entities, g.cfg.MinEntityConfidence)
	res.Entities = merged

	res.Score = detect.MaxConfidence(merged) * g.cfg.PIIRiskWeight
	if res.Score > 0 {
		res.Reason = "sensitive entities in response"
	}

	leakEntities, err := g.leaks.Detect(ctx, norm)
	if err != nil {
		res.Degraded = true
		g.logger.Warn("leak rules degraded", zap.Error(err))
	} else if len(leakEntities) > 0 {
		res.ShouldBlock = true
		conf := detect.MaxConfidence(leakEntities)
		if conf > res.Score {
			res.Score = conf
		}
		res.Reason = fmt.Sprintf("leak detected (%d finding(s))", len(leakEntities))
	}

	if res.Score >= g.cfg.BlockThreshold {
		res.ShouldBlock = true
	}

	sanitized, err := g.redactor.Apply(norm, merged)
	if err != nil {
		g.logger.Error("output redaction failed, tokenizing", zap.Error(err))
		sanitized, _ = redact.MustNew(redact.StrategyTokenize, nil).Apply(norm, merged)
		res.Degraded = true
	}
	res.SanitizedText = sanitized
	res.Latency = time.Since(start)
	return res
}
