package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/karteekp20/aegisgate/pkg/detect"
	"github.com/karteekp20/aegisgate/pkg/redact"
	"github.com/karteekp20/aegisgate/pkg/semantic"
)

// PIIPolicy decides what a high-confidence PII entity does to the
// request.
type PIIPolicy string

const (
	// PolicyDeny blocks the request when any retained entity reaches the
	// block threshold. The default.
	PolicyDeny PIIPolicy = "deny"

	// PolicyRedact sanitizes and forwards. Entities shape the weighted
	// stage score but never veto on their own.
	PolicyRedact PIIPolicy = "redact"
)

// InputConfig tunes the input guard.
type InputConfig struct {
	// BlockThreshold is the stage score at or above which the request is
	// vetoed before the agent runs (default 0.9).
	BlockThreshold float64

	// MinEntityConfidence drops merged entities below this confidence
	// (default 0.8).
	MinEntityConfidence float64

	// PIIRiskWeight scales the PII contribution to the weighted stage
	// score (default 0.6). The entity veto under PolicyDeny compares raw
	// confidence against BlockThreshold, not this weighted value.
	PIIRiskWeight float64

	// PIIPolicy selects the entity veto behavior (default PolicyDeny).
	PIIPolicy PIIPolicy
}

func (c *InputConfig) applyDefaults() {
	if c.BlockThreshold == 0 {
		c.BlockThreshold = 0.9
	}
	if c.MinEntityConfidence == 0 {
		c.MinEntityConfidence = 0.8
	}
	if c.PIIRiskWeight == 0 {
		c.PIIRiskWeight = 0.6
	}
	if c.PIIPolicy == "" {
		c.PIIPolicy = PolicyDeny
	}
}

// InputGuard inspects the raw request before the agent sees it.
type InputGuard struct {
	cfg       InputConfig
	detectors []detect.Detector
	injection *detect.PatternDetector
	scorer    semantic.Scorer
	redactor  *redact.Redactor
	logger    *zap.Logger
}

// NewInputGuard assembles the input stage. detectors are the PII entity
// detectors (pattern, optionally NER); scorer may be nil to run
// rules-only.
func NewInputGuard(cfg InputConfig, detectors []detect.Detector, scorer semantic.Scorer, redactor *redact.Redactor, logger *zap.Logger) *InputGuard {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if redactor == nil {
		redactor = redact.MustNew(redact.StrategyTokenize, nil)
	}
	return &InputGuard{
		cfg:       cfg,
		detectors: detectors,
		injection: detect.NewInjectionDetector(),
		scorer:    scorer,
		redactor:  redactor,
		logger:    logger,
	}
}

// Inspect analyzes the request text. The stage score is the max of the
// injection signal and the weighted PII signal; detector failures degrade
// the result instead of erroring out.
func (g *InputGuard) Inspect(ctx context.Context, text string) Result {
	start := time.Now()
	res := Result{Stage: StageInput}

	norm := detect.Normalize(text)

	// Entity detection (PII + credentials).
	var entities []detect.ThreatEntity
	for _, d := range g.detectors {
		found, err := d.Detect(ctx, norm)
		if err != nil {
			res.Degraded = true
			g.logger.Warn("input detector degraded",
				zap.String("detector", d.Name()), zap.Error(err))
			continue
		}
		entities = append(entities, found...)
	}
	merged := detect.Merge(entities, g.cfg.MinEntityConfidence)
	res.Entities = merged

	// Injection signal: exact rules plus corpus similarity.
	injScore := 0.0
	injReason := ""
	injEntities, err := g.injection.Detect(ctx, norm)
	if err != nil {
		res.Degraded = true
		g.logger.Warn("injection rules degraded", zap.Error(err))
	} else if len(injEntities) > 0 {
		injScore = detect.MaxConfidence(injEntities)
		injReason = "injection pattern matched"
	}
	if g.scorer != nil {
		score, category, err := g.scorer.Score(ctx, norm)
		if err != nil {
			res.Degraded = true
			g.logger.Warn("semantic scorer degraded", zap.Error(err))
		} else if score > injScore {
			injScore = score
			injReason = fmt.Sprintf("semantic similarity to %s corpus", category)
		}
	}

	piiScore := detect.MaxConfidence(merged) * g.cfg.PIIRiskWeight

	res.Score = injScore
	res.Reason = injReason
	if piiScore > res.Score {
		res.Score = piiScore
		res.Reason = "sensitive entities detected"
	}

	if res.Score >= g.cfg.BlockThreshold {
		res.ShouldBlock = true
	}
	if !res.ShouldBlock && g.cfg.PIIPolicy == PolicyDeny {
		if detect.MaxConfidence(merged) >= g.cfg.BlockThreshold {
			res.ShouldBlock = true
			res.Reason = "sensitive entity over deny threshold"
		}
	}

	sanitized, err := g.redactor.Apply(norm, merged)
	if err != nil {
		// Redaction failure must not forward raw PII. Fall back to
		// tokenization, which cannot fail.
		g.logger.Error("redaction failed, tokenizing", zap.Error(err))
		sanitized, _ = redact.MustNew(redact.StrategyTokenize, nil).Apply(norm, merged)
		res.Degraded = true
	}
	res.SanitizedText = sanitized
	res.Latency = time.Since(start)
	return res
}
