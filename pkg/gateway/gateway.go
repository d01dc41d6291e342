// Package gateway orchestrates the full evaluation pipeline: input guard,
// agent execution under the state monitor, output guard, risk
// aggregation, shadow-agent escalation, and audit. One Evaluate call is
// one request.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karteekp20/aegisgate/pkg/audit"
	"github.com/karteekp20/aegisgate/pkg/detect"
	"github.com/karteekp20/aegisgate/pkg/escalate"
	"github.com/karteekp20/aegisgate/pkg/guard"
	"github.com/karteekp20/aegisgate/pkg/monitor"
	"github.com/karteekp20/aegisgate/pkg/redact"
	"github.com/karteekp20/aegisgate/pkg/risk"
	"github.com/karteekp20/aegisgate/pkg/semantic"
	"github.com/karteekp20/aegisgate/pkg/telemetry"
)

// ErrInvalidInput rejects a request before the pipeline runs. Invalid
// requests are not audited: they never entered evaluation.
var ErrInvalidInput = errors.New("gateway: invalid input")

// MaxInputBytes bounds the request text.
const MaxInputBytes = 1 << 20

// Request is one inbound evaluation request.
type Request struct {
	ID        string            `json:"id,omitempty"`
	Text      string            `json:"text"`
	CallerID  string            `json:"caller_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Result is the pipeline's answer for one request.
type Result struct {
	RequestID   string             `json:"request_id"`
	Allowed     bool               `json:"allowed"`
	Response    string             `json:"response,omitempty"`
	BlockReason string             `json:"block_reason,omitempty"`
	Risk        risk.Aggregated    `json:"risk"`
	Escalation  escalate.Decision  `json:"escalation"`
	Audit       *audit.Record      `json:"-"`
	Violation   *monitor.Violation `json:"violation,omitempty"`
}

// AgentExecutor runs the protected agent on the sanitized input. The
// executor must report every tool invocation through report and stop
// when report returns an error.
type AgentExecutor func(ctx context.Context, sanitized string, report monitor.ReportFunc) (string, error)

// Config tunes the whole pipeline.
type Config struct {
	Input   guard.InputConfig
	Output  guard.OutputConfig
	Monitor monitor.Config
	Risk    risk.Config
}

// Options carries the optional collaborators. Zero values get safe
// defaults: tokenizing redactor, log-only audit, no escalation.
type Options struct {
	// Scorer adds corpus similarity to the input guard. Nil runs
	// rules-only.
	Scorer semantic.Scorer

	// Redactor overrides the default tokenize strategy.
	Redactor *redact.Redactor

	// ExtraDetectors run alongside the pattern detector on both guards
	// (NER, typically).
	ExtraDetectors []detect.Detector

	// Escalator sends borderline requests to the shadow agent. Nil
	// disables escalation.
	Escalator *escalate.Escalator

	// Recorder finalizes audit records. Nil gets a log-only, unsigned
	// recorder.
	Recorder *audit.Recorder

	Logger   *zap.Logger
	Counters *telemetry.Counters
}

// Pipeline evaluates requests. Safe for concurrent use; per-request
// state (the monitor) is created inside Evaluate.
type Pipeline struct {
	cfg       Config
	input     *guard.InputGuard
	output    *guard.OutputGuard
	escalator *escalate.Escalator
	recorder  *audit.Recorder
	executor  AgentExecutor
	logger    *zap.Logger
	counters  *telemetry.Counters
}

// New assembles a pipeline around the given executor.
func New(cfg Config, executor AgentExecutor, opts Options) (*Pipeline, error) {
	if executor == nil {
		return nil, errors.New("gateway: executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = audit.NewRecorder(audit.NewSigner(nil), logger, audit.NewLogSink(logger))
	}
	counters := opts.Counters
	if counters == nil {
		counters = &telemetry.Counters{}
	}

	detectors := append([]detect.Detector{detect.NewPIIDetector()}, opts.ExtraDetectors...)

	return &Pipeline{
		cfg:       cfg,
		input:     guard.NewInputGuard(cfg.Input, detectors, opts.Scorer, opts.Redactor, logger),
		output:    guard.NewOutputGuard(cfg.Output, detectors, opts.Redactor, logger),
		escalator: opts.Escalator,
		recorder:  recorder,
		executor:  executor,
		logger:    logger,
		counters:  counters,
	}, nil
}

// Evaluate runs the full pipeline for one request. Every evaluated
// request produces an audit record, including blocked and cancelled
// ones; only pre-pipeline validation failures (ErrInvalidInput) skip it.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	p.counters.Evaluated()

	// Stage 1: input guard. A veto here skips execution entirely.
	inputRes := p.input.Inspect(ctx, req.Text)
	if inputRes.ShouldBlock {
		return p.finish(ctx, req, nil, []guard.Result{inputRes}, "")
	}
	if err := ctx.Err(); err != nil {
		return p.cancelled(ctx, req, []guard.Result{inputRes}, err)
	}

	// Stage 2: agent execution under the state monitor.
	mon := monitor.New(p.cfg.Monitor)
	response, execErr := p.executor(ctx, inputRes.SanitizedText, mon.Report())
	stages := []guard.Result{inputRes, mon.Result()}

	if execErr != nil {
		var violation *monitor.Violation
		switch {
		case errors.As(execErr, &violation):
			// The monitor tripped; its stage result carries the veto.
			// Keep going so the response fragment is still inspected.
		case ctx.Err() != nil:
			return p.cancelled(ctx, req, stages, ctx.Err())
		default:
			p.audit(ctx, req, stages, "", audit.DecisionError, risk.Aggregated{}, nil)
			return nil, fmt.Errorf("gateway: agent execution: %w", execErr)
		}
	}

	// Stage 3: output guard on whatever the agent produced.
	outputRes := p.output.Inspect(ctx, response)
	stages = append(stages, outputRes)
	if err := ctx.Err(); err != nil {
		return p.cancelled(ctx, req, stages, err)
	}

	return p.finish(ctx, req, mon.Violation(), stages, outputRes.SanitizedText)
}

// finish aggregates, escalates, audits and shapes the final result.
func (p *Pipeline) finish(ctx context.Context, req Request, violation *monitor.Violation, stages []guard.Result, sanitizedOut string) (*Result, error) {
	agg := risk.Aggregate(stages, p.cfg.Risk)

	var esc escalate.Decision
	if p.escalator != nil {
		agg, esc = p.escalator.Evaluate(ctx, req.CallerID, req.Text, agg)
		if esc.Ran {
			p.counters.Escalated()
		}
	}
	if agg.Degraded {
		p.counters.Degraded()
	}

	decision := audit.DecisionAllow
	if agg.ShouldBlock {
		decision = audit.DecisionBlock
		p.counters.Blocked()
	}
	rec := p.audit(ctx, req, stages, sanitizedOut, decision, agg, &esc)

	res := &Result{
		RequestID:  req.ID,
		Allowed:    !agg.ShouldBlock,
		Risk:       agg,
		Escalation: esc,
		Audit:      rec,
		Violation:  violation,
	}
	if agg.ShouldBlock {
		res.BlockReason = agg.BlockReason
	} else {
		res.Response = sanitizedOut
	}
	return res, nil
}

// cancelled audits the partial evaluation and surfaces the context error.
func (p *Pipeline) cancelled(ctx context.Context, req Request, stages []guard.Result, cause error) (*Result, error) {
	agg := risk.Aggregate(stages, p.cfg.Risk)
	rec := p.audit(ctx, req, stages, "", audit.DecisionCancelled, agg, nil)
	res := &Result{
		RequestID:   req.ID,
		Allowed:     false,
		BlockReason: "evaluation cancelled",
		Risk:        agg,
		Audit:       rec,
	}
	return res, cause
}

func (p *Pipeline) audit(ctx context.Context, req Request, stages []guard.Result, sanitizedOut string, decision audit.Decision, agg risk.Aggregated, esc *escalate.Decision) *audit.Record {
	rec := &audit.Record{
		ID:          req.ID,
		CallerID:    req.CallerID,
		SessionID:   req.SessionID,
		Decision:    decision,
		BlockReason: agg.BlockReason,
		RiskScore:   agg.Score,
		RiskLevel:   agg.Level,
		Stages:      stages,
		Input:       req.Text,
		Output:      sanitizedOut,
	}
	if rec.RiskLevel == "" {
		rec.RiskLevel = risk.LevelFor(agg.Score)
	}
	if esc != nil && esc.State != "" {
		rec.Escalation = esc
	}
	for _, s := range stages {
		if s.Stage == guard.StageState && s.Reason != "" {
			rec.Violations = append(rec.Violations, s.Reason)
		}
	}
	// Audit delivery must not be lost to the same cancellation it records.
	return p.recorder.Finalize(context.WithoutCancel(ctx), rec)
}

func validate(req Request) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	if len(req.Text) > MaxInputBytes {
		return fmt.Errorf("%w: text exceeds %d bytes", ErrInvalidInput, MaxInputBytes)
	}
	if !utf8.ValidString(req.Text) {
		return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}
	return nil
}
