package audit

import (
	"context"

	"go.uber.org/zap"
)

// Sink receives finalized audit records. Implementations must tolerate
// concurrent Write calls. Write should be fast; slow backends buffer
// internally rather than stalling the request path.
type Sink interface {
	Write(ctx context.Context, rec *Record) error
	Close() error
}

// LogSink writes records to the structured log. It is the default sink
// and the fallback when no durable backend is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(_ context.Context, rec *Record) error {
	s.logger.Info("audit",
		zap.String("id", rec.ID),
		zap.Uint64("sequence", rec.Sequence),
		zap.String("caller_id", rec.CallerID),
		zap.String("decision", string(rec.Decision)),
		zap.String("block_reason", rec.BlockReason),
		zap.Float64("risk_score", rec.RiskScore),
		zap.String("risk_level", string(rec.RiskLevel)),
		zap.String("signature_state", string(rec.SignatureState)),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
