package audit

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder finalizes audit records: it assigns identity and sequence,
// runs compliance checks, signs, and fans out to the configured sinks.
// Sink failures are logged, never propagated: audit delivery problems
// must not change request outcomes.
type Recorder struct {
	signer *Signer
	sinks  []Sink
	logger *zap.Logger
	seq    atomic.Uint64
}

// NewRecorder builds a recorder. signer may be keyless; records then go
// out marked unsigned. sinks may be empty.
func NewRecorder(signer *Signer, logger *zap.Logger, sinks ...Sink) *Recorder {
	if signer == nil {
		signer = NewSigner(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{signer: signer, sinks: sinks, logger: logger}
}

// Finalize completes the record in place and emits it. It always returns
// the record, even when signing or every sink fails.
func (r *Recorder) Finalize(ctx context.Context, rec *Record) *Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.Sequence = r.seq.Add(1)
	rec.Compliance = checkCompliance(rec)

	sig, err := r.signer.Sign(rec)
	switch {
	case err == nil:
		rec.Signature = sig
		rec.SignatureState = SignatureSigned
	case errors.Is(err, ErrNoSigningKey):
		rec.SignatureState = SignatureUnsigned
		r.logger.Warn("audit record emitted unsigned", zap.String("id", rec.ID))
	default:
		rec.SignatureState = SignatureUnsigned
		r.logger.Error("audit signing failed", zap.String("id", rec.ID), zap.Error(err))
	}

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, rec); err != nil {
			r.logger.Warn("audit sink write failed",
				zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return rec
}

// Verify checks a previously finalized record against the recorder's key.
func (r *Recorder) Verify(rec *Record) error {
	return r.signer.Verify(rec)
}

// Close shuts down all sinks, draining buffered writers.
func (r *Recorder) Close() error {
	var firstErr error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
