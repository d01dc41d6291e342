package audit

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	chBufferSize    = 1024
	chFlushInterval = 100 * time.Millisecond
	chFlushBatch    = 256
	chDrainTimeout  = 2 * time.Second
	chPreviewLen    = 256
)

// ClickHouseSink batch-inserts audit records in a background goroutine.
// Write is non-blocking and drops the record when the buffer is full:
// analytics lag is acceptable, request latency is not. For compliance-
// grade durability pair it with PostgresSink.
//
// The sink stores a truncated sanitized preview, never the raw input, so
// the analytics store does not become a PII copy.
type ClickHouseSink struct {
	conn    driver.Conn
	buffer  chan *Record
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseSink connects to dsn and starts the flush loop.
func NewClickHouseSink(dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: clickhouse connect: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("audit: clickhouse ping: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ClickHouseSink{
		conn:    conn,
		buffer:  make(chan *Record, chBufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go s.flushLoop()
	return s, nil
}

// Write queues the record. It never blocks the caller.
func (s *ClickHouseSink) Write(_ context.Context, rec *Record) error {
	select {
	case s.buffer <- rec:
		return nil
	default:
		s.logger.Warn("clickhouse audit buffer full, dropping record",
			zap.String("id", rec.ID))
		return nil
	}
}

// Close drains buffered records and stops the flush loop.
func (s *ClickHouseSink) Close() error {
	close(s.done)
	<-s.flushed
	return s.conn.Close()
}

func (s *ClickHouseSink) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(chFlushInterval)
	defer ticker.Stop()

	batch := make([]*Record, 0, chFlushBatch)

	for {
		select {
		case rec := <-s.buffer:
			batch = append(batch, rec)
			if len(batch) >= chFlushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), chDrainTimeout)
			defer cancel()
		drain:
			for {
				select {
				case rec := <-s.buffer:
					batch = append(batch, rec)
				case <-drainCtx.Done():
					break drain
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *ClickHouseSink) flush(records []*Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO audit_records (
			id, sequence, ts, caller_id, session_id,
			decision, block_reason, risk_score, risk_level,
			output_preview, signature_state
		)
	`)
	if err != nil {
		s.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, rec := range records {
		if err := batch.Append(
			rec.ID,
			rec.Sequence,
			rec.Timestamp,
			rec.CallerID,
			rec.SessionID,
			string(rec.Decision),
			rec.BlockReason,
			rec.RiskScore,
			string(rec.RiskLevel),
			preview(rec.Output),
			string(rec.SignatureState),
		); err != nil {
			s.logger.Error("clickhouse append failed",
				zap.String("id", rec.ID), zap.Error(err))
		}
	}

	if err := batch.Send(); err != nil {
		s.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(records)), zap.Error(err))
	}
}

// preview truncates on a rune boundary so the stored row stays valid
// UTF-8.
func preview(text string) string {
	if len(text) <= chPreviewLen {
		return text
	}
	cut := chPreviewLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
