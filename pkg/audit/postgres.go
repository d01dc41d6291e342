package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes each record as one row. Writes are synchronous;
// use it where durability matters more than request latency.
type PostgresSink struct {
	pool *pgxpool.Pool
}

const pgInsert = `
INSERT INTO audit_records
  (id, sequence, ts, caller_id, session_id, decision, block_reason,
   risk_score, risk_level, signature, signature_state, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// NewPostgresSink connects to dsn and pings the database.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: postgres ping: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) Write(ctx context.Context, rec *Record) error {
	payload, err := rec.CanonicalBytes()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgInsert,
		rec.ID, rec.Sequence, rec.Timestamp, rec.CallerID, rec.SessionID,
		string(rec.Decision), rec.BlockReason, rec.RiskScore,
		string(rec.RiskLevel), rec.Signature, string(rec.SignatureState),
		payload)
	if err != nil {
		return fmt.Errorf("audit: postgres insert: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
