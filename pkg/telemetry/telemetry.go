// Package telemetry holds the process logger and the pipeline counters.
package telemetry

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the production logger at the given level ("debug",
// "info", "warn", "error"). An empty level means info.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("telemetry: parse log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("telemetry: build logger: %w", err)
	}
	return logger, nil
}

// Counters are the pipeline's cheap in-process metrics, exposed on the
// health endpoint.
type Counters struct {
	evaluated atomic.Uint64
	blocked   atomic.Uint64
	degraded  atomic.Uint64
	escalated atomic.Uint64
}

func (c *Counters) Evaluated() { c.evaluated.Add(1) }
func (c *Counters) Blocked()   { c.blocked.Add(1) }
func (c *Counters) Degraded()  { c.degraded.Add(1) }
func (c *Counters) Escalated() { c.escalated.Add(1) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"evaluated": c.evaluated.Load(),
		"blocked":   c.blocked.Load(),
		"degraded":  c.degraded.Load(),
		"escalated": c.escalated.Load(),
	}
}
