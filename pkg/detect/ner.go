package detect

// ner.go - Contextual PII detection via local token classification.
//
// Pattern rules cannot find names, places or organizations; a small NER
// model can. Inference runs fully local through ONNX and is strictly
// opt-in: without a model on disk the detector reports not-ready and the
// pipeline degrades to pattern-only detection.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"

	"github.com/karteekp20/aegisgate/pkg/patterns"
)

// NERConfig configures the contextual detector.
type NERConfig struct {
	// ModelPath is the local path to the ONNX model directory.
	ModelPath string

	// OnnxLibraryPath is the path to libonnxruntime.so. Empty means the
	// pure Go backend (slower, no native dependency).
	OnnxLibraryPath string

	// MinScore drops model entities below this confidence (default 0.6).
	MinScore float64

	// Timeout bounds a single inference call (default 10s).
	Timeout time.Duration
}

// DefaultNERConfig resolves the model location from the environment.
func DefaultNERConfig() NERConfig {
	path := os.Getenv("AEGIS_NER_MODEL_PATH")
	if path == "" {
		path = "./models/ner"
	}
	return NERConfig{
		ModelPath:       path,
		OnnxLibraryPath: defaultOnnxPath(),
		MinScore:        0.6,
		Timeout:         10 * time.Second,
	}
}

func defaultOnnxPath() string {
	paths := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Dir(p)
		}
	}
	return ""
}

// NERDetector finds person, location and organization spans with a local
// token-classification model.
type NERDetector struct {
	mu       sync.RWMutex
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
	cfg      NERConfig
	logger   *zap.Logger
	ready    bool
}

// NewNERDetector initializes the model session. Returns an error when the
// model cannot be loaded; use NewNERDetectorWithFallback for a detector
// that degrades instead.
func NewNERDetector(cfg NERConfig, logger *zap.Logger) (*NERDetector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = 0.6
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := &NERDetector{cfg: cfg, logger: logger}
	if err := d.initialize(); err != nil {
		return nil, fmt.Errorf("ner initialization failed: %w", err)
	}
	return d, nil
}

// NewNERDetectorWithFallback returns a detector even when initialization
// fails; it stays not-ready and Detect reports an error, which the guards
// treat as a degraded (non-blocking) signal.
func NewNERDetectorWithFallback(cfg NERConfig, logger *zap.Logger) *NERDetector {
	d, err := NewNERDetector(cfg, logger)
	if err != nil {
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Warn("ner detector unavailable, pattern-only detection", zap.Error(err))
		return &NERDetector{cfg: cfg, logger: logger}
	}
	return d
}

func (d *NERDetector) initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(filepath.Join(d.cfg.ModelPath, "model.onnx")); err != nil {
		return fmt.Errorf("no model at %s: %w", d.cfg.ModelPath, err)
	}

	session, err := d.createSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	d.session = session

	config := hugot.TokenClassificationConfig{
		ModelPath: d.cfg.ModelPath,
		Name:      "pii-ner",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = d.session.Destroy()
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	d.pipeline = pipeline
	d.ready = true
	d.logger.Info("ner detector initialized", zap.String("model", d.cfg.ModelPath))
	return nil
}

func (d *NERDetector) createSession() (*hugot.Session, error) {
	if d.cfg.OnnxLibraryPath != "" {
		session, err := hugot.NewORTSession(options.WithOnnxLibraryPath(d.cfg.OnnxLibraryPath))
		if err == nil {
			return session, nil
		}
		d.logger.Warn("onnx runtime unavailable, falling back to Go backend", zap.Error(err))
	}
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Go session: %w", err)
	}
	return session, nil
}

// IsReady reports whether the model is loaded.
func (d *NERDetector) IsReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

func (d *NERDetector) Name() string   { return "ner" }
func (d *NERDetector) Family() Family { return FamilyContextual }

// labelKind maps model label suffixes (with or without BIO prefixes) to
// entity kinds. Unmapped labels are dropped.
func labelKind(label string) (patterns.Kind, bool) {
	label = strings.ToUpper(label)
	if i := strings.IndexByte(label, '-'); i >= 0 {
		label = label[i+1:]
	}
	switch label {
	case "PER", "PERSON":
		return patterns.KindPerson, true
	case "LOC", "LOCATION", "GPE":
		return patterns.KindLocation, true
	case "ORG", "ORGANIZATION":
		return patterns.KindOrganization, true
	default:
		return "", false
	}
}

// Detect runs token classification and converts model entities to spans.
func (d *NERDetector) Detect(ctx context.Context, text string) ([]ThreatEntity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.ready || d.pipeline == nil {
		return nil, fmt.Errorf("ner detector not ready")
	}
	if text == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := d.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("ner inference failed: %w", err)
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}

	var out []ThreatEntity
	for _, ent := range result.Entities[0] {
		kind, ok := labelKind(ent.Entity)
		if !ok || float64(ent.Score) < d.cfg.MinScore {
			continue
		}
		start, end := int(ent.Start), int(ent.End)
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		out = append(out, ThreatEntity{
			Kind:       kind,
			Start:      start,
			End:        end,
			Confidence: float64(ent.Score),
			Detector:   d.Name(),
		})
	}
	return out, nil
}

// Close releases the model session.
func (d *NERDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ready = false
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return nil
}
