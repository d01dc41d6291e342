// Package detect turns raw text into threat entities. Detectors are small,
// composable units; the guards fan them out and merge their findings.
package detect

import (
	"context"

	"github.com/karteekp20/aegisgate/pkg/patterns"
)

// Family distinguishes how a detector reaches its conclusions.
type Family string

const (
	// FamilyPattern covers deterministic regex/checksum detectors.
	FamilyPattern Family = "pattern"
	// FamilyContextual covers model-based detectors (NER).
	FamilyContextual Family = "contextual"
)

// ThreatEntity is a single detected span. Offsets are byte offsets into the
// exact text passed to Detect; callers must not detect on one string and
// redact another.
type ThreatEntity struct {
	Kind       patterns.Kind `json:"kind"`
	Start      int           `json:"start"`
	End        int           `json:"end"`
	Confidence float64       `json:"confidence"`
	Detector   string        `json:"detector"`
}

// Len returns the span length in bytes.
func (e ThreatEntity) Len() int { return e.End - e.Start }

// Detector finds threat entities in text. Implementations must be safe for
// concurrent use. A failing detector returns an error and contributes
// nothing; it never blocks a request on its own.
type Detector interface {
	Name() string
	Family() Family
	Detect(ctx context.Context, text string) ([]ThreatEntity, error)
}
