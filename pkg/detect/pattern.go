package detect

import (
	"context"

	"github.com/karteekp20/aegisgate/pkg/patterns"
)

// PatternDetector scans text against the shared rule registry for a fixed
// set of categories. It is allocation-light and never fails.
type PatternDetector struct {
	name string
	cats []patterns.Category
}

// NewPatternDetector creates a detector over the given rule categories.
func NewPatternDetector(name string, cats ...patterns.Category) *PatternDetector {
	return &PatternDetector{name: name, cats: cats}
}

// NewPIIDetector scans for personal data and credentials.
func NewPIIDetector() *PatternDetector {
	return NewPatternDetector("pattern-pii", patterns.EntityCategories()...)
}

// NewInjectionDetector scans for prompt injection, jailbreak and code
// injection phrasing on the input side.
func NewInjectionDetector() *PatternDetector {
	return NewPatternDetector("pattern-injection", patterns.InjectionCategories()...)
}

// NewLeakDetector scans model output for prompt, infrastructure and
// cross-user disclosures.
func NewLeakDetector() *PatternDetector {
	return NewPatternDetector("pattern-leak", patterns.LeakCategories()...)
}

func (d *PatternDetector) Name() string   { return d.name }
func (d *PatternDetector) Family() Family { return FamilyPattern }

// Detect returns one entity per verified rule match.
func (d *PatternDetector) Detect(_ context.Context, text string) ([]ThreatEntity, error) {
	matches := patterns.Get().FindAll(text, d.cats...)
	if len(matches) == 0 {
		return nil, nil
	}
	entities := make([]ThreatEntity, 0, len(matches))
	for _, m := range matches {
		entities = append(entities, ThreatEntity{
			Kind:       m.Rule.Kind,
			Start:      m.Start,
			End:        m.End,
			Confidence: m.Confidence,
			Detector:   d.name,
		})
	}
	return entities, nil
}
