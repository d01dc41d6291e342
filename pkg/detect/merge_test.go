package detect

import (
	"testing"

	"github.com/karteekp20/aegisgate/pkg/patterns"
)

func TestMerge_OverlapKeepsHigherConfidence(t *testing.T) {
	entities := []ThreatEntity{
		{Kind: patterns.KindCreditCard, Start: 10, End: 29, Confidence: 0.95, Detector: "pattern-pii"},
		{Kind: patterns.KindPhone, Start: 12, End: 26, Confidence: 0.80, Detector: "pattern-pii"},
	}

	merged := Merge(entities, 0.5)
	if len(merged) != 1 {
		t.Fatalf("expected 1 entity after merge, got %d", len(merged))
	}
	if merged[0].Kind != patterns.KindCreditCard {
		t.Errorf("kept %s, want %s", merged[0].Kind, patterns.KindCreditCard)
	}
	if merged[0].Confidence != 0.95 {
		t.Errorf("confidence = %.2f, want 0.95", merged[0].Confidence)
	}
}

func TestMerge_DisjointSpansKept(t *testing.T) {
	entities := []ThreatEntity{
		{Kind: patterns.KindEmail, Start: 0, End: 17, Confidence: 0.90},
		{Kind: patterns.KindSSN, Start: 30, End: 41, Confidence: 0.88},
	}

	merged := Merge(entities, 0.5)
	if len(merged) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(merged))
	}
	if merged[0].Start > merged[1].Start {
		t.Error("merged output not sorted by start offset")
	}
}

func TestMerge_MinorOverlapKeepsBoth(t *testing.T) {
	// Overlap of 2 bytes on 10-byte spans is under the majority rule.
	entities := []ThreatEntity{
		{Kind: patterns.KindEmail, Start: 0, End: 10, Confidence: 0.90},
		{Kind: patterns.KindPhone, Start: 8, End: 18, Confidence: 0.80},
	}

	if got := Merge(entities, 0.5); len(got) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(got))
	}
}

func TestMerge_ConfidenceFloor(t *testing.T) {
	entities := []ThreatEntity{
		{Kind: patterns.KindIPAddress, Start: 0, End: 11, Confidence: 0.45},
		{Kind: patterns.KindEmail, Start: 20, End: 37, Confidence: 0.90},
	}

	merged := Merge(entities, 0.8)
	if len(merged) != 1 || merged[0].Kind != patterns.KindEmail {
		t.Fatalf("expected only the email to survive, got %+v", merged)
	}
}

func TestMerge_Empty(t *testing.T) {
	if got := Merge(nil, 0.8); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestMaxConfidence(t *testing.T) {
	entities := []ThreatEntity{
		{Confidence: 0.3},
		{Confidence: 0.92},
		{Confidence: 0.7},
	}
	if got := MaxConfidence(entities); got != 0.92 {
		t.Errorf("MaxConfidence = %.2f, want 0.92", got)
	}
	if got := MaxConfidence(nil); got != 0 {
		t.Errorf("MaxConfidence(nil) = %.2f, want 0", got)
	}
}
