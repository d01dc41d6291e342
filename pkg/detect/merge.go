package detect

import "sort"

// Merge deduplicates overlapping entities from independent detectors and
// drops entities below minConfidence. Two spans overlapping by more than
// half of the shorter span are considered the same finding; the one with
// higher confidence wins. Output is sorted by start offset and guaranteed
// non-overlapping past the dedupe rule.
func Merge(entities []ThreatEntity, minConfidence float64) []ThreatEntity {
	if len(entities) == 0 {
		return nil
	}

	kept := make([]ThreatEntity, 0, len(entities))
	for _, e := range entities {
		if e.Confidence >= minConfidence && e.End > e.Start {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	// Higher confidence first so earlier winners absorb later losers.
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].Start < kept[j].Start
	})

	var merged []ThreatEntity
	for _, cand := range kept {
		dup := false
		for _, won := range merged {
			if overlapsMajority(cand, won) {
				dup = true
				break
			}
		}
		if !dup {
			merged = append(merged, cand)
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	return merged
}

// overlapsMajority reports whether the overlap exceeds half of the shorter
// span.
func overlapsMajority(a, b ThreatEntity) bool {
	lo := max(a.Start, b.Start)
	hi := min(a.End, b.End)
	if hi <= lo {
		return false
	}
	shorter := min(a.Len(), b.Len())
	return (hi-lo)*2 > shorter
}

// MaxConfidence returns the highest confidence in the set, zero when empty.
func MaxConfidence(entities []ThreatEntity) float64 {
	var m float64
	for _, e := range entities {
		if e.Confidence > m {
			m = e.Confidence
		}
	}
	return m
}
