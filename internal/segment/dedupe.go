package segment

import "sort"

// DefaultHammingThreshold is the fingerprint distance below which two
// segments are treated as near-duplicates.
const DefaultHammingThreshold = 12

// SortByScore orders segments by composite score descending, ties broken by
// earlier start time. Returns a new slice.
func SortByScore(segments []Segment) []Segment {
	out := append([]Segment(nil), segments...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompositeScore != out[j].CompositeScore {
			return out[i].CompositeScore > out[j].CompositeScore
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// Dedupe removes near-duplicate segments in one greedy pass over the
// score-descending order: a segment is kept only if its fingerprint sits more
// than threshold Hamming bits away from every already-kept fingerprint.
func Dedupe(segments []Segment, threshold int) []Segment {
	if threshold <= 0 {
		threshold = DefaultHammingThreshold
	}

	ranked := SortByScore(segments)
	kept := make([]Segment, 0, len(ranked))

	for _, cand := range ranked {
		duplicate := false
		for _, k := range kept {
			if HammingDistance(cand.Fingerprint, k.Fingerprint) <= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, cand)
		}
	}

	return kept
}
