package segment

import (
	"sort"
	"time"
)

// BeatMatch pairs a caption beat with the segment chosen to cover it.
type BeatMatch struct {
	Beat    CaptionBeat
	Segment Segment
}

// MatchBeats maps narration beats to segments. Beats are processed in
// chronological order; each takes the unused segment with the largest keyword
// overlap, ties broken by composite score, then by how closely the segment
// duration matches the beat duration. A beat with no keyword overlap falls
// back to the best remaining segment by score so no beat is left unmatched.
// Each segment is consumed at most once.
func MatchBeats(beats []CaptionBeat, segments []Segment) []BeatMatch {
	ordered := append([]CaptionBeat(nil), beats...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	used := make([]bool, len(segments))
	matches := make([]BeatMatch, 0, len(ordered))

	for _, beat := range ordered {
		idx := bestForBeat(beat, segments, used)
		if idx < 0 {
			break // pool exhausted
		}
		used[idx] = true
		matches = append(matches, BeatMatch{Beat: beat, Segment: segments[idx]})
	}

	return matches
}

// bestForBeat returns the index of the best unused segment for a beat, or -1
// when every segment is consumed.
func bestForBeat(beat CaptionBeat, segments []Segment, used []bool) int {
	best := -1
	bestOverlap := -1
	bestScore := -1.0
	var bestProximity time.Duration

	for i, seg := range segments {
		if used[i] {
			continue
		}

		overlap := keywordOverlap(beat.Keywords, seg.Keywords)
		proximity := durationGap(seg.Duration(), beat.Duration())

		better := false
		switch {
		case overlap != bestOverlap:
			better = overlap > bestOverlap
		case seg.CompositeScore != bestScore:
			better = seg.CompositeScore > bestScore
		default:
			better = proximity < bestProximity
		}

		if better {
			best = i
			bestOverlap = overlap
			bestScore = seg.CompositeScore
			bestProximity = proximity
		}
	}

	return best
}

func keywordOverlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	count := 0
	for _, k := range b {
		if _, ok := set[k]; ok {
			count++
		}
	}
	return count
}

func durationGap(a, b time.Duration) time.Duration {
	if a > b {
		return a - b
	}
	return b - a
}
