package segment

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Selector forms diversified non-overlapping segment sets from scored,
// de-duplicated candidates.
type Selector struct {
	logger zerolog.Logger
}

// NewSelector creates a selector
func NewSelector(logger zerolog.Logger) *Selector {
	return &Selector{
		logger: logger.With().Str("component", "selector").Logger(),
	}
}

// Select produces up to variantCount variant plans whose total duration lands
// within tolerance of target. Successive variants are pushed toward different
// material by excluding the seed picks of earlier variants. When fewer sets
// than requested are feasible, the returned warning carries the shortfall.
func (s *Selector) Select(candidates []Segment, target, tolerance time.Duration, variantCount int) ([]VariantPlan, *PartialResultWarning, error) {
	if variantCount <= 0 {
		return nil, nil, fmt.Errorf("variant count must be positive")
	}
	if target <= 0 {
		return nil, nil, fmt.Errorf("target duration must be positive")
	}

	ranked := SortByScore(candidates)
	var plans []VariantPlan
	var seeds []Segment

	for i := 0; i < variantCount; i++ {
		chosen := s.pickSet(ranked, seeds, target, tolerance)
		if chosen == nil {
			break
		}

		// Diversification guard: identical sets across variants are rejected
		// even when seed exclusion alone did not prevent them.
		if planIndex(plans, chosen) >= 0 {
			break
		}

		seeds = append(seeds, chosen[0])

		plan, err := buildPlan(i, chosen)
		if err != nil {
			return nil, nil, err
		}
		plans = append(plans, plan)

		s.logger.Debug().
			Int("variant", i).
			Int("segments", len(plan.Segments)).
			Dur("total", plan.TotalDuration).
			Msg("variant selected")
	}

	// A shortfall, including zero feasible sets, is a best-effort result the
	// caller decides about, never an error.
	var warning *PartialResultWarning
	if len(plans) < variantCount {
		warning = &PartialResultWarning{Requested: variantCount, Produced: len(plans)}
		s.logger.Warn().
			Int("requested", variantCount).
			Int("produced", len(plans)).
			Msg("fewer variants than requested")
	}

	return plans, warning, nil
}

// pickSet greedily walks the ranked list, skipping excluded seeds and any
// candidate overlapping an already-chosen segment, accumulating until the set
// duration is inside [target-tolerance, target+tolerance]. Returns the chosen
// segments in pick order, or nil when no conforming set exists.
func (s *Selector) pickSet(ranked, excluded []Segment, target, tolerance time.Duration) []Segment {
	minTotal := target - tolerance
	maxTotal := target + tolerance

	var chosen []Segment
	var total time.Duration

	for _, cand := range ranked {
		if containsRange(excluded, cand) {
			continue
		}
		if overlapsAny(chosen, cand) {
			continue
		}
		if total+cand.Duration() > maxTotal {
			// Too large for the remaining budget; a shorter candidate further
			// down the ranking may still fit.
			continue
		}
		chosen = append(chosen, cand)
		total += cand.Duration()
		if total >= minTotal {
			return chosen
		}
	}

	return nil
}

// buildPlan orders segments by start time and verifies the hard no-overlap
// invariant at construction.
func buildPlan(index int, chosen []Segment) (VariantPlan, error) {
	segs := append([]Segment(nil), chosen...)
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	var total time.Duration
	for i, seg := range segs {
		total += seg.Duration()
		if i > 0 && segs[i-1].End > seg.Start {
			return VariantPlan{}, fmt.Errorf("variant %d: overlapping segments at %s", index, seg.Start)
		}
	}

	return VariantPlan{
		VariantIndex:  index,
		Segments:      segs,
		TotalDuration: total,
	}, nil
}

func overlapsAny(chosen []Segment, cand Segment) bool {
	for _, c := range chosen {
		if c.Overlaps(cand) {
			return true
		}
	}
	return false
}

func containsRange(set []Segment, cand Segment) bool {
	for _, s := range set {
		if s.sameRange(cand) {
			return true
		}
	}
	return false
}

// planIndex returns the index of a plan holding the exact same segment set,
// or -1 when none matches.
func planIndex(plans []VariantPlan, chosen []Segment) int {
	for i, p := range plans {
		if sameSegmentSet(p.Segments, chosen) {
			return i
		}
	}
	return -1
}

func sameSegmentSet(a, b []Segment) bool {
	if len(a) != len(b) {
		return false
	}
	for _, seg := range a {
		if !containsRange(b, seg) {
			return false
		}
	}
	return true
}
