package segment

import (
	"sort"
	"time"
)

// minTrimmedSegment is the floor a trimmed final segment may shrink to.
const minTrimmedSegment = 250 * time.Millisecond

// Reconcile adjusts a plan's total duration to match the narration duration
// within tolerance. Too-short plans pull additional non-overlapping,
// non-duplicate candidates from the pool in score order; too-long plans trim
// only the last segment's end so interior pacing is preserved. The input plan
// is never mutated; a new plan is returned. A non-nil warning means the gap
// could not be closed, because the pool ran out while extending or the last
// segment had too little trimmable length.
func Reconcile(plan VariantPlan, pool []Segment, narration, tolerance time.Duration, hammingThreshold int) (VariantPlan, *InsufficientMaterialWarning) {
	out := plan.Clone()

	var warning *InsufficientMaterialWarning
	switch {
	case out.TotalDuration < narration-tolerance:
		out, warning = extend(out, pool, narration, tolerance, hammingThreshold)
	case out.TotalDuration > narration+tolerance:
		trimLast(&out, narration)
	}

	// The trim floor can leave the plan long; that residual must be flagged,
	// not silently returned outside tolerance.
	if warning == nil && out.TotalDuration > narration+tolerance {
		warning = &InsufficientMaterialWarning{Gap: out.TotalDuration - narration}
		out.Warnings = append(out.Warnings, *warning)
	}

	return out, warning
}

// extend appends unused high-score candidates until the video covers the
// narration, then trims any overshoot off the final segment.
func extend(plan VariantPlan, pool []Segment, narration, tolerance time.Duration, hammingThreshold int) (VariantPlan, *InsufficientMaterialWarning) {
	if hammingThreshold <= 0 {
		hammingThreshold = DefaultHammingThreshold
	}

	for _, cand := range SortByScore(pool) {
		if plan.TotalDuration >= narration-tolerance {
			break
		}
		if containsRange(plan.Segments, cand) {
			continue
		}
		if overlapsAny(plan.Segments, cand) {
			continue
		}
		if tooClose(plan.Segments, cand, hammingThreshold) {
			continue
		}
		plan.Segments = append(plan.Segments, cand)
		plan.TotalDuration += cand.Duration()
	}

	sort.Slice(plan.Segments, func(i, j int) bool {
		return plan.Segments[i].Start < plan.Segments[j].Start
	})

	if plan.TotalDuration < narration-tolerance {
		warning := &InsufficientMaterialWarning{Gap: narration - plan.TotalDuration}
		plan.Warnings = append(plan.Warnings, *warning)
		return plan, warning
	}

	if plan.TotalDuration > narration+tolerance {
		trimLast(&plan, narration)
	}
	return plan, nil
}

// trimLast shortens the final segment's end so the plan total matches the
// narration duration exactly, down to a minimum segment length.
func trimLast(plan *VariantPlan, narration time.Duration) {
	if len(plan.Segments) == 0 {
		return
	}

	excess := plan.TotalDuration - narration
	last := &plan.Segments[len(plan.Segments)-1]

	maxTrim := last.Duration() - minTrimmedSegment
	if maxTrim <= 0 {
		return
	}
	if excess > maxTrim {
		excess = maxTrim
	}

	last.End -= excess
	plan.TotalDuration -= excess
}

func tooClose(chosen []Segment, cand Segment, threshold int) bool {
	for _, c := range chosen {
		if HammingDistance(c.Fingerprint, cand.Fingerprint) <= threshold {
			return true
		}
	}
	return false
}
