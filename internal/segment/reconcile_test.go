package segment

import (
	"testing"
	"time"
)

// fingerprints far enough apart that near-duplicate exclusion never triggers
// unless a test wants it to.
const (
	fpA uint64 = 0x0000000000000000
	fpB uint64 = 0x00000000FFFFFFFF
	fpC uint64 = 0xFFFFFFFF00000000
	fpD uint64 = 0xFFFFFFFFFFFFFFFF
)

func planOf(segments ...Segment) VariantPlan {
	var total time.Duration
	for _, s := range segments {
		total += s.Duration()
	}
	return VariantPlan{Segments: segments, TotalDuration: total}
}

func TestReconcileWithinTolerance(t *testing.T) {
	plan := planOf(seg(0, 15*time.Second, 90, fpA))

	out, warning := Reconcile(plan, nil, 15*time.Second+500*time.Millisecond, time.Second, 12)
	if warning != nil {
		t.Errorf("unexpected warning: %v", warning)
	}
	if out.TotalDuration != 15*time.Second {
		t.Errorf("total changed to %v, want unchanged 15s", out.TotalDuration)
	}
}

func TestReconcileExtends(t *testing.T) {
	plan := planOf(seg(0, 10*time.Second, 90, fpA))
	pool := []Segment{
		seg(20*time.Second, 5*time.Second, 80, fpB),
		seg(30*time.Second, 5*time.Second, 70, fpC),
	}

	out, warning := Reconcile(plan, pool, 15*time.Second, time.Second, 12)
	if warning != nil {
		t.Errorf("unexpected warning: %v", warning)
	}
	if out.TotalDuration < 14*time.Second || out.TotalDuration > 16*time.Second {
		t.Errorf("total = %v, want within 15s±1s", out.TotalDuration)
	}

	// extended plan stays in playback order
	for i := 1; i < len(out.Segments); i++ {
		if out.Segments[i-1].Start >= out.Segments[i].Start {
			t.Errorf("segments not ordered by start: %v", out.Segments)
		}
	}
}

func TestReconcileExtendSkipsNearDuplicates(t *testing.T) {
	plan := planOf(seg(0, 10*time.Second, 90, fpA))
	pool := []Segment{
		// 1 bit from the plan's segment, excluded as a near-duplicate
		seg(20*time.Second, 5*time.Second, 80, fpA|1),
	}

	out, warning := Reconcile(plan, pool, 15*time.Second, time.Second, 12)
	if warning == nil {
		t.Fatal("expected insufficient material warning")
	}
	if len(out.Segments) != 1 {
		t.Errorf("duplicate was admitted: %v", out.Segments)
	}
}

func TestReconcileExtendSkipsOverlapping(t *testing.T) {
	plan := planOf(seg(0, 10*time.Second, 90, fpA))
	pool := []Segment{
		seg(5*time.Second, 5*time.Second, 80, fpB), // overlaps the plan
		seg(20*time.Second, 5*time.Second, 70, fpC),
	}

	out, warning := Reconcile(plan, pool, 15*time.Second, time.Second, 12)
	if warning != nil {
		t.Errorf("unexpected warning: %v", warning)
	}
	if len(out.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(out.Segments))
	}
	if out.Segments[1].Start != 20*time.Second {
		t.Errorf("overlapping candidate was admitted: %v", out.Segments)
	}
}

func TestReconcileTrimsOnlyLastSegment(t *testing.T) {
	plan := planOf(
		seg(0, 10*time.Second, 90, fpA),
		seg(20*time.Second, 10*time.Second, 80, fpB),
	)

	out, warning := Reconcile(plan, nil, 15*time.Second, time.Second, 12)
	if warning != nil {
		t.Errorf("unexpected warning: %v", warning)
	}
	if out.TotalDuration != 15*time.Second {
		t.Errorf("total = %v, want exactly 15s", out.TotalDuration)
	}

	// interior pacing is preserved; only the last segment shrinks
	if out.Segments[0].Duration() != 10*time.Second {
		t.Errorf("first segment was trimmed: %v", out.Segments[0])
	}
	if out.Segments[1].Duration() != 5*time.Second {
		t.Errorf("last segment = %v, want 5s", out.Segments[1].Duration())
	}
}

func TestReconcileTrimFloor(t *testing.T) {
	plan := planOf(
		seg(0, 10*time.Second, 90, fpA),
		seg(20*time.Second, 400*time.Millisecond, 80, fpB),
	)

	out, _ := Reconcile(plan, nil, 5*time.Second, time.Second, 12)

	last := out.Segments[len(out.Segments)-1]
	if last.Duration() < minTrimmedSegment {
		t.Errorf("last segment trimmed below floor: %v", last.Duration())
	}
}

func TestReconcileTrimShortfallWarns(t *testing.T) {
	plan := planOf(
		seg(0, 10*time.Second, 90, fpA),
		seg(20*time.Second, 500*time.Millisecond, 80, fpB),
	)

	out, warning := Reconcile(plan, nil, 5*time.Second, time.Second, 12)
	if warning == nil {
		t.Fatal("expected warning when the last segment cannot absorb the excess")
	}
	if out.TotalDuration != 10*time.Second+minTrimmedSegment {
		t.Errorf("total = %v, want 10s plus the trim floor", out.TotalDuration)
	}
	if warning.Gap != out.TotalDuration-5*time.Second {
		t.Errorf("gap = %v, want %v", warning.Gap, out.TotalDuration-5*time.Second)
	}
	if len(out.Warnings) != 1 {
		t.Errorf("plan warnings = %v, want the residual recorded", out.Warnings)
	}
}

func TestReconcileInsufficientMaterial(t *testing.T) {
	plan := planOf(seg(0, 5*time.Second, 90, fpA))

	out, warning := Reconcile(plan, nil, 15*time.Second, time.Second, 12)
	if warning == nil {
		t.Fatal("expected warning")
	}
	if warning.Gap != 10*time.Second {
		t.Errorf("gap = %v, want 10s", warning.Gap)
	}
	if warning.Category() != "insufficient_material" {
		t.Errorf("category = %s", warning.Category())
	}

	// the warning also travels with the plan
	if len(out.Warnings) != 1 {
		t.Errorf("plan warnings = %v, want the gap recorded", out.Warnings)
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	original := planOf(
		seg(0, 10*time.Second, 90, fpA),
		seg(20*time.Second, 10*time.Second, 80, fpB),
	)
	pool := []Segment{seg(40*time.Second, 5*time.Second, 70, fpC)}

	Reconcile(original, pool, 30*time.Second, time.Second, 12)
	Reconcile(original, pool, 15*time.Second, time.Second, 12)

	if original.TotalDuration != 20*time.Second {
		t.Errorf("input total mutated: %v", original.TotalDuration)
	}
	if len(original.Segments) != 2 {
		t.Errorf("input segments mutated: %v", original.Segments)
	}
	if original.Segments[1].End != 30*time.Second {
		t.Errorf("input segment trimmed: %v", original.Segments[1])
	}
}
