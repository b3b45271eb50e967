package segment

import (
	"fmt"
	"math/bits"
	"time"
)

// Segment is a candidate or selected sub-clip. Immutable once scored.
type Segment struct {
	SourceID        string
	Start           time.Duration
	End             time.Duration
	MotionScore     float64
	VarianceScore   float64
	BlurScore       float64
	ContrastScore   float64
	BrightnessScore float64
	CompositeScore  float64
	Fingerprint     uint64
	Keywords        []string
}

// Duration returns the segment length
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Overlaps reports whether two segments share any time range
func (s Segment) Overlaps(o Segment) bool {
	return s.Start < o.End && o.Start < s.End
}

// sameRange reports whether two segments cover the identical time range.
func (s Segment) sameRange(o Segment) bool {
	return s.SourceID == o.SourceID && s.Start == o.Start && s.End == o.End
}

// HammingDistance counts differing bits between two fingerprints
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// CaptionBeat is a timed unit of narration text
type CaptionBeat struct {
	Start    time.Duration
	End      time.Duration
	Text     string
	Keywords []string
}

// Duration returns the beat length
func (b CaptionBeat) Duration() time.Duration {
	return b.End - b.Start
}

// VariantPlan is one candidate finished output: an ordered, non-overlapping
// segment set, optionally enriched with narration and caption beats.
type VariantPlan struct {
	VariantIndex   int
	Segments       []Segment
	TotalDuration  time.Duration
	NarrationText  string
	NarrationAudio string
	CaptionBeats   []CaptionBeat
	Warnings       []Warning
}

// Clone returns a deep copy so reconciliation never mutates shared state.
func (p VariantPlan) Clone() VariantPlan {
	out := p
	out.Segments = append([]Segment(nil), p.Segments...)
	out.CaptionBeats = append([]CaptionBeat(nil), p.CaptionBeats...)
	out.Warnings = append([]Warning(nil), p.Warnings...)
	return out
}

// Warning is a non-fatal resource-exhaustion signal attached to a plan or job.
type Warning interface {
	Category() string
	Message() string
}

// PartialResultWarning signals fewer variants were produced than requested.
type PartialResultWarning struct {
	Requested int
	Produced  int
}

func (w PartialResultWarning) Category() string { return "partial_result" }

func (w PartialResultWarning) Message() string {
	return fmt.Sprintf("only %d of %d requested variants could be formed", w.Produced, w.Requested)
}

// InsufficientMaterialWarning signals that reconciliation could not bring the
// plan within tolerance of the narration duration. Gap is the remaining
// mismatch magnitude.
type InsufficientMaterialWarning struct {
	Gap time.Duration
}

func (w InsufficientMaterialWarning) Category() string { return "insufficient_material" }

func (w InsufficientMaterialWarning) Message() string {
	return fmt.Sprintf("plan duration misses the narration by %s", w.Gap)
}
