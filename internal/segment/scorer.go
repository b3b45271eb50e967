package segment

import (
	"fmt"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
)

// Composite score weights. Movement and sharpness matter most for short-form
// clip selection; weights sum to 1.0.
const (
	weightMotion     = 0.40
	weightVariance   = 0.20
	weightBlur       = 0.20
	weightContrast   = 0.15
	weightBrightness = 0.05
)

// InvalidMetricsError reports an out-of-range metric or hint value.
type InvalidMetricsError struct {
	Field string
	Value float64
}

func (e *InvalidMetricsError) Error() string {
	return fmt.Sprintf("metric %s out of range: %g", e.Field, e.Value)
}

// Scorer combines window metrics into one composite score per segment,
// optionally blended with an external vision hint.
type Scorer struct {
	hintBlend float64
}

// NewScorer creates a scorer. hintBlend in [0,1] is the share of the final
// score taken from the external hint when one is present.
func NewScorer(hintBlend float64) (*Scorer, error) {
	if hintBlend < 0 || hintBlend > 1 {
		return nil, &InvalidMetricsError{Field: "hint_blend", Value: hintBlend}
	}
	return &Scorer{hintBlend: hintBlend}, nil
}

// Score builds a scored segment from one analysis window. hint, when non-nil,
// is an external quality estimate in [0,100]; its absence leaves the
// formula-based score untouched.
func (s *Scorer) Score(sourceID string, w ffmpeg.WindowMetrics, hint *float64) (Segment, error) {
	for _, m := range []struct {
		name  string
		value float64
	}{
		{"motion", w.Motion},
		{"variance", w.Variance},
		{"blur", w.Blur},
		{"contrast", w.Contrast},
		{"brightness", w.Brightness},
	} {
		if m.value < 0 || m.value > 1 {
			return Segment{}, &InvalidMetricsError{Field: m.name, Value: m.value}
		}
	}

	formula := 100 * (weightMotion*w.Motion +
		weightVariance*w.Variance +
		weightBlur*w.Blur +
		weightContrast*w.Contrast +
		weightBrightness*w.Brightness)

	composite := formula
	if hint != nil {
		if *hint < 0 || *hint > 100 {
			return Segment{}, &InvalidMetricsError{Field: "hint", Value: *hint}
		}
		composite = (1-s.hintBlend)*formula + s.hintBlend*(*hint)
	}

	seg := Segment{
		SourceID:        sourceID,
		Start:           w.Start,
		End:             w.End,
		MotionScore:     w.Motion,
		VarianceScore:   w.Variance,
		BlurScore:       w.Blur,
		ContrastScore:   w.Contrast,
		BrightnessScore: w.Brightness,
		CompositeScore:  composite,
		Fingerprint:     w.Fingerprint,
	}
	seg.Keywords = deriveKeywords(seg)
	return seg, nil
}

// deriveKeywords tags a segment from its metric profile so caption beats can
// be matched against it later.
func deriveKeywords(s Segment) []string {
	var kw []string

	switch {
	case s.MotionScore >= 0.35:
		kw = append(kw, "action", "motion", "fast")
	case s.MotionScore <= 0.05:
		kw = append(kw, "calm", "still")
	default:
		kw = append(kw, "steady")
	}

	if s.BrightnessScore >= 0.65 {
		kw = append(kw, "bright", "day")
	} else if s.BrightnessScore <= 0.30 {
		kw = append(kw, "dark", "night")
	}

	if s.ContrastScore >= 0.55 {
		kw = append(kw, "vivid")
	}
	if s.BlurScore >= 0.25 {
		kw = append(kw, "detail", "sharp")
	}
	if s.VarianceScore >= 0.5 {
		kw = append(kw, "busy")
	}

	return kw
}
