// Package vision provides optional external quality-hint providers. A nil
// provider is always valid: the scoring formula's output is unchanged when no
// hint is available.
package vision

import (
	"context"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
)

// HintProvider estimates the visual quality of one analysis window on a
// 0..100 scale.
type HintProvider interface {
	Name() string
	ScoreHint(ctx context.Context, videoPath string, window ffmpeg.WindowMetrics) (float64, error)
}
