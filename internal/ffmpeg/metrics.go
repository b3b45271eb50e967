package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Analysis frames are decoded small and grayscale; the signals we compute
// are resolution-independent once normalized.
const (
	analysisWidth  = 160
	analysisHeight = 90
	analysisFrame  = analysisWidth * analysisHeight

	// hash grid for the 9x8 difference hash
	hashWidth  = 9
	hashHeight = 8
)

// minUsableDuration is the floor below which a source is treated as empty.
const minUsableDuration = 100 * time.Millisecond

// MetricsExtractor decodes a video once and computes per-window quality
// signals plus a perceptual fingerprint per window.
type MetricsExtractor struct {
	logger    zerolog.Logger
	exec      *Executor
	sampleFPS float64
}

// NewMetricsExtractor creates an extractor sampling at the given frame rate
func NewMetricsExtractor(logger zerolog.Logger, exec *Executor, sampleFPS float64) *MetricsExtractor {
	if sampleFPS <= 0 {
		sampleFPS = 4.0
	}
	return &MetricsExtractor{
		logger:    logger.With().Str("component", "metrics-extractor").Logger(),
		exec:      exec,
		sampleFPS: sampleFPS,
	}
}

// frameStats holds per-sampled-frame measurements gathered during the single
// decode pass. thumb is a box-averaged 9x8 grayscale used for fingerprinting.
type frameStats struct {
	at       time.Duration
	mean     float64
	variance float64
	edge     float64
	low      float64 // 5th percentile intensity
	high     float64 // 95th percentile intensity
	motion   float64 // mean abs diff against previous sampled frame
	thumb    [hashWidth * hashHeight]byte
}

// Extract runs one decode pass over the source and returns metrics for every
// analysis window of windowSize advanced by stride. The result is finite and
// the pass is restartable by calling Extract again.
func (m *MetricsExtractor) Extract(ctx context.Context, videoPath string, windowSize, stride time.Duration) ([]WindowMetrics, error) {
	if windowSize <= 0 || stride <= 0 {
		return nil, fmt.Errorf("window size and stride must be positive")
	}

	info, err := m.exec.ProbeVideo(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if info.Duration < minUsableDuration {
		return nil, &EmptyVideoError{Path: videoPath}
	}

	m.logger.Info().
		Str("video", videoPath).
		Dur("duration", info.Duration).
		Dur("window", windowSize).
		Dur("stride", stride).
		Float64("sample_fps", m.sampleFPS).
		Msg("starting metrics pass")

	frames, err := m.decodeFrames(ctx, videoPath)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) && de.Path == "" {
			de.Path = videoPath
		}
		return nil, err
	}
	if len(frames) == 0 {
		return nil, &EmptyVideoError{Path: videoPath}
	}

	windows := m.buildWindows(frames, info.Duration, windowSize, stride)

	m.logger.Info().
		Int("frames", len(frames)).
		Int("windows", len(windows)).
		Msg("metrics pass complete")

	return windows, nil
}

// decodeFrames streams grayscale rawvideo frames and measures each one.
func (m *MetricsExtractor) decodeFrames(ctx context.Context, videoPath string) ([]frameStats, error) {
	args := []string{
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g,scale=%d:%d,format=gray", m.sampleFPS, analysisWidth, analysisHeight),
		"-f", "rawvideo",
		"pipe:1",
	}

	var frames []frameStats
	var prev []byte
	frameInterval := time.Duration(float64(time.Second) / m.sampleFPS)

	err := m.exec.RunFrames(ctx, args, analysisFrame, func(frame []byte) error {
		stats := measureFrame(frame)
		stats.at = time.Duration(len(frames)) * frameInterval
		if prev != nil {
			stats.motion = meanAbsDiff(frame, prev)
		}
		frames = append(frames, stats)

		if prev == nil {
			prev = make([]byte, analysisFrame)
		}
		copy(prev, frame)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return frames, nil
}

// measureFrame computes intensity statistics, edge response and the hash thumb
// for a single grayscale frame.
func measureFrame(frame []byte) frameStats {
	var stats frameStats

	// Intensity histogram drives mean, variance and the dynamic range.
	var hist [256]int
	var sum, sumSq float64
	for _, px := range frame {
		hist[px]++
		v := float64(px)
		sum += v
		sumSq += v * v
	}
	n := float64(len(frame))
	stats.mean = sum / n
	stats.variance = sumSq/n - stats.mean*stats.mean
	stats.low, stats.high = percentiles(hist[:], len(frame))

	// Edge response via a 4-neighbour Laplacian over interior pixels.
	var edgeSum float64
	for y := 1; y < analysisHeight-1; y++ {
		row := y * analysisWidth
		for x := 1; x < analysisWidth-1; x++ {
			c := int(frame[row+x])
			lap := 4*c - int(frame[row+x-1]) - int(frame[row+x+1]) -
				int(frame[row+x-analysisWidth]) - int(frame[row+x+analysisWidth])
			if lap < 0 {
				lap = -lap
			}
			edgeSum += float64(lap)
		}
	}
	interior := float64((analysisWidth - 2) * (analysisHeight - 2))
	stats.edge = edgeSum / interior

	downsampleThumb(frame, &stats.thumb)
	return stats
}

// percentiles returns the 5th and 95th percentile intensities from a histogram.
func percentiles(hist []int, total int) (low, high float64) {
	lowTarget := total * 5 / 100
	highTarget := total * 95 / 100
	seen := 0
	low, high = 0, 255
	lowSet := false
	for v, count := range hist {
		seen += count
		if !lowSet && seen >= lowTarget {
			low = float64(v)
			lowSet = true
		}
		if seen >= highTarget {
			high = float64(v)
			return low, high
		}
	}
	return low, high
}

// meanAbsDiff computes mean absolute pixel difference between two frames.
func meanAbsDiff(a, b []byte) float64 {
	var sum int
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(a))
}

// downsampleThumb box-averages the analysis frame onto the 9x8 hash grid.
func downsampleThumb(frame []byte, thumb *[hashWidth * hashHeight]byte) {
	cellW := analysisWidth / hashWidth
	cellH := analysisHeight / hashHeight
	for ty := 0; ty < hashHeight; ty++ {
		for tx := 0; tx < hashWidth; tx++ {
			var sum, count int
			for y := ty * cellH; y < (ty+1)*cellH; y++ {
				row := y * analysisWidth
				for x := tx * cellW; x < (tx+1)*cellW; x++ {
					sum += int(frame[row+x])
					count++
				}
			}
			thumb[ty*hashWidth+tx] = byte(sum / count)
		}
	}
}

// dhash computes a 64-bit difference hash from a 9x8 grayscale thumb. Each
// bit records whether a pixel is brighter than its right neighbour.
func dhash(thumb *[hashWidth * hashHeight]byte) uint64 {
	var hash uint64
	bit := 0
	for y := 0; y < hashHeight; y++ {
		row := y * hashWidth
		for x := 0; x < hashWidth-1; x++ {
			if thumb[row+x] > thumb[row+x+1] {
				hash |= uint64(1) << uint(63-bit)
			}
			bit++
		}
	}
	return hash
}

// buildWindows folds per-frame stats into overlapping analysis windows.
func (m *MetricsExtractor) buildWindows(frames []frameStats, total, windowSize, stride time.Duration) []WindowMetrics {
	var windows []WindowMetrics

	for start := time.Duration(0); start+windowSize <= total; start += stride {
		end := start + windowSize

		first, last := -1, -1
		for i, f := range frames {
			if f.at < start {
				continue
			}
			if f.at >= end {
				break
			}
			if first == -1 {
				first = i
			}
			last = i
		}
		if first == -1 {
			continue
		}

		var motion, variance, edge, contrast, brightness float64
		motionSamples := 0
		count := last - first + 1
		for i := first; i <= last; i++ {
			f := frames[i]
			// The very first sampled frame has no motion reference.
			if i > 0 {
				motion += f.motion
				motionSamples++
			}
			variance += f.variance
			edge += f.edge
			contrast += f.high - f.low
			brightness += f.mean
		}
		if motionSamples > 0 {
			motion /= float64(motionSamples)
		}

		mid := first + count/2

		windows = append(windows, WindowMetrics{
			Start:       start,
			End:         end,
			Motion:      clamp01(motion / 255.0),
			Variance:    clamp01(variance / float64(count) / (127.5 * 127.5)),
			Blur:        clamp01(edge / float64(count) / 255.0),
			Contrast:    clamp01(contrast / float64(count) / 255.0),
			Brightness:  clamp01(brightness / float64(count) / 255.0),
			Fingerprint: dhash(&frames[mid].thumb),
		})
	}

	return windows
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
