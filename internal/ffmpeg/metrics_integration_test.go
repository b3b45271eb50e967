package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
)

// local helper (cannot use unexported ones from ffmpeg package)
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

// makeTestVideo renders a short synthetic clip with moving test patterns.
func makeTestVideo(t *testing.T, duration string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.mp4")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi",
		"-i", "testsrc2=duration="+duration+":size=320x240:rate=30",
		"-pix_fmt", "yuv420p",
		"-y", path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to generate test video: %v\n%s", err, out)
	}
	return path
}

func TestIntegration_MetricsExtraction(t *testing.T) {
	skipIfNoFFmpeg(t)

	videoPath := makeTestVideo(t, "6")
	logger := zerolog.New(os.Stderr)

	executor, err := ffmpeg.New(logger, "", 2)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	extractor := ffmpeg.NewMetricsExtractor(logger, executor, 4.0)
	windows, err := extractor.Extract(context.Background(), videoPath, 3*time.Second, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if len(windows) == 0 {
		t.Fatal("no analysis windows produced")
	}

	for _, w := range windows {
		if w.End <= w.Start {
			t.Errorf("window %v-%v has no extent", w.Start, w.End)
		}
		for name, v := range map[string]float64{
			"motion":     w.Motion,
			"variance":   w.Variance,
			"blur":       w.Blur,
			"contrast":   w.Contrast,
			"brightness": w.Brightness,
		} {
			if v < 0 || v > 1 {
				t.Errorf("window %v %s = %g, outside [0,1]", w.Start, name, v)
			}
		}
	}

	// the moving test pattern registers motion somewhere
	moved := false
	for _, w := range windows {
		if w.Motion > 0 {
			moved = true
			break
		}
	}
	if !moved {
		t.Error("no motion measured on a moving test source")
	}
}

func TestIntegration_ExtractRejectsCorruptInput(t *testing.T) {
	skipIfNoFFmpeg(t)

	bogus := filepath.Join(t.TempDir(), "not_a_video.mp4")
	if err := os.WriteFile(bogus, []byte("this is not video data"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	logger := zerolog.New(os.Stderr)
	executor, err := ffmpeg.New(logger, "", 2)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	extractor := ffmpeg.NewMetricsExtractor(logger, executor, 4.0)
	_, err = extractor.Extract(context.Background(), bogus, 3*time.Second, time.Second)
	if err == nil {
		t.Fatal("expected error for corrupt input")
	}

	var decodeErr *ffmpeg.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected DecodeError, got %T: %v", err, err)
	}
}

func TestIntegration_RenderPlan(t *testing.T) {
	skipIfNoFFmpeg(t)

	videoPath := makeTestVideo(t, "6")
	output := filepath.Join(t.TempDir(), "out.mp4")
	logger := zerolog.New(os.Stderr)

	executor, err := ffmpeg.New(logger, "", 2)
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	err = executor.RenderPlan(context.Background(), ffmpeg.PlanOptions{
		Input: videoPath,
		Segments: []ffmpeg.PlanSegment{
			{Start: 0, End: 2 * time.Second},
			{Start: 4 * time.Second, End: 5 * time.Second},
		},
		TempDir: t.TempDir(),
		Output:  output,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	info, err := executor.ProbeVideo(context.Background(), output)
	if err != nil {
		t.Fatalf("probe of render output failed: %v", err)
	}
	if info.Duration < 2500*time.Millisecond || info.Duration > 3500*time.Millisecond {
		t.Errorf("rendered duration = %v, want about 3s", info.Duration)
	}
}
