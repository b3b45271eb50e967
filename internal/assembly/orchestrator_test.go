package assembly

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kezsmith/clipforge/internal/narration"
	"github.com/kezsmith/clipforge/internal/segment"
)

// fakeSynth returns a fixed narration result, optionally failing the first
// failFirst calls. It tracks how many calls ran concurrently.
type fakeSynth struct {
	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	failFirst int
	duration  time.Duration
	delay     time.Duration
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string, sink narration.Sink) (narration.Result, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if n <= f.failFirst {
		return narration.Result{}, errors.New("synthesis unavailable")
	}
	return narration.Result{
		AudioPath: "narration.mp3",
		Duration:  f.duration,
		Provider:  "fake",
	}, nil
}

func testPlan(index int, start, dur time.Duration, fp uint64) segment.VariantPlan {
	return segment.VariantPlan{
		VariantIndex: index,
		Segments: []segment.Segment{{
			SourceID:       "clip.mp4",
			Start:          start,
			End:            start + dur,
			CompositeScore: 80,
			Fingerprint:    fp,
		}},
		TotalDuration: dur,
	}
}

func testRequest(variants ...segment.VariantPlan) Request {
	return Request{
		SourcePath: "clip.mp4",
		ScriptText: "Dawn breaks. The city wakes.",
		Variants:   variants,
		Settings: Settings{
			ReconcileTolerance: time.Second,
			HammingThreshold:   12,
		},
	}
}

func TestAssembleAllReady(t *testing.T) {
	synth := &fakeSynth{duration: 15 * time.Second}
	orch := NewOrchestrator(zerolog.Nop(), synth, t.TempDir())

	req := testRequest(testPlan(0, 0, 15*time.Second, 0))

	results, err := orch.AssembleAll(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if r.Stage != StageReady {
		t.Fatalf("stage = %s, want ready", r.Stage)
	}
	if r.Plan == nil {
		t.Fatal("ready variant has no render plan")
	}
	if r.Plan.NarrationAudio != "narration.mp3" {
		t.Errorf("narration audio = %q", r.Plan.NarrationAudio)
	}
	if r.Plan.NarrationDuration != 15*time.Second {
		t.Errorf("narration duration = %v", r.Plan.NarrationDuration)
	}
	if len(r.Plan.Segments) != 1 {
		t.Errorf("plan segments = %v", r.Plan.Segments)
	}
	if len(r.Plan.CaptionBeats) == 0 {
		t.Error("no caption beats on the render plan")
	}
	if r.Enriched.NarrationText != req.ScriptText {
		t.Errorf("narration text = %q", r.Enriched.NarrationText)
	}
}

func TestAssembleAllIsolatesFailures(t *testing.T) {
	synth := &fakeSynth{duration: 15 * time.Second, failFirst: 1}
	orch := NewOrchestrator(zerolog.Nop(), synth, t.TempDir())

	req := testRequest(
		testPlan(0, 0, 15*time.Second, 0),
		testPlan(1, 20*time.Second, 15*time.Second, fpFar),
		testPlan(2, 40*time.Second, 15*time.Second, fpFarther),
	)

	results, err := orch.AssembleAll(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("assembly should survive a single variant failure: %v", err)
	}

	failed, ready := 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			if r.Stage != StageFailed {
				t.Errorf("failed variant %d has stage %s", r.Index, r.Stage)
			}
			failed++
		case r.Stage == StageReady:
			ready++
		}
	}
	if failed != 1 || ready != 2 {
		t.Errorf("failed=%d ready=%d, want 1 and 2", failed, ready)
	}
}

func TestAssembleAllReportsTotalFailure(t *testing.T) {
	synth := &fakeSynth{duration: 15 * time.Second, failFirst: 100}
	orch := NewOrchestrator(zerolog.Nop(), synth, t.TempDir())

	req := testRequest(
		testPlan(0, 0, 15*time.Second, 0),
		testPlan(1, 20*time.Second, 15*time.Second, fpFar),
	)

	results, err := orch.AssembleAll(context.Background(), req, nil)
	if err == nil {
		t.Fatal("expected error when every variant fails")
	}
	for _, r := range results {
		if r.Stage != StageFailed || r.Err == nil {
			t.Errorf("variant %d: stage=%s err=%v", r.Index, r.Stage, r.Err)
		}
	}
}

func TestAssembleAllReconcilesAgainstNarration(t *testing.T) {
	// Narration runs longer than the plan; reconciliation pulls from the pool.
	synth := &fakeSynth{duration: 15 * time.Second}
	orch := NewOrchestrator(zerolog.Nop(), synth, t.TempDir())

	req := testRequest(testPlan(0, 0, 10*time.Second, 0))
	req.Pool = []segment.Segment{{
		SourceID:       "clip.mp4",
		Start:          30 * time.Second,
		End:            35 * time.Second,
		CompositeScore: 70,
		Fingerprint:    fpFar,
	}}

	results, err := orch.AssembleAll(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}

	total := results[0].Enriched.TotalDuration
	if total < 14*time.Second || total > 16*time.Second {
		t.Errorf("reconciled total = %v, want within 15s±1s", total)
	}
}

func TestAssembleAllProgressReachesCompletion(t *testing.T) {
	synth := &fakeSynth{duration: 15 * time.Second}
	orch := NewOrchestrator(zerolog.Nop(), synth, t.TempDir())

	req := testRequest(
		testPlan(0, 0, 15*time.Second, 0),
		testPlan(1, 20*time.Second, 15*time.Second, fpFar),
	)

	var mu sync.Mutex
	var last int
	_, err := orch.AssembleAll(context.Background(), req, func(percent int, message string) {
		mu.Lock()
		last = percent
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}

	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestAssembleAllHonoursConcurrencyLimit(t *testing.T) {
	synth := &fakeSynth{duration: 15 * time.Second, delay: 20 * time.Millisecond}
	orch := NewOrchestrator(zerolog.Nop(), synth, t.TempDir())

	req := testRequest(
		testPlan(0, 0, 15*time.Second, 0),
		testPlan(1, 20*time.Second, 15*time.Second, fpFar),
		testPlan(2, 40*time.Second, 15*time.Second, fpFarther),
	)
	req.Settings.Concurrency = 1

	if _, err := orch.AssembleAll(context.Background(), req, nil); err != nil {
		t.Fatalf("assembly failed: %v", err)
	}

	synth.mu.Lock()
	max := synth.maxActive
	synth.mu.Unlock()
	if max != 1 {
		t.Errorf("max concurrent variants = %d, want 1", max)
	}
}

const (
	fpFar     uint64 = 0x00000000FFFFFFFF
	fpFarther uint64 = 0xFFFFFFFF00000000
)
