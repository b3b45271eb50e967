package assembly

import (
	"time"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
	"github.com/kezsmith/clipforge/internal/segment"
)

// Stage is the assembly state of one variant. Transitions are sequential;
// Failed is reachable from any non-terminal stage.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageSynthesizing Stage = "synthesizing_narration"
	StageReconciling  Stage = "reconciling_duration"
	StageMatching     Stage = "matching_segments"
	StageBuildingPlan Stage = "building_render_plan"
	StageReady        Stage = "ready"
	StageFailed       Stage = "failed"
)

// stageForTask maps stage-graph task names onto variant stages.
var stageForTask = map[string]Stage{
	taskSynthesize: StageSynthesizing,
	taskReconcile:  StageReconciling,
	taskMatch:      StageMatching,
	taskBuildPlan:  StageBuildingPlan,
}

// RenderPlan is the value object handed to the external media toolkit:
// ordered segment time ranges, filter parameters and the narration track.
type RenderPlan struct {
	VariantIndex      int
	SourcePath        string
	Segments          []ffmpeg.PlanSegment
	Filters           []string
	NarrationAudio    string
	NarrationDuration time.Duration
	CaptionBeats      []segment.CaptionBeat
}

// Request describes one script-driven assembly run.
type Request struct {
	SourcePath   string
	ScriptText   string
	KeywordHints []string
	Variants     []segment.VariantPlan
	Pool         []segment.Segment
	Settings     Settings
}

// Settings carries assembly tuning knobs.
type Settings struct {
	ReconcileTolerance time.Duration
	HammingThreshold   int
	Filters            []string
	// Concurrency caps how many variants assemble at once. Zero means no cap.
	Concurrency int
}

// VariantResult reports one variant's outcome; failures are isolated per
// variant and never affect siblings.
type VariantResult struct {
	Index    int
	Stage    Stage
	Plan     *RenderPlan
	Enriched segment.VariantPlan
	Warnings []segment.Warning
	Err      error
}

// ProgressFunc receives coarse progress as variants advance through stages.
type ProgressFunc func(percent int, message string)
