package assembly

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/bpradana/weave"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
	"github.com/kezsmith/clipforge/internal/narration"
	"github.com/kezsmith/clipforge/internal/segment"
)

const (
	taskSynthesize = "synthesize"
	taskReconcile  = "reconcile"
	taskMatch      = "match"
	taskBuildPlan  = "plan"

	stagesPerVariant = 4
)

// Orchestrator sequences narration synthesis, duration reconciliation,
// beat matching and render-plan construction for each variant. Variants run
// concurrently and fail independently.
type Orchestrator struct {
	logger    zerolog.Logger
	synth     narration.Provider
	outputDir string
}

// NewOrchestrator creates an assembly orchestrator
func NewOrchestrator(logger zerolog.Logger, synth narration.Provider, outputDir string) *Orchestrator {
	return &Orchestrator{
		logger:    logger.With().Str("component", "assembly").Logger(),
		synth:     synth,
		outputDir: outputDir,
	}
}

// AssembleAll runs the full assembly for every variant in the request. The
// returned slice always has one result per variant; an error is returned only
// when no variant reached Ready.
func (o *Orchestrator) AssembleAll(ctx context.Context, req Request, progress ProgressFunc) ([]VariantResult, error) {
	results := make([]VariantResult, len(req.Variants))
	var completedStages atomic.Int64
	totalStages := int64(stagesPerVariant * len(req.Variants))

	report := func(message string) {
		if progress == nil || totalStages == 0 {
			return
		}
		done := completedStages.Load()
		progress(int(done*100/totalStages), message)
	}

	// Independent goroutine per variant; no shared cancellation, so one
	// variant's failure cannot starve its siblings.
	var g errgroup.Group
	if req.Settings.Concurrency > 0 {
		g.SetLimit(req.Settings.Concurrency)
	}
	for i := range req.Variants {
		idx := i
		g.Go(func() error {
			results[idx] = o.assembleVariant(ctx, req, req.Variants[idx], func(stage Stage) {
				if stage == StageReady {
					return
				}
				report(fmt.Sprintf("variant %d: %s", idx, stage))
			}, &completedStages)
			return nil
		})
	}
	_ = g.Wait()

	ready := 0
	for _, r := range results {
		if r.Err == nil {
			ready++
		}
	}
	report("assembly finished")

	o.logger.Info().
		Int("variants", len(results)).
		Int("ready", ready).
		Msg("assembly complete")

	if ready == 0 && len(results) > 0 {
		return results, fmt.Errorf("all %d variants failed: %w", len(results), results[0].Err)
	}
	return results, nil
}

// assembleVariant executes the sequential stage graph for one variant.
func (o *Orchestrator) assembleVariant(ctx context.Context, req Request, plan segment.VariantPlan, onStage func(Stage), completed *atomic.Int64) VariantResult {
	result := VariantResult{Index: plan.VariantIndex, Stage: StageQueued}

	sink := narration.DirSink{
		Dir: filepath.Join(o.outputDir, fmt.Sprintf("variant_%d", plan.VariantIndex)),
	}

	graph := weave.NewGraph()

	synthTask, err := weave.AddTask(graph, taskSynthesize,
		func(ctx context.Context, deps weave.DependencyResolver) (narration.Result, error) {
			return o.synth.Synthesize(ctx, req.ScriptText, sink)
		})
	if err != nil {
		return failedResult(result, err)
	}

	reconcileTask, err := weave.AddTask(graph, taskReconcile,
		func(ctx context.Context, deps weave.DependencyResolver) (segment.VariantPlan, error) {
			narr, err := synthTask.Value(deps)
			if err != nil {
				return segment.VariantPlan{}, err
			}
			reconciled, warning := segment.Reconcile(plan, req.Pool, narr.Duration,
				req.Settings.ReconcileTolerance, req.Settings.HammingThreshold)
			if warning != nil {
				o.logger.Warn().
					Int("variant", plan.VariantIndex).
					Dur("gap", warning.Gap).
					Msg("insufficient material during reconciliation")
			}
			reconciled.NarrationText = req.ScriptText
			reconciled.NarrationAudio = narr.AudioPath
			return reconciled, nil
		}, weave.DependsOn(synthTask))
	if err != nil {
		return failedResult(result, err)
	}

	matchTask, err := weave.AddTask(graph, taskMatch,
		func(ctx context.Context, deps weave.DependencyResolver) (segment.VariantPlan, error) {
			reconciled, err := reconcileTask.Value(deps)
			if err != nil {
				return segment.VariantPlan{}, err
			}
			narr, err := synthTask.Value(deps)
			if err != nil {
				return segment.VariantPlan{}, err
			}
			beats := BeatsFromScript(req.ScriptText, narr.Duration, req.KeywordHints)
			matches := segment.MatchBeats(beats, reconciled.Segments)
			reconciled.CaptionBeats = make([]segment.CaptionBeat, 0, len(matches))
			for _, m := range matches {
				reconciled.CaptionBeats = append(reconciled.CaptionBeats, m.Beat)
			}
			return reconciled, nil
		}, weave.DependsOn(reconcileTask, synthTask))
	if err != nil {
		return failedResult(result, err)
	}

	planTask, err := weave.AddTask(graph, taskBuildPlan,
		func(ctx context.Context, deps weave.DependencyResolver) (*RenderPlan, error) {
			enriched, err := matchTask.Value(deps)
			if err != nil {
				return nil, err
			}
			narr, err := synthTask.Value(deps)
			if err != nil {
				return nil, err
			}
			return buildRenderPlan(req, enriched, narr), nil
		}, weave.DependsOn(matchTask, synthTask))
	if err != nil {
		return failedResult(result, err)
	}

	hooks := weave.Hooks{
		OnStart: func(_ context.Context, ev weave.TaskEvent) {
			if stage, ok := stageForTask[ev.Metadata.Name]; ok {
				result.Stage = stage
				onStage(stage)
			}
		},
		OnSuccess: func(_ context.Context, ev weave.TaskEvent) {
			completed.Add(1)
		},
	}

	exec := graph.Start(ctx, weave.WithGlobalHooks(hooks))
	results, _, err := exec.Await()
	if err != nil {
		o.logger.Error().
			Int("variant", plan.VariantIndex).
			Err(err).
			Msg("variant assembly failed")
		return failedResult(result, err)
	}

	renderPlan, err := planTask.Value(results)
	if err != nil {
		return failedResult(result, err)
	}
	enriched, err := matchTask.Value(results)
	if err != nil {
		return failedResult(result, err)
	}

	result.Stage = StageReady
	result.Plan = renderPlan
	result.Enriched = enriched
	result.Warnings = enriched.Warnings
	onStage(StageReady)
	return result
}

func failedResult(result VariantResult, err error) VariantResult {
	result.Stage = StageFailed
	result.Err = err
	return result
}

// buildRenderPlan copies the enriched plan into the value object handed to
// the media toolkit.
func buildRenderPlan(req Request, plan segment.VariantPlan, narr narration.Result) *RenderPlan {
	segments := make([]ffmpeg.PlanSegment, 0, len(plan.Segments))
	for _, s := range plan.Segments {
		segments = append(segments, ffmpeg.PlanSegment{Start: s.Start, End: s.End})
	}
	return &RenderPlan{
		VariantIndex:      plan.VariantIndex,
		SourcePath:        req.SourcePath,
		Segments:          segments,
		Filters:           append([]string(nil), req.Settings.Filters...),
		NarrationAudio:    narr.AudioPath,
		NarrationDuration: narr.Duration,
		CaptionBeats:      plan.CaptionBeats,
	}
}
