package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/kezsmith/clipforge/internal/assembly"
	"github.com/kezsmith/clipforge/internal/config"
	"github.com/kezsmith/clipforge/internal/ffmpeg"
	"github.com/kezsmith/clipforge/internal/jobs"
	"github.com/kezsmith/clipforge/internal/narration"
	"github.com/kezsmith/clipforge/internal/segment"
	"github.com/kezsmith/clipforge/internal/store"
	"github.com/kezsmith/clipforge/internal/vision"
	"github.com/kezsmith/clipforge/pkg/util"
)

// Pipeline wires the analysis, selection, assembly and job layers together
// behind one facade for the CLI.
type Pipeline struct {
	logger       zerolog.Logger
	cfg          *config.Config
	ffmpeg       *ffmpeg.Executor
	extractor    *ffmpeg.MetricsExtractor
	scorer       *segment.Scorer
	selector     *segment.Selector
	hints        vision.HintProvider
	hintCloser   io.Closer
	coordinator  *jobs.Coordinator
	orchestrator *assembly.Orchestrator
}

// New creates a fully wired pipeline from application config
func New(logger zerolog.Logger, cfg *config.Config) (*Pipeline, error) {
	ffmpegExec, err := ffmpeg.New(logger, cfg.FFmpeg.BinaryPath, cfg.FFmpeg.Threads)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	scorer, err := segment.NewScorer(cfg.Analysis.HintBlend)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		cfg:       cfg,
		ffmpeg:    ffmpegExec,
		extractor: ffmpeg.NewMetricsExtractor(logger, ffmpegExec, cfg.Analysis.SampleFPS),
		scorer:    scorer,
		selector:  segment.NewSelector(logger),
	}

	if err := p.initHints(logger); err != nil {
		return nil, err
	}

	synth, err := p.buildNarration(logger)
	if err != nil {
		return nil, err
	}
	p.orchestrator = assembly.NewOrchestrator(logger, synth, cfg.Assembly.OutputDir)

	p.coordinator = jobs.NewCoordinator(logger, p.buildStore(logger))

	return p, nil
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	if p.hintCloser != nil {
		return p.hintCloser.Close()
	}
	return nil
}

func (p *Pipeline) initHints(logger zerolog.Logger) error {
	switch p.cfg.Vision.Provider {
	case "":
		return nil
	case "onnx":
		provider, err := vision.NewONNXProvider(logger, p.ffmpeg, p.cfg.Vision.ModelPath)
		if err != nil {
			return fmt.Errorf("failed to initialize vision hints: %w", err)
		}
		p.hints = provider
		p.hintCloser = provider
		return nil
	case "llm":
		p.hints = vision.NewLLMProvider(logger, os.Getenv("OPENAI_API_KEY"), p.cfg.Vision.LLMModel)
		return nil
	default:
		return fmt.Errorf("unknown vision provider: %s", p.cfg.Vision.Provider)
	}
}

func (p *Pipeline) buildNarration(logger zerolog.Logger) (narration.Provider, error) {
	build := func(name string) (narration.Provider, error) {
		switch name {
		case "command":
			return narration.NewCommandProvider(logger, p.cfg.Narration.Command, p.cfg.Narration.Voice, p.ffmpeg)
		case "openai":
			return narration.NewOpenAIProvider(logger, os.Getenv("OPENAI_API_KEY"),
				p.cfg.Narration.Model, p.cfg.Narration.Voice, p.ffmpeg), nil
		default:
			return nil, fmt.Errorf("unknown narration provider: %s", name)
		}
	}

	primary, err := build(p.cfg.Narration.Provider)
	if err != nil {
		return nil, err
	}
	if p.cfg.Narration.Fallback == "" {
		return primary, nil
	}

	fallback, err := build(p.cfg.Narration.Fallback)
	if err != nil {
		return nil, err
	}
	return narration.NewChain(logger, primary, fallback), nil
}

// buildStore assembles the two-tier job store. A broken durable tier is not
// fatal; the coordinator keeps running on the in-memory tier alone.
func (p *Pipeline) buildStore(logger zerolog.Logger) store.Store {
	memory := store.NewMemoryStore()

	durable, err := store.NewFileStore(p.cfg.Store.Dir)
	if err != nil {
		p.logger.Warn().Err(err).Str("dir", p.cfg.Store.Dir).Msg("durable job store unavailable, using memory only")
		return memory
	}

	return store.NewFallback(logger, durable, memory, nil)
}

// AnalyzeResult is the output of one analysis run: the deduplicated segment
// pool and the variant plans drawn from it.
type AnalyzeResult struct {
	SourcePath string
	Pool       []segment.Segment
	Variants   []segment.VariantPlan
	Warnings   []segment.Warning
}

// Analyze measures the source video, scores analysis windows, collapses
// near-duplicates and selects variant plans.
func (p *Pipeline) Analyze(ctx context.Context, input string) (*AnalyzeResult, error) {
	started := time.Now()

	windows, err := p.extractor.Extract(ctx, input,
		util.Seconds(p.cfg.Analysis.WindowSeconds),
		util.Seconds(p.cfg.Analysis.StrideSeconds))
	if err != nil {
		return nil, err
	}

	segments := make([]segment.Segment, 0, len(windows))
	for _, w := range windows {
		seg, err := p.scorer.Score(input, w, p.hintFor(ctx, input, w))
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	pool := segment.Dedupe(segment.SortByScore(segments), p.cfg.Selection.HammingThreshold)

	variants, warning, err := p.selector.Select(pool,
		util.Seconds(p.cfg.Selection.TargetSeconds),
		util.Seconds(p.cfg.Selection.ToleranceSeconds),
		p.cfg.Selection.VariantCount)
	if err != nil {
		return nil, err
	}

	result := &AnalyzeResult{
		SourcePath: input,
		Pool:       pool,
		Variants:   variants,
	}
	if warning != nil {
		result.Warnings = append(result.Warnings, warning)
	}

	p.logger.Info().
		Int("windows", len(windows)).
		Int("pool", len(pool)).
		Int("variants", len(variants)).
		Dur("elapsed", time.Since(started)).
		Msg("analysis complete")

	return result, nil
}

// hintFor asks the configured vision provider for a quality estimate. Hint
// failures degrade to formula-only scoring rather than failing the window.
func (p *Pipeline) hintFor(ctx context.Context, input string, w ffmpeg.WindowMetrics) *float64 {
	if p.hints == nil {
		return nil
	}
	hint, err := p.hints.ScoreHint(ctx, input, w)
	if err != nil {
		p.logger.Warn().
			Str("provider", p.hints.Name()).
			Dur("window_start", w.Start).
			Err(err).
			Msg("quality hint unavailable")
		return nil
	}
	return &hint
}

// AssembleOptions tunes one script-driven assembly job.
type AssembleOptions struct {
	ProjectID    string
	ProfileID    string
	KeywordHints []string
	Filters      []string
	Render       bool
}

// Assemble runs the full script-to-variants flow under a coordinated job:
// analysis, narration synthesis, reconciliation, beat matching and render-plan
// construction, with optional final rendering of ready variants.
func (p *Pipeline) Assemble(ctx context.Context, input, script string, opts AssembleOptions) (*jobs.Job, []assembly.VariantResult, error) {
	if opts.ProjectID == "" {
		opts.ProjectID = filepath.Base(input)
	}
	if opts.ProfileID == "" {
		opts.ProfileID = "default"
	}

	job, err := p.coordinator.CreateJob(opts.ProjectID, opts.ProfileID)
	if err != nil {
		return nil, nil, err
	}

	jobCtx := ctx
	if p.cfg.Assembly.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.cfg.Assembly.JobTimeout)
		defer cancel()
	}

	var results []assembly.VariantResult
	err = p.coordinator.RunUnderJob(jobCtx, job, func(ctx context.Context) error {
		analysis, err := p.Analyze(ctx, input)
		if err != nil {
			return err
		}

		req := assembly.Request{
			SourcePath:   input,
			ScriptText:   script,
			KeywordHints: opts.KeywordHints,
			Variants:     analysis.Variants,
			Pool:         analysis.Pool,
			Settings: assembly.Settings{
				ReconcileTolerance: util.Seconds(p.cfg.Assembly.ReconcileTolerance),
				HammingThreshold:   p.cfg.Selection.HammingThreshold,
				Filters:            opts.Filters,
				Concurrency:        p.cfg.Concurrency,
			},
		}

		results, err = p.orchestrator.AssembleAll(ctx, req, func(percent int, message string) {
			if err := p.coordinator.UpdateProgress(job.ID, percent, message); err != nil {
				p.logger.Warn().Str("job", job.ID).Err(err).Msg("progress update dropped")
			}
		})
		if err != nil {
			return err
		}

		p.recordOutcome(job.ID, analysis, results)

		if opts.Render {
			return p.renderReady(ctx, results)
		}
		return nil
	})
	if err != nil {
		return job, results, err
	}

	final, err := p.coordinator.GetJob(job.ID)
	if err != nil {
		return job, results, nil
	}
	return final, results, nil
}

// recordOutcome attaches warnings and per-variant summaries to the job record
func (p *Pipeline) recordOutcome(jobID string, analysis *AnalyzeResult, results []assembly.VariantResult) {
	var warnings []string
	for _, w := range analysis.Warnings {
		warnings = append(warnings, w.Category()+": "+w.Message())
	}

	variants := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		entry := map[string]interface{}{
			"index": r.Index,
			"stage": string(r.Stage),
		}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		}
		for _, w := range r.Warnings {
			warnings = append(warnings, fmt.Sprintf("variant %d %s: %s", r.Index, w.Category(), w.Message()))
		}
		variants = append(variants, entry)
	}

	if len(warnings) > 0 {
		if err := p.coordinator.SetJobData(jobID, "warnings", warnings); err != nil {
			p.logger.Warn().Str("job", jobID).Err(err).Msg("warning payload dropped")
		}
	}
	if err := p.coordinator.SetJobData(jobID, "variants", variants); err != nil {
		p.logger.Warn().Str("job", jobID).Err(err).Msg("variant payload dropped")
	}
}

// renderReady renders every ready variant's plan into the output directory.
func (p *Pipeline) renderReady(ctx context.Context, results []assembly.VariantResult) error {
	if err := util.EnsureDir(p.cfg.Assembly.OutputDir); err != nil {
		return err
	}
	if p.cfg.TempDir != "" {
		if err := util.EnsureDir(p.cfg.TempDir); err != nil {
			return err
		}
	}

	for _, r := range results {
		if r.Err != nil || r.Plan == nil {
			continue
		}
		output := filepath.Join(p.cfg.Assembly.OutputDir, fmt.Sprintf("variant_%d.mp4", r.Index))
		err := p.ffmpeg.RenderPlan(ctx, ffmpeg.PlanOptions{
			Input:       r.Plan.SourcePath,
			Segments:    r.Plan.Segments,
			AudioPath:   r.Plan.NarrationAudio,
			Filters:     r.Plan.Filters,
			ScaleWidth:  p.cfg.Assembly.OutputWidth,
			ScaleHeight: p.cfg.Assembly.OutputHeight,
			FPS:         p.cfg.Assembly.OutputFPS,
			TempDir:     p.cfg.TempDir,
			Output:      output,
			Preset:      p.cfg.FFmpeg.Preset,
		})
		if err != nil {
			return fmt.Errorf("failed to render variant %d: %w", r.Index, err)
		}
		p.logger.Info().Int("variant", r.Index).Str("output", output).Msg("variant rendered")
	}
	return nil
}

// Jobs exposes the coordinator for job inspection commands
func (p *Pipeline) Jobs() *jobs.Coordinator {
	return p.coordinator
}
