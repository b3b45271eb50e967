package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kezsmith/clipforge/pkg/util"
)

// PlanSegment is one ordered time range of a render plan.
type PlanSegment struct {
	Start time.Duration
	End   time.Duration
}

// PlanOptions describes a full render: ordered segments cut from one source,
// optional narration track, and filter parameters applied to the final pass.
type PlanOptions struct {
	Input        string
	Segments     []PlanSegment
	AudioPath    string
	Filters      []string
	ScaleWidth   int
	ScaleHeight  int
	FPS          float64
	// TempDir holds intermediate render files; empty uses the system default.
	TempDir      string
	Output       string
	VideoCodec   string
	AudioCodec   string
	CRF          int
	Preset       string
	ProgressFunc ProgressFunc
}

// needsFinalPass reports whether the concat output still needs filtering or
// narration muxing.
func (o PlanOptions) needsFinalPass() bool {
	return o.AudioPath != "" || len(o.Filters) > 0 || o.ScaleWidth > 0 || o.FPS > 0
}

// ClipOptions defines clip extraction parameters
type ClipOptions struct {
	Start        time.Duration
	End          time.Duration
	Output       string
	CopyCodec    bool // If true, use -c copy for fast extraction
	VideoCodec   string
	AudioCodec   string
	CRF          int
	ProgressFunc ProgressFunc
}

// ExtractClip cuts a segment from a video
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) error {
	duration := opts.End - opts.Start
	if duration <= 0 {
		return fmt.Errorf("invalid clip duration: end must be after start")
	}

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", duration).
		Bool("copy_codec", opts.CopyCodec).
		Msg("extracting clip")

	args := []string{
		"-i", input,
		"-ss", util.FormatDuration(opts.Start),
		"-t", util.FormatDuration(duration),
	}

	if opts.CopyCodec {
		args = append(args, "-c", "copy")
	} else {
		codec := opts.VideoCodec
		if codec == "" {
			codec = DefaultVideoCodec
		}
		args = append(args, "-c:v", codec)

		audioCodec := opts.AudioCodec
		if audioCodec == "" {
			audioCodec = DefaultAudioCodec
		}
		args = append(args, "-c:a", audioCodec)

		crf := opts.CRF
		if crf == 0 {
			crf = DefaultCRF
		}
		args = append(args, "-crf", fmt.Sprintf("%d", crf))
	}

	args = append(args, opts.Output)

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("clip extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	return nil
}

// ExtractFrame saves a single frame at the given timestamp as a JPEG
func (e *Executor) ExtractFrame(ctx context.Context, input string, timestamp time.Duration, output string) error {
	args := []string{
		"-ss", util.FormatDuration(timestamp),
		"-i", input,
		"-vframes", "1",
		"-q:v", "2",
		output,
	}

	runOpts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame extraction")
		},
	}

	return e.Run(ctx, runOpts)
}

// RenderPlan extracts every plan segment, concatenates them in order and
// muxes the narration track over the result when one is supplied.
func (e *Executor) RenderPlan(ctx context.Context, opts PlanOptions) error {
	if opts.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if len(opts.Segments) == 0 {
		return fmt.Errorf("render plan has no segments")
	}

	e.logger.Info().
		Str("input", opts.Input).
		Str("output", opts.Output).
		Int("segments", len(opts.Segments)).
		Bool("narration", opts.AudioPath != "").
		Msg("rendering plan")

	workDir, err := os.MkdirTemp(opts.TempDir, "clipforge-render-")
	if err != nil {
		return fmt.Errorf("failed to create render work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	parts := make([]string, 0, len(opts.Segments))
	for i, seg := range opts.Segments {
		part := filepath.Join(workDir, fmt.Sprintf("part_%03d.mp4", i))
		clipOpts := ClipOptions{
			Start:        seg.Start,
			End:          seg.End,
			Output:       part,
			VideoCodec:   opts.VideoCodec,
			AudioCodec:   opts.AudioCodec,
			CRF:          opts.CRF,
			ProgressFunc: opts.ProgressFunc,
		}
		if err := e.ExtractClip(ctx, opts.Input, clipOpts); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		parts = append(parts, part)
	}

	concatOut := opts.Output
	if opts.needsFinalPass() {
		concatOut = filepath.Join(workDir, "concat.mp4")
	}

	if err := e.concat(ctx, parts, concatOut, opts.ProgressFunc); err != nil {
		return fmt.Errorf("concat failed: %w", err)
	}

	if concatOut == opts.Output {
		return nil
	}

	return e.finalPass(ctx, concatOut, opts)
}

// finalPass applies filters and muxes the narration audio.
func (e *Executor) finalPass(ctx context.Context, input string, opts PlanOptions) error {
	args := []string{"-i", input}

	if opts.AudioPath != "" {
		args = append(args, "-i", opts.AudioPath)
	}

	fb := NewFilterBuilder()
	fb.Scale(opts.ScaleWidth, opts.ScaleHeight)
	fb.FPS(opts.FPS)
	for _, f := range opts.Filters {
		fb.Custom(f)
	}
	if chain := fb.Build(); chain != "" {
		args = append(args, "-vf", chain)
	}

	videoCodec := opts.VideoCodec
	if videoCodec == "" {
		videoCodec = DefaultVideoCodec
	}
	args = append(args, "-c:v", videoCodec)

	crf := opts.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	args = append(args, "-crf", fmt.Sprintf("%d", crf))

	preset := opts.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	args = append(args, "-preset", preset)

	if opts.AudioPath != "" {
		// Narration replaces the source audio; stop at the shorter stream.
		args = append(args,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:a", DefaultAudioCodec,
			"-shortest",
		)
	}

	args = append(args, opts.Output)

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("final render pass")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("final render pass failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("render complete")
	return nil
}

// concat merges multiple video files using the concat demuxer
func (e *Executor) concat(ctx context.Context, inputs []string, output string, progressFunc ProgressFunc) error {
	concatFile, err := e.createConcatFile(inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatFile)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatFile,
		"-c", "copy",
		output,
	}

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: progressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("concatenating")
		},
	}

	return e.Run(ctx, runOpts)
}

// createConcatFile generates a temporary file list for ffmpeg concat
func (e *Executor) createConcatFile(inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp("", "clipforge-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", absPath); err != nil {
			return "", err
		}
	}

	return tmpFile.Name(), nil
}
