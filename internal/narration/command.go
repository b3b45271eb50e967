package narration

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// CommandProvider shells out to an external TTS binary. The command must
// accept `--text "..."` and an output path; edge-tts uses `--write-media`,
// anything else gets `--output`.
type CommandProvider struct {
	logger  zerolog.Logger
	command string
	voice   string
	prober  DurationProber
}

// NewCommandProvider creates a provider around an external TTS command
func NewCommandProvider(logger zerolog.Logger, command, voice string, prober DurationProber) (*CommandProvider, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("tts command is required")
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("tts command not found: %w", err)
	}
	return &CommandProvider{
		logger:  logger.With().Str("component", "tts-command").Logger(),
		command: command,
		voice:   voice,
		prober:  prober,
	}, nil
}

// Name returns the provider identifier
func (p *CommandProvider) Name() string {
	return "command:" + filepath.Base(p.command)
}

// Synthesize runs the TTS command into a temp file and copies the audio
// through the caller's sink.
func (p *CommandProvider) Synthesize(ctx context.Context, text string, sink Sink) (Result, error) {
	tmp, err := os.CreateTemp("", "clipforge-tts-*.mp3")
	if err != nil {
		return Result{}, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	var cmd *exec.Cmd
	if filepath.Base(p.command) == "edge-tts" {
		cmd = exec.CommandContext(ctx, p.command,
			"--voice", p.voice,
			"--text", text,
			"--write-media", tmpPath,
		)
	} else {
		cmd = exec.CommandContext(ctx, p.command,
			"--text", text,
			"--output", tmpPath,
		)
	}

	p.logger.Debug().Str("command", p.command).Int("text_len", len(text)).Msg("synthesizing narration")

	if out, err := cmd.CombinedOutput(); err != nil {
		return Result{}, fmt.Errorf("tts command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	src, err := os.Open(tmpPath)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	dst, outPath, err := sink.Create("narration.mp3")
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return Result{}, fmt.Errorf("failed to write narration audio: %w", err)
	}
	if err := dst.Close(); err != nil {
		return Result{}, err
	}

	duration, err := p.prober.ProbeAudioDuration(ctx, outPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to measure narration duration: %w", err)
	}

	p.logger.Info().
		Str("audio", outPath).
		Dur("duration", duration).
		Msg("narration synthesized")

	return Result{AudioPath: outPath, Duration: duration, Provider: p.Name()}, nil
}
