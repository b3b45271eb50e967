// Package narration abstracts external narration-synthesis providers behind
// one contract. Provider selection and fallback policy are configured by the
// caller; providers themselves never retry.
package narration

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Result describes one synthesized narration track.
type Result struct {
	AudioPath string
	Duration  time.Duration
	Provider  string
}

// Sink supplies the output location for synthesized audio. Path ownership
// stays with the caller; providers only write through it.
type Sink interface {
	Create(name string) (io.WriteCloser, string, error)
}

// DirSink writes narration audio into a profile/project-scoped directory.
type DirSink struct {
	Dir string
}

// Create opens name under the sink directory
func (s DirSink) Create(name string) (io.WriteCloser, string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create narration dir: %w", err)
	}
	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// Provider synthesizes narration audio for a script text.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, sink Sink) (Result, error)
}

// DurationProber measures the duration of a finished audio file.
type DurationProber interface {
	ProbeAudioDuration(ctx context.Context, audioPath string) (time.Duration, error)
}

// Chain tries providers in order, falling through on failure. This is the
// caller-configured selection policy; individual providers stay ignorant of
// each other.
type Chain struct {
	logger    zerolog.Logger
	providers []Provider
}

// NewChain builds a provider chain
func NewChain(logger zerolog.Logger, providers ...Provider) *Chain {
	return &Chain{
		logger:    logger.With().Str("component", "narration").Logger(),
		providers: providers,
	}
}

// Name identifies the chain by its primary provider
func (c *Chain) Name() string {
	if len(c.providers) == 0 {
		return "none"
	}
	return c.providers[0].Name()
}

// Synthesize runs the first provider that succeeds
func (c *Chain) Synthesize(ctx context.Context, text string, sink Sink) (Result, error) {
	var lastErr error
	for _, p := range c.providers {
		res, err := p.Synthesize(ctx, text, sink)
		if err == nil {
			return res, nil
		}
		lastErr = err
		c.logger.Warn().
			Str("provider", p.Name()).
			Err(err).
			Msg("narration provider failed, trying next")
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no narration providers configured")
	}
	return Result{}, fmt.Errorf("narration synthesis failed: %w", lastErr)
}
