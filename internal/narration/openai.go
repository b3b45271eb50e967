package narration

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// OpenAIProvider synthesizes narration through the OpenAI speech endpoint.
type OpenAIProvider struct {
	logger zerolog.Logger
	client openai.Client
	model  string
	voice  string
	prober DurationProber
}

// NewOpenAIProvider creates a speech-synthesis provider. apiKey may be empty
// when the environment already carries OPENAI_API_KEY.
func NewOpenAIProvider(logger zerolog.Logger, apiKey, model, voice string, prober DurationProber) *OpenAIProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = "tts-1"
	}
	if voice == "" {
		voice = "onyx"
	}
	return &OpenAIProvider{
		logger: logger.With().Str("component", "tts-openai").Logger(),
		client: openai.NewClient(opts...),
		model:  model,
		voice:  voice,
		prober: prober,
	}
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return "openai:" + p.model
}

// Synthesize requests speech audio and streams it through the caller's sink
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string, sink Sink) (Result, error) {
	p.logger.Debug().Str("model", p.model).Int("text_len", len(text)).Msg("synthesizing narration")

	resp, err := p.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(p.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Body.Close()

	dst, outPath, err := sink.Create("narration.mp3")
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
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
