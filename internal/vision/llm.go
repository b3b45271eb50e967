package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"

	"github.com/kezsmith/clipforge/internal/ffmpeg"
)

// LLMProvider asks a chat model to estimate window quality from its measured
// signals. The model sees only numbers, so the call stays cheap and the
// response stays structured.
type LLMProvider struct {
	logger zerolog.Logger
	client openai.Client
	model  string
}

// NewLLMProvider creates a chat-based hint provider
func NewLLMProvider(logger zerolog.Logger, apiKey, model string) *LLMProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &LLMProvider{
		logger: logger.With().Str("component", "vision-llm").Logger(),
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Name returns the provider identifier
func (p *LLMProvider) Name() string {
	return "llm:" + p.model
}

type llmHintResponse struct {
	Quality float64 `json:"quality"`
}

// ScoreHint sends the window's signal profile and parses a 0..100 estimate
func (p *LLMProvider) ScoreHint(ctx context.Context, videoPath string, window ffmpeg.WindowMetrics) (float64, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"start_sec":  window.Start.Seconds(),
		"end_sec":    window.End.Seconds(),
		"motion":     window.Motion,
		"variance":   window.Variance,
		"sharpness":  window.Blur,
		"contrast":   window.Contrast,
		"brightness": window.Brightness,
	})

	systemPrompt := "You rate short-form video windows. Given normalized signal measurements, return a single overall usability estimate. Output JSON only."
	userPrompt := "Return {\"quality\": <0-100>} for this analysis window:\n" + string(payload)

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model:       p.model,
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("hint request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, errors.New("hint model returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	var parsed llmHintResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return 0, fmt.Errorf("unparseable hint response: %w", err)
	}
	if parsed.Quality < 0 || parsed.Quality > 100 {
		return 0, fmt.Errorf("hint out of range: %g", parsed.Quality)
	}

	p.logger.Debug().
		Dur("window_start", window.Start).
		Float64("hint", parsed.Quality).
		Msg("quality hint computed")

	return parsed.Quality, nil
}
