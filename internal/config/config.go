package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	TempDir     string `yaml:"temp_dir"`
	Concurrency int    `yaml:"concurrency"`

	// Frame analysis settings
	Analysis AnalysisConfig `yaml:"analysis"`

	// Segment selection settings
	Selection SelectionConfig `yaml:"selection"`

	// Assembly settings
	Assembly AssemblyConfig `yaml:"assembly"`

	// Narration synthesis settings
	Narration NarrationConfig `yaml:"narration"`

	// Vision hint settings
	Vision VisionConfig `yaml:"vision"`

	// Job store settings
	Store StoreConfig `yaml:"store"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
}

type AnalysisConfig struct {
	WindowSeconds float64 `yaml:"window_seconds"`
	StrideSeconds float64 `yaml:"stride_seconds"`
	SampleFPS     float64 `yaml:"sample_fps"`
	// HintBlend is the share of the composite score taken from the external
	// vision hint when one is available. Zero disables blending entirely.
	HintBlend float64 `yaml:"hint_blend"`
}

type SelectionConfig struct {
	TargetSeconds    float64 `yaml:"target_seconds"`
	ToleranceSeconds float64 `yaml:"tolerance_seconds"`
	VariantCount     int     `yaml:"variant_count"`
	HammingThreshold int     `yaml:"hamming_threshold"`
}

type AssemblyConfig struct {
	OutputDir          string        `yaml:"output_dir"`
	ReconcileTolerance float64       `yaml:"reconcile_tolerance_seconds"`
	JobTimeout         time.Duration `yaml:"job_timeout"`
	// Output dimensions; zero keeps the source geometry.
	OutputWidth  int     `yaml:"output_width"`
	OutputHeight int     `yaml:"output_height"`
	OutputFPS    float64 `yaml:"output_fps"`
}

type NarrationConfig struct {
	Provider string `yaml:"provider"` // "command" or "openai"
	Fallback string `yaml:"fallback"` // optional secondary provider
	Command  string `yaml:"command"`
	Voice    string `yaml:"voice"`
	Model    string `yaml:"model"`
}

type VisionConfig struct {
	Provider  string `yaml:"provider"` // "", "onnx" or "llm"
	ModelPath string `yaml:"model_path"`
	LLMModel  string `yaml:"llm_model"`
}

type StoreConfig struct {
	Dir string `yaml:"dir"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	Threads    int    `yaml:"threads"`
	Preset     string `yaml:"preset"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		TempDir:     "./temp",
		Concurrency: 4,
		Analysis: AnalysisConfig{
			WindowSeconds: 3.0,
			StrideSeconds: 1.5,
			SampleFPS:     4.0,
			HintBlend:     0.30,
		},
		Selection: SelectionConfig{
			TargetSeconds:    15.0,
			ToleranceSeconds: 1.5,
			VariantCount:     3,
			HammingThreshold: 12,
		},
		Assembly: AssemblyConfig{
			OutputDir:          "./output",
			ReconcileTolerance: 1.0,
			JobTimeout:         15 * time.Minute,
		},
		Narration: NarrationConfig{
			Provider: "command",
			Command:  "edge-tts",
			Voice:    "en-US-GuyNeural",
			Model:    "tts-1",
		},
		Vision: VisionConfig{
			Provider: "",
			LLMModel: "gpt-4.1-mini",
		},
		Store: StoreConfig{
			Dir: "./jobs",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			Threads:    0,
			Preset:     "medium",
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".clipforge", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
