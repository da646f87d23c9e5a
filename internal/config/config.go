package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Library settings
	WorkDir         string   `yaml:"work_dir"`
	OutputDir       string   `yaml:"output_dir"`
	VideoExtensions []string `yaml:"video_extensions"`

	// Editing settings
	DefaultFPS        float64       `yaml:"default_fps"`
	MinSegmentSeconds float64       `yaml:"min_segment_seconds"`
	PollInterval      time.Duration `yaml:"poll_interval"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
}

// FFmpegConfig is the encoding policy applied to every exported segment.
// Audio is always dropped.
type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"`
	Preset     string `yaml:"preset"`
	VideoCodec string `yaml:"video_codec"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

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
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
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

// Validate checks the values the editor cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.DefaultFPS <= 0 {
		errs = append(errs, fmt.Errorf("default_fps must be positive, got %v", c.DefaultFPS))
	}
	if c.MinSegmentSeconds <= 0 {
		errs = append(errs, fmt.Errorf("min_segment_seconds must be positive, got %v", c.MinSegmentSeconds))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval))
	}
	if len(c.VideoExtensions) == 0 {
		errs = append(errs, errors.New("video_extensions must not be empty"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if c.FFmpeg.VideoCodec == "" {
		errs = append(errs, errors.New("ffmpeg.video_codec is required"))
	}
	if c.FFmpeg.Preset == "" {
		errs = append(errs, errors.New("ffmpeg.preset is required"))
	}
	if c.FFmpeg.Threads < 0 {
		errs = append(errs, fmt.Errorf("ffmpeg.threads must not be negative, got %d", c.FFmpeg.Threads))
	}
	return errors.Join(errs...)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WorkDir:           ".",
		OutputDir:         "output",
		VideoExtensions:   []string{".mp4", ".avi", ".mov", ".mkv"},
		DefaultFPS:        30,
		MinSegmentSeconds: 0.1,
		PollInterval:      200 * time.Millisecond,
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    4,
			Preset:     "ultrafast",
			VideoCodec: "libx264",
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".cutdeck", "config.yaml"),
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
	return Default()
}
