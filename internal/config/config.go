// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrMediaServerURLRequired is returned when MEDIASERVER_URL is not set.
	ErrMediaServerURLRequired = errors.New("config: MEDIASERVER_URL is required")
	// ErrMediaServerTokenRequired is returned when MEDIASERVER_TOKEN is not set.
	ErrMediaServerTokenRequired = errors.New("config: MEDIASERVER_TOKEN is required")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Media server (encoding backend) settings
	MediaServerURL   string `env:"MEDIASERVER_URL, required" json:"mediaserver_url"`
	MediaServerToken string `env:"MEDIASERVER_TOKEN, required" json:"-"` // Masked in JSON

	// Storage settings
	StagingDir string `env:"STAGING_DIR, default=/tmp/mediaflow" json:"staging_dir"`
	PrefsFile  string `env:"PREFS_FILE, default=/tmp/mediaflow/prefs.json" json:"prefs_file"`

	// Transform settings
	FFmpegPath  string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`

	// Upload polling settings
	PollInterval    time.Duration `env:"POLL_INTERVAL, default=1s" json:"poll_interval"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS, default=60" json:"poll_max_attempts"`

	// Optional S3 archive settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 archive configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "MEDIASERVER_URL") {
			return nil, ErrMediaServerURLRequired
		}
		if strings.Contains(err.Error(), "MEDIASERVER_TOKEN") {
			return nil, ErrMediaServerTokenRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.MediaServerURL == "" {
		return ErrMediaServerURLRequired
	}
	if c.MediaServerToken == "" {
		return ErrMediaServerTokenRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, MediaServerURL: %s, StagingDir: %s, PrefsFile: %s, PollInterval: %s, PollMaxAttempts: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.MediaServerURL,
		c.StagingDir,
		c.PrefsFile,
		c.PollInterval,
		c.PollMaxAttempts,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
