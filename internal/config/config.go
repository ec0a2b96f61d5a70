package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"DLQ_ENV" default:"development"`

	HTTPPort    int           `envconfig:"DLQ_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"DLQ_HTTP_TIMEOUT" default:"15s"`

	MaxConcurrent int           `envconfig:"DLQ_MAX_CONCURRENT" default:"3"`
	StopGrace     time.Duration `envconfig:"DLQ_STOP_GRACE" default:"30s"`
	SaveDebounce  time.Duration `envconfig:"DLQ_SAVE_DEBOUNCE" default:"250ms"`

	DownloadDir string `envconfig:"DLQ_DOWNLOAD_DIR" default:"./downloads"`
	StateFile   string `envconfig:"DLQ_STATE_FILE" default:"./queue_state.json"`

	ShutdownTimeout time.Duration `envconfig:"DLQ_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"DLQ_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"DLQ_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent downloads must be at least 1: %d", c.MaxConcurrent)
	}

	if c.StopGrace <= 0 {
		return fmt.Errorf("stop grace period must be positive: %s", c.StopGrace)
	}

	if c.SaveDebounce <= 0 {
		return fmt.Errorf("save debounce must be positive: %s", c.SaveDebounce)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state file cannot be empty")
	}

	return nil
}
