package httpserver

import (
	"fmt"
	"time"

	"github.com/tphakala/go-remix/internal/conf"
)

// Default constants for the HTTP server.
const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxUploadMB     = 100
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port to bind

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // renders of long tracks take a while
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MaxUploadMB int // request body limit in megabytes

	Log   conf.LogConfig // access log file, stdout logging when disabled
	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxUploadMB:     DefaultMaxUploadMB,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings == nil {
		return cfg
	}
	if settings.Server.Listen != "" {
		cfg.Listen = settings.Server.Listen
	}
	if settings.Server.MaxUploadMB > 0 {
		cfg.MaxUploadMB = settings.Server.MaxUploadMB
	}
	cfg.Log = settings.Server.Log
	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("read and write timeouts must be positive")
	}
	if c.Log.Enabled && c.Log.Path == "" {
		return fmt.Errorf("server log enabled without a path")
	}
	return nil
}

// BodyLimit returns the upload limit in the form echo's BodyLimit expects.
func (c *Config) BodyLimit() string {
	return fmt.Sprintf("%dM", c.MaxUploadMB)
}
