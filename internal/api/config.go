// Package api provides the HTTP surface of PestAlert: photo analysis,
// service health, voice-note downloads and Prometheus metrics.
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
)

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 90 * time.Second // covers a full analysis
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = 12 << 20
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port, empty host binds all interfaces

	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	BodyLimit int64 // Maximum request body size in bytes
	Metrics   bool  // expose GET /metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		Metrics:         true,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.WebServer.Listen != "" {
		cfg.Listen = settings.WebServer.Listen
	}
	if settings.WebServer.MaxUploadBytes > 0 {
		cfg.BodyLimit = settings.WebServer.MaxUploadBytes
	}
	cfg.Metrics = settings.WebServer.Metrics
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return configError("listen address is required")
	}
	if c.ReadTimeout <= 0 {
		return configError("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return configError("write timeout must be positive")
	}
	if c.BodyLimit <= 0 {
		return configError("body limit must be positive")
	}
	return nil
}

// bodyLimit formats BodyLimit for echo's BodyLimit middleware.
func (c *Config) bodyLimit() string {
	return strconv.FormatInt(c.BodyLimit, 10)
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, body_limit=%d, metrics=%v",
		c.Listen, c.BodyLimit, c.Metrics)
}

func configError(msg string) error {
	return errors.Newf("%s", msg).
		Component("api").
		Category(errors.CategoryConfiguration).
		Build()
}
