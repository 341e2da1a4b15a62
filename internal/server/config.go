package server

import (
	"fmt"
	"time"

	"github.com/cliniscope/cliniscope/internal/server/ratelimit"
)

// Config holds the HTTP server settings.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// RequestTimeout bounds each request's context. Store calls inherit it,
	// so a slow query surfaces as a retryable timeout, never a hung request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	EnableCORS bool `yaml:"enable_cors"`
	// AllowedOrigins for CORS. Empty allows any origin (development).
	AllowedOrigins []string `yaml:"allowed_origins"`

	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// DefaultConfig returns safe defaults for development.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		RequestTimeout:  15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit:       ratelimit.DefaultConfig(),
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = defaults.RateLimit.Requests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = defaults.RateLimit.Window
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	return nil
}
