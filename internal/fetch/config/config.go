// Package config provides configuration for the adaptive result cache.
package config

import (
	"fmt"
	"time"
)

// Config holds the result cache settings.
type Config struct {
	// SmallResultThreshold is the total-count boundary below which a result
	// set is fetched whole and paginated in memory. Keep it at or below the
	// query engine's max page size so the full fetch stays a single request.
	SmallResultThreshold int `yaml:"small_result_threshold"`

	// TTL is how long cached result sets and prefetched pages are served.
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval is how often expired entries are evicted.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// PrefetchDisabled turns off background next-page prefetch for large
	// result sets.
	PrefetchDisabled bool `yaml:"prefetch_disabled"`

	// PrefetchTimeout bounds a background prefetch request.
	PrefetchTimeout time.Duration `yaml:"prefetch_timeout"`
}

// DefaultConfig returns the default cache settings.
func DefaultConfig() Config {
	return Config{
		SmallResultThreshold: 100,
		TTL:                  2 * time.Minute,
		SweepInterval:        30 * time.Second,
		PrefetchTimeout:      5 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.SmallResultThreshold == 0 {
		c.SmallResultThreshold = defaults.SmallResultThreshold
	}
	if c.TTL == 0 {
		c.TTL = defaults.TTL
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.PrefetchTimeout == 0 {
		c.PrefetchTimeout = defaults.PrefetchTimeout
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.SmallResultThreshold <= 0 {
		return fmt.Errorf("fetch.small_result_threshold must be positive")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("fetch.ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("fetch.sweep_interval must be positive")
	}
	if c.PrefetchTimeout <= 0 {
		return fmt.Errorf("fetch.prefetch_timeout must be positive")
	}
	return nil
}
