// Package config provides configuration for schema discovery.
package config

import (
	"fmt"
	"time"
)

// Config holds the schema discovery settings. Sampling keeps catalog builds
// sublinear in corpus size; staleness only affects suggestion quality, never
// query correctness.
type Config struct {
	// SampleSize is how many documents are sampled per source.
	SampleSize int `yaml:"sample_size"`

	// TTL is how long a catalog snapshot is served before a rebuild.
	TTL time.Duration `yaml:"ttl"`

	// MaxSampleValues caps the representative values kept per field.
	MaxSampleValues int `yaml:"max_sample_values"`

	// MaxDepth bounds dotted-path recursion into nested attribute maps.
	MaxDepth int `yaml:"max_depth"`
}

// DefaultConfig returns the default discovery settings.
func DefaultConfig() Config {
	return Config{
		SampleSize:      200,
		TTL:             10 * time.Minute,
		MaxSampleValues: 8,
		MaxDepth:        3,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.SampleSize == 0 {
		c.SampleSize = defaults.SampleSize
	}
	if c.TTL == 0 {
		c.TTL = defaults.TTL
	}
	if c.MaxSampleValues == 0 {
		c.MaxSampleValues = defaults.MaxSampleValues
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = defaults.MaxDepth
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.SampleSize <= 0 {
		return fmt.Errorf("schema.sample_size must be positive")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("schema.ttl must be positive")
	}
	if c.MaxSampleValues <= 0 {
		return fmt.Errorf("schema.max_sample_values must be positive")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("schema.max_depth must be positive")
	}
	return nil
}
