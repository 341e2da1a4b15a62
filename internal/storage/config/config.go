// Package config provides configuration for the document store.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the MongoDB storage configuration.
type Config struct {
	// URI is the MongoDB connection string.
	URI string `yaml:"uri"`

	// Database is the database name.
	Database string `yaml:"database"`

	// Collection holds the aggregated documents.
	Collection string `yaml:"collection"`

	// OperationTimeout bounds every store call. Expiry is reported to the
	// caller as a retryable failure.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		URI:              "mongodb://localhost:27017",
		Database:         "cliniscope",
		Collection:       "documents",
		OperationTimeout: 10 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.URI == "" {
		c.URI = defaults.URI
	}
	if c.Database == "" {
		c.Database = defaults.Database
	}
	if c.Collection == "" {
		c.Collection = defaults.Collection
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = defaults.OperationTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CLINISCOPE_MONGO_URI"); v != "" {
		c.URI = v
	}
	if v := os.Getenv("CLINISCOPE_MONGO_DATABASE"); v != "" {
		c.Database = v
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("storage.uri is required")
	}
	if c.Database == "" {
		return fmt.Errorf("storage.database is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("storage.collection is required")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("storage.operation_timeout must be positive")
	}
	return nil
}
