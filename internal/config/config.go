// Package config assembles the application configuration from defaults,
// YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cliniscope/cliniscope/internal/core/pubsub"
	fetch "github.com/cliniscope/cliniscope/internal/fetch/config"
	query "github.com/cliniscope/cliniscope/internal/query/config"
	schema "github.com/cliniscope/cliniscope/internal/schema/config"
	"github.com/cliniscope/cliniscope/internal/server"
	storage "github.com/cliniscope/cliniscope/internal/storage/config"
)

// Config holds the full application configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Server  server.Config `yaml:"server"`

	Storage storage.Config `yaml:"storage"`
	Query   query.Config   `yaml:"query"`
	Schema  schema.Config  `yaml:"schema"`
	Fetch   fetch.Config   `yaml:"fetch"`
	Pubsub  pubsub.Config  `yaml:"pubsub"`
}

// LoadConfig builds the configuration in layers.
// Order: defaults -> config.yml -> config.local.yml -> env overrides -> validate.
// Missing files are skipped; a malformed file is an error.
func LoadConfig(configDir string) (*Config, error) {
	cfg := &Config{
		Logging: DefaultLoggingConfig(),
		Server:  server.DefaultConfig(),
		Storage: storage.DefaultConfig(),
		Query:   query.DefaultConfig(),
		Schema:  schema.DefaultConfig(),
		Fetch:   fetch.DefaultConfig(),
		Pubsub:  pubsub.DefaultConfig(),
	}

	if err := loadFile(filepath.Join(configDir, "config.yml"), cfg); err != nil {
		return nil, err
	}
	if err := loadFile(filepath.Join(configDir, "config.local.yml"), cfg); err != nil {
		return nil, err
	}

	cfg.Logging.ApplyDefaults()
	cfg.Server.ApplyDefaults()
	cfg.Storage.ApplyDefaults()
	cfg.Query.ApplyDefaults()
	cfg.Schema.ApplyDefaults()
	cfg.Fetch.ApplyDefaults()
	cfg.Pubsub.ApplyDefaults()

	cfg.Logging.ApplyEnvOverrides()
	cfg.Storage.ApplyEnvOverrides()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and reports the first failure.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := c.Fetch.Validate(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if err := c.Pubsub.Validate(); err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	if c.Fetch.SmallResultThreshold > c.Query.MaxLimit {
		return fmt.Errorf("fetch.small_result_threshold (%d) must not exceed query.max_limit (%d)",
			c.Fetch.SmallResultThreshold, c.Query.MaxLimit)
	}
	return nil
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLINISCOPE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CLINISCOPE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CLINISCOPE_NATS_URL"); v != "" {
		cfg.Pubsub.Engine = pubsub.EngineNATS
		cfg.Pubsub.URL = v
	}
}
