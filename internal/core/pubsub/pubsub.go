// Package pubsub is the event bus carrying corpus-change notifications from
// ingestion to the result cache and schema catalog. Delivery is best effort:
// a dropped event only delays invalidation until the next TTL expiry.
package pubsub

import (
	"context"
	"fmt"
)

// Engine names.
const (
	EngineMemory = "memory"
	EngineNATS   = "nats"
)

// Handler processes one received event.
type Handler func(subject string, data []byte)

// Bus publishes and subscribes to subjects. Patterns use NATS-style
// wildcards: "*" matches one token, ">" matches the rest.
type Bus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for a subject pattern and returns an
	// unsubscribe function. Handlers run on the bus's delivery goroutines
	// and must not block.
	Subscribe(pattern string, h Handler) (func(), error)

	Close() error
}

// Config selects and configures the bus engine.
type Config struct {
	// Engine is "memory" (single node, tests) or "nats" (deployments).
	Engine string `yaml:"engine"`

	// URL is the NATS server address. Ignored by the memory engine.
	URL string `yaml:"url"`

	// SubjectPrefix is prepended to every published subject.
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultConfig returns the default bus settings.
func DefaultConfig() Config {
	return Config{Engine: EngineMemory, SubjectPrefix: "cliniscope"}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Engine == "" {
		c.Engine = defaults.Engine
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaults.SubjectPrefix
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineMemory:
	case EngineNATS:
		if c.URL == "" {
			return fmt.Errorf("pubsub.url is required for the nats engine")
		}
	default:
		return fmt.Errorf("pubsub.engine must be %q or %q, got %q", EngineMemory, EngineNATS, c.Engine)
	}
	return nil
}

// New creates the configured bus engine.
func New(cfg Config) (Bus, error) {
	switch cfg.Engine {
	case EngineMemory:
		return NewMemoryBus(cfg.SubjectPrefix), nil
	case EngineNATS:
		return NewNATSBus(cfg.URL, cfg.SubjectPrefix)
	default:
		return nil, fmt.Errorf("unknown pubsub engine %q", cfg.Engine)
	}
}
