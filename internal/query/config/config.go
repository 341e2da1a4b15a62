// Package config provides configuration for the query engine.
package config

import "fmt"

// Config holds the query engine limits. They bound the cost of a single
// request against the store.
type Config struct {
	// DefaultLimit applies when a request does not name a page size.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the hard page-size ceiling. Larger requests are clamped.
	MaxLimit int `yaml:"max_limit"`

	// MaxFacetBuckets caps distinct values per facet; overflow is collapsed
	// into an "other" bucket.
	MaxFacetBuckets int `yaml:"max_facet_buckets"`

	// MaxFacetFields caps how many facet fields one request may ask for.
	// Exceeding it rejects the request, since dropping facets silently
	// would change the response shape the caller asked for.
	MaxFacetFields int `yaml:"max_facet_fields"`
}

// DefaultConfig returns the default engine limits.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:    20,
		MaxLimit:        100,
		MaxFacetBuckets: 25,
		MaxFacetFields:  8,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.DefaultLimit == 0 {
		c.DefaultLimit = defaults.DefaultLimit
	}
	if c.MaxLimit == 0 {
		c.MaxLimit = defaults.MaxLimit
	}
	if c.MaxFacetBuckets == 0 {
		c.MaxFacetBuckets = defaults.MaxFacetBuckets
	}
	if c.MaxFacetFields == 0 {
		c.MaxFacetFields = defaults.MaxFacetFields
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("query.default_limit must be positive")
	}
	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("query.max_limit must be at least default_limit")
	}
	if c.MaxFacetBuckets <= 0 {
		return fmt.Errorf("query.max_facet_buckets must be positive")
	}
	if c.MaxFacetFields <= 0 {
		return fmt.Errorf("query.max_facet_fields must be positive")
	}
	return nil
}
