package cache

import "time"

// Config holds configuration for the response caching layer.
type Config struct {
	// Enabled controls whether caching is active. When false, no middleware
	// is applied and all requests pass through uncached.
	Enabled bool

	// WorkflowTTL is the TTL for workflow list responses.
	WorkflowTTL time.Duration

	// AssetTTL is the TTL for asset read responses.
	AssetTTL time.Duration

	// MaxSize is the maximum number of entries per cache instance.
	MaxSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		WorkflowTTL: 15 * time.Second,
		AssetTTL:    30 * time.Second,
		MaxSize:     1000,
	}
}
