package fetch

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config configures the fetch orchestrator.
type Config struct {
	// MaxConcurrent bounds simultaneously in-flight fetches across all
	// sources and keys.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// BatchPoolSize sizes the worker pool used by BatchFetch.
	BatchPoolSize int `mapstructure:"batch_pool_size"`

	// CacheTTL is how long fetched results stay fresh.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// StaleTTL is how long a stale fallback copy is kept after each
	// successful fetch. Zero disables the fallback.
	StaleTTL time.Duration `mapstructure:"stale_ttl"`
}

// DefaultConfig returns the standard orchestrator settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 10,
		BatchPoolSize: 8,
		CacheTTL:      time.Hour,
		StaleTTL:      24 * time.Hour,
	}
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.BatchPoolSize <= 0 {
		c.BatchPoolSize = def.BatchPoolSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.StaleTTL == 0 {
		c.StaleTTL = def.StaleTTL
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxConcurrent, validation.Min(1)),
		validation.Field(&c.BatchPoolSize, validation.Min(1)),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(1))),
	)
}
