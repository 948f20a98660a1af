package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config configures the two-level cache.
type Config struct {
	// L1MaxSize bounds the in-process layer's entry count.
	L1MaxSize int `mapstructure:"l1_max_size"`

	// L1TTL caps how long an entry may live in L1, independent of the
	// caller-supplied TTL.
	L1TTL time.Duration `mapstructure:"l1_ttl"`

	// L2TTL is the default TTL for writes that do not specify one.
	L2TTL time.Duration `mapstructure:"l2_ttl"`

	// CompressionThreshold is the payload size in bytes above which L2
	// values are gzip-compressed. Zero applies the default; negative
	// disables compression.
	CompressionThreshold int `mapstructure:"compression_threshold"`
}

// DefaultConfig returns the standard cache settings.
func DefaultConfig() Config {
	return Config{
		L1MaxSize:            1000,
		L1TTL:                5 * time.Minute,
		L2TTL:                time.Hour,
		CompressionThreshold: 1024,
	}
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.L1MaxSize <= 0 {
		c.L1MaxSize = def.L1MaxSize
	}
	if c.L1TTL <= 0 {
		c.L1TTL = def.L1TTL
	}
	if c.L2TTL <= 0 {
		c.L2TTL = def.L2TTL
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = def.CompressionThreshold
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.L1MaxSize, validation.Min(1)),
		validation.Field(&c.L1TTL, validation.Min(time.Duration(1))),
		validation.Field(&c.L2TTL, validation.Min(c.L1TTL)),
	)
}
