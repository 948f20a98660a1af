package ratelimit

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config configures the limiter.
type Config struct {
	// Enabled turns the limiter off entirely when false; Check then allows
	// everything.
	Enabled bool `mapstructure:"enabled"`

	// Tiers maps tier names to their limits; missing tiers fall back to
	// DefaultTierLimits.
	Tiers map[Tier]TierConfig `mapstructure:"tiers"`

	// WhitelistIPs bypass all checks. Loopback addresses are always included.
	WhitelistIPs []string `mapstructure:"whitelist_ips"`

	// EventBusBuffer sizes the event channel; events are dropped, not
	// blocked on, when the buffer is full.
	EventBusBuffer int `mapstructure:"event_bus_buffer"`

	// BanDuration is the default length of a temporary ban.
	BanDuration time.Duration `mapstructure:"ban_duration"`
}

// DefaultConfig returns an enabled limiter with the standard tiers.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Tiers:          DefaultTierLimits(),
		EventBusBuffer: 100,
		BanDuration:    5 * time.Minute,
	}
}

// ApplyDefaults fills zero-valued fields and merges missing tiers.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Tiers == nil {
		c.Tiers = make(map[Tier]TierConfig)
	}
	for tier, limits := range def.Tiers {
		if _, ok := c.Tiers[tier]; !ok {
			c.Tiers[tier] = limits
		}
	}
	if c.EventBusBuffer <= 0 {
		c.EventBusBuffer = def.EventBusBuffer
	}
	if c.BanDuration <= 0 {
		c.BanDuration = def.BanDuration
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	for tier, limits := range c.Tiers {
		if err := limits.Validate(); err != nil {
			return fmt.Errorf("tier %s: %w", tier, err)
		}
	}
	return nil
}

// Validate checks one tier's limits.
func (tc TierConfig) Validate() error {
	return validation.ValidateStruct(&tc,
		validation.Field(&tc.MaxRequests, validation.Required, validation.Min(1)),
		validation.Field(&tc.TimeWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&tc.BurstRequests, validation.Required, validation.Min(1)),
		validation.Field(&tc.BurstWindow, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&tc.DailyLimit, validation.Min(0)),
	)
}
