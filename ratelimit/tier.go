// Package ratelimit provides tiered admission control for fetch requests.
//
// Each logical key (IP, user id, source name) is checked against three
// layers in order: a short burst window, the primary sliding window, and an
// optional daily counter. Checks for the same key are serialized so two
// concurrent requests can never both take the last slot.
package ratelimit

import "time"

// Tier classifies a caller; each tier maps to one TierConfig.
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
	TierPremium       Tier = "premium"
	TierAdmin         Tier = "admin"
)

// TierConfig is the immutable limit set for one tier.
// DailyLimit of 0 means no daily cap.
type TierConfig struct {
	MaxRequests   int           `mapstructure:"max_requests"`
	TimeWindow    time.Duration `mapstructure:"time_window"`
	BurstRequests int           `mapstructure:"burst_requests"`
	BurstWindow   time.Duration `mapstructure:"burst_window"`
	DailyLimit    int           `mapstructure:"daily_limit"`
}

// DefaultTierLimits returns the standard per-tier limits.
func DefaultTierLimits() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierAnonymous: {
			MaxRequests:   60,
			TimeWindow:    time.Minute,
			BurstRequests: 10,
			BurstWindow:   time.Second,
			DailyLimit:    1000,
		},
		TierAuthenticated: {
			MaxRequests:   120,
			TimeWindow:    time.Minute,
			BurstRequests: 20,
			BurstWindow:   time.Second,
			DailyLimit:    5000,
		},
		TierPremium: {
			MaxRequests:   300,
			TimeWindow:    time.Minute,
			BurstRequests: 50,
			BurstWindow:   time.Second,
			DailyLimit:    20000,
		},
		TierAdmin: {
			MaxRequests:   1000,
			TimeWindow:    time.Minute,
			BurstRequests: 100,
			BurstWindow:   time.Second,
			DailyLimit:    0,
		},
	}
}
