package config

import (
	"fmt"

	"github.com/propstream/go-propstream/cache"
	"github.com/propstream/go-propstream/dedup"
	"github.com/propstream/go-propstream/fetch"
	"github.com/propstream/go-propstream/logger"
	"github.com/propstream/go-propstream/ratelimit"
	"github.com/propstream/go-propstream/redis"
	"github.com/propstream/go-propstream/resilience"
)

// AppConfig aggregates every subsystem's configuration under its own key.
type AppConfig struct {
	Logger     logger.ManagerConfig `mapstructure:"logger"`
	Redis      redis.Config         `mapstructure:"redis"`
	RateLimit  ratelimit.Config     `mapstructure:"ratelimit"`
	Resilience resilience.Config    `mapstructure:"resilience"`
	Cache      cache.Config         `mapstructure:"cache"`
	Dedup      dedup.Config         `mapstructure:"dedup"`
	Fetch      fetch.Config         `mapstructure:"fetch"`
}

// LoadApp unmarshals the loader's merged state into an AppConfig, applies
// per-subsystem defaults, and validates the result.
func LoadApp(l *Loader) (*AppConfig, error) {
	var app AppConfig
	if err := l.Unmarshal(&app); err != nil {
		return nil, fmt.Errorf("unmarshal app config: %w", err)
	}

	app.Logger.ApplyDefaults()
	app.Redis.ApplyDefaults()
	app.RateLimit.ApplyDefaults()
	app.Resilience.ApplyDefaults()
	app.Cache.ApplyDefaults()
	app.Fetch.ApplyDefaults()

	if err := ValidateAll(
		app.RateLimit,
		app.Resilience,
		app.Cache,
		app.Fetch,
	); err != nil {
		return nil, fmt.Errorf("validate app config: %w", err)
	}
	// Redis is optional: with no address configured the cache falls back
	// to its in-process backend.
	if len(app.Redis.Addrs) > 0 {
		if err := app.Redis.Validate(); err != nil {
			return nil, fmt.Errorf("validate app config: %w", err)
		}
	}

	return &app, nil
}
