package redis

import (
	"fmt"
	"time"
)

// Config describes a single Redis connection. The L2 cache is the only
// consumer today but the struct supports cluster deployments as well.
type Config struct {
	// Mode is "standalone" or "cluster".
	Mode string `mapstructure:"mode"`

	// Addrs lists server addresses. Standalone mode uses the first entry,
	// cluster mode uses all of them.
	Addrs []string `mapstructure:"addrs"`

	// Addr is a single-address shorthand for standalone deployments.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`

	// DB selects the logical database (standalone only).
	DB int `mapstructure:"db"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "standalone"
	}

	if c.Addr != "" && len(c.Addrs) == 0 {
		c.Addrs = []string{c.Addr}
	}

	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 5
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}

	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Mode != "standalone" && c.Mode != "cluster" {
		return fmt.Errorf("invalid mode: %s (must be standalone or cluster)", c.Mode)
	}

	if len(c.Addrs) == 0 {
		return fmt.Errorf("addrs cannot be empty")
	}

	if c.Mode == "standalone" {
		if c.DB < 0 || c.DB > 15 {
			return fmt.Errorf("db must be between 0 and 15, got: %d", c.DB)
		}
	}

	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must be >= 0, got: %d", c.PoolSize)
	}
	if c.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns must be >= 0, got: %d", c.MinIdleConns)
	}

	return nil
}
