// Package redis establishes the connection backing the networked cache
// layer. It hides the standalone/cluster split behind the go-redis
// UniversalClient interface and verifies connectivity before handing the
// client out.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/propstream/go-propstream/logger"
)

// Connect builds a client from cfg and pings the server. The returned
// client is ready for use; callers own its lifecycle and must Close it.
func Connect(cfg Config, log *logger.Logger) (goredis.UniversalClient, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	var client goredis.UniversalClient
	switch cfg.Mode {
	case "cluster":
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	default:
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addrs[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis connected",
		zap.String("mode", cfg.Mode),
		zap.Strings("addrs", cfg.Addrs),
		zap.Int("db", cfg.DB))

	return client, nil
}
