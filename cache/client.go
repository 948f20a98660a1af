// Package cache provides the listing pipeline's two-level cache: a bounded
// in-process LRU in front of a networked key-value store. The networked
// layer is pluggable through Client; a Redis implementation and an
// in-memory one share the same contract, so the rest of the pipeline never
// special-cases a missing backend.
package cache

import (
	"context"
	"time"
)

// Client is the minimal networked-cache protocol the L2 layer needs.
// Implementations return ErrCacheMiss for absent keys and wrap transport
// failures in ErrCacheUnavailable.
type Client interface {
	// Get returns the raw payload stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetEx stores value under key with the given TTL.
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error

	// Delete removes the given keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// SAdd adds members to the set stored under key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set stored under key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Expire sets the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Scan iterates keys matching a glob pattern, cursor-style. A returned
	// cursor of 0 ends the iteration.
	Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the client's resources.
	Close() error
}
