package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient adapts go-redis to the Client contract. An optional key
// prefix namespaces everything the cache stores; Scan results come back
// with the prefix stripped so callers only ever see logical keys.
type RedisClient struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient wraps an existing go-redis client. The client's lifecycle
// stays with the caller; Close here is a no-op.
func NewRedisClient(client redis.UniversalClient, keyPrefix string) *RedisClient {
	return &RedisClient{client: client, keyPrefix: keyPrefix}
}

func (c *RedisClient) buildKey(key string) string {
	if c.keyPrefix == "" {
		return key
	}
	return c.keyPrefix + key
}

func (c *RedisClient) stripKey(key string) string {
	if c.keyPrefix == "" {
		return key
	}
	return key[len(c.keyPrefix):]
}

func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, ErrCacheUnavailable.Wrap(err)
	}
	return data, nil
}

func (c *RedisClient) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if err := c.client.Set(ctx, c.buildKey(key), value, ttl).Err(); err != nil {
		return ErrCacheUnavailable.Wrap(err)
	}
	return nil
}

func (c *RedisClient) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.buildKey(k)
	}
	n, err := c.client.Del(ctx, full...).Result()
	if err != nil {
		return 0, ErrCacheUnavailable.Wrap(err)
	}
	return int(n), nil
}

func (c *RedisClient) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.client.SAdd(ctx, c.buildKey(key), args...).Err(); err != nil {
		return ErrCacheUnavailable.Wrap(err)
	}
	return nil
}

func (c *RedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.client.SMembers(ctx, c.buildKey(key)).Result()
	if err != nil {
		return nil, ErrCacheUnavailable.Wrap(err)
	}
	return members, nil
}

func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Expire(ctx, c.buildKey(key), ttl).Err(); err != nil {
		return ErrCacheUnavailable.Wrap(err)
	}
	return nil
}

func (c *RedisClient) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	keys, next, err := c.client.Scan(ctx, cursor, c.buildKey(pattern), count).Result()
	if err != nil {
		return nil, 0, ErrCacheUnavailable.Wrap(err)
	}
	for i, k := range keys {
		keys[i] = c.stripKey(k)
	}
	return keys, next, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return ErrCacheUnavailable.Wrap(err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	return nil
}
