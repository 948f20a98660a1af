package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/propstream/go-propstream/logger"
)

// Payload markers for the L2 wire form.
const (
	payloadRaw  byte = 0x00
	payloadGzip byte = 0x01
)

const tagKeyPrefix = "tag:"

// MultiLevel is the pipeline's cache: a bounded LRU (L1) in front of a
// networked Client (L2). Reads check L1 first and backfill it on an L2
// hit; writes go through to both layers. When L2 is unreachable the cache
// degrades to L1-only; no operation ever fails the caller because of it.
type MultiLevel struct {
	config     Config
	client     Client
	serializer Serializer
	logger     *logger.Logger

	mu sync.Mutex
	l1 *lruStore

	hits   int64
	misses int64
	errors int64
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Errors      int64   `json:"errors"`
	HitRate     float64 `json:"hit_rate"`
	L1Size      int     `json:"l1_size"`
	L1MaxSize   int     `json:"l1_max_size"`
	L1Occupancy float64 `json:"l1_occupancy"`
}

// WarmEntry is one precomputed entry for Warm.
type WarmEntry struct {
	Key   string
	Value []byte
	Tags  []string
}

// NewMultiLevel builds the cache over the given L2 client. A nil client
// falls back to the in-process MemoryClient.
func NewMultiLevel(cfg Config, client Client, log *logger.Logger) (*MultiLevel, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if client == nil {
		client = NewMemoryClient()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &MultiLevel{
		config:     cfg,
		client:     client,
		serializer: NewJSONSerializer(),
		logger:     log,
		l1:         newLRUStore(cfg.L1MaxSize),
	}, nil
}

// Get returns the value stored under key, checking L1 before L2. An L2 hit
// backfills L1. Absent keys and an unreachable L2 both report ErrCacheMiss;
// the latter is additionally counted and logged.
func (c *MultiLevel) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	value, ok := c.l1.get(key)
	c.mu.Unlock()
	if ok {
		atomic.AddInt64(&c.hits, 1)
		return value, nil
	}

	data, err := c.client.Get(ctx, key)
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		if !errors.Is(err, ErrCacheMiss) {
			atomic.AddInt64(&c.errors, 1)
			c.logger.WarnCtx(ctx, "cache backend unreachable, degrading to L1",
				zap.String("key", key), zap.Error(err))
		}
		return nil, ErrCacheMiss
	}

	value, err = decodePayload(data)
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		atomic.AddInt64(&c.errors, 1)
		c.logger.WarnCtx(ctx, "cache payload corrupt",
			zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}

	c.mu.Lock()
	c.l1.set(key, value, c.config.L1TTL)
	c.mu.Unlock()

	atomic.AddInt64(&c.hits, 1)
	return value, nil
}

// Set writes through to both layers with the same TTL (L1 additionally
// capped by L1TTL) and registers the key under each tag's L2 set. A zero
// ttl means the configured default.
func (c *MultiLevel) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if ttl <= 0 {
		ttl = c.config.L2TTL
	}

	l1TTL := ttl
	if l1TTL > c.config.L1TTL {
		l1TTL = c.config.L1TTL
	}
	c.mu.Lock()
	c.l1.set(key, value, l1TTL)
	c.mu.Unlock()

	if err := c.client.SetEx(ctx, key, ttl, encodePayload(value, c.config.CompressionThreshold)); err != nil {
		atomic.AddInt64(&c.errors, 1)
		c.logger.WarnCtx(ctx, "cache backend write failed, entry kept in L1 only",
			zap.String("key", key), zap.Error(err))
		return nil
	}

	for _, tag := range tags {
		tagKey := tagKeyPrefix + tag
		if err := c.client.SAdd(ctx, tagKey, key); err != nil {
			atomic.AddInt64(&c.errors, 1)
			c.logger.WarnCtx(ctx, "tag registration failed",
				zap.String("key", key), zap.String("tag", tag), zap.Error(err))
			continue
		}
		// Refresh the tag set's lifetime alongside its newest member so
		// the sets cannot grow unbounded.
		if err := c.client.Expire(ctx, tagKey, ttl); err != nil {
			atomic.AddInt64(&c.errors, 1)
		}
	}
	return nil
}

// GetValue reads key and deserializes the payload into dest.
func (c *MultiLevel) GetValue(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return c.serializer.Deserialize(data, dest)
}

// SetValue serializes v and writes it through both layers.
func (c *MultiLevel) SetValue(ctx context.Context, key string, v any, ttl time.Duration, tags ...string) error {
	data, err := c.serializer.Serialize(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl, tags...)
}

// Delete removes key from both layers.
func (c *MultiLevel) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	c.l1.delete(key)
	c.mu.Unlock()

	if _, err := c.client.Delete(ctx, key); err != nil {
		atomic.AddInt64(&c.errors, 1)
		c.logger.WarnCtx(ctx, "cache backend delete failed",
			zap.String("key", key), zap.Error(err))
	}
	return nil
}

// DeletePattern removes every key matching the glob from both layers and
// returns the count. L1 is scanned in full; L2 is walked with SCAN so the
// backend is never blocked.
func (c *MultiLevel) DeletePattern(ctx context.Context, pattern string) (int, error) {
	c.mu.Lock()
	l1Deleted := c.l1.deletePattern(pattern)
	c.mu.Unlock()

	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 100)
		if err != nil {
			atomic.AddInt64(&c.errors, 1)
			c.logger.WarnCtx(ctx, "cache backend scan failed",
				zap.String("pattern", pattern), zap.Error(err))
			return l1Deleted, nil
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return l1Deleted, nil
	}
	deleted, err := c.client.Delete(ctx, keys...)
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		c.logger.WarnCtx(ctx, "cache backend delete failed",
			zap.String("pattern", pattern), zap.Error(err))
		return l1Deleted, nil
	}
	if deleted < l1Deleted {
		deleted = l1Deleted
	}
	return deleted, nil
}

// InvalidateTag removes every key registered under tag from both layers,
// then drops the tag set itself. Returns the number of keys removed.
func (c *MultiLevel) InvalidateTag(ctx context.Context, tag string) (int, error) {
	tagKey := tagKeyPrefix + tag
	members, err := c.client.SMembers(ctx, tagKey)
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		c.logger.WarnCtx(ctx, "tag lookup failed",
			zap.String("tag", tag), zap.Error(err))
		return 0, nil
	}
	if len(members) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	for _, key := range members {
		c.l1.delete(key)
	}
	c.mu.Unlock()

	deleted, err := c.client.Delete(ctx, members...)
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		return 0, nil
	}
	if _, err := c.client.Delete(ctx, tagKey); err != nil {
		atomic.AddInt64(&c.errors, 1)
	}
	return deleted, nil
}

// Clear empties both layers.
func (c *MultiLevel) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.l1.clear()
	c.mu.Unlock()

	if _, err := c.DeletePattern(ctx, "*"); err != nil {
		return err
	}
	return nil
}

// Warm preloads entries, typically the most requested targets, and reports
// how many were stored.
func (c *MultiLevel) Warm(ctx context.Context, entries []WarmEntry, ttl time.Duration) int {
	warmed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if err := c.Set(ctx, entry.Key, entry.Value, ttl, entry.Tags...); err != nil {
			continue
		}
		warmed++
	}
	c.logger.InfoCtx(ctx, "cache warmed",
		zap.Int("requested", len(entries)), zap.Int("stored", warmed))
	return warmed
}

// Stats returns a snapshot of the cache counters.
func (c *MultiLevel) Stats() *CacheStats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)

	c.mu.Lock()
	l1Size := c.l1.len()
	c.mu.Unlock()

	stats := &CacheStats{
		Hits:      hits,
		Misses:    misses,
		Errors:    atomic.LoadInt64(&c.errors),
		L1Size:    l1Size,
		L1MaxSize: c.config.L1MaxSize,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	if c.config.L1MaxSize > 0 {
		stats.L1Occupancy = float64(l1Size) / float64(c.config.L1MaxSize)
	}
	return stats
}

// Ping checks the L2 backend.
func (c *MultiLevel) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Close releases the L2 client.
func (c *MultiLevel) Close() error {
	return c.client.Close()
}

// encodePayload prepares value for L2 storage, gzip-compressing payloads
// above the threshold. The leading marker byte keeps decompression
// transparent on read.
func encodePayload(value []byte, threshold int) []byte {
	if threshold < 0 || len(value) <= threshold {
		return append([]byte{payloadRaw}, value...)
	}

	var buf bytes.Buffer
	buf.WriteByte(payloadGzip)
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(value); err != nil {
		return append([]byte{payloadRaw}, value...)
	}
	if err := w.Close(); err != nil {
		return append([]byte{payloadRaw}, value...)
	}
	return buf.Bytes()
}

// decodePayload reverses encodePayload.
func decodePayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrDeserialize.WithMsg("empty payload")
	}
	switch data[0] {
	case payloadRaw:
		return data[1:], nil
	case payloadGzip:
		r, err := gzip.NewReader(bytes.NewReader(data[1:]))
		if err != nil {
			return nil, ErrDeserialize.Wrap(err)
		}
		defer r.Close()
		value, err := io.ReadAll(r)
		if err != nil {
			return nil, ErrDeserialize.Wrap(err)
		}
		return value, nil
	default:
		return nil, ErrDeserialize.WithMsg("unknown payload marker")
	}
}
