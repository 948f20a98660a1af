package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryClient implements the Client contract in-process. It backs
// environments without a networked cache and doubles as the test fake;
// behavior mirrors RedisClient so the two are interchangeable.
type MemoryClient struct {
	mu   sync.RWMutex
	data map[string]*memEntry
	sets map[string]*memSet
	now  func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

type memSet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// NewMemoryClient creates an empty in-process client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		data: make(map[string]*memEntry),
		sets: make(map[string]*memSet),
		now:  time.Now,
	}
}

func (c *MemoryClient) expired(at time.Time) bool {
	return !at.IsZero() && c.now().After(at)
}

func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || c.expired(entry.expiresAt) {
		return nil, ErrCacheMiss
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (c *MemoryClient) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.data[key] = &memEntry{value: stored, expiresAt: expiresAt}
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) Delete(ctx context.Context, keys ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deleted := 0
	for _, key := range keys {
		if entry, ok := c.data[key]; ok {
			delete(c.data, key)
			if !c.expired(entry.expiresAt) {
				deleted++
			}
		}
		if set, ok := c.sets[key]; ok {
			delete(c.sets, key)
			if !c.expired(set.expiresAt) {
				deleted++
			}
		}
	}
	return deleted, nil
}

func (c *MemoryClient) SAdd(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.sets[key]
	if !ok || c.expired(set.expiresAt) {
		set = &memSet{members: make(map[string]struct{})}
		c.sets[key] = set
	}
	for _, m := range members {
		set.members[m] = struct{}{}
	}
	return nil
}

func (c *MemoryClient) SMembers(ctx context.Context, key string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.sets[key]
	if !ok || c.expired(set.expiresAt) {
		return nil, nil
	}
	members := make([]string, 0, len(set.members))
	for m := range set.members {
		members = append(members, m)
	}
	return members, nil
}

func (c *MemoryClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if entry, ok := c.data[key]; ok {
		entry.expiresAt = expiresAt
	}
	if set, ok := c.sets[key]; ok {
		set.expiresAt = expiresAt
	}
	return nil
}

// Scan returns every live key matching the glob in one pass; the cursor
// protocol is honored but the full result always comes back on the first
// call.
func (c *MemoryClient) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []string
	for key, entry := range c.data {
		if c.expired(entry.expiresAt) {
			continue
		}
		if matchGlob(pattern, key) {
			keys = append(keys, key)
		}
	}
	for key, set := range c.sets {
		if c.expired(set.expiresAt) {
			continue
		}
		if matchGlob(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, 0, nil
}

func (c *MemoryClient) Ping(ctx context.Context) error {
	return nil
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*memEntry)
	c.sets = make(map[string]*memSet)
	return nil
}

// matchGlob matches redis-style globs (*, ?, [...]). Cache keys never
// contain path separators, so path.Match's separator rule cannot bite.
func matchGlob(pattern, key string) bool {
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
