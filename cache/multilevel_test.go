package cache

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	*MemoryClient
	gets int32
}

func (c *countingClient) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt32(&c.gets, 1)
	return c.MemoryClient.Get(ctx, key)
}

type failingClient struct{}

func (c *failingClient) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrCacheUnavailable.WithMsg("backend down")
}

func (c *failingClient) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	return ErrCacheUnavailable.WithMsg("backend down")
}

func (c *failingClient) Delete(ctx context.Context, keys ...string) (int, error) {
	return 0, ErrCacheUnavailable.WithMsg("backend down")
}

func (c *failingClient) SAdd(ctx context.Context, key string, members ...string) error {
	return ErrCacheUnavailable.WithMsg("backend down")
}

func (c *failingClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return nil, ErrCacheUnavailable.WithMsg("backend down")
}

func (c *failingClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return ErrCacheUnavailable.WithMsg("backend down")
}

func (c *failingClient) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	return nil, 0, ErrCacheUnavailable.WithMsg("backend down")
}

func (c *failingClient) Ping(ctx context.Context) error {
	return ErrCacheUnavailable.WithMsg("backend down")
}

func (c *failingClient) Close() error { return nil }

func newTestMultiLevel(t *testing.T, client Client) *MultiLevel {
	t.Helper()
	ml, err := NewMultiLevel(Config{L1MaxSize: 100}, client, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ml.Close() })
	return ml
}

func TestMultiLevel_RoundTrip(t *testing.T) {
	ml := newTestMultiLevel(t, NewMemoryClient())
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "k1", []byte("v1"), time.Minute))

	value, err := ml.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	_, err = ml.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMultiLevel_L1HitSkipsBackend(t *testing.T) {
	client := &countingClient{MemoryClient: NewMemoryClient()}
	ml := newTestMultiLevel(t, client)
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "k1", []byte("v1"), time.Minute))

	for i := 0; i < 5; i++ {
		_, err := ml.Get(ctx, "k1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&client.gets))
}

func TestMultiLevel_BackendHitBackfillsL1(t *testing.T) {
	client := &countingClient{MemoryClient: NewMemoryClient()}
	ml := newTestMultiLevel(t, client)
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "k1", []byte("v1"), time.Minute))

	// Drop the L1 copy so the next read has to go through the backend.
	ml.mu.Lock()
	ml.l1.clear()
	ml.mu.Unlock()

	value, err := ml.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.gets))

	_, err = ml.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.gets))
}

func TestMultiLevel_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	client := NewMemoryClient()
	client.now = clock.Now
	ml := newTestMultiLevel(t, client)
	ml.l1.now = clock.Now
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "k1", []byte("v1"), time.Minute))

	_, err := ml.Get(ctx, "k1")
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	_, err = ml.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMultiLevel_CompressesLargePayloads(t *testing.T) {
	client := NewMemoryClient()
	ml := newTestMultiLevel(t, client)
	ctx := context.Background()

	small := []byte("tiny")
	large := bytes.Repeat([]byte("listing data "), 200)
	require.Greater(t, len(large), 1024)

	require.NoError(t, ml.Set(ctx, "small", small, time.Minute))
	require.NoError(t, ml.Set(ctx, "large", large, time.Minute))

	client.mu.RLock()
	assert.Equal(t, payloadRaw, client.data["small"].value[0])
	assert.Equal(t, payloadGzip, client.data["large"].value[0])
	assert.Less(t, len(client.data["large"].value), len(large))
	client.mu.RUnlock()

	// Decompression is transparent on read.
	ml.mu.Lock()
	ml.l1.clear()
	ml.mu.Unlock()
	value, err := ml.Get(ctx, "large")
	require.NoError(t, err)
	assert.Equal(t, large, value)
}

func TestMultiLevel_TagInvalidation(t *testing.T) {
	ml := newTestMultiLevel(t, NewMemoryClient())
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "fetch:avito:moscow", []byte("1"), time.Minute, "source:avito", "target:moscow"))
	require.NoError(t, ml.Set(ctx, "fetch:avito:kazan", []byte("2"), time.Minute, "source:avito"))
	require.NoError(t, ml.Set(ctx, "fetch:cian:moscow", []byte("3"), time.Minute, "source:cian"))

	deleted, err := ml.InvalidateTag(ctx, "source:avito")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = ml.Get(ctx, "fetch:avito:moscow")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = ml.Get(ctx, "fetch:avito:kazan")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value, err := ml.Get(ctx, "fetch:cian:moscow")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), value)
}

func TestMultiLevel_DeletePattern(t *testing.T) {
	ml := newTestMultiLevel(t, NewMemoryClient())
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "fetch:avito:moscow", []byte("1"), time.Minute))
	require.NoError(t, ml.Set(ctx, "fetch:avito:kazan", []byte("2"), time.Minute))
	require.NoError(t, ml.Set(ctx, "fetch:cian:moscow", []byte("3"), time.Minute))

	deleted, err := ml.DeletePattern(ctx, "fetch:avito:*")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = ml.Get(ctx, "fetch:avito:moscow")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = ml.Get(ctx, "fetch:cian:moscow")
	assert.NoError(t, err)
}

func TestMultiLevel_DegradesWhenBackendDown(t *testing.T) {
	ml := newTestMultiLevel(t, &failingClient{})
	ctx := context.Background()

	// Writes land in L1 and do not fail the caller.
	require.NoError(t, ml.Set(ctx, "k1", []byte("v1"), time.Minute))

	value, err := ml.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	_, err = ml.Get(ctx, "never-set")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.Greater(t, ml.Stats().Errors, int64(0))
}

func TestMultiLevel_Stats(t *testing.T) {
	ml := newTestMultiLevel(t, NewMemoryClient())
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "k1", []byte("v1"), time.Minute))

	_, _ = ml.Get(ctx, "k1")
	_, _ = ml.Get(ctx, "k1")
	_, _ = ml.Get(ctx, "missing")

	stats := ml.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
	assert.Equal(t, 1, stats.L1Size)
	assert.Equal(t, 100, stats.L1MaxSize)
	assert.InDelta(t, 0.01, stats.L1Occupancy, 0.001)
}

func TestMultiLevel_Warm(t *testing.T) {
	ml := newTestMultiLevel(t, NewMemoryClient())
	ctx := context.Background()

	entries := []WarmEntry{
		{Key: "fetch:avito:moscow", Value: []byte("1"), Tags: []string{"source:avito"}},
		{Key: "fetch:avito:spb", Value: []byte("2"), Tags: []string{"source:avito"}},
	}
	warmed := ml.Warm(ctx, entries, time.Minute)
	assert.Equal(t, 2, warmed)

	value, err := ml.Get(ctx, "fetch:avito:spb")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)
}

func TestMultiLevel_TypedValues(t *testing.T) {
	ml := newTestMultiLevel(t, NewMemoryClient())
	ctx := context.Background()

	type listing struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	}

	in := listing{ID: "avito-42", Price: 125000}
	require.NoError(t, ml.SetValue(ctx, "listing:avito-42", in, time.Minute))

	var out listing
	require.NoError(t, ml.GetValue(ctx, "listing:avito-42", &out))
	assert.Equal(t, in, out)
}

func TestMultiLevel_Clear(t *testing.T) {
	ml := newTestMultiLevel(t, NewMemoryClient())
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "k1", []byte("1"), time.Minute, "source:avito"))
	require.NoError(t, ml.Set(ctx, "k2", []byte("2"), time.Minute))

	require.NoError(t, ml.Clear(ctx))

	_, err := ml.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = ml.Get(ctx, "k2")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, ml.Stats().L1Size)
}

func TestMultiLevel_RedisBacked(t *testing.T) {
	client, mr := newTestRedisClient(t, "propstream:")
	ml := newTestMultiLevel(t, client)
	ctx := context.Background()

	require.NoError(t, ml.Set(ctx, "k1", []byte("v1"), time.Minute, "source:avito"))

	ml.mu.Lock()
	ml.l1.clear()
	ml.mu.Unlock()

	value, err := ml.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	mr.FastForward(61 * time.Second)
	ml.mu.Lock()
	ml.l1.clear()
	ml.mu.Unlock()
	_, err = ml.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
