package fetch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propstream/go-propstream/cache"
	"github.com/propstream/go-propstream/dedup"
	"github.com/propstream/go-propstream/errcode"
	"github.com/propstream/go-propstream/metrics"
	"github.com/propstream/go-propstream/ratelimit"
	"github.com/propstream/go-propstream/resilience"
)

func permissiveLimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Enabled: true,
		Tiers: map[ratelimit.Tier]ratelimit.TierConfig{
			ratelimit.TierAuthenticated: {
				MaxRequests:   1000,
				TimeWindow:    time.Minute,
				BurstRequests: 1000,
				BurstWindow:   10 * time.Second,
			},
		},
	}
}

func fastResilienceConfig() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.BackoffStrategy = resilience.StrategyNone
	return cfg
}

func newTestOrchestrator(t *testing.T, registry *Registry, limiterCfg ratelimit.Config, fetchCfg Config, resCfg resilience.Config, opts ...Option) *Orchestrator {
	t.Helper()

	limiter, err := ratelimit.NewLimiter(limiterCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	ml, err := cache.NewMultiLevel(cache.Config{L1MaxSize: 100}, cache.NewMemoryClient(), nil)
	require.NoError(t, err)

	o, err := NewOrchestrator(fetchCfg, resCfg, registry, limiter, ml, dedup.NewDeduplicator(dedup.Config{}), nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func authReq(target string) Request {
	return Request{
		Source:     "avito",
		Target:     target,
		Identifier: "user-1",
		Tier:       ratelimit.TierAuthenticated,
	}
}

func listingsFor(target string, ids ...string) []Listing {
	out := make([]Listing, len(ids))
	for i, id := range ids {
		out[i] = Listing{Source: "avito", ExternalID: id, Title: "flat in " + target, Price: 50000}
	}
	return out
}

func TestOrchestrator_FetchThenCacheHit(t *testing.T) {
	var calls int32
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		atomic.AddInt32(&calls, 1)
		return listingsFor(target, "1", "2"), nil
	}))

	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, fastResilienceConfig())
	ctx := context.Background()

	first, err := o.Fetch(ctx, authReq("Moscow"))
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Listings, 2)
	assert.NotEmpty(t, first.RequestID)

	second, err := o.Fetch(ctx, authReq("Moscow"))
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Listings, second.Listings)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	stats := o.Stats()
	assert.Equal(t, int64(2), stats.Fetches)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestOrchestrator_UnknownSource(t *testing.T) {
	o := newTestOrchestrator(t, NewRegistry(), permissiveLimiterConfig(), Config{}, fastResilienceConfig())

	_, err := o.Fetch(context.Background(), authReq("Moscow"))
	assert.ErrorIs(t, err, ErrFetcherNotFound)
}

func TestOrchestrator_AdmissionRunsBeforeCache(t *testing.T) {
	var calls int32
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		atomic.AddInt32(&calls, 1)
		return listingsFor(target, "1"), nil
	}))

	limiterCfg := ratelimit.Config{
		Enabled: true,
		Tiers: map[ratelimit.Tier]ratelimit.TierConfig{
			ratelimit.TierAuthenticated: {
				MaxRequests:   2,
				TimeWindow:    time.Minute,
				BurstRequests: 2,
				BurstWindow:   10 * time.Second,
			},
		},
	}
	o := newTestOrchestrator(t, registry, limiterCfg, Config{}, fastResilienceConfig())
	ctx := context.Background()

	_, err := o.Fetch(ctx, authReq("Moscow"))
	require.NoError(t, err)
	_, err = o.Fetch(ctx, authReq("Kazan"))
	require.NoError(t, err)

	// The third call hits the cache key of the first request, but admission
	// is checked first and the budget is spent.
	_, err = o.Fetch(ctx, authReq("Moscow"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrAdmissionDenied)

	var coded *errcode.Error
	require.ErrorAs(t, err, &coded)
	assert.Greater(t, coded.RetryAfter(), time.Duration(0))

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), o.Stats().Rejections)
}

func TestOrchestrator_DropsDuplicateListings(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		return listingsFor(target, "1", "2", "1"), nil
	}))

	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, fastResilienceConfig())

	result, err := o.Fetch(context.Background(), authReq("Moscow"))
	require.NoError(t, err)
	assert.Len(t, result.Listings, 2)
}

func TestOrchestrator_RetryableFailureThenSuccess(t *testing.T) {
	var calls int32
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, resilience.ErrRetryableUpstream.WithMsg("timeout")
		}
		return listingsFor(target, "1"), nil
	}))

	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, fastResilienceConfig())

	result, err := o.Fetch(context.Background(), authReq("Moscow"))
	require.NoError(t, err)
	assert.Len(t, result.Listings, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOrchestrator_FatalFailurePropagates(t *testing.T) {
	var calls int32
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		atomic.AddInt32(&calls, 1)
		return nil, resilience.ErrFatalUpstream.WithMsg("bad credentials")
	}))

	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, fastResilienceConfig())

	_, err := o.Fetch(context.Background(), authReq("Moscow"))
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrFatalUpstream)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1), o.Stats().Failures)
}

func TestOrchestrator_StaleFallbackAfterFailure(t *testing.T) {
	var failing int32
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		if atomic.LoadInt32(&failing) == 1 {
			return nil, resilience.ErrRetryableUpstream.WithMsg("source down")
		}
		return listingsFor(target, "1", "2"), nil
	}))

	resCfg := fastResilienceConfig()
	resCfg.MaxAttempts = 1
	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, resCfg)
	ctx := context.Background()

	first, err := o.Fetch(ctx, authReq("Moscow"))
	require.NoError(t, err)
	require.Len(t, first.Listings, 2)

	// Expire the fresh entry; the long-lived stale copy stays.
	_, err = o.cache.DeletePattern(ctx, "fetch:*")
	require.NoError(t, err)

	atomic.StoreInt32(&failing, 1)
	result, err := o.Fetch(ctx, authReq("Moscow"))
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.True(t, result.FromCache)
	assert.Equal(t, first.Listings, result.Listings)
	assert.Equal(t, int64(1), o.Stats().StaleServed)
}

func TestOrchestrator_RetriesExhaustedNoFallback(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		return nil, resilience.ErrRetryableUpstream.WithMsg("source down")
	}))

	resCfg := fastResilienceConfig()
	resCfg.MaxAttempts = 2
	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, resCfg)

	_, err := o.Fetch(context.Background(), authReq("Moscow"))
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, resilience.ErrRetryableUpstream)
}

func TestOrchestrator_CircuitOpensPerSource(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		return nil, resilience.ErrFatalUpstream.WithMsg("down")
	}))

	resCfg := fastResilienceConfig()
	resCfg.MaxAttempts = 1
	resCfg.FailureThreshold = 1
	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, resCfg)
	ctx := context.Background()

	_, err := o.Fetch(ctx, authReq("Moscow"))
	require.Error(t, err)
	require.True(t, o.BreakerState("avito").IsOpen())

	_, err = o.Fetch(ctx, authReq("Kazan"))
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestOrchestrator_CollapsesConcurrentIdenticalFetches(t *testing.T) {
	var calls int32
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return listingsFor(target, "1"), nil
	}))

	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, fastResilienceConfig())

	req := Request{
		Source:     "avito",
		Target:     "Moscow",
		Identifier: "127.0.0.1",
		Tier:       ratelimit.TierAuthenticated,
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := o.Fetch(context.Background(), req)
			assert.NoError(t, err)
			assert.Len(t, result.Listings, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOrchestrator_GlobalConcurrencyCeiling(t *testing.T) {
	var current, peak int32
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		c := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if c <= p || atomic.CompareAndSwapInt32(&peak, p, c) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return listingsFor(target, target), nil
	}))

	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(),
		Config{MaxConcurrent: 2, BatchPoolSize: 6}, fastResilienceConfig())

	reqs := []Request{
		authReq("Moscow"), authReq("Kazan"), authReq("Sochi"),
		authReq("Perm"), authReq("Tula"), authReq("Omsk"),
	}
	results := o.BatchFetch(context.Background(), reqs)

	for i, br := range results {
		require.NoError(t, br.Err)
		assert.Equal(t, reqs[i].Target, br.Request.Target)
		assert.Len(t, br.Result.Listings, 1)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestOrchestrator_Warm(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		return listingsFor(target, target), nil
	}))

	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, fastResilienceConfig())
	ctx := context.Background()

	warmed := o.Warm(ctx, "avito", []string{"Moscow", "Kazan"}, nil, "user-1", ratelimit.TierAuthenticated)
	assert.Equal(t, 2, warmed)

	result, err := o.Fetch(ctx, authReq("Moscow"))
	require.NoError(t, err)
	assert.True(t, result.FromCache)
}

func TestOrchestrator_RecordsMetrics(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		return listingsFor(target, "1"), nil
	}))

	collector := metrics.NewCollector()
	limiterCfg := permissiveLimiterConfig()
	tc := limiterCfg.Tiers[ratelimit.TierAuthenticated]
	tc.MaxRequests = 2
	limiterCfg.Tiers[ratelimit.TierAuthenticated] = tc

	o := newTestOrchestrator(t, registry, limiterCfg, Config{}, fastResilienceConfig(), WithRecorder(collector))
	ctx := context.Background()

	_, err := o.Fetch(ctx, authReq("Moscow"))
	require.NoError(t, err)
	_, err = o.Fetch(ctx, authReq("Moscow"))
	require.NoError(t, err)
	_, err = o.Fetch(ctx, authReq("Moscow"))
	require.Error(t, err)

	src := metrics.Labels{"source": "avito"}
	assert.Equal(t, int64(3), collector.Counter(metrics.FetchRequests, src))
	assert.Equal(t, int64(1), collector.Counter(metrics.CacheHits, src))
	assert.Equal(t, int64(1), collector.Counter(metrics.RateLimitRejections,
		metrics.Labels{"source": "avito", "tier": string(ratelimit.TierAuthenticated)}))

	durations := collector.Durations()
	require.Len(t, durations, 1)
	assert.Equal(t, int64(1), durations[`fetch_duration_seconds{source=avito}`].Count)
}

func TestOrchestrator_RecordsRetryMetrics(t *testing.T) {
	var calls int32
	registry := NewRegistry()
	registry.Register(NewFetcherFunc("avito", func(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, resilience.ErrRetryableUpstream.WithMsg("timeout")
		}
		return listingsFor(target, "1"), nil
	}))

	collector := metrics.NewCollector()
	o := newTestOrchestrator(t, registry, permissiveLimiterConfig(), Config{}, fastResilienceConfig(), WithRecorder(collector))

	_, err := o.Fetch(context.Background(), authReq("Moscow"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), collector.Counter(metrics.Retries, metrics.Labels{"source": "avito"}))
}
