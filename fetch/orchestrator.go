// Package fetch composes the pipeline around caller-supplied listing
// sources: admission control, then cache lookup, then a resilient fetch
// whose deduplicated results are written back to the cache. One
// orchestrator instance is built at process start and shared.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/propstream/go-propstream/cache"
	"github.com/propstream/go-propstream/dedup"
	"github.com/propstream/go-propstream/logger"
	"github.com/propstream/go-propstream/metrics"
	"github.com/propstream/go-propstream/ratelimit"
	"github.com/propstream/go-propstream/resilience"
)

// Request is one logical fetch.
type Request struct {
	// Source names a registered fetcher.
	Source string

	// Target is the location being fetched, e.g. a city.
	Target string

	// Params are the normalized filter parameters.
	Params map[string]string

	// Identifier and Tier feed the admission check.
	Identifier string
	Tier       ratelimit.Tier
}

// Result is the outcome of one fetch.
type Result struct {
	Listings  []Listing
	FromCache bool

	// Stale marks a degraded fallback: the fetch failed and the listings
	// come from the last known good copy past its freshness TTL.
	Stale bool

	RequestID string
}

// Stats is a snapshot of orchestrator counters.
type Stats struct {
	Fetches     int64 `json:"fetches"`
	CacheHits   int64 `json:"cache_hits"`
	Rejections  int64 `json:"rejections"`
	Failures    int64 `json:"failures"`
	StaleServed int64 `json:"stale_served"`
}

// Orchestrator runs the fetch pipeline: RateLimitCheck, CacheLookup,
// ResilientFetch, Dedup, CacheStore. Concurrent identical requests
// collapse into one upstream call; a global semaphore bounds in-flight
// fetches across all keys.
type Orchestrator struct {
	config        Config
	resilienceCfg resilience.Config
	registry      *Registry
	limiter       *ratelimit.Limiter
	cache         *cache.MultiLevel
	dedup         *dedup.Deduplicator
	logger        *logger.Logger

	recorder metrics.Recorder

	ctrlMu      sync.RWMutex
	controllers map[string]*resilience.Controller

	sem  *semaphore.Weighted
	sf   singleflight.Group
	pool *ants.Pool

	fetches     int64
	cacheHits   int64
	rejections  int64
	failures    int64
	staleServed int64
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder routes pipeline metrics to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// NewOrchestrator wires the pipeline. All collaborators are required
// except the logger.
func NewOrchestrator(
	cfg Config,
	resilienceCfg resilience.Config,
	registry *Registry,
	limiter *ratelimit.Limiter,
	ml *cache.MultiLevel,
	dd *dedup.Deduplicator,
	log *logger.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registry == nil || limiter == nil || ml == nil || dd == nil {
		return nil, fmt.Errorf("registry, limiter, cache and deduplicator are required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	pool, err := ants.NewPool(cfg.BatchPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	o := &Orchestrator{
		config:        cfg,
		resilienceCfg: resilienceCfg,
		registry:      registry,
		limiter:       limiter,
		cache:         ml,
		dedup:         dd,
		logger:        log,
		recorder:      metrics.NewNop(),
		controllers:   make(map[string]*resilience.Controller),
		sem:           semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		pool:          pool,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Fetch runs one request through the pipeline. Callers receive either
// listings (possibly cached or stale-flagged) or one structured rejection:
// admission denial, circuit-open, fatal upstream, or retries exhausted.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) (*Result, error) {
	requestID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, requestID)
	atomic.AddInt64(&o.fetches, 1)
	o.recorder.Inc(metrics.FetchRequests, metrics.Labels{"source": req.Source})

	fetcher, err := o.registry.Get(req.Source)
	if err != nil {
		return nil, err
	}

	// Admission runs strictly before the cache lookup so a cached response
	// never bypasses a nearly-exhausted limit.
	decision := o.limiter.Check(ctx, req.Identifier, req.Tier, req.Source+":"+req.Target)
	if !decision.Allowed {
		atomic.AddInt64(&o.rejections, 1)
		o.recorder.Inc(metrics.RateLimitRejections, metrics.Labels{"source": req.Source, "tier": string(req.Tier)})
		o.logger.InfoCtx(ctx, "fetch rejected by admission control",
			zap.String("source", req.Source),
			zap.String("identifier", req.Identifier),
			zap.String("reason", decision.Reason),
			zap.Duration("retry_after", decision.RetryAfter))
		return nil, ratelimit.ErrAdmissionDenied.
			WithMsg(decision.Reason).
			WithRetryAfter(decision.RetryAfter)
	}

	key := BuildCacheKey(req.Source, req.Target, req.Params)

	var cached []Listing
	if err := o.cache.GetValue(ctx, key, &cached); err == nil {
		atomic.AddInt64(&o.cacheHits, 1)
		o.recorder.Inc(metrics.CacheHits, metrics.Labels{"source": req.Source})
		return &Result{Listings: cached, FromCache: true, RequestID: requestID}, nil
	}

	value, err, _ := o.sf.Do(key, func() (any, error) {
		return o.fetchUpstream(ctx, fetcher, req, key)
	})
	if err != nil {
		atomic.AddInt64(&o.failures, 1)
		o.recorder.Inc(metrics.FetchFailures, metrics.Labels{"source": req.Source})
		if stale, ok := o.staleLookup(ctx, key); ok {
			atomic.AddInt64(&o.staleServed, 1)
			o.recorder.Inc(metrics.StaleServed, metrics.Labels{"source": req.Source})
			o.logger.WarnCtx(ctx, "serving stale listings after fetch failure",
				zap.String("source", req.Source),
				zap.String("target", req.Target),
				zap.Error(err))
			return &Result{Listings: stale, FromCache: true, Stale: true, RequestID: requestID}, nil
		}
		return nil, err
	}

	return &Result{Listings: value.([]Listing), RequestID: requestID}, nil
}

// fetchUpstream is the cache-miss path: bounded by the global semaphore,
// guarded by the source's circuit breaker, deduplicated and written back.
func (o *Orchestrator) fetchUpstream(ctx context.Context, fetcher Fetcher, req Request, key string) ([]Listing, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.sem.Release(1)

	controller, err := o.controllerFor(req.Source)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	listings, err := resilience.ExecuteWithData(ctx, controller, func(ctx context.Context) ([]Listing, error) {
		return fetcher.Fetch(ctx, req.Target, req.Params)
	})
	if err != nil {
		return nil, err
	}
	o.recorder.Observe(metrics.FetchDuration, metrics.Labels{"source": req.Source}, time.Since(start).Seconds())

	unique := o.dropDuplicates(listings)
	o.storeResults(ctx, req, key, unique)
	return unique, nil
}

// dropDuplicates filters out listings whose identity has already been seen
// and records the survivors.
func (o *Orchestrator) dropDuplicates(listings []Listing) []Listing {
	unique := make([]Listing, 0, len(listings))
	for _, listing := range listings {
		identity := listing.Identity()
		if o.dedup.IsDuplicate(identity) {
			continue
		}
		o.dedup.Add(identity)
		unique = append(unique, listing)
	}
	return unique
}

func (o *Orchestrator) storeResults(ctx context.Context, req Request, key string, listings []Listing) {
	tags := []string{"source:" + req.Source, "target:" + normalizeTarget(req.Target)}
	if err := o.cache.SetValue(ctx, key, listings, o.config.CacheTTL, tags...); err != nil {
		o.logger.WarnCtx(ctx, "cache store failed",
			zap.String("key", key), zap.Error(err))
	}
	if o.config.StaleTTL > 0 {
		if err := o.cache.SetValue(ctx, staleKey(key), listings, o.config.StaleTTL); err != nil {
			o.logger.WarnCtx(ctx, "stale copy store failed",
				zap.String("key", key), zap.Error(err))
		}
	}
}

func (o *Orchestrator) staleLookup(ctx context.Context, key string) ([]Listing, bool) {
	if o.config.StaleTTL <= 0 {
		return nil, false
	}
	var stale []Listing
	if err := o.cache.GetValue(ctx, staleKey(key), &stale); err != nil {
		return nil, false
	}
	return stale, true
}

// controllerFor returns the source's circuit breaker, creating it on first
// use.
func (o *Orchestrator) controllerFor(source string) (*resilience.Controller, error) {
	o.ctrlMu.RLock()
	controller, ok := o.controllers[source]
	o.ctrlMu.RUnlock()
	if ok {
		return controller, nil
	}

	o.ctrlMu.Lock()
	defer o.ctrlMu.Unlock()
	if controller, ok = o.controllers[source]; ok {
		return controller, nil
	}
	controller, err := resilience.NewController(source, o.resilienceCfg,
		resilience.WithLogger(o.logger),
		resilience.WithOnRetry(func(int, error) {
			o.recorder.Inc(metrics.Retries, metrics.Labels{"source": source})
		}))
	if err != nil {
		return nil, err
	}
	o.controllers[source] = controller
	return controller, nil
}

// BatchResult pairs one batch request with its outcome.
type BatchResult struct {
	Request Request
	Result  *Result
	Err     error
}

// BatchFetch runs the requests over the worker pool and returns outcomes
// in request order.
func (o *Orchestrator) BatchFetch(ctx context.Context, reqs []Request) []BatchResult {
	results := make([]BatchResult, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		i, req := i, req
		wg.Add(1)
		submit := func() {
			defer wg.Done()
			result, err := o.Fetch(ctx, req)
			results[i] = BatchResult{Request: req, Result: result, Err: err}
		}
		if err := o.pool.Submit(submit); err != nil {
			wg.Done()
			results[i] = BatchResult{Request: req, Err: err}
		}
	}
	wg.Wait()
	return results
}

// Warm prefetches the given targets for one source, priming the cache.
// Failures are skipped; the return value is how many targets now have a
// fresh cache entry.
func (o *Orchestrator) Warm(ctx context.Context, source string, targets []string, params map[string]string, identifier string, tier ratelimit.Tier) int {
	reqs := make([]Request, len(targets))
	for i, target := range targets {
		reqs[i] = Request{
			Source:     source,
			Target:     target,
			Params:     params,
			Identifier: identifier,
			Tier:       tier,
		}
	}

	warmed := 0
	for _, br := range o.BatchFetch(ctx, reqs) {
		if br.Err == nil && !br.Result.Stale {
			warmed++
		}
	}
	o.logger.InfoCtx(ctx, "cache warm finished",
		zap.String("source", source),
		zap.Int("requested", len(targets)),
		zap.Int("warmed", warmed))
	return warmed
}

// BreakerState reports the circuit state for one source; Closed when the
// source has not fetched yet.
func (o *Orchestrator) BreakerState(source string) resilience.State {
	o.ctrlMu.RLock()
	defer o.ctrlMu.RUnlock()
	if controller, ok := o.controllers[source]; ok {
		return controller.GetState()
	}
	return resilience.StateClosed
}

// Stats returns a snapshot of orchestrator counters.
func (o *Orchestrator) Stats() *Stats {
	return &Stats{
		Fetches:     atomic.LoadInt64(&o.fetches),
		CacheHits:   atomic.LoadInt64(&o.cacheHits),
		Rejections:  atomic.LoadInt64(&o.rejections),
		Failures:    atomic.LoadInt64(&o.failures),
		StaleServed: atomic.LoadInt64(&o.staleServed),
	}
}

// Close releases the worker pool and every per-source controller.
func (o *Orchestrator) Close() error {
	o.pool.Release()

	o.ctrlMu.Lock()
	defer o.ctrlMu.Unlock()
	for _, controller := range o.controllers {
		_ = controller.Close()
	}
	o.controllers = make(map[string]*resilience.Controller)
	return nil
}
