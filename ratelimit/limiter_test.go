package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	l, err := NewLimiter(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	clock := newFakeClock()
	l.now = clock.Now
	return l, clock
}

func tierConfig(maxReq int, window time.Duration, burst int, burstWindow time.Duration, daily int) Config {
	return Config{
		Enabled: true,
		Tiers: map[Tier]TierConfig{
			TierAuthenticated: {
				MaxRequests:   maxReq,
				TimeWindow:    window,
				BurstRequests: burst,
				BurstWindow:   burstWindow,
				DailyLimit:    daily,
			},
		},
	}
}

func TestLimiter_PrimaryWindowExhaustion(t *testing.T) {
	l, clock := newTestLimiter(t, tierConfig(5, time.Minute, 100, time.Second, 0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d := l.Check(ctx, "user-1", TierAuthenticated, "/search")
		require.True(t, d.Allowed, "request %d should pass", i+1)
		assert.Equal(t, 5-i-1, d.Remaining)
		clock.Advance(2 * time.Second) // stay under the burst window
	}

	d := l.Check(ctx, "user-1", TierAuthenticated, "/search")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPrimaryLimit, d.Reason)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// After the window fully elapses, requests succeed again.
	clock.Advance(time.Minute)
	d = l.Check(ctx, "user-1", TierAuthenticated, "/search")
	assert.True(t, d.Allowed)
}

func TestLimiter_BurstProtection(t *testing.T) {
	l, _ := newTestLimiter(t, tierConfig(100, time.Minute, 3, time.Second, 0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Check(ctx, "ip-1", TierAuthenticated, "/").Allowed)
	}

	d := l.Check(ctx, "ip-1", TierAuthenticated, "/")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBurstLimit, d.Reason)
	assert.LessOrEqual(t, d.RetryAfter, time.Second)
}

func TestLimiter_BurstClearsBeforePrimary(t *testing.T) {
	l, clock := newTestLimiter(t, tierConfig(100, time.Minute, 3, time.Second, 0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Check(ctx, "ip-1", TierAuthenticated, "/").Allowed)
	}
	require.False(t, l.Check(ctx, "ip-1", TierAuthenticated, "/").Allowed)

	clock.Advance(1100 * time.Millisecond)
	assert.True(t, l.Check(ctx, "ip-1", TierAuthenticated, "/").Allowed)
}

func TestLimiter_DailyLimitAndRollover(t *testing.T) {
	l, clock := newTestLimiter(t, tierConfig(1000, time.Minute, 1000, time.Second, 3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Check(ctx, "user-2", TierAuthenticated, "/")
		require.True(t, d.Allowed)
		assert.Equal(t, 3-i-1, d.DailyRemaining)
		clock.Advance(time.Minute) // keep the sliding windows clear
	}

	d := l.Check(ctx, "user-2", TierAuthenticated, "/")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLimit, d.Reason)
	assert.Equal(t, 0, d.DailyRemaining)
	// retry_after points at local midnight.
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 24*time.Hour)

	// A new calendar day resets the counter.
	clock.Advance(13 * time.Hour)
	d = l.Check(ctx, "user-2", TierAuthenticated, "/")
	assert.True(t, d.Allowed)
}

func TestLimiter_WhitelistBypassesAllChecks(t *testing.T) {
	l, _ := newTestLimiter(t, tierConfig(1, time.Minute, 1, time.Second, 1))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d := l.Check(ctx, "127.0.0.1", TierAnonymous, "/")
		require.True(t, d.Allowed)
		assert.True(t, d.Whitelisted)
		assert.Equal(t, unlimitedRemaining, d.Remaining)
	}
}

func TestLimiter_WhitelistUserManagement(t *testing.T) {
	l, _ := newTestLimiter(t, tierConfig(1, time.Minute, 1, time.Second, 0))
	ctx := context.Background()

	l.AddWhitelistUser("vip-7")
	for i := 0; i < 5; i++ {
		require.True(t, l.Check(ctx, "vip-7", TierAuthenticated, "/").Allowed)
	}

	l.RemoveWhitelistUser("vip-7")
	require.True(t, l.Check(ctx, "vip-7", TierAuthenticated, "/").Allowed)
	assert.False(t, l.Check(ctx, "vip-7", TierAuthenticated, "/").Allowed)
}

func TestLimiter_TemporaryBan(t *testing.T) {
	l, clock := newTestLimiter(t, tierConfig(100, time.Minute, 100, time.Second, 0))
	ctx := context.Background()

	l.Ban("attacker", 5*time.Minute)

	d := l.Check(ctx, "attacker", TierAnonymous, "/login")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBanned, d.Reason)
	assert.InDelta(t, (5 * time.Minute).Seconds(), d.RetryAfter.Seconds(), 1)

	clock.Advance(5*time.Minute + time.Second)
	assert.True(t, l.Check(ctx, "attacker", TierAnonymous, "/login").Allowed)
}

func TestLimiter_Unban(t *testing.T) {
	l, _ := newTestLimiter(t, tierConfig(100, time.Minute, 100, time.Second, 0))
	ctx := context.Background()

	l.Ban("k", 0) // config default duration
	require.False(t, l.Check(ctx, "k", TierAnonymous, "/").Allowed)

	l.Unban("k")
	assert.True(t, l.Check(ctx, "k", TierAnonymous, "/").Allowed)
}

func TestLimiter_TiersAreIndependent(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Tiers: map[Tier]TierConfig{
			TierAnonymous:     {MaxRequests: 1, TimeWindow: time.Minute, BurstRequests: 10, BurstWindow: time.Second},
			TierAuthenticated: {MaxRequests: 5, TimeWindow: time.Minute, BurstRequests: 10, BurstWindow: time.Second},
		},
	}
	l, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	require.True(t, l.Check(ctx, "id", TierAnonymous, "/").Allowed)
	require.False(t, l.Check(ctx, "id", TierAnonymous, "/").Allowed)

	// The same identifier under a different tier has its own window.
	assert.True(t, l.Check(ctx, "id", TierAuthenticated, "/").Allowed)
}

func TestLimiter_DisabledAllowsEverything(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Enabled: false})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.True(t, l.Check(ctx, "any", TierAnonymous, "/").Allowed)
	}
	assert.False(t, l.IsEnabled())
}

func TestLimiter_ConcurrentChecksNeverOverAdmit(t *testing.T) {
	l, _ := newTestLimiter(t, tierConfig(50, time.Minute, 50, time.Minute, 0))
	ctx := context.Background()

	var allowed int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if l.Check(ctx, "shared", TierAuthenticated, "/").Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed, "exactly max_requests admissions for the shared key")
}

func TestLimiter_AcquireBlocksThenSucceeds(t *testing.T) {
	l, err := NewLimiter(tierConfig(1, 200*time.Millisecond, 1, 100*time.Millisecond, 0), nil)
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "u", TierAuthenticated, "/"))

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "u", TierAuthenticated, "/"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_AcquireHonorsCancellation(t *testing.T) {
	l, _ := newTestLimiter(t, tierConfig(1, time.Hour, 1, time.Hour, 0))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, "u", TierAuthenticated, "/"))

	err := l.Acquire(ctx, "u", TierAuthenticated, "/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAdmissionDenied))
}

func TestLimiter_MetricsAndEvents(t *testing.T) {
	l, _ := newTestLimiter(t, tierConfig(1, time.Minute, 1, time.Second, 0))
	ctx := context.Background()

	var events []Event
	var mu sync.Mutex
	l.GetEventBus().Subscribe(EventListenerFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	require.True(t, l.Check(ctx, "m", TierAuthenticated, "/").Allowed)
	require.False(t, l.Check(ctx, "m", TierAuthenticated, "/").Allowed)

	snapshot := l.GetMetrics()
	assert.Equal(t, int64(2), snapshot.TotalRequests)
	assert.Equal(t, int64(1), snapshot.Allowed)
	assert.Equal(t, int64(1), snapshot.Rejected)
	assert.InDelta(t, 0.5, snapshot.RejectRate, 1e-9)
	assert.Equal(t, int64(1), snapshot.RejectReasons[ReasonBurstLimit])

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(t, tierConfig(1, time.Hour, 10, time.Second, 0))
	ctx := context.Background()

	require.True(t, l.Check(ctx, "r", TierAuthenticated, "/").Allowed)
	require.False(t, l.Check(ctx, "r", TierAuthenticated, "/").Allowed)

	l.Reset("r", TierAuthenticated)
	assert.True(t, l.Check(ctx, "r", TierAuthenticated, "/").Allowed)
}

func TestConfig_ValidateRejectsBadTier(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Tiers: map[Tier]TierConfig{
			TierAnonymous: {MaxRequests: 0, TimeWindow: time.Minute, BurstRequests: 1, BurstWindow: time.Second},
		},
	}
	_, err := NewLimiter(cfg, nil)
	assert.Error(t, err)
}
