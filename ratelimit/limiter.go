package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propstream/go-propstream/logger"
)

// unlimitedRemaining is reported for whitelisted keys and disabled limiters.
const unlimitedRemaining = 999999

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Tier    Tier

	// Remaining is the primary-window quota left after this request.
	Remaining int

	// ResetAt is when the primary window frees its oldest slot.
	ResetAt time.Time

	// RetryAfter is how long to wait before retrying; zero when allowed.
	RetryAfter time.Duration

	// DailyRemaining is -1 when the tier has no daily cap.
	DailyRemaining int

	Whitelisted bool
	Reason      string
}

// keyState is the sliding window plus daily counter for one storage key.
// Its mutex serializes concurrent checks for the same key.
type keyState struct {
	timestamps []time.Time
	dailyDate  string
	dailyCount int
	mu         sync.Mutex
}

// Limiter is the tiered admission controller. All state is in-process;
// it performs no I/O.
type Limiter struct {
	config         Config
	keys           map[string]*keyState
	whitelistIPs   map[string]struct{}
	whitelistUsers map[string]struct{}
	bans           map[string]time.Time
	eventBus       EventBus
	metrics        MetricsCollector
	logger         *logger.Logger
	now            func() time.Time
	mu             sync.RWMutex
}

// NewLimiter validates cfg and builds a limiter. Loopback identifiers are
// always whitelisted.
func NewLimiter(cfg Config, log *logger.Logger) (*Limiter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	whitelistIPs := map[string]struct{}{
		"127.0.0.1": {},
		"::1":       {},
		"localhost": {},
	}
	for _, ip := range cfg.WhitelistIPs {
		whitelistIPs[ip] = struct{}{}
	}

	return &Limiter{
		config:         cfg,
		keys:           make(map[string]*keyState),
		whitelistIPs:   whitelistIPs,
		whitelistUsers: make(map[string]struct{}),
		bans:           make(map[string]time.Time),
		eventBus:       NewEventBus(cfg.EventBusBuffer),
		metrics:        NewMetricsCollector(),
		logger:         log,
		now:            time.Now,
	}, nil
}

// storageKey scopes window state per tier so an identifier re-classified to
// a higher tier starts a fresh budget.
func storageKey(identifier string, tier Tier) string {
	return string(tier) + ":" + identifier
}

// Check runs the admission layers for one request: ban, whitelist, burst
// window, primary window, daily counter. On acceptance the request is
// recorded against all counters. path identifies the requested operation
// for logs and events only; it does not affect the decision.
func (l *Limiter) Check(ctx context.Context, identifier string, tier Tier, path string) Decision {
	now := l.now()

	if !l.config.Enabled {
		return Decision{Allowed: true, Tier: tier, Remaining: unlimitedRemaining, ResetAt: now.Add(time.Minute), DailyRemaining: -1}
	}

	if l.isWhitelisted(identifier) {
		l.metrics.RecordWhitelisted()
		return Decision{
			Allowed:        true,
			Tier:           tier,
			Remaining:      unlimitedRemaining,
			ResetAt:        now.Add(time.Minute),
			DailyRemaining: -1,
			Whitelisted:    true,
		}
	}

	if until, banned := l.banExpiry(identifier, now); banned {
		retryAfter := until.Sub(now)
		l.metrics.RecordRejected(ReasonBanned)
		l.eventBus.Publish(&RejectedEvent{
			BaseEvent:  NewBaseEvent(EventRejected, identifier),
			Tier:       tier,
			Reason:     ReasonBanned,
			RetryAfter: retryAfter,
		})
		return Decision{
			Tier:           tier,
			ResetAt:        until,
			RetryAfter:     retryAfter,
			DailyRemaining: -1,
			Reason:         ReasonBanned,
		}
	}

	cfg, ok := l.config.Tiers[tier]
	if !ok {
		cfg = DefaultTierLimits()[TierAnonymous]
	}

	key := storageKey(identifier, tier)
	state := l.getOrCreateState(key)

	state.mu.Lock()
	decision := l.checkLocked(state, tier, cfg, now)
	state.mu.Unlock()

	if decision.Allowed {
		l.metrics.RecordAllowed()
		l.eventBus.Publish(&AllowedEvent{
			BaseEvent: NewBaseEvent(EventAllowed, identifier),
			Tier:      tier,
			Remaining: decision.Remaining,
		})
	} else {
		l.metrics.RecordRejected(decision.Reason)
		l.eventBus.Publish(&RejectedEvent{
			BaseEvent:  NewBaseEvent(EventRejected, identifier),
			Tier:       tier,
			Reason:     decision.Reason,
			RetryAfter: decision.RetryAfter,
		})
		l.logger.DebugCtx(ctx, "request rejected",
			zap.String("identifier", identifier),
			zap.String("tier", string(tier)),
			zap.String("path", path),
			zap.String("reason", decision.Reason),
			zap.Duration("retry_after", decision.RetryAfter))
	}

	return decision
}

// checkLocked evaluates the three layers with the key's mutex held.
func (l *Limiter) checkLocked(state *keyState, tier Tier, cfg TierConfig, now time.Time) Decision {
	// Prune entries that fell out of the primary window.
	kept := state.timestamps[:0]
	for _, ts := range state.timestamps {
		if now.Sub(ts) < cfg.TimeWindow {
			kept = append(kept, ts)
		}
	}
	state.timestamps = kept

	// Burst window.
	var burstCount int
	var oldestInBurst time.Time
	for _, ts := range state.timestamps {
		if now.Sub(ts) < cfg.BurstWindow {
			if burstCount == 0 || ts.Before(oldestInBurst) {
				oldestInBurst = ts
			}
			burstCount++
		}
	}
	if burstCount >= cfg.BurstRequests {
		retryAfter := cfg.BurstWindow - now.Sub(oldestInBurst)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{
			Tier:           tier,
			ResetAt:        now.Add(retryAfter),
			RetryAfter:     retryAfter,
			DailyRemaining: -1,
			Reason:         ReasonBurstLimit,
		}
	}

	// Primary window. Timestamps are appended in order, so the oldest is
	// the first element.
	if len(state.timestamps) >= cfg.MaxRequests {
		retryAfter := cfg.TimeWindow - now.Sub(state.timestamps[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{
			Tier:           tier,
			ResetAt:        now.Add(retryAfter),
			RetryAfter:     retryAfter,
			DailyRemaining: -1,
			Reason:         ReasonPrimaryLimit,
		}
	}

	// Daily counter with midnight rollover.
	dailyRemaining := -1
	if cfg.DailyLimit > 0 {
		today := now.Format("2006-01-02")
		if state.dailyDate != today {
			state.dailyDate = today
			state.dailyCount = 0
		}
		if state.dailyCount >= cfg.DailyLimit {
			retryAfter := untilMidnight(now)
			return Decision{
				Tier:           tier,
				ResetAt:        now.Add(retryAfter),
				RetryAfter:     retryAfter,
				DailyRemaining: 0,
				Reason:         ReasonDailyLimit,
			}
		}
		dailyRemaining = cfg.DailyLimit - state.dailyCount
	}

	// Admitted: record against window and daily counter.
	state.timestamps = append(state.timestamps, now)
	if cfg.DailyLimit > 0 {
		state.dailyCount++
		dailyRemaining = cfg.DailyLimit - state.dailyCount
	}

	return Decision{
		Allowed:        true,
		Tier:           tier,
		Remaining:      cfg.MaxRequests - len(state.timestamps),
		ResetAt:        state.timestamps[0].Add(cfg.TimeWindow),
		DailyRemaining: dailyRemaining,
	}
}

// Acquire blocks until a slot frees or ctx is done. On cancellation the
// window is left untouched; no slot is consumed.
func (l *Limiter) Acquire(ctx context.Context, identifier string, tier Tier, path string) error {
	for {
		decision := l.Check(ctx, identifier, tier, path)
		if decision.Allowed {
			return nil
		}

		wait := decision.RetryAfter
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrAdmissionDenied.WithRetryAfter(decision.RetryAfter).Wrap(ctx.Err())
		case <-timer.C:
		}
	}
}

// Ban blocks an identifier for the given duration (config default when
// d <= 0), overriding any tier budget until it expires.
func (l *Limiter) Ban(identifier string, d time.Duration) {
	if d <= 0 {
		d = l.config.BanDuration
	}
	until := l.now().Add(d)

	l.mu.Lock()
	l.bans[identifier] = until
	l.mu.Unlock()

	l.logger.Warn("identifier banned",
		zap.String("identifier", identifier),
		zap.Duration("duration", d),
		zap.Time("until", until))
	l.eventBus.Publish(&BannedEvent{
		BaseEvent: NewBaseEvent(EventBanned, identifier),
		Until:     until,
	})
}

// Unban lifts a ban early.
func (l *Limiter) Unban(identifier string) {
	l.mu.Lock()
	delete(l.bans, identifier)
	l.mu.Unlock()
}

// banExpiry reports an active ban's expiry, lazily removing stale entries.
func (l *Limiter) banExpiry(identifier string, now time.Time) (time.Time, bool) {
	l.mu.RLock()
	until, ok := l.bans[identifier]
	l.mu.RUnlock()

	if !ok {
		return time.Time{}, false
	}
	if now.Before(until) {
		return until, true
	}

	l.mu.Lock()
	if stored, still := l.bans[identifier]; still && !now.Before(stored) {
		delete(l.bans, identifier)
	}
	l.mu.Unlock()
	return time.Time{}, false
}

// AddWhitelistUser exempts a user id from all checks.
func (l *Limiter) AddWhitelistUser(id string) {
	l.mu.Lock()
	l.whitelistUsers[id] = struct{}{}
	l.mu.Unlock()
}

// RemoveWhitelistUser revokes a user exemption.
func (l *Limiter) RemoveWhitelistUser(id string) {
	l.mu.Lock()
	delete(l.whitelistUsers, id)
	l.mu.Unlock()
}

func (l *Limiter) isWhitelisted(identifier string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.whitelistIPs[identifier]; ok {
		return true
	}
	_, ok := l.whitelistUsers[identifier]
	return ok
}

func (l *Limiter) getOrCreateState(key string) *keyState {
	l.mu.RLock()
	if state, ok := l.keys[key]; ok {
		l.mu.RUnlock()
		return state
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.keys[key]; ok {
		return state
	}
	state := &keyState{}
	l.keys[key] = state
	return state
}

// Reset clears the window and daily counter for one identifier and tier.
func (l *Limiter) Reset(identifier string, tier Tier) {
	key := storageKey(identifier, tier)

	l.mu.RLock()
	state, ok := l.keys[key]
	l.mu.RUnlock()
	if !ok {
		return
	}

	state.mu.Lock()
	state.timestamps = nil
	state.dailyDate = ""
	state.dailyCount = 0
	state.mu.Unlock()
}

// GetMetrics returns a snapshot of the limiter's counters.
func (l *Limiter) GetMetrics() *MetricsSnapshot {
	return l.metrics.GetSnapshot()
}

// GetEventBus exposes the bus for subscribers.
func (l *Limiter) GetEventBus() EventBus {
	return l.eventBus
}

// IsEnabled reports whether checks are active.
func (l *Limiter) IsEnabled() bool {
	return l.config.Enabled
}

// Close shuts down the event bus.
func (l *Limiter) Close() error {
	l.eventBus.Close()
	return nil
}

// untilMidnight returns the time remaining in the local calendar day.
func untilMidnight(now time.Time) time.Duration {
	year, month, day := now.Date()
	midnight := time.Date(year, month, day+1, 0, 0, 0, 0, now.Location())
	return midnight.Sub(now)
}
