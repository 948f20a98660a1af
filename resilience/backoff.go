package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before retry attempt N (1-based).
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// BackoffOption tunes a strategy.
type BackoffOption func(*backoffConfig)

type backoffConfig struct {
	multiplier float64
	maxDelay   time.Duration
	jitter     float64
}

func defaultBackoffConfig() *backoffConfig {
	return &backoffConfig{
		multiplier: 2.0,
		maxDelay:   60 * time.Second,
		jitter:     0.25,
	}
}

// WithMultiplier sets the exponential base.
func WithMultiplier(m float64) BackoffOption {
	return func(c *backoffConfig) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithMaxDelay caps the computed delay.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithJitterRatio sets the jitter ratio (0 disables, 0.25 means +-25%).
func WithJitterRatio(ratio float64) BackoffOption {
	return func(c *backoffConfig) {
		if ratio >= 0 && ratio <= 1.0 {
			c.jitter = ratio
		}
	}
}

// ExponentialBackoff returns delay = base * multiplier^(attempt-1), capped
// at the max delay, then jittered.
func ExponentialBackoff(base time.Duration, opts ...BackoffOption) BackoffStrategy {
	config := defaultBackoffConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &exponentialBackoff{base: base, config: config}
}

type exponentialBackoff struct {
	base   time.Duration
	config *backoffConfig
}

func (b *exponentialBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(b.base) * math.Pow(b.config.multiplier, float64(attempt-1))
	return finishDelay(delay, b.config)
}

// LinearBackoff returns delay = base * attempt.
func LinearBackoff(base time.Duration, opts ...BackoffOption) BackoffStrategy {
	config := defaultBackoffConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &linearBackoff{base: base, config: config}
}

type linearBackoff struct {
	base   time.Duration
	config *backoffConfig
}

func (b *linearBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(b.base) * float64(attempt)
	return finishDelay(delay, b.config)
}

// FibonacciBackoff returns delay = base * fib(attempt), a gentler curve
// than exponential for slow-recovering upstreams.
func FibonacciBackoff(base time.Duration, opts ...BackoffOption) BackoffStrategy {
	config := defaultBackoffConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &fibonacciBackoff{base: base, config: config}
}

type fibonacciBackoff struct {
	base   time.Duration
	config *backoffConfig
}

func (b *fibonacciBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	prev, cur := 1, 1
	for i := 2; i < attempt; i++ {
		prev, cur = cur, prev+cur
	}
	delay := float64(b.base) * float64(cur)
	return finishDelay(delay, b.config)
}

// RandomBackoff returns a uniformly random delay in [min, max].
func RandomBackoff(min, max time.Duration) BackoffStrategy {
	if max < min {
		min, max = max, min
	}
	return &randomBackoff{min: min, max: max}
}

type randomBackoff struct {
	min time.Duration
	max time.Duration
}

func (b *randomBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if b.max == b.min {
		return b.min
	}
	return b.min + time.Duration(rand.Int63n(int64(b.max-b.min)))
}

// NoBackoff retries immediately.
func NoBackoff() BackoffStrategy {
	return &noBackoff{}
}

type noBackoff struct{}

func (b *noBackoff) Next(attempt int) time.Duration { return 0 }

// NewBackoff builds the strategy named in cfg.
func NewBackoff(cfg Config) BackoffStrategy {
	jitter := 0.0
	if cfg.Jitter {
		jitter = 0.25
	}
	opts := []BackoffOption{
		WithMultiplier(cfg.BackoffBase),
		WithMaxDelay(cfg.MaxDelay),
		WithJitterRatio(jitter),
	}

	switch cfg.BackoffStrategy {
	case StrategyLinear:
		return LinearBackoff(cfg.InitialDelay, opts...)
	case StrategyFibonacci:
		return FibonacciBackoff(cfg.InitialDelay, opts...)
	case StrategyRandom:
		return RandomBackoff(cfg.InitialDelay, cfg.MaxDelay)
	case StrategyNone:
		return NoBackoff()
	default:
		return ExponentialBackoff(cfg.InitialDelay, opts...)
	}
}

// finishDelay caps and jitters a raw delay.
func finishDelay(delay float64, config *backoffConfig) time.Duration {
	if delay > float64(config.maxDelay) {
		delay = float64(config.maxDelay)
	}
	if config.jitter > 0 {
		delay = applyJitter(delay, config.jitter)
	}
	return time.Duration(delay)
}

// applyJitter randomizes delay within [delay*(1-jitter), delay*(1+jitter)].
func applyJitter(delay float64, jitter float64) float64 {
	delta := delay * jitter
	offset := (rand.Float64()*2 - 1) * delta
	result := delay + offset
	if result < 0 {
		return 0
	}
	return result
}
