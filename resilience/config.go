package resilience

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Backoff strategy names accepted in configuration.
const (
	StrategyExponential = "exponential"
	StrategyLinear      = "linear"
	StrategyFibonacci   = "fibonacci"
	StrategyRandom      = "random"
	StrategyNone        = "none"
)

// Config configures one Controller (retry budget + circuit breaker).
type Config struct {
	// Retry.
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialDelay    time.Duration `mapstructure:"initial_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	BackoffBase     float64       `mapstructure:"backoff_base"`
	BackoffStrategy string        `mapstructure:"backoff_strategy"`
	Jitter          bool          `mapstructure:"jitter"`

	// Circuit breaker.
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	HalfOpenMaxCalls int           `mapstructure:"half_open_max_calls"`

	// EventBusBuffer sizes the event channel.
	EventBusBuffer int `mapstructure:"event_bus_buffer"`
}

// DefaultConfig returns the standard controller settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialDelay:     time.Second,
		MaxDelay:         60 * time.Second,
		BackoffBase:      2.0,
		BackoffStrategy:  StrategyExponential,
		Jitter:           true,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
		EventBusBuffer:   100,
	}
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffStrategy == "" {
		c.BackoffStrategy = def.BackoffStrategy
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = def.RecoveryTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if c.EventBusBuffer <= 0 {
		c.EventBusBuffer = def.EventBusBuffer
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxAttempts, validation.Min(1)),
		validation.Field(&c.MaxDelay, validation.Min(c.InitialDelay)),
		validation.Field(&c.BackoffBase, validation.Min(1.0)),
		validation.Field(&c.BackoffStrategy, validation.In(
			StrategyExponential, StrategyLinear, StrategyFibonacci, StrategyRandom, StrategyNone)),
		validation.Field(&c.FailureThreshold, validation.Min(1)),
		validation.Field(&c.SuccessThreshold, validation.Min(1)),
	)
}
