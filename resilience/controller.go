// Package resilience wraps operations with bounded retry and a circuit
// breaker.
//
// A Controller protects exactly one upstream operation. The breaker is
// consulted before any attempt; retryable failures are absorbed up to the
// attempt budget, fatal ones propagate immediately, and only the final
// verdict of an execution is recorded against the breaker.
package resilience

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/propstream/go-propstream/logger"
)

// Controller combines retry with backoff and a circuit breaker for one
// protected resource.
type Controller struct {
	resource  string
	config    Config
	state     *stateManager
	backoff   BackoffStrategy
	condition RetryCondition
	eventBus  EventBus
	metrics   MetricsCollector
	logger    *logger.Logger
	onRetry   func(attempt int, err error)
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option customizes a Controller.
type Option func(*Controller)

// WithBackoff overrides the strategy built from config.
func WithBackoff(b BackoffStrategy) Option {
	return func(c *Controller) {
		if b != nil {
			c.backoff = b
		}
	}
}

// WithCondition overrides the retry condition (default: retry transient
// upstream and network errors, never fatal ones).
func WithCondition(cond RetryCondition) Option {
	return func(c *Controller) {
		if cond != nil {
			c.condition = cond
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithOnRetry registers a callback invoked before each backoff sleep.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(c *Controller) {
		c.onRetry = fn
	}
}

// NewController validates cfg and builds a controller for one resource.
func NewController(resource string, cfg Config, opts ...Option) (*Controller, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Controller{
		resource:  resource,
		config:    cfg,
		state:     newStateManager(),
		backoff:   NewBackoff(cfg),
		condition: DefaultUpstreamCondition(),
		eventBus:  NewEventBus(cfg.EventBusBuffer),
		metrics:   NewMetricsCollector(resource),
		logger:    logger.NewNop(),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute runs op under the controller's protection.
func (c *Controller) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := ExecuteWithData(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// ExecuteWithData runs op and returns its result. Failure modes:
// ErrCircuitOpen when the breaker denies the call, the operation's own
// error for fatal failures, ErrMaxRetriesExceeded after the attempt budget.
// Context cancellation aborts without mutating breaker state.
func ExecuteWithData[T any](ctx context.Context, c *Controller, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	allowed, changed, from, to := c.state.CanAttempt(c.config)
	if changed {
		c.publishStateChange(from, to)
	}
	if !allowed {
		retryAfter := c.state.TimeUntilRetry(c.config)
		c.metrics.RecordRejection()
		c.eventBus.Publish(&CallRejectedEvent{
			BaseEvent:  NewBaseEvent(EventCallRejected, c.resource),
			RetryAfter: retryAfter,
		})
		c.logger.WarnCtx(ctx, "circuit open, call rejected",
			zap.String("resource", c.resource),
			zap.Duration("retry_after", retryAfter))
		return zero, ErrCircuitOpen.WithRetryAfter(retryAfter)
	}

	var errs []error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := op(ctx)
		if err == nil {
			c.recordSuccess()
			return result, nil
		}
		errs = append(errs, err)

		if !c.condition.ShouldRetry(err, attempt) {
			// Fatal: propagate immediately, no retry slot consumed, but
			// the failure still counts against the breaker.
			c.recordFailure()
			c.logger.ErrorCtx(ctx, "non-retryable failure",
				zap.String("resource", c.resource),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return zero, err
		}

		if attempt == c.config.MaxAttempts {
			break
		}

		delay := c.backoff.Next(attempt)
		c.metrics.RecordRetry()
		c.eventBus.Publish(&RetryEvent{
			BaseEvent: NewBaseEvent(EventRetry, c.resource),
			Attempt:   attempt,
			Delay:     delay,
			Err:       err,
		})
		if c.onRetry != nil {
			c.onRetry(attempt, err)
		}
		c.logger.WarnCtx(ctx, "retrying after failure",
			zap.String("resource", c.resource),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.config.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			// Cancelled mid-backoff: breaker state stays as it was.
			return zero, err
		}
	}

	c.recordFailure()
	multi := &MultiError{Errors: errs, Attempts: c.config.MaxAttempts}
	c.logger.ErrorCtx(ctx, "retries exhausted",
		zap.String("resource", c.resource),
		zap.Int("attempts", multi.Attempts),
		zap.Error(multi.LastError()))
	return zero, ErrMaxRetriesExceeded.
		WithData("attempts", multi.Attempts).
		Wrap(multi)
}

func (c *Controller) recordSuccess() {
	c.metrics.RecordSuccess()
	if changed, from, to := c.state.RecordSuccess(c.config); changed {
		c.publishStateChange(from, to)
	}
}

func (c *Controller) recordFailure() {
	c.metrics.RecordFailure()
	if changed, from, to := c.state.RecordFailure(c.config); changed {
		c.publishStateChange(from, to)
	}
}

func (c *Controller) publishStateChange(from, to State) {
	c.metrics.RecordStateChange()
	c.eventBus.Publish(&StateChangedEvent{
		BaseEvent: NewBaseEvent(EventStateChanged, c.resource),
		From:      from,
		To:        to,
	})
	c.logger.Info("circuit state changed",
		zap.String("resource", c.resource),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// GetState returns the current breaker state.
func (c *Controller) GetState() State {
	return c.state.GetState()
}

// GetMetrics returns a snapshot of the controller's counters.
func (c *Controller) GetMetrics() *MetricsSnapshot {
	return c.metrics.GetSnapshot(c.state.GetState())
}

// GetEventBus exposes the bus for subscribers.
func (c *Controller) GetEventBus() EventBus {
	return c.eventBus
}

// Reset forces the breaker back to Closed and clears counters.
func (c *Controller) Reset() {
	if changed, from, to := c.state.Reset(); changed {
		c.publishStateChange(from, to)
	}
	c.metrics.Reset()
}

// Close shuts down the event bus.
func (c *Controller) Close() error {
	c.eventBus.Close()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
