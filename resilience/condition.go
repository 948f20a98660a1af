package resilience

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// RetryCondition decides whether an error is worth another attempt.
type RetryCondition interface {
	ShouldRetry(err error, attempt int) bool
}

// AlwaysRetry retries every non-nil error.
func AlwaysRetry() RetryCondition { return &alwaysRetry{} }

type alwaysRetry struct{}

func (c *alwaysRetry) ShouldRetry(err error, attempt int) bool { return err != nil }

// NeverRetry fails on the first error.
func NeverRetry() RetryCondition { return &neverRetry{} }

type neverRetry struct{}

func (c *neverRetry) ShouldRetry(err error, attempt int) bool { return false }

// RetryOnError retries when errors.Is matches target.
func RetryOnError(target error) RetryCondition {
	return &retryOnError{target: target}
}

type retryOnError struct {
	target error
}

func (c *retryOnError) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, c.target)
}

// RetryOnErrors retries when the error matches any of the targets.
func RetryOnErrors(targets ...error) RetryCondition {
	return &retryOnErrors{targets: targets}
}

type retryOnErrors struct {
	targets []error
}

func (c *retryOnErrors) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	for _, target := range c.targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RetryOnCondition wraps a custom predicate.
func RetryOnCondition(fn func(error) bool) RetryCondition {
	return &retryOnCondition{fn: fn}
}

type retryOnCondition struct {
	fn func(error) bool
}

func (c *retryOnCondition) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	return c.fn(err)
}

// RetryOnTemporaryError retries transient network failures: timeouts,
// connection refused/reset, broken pipes.
func RetryOnTemporaryError() RetryCondition { return &retryOnTemporaryError{} }

type temporaryError interface {
	Temporary() bool
}

type retryOnTemporaryError struct{}

func (c *retryOnTemporaryError) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}

	if te, ok := err.(temporaryError); ok && te.Temporary() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	return false
}

// DefaultUpstreamCondition is the standard fetch-pipeline policy: retry
// transient upstream and network errors, never retry fatal upstream errors.
func DefaultUpstreamCondition() RetryCondition {
	return And(
		Not(RetryOnError(ErrFatalUpstream)),
		Or(
			RetryOnError(ErrRetryableUpstream),
			RetryOnTemporaryError(),
		),
	)
}

// And retries only when every condition agrees.
func And(conditions ...RetryCondition) RetryCondition {
	return &andCondition{conditions: conditions}
}

type andCondition struct {
	conditions []RetryCondition
}

func (c *andCondition) ShouldRetry(err error, attempt int) bool {
	for _, cond := range c.conditions {
		if !cond.ShouldRetry(err, attempt) {
			return false
		}
	}
	return true
}

// Or retries when any condition agrees.
func Or(conditions ...RetryCondition) RetryCondition {
	return &orCondition{conditions: conditions}
}

type orCondition struct {
	conditions []RetryCondition
}

func (c *orCondition) ShouldRetry(err error, attempt int) bool {
	for _, cond := range c.conditions {
		if cond.ShouldRetry(err, attempt) {
			return true
		}
	}
	return false
}

// Not negates a condition.
func Not(condition RetryCondition) RetryCondition {
	return &notCondition{condition: condition}
}

type notCondition struct {
	condition RetryCondition
}

func (c *notCondition) ShouldRetry(err error, attempt int) bool {
	return !c.condition.ShouldRetry(err, attempt)
}
