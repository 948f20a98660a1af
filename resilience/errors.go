package resilience

import (
	"fmt"
	"strings"

	"github.com/propstream/go-propstream/errcode"
)

var (
	// ErrCircuitOpen is returned when the breaker refuses the call outright.
	// Recoverable after the recovery timeout; RetryAfter carries the wait.
	ErrCircuitOpen = errcode.New(errcode.ModuleResilience, 1, "resilience", "circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last retryable failure after the
	// attempt budget is spent.
	ErrMaxRetriesExceeded = errcode.New(errcode.ModuleResilience, 2, "resilience", "max retries exceeded")

	// ErrRetryableUpstream marks transient network/availability failures.
	// Fetch functions wrap their transient errors with it.
	ErrRetryableUpstream = errcode.New(errcode.ModuleResilience, 3, "resilience", "retryable upstream failure")

	// ErrFatalUpstream marks validation/auth failures that must never be
	// retried.
	ErrFatalUpstream = errcode.New(errcode.ModuleResilience, 4, "resilience", "fatal upstream failure")
)

// MultiError aggregates the errors from every attempt of one execution.
type MultiError struct {
	Errors   []error
	Attempts int
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "execution failed: no errors recorded"
	}
	return e.Errors[len(e.Errors)-1].Error()
}

// Unwrap returns the last attempt's error.
func (e *MultiError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// LastError returns the final attempt's error.
func (e *MultiError) LastError() error {
	return e.Unwrap()
}

// AllErrors formats every attempt's error for logging.
func (e *MultiError) AllErrors() string {
	if len(e.Errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("failed after %d attempts:", e.Attempts))
	for i, err := range e.Errors {
		b.WriteString(fmt.Sprintf("\n  attempt %d: %v", i+1, err))
	}
	return b.String()
}
