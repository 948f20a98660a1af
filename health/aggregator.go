package health

import (
	"context"
	"sync"
	"time"
)

type registration struct {
	checker  Checker
	critical bool
}

// Aggregator runs registered probes concurrently under one timeout.
type Aggregator struct {
	mu       sync.RWMutex
	checkers []registration
	timeout  time.Duration
}

func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{timeout: timeout}
}

// Register adds a probe whose failure marks the whole response unhealthy.
func (a *Aggregator) Register(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, registration{checker: checker, critical: true})
}

// RegisterNonCritical adds a probe whose failure only degrades the
// response. The L2 cache belongs here: the pipeline keeps serving from
// L1 when it is down.
func (a *Aggregator) RegisterNonCritical(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, registration{checker: checker, critical: false})
}

// Check runs every probe and aggregates the results.
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.RLock()
	checkers := make([]registration, len(a.checkers))
	copy(checkers, a.checkers)
	a.mu.RUnlock()

	results := make(chan CheckResult, len(checkers))
	for _, reg := range checkers {
		go func(reg registration) {
			results <- a.checkOne(checkCtx, reg)
		}(reg)
	}

	checks := make(map[string]CheckResult, len(checkers))
	for range checkers {
		result := <-results
		checks[result.Name] = result
	}

	return &Response{
		Status:    overallStatus(checks),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
	}
}

func (a *Aggregator) checkOne(ctx context.Context, reg registration) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      reg.checker.Name(),
		Timestamp: start,
	}

	err := reg.checker.Check(ctx)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = StatusHealthy
	case reg.critical:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	default:
		result.Status = StatusDegraded
		result.Error = err.Error()
	}
	return result
}

func overallStatus(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, result := range checks {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
