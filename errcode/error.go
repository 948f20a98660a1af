// Package errcode provides the layered error codes used across the pipeline.
// Error code format: MMBBBB (MM = module code 2 digits, BBBB = business code 4 digits).
package errcode

import (
	"fmt"
	"time"
)

// Module codes. Each core package owns a 2-digit prefix.
const (
	ModuleRateLimit  = 10
	ModuleResilience = 20
	ModuleCache      = 30
	ModuleDedup      = 40
	ModuleFetch      = 50
	ModuleConfig     = 60
)

// Error is a layered error code.
// Supports: error chaining, dynamic messages, context data, errors.Is by code.
type Error struct {
	module string         // module name (ratelimit, resilience, cache, fetch)
	code   int            // complete code (MMBBBB, e.g. 100001)
	msg    string         // default message
	data   map[string]any // machine-readable context (retry_after, attempts, ...)
	cause  error          // original error (chain)
}

// New creates a layered error code and registers it.
// moduleCode: module code (10-99)
// businessCode: business code (0001-9999)
func New(moduleCode, businessCode int, module, msg string) *Error {
	e := &Error{
		module: module,
		code:   moduleCode*10000 + businessCode,
		msg:    msg,
		data:   make(map[string]any),
	}
	return Register(e)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code returns the complete numeric code.
func (e *Error) Code() int {
	return e.code
}

// Module returns the owning module name.
func (e *Error) Module() string {
	return e.module
}

// Message returns the message without the cause chain.
func (e *Error) Message() string {
	return e.msg
}

// Data returns the machine-readable context attached to this error.
func (e *Error) Data() map[string]any {
	return e.data
}

// Cause returns the wrapped error, if any.
func (e *Error) Cause() error {
	return e.cause
}

// Unwrap supports Go 1.13+ error chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithMsg replaces the message (returns a new instance).
func (e *Error) WithMsg(msg string) *Error {
	clone := *e
	clone.msg = msg
	return &clone
}

// WithMsgf formats and replaces the message (returns a new instance).
func (e *Error) WithMsgf(format string, args ...any) *Error {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData adds a single context entry (returns a new instance).
func (e *Error) WithData(key string, value any) *Error {
	clone := *e
	clone.data = e.cloneData()
	clone.data[key] = value
	return &clone
}

// WithRetryAfter attaches the machine-readable retry_after hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	return e.WithData("retry_after", d)
}

// RetryAfter extracts the retry_after hint; zero when absent.
func (e *Error) RetryAfter() time.Duration {
	if d, ok := e.data["retry_after"].(time.Duration); ok {
		return d
	}
	return 0
}

// Wrap wraps a cause (returns a new instance).
func (e *Error) Wrap(cause error) *Error {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Wrapf wraps a cause and replaces the message (returns a new instance).
func (e *Error) Wrapf(cause error, format string, args ...any) *Error {
	if cause == nil {
		return e.WithMsgf(format, args...)
	}
	clone := *e
	clone.cause = cause
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// Is matches by code, so derived instances compare equal to their template.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *Error) cloneData() map[string]any {
	data := make(map[string]any, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return data
}

// String returns a debug representation.
func (e *Error) String() string {
	if e.cause != nil {
		return fmt.Sprintf("errcode.Error{code:%d, module:%s, msg:%s, cause:%v}",
			e.code, e.module, e.msg, e.cause)
	}
	return fmt.Sprintf("errcode.Error{code:%d, module:%s, msg:%s}", e.code, e.module, e.msg)
}
