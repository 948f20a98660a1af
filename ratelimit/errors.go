package ratelimit

import "github.com/propstream/go-propstream/errcode"

// Rejection reasons used in events, metrics, and error data.
const (
	ReasonBurstLimit   = "burst limit exceeded"
	ReasonPrimaryLimit = "rate limit exceeded"
	ReasonDailyLimit   = "daily limit exceeded"
	ReasonBanned       = "temporarily banned"
)

var (
	// ErrAdmissionDenied is returned by Acquire when the context expires
	// before a slot frees, and wrapped into rejections surfaced to callers.
	ErrAdmissionDenied = errcode.New(errcode.ModuleRateLimit, 1, "ratelimit", "admission denied")

	// ErrBanned is returned while a key is under a temporary ban.
	ErrBanned = errcode.New(errcode.ModuleRateLimit, 2, "ratelimit", "key temporarily banned")
)
