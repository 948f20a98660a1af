package cache

import "github.com/propstream/go-propstream/errcode"

var (
	// ErrCacheMiss reports an absent or expired key. Callers treat it as a
	// signal, not a failure.
	ErrCacheMiss = errcode.New(errcode.ModuleCache, 1, "cache", "cache miss")

	// ErrCacheUnavailable reports that the networked layer cannot be
	// reached. The cache degrades to L1-only; this never fails a fetch.
	ErrCacheUnavailable = errcode.New(errcode.ModuleCache, 2, "cache", "cache backend unavailable")

	// ErrSerialize reports a value that could not be encoded.
	ErrSerialize = errcode.New(errcode.ModuleCache, 3, "cache", "serialize failed")

	// ErrDeserialize reports a stored payload that could not be decoded.
	ErrDeserialize = errcode.New(errcode.ModuleCache, 4, "cache", "deserialize failed")
)
