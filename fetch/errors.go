package fetch

import "github.com/propstream/go-propstream/errcode"

var (
	// ErrFetcherNotFound reports a request for an unregistered source.
	ErrFetcherNotFound = errcode.New(errcode.ModuleFetch, 1, "fetch", "fetcher not registered")

	// ErrFetchFailed wraps a pipeline failure for which no stale fallback
	// was available.
	ErrFetchFailed = errcode.New(errcode.ModuleFetch, 2, "fetch", "fetch failed")
)
