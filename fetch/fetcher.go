package fetch

import (
	"context"
	"sort"
	"sync"
)

// Fetcher is one listing source. Implementations wrap transient failures
// in resilience.ErrRetryableUpstream and validation/auth failures in
// resilience.ErrFatalUpstream; the orchestrator only distinguishes those
// two categories.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, target string, params map[string]string) ([]Listing, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc struct {
	name string
	fn   func(ctx context.Context, target string, params map[string]string) ([]Listing, error)
}

func NewFetcherFunc(name string, fn func(ctx context.Context, target string, params map[string]string) ([]Listing, error)) *FetcherFunc {
	return &FetcherFunc{name: name, fn: fn}
}

func (f *FetcherFunc) Name() string { return f.name }

func (f *FetcherFunc) Fetch(ctx context.Context, target string, params map[string]string) ([]Listing, error) {
	return f.fn(ctx, target, params)
}

// Registry holds the fixed set of registered sources. Sources register at
// startup; lookups never use reflection.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]Fetcher)}
}

// Register adds a fetcher under its own name, replacing any previous one.
func (r *Registry) Register(f Fetcher) {
	r.mu.Lock()
	r.fetchers[f.Name()] = f
	r.mu.Unlock()
}

// Get returns the fetcher registered under name.
func (r *Registry) Get(name string) (Fetcher, error) {
	r.mu.RLock()
	f, ok := r.fetchers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrFetcherNotFound.WithData("source", name)
	}
	return f, nil
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
