package errcode

import (
	"fmt"
	"sync"
)

// Registry guards against error code collisions across modules.
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string // code -> module:msg
}

var globalRegistry = &Registry{
	codes: make(map[int]string),
}

// Register records an error code in the global registry.
// Panics on conflicting re-registration; registering the identical
// code/module pair twice is idempotent.
func Register(err *Error) *Error {
	return globalRegistry.Register(err)
}

// Register records an error code in this registry.
func (r *Registry) Register(err *Error) *Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s:%s", err.Module(), err.Message())
	if existing, ok := r.codes[err.Code()]; ok {
		if existing != key {
			panic(fmt.Sprintf(
				"error code conflict: code %d is already registered as %s, cannot register as %s",
				err.Code(), existing, key,
			))
		}
		return err
	}

	r.codes[err.Code()] = key
	return err
}

// Registered reports whether a code is known.
func (r *Registry) Registered(code int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codes[code]
	return ok
}
