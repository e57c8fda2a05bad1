package resource

import (
	"context"
	"sync"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// Handle is a long-lived external session bound to one target identity.
// A workflow run holds at most one Handle, referenced only by key; the
// Registry owns the Handle's lifetime.
//
// Handles are not safe for concurrent interactions: the engine serializes
// all activity per run, and distinct runs must use distinct keys.
type Handle interface {
	// Key returns the registry key the handle is stored under.
	Key() string

	// IsLive reports whether the underlying session can still receive
	// interactions. Consulted once per run start, not per step.
	IsLive(ctx context.Context) bool

	// Close releases the session.
	Close() error
}

// Factory produces or reuses a Handle for a resource key.
type Factory interface {
	// Ensure returns a live Handle for key, creating one if needed.
	Ensure(ctx context.Context, key string) (Handle, error)
}

// Registry is a thread-safe key → Handle map shared across runs, with an
// injected Factory for cache misses.
type Registry struct {
	factory Factory

	mu      sync.Mutex
	handles map[string]Handle
}

// NewRegistry creates a Registry backed by the given Factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		handles: make(map[string]Handle),
	}
}

// Ensure returns the cached Handle for key, or asks the Factory for one.
// A cached handle that reports itself dead is discarded and re-created.
func (r *Registry) Ensure(ctx context.Context, key string) (Handle, error) {
	if key == "" {
		return nil, schema.NewError(schema.ErrCodeResource, "resource key is empty")
	}

	r.mu.Lock()
	h, ok := r.handles[key]
	r.mu.Unlock()

	if ok && h.IsLive(ctx) {
		return h, nil
	}
	if ok {
		_ = h.Close()
	}

	if r.factory == nil {
		return nil, schema.NewErrorf(schema.ErrCodeResource, "no factory configured for resource %q", key)
	}

	fresh, err := r.factory.Ensure(ctx, key)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeResource,
			"cannot create resource %q: %s", key, err.Error()).WithCause(err)
	}

	r.mu.Lock()
	r.handles[key] = fresh
	r.mu.Unlock()
	return fresh, nil
}

// Get returns the cached Handle for key without touching the Factory.
func (r *Registry) Get(key string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	return h, ok
}

// Put stores a pre-built Handle, replacing any existing one for the key.
func (r *Registry) Put(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.Key()] = h
}

// Close closes and removes every handle. The registry stays usable.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, h := range r.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.handles, key)
	}
	return firstErr
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, key string) (Handle, error)

func (f FactoryFunc) Ensure(ctx context.Context, key string) (Handle, error) {
	return f(ctx, key)
}
