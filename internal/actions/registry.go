package actions

import (
	"sort"
	"sync"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// Registry is a thread-safe action-type → Handler map with optional
// per-resource overlays. Lookup consults the overlay for the run's resource
// key first, then the shared set. Unknown types are rejected at workflow
// load time, not mid-run.
type Registry struct {
	mu       sync.RWMutex
	shared   map[string]Handler
	perKey   map[string]map[string]Handler // resource key -> type -> handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		shared: make(map[string]Handler),
		perKey: make(map[string]map[string]Handler),
	}
}

// Register adds a shared handler. Duplicate types are rejected.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	t := h.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler type is empty")
	}
	if schema.IsBuiltinAction(t) {
		return schema.NewErrorf(schema.ErrCodeValidation, "action type %q is reserved for the engine", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.shared[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action type %q already registered", t)
	}
	r.shared[t] = h
	return nil
}

// RegisterForResource adds a handler visible only to runs bound to the given
// resource key. An overlay entry shadows a shared handler of the same type.
func (r *Registry) RegisterForResource(resourceKey string, h Handler) error {
	if resourceKey == "" {
		return schema.NewError(schema.ErrCodeValidation, "resource key is empty")
	}
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	t := h.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler type is empty")
	}
	if schema.IsBuiltinAction(t) {
		return schema.NewErrorf(schema.ErrCodeValidation, "action type %q is reserved for the engine", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	overlay := r.perKey[resourceKey]
	if overlay == nil {
		overlay = make(map[string]Handler)
		r.perKey[resourceKey] = overlay
	}
	if _, exists := overlay[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"action type %q already registered for resource %q", t, resourceKey)
	}
	overlay[t] = h
	return nil
}

// Lookup resolves a handler for the resource key and action type.
func (r *Registry) Lookup(resourceKey, actionType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if overlay, ok := r.perKey[resourceKey]; ok {
		if h, ok := overlay[actionType]; ok {
			return h, nil
		}
	}
	if h, ok := r.shared[actionType]; ok {
		return h, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound,
		"action type %q not registered for resource %q", actionType, resourceKey)
}

// Known reports whether the action type would resolve for the resource key.
// Built-in types are always known.
func (r *Registry) Known(resourceKey, actionType string) bool {
	if schema.IsBuiltinAction(actionType) {
		return true
	}
	_, err := r.Lookup(resourceKey, actionType)
	return err == nil
}

// Types lists all shared handler types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.shared))
	for t := range r.shared {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
