package actions

import (
	"context"

	"github.com/lberrio/flowpilot/internal/resource"
)

// Handler executes one externally-registered action type against a bound
// session. The engine interprets if/forEach/delay itself; everything else is
// forwarded here opaquely.
//
// Params arrive fully resolved (templates already substituted). Handlers may
// be invoked more than once for the same logical step when a retry policy is
// configured: a failed attempt re-runs every action of the step, including
// ones that already had side effects. Idempotency is the handler author's
// responsibility; the engine guarantees at-least-once per attempt, nothing
// stronger.
type Handler interface {
	// Type returns the action type string this handler serves.
	Type() string

	// Execute runs the action. The returned value is folded into the step
	// result and becomes addressable to later steps via templates.
	Execute(ctx context.Context, in Input) (any, error)
}

// Input is the data provided to a Handler at execution time.
type Input struct {
	// Params are the action's resolved parameters.
	Params map[string]any

	// Resource is the session handle the run is bound to. May be nil when
	// the engine runs without a resource layer (tests).
	Resource resource.Handle

	// Scope exposes the run's resolution data ("steps", "item") to handlers
	// that evaluate expressions of their own.
	Scope map[string]any
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	ActionType string
	Fn         func(ctx context.Context, in Input) (any, error)
}

func (h HandlerFunc) Type() string { return h.ActionType }

func (h HandlerFunc) Execute(ctx context.Context, in Input) (any, error) {
	return h.Fn(ctx, in)
}
