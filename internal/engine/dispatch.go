package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lberrio/flowpilot/internal/actions"
	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/internal/logging"
	"github.com/lberrio/flowpilot/internal/resource"
	"github.com/lberrio/flowpilot/internal/streaming"
	"github.com/lberrio/flowpilot/pkg/schema"
)

// Dispatcher routes one action to either a built-in control handler
// (if/forEach/delay) or an externally registered handler. Parameter
// templates are resolved here, immediately before execution, so they always
// reflect the latest folded step results.
type Dispatcher struct {
	registry *actions.Registry
	resolver *expressions.Resolver
	logger   *slog.Logger
	sink     logging.Sink
	hub      streaming.Hub
}

func NewDispatcher(registry *actions.Registry, resolver *expressions.Resolver, logger *slog.Logger, sink logging.Sink, hub streaming.Hub) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = logging.NopSink
	}
	return &Dispatcher{
		registry: registry,
		resolver: resolver,
		logger:   logger,
		sink:     sink,
		hub:      hub,
	}
}

// Dispatch executes a single action. act.Params arrive raw; templates are
// resolved against rc (and item, when inside an iteration) just before the
// action runs.
func (d *Dispatcher) Dispatch(ctx context.Context, act schema.Action, resourceKey string, res resource.Handle, rc *expressions.Context, item any) (any, error) {
	d.publish(ctx, streaming.EventActionStarted, map[string]any{"action": act.Type})
	d.sink(logging.LevelInfo, fmt.Sprintf("action %s started", act.Type))

	result, err := d.dispatch(ctx, act, resourceKey, res, rc, item)
	if err != nil {
		d.publish(ctx, streaming.EventActionFailed, map[string]any{"action": act.Type, "error": err.Error()})
		d.sink(logging.LevelError, fmt.Sprintf("action %s failed: %s", act.Type, err.Error()))
		return nil, err
	}

	d.publish(ctx, streaming.EventActionCompleted, map[string]any{"action": act.Type})
	d.sink(logging.LevelSuccess, fmt.Sprintf("action %s completed", act.Type))
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, act schema.Action, resourceKey string, res resource.Handle, rc *expressions.Context, item any) (any, error) {
	switch act.Type {
	case schema.ActionTypeIf:
		return d.runIf(ctx, act, rc, item)
	case schema.ActionTypeDelay:
		return d.runDelay(ctx, act, rc, item)
	case schema.ActionTypeForEach:
		return d.runForEach(ctx, act, resourceKey, res, rc, item)
	}

	handler, err := d.registry.Lookup(resourceKey, act.Type)
	if err != nil {
		return nil, err
	}

	resolved := d.resolver.ResolveParams(act.Params, rc, item)
	return handler.Execute(ctx, actions.Input{
		Params:   resolved,
		Resource: res,
		Scope:    scopeOf(rc, item),
	})
}

// runIf evaluates the built-in branching predicate. Its result carries the
// conditionResult boolean the Navigator routes on.
func (d *Dispatcher) runIf(ctx context.Context, act schema.Action, rc *expressions.Context, item any) (any, error) {
	resolved := d.resolver.ResolveParams(act.Params, rc, item)

	operator, _ := resolved["operator"].(string)
	variable := resolved["variable"]
	value := resolved["value"]

	outcome, err := EvaluateCondition(variable, operator, value)
	if err != nil {
		return nil, err
	}

	d.publish(ctx, streaming.EventConditionEvaluated, map[string]any{
		"operator": operator,
		"result":   outcome,
	})
	d.sink(logging.LevelInfo, fmt.Sprintf("condition %s evaluated to %t", operator, outcome))

	return map[string]any{
		"success":         true,
		"conditionResult": outcome,
		"variable":        variable,
		"operator":        operator,
		"value":           value,
	}, nil
}

// runDelay suspends the run for durationMs without blocking other runs.
func (d *Dispatcher) runDelay(ctx context.Context, act schema.Action, rc *expressions.Context, item any) (any, error) {
	resolved := d.resolver.ResolveParams(act.Params, rc, item)

	ms, ok := toNumber(resolved["durationMs"])
	if !ok || ms < 0 {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"delay action requires a non-negative numeric durationMs")
	}

	if err := WaitFor(ctx, time.Duration(ms)*time.Millisecond); err != nil {
		return nil, schema.NewError(schema.ErrCodeInterrupted, "delay cancelled").WithCause(err)
	}
	return map[string]any{"success": true, "delayedMs": ms}, nil
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, payload map[string]any) {
	if d.hub == nil {
		return
	}
	_ = d.hub.Publish(ctx, streaming.RunEvent{
		WorkflowID: logging.WorkflowID(ctx),
		StepID:     logging.StepID(ctx),
		Type:       eventType,
		Payload:    payload,
	})
}

// scopeOf snapshots the resolution data handed to expression-evaluating
// handlers (jq, expr.eval, cel.assert).
func scopeOf(rc *expressions.Context, item any) map[string]any {
	scope := map[string]any{}
	if rc != nil {
		scope["steps"] = rc.Steps
	}
	if item != nil {
		scope["item"] = item
	}
	return scope
}
