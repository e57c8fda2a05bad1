package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lberrio/flowpilot/internal/actions"
	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/pkg/schema"
)

func testExecutor(t *testing.T, handlers ...actions.Handler) *StepExecutor {
	t.Helper()
	reg := actions.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	logger := slog.Default()
	d := NewDispatcher(reg, expressions.NewResolver(logger), logger, nil, nil)
	return NewStepExecutor(d, logger, nil, nil)
}

func handlerFunc(actionType string, fn func(ctx context.Context, in actions.Input) (any, error)) actions.Handler {
	return actions.HandlerFunc{ActionType: actionType, Fn: fn}
}

func TestExecute_SingleActionFoldsResult(t *testing.T) {
	e := testExecutor(t, handlerFunc("echo", func(_ context.Context, in actions.Input) (any, error) {
		return in.Params["value"], nil
	}))

	step := schema.Step{
		ID:      "s1",
		Actions: []schema.Action{{Type: "echo", Params: map[string]any{"value": "hello"}}},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), nil)

	assert.True(t, sr.Success)
	assert.Equal(t, 1, sr.Attempts)
	assert.Equal(t, "hello", sr.Result)
	require.Len(t, sr.ActionResults, 1)
	assert.True(t, sr.ActionResults[0].Success)
}

func TestExecute_MultipleActionsKeepList(t *testing.T) {
	e := testExecutor(t, handlerFunc("echo", func(_ context.Context, in actions.Input) (any, error) {
		return in.Params["value"], nil
	}))

	step := schema.Step{
		ID: "s1",
		Actions: []schema.Action{
			{Type: "echo", Params: map[string]any{"value": "a"}},
			{Type: "echo", Params: map[string]any{"value": "b"}},
		},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), nil)

	assert.True(t, sr.Success)
	assert.Equal(t, []any{"a", "b"}, sr.Result)
}

func TestExecute_FirstFailureAbortsAttempt(t *testing.T) {
	var thirdRan atomic.Bool
	e := testExecutor(t,
		handlerFunc("ok", func(context.Context, actions.Input) (any, error) { return "ok", nil }),
		handlerFunc("boom", func(context.Context, actions.Input) (any, error) { return nil, errors.New("boom") }),
		handlerFunc("after", func(context.Context, actions.Input) (any, error) {
			thirdRan.Store(true)
			return nil, nil
		}),
	)

	step := schema.Step{
		ID: "s1",
		Actions: []schema.Action{
			{Type: "ok"},
			{Type: "boom"},
			{Type: "after"},
		},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), nil)

	assert.False(t, sr.Success)
	assert.False(t, thirdRan.Load(), "actions after the failure must not run")
	// The successful first action's record is retained.
	require.Len(t, sr.ActionResults, 2)
	assert.True(t, sr.ActionResults[0].Success)
	assert.False(t, sr.ActionResults[1].Success)
}

func TestExecute_RetryExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	e := testExecutor(t, handlerFunc("flaky", func(context.Context, actions.Input) (any, error) {
		calls.Add(1)
		return nil, errors.New("always fails")
	}))

	step := schema.Step{
		ID:      "s1",
		Actions: []schema.Action{{Type: "flaky"}},
		Retry:   &schema.RetryPolicy{MaxAttempts: 3, DelayMs: 1},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), nil)

	assert.False(t, sr.Success)
	assert.Equal(t, 3, sr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, sr.Error, "always fails")
}

func TestExecute_RetrySucceedsOnSecondAttempt(t *testing.T) {
	var calls atomic.Int32
	e := testExecutor(t, handlerFunc("flaky", func(context.Context, actions.Input) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return "recovered", nil
	}))

	step := schema.Step{
		ID:      "s1",
		Actions: []schema.Action{{Type: "flaky"}},
		Retry:   &schema.RetryPolicy{MaxAttempts: 3},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), nil)

	assert.True(t, sr.Success)
	assert.Equal(t, 2, sr.Attempts)
	assert.Equal(t, "recovered", sr.Result)
	assert.Empty(t, sr.Error)
}

func TestExecute_ParamsReResolvedPerAttempt(t *testing.T) {
	var seen []any
	var calls atomic.Int32
	e := testExecutor(t, handlerFunc("watch", func(_ context.Context, in actions.Input) (any, error) {
		seen = append(seen, in.Params["v"])
		if calls.Add(1) == 1 {
			return nil, errors.New("retry me")
		}
		return nil, nil
	}))

	rc := expressions.NewContext()
	rc.SetStep("prev", map[string]any{"result": "first"})

	step := schema.Step{
		ID:      "s1",
		Actions: []schema.Action{{Type: "watch", Params: map[string]any{"v": "{{steps.prev.result}}"}}},
		Retry:   &schema.RetryPolicy{MaxAttempts: 2},
	}

	// Mutate the context between attempts is not possible from outside, but
	// re-resolution still observes the live context on every attempt.
	sr := e.Execute(context.Background(), step, "", nil, rc, nil)
	assert.True(t, sr.Success)
	require.Len(t, seen, 2)
	assert.Equal(t, "first", seen[0])
	assert.Equal(t, "first", seen[1])
}

func TestExecute_ConditionGateSkips(t *testing.T) {
	var ran atomic.Bool
	e := testExecutor(t, handlerFunc("noop", func(context.Context, actions.Input) (any, error) {
		ran.Store(true)
		return nil, nil
	}))

	step := schema.Step{
		ID:        "s2",
		Actions:   []schema.Action{{Type: "noop"}},
		Condition: &schema.StepCondition{Kind: schema.ConditionSuccess, PreviousStepID: "s1"},
	}
	prior := map[string]*schema.StepResult{
		"s1": {StepID: "s1", Success: false},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), prior)

	assert.True(t, sr.Skipped)
	assert.Equal(t, SkipReasonCondition, sr.SkipReason)
	assert.Zero(t, sr.Attempts, "a skip must not consume a retry attempt")
	assert.False(t, ran.Load())
}

func TestExecute_ConditionGatePasses(t *testing.T) {
	e := testExecutor(t, handlerFunc("noop", func(context.Context, actions.Input) (any, error) {
		return "ran", nil
	}))

	step := schema.Step{
		ID:        "s2",
		Actions:   []schema.Action{{Type: "noop"}},
		Condition: &schema.StepCondition{Kind: schema.ConditionFailure, PreviousStepID: "s1"},
	}
	prior := map[string]*schema.StepResult{
		"s1": {StepID: "s1", Success: false},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), prior)

	assert.False(t, sr.Skipped)
	assert.True(t, sr.Success)
}

func TestExecute_AlwaysConditionNeverSkips(t *testing.T) {
	e := testExecutor(t, handlerFunc("noop", func(context.Context, actions.Input) (any, error) {
		return nil, nil
	}))

	step := schema.Step{
		ID:        "s2",
		Actions:   []schema.Action{{Type: "noop"}},
		Condition: &schema.StepCondition{Kind: schema.ConditionAlways},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), nil)
	assert.False(t, sr.Skipped)
	assert.True(t, sr.Success)
}

func TestExecute_MissingPredecessorBlocks(t *testing.T) {
	e := testExecutor(t, handlerFunc("noop", func(context.Context, actions.Input) (any, error) {
		return nil, nil
	}))

	step := schema.Step{
		ID:        "s2",
		Actions:   []schema.Action{{Type: "noop"}},
		Condition: &schema.StepCondition{Kind: schema.ConditionSuccess, PreviousStepID: "ghost"},
	}
	sr := e.Execute(context.Background(), step, "", nil, expressions.NewContext(), map[string]*schema.StepResult{})
	assert.True(t, sr.Skipped)
}
