package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lberrio/flowpilot/internal/actions"
	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/pkg/schema"
)

func testDispatcher(t *testing.T, handlers ...actions.Handler) *Dispatcher {
	t.Helper()
	reg := actions.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	logger := slog.Default()
	return NewDispatcher(reg, expressions.NewResolver(logger), logger, nil, nil)
}

func TestForEach_ProcessesAllItemsInOrder(t *testing.T) {
	var seen []any
	d := testDispatcher(t, handlerFunc("collect", func(_ context.Context, in actions.Input) (any, error) {
		seen = append(seen, in.Params["current"])
		return in.Params["current"], nil
	}))

	act := schema.Action{
		Type: schema.ActionTypeForEach,
		Params: map[string]any{
			"list": []any{"a", "b", "c"},
			"actions": []any{
				map[string]any{"type": "collect", "params": map[string]any{"current": "{{item}}"}},
			},
		},
	}

	result, err := d.Dispatch(context.Background(), act, "", nil, expressions.NewContext(), nil)
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 3, out["processedItems"])
	assert.Equal(t, []any{"a", "b", "c"}, seen)

	records := out["results"].([]any)
	require.Len(t, records, 3)
	first := records[0].(map[string]any)
	assert.Equal(t, "a", first["item"])
	assert.Equal(t, 0, first["index"])
}

func TestForEach_ItemFailureDoesNotStopLoop(t *testing.T) {
	d := testDispatcher(t, handlerFunc("picky", func(_ context.Context, in actions.Input) (any, error) {
		if in.Params["v"] == "b" {
			return nil, errors.New("cannot handle b")
		}
		return "ok", nil
	}))

	act := schema.Action{
		Type: schema.ActionTypeForEach,
		Params: map[string]any{
			"list": []any{"a", "b", "c"},
			"actions": []any{
				map[string]any{"type": "picky", "params": map[string]any{"v": "{{item}}"}},
			},
		},
	}

	result, err := d.Dispatch(context.Background(), act, "", nil, expressions.NewContext(), nil)
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 3, out["processedItems"])

	records := out["results"].([]any)
	require.Len(t, records, 3)

	itemSuccess := func(i int) bool {
		nested := records[i].(map[string]any)["results"].([]any)
		return nested[0].(map[string]any)["success"].(bool)
	}
	assert.True(t, itemSuccess(0))
	assert.False(t, itemSuccess(1))
	assert.True(t, itemSuccess(2))

	failed := records[1].(map[string]any)["results"].([]any)[0].(map[string]any)
	assert.Contains(t, failed["error"], "cannot handle b")
}

func TestForEach_ListFromTemplate(t *testing.T) {
	var count int
	d := testDispatcher(t, handlerFunc("count", func(context.Context, actions.Input) (any, error) {
		count++
		return nil, nil
	}))

	rc := expressions.NewContext()
	rc.SetStep("fetch", map[string]any{
		"result": map[string]any{"posts": []any{float64(1), float64(2)}},
	})

	act := schema.Action{
		Type: schema.ActionTypeForEach,
		Params: map[string]any{
			"list": "{{steps.fetch.result.posts}}",
			"actions": []any{
				map[string]any{"type": "count"},
			},
		},
	}

	result, err := d.Dispatch(context.Background(), act, "", nil, rc, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.(map[string]any)["processedItems"])
	assert.Equal(t, 2, count)
}

func TestForEach_NonArrayListFails(t *testing.T) {
	d := testDispatcher(t)

	act := schema.Action{
		Type: schema.ActionTypeForEach,
		Params: map[string]any{
			"list":    "not a list",
			"actions": []any{map[string]any{"type": "noop"}},
		},
	}

	_, err := d.Dispatch(context.Background(), act, "", nil, expressions.NewContext(), nil)
	require.Error(t, err)

	var ferr *schema.FlowError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, schema.ErrCodeAction, ferr.Code)
}

func TestForEach_EmptyListSucceeds(t *testing.T) {
	d := testDispatcher(t, handlerFunc("noop", func(context.Context, actions.Input) (any, error) {
		return nil, nil
	}))

	act := schema.Action{
		Type: schema.ActionTypeForEach,
		Params: map[string]any{
			"list":    []any{},
			"actions": []any{map[string]any{"type": "noop"}},
		},
	}

	result, err := d.Dispatch(context.Background(), act, "", nil, expressions.NewContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.(map[string]any)["processedItems"])
}

func TestParseNestedActions_RejectsNonObjects(t *testing.T) {
	_, err := parseNestedActions([]any{"not an object"})
	require.Error(t, err)

	_, err = parseNestedActions("not a list")
	require.Error(t, err)

	_, err = parseNestedActions([]any{map[string]any{"params": map[string]any{}}})
	require.Error(t, err, "action without a type must be rejected")
}
