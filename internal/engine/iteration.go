package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/internal/logging"
	"github.com/lberrio/flowpilot/internal/resource"
	"github.com/lberrio/flowpilot/pkg/schema"
)

// runForEach executes a nested action list once per element of a resolved
// list, strictly in index order. The loop is best-effort: a nested-action
// failure is recorded but never aborts the remaining items. This is the
// intended asymmetry with the step attempt loop, which fails fast.
//
// outerItem is the enclosing loop's item when forEach actions nest; it is
// visible while resolving this action's own list parameter and then shadowed
// by each element.
func (d *Dispatcher) runForEach(ctx context.Context, act schema.Action, resourceKey string, res resource.Handle, rc *expressions.Context, outerItem any) (any, error) {
	rawList := act.Params["list"]
	if s, ok := rawList.(string); ok {
		rawList = d.resolver.Resolve(s, rc, outerItem)
	}
	list, ok := rawList.([]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"forEach list must resolve to an array, got %T", rawList)
	}

	nested, err := parseNestedActions(act.Params["actions"])
	if err != nil {
		return nil, err
	}
	if len(nested) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "forEach requires a non-empty actions list")
	}

	itemRecords := make([]any, 0, len(list))
	for idx, item := range list {
		actionRecords := make([]any, 0, len(nested))
		for _, na := range nested {
			record := map[string]any{
				"action": na.Type,
				"params": d.resolver.ResolveParams(na.Params, rc, item),
			}
			result, err := d.Dispatch(ctx, na, resourceKey, res, rc, item)
			if err != nil {
				record["success"] = false
				record["error"] = err.Error()
				d.sink(logging.LevelWarning,
					fmt.Sprintf("forEach item %d action %s failed: %s", idx, na.Type, err.Error()))
			} else {
				record["success"] = true
				record["result"] = result
			}
			actionRecords = append(actionRecords, record)
		}
		itemRecords = append(itemRecords, map[string]any{
			"item":    item,
			"index":   idx,
			"results": actionRecords,
		})
	}

	return map[string]any{
		"success":        true,
		"processedItems": len(list),
		"results":        itemRecords,
	}, nil
}

// parseNestedActions normalizes the forEach actions parameter, which arrives
// either as decoded JSON ([]any of maps) or as typed actions built in code.
func parseNestedActions(raw any) ([]schema.Action, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case []schema.Action:
		return t, nil
	case []any:
		out := make([]schema.Action, 0, len(t))
		for i, entry := range t {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"forEach actions[%d] is not an object", i)
			}
			var a schema.Action
			// Round-trip through JSON so the nested object follows the same
			// decoding rules as a top-level action.
			b, err := json.Marshal(m)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"forEach actions[%d]: %s", i, err.Error())
			}
			if err := json.Unmarshal(b, &a); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"forEach actions[%d]: %s", i, err.Error())
			}
			if a.Type == "" {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"forEach actions[%d] has no type", i)
			}
			out = append(out, a)
		}
		return out, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"forEach actions must be a list, got %T", raw)
	}
}
