package validation

import (
	"fmt"

	"github.com/lberrio/flowpilot/internal/engine"
	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/pkg/schema"
)

// validateSemantic checks cross-reference rules the JSON Schema cannot
// express: id uniqueness, edge endpoints, condition targets and the operator
// vocabulary of literal "if" parameters.
func validateSemantic(wf *schema.Workflow) []string {
	var violations []string

	stepIDs := make(map[string]bool, len(wf.Steps))
	for i, step := range wf.Steps {
		if stepIDs[step.ID] {
			violations = append(violations,
				fmt.Sprintf("steps[%d]: duplicate step id %q", i, step.ID))
		}
		stepIDs[step.ID] = true
	}

	for i, step := range wf.Steps {
		if cond := step.Condition; cond != nil && cond.Kind != schema.ConditionAlways {
			if cond.PreviousStepID == "" {
				violations = append(violations,
					fmt.Sprintf("steps[%d].condition: previousStepId is required for kind %q", i, cond.Kind))
			} else if !stepIDs[cond.PreviousStepID] {
				violations = append(violations,
					fmt.Sprintf("steps[%d].condition: previousStepId %q is not a step", i, cond.PreviousStepID))
			}
		}
		violations = append(violations, validateActions(fmt.Sprintf("steps[%d]", i), step.Actions)...)
	}

	for i, edge := range wf.Edges {
		if !stepIDs[edge.SourceStepID] {
			violations = append(violations,
				fmt.Sprintf("edges[%d]: sourceStepId %q is not a step", i, edge.SourceStepID))
		}
		if !stepIDs[edge.TargetStepID] {
			violations = append(violations,
				fmt.Sprintf("edges[%d]: targetStepId %q is not a step", i, edge.TargetStepID))
		}
	}

	return violations
}

// validateActions checks built-in action parameters that are knowable
// statically. Templated parameters are left for runtime resolution.
func validateActions(path string, acts []schema.Action) []string {
	var violations []string
	for i, act := range acts {
		actPath := fmt.Sprintf("%s.actions[%d]", path, i)
		switch act.Type {
		case schema.ActionTypeIf:
			op, ok := act.Params["operator"].(string)
			if !ok || op == "" {
				violations = append(violations,
					fmt.Sprintf("%s: if requires an operator", actPath))
			} else if !expressions.HasTemplate(op) && !engine.KnownOperator(op) {
				violations = append(violations,
					fmt.Sprintf("%s: unknown operator %q", actPath, op))
			}
		case schema.ActionTypeForEach:
			if _, ok := act.Params["list"]; !ok {
				violations = append(violations,
					fmt.Sprintf("%s: forEach requires a list", actPath))
			}
			nested, err := parseNested(act.Params["actions"])
			if err != nil {
				violations = append(violations, fmt.Sprintf("%s: %s", actPath, err.Error()))
				continue
			}
			if len(nested) == 0 {
				violations = append(violations,
					fmt.Sprintf("%s: forEach requires a non-empty actions list", actPath))
				continue
			}
			violations = append(violations, validateActions(actPath, nested)...)
		case schema.ActionTypeDelay:
			if _, ok := act.Params["durationMs"]; !ok {
				violations = append(violations,
					fmt.Sprintf("%s: delay requires durationMs", actPath))
			}
		}
	}
	return violations
}

// parseNested extracts the nested action list of a forEach parameter. The
// schema validates top-level actions only, so the nested shapes are checked
// here.
func parseNested(raw any) ([]schema.Action, error) {
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
				return nil, fmt.Errorf("actions[%d] is not an object", i)
			}
			typ, _ := m["type"].(string)
			if typ == "" {
				return nil, fmt.Errorf("actions[%d] has no type", i)
			}
			params, _ := m["params"].(map[string]any)
			out = append(out, schema.Action{Type: typ, Params: params})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("actions must be a list, got %T", raw)
	}
}
