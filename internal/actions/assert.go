package actions

import (
	"context"

	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/pkg/schema"
)

// CELAssertHandler serves the "cel.assert" action type: a CEL predicate over
// the run scope that fails the action (and so the step, subject to its retry
// policy) when the predicate is false. Used as a mid-workflow guard where the
// built-in "if" routing is not enough.
type CELAssertHandler struct {
	engine *expressions.CELEngine
}

// NewCELAssertHandler creates the handler. Returns an error only if the CEL
// environment cannot be constructed.
func NewCELAssertHandler() (*CELAssertHandler, error) {
	engine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &CELAssertHandler{engine: engine}, nil
}

func (h *CELAssertHandler) Type() string { return "cel.assert" }

// Execute evaluates params["expression"] against {steps, item, params}.
// A non-boolean result is a validation error; false fails the action with
// params["message"] (or a default) as the error.
func (h *CELAssertHandler) Execute(ctx context.Context, in Input) (any, error) {
	expression, _ := in.Params["expression"].(string)
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "cel.assert requires a non-empty 'expression' string parameter")
	}

	data := make(map[string]any, len(in.Scope)+1)
	for k, v := range in.Scope {
		data[k] = v
	}
	data["params"] = in.Params

	result, err := h.engine.Evaluate(ctx, expression, data)
	if err != nil {
		return nil, err
	}

	ok, isBool := result.(bool)
	if !isBool {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"cel.assert expression %q did not produce a boolean (got %T)", expression, result)
	}

	if !ok {
		message, _ := in.Params["message"].(string)
		if message == "" {
			message = "assertion failed: " + expression
		}
		return nil, schema.NewError(schema.ErrCodeAction, message)
	}

	return map[string]any{"passed": true, "expression": expression}, nil
}

var _ Handler = (*CELAssertHandler)(nil)
