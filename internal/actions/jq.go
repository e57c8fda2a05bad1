package actions

import (
	"context"

	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/pkg/schema"
)

// JQHandler serves the "jq" action type: a jq transformation over explicit
// input data or the run scope. Useful for reshaping a step's collected data
// before a later step consumes it.
type JQHandler struct {
	engine *expressions.JQEngine
}

// NewJQHandler creates the handler.
func NewJQHandler() *JQHandler {
	return &JQHandler{engine: expressions.NewJQEngine()}
}

func (h *JQHandler) Type() string { return "jq" }

// Execute evaluates params["expression"] against params["data"] when given,
// otherwise against the run scope ({steps, item}).
func (h *JQHandler) Execute(ctx context.Context, in Input) (any, error) {
	expression, _ := in.Params["expression"].(string)
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "jq requires a non-empty 'expression' string parameter")
	}

	var input map[string]any
	if data, ok := in.Params["data"].(map[string]any); ok {
		input = data
	} else {
		input = in.Scope
	}

	result, err := h.engine.Evaluate(ctx, expression, input)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

var _ Handler = (*JQHandler)(nil)
