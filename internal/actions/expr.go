package actions

import (
	"context"

	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/pkg/schema"
)

// ExprEvalHandler serves the "expr.eval" action type: deterministic logic
// over the run scope using expr-lang (filter/map/count, nil coalescing,
// optional chaining). Complements the engine's fixed "if" operators when a
// workflow needs richer computation between steps.
type ExprEvalHandler struct {
	engine *expressions.ExprEngine
}

// NewExprEvalHandler creates the handler.
func NewExprEvalHandler() *ExprEvalHandler {
	return &ExprEvalHandler{engine: expressions.NewExprEngine()}
}

func (h *ExprEvalHandler) Type() string { return "expr.eval" }

// Execute evaluates params["expression"]. The environment is the run scope
// plus params["data"] under the "data" key when given.
func (h *ExprEvalHandler) Execute(ctx context.Context, in Input) (any, error) {
	expression, _ := in.Params["expression"].(string)
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "expr.eval requires a non-empty 'expression' string parameter")
	}

	env := make(map[string]any, len(in.Scope)+1)
	for k, v := range in.Scope {
		env[k] = v
	}
	if data, ok := in.Params["data"]; ok {
		env["data"] = data
	}

	result, err := h.engine.Evaluate(ctx, expression, env)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

var _ Handler = (*ExprEvalHandler)(nil)
