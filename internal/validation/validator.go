package validation

import (
	"fmt"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// Pipeline runs the full workflow validation: JSON Schema first, then the
// semantic cross-reference checks. It satisfies the runtime's Validator
// dependency.
type Pipeline struct {
	schemaValidator *JSONSchemaValidator
}

// NewPipeline builds the validation pipeline with a compiled schema.
func NewPipeline() (*Pipeline, error) {
	sv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Pipeline{schemaValidator: sv}, nil
}

// ValidateWorkflow rejects malformed workflow documents. All semantic
// violations are collected into a single error so callers see every problem
// at once.
func (p *Pipeline) ValidateWorkflow(wf *schema.Workflow) error {
	if err := p.schemaValidator.ValidateDocument(wf); err != nil {
		return err
	}

	violations := validateSemantic(wf)
	switch len(violations) {
	case 0:
		return nil
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		msg := fmt.Sprintf("validation failed with %d errors", len(violations))
		return schema.NewError(schema.ErrCodeValidation, msg).
			WithDetails(map[string]any{"violations": violations})
	}
}
