package schema

// Workflow is the JSON-serializable workflow document submitted to the engine.
type Workflow struct {
	ID     string         `json:"id"`
	Name   string         `json:"name,omitempty"`
	Steps  []Step         `json:"steps"`
	Edges  []Edge         `json:"edges,omitempty"`
	Config WorkflowConfig `json:"config,omitempty"`
}

// WorkflowConfig holds run-level behavior knobs.
type WorkflowConfig struct {
	// StopOnError controls whether a failed step halts the run.
	// nil means true (the default).
	StopOnError *bool `json:"stopOnError,omitempty"`

	// TimeoutMs is an advisory run deadline in milliseconds. Zero means none.
	// The deadline is observed at step boundaries only; it never preempts an
	// action already dispatched.
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

// ShouldStopOnError resolves the stop-on-error setting with its default.
func (c WorkflowConfig) ShouldStopOnError() bool {
	if c.StopOnError == nil {
		return true
	}
	return *c.StopOnError
}

// Step is a named graph node containing an ordered action list.
type Step struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Actions   []Action       `json:"actions"`
	Condition *StepCondition `json:"condition,omitempty"`
	Retry     *RetryPolicy   `json:"retry,omitempty"`
}

// ConditionKind gates a step on a predecessor's outcome.
type ConditionKind string

const (
	ConditionSuccess ConditionKind = "success"
	ConditionFailure ConditionKind = "failure"
	ConditionAlways  ConditionKind = "always"
)

// StepCondition skips a step unless the referenced predecessor's outcome
// matches the kind. "always" never skips.
type StepCondition struct {
	Kind           ConditionKind `json:"kind"`
	PreviousStepID string        `json:"previousStepId,omitempty"`
}

// RetryPolicy configures the attempt loop for a step.
type RetryPolicy struct {
	MaxAttempts int   `json:"maxAttempts"` // >= 1
	DelayMs     int64 `json:"delayMs"`     // >= 0, wait between attempts
}

// Edge is a directed link between two steps, optionally labelled for
// conditional routing.
type Edge struct {
	ID           string `json:"id,omitempty"`
	SourceStepID string `json:"sourceStepId"`
	TargetStepID string `json:"targetStepId"`
	BranchLabel  string `json:"branchLabel,omitempty"` // "onTrue", "onFalse", or empty (default edge)
}

// Branch label vocabulary.
const (
	BranchOnTrue  = "onTrue"
	BranchOnFalse = "onFalse"
)

// Action is one operation inside a step. Built-in types are interpreted by
// the engine; every other type is forwarded opaquely to a registered handler.
// String leaves of Params may be template expressions ({{steps...}}, {{item...}}).
type Action struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Built-in action types.
const (
	ActionTypeIf      = "if"
	ActionTypeForEach = "forEach"
	ActionTypeDelay   = "delay"
)

// IsBuiltinAction reports whether the action type is engine-interpreted.
func IsBuiltinAction(actionType string) bool {
	switch actionType {
	case ActionTypeIf, ActionTypeForEach, ActionTypeDelay:
		return true
	}
	return false
}
