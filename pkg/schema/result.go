package schema

import "time"

// RunState is the lifecycle state of a single workflow run.
type RunState string

const (
	RunStateInitial       RunState = "INITIAL"
	RunStateResourceCheck RunState = "RESOURCE_CHECK"
	RunStateRunning       RunState = "RUNNING"
	RunStateCompleted     RunState = "COMPLETED"
	RunStateFailed        RunState = "FAILED"
	RunStateInterrupted   RunState = "INTERRUPTED"
)

// Terminal reports whether the state admits no further transitions.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateInterrupted
}

// WorkflowResult is the mutable record of one workflow run. It is created at
// run start, grows monotonically while the run progresses, and stops mutating
// once EndTime is stamped. The Runtime owns it exclusively for the run's
// lifetime; callers get snapshots.
type WorkflowResult struct {
	WorkflowID      string                 `json:"workflowId"`
	RunID           string                 `json:"runId"`
	ResourceKey     string                 `json:"resourceKey,omitempty"`
	State           RunState               `json:"state"`
	Success         bool                   `json:"success"`
	ExecutedStepIDs []string               `json:"executedStepIds"`
	FailedStepIDs   []string               `json:"failedStepIds"`
	Results         map[string]*StepResult `json:"results"`
	Error           string                 `json:"error,omitempty"`
	StartTime       time.Time              `json:"startTime"`
	EndTime         *time.Time             `json:"endTime,omitempty"`
	ExecutionTimeMs int64                  `json:"executionTimeMs,omitempty"`
}

// Interrupted reports whether the run ended via the cooperative stop sentinel.
func (r *WorkflowResult) Interrupted() bool {
	return r.Error == InterruptionSentinel
}

// StepResult summarizes the outcome of a single step.
type StepResult struct {
	StepID        string         `json:"stepId"`
	StepName      string         `json:"stepName,omitempty"`
	Success       bool           `json:"success"`
	Attempts      int            `json:"attempts"`
	ActionResults []ActionResult `json:"actionResults,omitempty"`

	// Result is the folded single value when the step had exactly one action,
	// otherwise the full list of per-action result values.
	Result any `json:"result,omitempty"`

	Error      string `json:"error,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"reason,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// ActionResult records one action execution inside a step attempt.
type ActionResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ScopeValue renders the step result as the plain value exposed to template
// resolution under steps.<id>. Only stable, documented fields are exposed.
func (sr *StepResult) ScopeValue() map[string]any {
	v := map[string]any{
		"stepId":   sr.StepID,
		"success":  sr.Success,
		"attempts": sr.Attempts,
		"result":   sr.Result,
	}
	if sr.StepName != "" {
		v["stepName"] = sr.StepName
	}
	if sr.Error != "" {
		v["error"] = sr.Error
	}
	if sr.Skipped {
		v["skipped"] = true
		v["reason"] = sr.SkipReason
	}
	return v
}
