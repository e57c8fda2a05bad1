package streaming

import "context"

// Run event types published by the engine.
const (
	EventRunStarted         = "run_started"
	EventRunCompleted       = "run_completed"
	EventRunFailed          = "run_failed"
	EventRunInterrupted     = "run_interrupted"
	EventStepStarted        = "step_started"
	EventStepCompleted      = "step_completed"
	EventStepFailed         = "step_failed"
	EventStepSkipped        = "step_skipped"
	EventStepRetry          = "step_retry"
	EventActionStarted      = "action_started"
	EventActionCompleted    = "action_completed"
	EventActionFailed       = "action_failed"
	EventConditionEvaluated = "condition_evaluated"
)

// RunEvent is a real-time event emitted during workflow execution.
type RunEvent struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id,omitempty"`
	StepID     string `json:"step_id,omitempty"`
	Type       string `json:"type"`
	Payload    any    `json:"payload,omitempty"`
}

// Filter specifies which events a subscriber wants to receive.
type Filter struct {
	WorkflowID string   `json:"workflow_id,omitempty"`
	Types      []string `json:"types,omitempty"`
}

// Hub provides pub/sub for run events. Publishing must never block the
// engine: slow subscribers lose events rather than stalling a run.
type Hub interface {
	Publish(ctx context.Context, event RunEvent) error
	Subscribe(ctx context.Context, filter Filter) (<-chan RunEvent, func(), error)
}
