package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/internal/logging"
	"github.com/lberrio/flowpilot/internal/resource"
	"github.com/lberrio/flowpilot/internal/streaming"
	"github.com/lberrio/flowpilot/pkg/schema"
)

// SkipReasonCondition marks a step skipped because its predecessor condition
// did not hold.
const SkipReasonCondition = "condition_not_met"

// StepExecutor runs one step's ordered actions under its retry policy.
type StepExecutor struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	sink       logging.Sink
	hub        streaming.Hub
}

func NewStepExecutor(dispatcher *Dispatcher, logger *slog.Logger, sink logging.Sink, hub streaming.Hub) *StepExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = logging.NopSink
	}
	return &StepExecutor{dispatcher: dispatcher, logger: logger, sink: sink, hub: hub}
}

// Execute runs a step to a StepResult. The condition gate is checked first
// and a skip consumes no retry attempt. Within an attempt, actions run
// strictly in order and the first failure aborts the rest; exhausted attempts
// yield a failed result that retains the last attempt's partial records.
func (e *StepExecutor) Execute(ctx context.Context, step schema.Step, resourceKey string, res resource.Handle, rc *expressions.Context, prior map[string]*schema.StepResult) *schema.StepResult {
	ctx = logging.WithStepID(ctx, step.ID)
	started := time.Now()

	sr := &schema.StepResult{StepID: step.ID, StepName: step.Name}

	if skip, reason := e.conditionBlocks(step, prior); skip {
		sr.Success = true
		sr.Skipped = true
		sr.SkipReason = reason
		e.publish(ctx, streaming.EventStepSkipped, step.ID, map[string]any{"reason": reason})
		e.sink(logging.LevelInfo, fmt.Sprintf("step %s skipped: %s", step.ID, reason))
		return sr
	}

	e.publish(ctx, streaming.EventStepStarted, step.ID, nil)
	e.sink(logging.LevelInfo, fmt.Sprintf("step %s started", step.ID))

	maxAttempts := maxAttemptsFor(step.Retry)
	delay := retryDelayFor(step.Retry)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sr.Attempts = attempt
		records, err := e.runAttempt(ctx, step, resourceKey, res, rc)
		sr.ActionResults = records

		if err == nil {
			sr.Success = true
			sr.Error = ""
			sr.Result = foldResult(records)
			sr.DurationMs = time.Since(started).Milliseconds()
			e.publish(ctx, streaming.EventStepCompleted, step.ID, map[string]any{"attempts": attempt})
			e.sink(logging.LevelSuccess, fmt.Sprintf("step %s completed", step.ID))
			return sr
		}

		sr.Error = err.Error()
		if attempt < maxAttempts {
			e.publish(ctx, streaming.EventStepRetry, step.ID, map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			})
			e.sink(logging.LevelWarning,
				fmt.Sprintf("step %s attempt %d/%d failed, retrying: %s", step.ID, attempt, maxAttempts, err.Error()))
			if werr := WaitFor(ctx, delay); werr != nil {
				break
			}
		}
	}

	sr.Success = false
	sr.DurationMs = time.Since(started).Milliseconds()
	e.publish(ctx, streaming.EventStepFailed, step.ID, map[string]any{
		"attempts": sr.Attempts,
		"error":    sr.Error,
	})
	e.sink(logging.LevelError, fmt.Sprintf("step %s failed after %d attempts: %s", step.ID, sr.Attempts, sr.Error))
	return sr
}

// runAttempt executes every action of the step once, in order. Templates are
// resolved inside the dispatcher just before each action runs, so a later
// action in the same attempt sees nothing newer than the run context it was
// given; results only fold back between steps.
func (e *StepExecutor) runAttempt(ctx context.Context, step schema.Step, resourceKey string, res resource.Handle, rc *expressions.Context) ([]schema.ActionResult, error) {
	records := make([]schema.ActionResult, 0, len(step.Actions))
	for _, act := range step.Actions {
		result, err := e.dispatcher.Dispatch(ctx, act, resourceKey, res, rc, nil)
		if err != nil {
			records = append(records, schema.ActionResult{
				Type:  act.Type,
				Error: err.Error(),
			})
			return records, err
		}
		records = append(records, schema.ActionResult{
			Type:    act.Type,
			Success: true,
			Result:  result,
		})
	}
	return records, nil
}

// conditionBlocks evaluates the predecessor gate. "always" and a missing
// condition never block. A gate referencing a step with no recorded result
// blocks, since its required outcome cannot have happened.
func (e *StepExecutor) conditionBlocks(step schema.Step, prior map[string]*schema.StepResult) (bool, string) {
	cond := step.Condition
	if cond == nil || cond.Kind == schema.ConditionAlways {
		return false, ""
	}

	prev, ok := prior[cond.PreviousStepID]
	switch cond.Kind {
	case schema.ConditionSuccess:
		if !ok || !prev.Success {
			return true, SkipReasonCondition
		}
	case schema.ConditionFailure:
		if !ok || prev.Success {
			return true, SkipReasonCondition
		}
	}
	return false, ""
}

// foldResult collapses per-action results into the step's result value: the
// single value when the step had exactly one action, else the full list.
func foldResult(records []schema.ActionResult) any {
	if len(records) == 1 {
		return records[0].Result
	}
	values := make([]any, len(records))
	for i, r := range records {
		values[i] = r.Result
	}
	return values
}

func (e *StepExecutor) publish(ctx context.Context, eventType, stepID string, payload map[string]any) {
	if e.hub == nil {
		return
	}
	_ = e.hub.Publish(ctx, streaming.RunEvent{
		WorkflowID: logging.WorkflowID(ctx),
		StepID:     stepID,
		Type:       eventType,
		Payload:    payload,
	})
}
