package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lberrio/flowpilot/internal/actions"
	"github.com/lberrio/flowpilot/internal/expressions"
	"github.com/lberrio/flowpilot/internal/logging"
	"github.com/lberrio/flowpilot/internal/resource"
	"github.com/lberrio/flowpilot/internal/streaming"
	"github.com/lberrio/flowpilot/pkg/schema"
)

// Validator checks a workflow document before a run is registered.
// Satisfied by the validation pipeline; the runtime always performs its own
// structural checks regardless.
type Validator interface {
	ValidateWorkflow(wf *schema.Workflow) error
}

// ResultArchiver persists finalized run results outside the in-memory store.
// Archiving is best-effort and never affects the run outcome.
type ResultArchiver interface {
	SaveResult(ctx context.Context, result *schema.WorkflowResult) error
}

// Config holds the Runtime's injected dependencies. Only Actions is
// required; everything else degrades gracefully when nil.
type Config struct {
	Logger    *slog.Logger
	Sink      logging.Sink
	Hub       streaming.Hub
	Resources *resource.Registry
	Actions   *actions.Registry
	Validator Validator
	Archiver  ResultArchiver
}

// Runtime owns the per-run state machine, the running-run registry, the
// result store and cancellation. One Runtime instance serves many concurrent
// runs; within a single run execution is strictly sequential because the
// bound session cannot receive concurrent interactions.
type Runtime struct {
	logger    *slog.Logger
	sink      logging.Sink
	hub       streaming.Hub
	resources *resource.Registry
	registry  *actions.Registry
	validator Validator
	archiver  ResultArchiver

	navigator *Navigator
	steps     *StepExecutor

	mu      sync.Mutex
	running map[string]*run
	results map[string]*schema.WorkflowResult
	closed  bool
	wg      sync.WaitGroup
}

// run tracks one in-flight workflow execution.
type run struct {
	runID  string
	cancel context.CancelFunc
}

// NewRuntime creates a Runtime from the given dependencies.
func NewRuntime(cfg Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = logging.NopSink
	}
	registry := cfg.Actions
	if registry == nil {
		registry = actions.NewRegistry()
	}

	resolver := expressions.NewResolver(logger)
	dispatcher := NewDispatcher(registry, resolver, logger, sink, cfg.Hub)

	return &Runtime{
		logger:    logger,
		sink:      sink,
		hub:       cfg.Hub,
		resources: cfg.Resources,
		registry:  registry,
		validator: cfg.Validator,
		archiver:  cfg.Archiver,
		navigator: NewNavigator(logger),
		steps:     NewStepExecutor(dispatcher, logger, sink, cfg.Hub),
		running:   make(map[string]*run),
		results:   make(map[string]*schema.WorkflowResult),
	}
}

// Start validates the workflow, registers a run and returns its run ID. Only
// validation and duplicate-run errors surface synchronously; everything that
// happens after registration, including the resource liveness check, is
// reported through the stored result.
func (r *Runtime) Start(ctx context.Context, wf *schema.Workflow, resourceKey string) (string, error) {
	if err := r.validate(wf, resourceKey); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", schema.NewError(schema.ErrCodeConflict, "runtime is shut down")
	}
	if _, exists := r.running[wf.ID]; exists {
		r.mu.Unlock()
		return "", schema.NewErrorf(schema.ErrCodeDuplicateRun,
			"workflow %q is already running", wf.ID)
	}

	result := &schema.WorkflowResult{
		WorkflowID:  wf.ID,
		RunID:       uuid.NewString(),
		ResourceKey: resourceKey,
		State:       schema.RunStateInitial,
		Results:     make(map[string]*schema.StepResult),
		StartTime:   time.Now(),
	}
	// A stop may have raced ahead of this start and left a sentinel
	// placeholder; honor it so the run halts at its first boundary.
	if prev, ok := r.results[wf.ID]; ok && prev.EndTime == nil && prev.Interrupted() {
		result.Error = schema.InterruptionSentinel
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logging.WithWorkflowID(runCtx, wf.ID)
	runCtx = logging.WithResourceKey(runCtx, resourceKey)

	r.running[wf.ID] = &run{runID: result.RunID, cancel: cancel}
	r.results[wf.ID] = result
	r.wg.Add(1)
	r.mu.Unlock()

	r.publish(runCtx, streaming.EventRunStarted, wf.ID, result.RunID, "", nil)
	r.sink(logging.LevelInfo, fmt.Sprintf("workflow %s run started", wf.ID))

	go r.execute(runCtx, wf, resourceKey, result)
	return result.RunID, nil
}

// validate performs the structural checks that must reject a start before
// anything is registered, then defers to the injected validation pipeline.
func (r *Runtime) validate(wf *schema.Workflow, resourceKey string) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if wf.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow id is required")
	}
	if len(wf.Steps) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no steps")
	}
	for _, step := range wf.Steps {
		if step.ID == "" {
			return schema.NewError(schema.ErrCodeValidation, "step id is required")
		}
		if len(step.Actions) == 0 {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %q has no actions", step.ID).WithStep(step.ID)
		}
		if err := r.checkActionTypes(step.ID, resourceKey, step.Actions); err != nil {
			return err
		}
	}

	if r.validator != nil {
		return r.validator.ValidateWorkflow(wf)
	}
	return nil
}

// checkActionTypes rejects unknown action types at start time so a run never
// fails mid-flight on a typo. forEach nests actions, so it recurses.
func (r *Runtime) checkActionTypes(stepID, resourceKey string, acts []schema.Action) error {
	for _, act := range acts {
		if act.Type == "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %q has an action with no type", stepID).WithStep(stepID)
		}
		if !r.registry.Known(resourceKey, act.Type) {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"step %q uses unknown action type %q", stepID, act.Type).WithStep(stepID)
		}
		if act.Type == schema.ActionTypeForEach {
			nested, err := parseNestedActions(act.Params["actions"])
			if err != nil {
				return err
			}
			if err := r.checkActionTypes(stepID, resourceKey, nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// execute drives one run to a terminal state on its own goroutine. A step
// revisit truncates traversal with a warning; the run then finalizes by the
// normal success rule, so a cycle whose steps all succeeded still ends
// COMPLETED with each step executed once.
func (r *Runtime) execute(ctx context.Context, wf *schema.Workflow, resourceKey string, result *schema.WorkflowResult) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.running, wf.ID)
		r.mu.Unlock()
	}()

	r.setState(result, schema.RunStateResourceCheck)

	res, err := r.ensureResource(ctx, resourceKey)
	if err != nil {
		r.mu.Lock()
		result.Error = err.Error()
		r.mu.Unlock()
		r.finalize(ctx, result, schema.RunStateFailed)
		return
	}

	r.setState(result, schema.RunStateRunning)

	var deadline time.Time
	if wf.Config.TimeoutMs > 0 {
		deadline = result.StartTime.Add(time.Duration(wf.Config.TimeoutMs) * time.Millisecond)
	}

	rc := expressions.NewContext()
	visited := make(map[string]bool, len(wf.Steps))

	current, ok := r.navigator.InitialStep(wf)
	for ok {
		if halt, state := r.boundaryCheck(ctx, result, deadline); halt {
			r.finalize(ctx, result, state)
			return
		}
		if visited[current.ID] {
			r.logger.Warn("step revisited, halting traversal",
				slog.String("workflow_id", wf.ID),
				slog.String("step_id", current.ID))
			r.sink(logging.LevelWarning,
				fmt.Sprintf("workflow %s halted: step %s already visited", wf.ID, current.ID))
			break
		}
		visited[current.ID] = true

		sr := r.steps.Execute(ctx, *current, resourceKey, res, rc, result.Results)

		r.mu.Lock()
		result.Results[sr.StepID] = sr
		result.ExecutedStepIDs = append(result.ExecutedStepIDs, sr.StepID)
		if !sr.Success {
			result.FailedStepIDs = append(result.FailedStepIDs, sr.StepID)
		}
		rc.SetStep(sr.StepID, sr.ScopeValue())
		r.mu.Unlock()

		if !sr.Success && wf.Config.ShouldStopOnError() {
			r.mu.Lock()
			if result.Error == "" {
				result.Error = fmt.Sprintf("step %s failed: %s", sr.StepID, sr.Error)
			}
			r.mu.Unlock()
			break
		}

		current, ok = r.navigator.NextStep(wf, sr.StepID, sr)
	}

	// Stop requests that landed during the last step still win.
	if halt, state := r.boundaryCheck(ctx, result, deadline); halt {
		r.finalize(ctx, result, state)
		return
	}

	r.mu.Lock()
	terminal := schema.RunStateFailed
	if len(result.FailedStepIDs) == 0 && len(result.ExecutedStepIDs) > 0 && result.Error == "" {
		terminal = schema.RunStateCompleted
	}
	r.mu.Unlock()
	r.finalize(ctx, result, terminal)
}

// boundaryCheck runs the per-step-boundary halt conditions: the cooperative
// stop sentinel, run context cancellation and the advisory deadline. None of
// these preempt an action already dispatched.
func (r *Runtime) boundaryCheck(ctx context.Context, result *schema.WorkflowResult, deadline time.Time) (bool, schema.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if result.Interrupted() {
		return true, schema.RunStateInterrupted
	}
	if ctx.Err() != nil {
		result.Error = schema.InterruptionSentinel
		return true, schema.RunStateInterrupted
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		if result.Error == "" {
			result.Error = schema.NewError(schema.ErrCodeTimeout, "workflow deadline exceeded").Error()
		}
		return true, schema.RunStateFailed
	}
	return false, ""
}

func (r *Runtime) ensureResource(ctx context.Context, key string) (resource.Handle, error) {
	if r.resources == nil || key == "" {
		return nil, nil
	}
	handle, err := r.resources.Ensure(ctx, key)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeResource,
			"resource %q unavailable", key).WithCause(err)
	}
	if !handle.IsLive(ctx) {
		return nil, schema.NewErrorf(schema.ErrCodeResource,
			"resource %q is not live", key)
	}
	return handle, nil
}

// finalize stamps the terminal state exactly once and mirrors the result to
// the archive.
func (r *Runtime) finalize(ctx context.Context, result *schema.WorkflowResult, terminal schema.RunState) {
	r.mu.Lock()
	if result.EndTime != nil {
		r.mu.Unlock()
		return
	}
	r.transitionLocked(result, terminal)
	result.Success = terminal == schema.RunStateCompleted
	now := time.Now()
	result.EndTime = &now
	result.ExecutionTimeMs = now.Sub(result.StartTime).Milliseconds()
	snapshot := snapshotResult(result)
	r.mu.Unlock()

	eventType := streaming.EventRunCompleted
	level := logging.LevelSuccess
	msg := fmt.Sprintf("workflow %s completed", result.WorkflowID)
	switch terminal {
	case schema.RunStateFailed:
		eventType = streaming.EventRunFailed
		level = logging.LevelError
		msg = fmt.Sprintf("workflow %s failed: %s", result.WorkflowID, result.Error)
	case schema.RunStateInterrupted:
		eventType = streaming.EventRunInterrupted
		level = logging.LevelWarning
		msg = fmt.Sprintf("workflow %s interrupted", result.WorkflowID)
	}
	r.publish(ctx, eventType, result.WorkflowID, result.RunID, "", map[string]any{
		"success": snapshot.Success,
		"error":   snapshot.Error,
	})
	r.sink(level, msg)

	if r.archiver != nil {
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.archiver.SaveResult(archiveCtx, snapshot); err != nil {
			r.logger.Warn("archive write failed",
				slog.String("workflow_id", result.WorkflowID),
				slog.String("error", err.Error()))
		}
	}
}

// setState performs a guarded non-terminal transition.
func (r *Runtime) setState(result *schema.WorkflowResult, to schema.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionLocked(result, to)
}

func (r *Runtime) transitionLocked(result *schema.WorkflowResult, to schema.RunState) {
	if !ValidRunTransition(result.State, to) {
		r.logger.Warn("unexpected run state transition",
			slog.String("workflow_id", result.WorkflowID),
			slog.String("from", string(result.State)),
			slog.String("to", string(to)))
	}
	result.State = to
}

// Stop requests a cooperative halt of a run. The sentinel is written into
// the stored result (created on the spot if the run has not registered yet)
// and observed by the run loop at its next step boundary; an action already
// dispatched always completes first.
func (r *Runtime) Stop(workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, ok := r.results[workflowID]
	if !ok {
		r.results[workflowID] = &schema.WorkflowResult{
			WorkflowID: workflowID,
			State:      schema.RunStateInitial,
			Error:      schema.InterruptionSentinel,
			Results:    make(map[string]*schema.StepResult),
			StartTime:  time.Now(),
		}
		return nil
	}
	if result.EndTime != nil {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"workflow %q already finished", workflowID)
	}
	result.Error = schema.InterruptionSentinel
	return nil
}

// Status returns a snapshot of the workflow's stored result.
func (r *Runtime) Status(workflowID string) (*schema.WorkflowResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, ok := r.results[workflowID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"no run found for workflow %q", workflowID)
	}
	return snapshotResult(result), nil
}

// List returns snapshots of every stored result.
func (r *Runtime) List() []*schema.WorkflowResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*schema.WorkflowResult, 0, len(r.results))
	for _, result := range r.results {
		out = append(out, snapshotResult(result))
	}
	return out
}

// Clear removes finished results from the store. Non-terminal entries stay,
// since an in-flight run needs its result as the cancellation target.
func (r *Runtime) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, result := range r.results {
		if result.EndTime != nil {
			delete(r.results, id)
			removed++
		}
	}
	return removed
}

// Shutdown cancels all in-flight runs and waits for them to finish or for
// ctx to expire. The runtime accepts no new starts afterwards.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, active := range r.running {
		active.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) publish(ctx context.Context, eventType, workflowID, runID, stepID string, payload map[string]any) {
	if r.hub == nil {
		return
	}
	_ = r.hub.Publish(ctx, streaming.RunEvent{
		WorkflowID: workflowID,
		RunID:      runID,
		StepID:     stepID,
		Type:       eventType,
		Payload:    payload,
	})
}

// snapshotResult copies a result so callers never observe in-flight
// mutation. Step results are written once and shared.
func snapshotResult(r *schema.WorkflowResult) *schema.WorkflowResult {
	cp := *r
	cp.ExecutedStepIDs = append([]string(nil), r.ExecutedStepIDs...)
	cp.FailedStepIDs = append([]string(nil), r.FailedStepIDs...)
	cp.Results = make(map[string]*schema.StepResult, len(r.Results))
	for k, v := range r.Results {
		cp.Results[k] = v
	}
	if r.EndTime != nil {
		end := *r.EndTime
		cp.EndTime = &end
	}
	return &cp
}
