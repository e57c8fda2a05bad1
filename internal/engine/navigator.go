package engine

import (
	"log/slog"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// Navigator computes the initial step of a workflow and, after each step,
// the next step from the edge set and the finished step's outcome.
type Navigator struct {
	logger *slog.Logger
}

func NewNavigator(logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{logger: logger}
}

// InitialStep returns the entry step of the workflow. With no edges it is the
// first declared step; with edges it is the first declared step that has no
// incoming edge, falling back to the first declared step. The second return
// is false when the workflow has no steps.
func (n *Navigator) InitialStep(wf *schema.Workflow) (*schema.Step, bool) {
	if len(wf.Steps) == 0 {
		return nil, false
	}
	if len(wf.Edges) == 0 {
		return &wf.Steps[0], true
	}

	incoming := make(map[string]bool, len(wf.Edges))
	for _, e := range wf.Edges {
		incoming[e.TargetStepID] = true
	}
	for i := range wf.Steps {
		if !incoming[wf.Steps[i].ID] {
			return &wf.Steps[i], true
		}
	}
	return &wf.Steps[0], true
}

// NextStep returns the step that follows currentID given the finished step's
// outcome. The second return is false when the run is at a terminal step.
//
// With no edges traversal is sequential by declaration order. With edges, the
// outgoing set of currentID decides: zero means terminal, one is followed
// unconditionally, and multiple edges are disambiguated by branch label. A
// conditionResult boolean in the outcome matches "onTrue"/"onFalse"; without
// one the step's success flag is matched instead; an unlabelled edge is the
// default. When nothing matches, the first outgoing edge is followed and a
// warning is logged, since an unmatched branch usually means a mislabelled
// edge in the workflow document.
func (n *Navigator) NextStep(wf *schema.Workflow, currentID string, outcome *schema.StepResult) (*schema.Step, bool) {
	if len(wf.Edges) == 0 {
		for i := range wf.Steps {
			if wf.Steps[i].ID == currentID {
				if i+1 < len(wf.Steps) {
					return &wf.Steps[i+1], true
				}
				return nil, false
			}
		}
		return nil, false
	}

	var outgoing []schema.Edge
	for _, e := range wf.Edges {
		if e.SourceStepID == currentID {
			outgoing = append(outgoing, e)
		}
	}

	switch len(outgoing) {
	case 0:
		return nil, false
	case 1:
		return n.stepByID(wf, outgoing[0].TargetStepID)
	}

	branch := branchValue(outcome)
	wantLabel := schema.BranchOnFalse
	if branch {
		wantLabel = schema.BranchOnTrue
	}

	var fallback *schema.Edge
	for i := range outgoing {
		switch outgoing[i].BranchLabel {
		case wantLabel:
			return n.stepByID(wf, outgoing[i].TargetStepID)
		case "":
			if fallback == nil {
				fallback = &outgoing[i]
			}
		}
	}
	if fallback != nil {
		return n.stepByID(wf, fallback.TargetStepID)
	}

	n.logger.Warn("no outgoing edge matched branch, following first edge",
		slog.String("step_id", currentID),
		slog.String("wanted_label", wantLabel))
	return n.stepByID(wf, outgoing[0].TargetStepID)
}

func (n *Navigator) stepByID(wf *schema.Workflow, id string) (*schema.Step, bool) {
	for i := range wf.Steps {
		if wf.Steps[i].ID == id {
			return &wf.Steps[i], true
		}
	}
	n.logger.Warn("edge targets unknown step", slog.String("target_step_id", id))
	return nil, false
}

// branchValue extracts the routing boolean from a step outcome. A
// conditionResult produced by an "if" action wins; otherwise the step's
// success flag routes.
func branchValue(outcome *schema.StepResult) bool {
	if outcome == nil {
		return false
	}
	if b, ok := conditionResultOf(outcome.Result); ok {
		return b
	}
	for i := len(outcome.ActionResults) - 1; i >= 0; i-- {
		if b, ok := conditionResultOf(outcome.ActionResults[i].Result); ok {
			return b
		}
	}
	return outcome.Success
}

func conditionResultOf(v any) (bool, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return false, false
	}
	b, ok := m["conditionResult"].(bool)
	return b, ok
}
