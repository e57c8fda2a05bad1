package engine

import "github.com/lberrio/flowpilot/pkg/schema"

// ValidRunTransitions defines the per-run lifecycle state machine.
// INTERRUPTED is reachable only from RUNNING; COMPLETED and FAILED are
// mutually exclusive terminals determined by the finalization predicate.
var ValidRunTransitions = map[schema.RunState][]schema.RunState{
	schema.RunStateInitial:       {schema.RunStateResourceCheck},
	schema.RunStateResourceCheck: {schema.RunStateRunning, schema.RunStateFailed},
	schema.RunStateRunning:       {schema.RunStateCompleted, schema.RunStateFailed, schema.RunStateInterrupted},
}

// ValidRunTransition reports whether from -> to is an allowed transition.
func ValidRunTransition(from, to schema.RunState) bool {
	for _, allowed := range ValidRunTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
