package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepResult_SkippedWireShape(t *testing.T) {
	sr := &StepResult{
		StepID:     "notify",
		Success:    true,
		Skipped:    true,
		SkipReason: "condition_not_met",
	}

	raw, err := json.Marshal(sr)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, true, doc["skipped"])
	assert.Equal(t, "condition_not_met", doc["reason"])
	assert.NotContains(t, doc, "skipReason")
}

func TestStepResult_ScopeValue(t *testing.T) {
	sr := &StepResult{
		StepID:   "fetch",
		StepName: "Fetch posts",
		Success:  true,
		Attempts: 2,
		Result:   map[string]any{"count": float64(3)},
	}

	v := sr.ScopeValue()
	assert.Equal(t, "fetch", v["stepId"])
	assert.Equal(t, true, v["success"])
	assert.Equal(t, 2, v["attempts"])
	assert.Equal(t, map[string]any{"count": float64(3)}, v["result"])
	assert.NotContains(t, v, "skipped")

	skipped := &StepResult{StepID: "notify", Success: true, Skipped: true, SkipReason: "condition_not_met"}
	sv := skipped.ScopeValue()
	assert.Equal(t, true, sv["skipped"])
	assert.Equal(t, "condition_not_met", sv["reason"])
}
