package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lberrio/flowpilot/pkg/schema"
)

func resultAt(runID, workflowID string, start time.Time) *schema.WorkflowResult {
	return &schema.WorkflowResult{
		RunID:      runID,
		WorkflowID: workflowID,
		State:      schema.RunStateCompleted,
		Success:    true,
		StartTime:  start,
	}
}

func TestMemoryArchive_Results(t *testing.T) {
	m := NewMemoryArchive()
	ctx := context.Background()

	require.NoError(t, m.SaveResult(ctx, resultAt("r1", "wf-a", time.Now())))

	got, err := m.GetResult(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "wf-a", got.WorkflowID)

	_, err = m.GetResult(ctx, "missing")
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeNotFound, fe.Code)

	err = m.SaveResult(ctx, &schema.WorkflowResult{})
	require.Error(t, err)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeStore, fe.Code)
}

func TestMemoryArchive_ListResultsOrderAndLimit(t *testing.T) {
	m := NewMemoryArchive()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveResult(ctx, resultAt("r1", "wf-a", base)))
	require.NoError(t, m.SaveResult(ctx, resultAt("r2", "wf-a", base.Add(time.Hour))))
	require.NoError(t, m.SaveResult(ctx, resultAt("r3", "wf-b", base.Add(2*time.Hour))))

	all, err := m.ListResults(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].RunID, "newest first")
	assert.Equal(t, "r1", all[2].RunID)

	onlyA, err := m.ListResults(ctx, "wf-a", 0)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, "r2", onlyA[0].RunID)

	limited, err := m.ListResults(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryArchive_Schedules(t *testing.T) {
	m := NewMemoryArchive()
	ctx := context.Background()

	sched := &Schedule{
		ID:       "nightly",
		CronExpr: "0 2 * * *",
		Workflow: &schema.Workflow{ID: "wf-a"},
		Enabled:  true,
	}
	require.NoError(t, m.SaveSchedule(ctx, sched))
	assert.False(t, sched.CreatedAt.IsZero(), "CreatedAt is stamped on first save")

	require.NoError(t, m.SaveSchedule(ctx, &Schedule{ID: "hourly", CronExpr: "0 * * * *"}))

	got, err := m.GetSchedule(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, "wf-a", got.Workflow.ID)

	list, err := m.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "hourly", list[0].ID, "sorted by id")

	require.NoError(t, m.DeleteSchedule(ctx, "hourly"))
	_, err = m.GetSchedule(ctx, "hourly")
	assert.Error(t, err)

	err = m.DeleteSchedule(ctx, "hourly")
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeNotFound, fe.Code)

	assert.Error(t, m.SaveSchedule(ctx, &Schedule{}), "schedule needs an id")
}
