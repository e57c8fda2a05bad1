package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationHandler_InjectsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithWorkflowID(context.Background(), "wf-1")
	ctx = WithStepID(ctx, "fetch")
	ctx = WithResourceKey(ctx, "acct-7")

	logger.InfoContext(ctx, "step started")

	out := buf.String()
	assert.Contains(t, out, "workflow_id=wf-1")
	assert.Contains(t, out, "step_id=fetch")
	assert.Contains(t, out, "resource=acct-7")
}

func TestCorrelationHandler_BareContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "no correlation")

	out := buf.String()
	assert.NotContains(t, out, "workflow_id")
	assert.NotContains(t, out, "step_id")
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, WorkflowID(ctx))
	assert.Empty(t, StepID(ctx))
	assert.Empty(t, ResourceKey(ctx))

	ctx = WithWorkflowID(ctx, "wf-2")
	assert.Equal(t, "wf-2", WorkflowID(ctx))
}

func TestSlogSink_LevelMapping(t *testing.T) {
	var buf bytes.Buffer
	sink := SlogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink(LevelError, "boom")
	sink(LevelWarning, "careful")
	sink(LevelSuccess, "done")
	sink(LevelInfo, "working")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "success=true")
	require.Contains(t, out, "msg=working")
}

func TestTee(t *testing.T) {
	var got []string
	record := func(tag string) Sink {
		return func(level Level, msg string) {
			got = append(got, tag+":"+msg)
		}
	}

	tee := Tee(record("a"), nil, record("b"))
	tee(LevelInfo, "hello")

	assert.Equal(t, []string{"a:hello", "b:hello"}, got)
}
