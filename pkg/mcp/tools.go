package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lberrio/flowpilot/pkg/schema"
)

// handleStart submits a workflow document to the runtime. Only validation
// and duplicate-run errors surface here; the run itself is asynchronous.
func (s *FlowServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := mcp.ParseStringMap(req, "workflow", nil)
	if doc == nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}
	resourceKey := req.GetString("resource_key", "")

	raw, err := json.Marshal(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow document: %v", err)), nil
	}
	var wf schema.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow document: %v", err)), nil
	}

	runID, err := s.runtime.Start(ctx, &wf, resourceKey)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
	}

	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"run_id":      runID,
		"started":     true,
	})
}

func (s *FlowServer) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	result, statusErr := s.runtime.Status(workflowID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}
	return marshalResult(result)
}

func (s *FlowServer) handleStop(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	if stopErr := s.runtime.Stop(workflowID); stopErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stop failed: %v", stopErr)), nil
	}
	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"stopping":    true,
	})
}

func (s *FlowServer) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"results": s.runtime.List(),
	})
}

func (s *FlowServer) handleClear(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	removed := s.runtime.Clear()
	return marshalResult(map[string]any{
		"removed": removed,
	})
}

// handleHistory reads finalized results from the archive. Unlike flow.list
// this survives restarts and engine clears, but only sees mirrored runs.
func (s *FlowServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID := req.GetString("workflow_id", "")
	limit := req.GetInt("limit", 20)

	results, err := s.archive.ListResults(ctx, workflowID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"results": results,
	})
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
