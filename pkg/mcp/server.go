package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lberrio/flowpilot/internal/engine"
	"github.com/lberrio/flowpilot/internal/store"
)

// FlowServerDeps holds the dependencies for creating a FlowServer.
type FlowServerDeps struct {
	Runtime *engine.Runtime
	Archive store.Archive
	Logger  *slog.Logger
}

// FlowServer wraps an MCP server with flowpilot-specific tool handlers.
type FlowServer struct {
	runtime   *engine.Runtime
	archive   store.Archive
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowServer creates a FlowServer with all tools registered.
func NewFlowServer(deps FlowServerDeps) *FlowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowServer{
		runtime: deps.Runtime,
		archive: deps.Archive,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowpilot",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowpilot executes declarative step/edge workflows against bound sessions. Use flow.start to run a workflow document, flow.status to inspect a run, flow.stop to interrupt one, flow.list to see every stored run, flow.clear to drop finished results, and flow.history to read archived runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: stopTool(), Handler: s.handleStop},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: clearTool(), Handler: s.handleClear},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func startTool() mcp.Tool {
	return mcp.NewTool("flow.start",
		mcp.WithDescription("Start a workflow run from a workflow document"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow document: id, steps, edges, config")),
		mcp.WithString("resource_key", mcp.Description("Key of the bound session the run operates against")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("flow.status",
		mcp.WithDescription("Get the stored result of a workflow run"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to query")),
	)
}

func stopTool() mcp.Tool {
	return mcp.NewTool("flow.stop",
		mcp.WithDescription("Request a cooperative stop of a running workflow; the run halts at its next step boundary"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to stop")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("flow.list",
		mcp.WithDescription("List every stored workflow result, running and finished"),
	)
}

func clearTool() mcp.Tool {
	return mcp.NewTool("flow.clear",
		mcp.WithDescription("Remove finished results from the store; in-flight runs are kept"),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("flow.history",
		mcp.WithDescription("List archived run results, newest first"),
		mcp.WithString("workflow_id", mcp.Description("Restrict to one workflow")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	)
}
