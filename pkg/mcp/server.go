// Package mcp exposes the workflow engine as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/validation"
)

// LoomServerDeps holds the dependencies for creating a LoomServer.
type LoomServerDeps struct {
	Store     store.Store
	Validator *validation.DocumentValidator
	SimRunner *engine.Runner
	Runner    *engine.Runner // nil when no live backend is configured
	Logger    *slog.Logger
}

// LoomServer wraps an MCP server with loom-specific tool handlers.
type LoomServer struct {
	store     store.Store
	validator *validation.DocumentValidator
	simRunner *engine.Runner
	runner    *engine.Runner
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewLoomServer creates a new LoomServer with all 5 tools registered.
func NewLoomServer(deps LoomServerDeps) *LoomServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &LoomServer{
		store:     deps.Store,
		validator: deps.Validator,
		simRunner: deps.SimRunner,
		runner:    deps.Runner,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"loom",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Loom is a workflow execution engine for node-graph documents. Use loom.validate to check a document, loom.simulate to execute it with deterministic stubbed effects, loom.run to execute a stored workflow against the live backend, loom.get_run to fetch a persisted run trace, and loom.query to list workflows/runs/exports."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *LoomServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *LoomServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *LoomServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: simulateTool(), Handler: s.handleSimulate},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: getRunTool(), Handler: s.handleGetRun},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func validateTool() mcp.Tool {
	return mcp.NewTool("loom.validate",
		mcp.WithDescription("Validate a workflow document (structural, semantic, and graph checks)"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Full workflow document to validate")),
	)
}

func simulateTool() mcp.Tool {
	return mcp.NewTool("loom.simulate",
		mcp.WithDescription("Execute a workflow with deterministic stubbed effects; nothing is persisted"),
		mcp.WithObject("document", mcp.Description("Workflow document to execute (either this or workflow_id)")),
		mcp.WithString("workflow_id", mcp.Description("ID of a stored workflow to execute")),
		mcp.WithObject("input", mcp.Description("Input payload overriding the trigger's sample input")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("loom.run",
		mcp.WithDescription("Execute a stored workflow against the live backend and persist the run"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the stored workflow to execute")),
		mcp.WithObject("input", mcp.Description("Input payload overriding the trigger's sample input")),
	)
}

func getRunTool() mcp.Tool {
	return mcp.NewTool("loom.get_run",
		mcp.WithDescription("Fetch a persisted run with its full step trace"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to fetch")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("loom.query",
		mcp.WithDescription("Query stored workflows, runs, or exports"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "runs", "exports"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (workflow_id, status, limit, export_id)")),
	)
}
