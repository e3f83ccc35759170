package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/schema"
)

// handleValidate runs the full validation pipeline on an inline document.
func (s *LoomServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := rawDocument(req)
	if errResult != nil {
		return errResult, nil
	}

	_, result := s.validator.ParseAndValidate(raw)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   issueStrings(result.Errors),
		"warnings": issueStrings(result.Warnings),
	})
}

// handleSimulate executes a document (inline or stored) with stubbed effects
// and returns the full run result including the step trace.
func (s *LoomServer) handleSimulate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	result, err := s.simRunner.Run(ctx, doc, inputOverride(req))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("simulation rejected: %v", err)), nil
	}
	return marshalResult(result)
}

// handleRun executes a stored workflow against the live backend.
func (s *LoomServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("live execution backend is not configured"), nil
	}

	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	rec, getErr := s.store.GetWorkflow(ctx, workflowID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", getErr)), nil
	}

	result, runErr := s.runner.Run(ctx, &rec.Document, inputOverride(req))
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run rejected: %v", runErr)), nil
	}
	return marshalResult(result)
}

// handleGetRun fetches a persisted run by id.
func (s *LoomServer) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, getErr := s.store.GetRun(ctx, runID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", getErr)), nil
	}
	return marshalResult(run)
}

// handleQuery lists workflows, runs, or exports.
func (s *LoomServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "workflows":
		workflows, listErr := s.store.ListWorkflows(ctx, store.WorkflowFilter{
			Limit: intFilter(filter, "limit", 100),
		})
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("workflow query failed: %v", listErr)), nil
		}
		return marshalResult(workflows)

	case "runs":
		runs, listErr := s.store.ListRuns(ctx, store.RunFilter{
			WorkflowID: stringFilter(filter, "workflow_id"),
			Status:     stringFilter(filter, "status"),
			Limit:      intFilter(filter, "limit", 50),
		})
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run query failed: %v", listErr)), nil
		}
		return marshalResult(runs)

	case "exports":
		id := stringFilter(filter, "export_id")
		if id == "" {
			return mcp.NewToolResultError("filter.export_id is required for the exports resource"), nil
		}
		exp, getErr := s.store.GetExport(ctx, id)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("export lookup failed: %v", getErr)), nil
		}
		return marshalResult(exp)

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource %q", resource)), nil
	}
}

// --- Helpers ---

// resolveDocument returns the workflow document from either the inline
// "document" argument or a stored "workflow_id". Inline takes precedence.
func (s *LoomServer) resolveDocument(ctx context.Context, req mcp.CallToolRequest) (*schema.WorkflowDocument, *mcp.CallToolResult) {
	if doc := mcp.ParseStringMap(req, "document", nil); doc != nil {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err))
		}
		parsed, result := s.validator.ParseAndValidate(raw)
		if parsed == nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("document is invalid: %v", result.ToError()))
		}
		return parsed, nil
	}

	workflowID := req.GetString("workflow_id", "")
	if workflowID == "" {
		return nil, mcp.NewToolResultError("either document or workflow_id is required")
	}

	rec, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", err))
	}
	return &rec.Document, nil
}

func rawDocument(req mcp.CallToolRequest) ([]byte, *mcp.CallToolResult) {
	doc := mcp.ParseStringMap(req, "document", nil)
	if doc == nil {
		return nil, mcp.NewToolResultError("document is required")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err))
	}
	return raw, nil
}

func inputOverride(req mcp.CallToolRequest) any {
	if in := mcp.ParseStringMap(req, "input", nil); in != nil {
		return in
	}
	return nil
}

func stringFilter(filter map[string]any, key string) string {
	if v, ok := filter[key].(string); ok {
		return v
	}
	return ""
}

func intFilter(filter map[string]any, key string, def int) int {
	if v, ok := filter[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

func issueStrings(issues []schema.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.String())
	}
	return out
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
