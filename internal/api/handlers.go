package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/schema"
)

// validateResponse is the body of POST /api/workflows/validate.
type validateResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// runResponse is the body of POST /api/workflows/:id/run.
type runResponse struct {
	OK         bool            `json:"ok"`
	RunID      string          `json:"run_id,omitempty"`
	OutputJSON json.RawMessage `json:"output_json,omitempty"`
	StepsCount int             `json:"steps_count,omitempty"`
	Error      string          `json:"error,omitempty"`
	Details    map[string]any  `json:"details,omitempty"`
}

// runRequest is the optional body of run/simulate invocations.
type runRequest struct {
	Input any `json:"input,omitempty"`
}

// CreateWorkflow stores a new workflow document after full validation.
// (POST /api/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	doc, result := s.parseDocument(c)
	if doc == nil {
		return c.JSON(http.StatusUnprocessableEntity, validationBody(result))
	}

	now := time.Now().UTC()
	rec := &store.WorkflowRecord{
		ID:        doc.Workflow.ID,
		Name:      doc.Workflow.Name,
		Document:  *doc,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateWorkflow(ctx, rec); err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// ListWorkflows returns stored workflows, newest first.
// (GET /api/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	filter := store.WorkflowFilter{Limit: intQuery(c, "limit", 100)}
	workflows, err := s.store.ListWorkflows(ctx, filter)
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow returns a single stored workflow.
// (GET /api/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	rec, err := s.store.GetWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// UpdateWorkflow replaces a stored workflow document after full validation.
// The document's workflow id must match the path id.
// (PUT /api/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	doc, result := s.parseDocument(c)
	if doc == nil {
		return c.JSON(http.StatusUnprocessableEntity, validationBody(result))
	}
	if doc.Workflow.ID != id {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow id in body does not match path")
	}

	rec := &store.WorkflowRecord{
		ID:        id,
		Name:      doc.Workflow.Name,
		Document:  *doc,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.UpdateWorkflow(ctx, rec); err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// DeleteWorkflow removes a stored workflow.
// (DELETE /api/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	if err := s.store.DeleteWorkflow(c.Request().Context(), c.Param("id")); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ValidateWorkflow runs the full validation pipeline on the request body
// without storing anything.
// (POST /api/workflows/validate)
func (s *Server) ValidateWorkflow(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read request body")
	}

	_, result := s.validator.ParseAndValidate(raw)
	return c.JSON(http.StatusOK, validationBody(result))
}

// RunWorkflow executes a stored workflow against the live backend.
// (POST /api/workflows/:id/run)
func (s *Server) RunWorkflow(c echo.Context) error {
	if s.runner == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "live execution backend is not configured")
	}
	return s.invoke(c, s.runner)
}

// SimulateWorkflow executes a stored workflow with deterministic stubbed
// effects. Nothing is persisted.
// (POST /api/workflows/:id/simulate)
func (s *Server) SimulateWorkflow(c echo.Context) error {
	return s.invoke(c, s.simRunner)
}

func (s *Server) invoke(c echo.Context, runner *engine.Runner) error {
	ctx := c.Request().Context()

	rec, err := s.store.GetWorkflow(ctx, c.Param("id"))
	if err != nil {
		return s.storeError(err)
	}

	var req runRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
		}
	}

	result, err := runner.Run(ctx, &rec.Document, req.Input)
	if err != nil {
		// Pre-execution failure: validation or scheduling. No run exists.
		return c.JSON(http.StatusUnprocessableEntity, runResponse{OK: false, Error: err.Error()})
	}

	if result.Status == engine.RunFailed {
		resp := runResponse{OK: false, RunID: result.RunID, Error: result.Error.Message}
		if result.Error.NodeID != "" {
			resp.Details = map[string]any{
				"node_id": result.Error.NodeID,
				"code":    result.Error.Code,
			}
		}
		return c.JSON(http.StatusOK, resp)
	}

	output, err := json.Marshal(result.Context)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runResponse{
		OK:         true,
		RunID:      result.RunID,
		OutputJSON: output,
		StepsCount: len(result.Steps),
	})
}

// GetRun returns one persisted run with its full step trace.
// (GET /api/runs/:id)
func (s *Server) GetRun(c echo.Context) error {
	run, err := s.store.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// ListWorkflowRuns returns the run history of one workflow, newest first.
// (GET /api/workflows/:id/runs)
func (s *Server) ListWorkflowRuns(c echo.Context) error {
	filter := store.RunFilter{
		WorkflowID: c.Param("id"),
		Status:     c.QueryParam("status"),
		Limit:      intQuery(c, "limit", 50),
	}
	runs, err := s.store.ListRuns(c.Request().Context(), filter)
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, runs)
}

// GetExport returns one persisted export artifact.
// (GET /api/exports/:id)
func (s *Server) GetExport(c echo.Context) error {
	exp, err := s.store.GetExport(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, exp)
}

func (s *Server) parseDocument(c echo.Context) (*schema.WorkflowDocument, *schema.ValidationResult) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		r := &schema.ValidationResult{}
		r.AddError("", schema.ErrCodeValidation, "cannot read request body")
		return nil, r
	}
	return s.validator.ParseAndValidate(raw)
}

func (s *Server) storeError(err error) error {
	var loomErr *schema.LoomError
	if errors.As(err, &loomErr) {
		switch loomErr.Code {
		case schema.ErrCodeNotFound:
			return echo.NewHTTPError(http.StatusNotFound, loomErr.Message)
		case schema.ErrCodeConflict:
			return echo.NewHTTPError(http.StatusConflict, loomErr.Message)
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func validationBody(result *schema.ValidationResult) validateResponse {
	return validateResponse{
		Valid:    result.Valid(),
		Errors:   issueMessages(result.Errors),
		Warnings: issueMessages(result.Warnings),
	}
}

func issueMessages(issues []schema.ValidationIssue) []string {
	if len(issues) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(issues))
	for _, i := range issues {
		msgs = append(msgs, i.String())
	}
	return msgs
}

func intQuery(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
