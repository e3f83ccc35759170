package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDocument(id string) schema.WorkflowDocument {
	return schema.WorkflowDocument{
		SchemaVersion: schema.SchemaVersion,
		Workflow: schema.Workflow{
			ID:          id,
			Name:        "stored workflow",
			EntryNodeID: "t1",
			Nodes: []schema.Node{
				{ID: "t1", Type: schema.NodeTriggerManual, Outputs: []schema.Port{{ID: "out"}}},
			},
		},
	}
}

func seedWorkflow(t *testing.T, s *LibSQLStore, id string) *WorkflowRecord {
	t.Helper()
	rec := &WorkflowRecord{
		ID:       id,
		Name:     "stored workflow",
		Document: testDocument(id),
	}
	require.NoError(t, s.CreateWorkflow(context.Background(), rec))
	return rec
}

// --- Workflow CRUD ---

func TestCreateAndGetWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedWorkflow(t, s, "wf_crud")

	got, err := s.GetWorkflow(ctx, "wf_crud")
	require.NoError(t, err)
	assert.Equal(t, "wf_crud", got.ID)
	assert.Equal(t, "stored workflow", got.Name)
	assert.Equal(t, "t1", got.Document.Workflow.EntryNodeID)
	assert.Len(t, got.Document.Workflow.Nodes, 1)
}

func TestCreateWorkflow_DuplicateIDConflicts(t *testing.T) {
	s := newTestStore(t)

	seedWorkflow(t, s, "wf_dup")

	err := s.CreateWorkflow(context.Background(), &WorkflowRecord{
		ID:       "wf_dup",
		Name:     "another workflow",
		Document: testDocument("wf_dup"),
	})
	require.Error(t, err)

	var loomErr *schema.LoomError
	require.ErrorAs(t, err, &loomErr)
	assert.Equal(t, schema.ErrCodeConflict, loomErr.Code)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetWorkflow(context.Background(), "wf_ghost")
	require.Error(t, err)

	var loomErr *schema.LoomError
	require.ErrorAs(t, err, &loomErr)
	assert.Equal(t, schema.ErrCodeNotFound, loomErr.Code)
}

func TestUpdateWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := seedWorkflow(t, s, "wf_upd")
	rec.Name = "renamed"
	rec.Document.Workflow.Name = "renamed"
	require.NoError(t, s.UpdateWorkflow(ctx, rec))

	got, err := s.GetWorkflow(ctx, "wf_upd")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "renamed", got.Document.Workflow.Name)
}

func TestUpdateWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateWorkflow(context.Background(), &WorkflowRecord{
		ID:       "wf_ghost",
		Document: testDocument("wf_ghost"),
	})
	var loomErr *schema.LoomError
	require.ErrorAs(t, err, &loomErr)
	assert.Equal(t, schema.ErrCodeNotFound, loomErr.Code)
}

func TestListWorkflows(t *testing.T) {
	s := newTestStore(t)

	seedWorkflow(t, s, "wf_a")
	seedWorkflow(t, s, "wf_b")

	out, err := s.ListWorkflows(context.Background(), WorkflowFilter{})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDeleteWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedWorkflow(t, s, "wf_del")
	require.NoError(t, s.DeleteWorkflow(ctx, "wf_del"))

	_, err := s.GetWorkflow(ctx, "wf_del")
	assert.Error(t, err)
}

func TestDeleteWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.DeleteWorkflow(context.Background(), "wf_ghost")
	var loomErr *schema.LoomError
	require.ErrorAs(t, err, &loomErr)
	assert.Equal(t, schema.ErrCodeNotFound, loomErr.Code)
}

// --- Runs ---

func seedRun(t *testing.T, s *LibSQLStore, workflowID, status string) *Run {
	t.Helper()
	run := &Run{
		ID:          "run_" + uuid.NewString(),
		WorkflowID:  workflowID,
		Mode:        "live",
		Status:      status,
		Steps:       json.RawMessage(`[{"node_id":"t1","status":"success"}]`),
		Output:      json.RawMessage(`{"input":{}}`),
		StartedAt:   time.Now().UTC().Add(-time.Second),
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateRun(context.Background(), run))
	return run
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedWorkflow(t, s, "wf_runs")
	run := seedRun(t, s, "wf_runs", "success")

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "wf_runs", got.WorkflowID)
	assert.Equal(t, "live", got.Mode)
	assert.JSONEq(t, string(run.Steps), string(got.Steps))
	assert.Nil(t, got.Error)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "run_ghost")
	var loomErr *schema.LoomError
	require.ErrorAs(t, err, &loomErr)
	assert.Equal(t, schema.ErrCodeNotFound, loomErr.Code)
}

func TestListRuns_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedWorkflow(t, s, "wf_x")
	seedWorkflow(t, s, "wf_y")
	seedRun(t, s, "wf_x", "success")
	seedRun(t, s, "wf_x", "failed")
	seedRun(t, s, "wf_y", "success")

	byWorkflow, err := s.ListRuns(ctx, RunFilter{WorkflowID: "wf_x"})
	require.NoError(t, err)
	assert.Len(t, byWorkflow, 2)

	byStatus, err := s.ListRuns(ctx, RunFilter{WorkflowID: "wf_x", Status: "failed"})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "failed", byStatus[0].Status)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// --- Records ---

func TestInsertRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedWorkflow(t, s, "wf_rec")
	run := seedRun(t, s, "wf_rec", "success")

	id, err := s.InsertRecord(ctx, &SavedRecord{
		ID:      uuid.NewString(),
		RunID:   run.ID,
		NodeID:  "n_save",
		Table:   RecordsTable,
		Mode:    "insert",
		Payload: json.RawMessage(`{"text":"hello"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestInsertRecord_EmptyID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.InsertRecord(context.Background(), &SavedRecord{Table: RecordsTable})
	assert.Error(t, err)
}

// --- Exports ---

func TestCreateAndGetExport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedWorkflow(t, s, "wf_exp")
	run := seedRun(t, s, "wf_exp", "success")

	exp := &Export{
		ID:       uuid.NewString(),
		RunID:    run.ID,
		NodeID:   "n_export",
		Filename: "report.csv",
		Format:   "csv",
		Content:  "a,b\n\"1\",\"2\"\n",
	}
	id, err := s.CreateExport(ctx, exp)
	require.NoError(t, err)

	got, err := s.GetExport(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "csv", got.Format)
	assert.Equal(t, "report.csv", got.Filename)
	assert.Equal(t, exp.Content, got.Content)
}

func TestGetExport_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExport(context.Background(), "exp_ghost")
	var loomErr *schema.LoomError
	require.ErrorAs(t, err, &loomErr)
	assert.Equal(t, schema.ErrCodeNotFound, loomErr.Code)
}
