package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/validation"
	"github.com/loomworks/loom/pkg/schema"
)

func newSimRunner(t *testing.T) *Runner {
	t.Helper()
	validator, err := validation.NewDocumentValidator()
	require.NoError(t, err)
	return NewRunner(validator, NewSimEffects(), nil, nil)
}

func newLiveRunner(t *testing.T, completer Completer, sink Sink, runs RunRecorder) *Runner {
	t.Helper()
	validator, err := validation.NewDocumentValidator()
	require.NoError(t, err)
	return NewRunner(validator, NewLiveEffects(completer, sink), runs, nil)
}

// --- Fakes ---

type fakeCompleter struct {
	text    string
	object  map[string]any
	textErr error
	objErr  error
}

func (f *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	return f.text, f.textErr
}

func (f *fakeCompleter) CompleteJSON(context.Context, string, string) (map[string]any, error) {
	return f.object, f.objErr
}

type fakeSink struct {
	records []*store.SavedRecord
	exports []*store.Export
}

func (f *fakeSink) InsertRecord(_ context.Context, rec *store.SavedRecord) (string, error) {
	f.records = append(f.records, rec)
	return rec.ID, nil
}

func (f *fakeSink) CreateExport(_ context.Context, exp *store.Export) (string, error) {
	f.exports = append(f.exports, exp)
	return exp.ID, nil
}

type fakeRecorder struct {
	runs []*store.Run
}

func (f *fakeRecorder) CreateRun(_ context.Context, run *store.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

// --- Fixtures ---

// linearDoc: trigger -> summarize -> classify -> export.
func linearDoc() *schema.WorkflowDocument {
	return &schema.WorkflowDocument{
		SchemaVersion: schema.SchemaVersion,
		Workflow: schema.Workflow{
			ID:          "wf_linear",
			Name:        "linear",
			EntryNodeID: "n_trigger",
			Nodes: []schema.Node{
				{
					ID:      "n_trigger",
					Type:    schema.NodeTriggerManual,
					Outputs: []schema.Port{{ID: "out"}},
					Config: map[string]any{
						"sample_input": map[string]any{"text": "an urgent invoice arrived"},
					},
				},
				{
					ID:      "n_sum",
					Type:    schema.NodeAISummarize,
					Inputs:  []schema.Port{{ID: "in"}},
					Outputs: []schema.Port{{ID: "out"}},
				},
				{
					ID:      "n_cls",
					Type:    schema.NodeAIClassify,
					Inputs:  []schema.Port{{ID: "in"}},
					Outputs: []schema.Port{{ID: "out"}},
					Config: map[string]any{
						"labels": []any{"urgent", "normal"},
					},
				},
				{
					ID:     "n_exp",
					Type:   schema.NodeOutputExport,
					Inputs: []schema.Port{{ID: "in"}},
					Config: map[string]any{"input_path": "$", "format": "json"},
				},
			},
			Edges: []schema.Edge{
				{ID: "e1", Source: schema.Endpoint{NodeID: "n_trigger", PortID: "out"}, Target: schema.Endpoint{NodeID: "n_sum", PortID: "in"}},
				{ID: "e2", Source: schema.Endpoint{NodeID: "n_sum", PortID: "out"}, Target: schema.Endpoint{NodeID: "n_cls", PortID: "in"}},
				{ID: "e3", Source: schema.Endpoint{NodeID: "n_cls", PortID: "out"}, Target: schema.Endpoint{NodeID: "n_exp", PortID: "in"}},
			},
		},
	}
}

// branchDoc: trigger -> condition -> (high: summarize | low: delay).
func branchDoc() *schema.WorkflowDocument {
	return &schema.WorkflowDocument{
		SchemaVersion: schema.SchemaVersion,
		Workflow: schema.Workflow{
			ID:          "wf_branch",
			Name:        "branch",
			EntryNodeID: "n_trigger",
			Nodes: []schema.Node{
				{
					ID:      "n_trigger",
					Type:    schema.NodeTriggerManual,
					Outputs: []schema.Port{{ID: "out"}},
					Config: map[string]any{
						"sample_input": map[string]any{"score": 0.9},
					},
				},
				{
					ID:     "n_cond",
					Type:   schema.NodeLogicCondition,
					Inputs: []schema.Port{{ID: "in"}},
					Outputs: []schema.Port{
						{ID: "high"},
						{ID: "low"},
					},
					Config: map[string]any{
						"expression":     "$.input.score > 0.5",
						"default_output": "low",
					},
				},
				{
					ID:      "n_high",
					Type:    schema.NodeAISummarize,
					Inputs:  []schema.Port{{ID: "in"}},
					Outputs: []schema.Port{{ID: "out"}},
				},
				{
					ID:     "n_low",
					Type:   schema.NodeLogicDelay,
					Inputs: []schema.Port{{ID: "in"}},
					Config: map[string]any{"seconds": 30.0},
				},
			},
			Edges: []schema.Edge{
				{ID: "e1", Source: schema.Endpoint{NodeID: "n_trigger", PortID: "out"}, Target: schema.Endpoint{NodeID: "n_cond", PortID: "in"}},
				{ID: "e2", Source: schema.Endpoint{NodeID: "n_cond", PortID: "high"}, Target: schema.Endpoint{NodeID: "n_high", PortID: "in"}},
				{ID: "e3", Source: schema.Endpoint{NodeID: "n_cond", PortID: "low"}, Target: schema.Endpoint{NodeID: "n_low", PortID: "in"}},
			},
		},
	}
}

func stepNodeIDs(result *RunResult) []string {
	ids := make([]string, len(result.Steps))
	for i, s := range result.Steps {
		ids[i] = s.NodeID
	}
	return ids
}

// --- Simulated execution ---

func TestRun_SimulatedLinearWorkflow(t *testing.T) {
	r := newSimRunner(t)

	result, err := r.Run(context.Background(), linearDoc(), nil)
	require.NoError(t, err)

	assert.Equal(t, RunSuccess, result.Status)
	assert.Equal(t, ModeSimulated, result.Mode)
	assert.Equal(t, []string{"n_trigger", "n_sum", "n_cls", "n_exp"}, stepNodeIDs(result))

	// Context seeded from the trigger sample, enriched by each node.
	assert.Contains(t, result.Context["summary"], "Summary: ")
	assert.Equal(t, "urgent", result.Context["label"])
	assert.Equal(t, 0.92, result.Context["confidence"])

	exportRes, ok := result.Context["export_result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json", exportRes["format"])
}

func TestRun_ExportUnknownFormatCoercesToJSON(t *testing.T) {
	r := newSimRunner(t)

	doc := linearDoc()
	doc.Workflow.Nodes[3].Config = map[string]any{"input_path": "$.input", "format": "xml"}

	result, err := r.Run(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, result.Status)

	exportRes, ok := result.Context["export_result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json", exportRes["format"])
	assert.Equal(t, "{\n  \"text\": \"an urgent invoice arrived\"\n}", exportRes["content"])
}

func TestRun_SimulatedIsDeterministic(t *testing.T) {
	r := newSimRunner(t)

	a, err := r.Run(context.Background(), linearDoc(), nil)
	require.NoError(t, err)
	b, err := r.Run(context.Background(), linearDoc(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Context, b.Context)
}

func TestRun_InputOverridesTriggerSample(t *testing.T) {
	r := newSimRunner(t)

	result, err := r.Run(context.Background(), linearDoc(), map[string]any{"text": "normal day"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"text": "normal day"}, result.Steps[0].Input["input"])
	assert.Equal(t, "normal", result.Context["label"])
}

func TestRun_StepSnapshotsAreImmutable(t *testing.T) {
	r := newSimRunner(t)

	result, err := r.Run(context.Background(), linearDoc(), nil)
	require.NoError(t, err)

	// The trigger step's snapshot must not contain keys later nodes added.
	first := result.Steps[0]
	assert.NotContains(t, first.Output, "summary")
	assert.Contains(t, result.Steps[1].Output, "summary")
}

// --- Branch selection ---

func TestRun_ConditionTakesNonDefaultBranch(t *testing.T) {
	r := newSimRunner(t)

	result, err := r.Run(context.Background(), branchDoc(), map[string]any{"score": 0.9})
	require.NoError(t, err)

	assert.Equal(t, RunSuccess, result.Status)
	assert.Equal(t, []string{"n_trigger", "n_cond", "n_high"}, stepNodeIDs(result))
	assert.Equal(t, "high", result.Steps[1].SelectedOutputPort)
	assert.Equal(t, []string{"n_high"}, result.Steps[1].NextNodeIDs)
}

func TestRun_ConditionTakesDefaultBranch(t *testing.T) {
	r := newSimRunner(t)

	result, err := r.Run(context.Background(), branchDoc(), map[string]any{"score": 0.1})
	require.NoError(t, err)

	assert.Equal(t, []string{"n_trigger", "n_cond", "n_low"}, stepNodeIDs(result))
	assert.Equal(t, "low", result.Steps[1].SelectedOutputPort)
	assert.Equal(t, 30.0, result.Context["delay_applied"])
}

func TestRun_MalformedExpressionRoutesToDefault(t *testing.T) {
	r := newSimRunner(t)
	doc := branchDoc()
	doc.Workflow.Nodes[1].Config["expression"] = "completely broken"

	result, err := r.Run(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Equal(t, "low", result.Steps[1].SelectedOutputPort)
}

// --- Validation gate ---

func TestRun_InvalidDocumentRejected(t *testing.T) {
	r := newSimRunner(t)
	doc := linearDoc()
	doc.Workflow.EntryNodeID = "ghost"

	result, err := r.Run(context.Background(), doc, nil)
	assert.Error(t, err)
	assert.Nil(t, result)
}

// --- Simulated outputs ---

func TestRun_SimulatedDBSaveDoesNotPersist(t *testing.T) {
	r := newSimRunner(t)
	doc := linearDoc()
	doc.Workflow.Nodes[3] = schema.Node{
		ID:     "n_exp",
		Type:   schema.NodeOutputDBSave,
		Inputs: []schema.Port{{ID: "in"}},
		Config: map[string]any{
			"table":   "records",
			"mapping": map[string]any{"text": "$.summary"},
		},
	}

	result, err := r.Run(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, result.Status)

	saveRes, ok := result.Context["db_save_result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, saveRes["would_save"])
	assert.Equal(t, "records", saveRes["table"])
}

// --- Live execution ---

func TestRun_LiveUnsupportedTableFailsRun(t *testing.T) {
	sink := &fakeSink{}
	recorder := &fakeRecorder{}
	r := newLiveRunner(t, &fakeCompleter{text: "ok"}, sink, recorder)

	doc := linearDoc()
	doc.Workflow.Nodes[3] = schema.Node{
		ID:     "n_exp",
		Type:   schema.NodeOutputDBSave,
		Inputs: []schema.Port{{ID: "in"}},
		Config: map[string]any{
			"table":   "definitely_missing_table",
			"mapping": map[string]any{"text": "$.summary"},
		},
	}

	result, err := r.Run(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Equal(t, RunFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, schema.ErrCodeUnsupportedTable, result.Error.Code)
	assert.Equal(t, "n_exp", result.Error.NodeID)
	assert.Empty(t, sink.records)

	// The failing step is the last one recorded.
	last := result.Steps[len(result.Steps)-1]
	assert.Equal(t, StepFailed, last.Status)
	assert.Equal(t, "n_exp", last.NodeID)

	// Failed runs are persisted too.
	require.Len(t, recorder.runs, 1)
	assert.Equal(t, "failed", recorder.runs[0].Status)
}

func TestRun_LiveDBSavePersistsRecord(t *testing.T) {
	sink := &fakeSink{}
	recorder := &fakeRecorder{}
	r := newLiveRunner(t, &fakeCompleter{
		text:   "a summary",
		object: map[string]any{"label": "urgent", "confidence": 0.8},
	}, sink, recorder)

	doc := linearDoc()
	doc.Workflow.Nodes[3] = schema.Node{
		ID:     "n_exp",
		Type:   schema.NodeOutputDBSave,
		Inputs: []schema.Port{{ID: "in"}},
		Config: map[string]any{
			"table":   "records",
			"mapping": map[string]any{"text": "$.summary"},
		},
	}

	result, err := r.Run(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Equal(t, RunSuccess, result.Status, "error: %v", result.Error)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, "records", rec.Table)
	assert.Equal(t, "n_exp", rec.NodeID)
	assert.Equal(t, result.RunID, rec.RunID)

	require.Len(t, recorder.runs, 1)
	assert.Equal(t, result.RunID, recorder.runs[0].ID)
	assert.Equal(t, "success", recorder.runs[0].Status)
}

func TestRun_ClassifyFallsBackOnMalformedResponse(t *testing.T) {
	completer := &fakeCompleter{
		text:   "a summary",
		objErr: schema.NewError(schema.ErrCodeBadResponse, "no JSON object found"),
	}
	r := newLiveRunner(t, completer, &fakeSink{}, nil)

	doc := linearDoc()
	doc.Workflow.Nodes[3] = schema.Node{
		ID:     "n_exp",
		Type:   schema.NodeLogicDelay,
		Inputs: []schema.Port{{ID: "in"}},
	}

	result, err := r.Run(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Equal(t, RunSuccess, result.Status)
	assert.Equal(t, "urgent", result.Context["label"])
	assert.Equal(t, 0.92, result.Context["confidence"])
}

func TestRun_ClassifyNonMemberLabelFallsBack(t *testing.T) {
	completer := &fakeCompleter{
		text:   "a summary",
		object: map[string]any{"label": "invented", "confidence": 0.99},
	}
	r := newLiveRunner(t, completer, &fakeSink{}, nil)

	doc := linearDoc()
	doc.Workflow.Nodes[3] = schema.Node{
		ID:     "n_exp",
		Type:   schema.NodeLogicDelay,
		Inputs: []schema.Port{{ID: "in"}},
	}

	result, err := r.Run(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Equal(t, RunSuccess, result.Status)
	assert.Equal(t, "urgent", result.Context["label"])
}

func TestRun_ClassifyNonFiniteConfidenceFallsBack(t *testing.T) {
	completer := &fakeCompleter{
		text:   "a summary",
		object: map[string]any{"label": "normal", "confidence": math.NaN()},
	}
	r := newLiveRunner(t, completer, &fakeSink{}, nil)

	doc := linearDoc()
	doc.Workflow.Nodes[3] = schema.Node{
		ID:     "n_exp",
		Type:   schema.NodeLogicDelay,
		Inputs: []schema.Port{{ID: "in"}},
	}

	result, err := r.Run(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Equal(t, RunSuccess, result.Status)
	assert.Equal(t, "urgent", result.Context["label"])
	assert.Equal(t, 0.92, result.Context["confidence"])
}

func TestRun_SimulatedModeNeverPersists(t *testing.T) {
	validator, err := validation.NewDocumentValidator()
	require.NoError(t, err)
	recorder := &fakeRecorder{}
	r := NewRunner(validator, NewSimEffects(), recorder, nil)

	_, err = r.Run(context.Background(), linearDoc(), nil)
	require.NoError(t, err)
	assert.Empty(t, recorder.runs)
}

// --- Graph scheduling ---

func TestBuildGraph_DeclarationOrderTopology(t *testing.T) {
	doc := linearDoc()

	g, err := BuildGraph(&doc.Workflow)
	require.NoError(t, err)
	assert.Equal(t, []string{"n_trigger", "n_sum", "n_cls", "n_exp"}, g.Order)
}

func TestBuildGraph_CycleRejected(t *testing.T) {
	doc := linearDoc()
	doc.Workflow.Edges = append(doc.Workflow.Edges, schema.Edge{
		ID:     "e_back",
		Source: schema.Endpoint{NodeID: "n_cls", PortID: "out"},
		Target: schema.Endpoint{NodeID: "n_sum", PortID: "in"},
	})

	_, err := BuildGraph(&doc.Workflow)
	require.Error(t, err)

	var loomErr *schema.LoomError
	require.ErrorAs(t, err, &loomErr)
	assert.Equal(t, schema.ErrCodeCycleDetected, loomErr.Code)
}
