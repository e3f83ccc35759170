package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/expressions"
	"github.com/loomworks/loom/internal/logging"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/validation"
	"github.com/loomworks/loom/pkg/schema"
)

// RunRecorder is the slice of the persistence collaborator the orchestrator
// needs: one run-record insert at run completion. Satisfied by store.Store
// and test fakes. Nil disables run persistence (simulation).
type RunRecorder interface {
	CreateRun(ctx context.Context, run *store.Run) error
}

// Runner drives a validated document end-to-end: scheduling, node execution,
// step tracing, final status, and the persisted run record.
//
// Execution is strictly sequential: the context is a single value threaded
// through the whole run, so there is no parallel fan-out even for
// independent nodes. Each Runner is safe for concurrent Run calls: every
// run owns its context and step list.
type Runner struct {
	validator *validation.DocumentValidator
	effects   Effects
	runs      RunRecorder
	queries   *expressions.QueryEngine
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner creates a Runner. runs may be nil for simulation-only use.
func NewRunner(validator *validation.DocumentValidator, effects Effects, runs RunRecorder, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		validator: validator,
		effects:   effects,
		runs:      runs,
		queries:   expressions.NewQueryEngine(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the document. input overrides the trigger's sample payload
// when non-nil. Validation and scheduling failures return an error before
// any side effect and nothing is persisted; once the first node has
// executed, the outcome is a RunResult; failed runs are results too, and
// their record is persisted before Run returns.
//
// Failure is fail-fast and non-resumable: the first failing node terminates
// the run, and effects already committed by earlier nodes are not rolled
// back.
func (r *Runner) Run(ctx context.Context, doc *schema.WorkflowDocument, input any) (*RunResult, error) {
	if result := r.validator.Validate(doc); !result.Valid() {
		return nil, result.ToError()
	}

	wf := &doc.Workflow
	graph, err := BuildGraph(wf)
	if err != nil {
		return nil, err
	}

	runID := "run_" + uuid.NewString()
	ctx = logging.WithWorkflowID(ctx, wf.ID)
	ctx = logging.WithRunID(ctx, runID)

	result := &RunResult{
		RunID:      runID,
		WorkflowID: wf.ID,
		Mode:       r.effects.Mode(),
		Status:     RunSuccess,
		StartedAt:  r.now(),
	}

	ec := map[string]any{"input": r.seedInput(wf, input)}
	active := map[string]bool{wf.EntryNodeID: true}

	r.logger.InfoContext(ctx, "run started",
		"mode", string(result.Mode), "nodes", len(wf.Nodes))

	for _, nodeID := range graph.Order {
		if !active[nodeID] {
			// Not reachable from any taken branch: skipped nodes never
			// appear in the trace.
			continue
		}

		node := graph.Nodes[nodeID]
		nodeCtx := logging.WithNodeID(ctx, nodeID)

		step := StepRecord{
			NodeID:    node.ID,
			NodeName:  node.Name,
			NodeType:  node.Type,
			StartedAt: r.now(),
			Input:     deepCopy(ec),
		}

		updated, selectedPort, execErr := r.executeNode(nodeCtx, node, ec)

		step.FinishedAt = r.now()
		step.DurationMs = step.FinishedAt.Sub(step.StartedAt).Milliseconds()

		if execErr != nil {
			step.Status = StepFailed
			step.Error = execErr.Error()
			result.Steps = append(result.Steps, step)
			result.Status = RunFailed
			result.Error = asLoomError(execErr).WithNode(node.ID)
			r.logger.ErrorContext(nodeCtx, "node failed", "error", execErr)
			break
		}

		ec = updated
		next := graph.NextNodes(nodeID, selectedPort)
		for _, id := range next {
			active[id] = true
		}

		step.Status = StepSuccess
		step.SelectedOutputPort = selectedPort
		step.NextNodeIDs = next
		step.Output = deepCopy(ec)
		result.Steps = append(result.Steps, step)
	}

	result.Context = ec
	result.CompletedAt = r.now()

	r.persistRun(ctx, result)

	r.logger.InfoContext(ctx, "run finished",
		"status", string(result.Status), "steps", len(result.Steps))
	return result, nil
}

// seedInput applies the input precedence: explicit override, then the
// trigger's sample payload, then an empty object.
func (r *Runner) seedInput(wf *schema.Workflow, input any) any {
	if input != nil {
		return input
	}
	if trigger := wf.TriggerNode(); trigger != nil {
		if cfg := schema.DecodeTriggerConfig(trigger.Config); cfg.SampleInput != nil {
			return cfg.SampleInput
		}
	}
	return map[string]any{}
}

// executeNode dispatches to the matching executor. The selected port is
// non-empty only for condition nodes.
func (r *Runner) executeNode(ctx context.Context, node *schema.Node, ec map[string]any) (map[string]any, string, error) {
	switch node.Type {
	case schema.NodeTriggerManual, schema.NodeTriggerWebhook,
		schema.NodeTriggerSchedule, schema.NodeTriggerFileUpload:
		updated, err := r.execTrigger(ctx, node, ec)
		return updated, "", err
	case schema.NodeAISummarize:
		updated, err := r.execSummarize(ctx, node, ec)
		return updated, "", err
	case schema.NodeAIClassify:
		updated, err := r.execClassify(ctx, node, ec)
		return updated, "", err
	case schema.NodeAIExtractFields:
		updated, err := r.execExtract(ctx, node, ec)
		return updated, "", err
	case schema.NodeAIGenerateReport:
		updated, err := r.execReport(ctx, node, ec)
		return updated, "", err
	case schema.NodeLogicCondition:
		return r.execCondition(ctx, node, ec)
	case schema.NodeLogicDelay:
		updated, err := r.execDelay(ctx, node, ec)
		return updated, "", err
	case schema.NodeOutputDBSave:
		updated, err := r.execDBSave(ctx, node, ec)
		return updated, "", err
	case schema.NodeOutputExport:
		updated, err := r.execExport(ctx, node, ec)
		return updated, "", err
	default:
		return nil, "", schema.NewErrorf(schema.ErrCodeExecution,
			"unknown node type %q", node.Type).WithNode(node.ID)
	}
}

// persistRun writes the run record once at completion, success or failure.
// Simulated runs persist nothing.
func (r *Runner) persistRun(ctx context.Context, result *RunResult) {
	if r.runs == nil || r.effects.Mode() != ModeLive {
		return
	}

	run := &store.Run{
		ID:          result.RunID,
		WorkflowID:  result.WorkflowID,
		Mode:        string(result.Mode),
		Status:      string(result.Status),
		Steps:       mustJSON(result.Steps),
		Output:      mustJSON(result.Context),
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
	}
	if len(result.Steps) > 0 {
		run.Input = mustJSON(result.Steps[0].Input)
	}
	if result.Error != nil {
		run.Error = mustJSON(result.Error)
	}

	if err := r.runs.CreateRun(ctx, run); err != nil {
		r.logger.ErrorContext(ctx, "persist run record failed", "error", err)
	}
}

func asLoomError(err error) *schema.LoomError {
	var loomErr *schema.LoomError
	if errors.As(err, &loomErr) {
		return loomErr
	}
	return schema.NewError(schema.ErrCodeNodeFailed, err.Error()).WithCause(err)
}
