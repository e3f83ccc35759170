package engine

import (
	"context"

	"github.com/loomworks/loom/pkg/schema"
)

// SimEffects is the pure Effects implementation: deterministic stub
// completions, no external calls, no storage. Insert and SaveExport are
// never reached in simulated mode because the output executors short-circuit
// on Mode(); they still return errors rather than silently succeeding.
type SimEffects struct{}

// NewSimEffects creates the simulated Effects backend.
func NewSimEffects() *SimEffects { return &SimEffects{} }

func (*SimEffects) Mode() Mode { return ModeSimulated }

func (*SimEffects) Complete(_ context.Context, req CompletionRequest) (string, error) {
	switch req.Kind {
	case CompletionSummarize:
		return stubSummary(req.Input), nil
	case CompletionReport:
		return stubReport(req.Input), nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeExecution,
			"completion kind %q does not produce text", req.Kind)
	}
}

func (*SimEffects) CompleteObject(_ context.Context, req CompletionRequest) (map[string]any, error) {
	switch req.Kind {
	case CompletionClassify:
		label, confidence := stubClassify(req.Input, req.Labels)
		return map[string]any{"label": label, "confidence": confidence}, nil
	case CompletionExtract:
		return stubExtract(req.Fields), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"completion kind %q does not produce an object", req.Kind)
	}
}

func (*SimEffects) Insert(_ context.Context, table string, _ map[string]any) (string, error) {
	return "", schema.NewErrorf(schema.ErrCodeExecution,
		"insert into %q is not available in simulated mode", table)
}

func (*SimEffects) SaveExport(_ context.Context, _ ExportArtifact) (string, error) {
	return "", schema.NewError(schema.ErrCodeExecution,
		"export persistence is not available in simulated mode")
}
