package engine

import (
	"context"

	"github.com/loomworks/loom/internal/expressions"
	"github.com/loomworks/loom/pkg/schema"
)

// execTrigger produces no context change: the orchestrator seeds the context
// from the trigger's sample payload (or the caller's input override) before
// any node executes. The trigger still appears in the trace as the run's
// first step.
func (r *Runner) execTrigger(_ context.Context, _ *schema.Node, ec map[string]any) (map[string]any, error) {
	return ec, nil
}

// execCondition evaluates the branch expression against the current context
// and selects exactly one output port. It writes no context value: its sole
// effect is branch selection. A malformed expression evaluates false and
// routes to the default output.
func (r *Runner) execCondition(ctx context.Context, node *schema.Node, ec map[string]any) (map[string]any, string, error) {
	cfg := schema.DecodeConditionConfig(node.Config)

	taken := expressions.Evaluate(ec, cfg.Expression)

	selected := selectConditionPort(node, cfg, taken)
	r.logger.DebugContext(ctx, "condition evaluated",
		"expression", cfg.Expression, "result", taken, "selected_port", selected)

	return ec, selected, nil
}

// selectConditionPort picks the non-default port when the expression holds,
// the default otherwise, falling back to the first declared output when no
// candidate can be identified.
func selectConditionPort(node *schema.Node, cfg schema.ConditionConfig, taken bool) string {
	if taken {
		for _, p := range node.Outputs {
			if p.ID != cfg.DefaultOutput {
				return p.ID
			}
		}
	} else if node.OutputPort(cfg.DefaultOutput) != nil {
		return cfg.DefaultOutput
	}

	if len(node.Outputs) > 0 {
		return node.Outputs[0].ID
	}
	return ""
}

// execDelay stamps the configured delay on the context. No suspension occurs
// in either mode: the delay is modeled, not enforced.
func (r *Runner) execDelay(_ context.Context, node *schema.Node, ec map[string]any) (map[string]any, error) {
	cfg := schema.DecodeDelayConfig(node.Config)
	return shallowExtend(ec, map[string]any{"delay_applied": cfg.Seconds}), nil
}
