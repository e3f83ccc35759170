package engine

import (
	"encoding/json"
	"time"

	"github.com/loomworks/loom/pkg/schema"
)

// StepStatus is the outcome of one executed node.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

// RunStatus is the final outcome of a run. There is no partial-success
// status: one failing node fails the whole run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// StepRecord is an immutable audit entry for one executed node. Skipped
// nodes (not reachable from a taken branch) never appear in the trace.
type StepRecord struct {
	NodeID             string          `json:"node_id"`
	NodeName           string          `json:"node_name,omitempty"`
	NodeType           schema.NodeType `json:"node_type"`
	Status             StepStatus      `json:"status"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         time.Time       `json:"finished_at"`
	DurationMs         int64           `json:"duration_ms"`
	SelectedOutputPort string          `json:"selected_output_port,omitempty"` // condition nodes only
	NextNodeIDs        []string        `json:"next_node_ids,omitempty"`
	Input              map[string]any  `json:"input"`
	Output             map[string]any  `json:"output,omitempty"`
	Error              string          `json:"error,omitempty"`
}

// RunResult is the unit handed to the persistence collaborator and returned
// to callers: final status, full step trace, and the terminal context (or
// partial context plus error, on failure).
type RunResult struct {
	RunID       string            `json:"run_id"`
	WorkflowID  string            `json:"workflow_id"`
	Mode        Mode              `json:"mode"`
	Status      RunStatus         `json:"status"`
	Steps       []StepRecord      `json:"steps"`
	Context     map[string]any    `json:"context,omitempty"`
	Error       *schema.LoomError `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// deepCopy snapshots a context by JSON round-trip, so step records stay
// immutable no matter what later executors do to nested values.
func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		// Context values always originate from JSON; this is unreachable
		// for well-formed documents.
		copied := make(map[string]any, len(m))
		for k, v := range m {
			copied[k] = v
		}
		return copied
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// shallowExtend copies m and applies updates, leaving m untouched.
func shallowExtend(m map[string]any, updates map[string]any) map[string]any {
	out := make(map[string]any, len(m)+len(updates))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range updates {
		out[k] = v
	}
	return out
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return b
}
