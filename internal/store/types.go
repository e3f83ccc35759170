package store

import (
	"encoding/json"
	"time"

	"github.com/loomworks/loom/pkg/schema"
)

// WorkflowRecord is a persisted workflow document with metadata.
type WorkflowRecord struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Document  schema.WorkflowDocument `json:"document"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Run is the persisted record of one workflow execution, written exactly
// once when the run completes (success or failure).
type Run struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	Steps       json.RawMessage `json:"steps,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// SavedRecord is one row produced by an output.db_save node.
type SavedRecord struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	NodeID    string          `json:"node_id"`
	Table     string          `json:"table"`
	Mode      string          `json:"mode"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Export is one artifact produced by an output.export node in live mode.
type Export struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id"`
	Filename  string    `json:"filename,omitempty"`
	Format    string    `json:"format"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowFilter narrows ListWorkflows results.
type WorkflowFilter struct {
	Limit int
}

// RunFilter narrows ListRuns results.
type RunFilter struct {
	WorkflowID string
	Status     string
	Limit      int
}
