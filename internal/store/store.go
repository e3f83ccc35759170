package store

import "context"

// RecordsTable is the single logical table an output.db_save node may target.
// Any other table name is a fatal node error in live mode.
const RecordsTable = "records"

// Store defines the persistence collaborator contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflow documents
	CreateWorkflow(ctx context.Context, wf *WorkflowRecord) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error)
	UpdateWorkflow(ctx context.Context, wf *WorkflowRecord) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Runs (append-only: one row per completed run)
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// db_save sink
	InsertRecord(ctx context.Context, rec *SavedRecord) (string, error)

	// export sink
	CreateExport(ctx context.Context, exp *Export) (string, error)
	GetExport(ctx context.Context, id string) (*Export, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
