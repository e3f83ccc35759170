// Package engine executes validated workflow documents: it orders the graph,
// runs one executor per node type, threads the execution context through the
// run, and records an immutable step trace. One engine serves both execution
// modes; the difference is the injected Effects implementation.
package engine

import (
	"context"

	"github.com/loomworks/loom/pkg/schema"
)

// Mode distinguishes deterministic simulation from effectful live execution.
type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeLive      Mode = "live"
)

// CompletionKind tells the Effects implementation which AI operation is
// being performed, so the simulated backend can produce the matching
// deterministic stub and the live backend can build the matching prompt.
type CompletionKind string

const (
	CompletionSummarize CompletionKind = "summarize"
	CompletionClassify  CompletionKind = "classify"
	CompletionExtract   CompletionKind = "extract"
	CompletionReport    CompletionKind = "report"
)

// CompletionRequest carries the structured inputs of one AI node execution.
type CompletionRequest struct {
	Kind   CompletionKind
	Input  any
	Labels []string           // classify only
	Fields []schema.FieldSpec // extract only
	Hints  map[string]string  // style/format/instruction hints
}

// Effects is the capability boundary between the engine and the outside
// world. The simulated implementation is pure and deterministic; the live
// implementation calls the completion and persistence collaborators and may
// fail with propagated errors.
type Effects interface {
	Mode() Mode

	// Complete returns response text for a completion request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// CompleteObject returns a parsed JSON object for a strict-JSON
	// completion request.
	CompleteObject(ctx context.Context, req CompletionRequest) (map[string]any, error)

	// Insert persists a db_save payload into the named logical table and
	// returns the generated row id.
	Insert(ctx context.Context, table string, payload map[string]any) (string, error)

	// SaveExport persists export content and metadata, returning the
	// generated export id.
	SaveExport(ctx context.Context, exp ExportArtifact) (string, error)
}

// ExportArtifact is the content and metadata produced by an export node.
type ExportArtifact struct {
	RunID    string
	NodeID   string
	Filename string
	Format   string
	Content  string
}
