package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/logging"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/schema"
)

// Completer is the completion collaborator surface consumed in live mode.
// Satisfied by *completion.Client and test fakes.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	CompleteJSON(ctx context.Context, system, prompt string) (map[string]any, error)
}

// Sink is the slice of the persistence collaborator the live backend needs.
// Satisfied by store.Store and test fakes.
type Sink interface {
	InsertRecord(ctx context.Context, rec *store.SavedRecord) (string, error)
	CreateExport(ctx context.Context, exp *store.Export) (string, error)
}

// LiveEffects implements Effects against the real completion and persistence
// collaborators. Run and node correlation ids are read from the context the
// orchestrator stamps before each node executes.
type LiveEffects struct {
	completer Completer
	sink      Sink
}

// NewLiveEffects creates the live Effects backend.
func NewLiveEffects(completer Completer, sink Sink) *LiveEffects {
	return &LiveEffects{completer: completer, sink: sink}
}

func (*LiveEffects) Mode() Mode { return ModeLive }

func (e *LiveEffects) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	system, prompt := buildPrompt(req)
	return e.completer.Complete(ctx, system, prompt)
}

func (e *LiveEffects) CompleteObject(ctx context.Context, req CompletionRequest) (map[string]any, error) {
	system, prompt := buildPrompt(req)
	return e.completer.CompleteJSON(ctx, system, prompt)
}

// Insert enforces the single-table allowlist before touching storage: an
// unsupported table is a fatal node error, never a silent redirect.
func (e *LiveEffects) Insert(ctx context.Context, table string, payload map[string]any) (string, error) {
	if table != store.RecordsTable {
		return "", schema.NewErrorf(schema.ErrCodeUnsupportedTable,
			"unsupported table %q: only %q is permitted", table, store.RecordsTable)
	}

	rec := &store.SavedRecord{
		ID:      uuid.NewString(),
		RunID:   logging.RunID(ctx),
		NodeID:  logging.NodeID(ctx),
		Table:   table,
		Mode:    "insert",
		Payload: mustJSON(payload),
	}
	id, err := e.sink.InsertRecord(ctx, rec)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeStore, "insert record").WithCause(err)
	}
	return id, nil
}

func (e *LiveEffects) SaveExport(ctx context.Context, exp ExportArtifact) (string, error) {
	id, err := e.sink.CreateExport(ctx, &store.Export{
		ID:       uuid.NewString(),
		RunID:    exp.RunID,
		NodeID:   exp.NodeID,
		Filename: exp.Filename,
		Format:   exp.Format,
		Content:  exp.Content,
	})
	if err != nil {
		return "", schema.NewError(schema.ErrCodeStore, "save export").WithCause(err)
	}
	return id, nil
}

// buildPrompt converts a structured completion request into system
// instructions and a user prompt for the chat endpoint.
func buildPrompt(req CompletionRequest) (system, prompt string) {
	input := stringify(req.Input)

	switch req.Kind {
	case CompletionSummarize:
		system = "You summarize content precisely. Respond with the summary text only."
		var b strings.Builder
		b.WriteString("Summarize the following content.")
		if style := req.Hints["style"]; style != "" {
			fmt.Fprintf(&b, " Style: %s.", style)
		}
		if req.Hints["bullets"] == "true" {
			b.WriteString(" Use bullet points.")
		}
		if extra := req.Hints["instructions"]; extra != "" {
			fmt.Fprintf(&b, " %s", extra)
		}
		fmt.Fprintf(&b, "\n\n%s", input)
		return system, b.String()

	case CompletionClassify:
		system = "You are a strict classifier. Respond with a JSON object only, no prose."
		return system, fmt.Sprintf(
			"Classify the following content into exactly one of these labels: %s.\n"+
				"Respond with JSON: {\"label\": \"<label>\", \"confidence\": <0..1>}\n\n%s",
			strings.Join(req.Labels, ", "), input)

	case CompletionExtract:
		system = "You extract structured fields. Respond with a JSON object only, no prose."
		specs := make([]string, 0, len(req.Fields))
		for _, f := range req.Fields {
			specs = append(specs, fmt.Sprintf("%s (%s)", f.Key, f.Type))
		}
		return system, fmt.Sprintf(
			"Extract these fields from the content: %s.\n"+
				"Respond with a JSON object containing exactly those keys.\n\n%s",
			strings.Join(specs, ", "), input)

	case CompletionReport:
		system = "You write clear reports. Respond with the report only."
		var b strings.Builder
		fmt.Fprintf(&b, "Write a %s report from the following data.", hintOr(req.Hints, "format", "markdown"))
		if tpl := req.Hints["template"]; tpl != "" {
			fmt.Fprintf(&b, " Follow this template:\n%s\n", tpl)
		}
		if extra := req.Hints["instructions"]; extra != "" {
			fmt.Fprintf(&b, " %s", extra)
		}
		fmt.Fprintf(&b, "\n\n%s", input)
		return system, b.String()
	}

	return "", input
}

func hintOr(hints map[string]string, key, fallback string) string {
	if v := hints[key]; v != "" {
		return v
	}
	return fallback
}
