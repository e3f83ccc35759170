package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, WorkflowID(ctx))
	assert.Empty(t, RunID(ctx))
	assert.Empty(t, NodeID(ctx))

	ctx = WithWorkflowID(ctx, "wf_1")
	ctx = WithRunID(ctx, "run_1")
	ctx = WithNodeID(ctx, "n_1")

	assert.Equal(t, "wf_1", WorkflowID(ctx))
	assert.Equal(t, "run_1", RunID(ctx))
	assert.Equal(t, "n_1", NodeID(ctx))
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithRunID(WithWorkflowID(context.Background(), "wf_1"), "run_1")
	logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "workflow_id=wf_1")
	assert.Contains(t, out, "run_id=run_1")
	assert.NotContains(t, out, "node_id")
}

func TestCorrelationHandler_NoIDsNoAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "plain")

	out := buf.String()
	assert.NotContains(t, out, "workflow_id")
	assert.NotContains(t, out, "run_id")
}
