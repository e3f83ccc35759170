package engine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/loomworks/loom/internal/jsonpath"
	"github.com/loomworks/loom/internal/logging"
	"github.com/loomworks/loom/pkg/schema"
)

// execDBSave resolves the configured mapping into a payload object. In
// simulated mode it records what would have been saved; in live mode it
// inserts through the Effects boundary, where an unsupported table is a
// fatal node error.
func (r *Runner) execDBSave(ctx context.Context, node *schema.Node, ec map[string]any) (map[string]any, error) {
	cfg := schema.DecodeDBSaveConfig(node.Config)
	payload := resolveMapping(ec, cfg.Mapping)

	if r.effects.Mode() == ModeSimulated {
		return shallowExtend(ec, map[string]any{
			"db_save_result": map[string]any{
				"would_save": true,
				"table":      cfg.Table,
				"mode":       cfg.Mode,
				"payload":    payload,
			},
		}), nil
	}

	id, err := r.effects.Insert(ctx, cfg.Table, payload)
	if err != nil {
		return nil, err
	}

	return shallowExtend(ec, map[string]any{
		"db_save_result": map[string]any{
			"table":     cfg.Table,
			"mode":      cfg.Mode,
			"payload":   payload,
			"record_id": id,
		},
	}), nil
}

// resolveMapping builds the payload: each mapping value is either a literal
// or a $-prefixed path resolved against the context (misses become nil).
func resolveMapping(ec map[string]any, mapping map[string]any) map[string]any {
	payload := make(map[string]any, len(mapping))
	for key, raw := range mapping {
		if path, ok := raw.(string); ok && strings.HasPrefix(path, "$") {
			v, _ := jsonpath.Resolve(ec, path)
			payload[key] = v
			continue
		}
		payload[key] = raw
	}
	return payload
}

// execExport resolves the input, optionally filters it through a jq query,
// and serializes it as JSON or CSV. Simulated mode returns the content
// inline; live mode additionally persists the artifact and attaches its id.
func (r *Runner) execExport(ctx context.Context, node *schema.Node, ec map[string]any) (map[string]any, error) {
	cfg := schema.DecodeExportConfig(node.Config)
	value, _ := jsonpath.Resolve(ec, cfg.InputPath)

	if cfg.Query != "" {
		filtered, err := r.queries.Evaluate(ctx, cfg.Query, value)
		if err != nil {
			return nil, err
		}
		value = filtered
	}

	content, actualFormat := serializeExport(value, cfg.Format)

	result := map[string]any{
		"format":  actualFormat,
		"content": content,
	}
	if cfg.Filename != "" {
		result["filename"] = cfg.Filename
	}

	if r.effects.Mode() == ModeLive {
		id, err := r.effects.SaveExport(ctx, ExportArtifact{
			RunID:    logging.RunID(ctx),
			NodeID:   node.ID,
			Filename: cfg.Filename,
			Format:   actualFormat,
			Content:  content,
		})
		if err != nil {
			return nil, err
		}
		result["export_id"] = id
	}

	return shallowExtend(ec, map[string]any{"export_result": result}), nil
}

// serializeExport renders the value in the requested format. CSV only
// applies to an array of objects; everything else falls back to
// pretty-printed JSON regardless of the requested format.
func serializeExport(value any, format string) (content, actualFormat string) {
	if format == "csv" {
		if rows, ok := objectRows(value); ok {
			return toCSV(rows), "csv"
		}
	}
	return stringifyPretty(value), "json"
}

// objectRows accepts only a non-empty array whose every element is an object.
func objectRows(value any) ([]map[string]any, bool) {
	arr, ok := value.([]any)
	if !ok || len(arr) == 0 {
		return nil, false
	}
	rows := make([]map[string]any, len(arr))
	for i, item := range arr {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows[i] = row
	}
	return rows, true
}

// toCSV takes the first row's keys (sorted, for a stable header) as the
// header row and double-quotes every cell, escaping internal quotes by
// doubling them.
func toCSV(rows []map[string]any) string {
	header := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		header = append(header, k)
	}
	sort.Strings(header)

	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')

	for _, row := range rows {
		cells := make([]string, len(header))
		for i, key := range header {
			cells[i] = csvCell(row[key])
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func csvCell(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		s = ""
	case string:
		s = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			s = ""
		} else {
			s = string(b)
		}
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
