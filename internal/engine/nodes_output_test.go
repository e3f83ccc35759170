package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- CSV serialization ---

func TestToCSV_SortedHeaderAndQuoting(t *testing.T) {
	rows := []map[string]any{
		{"a": 1.0, "b": "x"},
		{"a": 2.0, "b": "y,z"},
	}

	out := toCSV(rows)
	assert.Equal(t, "a,b\n\"1\",\"x\"\n\"2\",\"y,z\"\n", out)
}

func TestToCSV_DoublesInternalQuotes(t *testing.T) {
	rows := []map[string]any{
		{"msg": `say "hi"`},
	}

	out := toCSV(rows)
	assert.Equal(t, "msg\n\"say \"\"hi\"\"\"\n", out)
}

func TestToCSV_MissingKeyIsEmptyCell(t *testing.T) {
	// Header comes from the first row only.
	rows := []map[string]any{
		{"a": "1", "b": "2"},
		{"a": "3"},
	}

	out := toCSV(rows)
	assert.Equal(t, "a,b\n\"1\",\"2\"\n\"3\",\"\"\n", out)
}

func TestToCSV_NonStringCellsMarshalled(t *testing.T) {
	rows := []map[string]any{
		{"ok": true, "n": 2.5, "obj": map[string]any{"k": "v"}},
	}

	out := toCSV(rows)
	assert.Equal(t, "n,obj,ok\n\"2.5\",\"{\"\"k\"\":\"\"v\"\"}\",\"true\"\n", out)
}

// --- Format selection ---

func TestSerializeExport_CSVForObjectRows(t *testing.T) {
	value := []any{
		map[string]any{"id": 1.0},
		map[string]any{"id": 2.0},
	}

	content, format := serializeExport(value, "csv")
	assert.Equal(t, "csv", format)
	assert.Equal(t, "id\n\"1\"\n\"2\"\n", content)
}

func TestSerializeExport_CSVFallsBackToJSONForScalars(t *testing.T) {
	content, format := serializeExport("just text", "csv")
	assert.Equal(t, "json", format)
	assert.Equal(t, "just text", content)
}

func TestSerializeExport_CSVFallsBackForMixedArray(t *testing.T) {
	value := []any{map[string]any{"id": 1.0}, "stray"}

	_, format := serializeExport(value, "csv")
	assert.Equal(t, "json", format)
}

func TestSerializeExport_CSVFallsBackForEmptyArray(t *testing.T) {
	_, format := serializeExport([]any{}, "csv")
	assert.Equal(t, "json", format)
}

func TestSerializeExport_JSONPrettyPrints(t *testing.T) {
	content, format := serializeExport(map[string]any{"k": "v"}, "json")
	assert.Equal(t, "json", format)
	assert.Equal(t, "{\n  \"k\": \"v\"\n}", content)
}

// --- Mapping resolution ---

func TestResolveMapping_PathsAndLiterals(t *testing.T) {
	ec := map[string]any{
		"summary": "short",
		"input":   map[string]any{"id": 7.0},
	}
	mapping := map[string]any{
		"text":    "$.summary",
		"item_id": "$.input.id",
		"source":  "workflow",
		"missing": "$.nope",
		"count":   3.0,
	}

	payload := resolveMapping(ec, mapping)
	require.Equal(t, map[string]any{
		"text":    "short",
		"item_id": 7.0,
		"source":  "workflow",
		"missing": nil,
		"count":   3.0,
	}, payload)
}
