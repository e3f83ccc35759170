package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeExportConfig_UnknownFormatCoercesToJSON(t *testing.T) {
	for _, format := range []string{"xml", "yaml", "CSV", ""} {
		cfg := DecodeExportConfig(map[string]any{"format": format})
		assert.Equal(t, "json", cfg.Format, "format %q", format)
	}
}

func TestDecodeExportConfig_KnownFormatsKept(t *testing.T) {
	assert.Equal(t, "csv", DecodeExportConfig(map[string]any{"format": "csv"}).Format)
	assert.Equal(t, "json", DecodeExportConfig(map[string]any{"format": "json"}).Format)
}

func TestDecodeExportConfig_Defaults(t *testing.T) {
	cfg := DecodeExportConfig(map[string]any{})
	assert.Equal(t, "$.input", cfg.InputPath)
	assert.Equal(t, "json", cfg.Format)
	assert.Empty(t, cfg.Filename)
	assert.Empty(t, cfg.Query)
}

func TestDecodeTriggerConfig_PayloadKeyPrecedence(t *testing.T) {
	cfg := DecodeTriggerConfig(map[string]any{
		"sample_input":   "first",
		"sample_payload": "second",
		"payload":        "third",
	})
	assert.Equal(t, "first", cfg.SampleInput)

	cfg = DecodeTriggerConfig(map[string]any{"payload": "third"})
	assert.Equal(t, "third", cfg.SampleInput)
}
