package schema

import "encoding/json"

// Typed config shapes, one per node type. The free-form Node.Config map is
// decoded into these exactly once, at the execution boundary, so executors
// never re-derive shape assumptions from raw maps. Missing or mistyped values
// fall back to type-specific defaults rather than failing: config typing is
// enforced by the document validator, and executors must stay total.

// TriggerConfig is shared by all trigger node types.
type TriggerConfig struct {
	SampleInput any    // initial payload for sample/simulated runs
	Cron        string // schedule triggers only; validated, never scheduled here
	Path        string // webhook triggers only, informational
}

// SummarizeConfig configures ai.summarize.
type SummarizeConfig struct {
	InputPath    string
	OutputKey    string
	Style        string
	Bullets      bool
	Instructions string
}

// ClassifyConfig configures ai.classify.
type ClassifyConfig struct {
	InputPath     string
	Labels        []string
	OutputKey     string
	ConfidenceKey string
}

// FieldSpec is one requested field in an ai.extract_fields node.
type FieldSpec struct {
	Key      string `json:"key"`
	Type     string `json:"type"` // string | number | boolean | array
	Required bool   `json:"required"`
}

// ExtractConfig configures ai.extract_fields.
type ExtractConfig struct {
	InputPath string
	Fields    []FieldSpec
	OutputKey string
}

// ReportConfig configures ai.generate_report.
type ReportConfig struct {
	InputPath    string
	OutputKey    string
	Template     string
	Format       string
	Instructions string
}

// ConditionConfig configures logic.condition.
type ConditionConfig struct {
	Expression    string
	DefaultOutput string
}

// DelayConfig configures logic.delay.
type DelayConfig struct {
	Seconds float64
}

// DBSaveConfig configures output.db_save. Mapping values are either literals
// or $-prefixed paths resolved against the execution context.
type DBSaveConfig struct {
	Table   string
	Mode    string
	Mapping map[string]any
}

// ExportConfig configures output.export. Query is an optional jq filter
// applied to the resolved input before serialization.
type ExportConfig struct {
	InputPath string
	Format    string
	Filename  string
	Query     string
}

// DecodeTriggerConfig extracts the initial payload and trigger metadata.
// Payload precedence: sample_input, then sample_payload, then payload.
func DecodeTriggerConfig(cfg map[string]any) TriggerConfig {
	out := TriggerConfig{
		Cron: stringValue(cfg, "cron", ""),
		Path: stringValue(cfg, "path", ""),
	}
	for _, key := range []string{"sample_input", "sample_payload", "payload"} {
		if v, ok := cfg[key]; ok {
			out.SampleInput = v
			break
		}
	}
	return out
}

// DecodeSummarizeConfig applies summarize defaults.
func DecodeSummarizeConfig(cfg map[string]any) SummarizeConfig {
	return SummarizeConfig{
		InputPath:    stringValue(cfg, "input_path", "$.input"),
		OutputKey:    stringValue(cfg, "output_key", "summary"),
		Style:        stringValue(cfg, "style", ""),
		Bullets:      boolValue(cfg, "bullets", false),
		Instructions: stringValue(cfg, "instructions", ""),
	}
}

// DecodeClassifyConfig applies classify defaults.
func DecodeClassifyConfig(cfg map[string]any) ClassifyConfig {
	return ClassifyConfig{
		InputPath:     stringValue(cfg, "input_path", "$.input"),
		Labels:        stringSliceValue(cfg, "labels"),
		OutputKey:     stringValue(cfg, "output_key", "label"),
		ConfidenceKey: stringValue(cfg, "confidence_key", "confidence"),
	}
}

// DecodeExtractConfig applies extract_fields defaults.
func DecodeExtractConfig(cfg map[string]any) ExtractConfig {
	out := ExtractConfig{
		InputPath: stringValue(cfg, "input_path", "$.input"),
		OutputKey: stringValue(cfg, "output_key", "extracted"),
	}

	raw, ok := cfg["fields"].([]any)
	if !ok {
		return out
	}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		spec := FieldSpec{
			Key:      stringValue(m, "key", ""),
			Type:     stringValue(m, "type", "string"),
			Required: boolValue(m, "required", false),
		}
		if spec.Key != "" {
			out.Fields = append(out.Fields, spec)
		}
	}
	return out
}

// DecodeReportConfig applies generate_report defaults.
func DecodeReportConfig(cfg map[string]any) ReportConfig {
	return ReportConfig{
		InputPath:    stringValue(cfg, "input_path", "$.input"),
		OutputKey:    stringValue(cfg, "output_key", "report"),
		Template:     stringValue(cfg, "template", ""),
		Format:       stringValue(cfg, "format", "markdown"),
		Instructions: stringValue(cfg, "instructions", ""),
	}
}

// DecodeConditionConfig extracts the branch expression and default port.
func DecodeConditionConfig(cfg map[string]any) ConditionConfig {
	return ConditionConfig{
		Expression:    stringValue(cfg, "expression", ""),
		DefaultOutput: stringValue(cfg, "default_output", ""),
	}
}

// DecodeDelayConfig applies the zero-seconds default.
func DecodeDelayConfig(cfg map[string]any) DelayConfig {
	return DelayConfig{
		Seconds: floatValue(cfg, "seconds", 0),
	}
}

// DecodeDBSaveConfig extracts the db_save target and payload mapping.
func DecodeDBSaveConfig(cfg map[string]any) DBSaveConfig {
	out := DBSaveConfig{
		Table: stringValue(cfg, "table", ""),
		Mode:  stringValue(cfg, "mode", "insert"),
	}
	if m, ok := cfg["mapping"].(map[string]any); ok {
		out.Mapping = m
	}
	return out
}

// DecodeExportConfig normalizes the export format to json or csv.
// Anything else coerces to json.
func DecodeExportConfig(cfg map[string]any) ExportConfig {
	out := ExportConfig{
		InputPath: stringValue(cfg, "input_path", "$.input"),
		Format:    stringValue(cfg, "format", "json"),
		Filename:  stringValue(cfg, "filename", ""),
		Query:     stringValue(cfg, "query", ""),
	}
	if out.Format != "json" && out.Format != "csv" {
		out.Format = "json"
	}
	return out
}

// --- Value helpers ---

func stringValue(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolValue(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func floatValue(m map[string]any, key string, defaultVal float64) float64 {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return defaultVal
		}
		return f
	default:
		return defaultVal
	}
}

func stringSliceValue(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		if s, ok := m[key].([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
