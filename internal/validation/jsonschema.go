package validation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/loomworks/loom/pkg/schema"
)

// documentSchemaJSON is the JSON Schema for WorkflowDocument validation.
// Embedded as a constant to avoid filesystem dependencies.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://loomworks.dev/schemas/workflow-document.json",
  "type": "object",
  "required": ["schema_version", "workflow"],
  "properties": {
    "schema_version": { "const": "1.0" },
    "workflow": {
      "type": "object",
      "required": ["id", "name", "entry_node_id", "nodes"],
      "properties": {
        "id": {
          "type": "string",
          "pattern": "^wf_[A-Za-z0-9_-]+$"
        },
        "name": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "tags": {
          "type": "array",
          "items": { "type": "string" }
        },
        "entry_node_id": { "type": "string", "minLength": 1 },
        "variables": { "type": "object" },
        "nodes": {
          "type": "array",
          "minItems": 1,
          "items": { "$ref": "#/$defs/node" }
        },
        "edges": {
          "type": "array",
          "items": { "$ref": "#/$defs/edge" }
        }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": [
            "trigger.manual", "trigger.webhook", "trigger.schedule", "trigger.file_upload",
            "ai.summarize", "ai.classify", "ai.extract_fields", "ai.generate_report",
            "logic.condition", "logic.delay",
            "output.db_save", "output.export"
          ]
        },
        "name": { "type": "string" },
        "position": {
          "type": "object",
          "properties": {
            "x": { "type": "number" },
            "y": { "type": "number" }
          }
        },
        "inputs": {
          "type": "array",
          "items": { "$ref": "#/$defs/port" }
        },
        "outputs": {
          "type": "array",
          "items": { "$ref": "#/$defs/port" }
        },
        "config": { "type": "object" },
        "ui": {
          "type": "object",
          "properties": {
            "icon": { "type": "string" },
            "color": { "type": "string" }
          }
        }
      },
      "additionalProperties": false
    },
    "port": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "schema": { "type": "string" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "source": { "$ref": "#/$defs/endpoint" },
        "target": { "$ref": "#/$defs/endpoint" },
        "label": { "type": ["string", "null"] },
        "condition": { "type": ["string", "null"] }
      },
      "additionalProperties": false
    },
    "endpoint": {
      "type": "object",
      "required": ["node_id", "port_id"],
      "properties": {
        "node_id": { "type": "string", "minLength": 1 },
        "port_id": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator performs structural document validation using
// JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	documentSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the document
// schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource("https://loomworks.dev/schemas/workflow-document.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}

	compiled, err := c.Compile("https://loomworks.dev/schemas/workflow-document.json")
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}

	return &JSONSchemaValidator{documentSchema: compiled}, nil
}

// ValidateDocument checks a WorkflowDocument against the embedded schema and
// appends one issue per leaf violation, with dotted field paths.
func (v *JSONSchemaValidator) ValidateDocument(doc *schema.WorkflowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if doc == nil {
		result.AddError("", schema.ErrCodeValidation, "workflow document is nil")
		return result
	}

	value, err := toJSONValue(doc)
	if err != nil {
		result.AddError("", schema.ErrCodeValidation, "failed to serialize workflow document: "+err.Error())
		return result
	}

	err = v.documentSchema.Validate(value)
	if err == nil {
		return result
	}

	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		result.AddError("", schema.ErrCodeValidation, err.Error())
		return result
	}

	for _, issue := range collectViolations(verr) {
		result.AddError(issue.path, schema.ErrCodeValidation, issue.message)
	}
	return result
}

type violation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with dotted instance locations.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		return []violation{{
			path:    dottedPath(verr.InstanceLocation),
			message: verr.Error(),
		}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

// dottedPath converts an instance location like [workflow nodes 2 id] into
// "workflow.nodes[2].id".
func dottedPath(location []string) string {
	var b strings.Builder
	for _, seg := range location {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

// toJSONValue round-trips a Go value through JSON encoding so numeric values
// become json.Number, as required by the jsonschema library.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}
