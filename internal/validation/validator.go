package validation

import (
	"encoding/json"

	"github.com/loomworks/loom/pkg/schema"
)

// DocumentValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (trigger/entry/port/edge cross references)
// 3. DAG (cycles, reachability)
//
// It is invoked on every boundary crossing: before executing, before
// persisting an edited document, and on documents produced by the external
// generation collaborator.
type DocumentValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewDocumentValidator creates a DocumentValidator.
func NewDocumentValidator() (*DocumentValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &DocumentValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and DAG stages are skipped
// because the document shape cannot be trusted. Within the semantic stage
// every violation is collected, never just the first.
func (dv *DocumentValidator) Validate(doc *schema.WorkflowDocument) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("", schema.ErrCodeValidation, "workflow document is nil")
		return r
	}

	result := dv.jsonSchema.ValidateDocument(doc)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(doc))

	// DAG stage is skipped on semantic errors: the graph may be malformed.
	if result.Valid() {
		result.Merge(validateDAG(doc))
	}

	return result
}

// ValidateDocument satisfies callers that want a plain error.
func (dv *DocumentValidator) ValidateDocument(doc *schema.WorkflowDocument) error {
	return dv.Validate(doc).ToError()
}

// ParseAndValidate decodes raw JSON into a WorkflowDocument and validates it.
// The document pointer is non-nil only when the result is valid.
func (dv *DocumentValidator) ParseAndValidate(raw []byte) (*schema.WorkflowDocument, *schema.ValidationResult) {
	var doc schema.WorkflowDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		r := &schema.ValidationResult{}
		r.AddError("", schema.ErrCodeValidation, "invalid JSON: "+err.Error())
		return nil, r
	}

	result := dv.Validate(&doc)
	if !result.Valid() {
		return nil, result
	}
	return &doc, result
}
