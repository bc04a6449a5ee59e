// Package schemas provides JSON Schema verification for story meta.
package schemas

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jonathan/story-archiver/internal/story"
)

//go:embed story_meta.json
var storyMetaSchema []byte

// ValidationError represents a schema validation failure with field paths.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("meta validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// SchemaLoadError represents errors parsing the schema itself.
type SchemaLoadError struct {
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema: %s", e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// MetaVerifier validates story meta against the bundled story schema.
// The zero value is not usable; construct with NewMetaVerifier.
type MetaVerifier struct {
	schema *gojsonschema.Schema
}

// NewMetaVerifier compiles the bundled schema.
func NewMetaVerifier() (*MetaVerifier, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(storyMetaSchema))
	if err != nil {
		return nil, &SchemaLoadError{Message: "schema failed to compile", Cause: err}
	}
	return &MetaVerifier{schema: schema}, nil
}

// Verify checks the meta against the schema. A nil error means the meta
// conforms; a *ValidationError lists every violation.
func (v *MetaVerifier) Verify(meta story.Meta) error {
	document, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode meta for verification: %w", err)
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &SchemaLoadError{Message: "schema validation failed during load", Cause: err}
	}

	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
