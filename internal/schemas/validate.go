// Package schemas validates catalog products against per-category JSON Schemas.
package schemas

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError is a single violation located by a JSON pointer ("" is the document root).
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		path := err.Path
		if path == "" {
			path = "(root)"
		}
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, path, err.Message))
	}
	return sb.String()
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}

	if errs := fieldErrors(result); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Combinator failures only repeat the nested violations they wrap.
var combinatorErrors = map[string]bool{
	"number_all_of": true,
	"number_any_of": true,
	"number_one_of": true,
}

// fieldErrors converts a result into sorted FieldErrors with JSON pointer paths.
func fieldErrors(result *gojsonschema.Result) []FieldError {
	if result.Valid() {
		return nil
	}
	out := make([]FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		if combinatorErrors[desc.Type()] {
			continue
		}
		out = append(out, FieldError{
			Path:    pointer(desc),
			Message: desc.Description(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// pointer builds the JSON pointer of a violation. A missing required property points at the
// property itself, e.g. /technical_specs/power_kw.
func pointer(desc gojsonschema.ResultError) string {
	var parts []string
	if field := desc.Field(); field != "" && field != gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
		parts = strings.Split(strings.TrimPrefix(field, gojsonschema.STRING_ROOT_SCHEMA_PROPERTY+"."), ".")
	}
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			parts = append(parts, prop)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	escaper := strings.NewReplacer("~", "~0", "/", "~1")
	for i, p := range parts {
		parts[i] = escaper.Replace(p)
	}
	return "/" + strings.Join(parts, "/")
}
