// Package llm - extractor.go describes the JSON shapes the vision prompts ask for.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractionSchema defines the structure for LLM-based extraction.
type ExtractionSchema struct {
	Name   string        // Schema name (e.g., "ProductExtraction")
	Fields []SchemaField // Expected output fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "[\"string\"]", "number"
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// SchemaBlock renders the output contract appended to a prompt template.
func SchemaBlock(schema ExtractionSchema) string {
	var sb strings.Builder

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "\"string\""
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Use null or an empty string when a value is not visible, do not invent it.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n")

	return sb.String()
}

// RequiredFields lists the names of required fields.
func (s ExtractionSchema) RequiredFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// JSONSchema renders the schema as a JSON Schema document for checking answers. Optional
// fields may be null; required fields must carry a value of their type.
func (s ExtractionSchema) JSONSchema() string {
	properties := make(map[string]any, len(s.Fields))
	required := []string{}
	for _, f := range s.Fields {
		prop := jsonType(f.Type)
		if f.Required {
			required = append(required, f.Name)
		} else {
			prop["type"] = []string{prop["type"].(string), "null"}
		}
		properties[f.Name] = prop
	}
	doc, err := json.Marshal(map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"title":      s.Name,
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	if err != nil {
		// Only strings and maps are marshaled.
		panic(err)
	}
	return string(doc)
}

func jsonType(hint string) map[string]any {
	switch strings.Trim(hint, `"`) {
	case "number":
		return map[string]any{"type": "number"}
	case "boolean":
		return map[string]any{"type": "boolean"}
	case `["string"]`:
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	default:
		return map[string]any{"type": "string"}
	}
}

// --- Predefined Schemas ---

// ProductExtractionSchema is what a vision agent reads off a product photo.
func ProductExtractionSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "ProductExtraction",
		Fields: []SchemaField{
			{
				Name:        "manufacturer",
				Type:        "\"string\"",
				Description: "Brand printed on the product or packaging (e.g., 'Growatt', 'LONGi')",
			},
			{
				Name:        "model",
				Type:        "\"string\"",
				Description: "Model code exactly as printed (e.g., 'MIN 5000TL-X', 'LR5-72HTH-550M')",
			},
			{
				Name:        "visible_text",
				Type:        "\"string\"",
				Description: "All legible text, one line per label",
			},
			{
				Name:        "certifications",
				Type:        "[\"string\"]",
				Description: "Certification marks visible (e.g., 'INMETRO', 'IEC 61215')",
			},
			{
				Name:        "image_quality_score",
				Type:        "number",
				Description: "Photo quality from 0 to 10",
				Required:    true,
			},
			{
				Name:        "confidence",
				Type:        "number",
				Description: "Confidence from 0 to 1 that manufacturer and model are correct",
				Required:    true,
			},
		},
	}
}

// ImageQualitySchema is the answer of the quality gate that runs before extraction.
func ImageQualitySchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "ImageQuality",
		Fields: []SchemaField{
			{
				Name:        "quality",
				Type:        "number",
				Description: "Photo quality from 0 to 10",
				Required:    true,
			},
			{
				Name:        "usable",
				Type:        "boolean",
				Description: "Whether the product label can be read",
				Required:    true,
			},
			{
				Name:        "issues",
				Type:        "[\"string\"]",
				Description: "Problems found (e.g., 'blurry', 'watermark', 'placeholder')",
			},
		},
	}
}
