// Package vision reads manufacturer, model and certification marks off product photos and merges
// them into consolidated products below every distributor-supplied value.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/llm"
	"github.com/yshsolar/catalog-pipeline/internal/prompts"
	"github.com/yshsolar/catalog-pipeline/internal/schemas"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const promptFile = "vision.json"

// Prompt template keys, suffixed with the configured prompt version.
const (
	extractionPrompt = "product-extraction"
	qualityPrompt    = "image-quality"
)

// ExtractionResult is what an agent read off one image.
type ExtractionResult struct {
	Manufacturer      string   `json:"manufacturer,omitempty"`
	Model             string   `json:"model,omitempty"`
	VisibleText       string   `json:"visible_text,omitempty"`
	Certifications    []string `json:"certifications,omitempty"`
	ImageQualityScore float64  `json:"image_quality_score"`
	Confidence        float64  `json:"confidence"`
}

// QualityAssessment is the answer of the quality gate.
type QualityAssessment struct {
	Quality float64  `json:"quality"`
	Usable  bool     `json:"usable"`
	Issues  []string `json:"issues,omitempty"`
}

// Agent extracts product attributes from an image.
type Agent interface {
	ID() string
	Analyze(ctx context.Context, image []byte, category types.Category) (*ExtractionResult, error)
}

// QualityAgent decides whether an image is worth an extraction call.
type QualityAgent interface {
	ID() string
	Assess(ctx context.Context, image []byte, category types.Category) (*QualityAssessment, error)
}

// BuildExtractionPrompt renders the extraction prompt for category at version (e.g. "v1").
func BuildExtractionPrompt(version string, category types.Category) (string, error) {
	return buildPrompt(extractionPrompt, version, category, llm.ProductExtractionSchema())
}

// BuildQualityPrompt renders the quality gate prompt.
func BuildQualityPrompt(version string, category types.Category) (string, error) {
	return buildPrompt(qualityPrompt, version, category, llm.ImageQualitySchema())
}

func buildPrompt(key, version string, category types.Category, schema llm.ExtractionSchema) (string, error) {
	template, err := prompts.Versioned(promptFile, key, version)
	if err != nil {
		return "", fmt.Errorf("failed to load %s prompt: %w", key, err)
	}
	return prompts.Format(template, map[string]string{
		"Category": string(category),
		"Schema":   llm.SchemaBlock(schema),
	}), nil
}

type extractionResponse struct {
	Manufacturer      *string  `json:"manufacturer"`
	Model             *string  `json:"model"`
	VisibleText       *string  `json:"visible_text"`
	Certifications    []string `json:"certifications"`
	ImageQualityScore *float64 `json:"image_quality_score"`
	Confidence        *float64 `json:"confidence"`
}

// ParseExtraction decodes an agent answer. Confidence is required; scores are clamped to their
// ranges and placeholder strings such as "unknown" become empty.
func ParseExtraction(text string) (*ExtractionResult, error) {
	var resp extractionResponse
	_, err := decodeAnswer(text, llm.ProductExtractionSchema(), &resp)
	if err != nil {
		return nil, err
	}

	result := &ExtractionResult{
		Manufacturer:   clean(resp.Manufacturer),
		Model:          clean(resp.Model),
		VisibleText:    clean(resp.VisibleText),
		Confidence:     clamp(*resp.Confidence, 0, 1),
		Certifications: []string{},
	}
	if resp.ImageQualityScore != nil {
		result.ImageQualityScore = clamp(*resp.ImageQualityScore, 0, 10)
	}
	for _, c := range resp.Certifications {
		if c = clean(&c); c != "" {
			result.Certifications = append(result.Certifications, c)
		}
	}
	return result, nil
}

type qualityResponse struct {
	Quality *float64 `json:"quality"`
	Usable  *bool    `json:"usable"`
	Issues  []string `json:"issues"`
}

// ParseQuality decodes a quality gate answer. Both quality and usable are required.
func ParseQuality(text string) (*QualityAssessment, error) {
	var resp qualityResponse
	if _, err := decodeAnswer(text, llm.ImageQualitySchema(), &resp); err != nil {
		return nil, err
	}
	out := &QualityAssessment{
		Quality: clamp(*resp.Quality, 0, 10),
		Usable:  *resp.Usable,
		Issues:  []string{},
	}
	for _, issue := range resp.Issues {
		if issue = strings.TrimSpace(issue); issue != "" {
			out.Issues = append(out.Issues, issue)
		}
	}
	return out, nil
}

// decodeAnswer strips fences from an agent answer, checks it against the schema the prompt
// asked for and decodes it into v.
func decodeAnswer(text string, schema llm.ExtractionSchema, v any) (string, error) {
	content := llm.CleanJSONBlock(text)
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return content, &ResponseError{Message: "not a JSON object", Content: content, Cause: err}
	}
	if err := schemas.ValidateJSONString(schema.JSONSchema(), content); err != nil {
		return content, &ResponseError{Message: "answer does not match " + schema.Name, Content: content, Cause: err}
	}
	return content, nil
}

func clean(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "unknown", "n/a", "null", "none", "-", "desconhecido":
		return ""
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
