// Package config provides configuration loading and validation for the catalog pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// DefaultConfigName is looked up under the catalog root when --config is not given.
const DefaultConfigName = "catalog.yaml"

// Adapter types
const (
	AdapterCSV  = "csv"
	AdapterTSV  = "tsv"
	AdapterXLSX = "xlsx"
	AdapterJSON = "json"
	AdapterHTML = "html"
)

// Encoder policies for responsive image variants
const (
	EncoderLossless = "lossless_webp"
	EncoderLossy95  = "lossy_webp_q95"
	EncoderLossy85  = "lossy_webp_q85"
)

// Vector sink kinds
const (
	SinkQdrant   = "qdrant"
	SinkPgVector = "pgvector"
)

// Config represents the pipeline configuration loaded from catalog.yaml (or JSON).
// All fields are optional; missing values use defaults or CLI flags.
type Config struct {
	CatalogRoot         string            `json:"catalog_root,omitempty" yaml:"catalog_root,omitempty"`
	CatalogVersion      string            `json:"catalog_version,omitempty" yaml:"catalog_version,omitempty" validate:"omitempty,semver"`
	Sources             []Source          `json:"sources" yaml:"sources" validate:"dive"`
	CategoryAliases     map[string]string `json:"category_aliases,omitempty" yaml:"category_aliases,omitempty"`
	ManufacturerAliases map[string]string `json:"manufacturer_aliases,omitempty" yaml:"manufacturer_aliases,omitempty"`
	ImageStore          ImageStore        `json:"image_store" yaml:"image_store"`
	Vision              Vision            `json:"vision" yaml:"vision"`
	VectorSink          VectorSink        `json:"vector_sink" yaml:"vector_sink"`
	StrictValidation    bool              `json:"strict_validation,omitempty" yaml:"strict_validation,omitempty"`
	Workers             int               `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0,lte=256"`
	APIKey              string            `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Gemini API key
	DatabaseURL         string            `json:"database_url,omitempty" yaml:"database_url,omitempty"`
}

// Source declares one distributor feed.
type Source struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Code        string `json:"code,omitempty" yaml:"code,omitempty" validate:"omitempty,len=3,alpha"` // 3-letter SKU distributor code
	AdapterType string `json:"adapter_type" yaml:"adapter_type" validate:"required,oneof=csv tsv xlsx json html"`
	InputPath   string `json:"input_path" yaml:"input_path" validate:"required"` // file, directory or glob, relative to the catalog root
	AliasesPath string `json:"aliases_path,omitempty" yaml:"aliases_path,omitempty"`
	ImagesPath  string `json:"images_path,omitempty" yaml:"images_path,omitempty"`
	// Category, when set, is the category every record of this source declares.
	Category      string            `json:"category,omitempty" yaml:"category,omitempty"`
	ColumnMap     map[string]string `json:"column_map,omitempty" yaml:"column_map,omitempty"`
	HTMLSelectors *HTMLSelectors    `json:"html_selectors,omitempty" yaml:"html_selectors,omitempty"`
	// ImageRoles maps an image field name to the role it carries ("panel_image" -> component_panel).
	ImageRoles map[string]string `json:"image_roles,omitempty" yaml:"image_roles,omitempty"`
}

// HTMLSelectors locate a product list inside a saved portal page.
type HTMLSelectors struct {
	Item   string            `json:"item" yaml:"item"`
	Fields map[string]string `json:"fields" yaml:"fields"`
	Image  string            `json:"image,omitempty" yaml:"image,omitempty"`
}

// ImageStore configures the content-addressed store.
type ImageStore struct {
	Path     string            `json:"path,omitempty" yaml:"path,omitempty"`
	Encoders map[string]string `json:"encoders,omitempty" yaml:"encoders,omitempty"`
}

// Vision configures the optional enrichment stage.
type Vision struct {
	Enabled             bool    `json:"enabled" yaml:"enabled"`
	PrimaryAgentID      string  `json:"primary_agent_id,omitempty" yaml:"primary_agent_id,omitempty"`
	FallbackAgentID     string  `json:"fallback_agent_id,omitempty" yaml:"fallback_agent_id,omitempty"`
	QualityAgentID      string  `json:"quality_agent_id,omitempty" yaml:"quality_agent_id,omitempty"`
	MaxCalls            int     `json:"max_calls,omitempty" yaml:"max_calls,omitempty" validate:"gte=0"`
	MaxConcurrentCalls  int     `json:"max_concurrent_calls,omitempty" yaml:"max_concurrent_calls,omitempty" validate:"gte=0"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty" validate:"gte=0,lte=1"`
	RequestsPerSecond   float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty" validate:"gte=0"`
	CallTimeout         string  `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`
	RecordDeadline      string  `json:"record_deadline,omitempty" yaml:"record_deadline,omitempty"`
	PromptVersion       string  `json:"prompt_version,omitempty" yaml:"prompt_version,omitempty"`
	OllamaHost          string  `json:"ollama_host,omitempty" yaml:"ollama_host,omitempty"`
}

// VectorSink configures the optional embedding export.
type VectorSink struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Kind           string `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=qdrant pgvector"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Collection     string `json:"collection,omitempty" yaml:"collection,omitempty"`
	EmbeddingDim   int    `json:"embedding_dim,omitempty" yaml:"embedding_dim,omitempty" validate:"gte=0"`
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	APIKey         string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// LoadConfig loads configuration from a YAML or JSON file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if seen[s.Name] {
			return fmt.Errorf("config error: duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Category != "" {
			if _, ok := types.ParseCategory(s.Category); !ok {
				return fmt.Errorf("config error: source %q declares unknown category %q", s.Name, s.Category)
			}
		}
		if s.AdapterType == AdapterHTML && s.HTMLSelectors != nil && s.HTMLSelectors.Item == "" {
			return fmt.Errorf("config error: source %q html_selectors.item is required when selectors are set", s.Name)
		}
	}

	for raw, canonical := range c.CategoryAliases {
		if _, ok := types.ParseCategory(canonical); !ok {
			return fmt.Errorf("config error: category alias %q maps to unknown category %q", raw, canonical)
		}
	}

	for category, encoder := range c.ImageStore.Encoders {
		if _, ok := types.ParseCategory(category); !ok {
			return fmt.Errorf("config error: image_store.encoders has unknown category %q", category)
		}
		switch encoder {
		case EncoderLossless, EncoderLossy95, EncoderLossy85:
		default:
			return fmt.Errorf("config error: unknown encoder policy %q for %s", encoder, category)
		}
	}

	for _, d := range []string{c.Vision.CallTimeout, c.Vision.RecordDeadline} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config error: invalid duration %q: %w", d, err)
		}
	}

	if c.VectorSink.Enabled && c.VectorSink.Collection == "" {
		return fmt.Errorf("config error: 'vector_sink.collection' is required when the sink is enabled")
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.CatalogRoot == "" {
		result.CatalogRoot = defaults.CatalogRoot
	}
	if result.CatalogVersion == "" {
		result.CatalogVersion = defaults.CatalogVersion
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if len(result.Sources) == 0 {
		result.Sources = defaults.Sources
	}
	if result.ImageStore.Path == "" {
		result.ImageStore.Path = defaults.ImageStore.Path
	}
	if len(result.ImageStore.Encoders) == 0 {
		result.ImageStore.Encoders = defaults.ImageStore.Encoders
	}

	vision := &result.Vision
	if vision.PrimaryAgentID == "" {
		vision.PrimaryAgentID = defaults.Vision.PrimaryAgentID
	}
	if vision.MaxCalls == 0 {
		vision.MaxCalls = defaults.Vision.MaxCalls
	}
	if vision.MaxConcurrentCalls == 0 {
		vision.MaxConcurrentCalls = defaults.Vision.MaxConcurrentCalls
	}
	if vision.ConfidenceThreshold == 0 {
		vision.ConfidenceThreshold = defaults.Vision.ConfidenceThreshold
	}
	if vision.RequestsPerSecond == 0 {
		vision.RequestsPerSecond = defaults.Vision.RequestsPerSecond
	}
	if vision.CallTimeout == "" {
		vision.CallTimeout = defaults.Vision.CallTimeout
	}
	if vision.RecordDeadline == "" {
		vision.RecordDeadline = defaults.Vision.RecordDeadline
	}
	if vision.PromptVersion == "" {
		vision.PromptVersion = defaults.Vision.PromptVersion
	}
	if vision.OllamaHost == "" {
		vision.OllamaHost = defaults.Vision.OllamaHost
	}

	sink := &result.VectorSink
	if sink.Kind == "" {
		sink.Kind = defaults.VectorSink.Kind
	}
	if sink.EmbeddingDim == 0 {
		sink.EmbeddingDim = defaults.VectorSink.EmbeddingDim
	}
	if sink.EmbeddingModel == "" {
		sink.EmbeddingModel = defaults.VectorSink.EmbeddingModel
	}
	if sink.Endpoint == "" {
		sink.Endpoint = defaults.VectorSink.Endpoint
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// Source looks up a source by name.
func (c *Config) Source(name string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// SourceOrder returns the declared position of each source; lower positions win ties.
func (c *Config) SourceOrder() map[string]int {
	order := make(map[string]int, len(c.Sources))
	for i, s := range c.Sources {
		order[s.Name] = i
	}
	return order
}

// EncoderFor returns the encoder policy for a category.
func (c *Config) EncoderFor(category types.Category) string {
	if enc, ok := c.ImageStore.Encoders[string(category)]; ok {
		return enc
	}
	if enc, ok := DefaultEncoders()[string(category)]; ok {
		return enc
	}
	return EncoderLossy85
}

// Path resolves p relative to the catalog root unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.CatalogRoot, p)
}

// ImageStorePath returns the absolute image store directory.
func (c *Config) ImageStorePath() string {
	if c.ImageStore.Path == "" {
		return c.Path("images_store")
	}
	return c.Path(c.ImageStore.Path)
}

// Duration parses a duration option, falling back to def when empty or invalid.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
