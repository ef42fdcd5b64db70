package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshsolar/catalog-pipeline/internal/types"
)

func TestLoadConfig_ValidYAML(t *testing.T) {
	content := `
catalog_version: 1.2.0
workers: 8
strict_validation: true
sources:
  - name: fotus
    code: FTS
    adapter_type: json
    input_path: raw/fotus
    aliases_path: raw/fotus/kit_images.csv
  - name: neosolar
    adapter_type: csv
    input_path: raw/neosolar/*.csv
    column_map:
      Produto: name
      Preço: price
manufacturer_aliases:
  lon gi: LONGi
vision:
  enabled: true
  max_calls: 10
  confidence_threshold: 0.8
vector_sink:
  enabled: true
  kind: qdrant
  collection: ysh_catalog
  embedding_dim: 768
`
	tmpFile := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "1.2.0", cfg.CatalogVersion)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.StrictValidation)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "FTS", cfg.Sources[0].Code)
	assert.Equal(t, "name", cfg.Sources[1].ColumnMap["Produto"])
	assert.Equal(t, "LONGi", cfg.ManufacturerAliases["lon gi"])
	assert.True(t, cfg.Vision.Enabled)
	assert.Equal(t, 0.8, cfg.Vision.ConfidenceThreshold)
	assert.Equal(t, "ysh_catalog", cfg.VectorSink.Collection)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{
		"workers": 2,
		"sources": [{"name": "solfacil", "adapter_type": "html", "input_path": "raw/solfacil"}]
	}`

	tmpFile := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, AdapterHTML, cfg.Sources[0].AdapterType)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{ invalid json }`), 0644))

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("sources: [unterminated"), 0644))

	_, err := LoadConfig(tmpFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/catalog.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Sources: []Source{{Name: "a", AdapterType: AdapterCSV, InputPath: "raw/a"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(_ *Config) {}, ""},
		{"missing adapter type", func(c *Config) { c.Sources[0].AdapterType = "" }, "AdapterType"},
		{"unknown adapter type", func(c *Config) { c.Sources[0].AdapterType = "pdf" }, "AdapterType"},
		{"bad code length", func(c *Config) { c.Sources[0].Code = "ABCD" }, "Code"},
		{"duplicate source", func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }, "duplicate source"},
		{"unknown source category", func(c *Config) { c.Sources[0].Category = "solar" }, "unknown category"},
		{"bad category alias", func(c *Config) { c.CategoryAliases = map[string]string{"x": "nope"} }, "category alias"},
		{"bad encoder", func(c *Config) { c.ImageStore.Encoders = map[string]string{"panel": "gif"} }, "encoder policy"},
		{"bad encoder category", func(c *Config) { c.ImageStore.Encoders = map[string]string{"solar": EncoderLossless} }, "unknown category"},
		{"bad duration", func(c *Config) { c.Vision.CallTimeout = "soon" }, "invalid duration"},
		{"threshold out of range", func(c *Config) { c.Vision.ConfidenceThreshold = 1.5 }, "ConfidenceThreshold"},
		{"sink without collection", func(c *Config) { c.VectorSink.Enabled = true }, "collection"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "Workers"},
		{"html selectors without item", func(c *Config) {
			c.Sources[0].AdapterType = AdapterHTML
			c.Sources[0].HTMLSelectors = &HTMLSelectors{Fields: map[string]string{"name": "h2"}}
		}, "html_selectors.item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{Workers: 16, Vision: Vision{MaxCalls: 3}}
	merged := cfg.MergeWithDefaults(Defaults("/catalog"))

	assert.Equal(t, "/catalog", merged.CatalogRoot)
	assert.Equal(t, 16, merged.Workers, "explicit value wins")
	assert.Equal(t, 3, merged.Vision.MaxCalls)
	assert.Equal(t, 0.7, merged.Vision.ConfidenceThreshold)
	assert.Equal(t, "1.0.0", merged.CatalogVersion)
	assert.Equal(t, "images_store", merged.ImageStore.Path)
	assert.Equal(t, 768, merged.VectorSink.EmbeddingDim)

	// Original untouched
	assert.Equal(t, "", cfg.CatalogRoot)
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults("/catalog")
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Workers)
}

func TestEncoderFor(t *testing.T) {
	cfg := Config{ImageStore: ImageStore{Encoders: map[string]string{"panel": EncoderLossless}}}
	assert.Equal(t, EncoderLossless, cfg.EncoderFor(types.CategoryPanel))
	assert.Equal(t, EncoderLossy95, cfg.EncoderFor(types.CategoryInverter))
	assert.Equal(t, EncoderLossless, cfg.EncoderFor(types.CategoryStructure))
}

func TestPathHelpers(t *testing.T) {
	cfg := Config{CatalogRoot: "/catalog"}
	assert.Equal(t, "/catalog/raw/a", cfg.Path("raw/a"))
	assert.Equal(t, "/abs/x", cfg.Path("/abs/x"))
	assert.Equal(t, "/catalog/images_store", cfg.ImageStorePath())

	cfg.ImageStore.Path = "/mnt/images"
	assert.Equal(t, "/mnt/images", cfg.ImageStorePath())
}

func TestSourceOrder(t *testing.T) {
	cfg := Config{Sources: []Source{{Name: "b"}, {Name: "a"}}}
	order := cfg.SourceOrder()
	assert.Equal(t, 0, order["b"])
	assert.Equal(t, 1, order["a"])

	s, ok := cfg.Source("a")
	assert.True(t, ok)
	assert.Equal(t, "a", s.Name)
	_, ok = cfg.Source("zzz")
	assert.False(t, ok)
}
