package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/fsutil"
	defaults "github.com/yshsolar/catalog-pipeline/schemas"
)

const sampleHeader = `# Catalog pipeline configuration.
# Sources are merged in the order listed here when two of them carry a value of the same
# precedence. Secrets (GEMINI_API_KEY, DATABASE_URL, QDRANT_API_KEY) are read from the
# environment or a .env file.
`

// sampleConfig is the catalog.yaml written by init.
func sampleConfig() config.Config {
	return config.Config{
		CatalogVersion: "1.0.0",
		Sources: []config.Source{
			{Name: "neosolar", Code: "NEO", AdapterType: config.AdapterJSON, InputPath: "raw/neosolar"},
			{Name: "aldo", Code: "ALD", AdapterType: config.AdapterCSV, InputPath: "raw/aldo", AliasesPath: "raw/aldo/image_aliases.csv"},
			{Name: "fotus", Code: "FOT", AdapterType: config.AdapterXLSX, InputPath: "raw/fotus/*.xlsx", Category: "kit"},
		},
		ManufacturerAliases: map[string]string{"lon gi": "LONGi"},
		ImageStore: config.ImageStore{
			Path:     "images_store",
			Encoders: config.DefaultEncoders(),
		},
		Vision: config.Vision{
			PrimaryAgentID:      "ollama:llava",
			FallbackAgentID:     "gemini",
			MaxCalls:            500,
			ConfidenceThreshold: 0.7,
			PromptVersion:       "v1",
		},
		VectorSink: config.VectorSink{
			Kind:           config.SinkQdrant,
			Collection:     "solar_catalog",
			EmbeddingDim:   768,
			EmbeddingModel: "text-embedding-004",
		},
	}
}

func newInitCmd(g *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default category schemas and a sample catalog.yaml",
		Long:  "Creates <catalog-root>/schemas with the default category JSON-Schemas and a sample catalog.yaml. Existing files are kept unless --force is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := filepath.Abs(g.catalogRoot)
			if err != nil {
				return infrastructure(fmt.Errorf("invalid catalog root: %w", err))
			}
			out := cmd.OutOrStdout()

			written, err := defaults.WriteDefaults(filepath.Join(root, "schemas"), force)
			if err != nil {
				return infrastructure(err)
			}
			for _, name := range written {
				_, _ = fmt.Fprintf(out, "wrote schemas/%s\n", name)
			}

			path := filepath.Join(root, config.DefaultConfigName)
			if fsutil.Exists(path) && !force {
				_, _ = fmt.Fprintf(out, "kept existing %s\n", config.DefaultConfigName)
				return nil
			}
			data, err := yaml.Marshal(sampleConfig())
			if err != nil {
				return infrastructure(fmt.Errorf("failed to render sample config: %w", err))
			}
			changed, err := fsutil.WriteIfChanged(path, append([]byte(sampleHeader), data...))
			if err != nil {
				return infrastructure(err)
			}
			if !changed {
				_, _ = fmt.Fprintf(out, "%s is up to date\n", config.DefaultConfigName)
				return nil
			}
			_, _ = fmt.Fprintf(out, "wrote %s\n", config.DefaultConfigName)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing schemas and config")
	return cmd
}
