package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/fsutil"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/pipeline"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	catalogRoot string
	configPath  string
	sources     []string
	categories  []string
	strict      bool
	workers     int
	noEnrich    bool
	dryRun      bool
	verbose     bool
}

func (g *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&g.catalogRoot, "catalog-root", ".", "Catalog root holding raw/, schemas/, work/ and unified/")
	f.StringVar(&g.configPath, "config", "", "Path to catalog.yaml or .json (default <catalog-root>/catalog.yaml)")
	f.StringSliceVar(&g.sources, "sources", nil, "Only ingest these sources (comma separated)")
	f.StringSliceVar(&g.categories, "categories", nil, "Only keep these categories (comma separated)")
	f.BoolVar(&g.strict, "strict", false, "Reject products that fail validation and exit with status 2")
	f.IntVar(&g.workers, "workers", 0, "Worker goroutines per stage (default from config, else 4)")
	f.BoolVar(&g.noEnrich, "no-enrich", false, "Skip the vision enrichment stage")
	f.BoolVar(&g.dryRun, "dry-run", false, "Run every stage without writing snapshots, images or the unified catalog")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "Print debug logs")
}

// loadConfig reads the catalog configuration and applies flag overrides. Only flags that were
// set explicitly override the file.
func (g *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	root, err := filepath.Abs(g.catalogRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog root: %w", err)
	}

	path := g.configPath
	if path == "" {
		path = filepath.Join(root, config.DefaultConfigName)
		if !fsutil.Exists(path) {
			return nil, fmt.Errorf("no configuration at %s (run 'catalog_agent init' or pass --config)", path)
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("catalog-root") || cfg.CatalogRoot == "" {
		cfg.CatalogRoot = root
	}
	if cmd.Flags().Changed("strict") {
		cfg.StrictValidation = g.strict
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = g.workers
	}

	merged := cfg.MergeWithDefaults(config.Defaults(cfg.CatalogRoot))
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if len(merged.Sources) == 0 {
		return nil, fmt.Errorf("config error: no sources configured in %s", path)
	}
	return &merged, nil
}

// newRun loads the configuration and prepares a pipeline run.
func (g *globalOptions) newRun(cmd *cobra.Command) (*pipeline.Run, *config.Config, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(g.verbose)
	if err != nil {
		return nil, nil, err
	}

	run, err := pipeline.NewRun(pipeline.RunOptions{
		Config:     cfg,
		Sources:    g.sources,
		Categories: g.categories,
		Strict:     cfg.StrictValidation,
		NoEnrich:   g.noEnrich,
		DryRun:     g.dryRun,
		Workers:    cfg.Workers,
		Logger:     logger,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	if g.verbose {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run %s, catalog root %s\n", run.ID, cfg.CatalogRoot)
	}
	return run, cfg, nil
}
