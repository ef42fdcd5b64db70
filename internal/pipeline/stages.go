package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yshsolar/catalog-pipeline/internal/consolidate"
	"github.com/yshsolar/catalog-pipeline/internal/imagestore"
	"github.com/yshsolar/catalog-pipeline/internal/index"
	"github.com/yshsolar/catalog-pipeline/internal/ingestion"
	"github.com/yshsolar/catalog-pipeline/internal/normalize"
	"github.com/yshsolar/catalog-pipeline/internal/pipeline/steps"
	"github.com/yshsolar/catalog-pipeline/internal/report"
	"github.com/yshsolar/catalog-pipeline/internal/resolve"
	"github.com/yshsolar/catalog-pipeline/internal/schemas"
	"github.com/yshsolar/catalog-pipeline/internal/types"
	"github.com/yshsolar/catalog-pipeline/internal/validation"
	"github.com/yshsolar/catalog-pipeline/internal/vectorsink"
	"github.com/yshsolar/catalog-pipeline/internal/vision"
)

// Ingest reads every selected source and reports what was found. Raw records are not
// persisted; consolidate re-reads the sources.
func (r *Run) Ingest(ctx context.Context) (*ingestion.Result, []types.Issue, error) {
	r.banner(steps.Ingest)
	issues := report.NewCollector()
	res, err := ingestion.NewIngester(r.cfg.CatalogRoot, r.workers, issues, r.logger).Ingest(ctx, r.sources())
	if err != nil {
		return nil, nil, err
	}

	counts := make(map[string]int)
	for _, f := range res.Files {
		counts[f.Source] += f.Records
	}
	r.printer.PrintCounts("INGESTED RECORDS", counts)
	return res, issues.Issues(), nil
}

// Consolidate ingests, resolves and consolidates, and writes the consolidate snapshot.
func (r *Run) Consolidate(ctx context.Context) (*types.Snapshot, error) {
	issues := report.NewCollector()

	r.banner(steps.Ingest)
	res, err := ingestion.NewIngester(r.cfg.CatalogRoot, r.workers, issues, r.logger).Ingest(ctx, r.sources())
	if err != nil {
		return nil, err
	}

	r.banner(steps.Resolve)
	resolved := resolve.New(r.cfg, r.logger.Named(steps.Resolve)).Resolve(res.Products, issues)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.banner(steps.Consolidate)
	products := consolidate.New(r.cfg, r.logger.Named(steps.Consolidate)).Consolidate(resolved)

	var sources []string
	for _, s := range r.sources() {
		sources = append(sources, s.Name)
	}
	snap := &types.Snapshot{
		Stage:    steps.Consolidate,
		Sources:  sources,
		Products: r.filter(products),
		Issues:   issues.Issues(),
	}
	r.printer.Printf("  %d records → %d products\n", len(res.Products), len(snap.Products))
	return snap, r.save(snap)
}

// Normalize derives typed technical specs and parses prices.
func (r *Run) Normalize(ctx context.Context, in *types.Snapshot) (*types.Snapshot, error) {
	in, err := r.input(steps.Normalize, in)
	if err != nil {
		return nil, err
	}
	r.banner(steps.Normalize)
	issues := collector(in)
	log := r.logger.Named(steps.Normalize)

	warnings := make([][]normalize.Warning, len(in.Products))
	err = forEach(ctx, r.workers, len(in.Products), func(_ context.Context, i int) error {
		warnings[i] = normalize.Apply(&in.Products[i])
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := 0
	for i, ws := range warnings {
		p := &in.Products[i]
		for _, w := range ws {
			total++
			log.Debug("spec not derived",
				zap.String("product", p.ID),
				zap.String("field", w.Field),
				zap.String("input", w.Input))
			msg := w.Message
			if w.Input != "" {
				msg = fmt.Sprintf("%s (input %q)", w.Message, w.Input)
			}
			issues.Addf(w.Kind, steps.Normalize, sourceFile(p), 0, w.Field, p.ID, msg)
		}
	}
	log.Info("normalized", zap.Int("products", len(in.Products)), zap.Int("warnings", total))

	return r.next(steps.Normalize, in, issues)
}

// LinkImages attaches content-addressed image assets and writes missing variants.
func (r *Run) LinkImages(ctx context.Context, in *types.Snapshot) (*types.Snapshot, *imagestore.Stats, error) {
	in, err := r.input(steps.LinkImages, in)
	if err != nil {
		return nil, nil, err
	}
	r.banner(steps.LinkImages)
	issues := collector(in)

	storeRoot, storeDir, err := r.imageStore()
	if err != nil {
		return nil, nil, err
	}
	store := imagestore.NewStore(storeRoot, storeDir, r.logger)
	linker, err := imagestore.NewLinker(r.cfg, store, r.workers, issues, r.logger)
	if err != nil {
		return nil, nil, err
	}
	stats, err := linker.Link(ctx, in.Products)
	if err != nil {
		return nil, nil, err
	}
	r.printer.Printf("  %d images located, %d misses, %d files written\n", stats.Located, stats.Misses, stats.Writes)

	out, err := r.next(steps.LinkImages, in, issues)
	return out, stats, err
}

// Enrich runs the vision agents over product photos. With vision disabled or --no-enrich
// the input passes through unchanged.
func (r *Run) Enrich(ctx context.Context, in *types.Snapshot) (*types.Snapshot, *vision.Stats, error) {
	in, err := r.input(steps.Enrich, in)
	if err != nil {
		return nil, nil, err
	}
	r.banner(steps.Enrich)
	issues := collector(in)

	if r.opts.NoEnrich || r.opts.DryRun || !r.cfg.Vision.Enabled {
		r.printer.Printf("  skipped\n")
		out, err := r.next(steps.Enrich, in, issues)
		return out, &vision.Stats{}, err
	}

	opts, err := r.visionOptions(ctx)
	if err != nil {
		return nil, nil, err
	}
	enricher, err := vision.NewEnricher(r.cfg, *opts, r.workers, issues, r.logger)
	if err != nil {
		return nil, nil, err
	}
	stats, err := enricher.Enrich(ctx, in.Products)
	if err != nil {
		return nil, nil, err
	}
	r.printer.Printf("  %d/%d enriched, %d calls, %d cache hits, %d escalations\n",
		stats.Enriched, stats.Candidates, stats.Calls, stats.CacheHits, stats.Escalations)

	out, err := r.next(steps.Enrich, in, issues)
	return out, stats, err
}

// imageStore returns the root that asset paths are relative to and the store directory.
// Dry runs mirror the store layout inside a scratch directory so nothing under the catalog
// root is written.
func (r *Run) imageStore() (root, dir string, err error) {
	if !r.opts.DryRun {
		return r.cfg.CatalogRoot, r.cfg.ImageStorePath(), nil
	}
	if r.scratch == "" {
		scratch, err := os.MkdirTemp("", "catalog-dry-run-")
		if err != nil {
			return "", "", fmt.Errorf("failed to create scratch directory: %w", err)
		}
		r.scratch = scratch
	}
	rel, err := filepath.Rel(r.cfg.CatalogRoot, r.cfg.ImageStorePath())
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		rel = "images_store"
	}
	return r.scratch, filepath.Join(r.scratch, rel), nil
}

func (r *Run) visionOptions(ctx context.Context) (*vision.Options, error) {
	if r.opts.Vision != nil {
		return r.opts.Vision, nil
	}
	client, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	v := r.cfg.Vision
	providers := vision.Providers{
		LLM:           client,
		OllamaHost:    v.OllamaHost,
		HTTPClient:    r.opts.HTTPClient,
		PromptVersion: v.PromptVersion,
	}

	opts := &vision.Options{}
	if opts.Primary, err = providers.Agent(v.PrimaryAgentID); err != nil {
		return nil, err
	}
	if v.FallbackAgentID != "" {
		if opts.Fallback, err = providers.Agent(v.FallbackAgentID); err != nil {
			return nil, err
		}
	}
	if v.QualityAgentID != "" {
		if opts.Quality, err = providers.QualityAgent(v.QualityAgentID); err != nil {
			return nil, err
		}
	}
	if opts.Cache, err = vision.OpenCache(filepath.Join(r.cfg.CatalogRoot, "cache", "vision")); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks every product against its category schema.
func (r *Run) Validate(ctx context.Context, in *types.Snapshot) (*types.Snapshot, *schemas.Registry, error) {
	in, err := r.input(steps.Validate, in)
	if err != nil {
		return nil, nil, err
	}
	r.banner(steps.Validate)
	issues := collector(in)

	registry, err := r.registry()
	if err != nil {
		return nil, nil, err
	}
	stats, err := validation.NewValidator(registry, r.strict(), r.workers, issues, r.logger).Validate(ctx, in.Products)
	if err != nil {
		return nil, nil, err
	}
	r.printer.Printf("  %d valid, %d quarantined, %d rejected\n", stats.Valid, stats.Quarantined, stats.Rejected)

	out, err := r.next(steps.Validate, in, issues)
	return out, registry, err
}

func (r *Run) registry() (*schemas.Registry, error) {
	registry, err := schemas.LoadRegistry(filepath.Join(r.cfg.CatalogRoot, "schemas"))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("loaded schemas", zap.String("source", registry.Source()))
	return registry, nil
}

func (r *Run) strict() bool {
	return r.opts.Strict || r.cfg.StrictValidation
}

// Index publishes the unified catalog and, when enabled, exports vectors.
func (r *Run) Index(ctx context.Context, in *types.Snapshot, registry *schemas.Registry) (*Summary, error) {
	in, err := r.input(steps.Index, in)
	if err != nil {
		return nil, err
	}
	r.banner(steps.Index)

	if registry == nil {
		if registry, err = r.registry(); err != nil {
			return nil, err
		}
	}

	generatedAt := r.now().UTC().Format(time.RFC3339)
	ix := index.NewIndexer(r.cfg.CatalogRoot, r.cfg.CatalogVersion, registry.Hashes(), r.logger)
	out, err := ix.Build(in.Products, in.Issues, in.Sources, generatedAt)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:       r.ID,
		Products:    len(in.Products),
		Valid:       out.Report.Valid,
		Quarantined: out.Report.Quarantined,
		Rejected:    out.Report.Rejected,
		Issues:      len(in.Issues),
		Report:      &out.Report,
		Index:       &out.Index,
	}

	if r.opts.DryRun {
		r.printer.Printf("  dry run: %d files not written\n", len(out.Files))
	} else {
		if err := ix.Publish(out, r.ID); err != nil {
			return nil, err
		}
		summary.Published = true
	}

	if r.cfg.VectorSink.Enabled && !r.opts.DryRun {
		n, err := r.exportVectors(ctx, in.Products)
		if err != nil {
			return nil, err
		}
		summary.Vectors = n
	}

	r.printer.PrintMasterIndex(summary.Index)
	r.printer.PrintIntegritySummary(summary.Report)
	return summary, nil
}

func (r *Run) exportVectors(ctx context.Context, products []types.ConsolidatedProduct) (int, error) {
	records, err := index.BuildVectorRecords(products)
	if err != nil {
		return 0, err
	}

	embedder := r.opts.Embedder
	if embedder == nil {
		client, err := r.client(ctx)
		if err != nil {
			return 0, err
		}
		if client == nil {
			return 0, fmt.Errorf("vector export needs an embedding provider (set GEMINI_API_KEY)")
		}
		embedder = vectorsink.NewGeminiEmbedder(client, r.cfg.VectorSink.EmbeddingDim)
	}

	sink := r.opts.Sink
	if sink == nil {
		sink, err = vectorsink.New(ctx, r.cfg.VectorSink, r.cfg.DatabaseURL)
		if err != nil {
			return 0, err
		}
		defer func() { _ = sink.Close() }()
	}
	return index.ExportVectors(ctx, records, embedder, sink, index.DefaultBatchSize, r.logger.Named("vectors"))
}

// RunAll runs every stage in order, handing snapshots along in memory.
func (r *Run) RunAll(ctx context.Context) (*Summary, error) {
	snap, err := r.Consolidate(ctx)
	if err != nil {
		return nil, fmt.Errorf("consolidation failed: %w", err)
	}
	if snap, err = r.Normalize(ctx, snap); err != nil {
		return nil, fmt.Errorf("normalization failed: %w", err)
	}
	if snap, _, err = r.LinkImages(ctx, snap); err != nil {
		return nil, fmt.Errorf("image linking failed: %w", err)
	}
	if snap, _, err = r.Enrich(ctx, snap); err != nil {
		return nil, fmt.Errorf("enrichment failed: %w", err)
	}
	snap, registry, err := r.Validate(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	summary, err := r.Index(ctx, snap, registry)
	if err != nil {
		return nil, fmt.Errorf("indexing failed: %w", err)
	}
	return summary, nil
}

// input returns in, or loads the snapshot the step reads from disk.
func (r *Run) input(step string, in *types.Snapshot) (*types.Snapshot, error) {
	if in != nil {
		return in, nil
	}
	return r.load(step)
}

// next stamps the stage's products and issues into a snapshot and saves it.
func (r *Run) next(step string, in *types.Snapshot, issues *report.Collector) (*types.Snapshot, error) {
	snap := &types.Snapshot{
		Stage:    step,
		Sources:  in.Sources,
		Products: in.Products,
		Issues:   issues.Issues(),
	}
	return snap, r.save(snap)
}

func sourceFile(p *types.ConsolidatedProduct) string {
	files := make([]string, 0, len(p.Provenance))
	for _, e := range p.Provenance {
		if e.SourceFile != "" {
			files = append(files, e.SourceFile)
		}
	}
	if len(files) == 0 {
		return ""
	}
	sort.Strings(files)
	return files[0]
}
