// Package pipeline provides the high-level orchestration of the catalog stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/fsutil"
	"github.com/yshsolar/catalog-pipeline/internal/llm"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/observability"
	"github.com/yshsolar/catalog-pipeline/internal/pipeline/steps"
	"github.com/yshsolar/catalog-pipeline/internal/report"
	"github.com/yshsolar/catalog-pipeline/internal/types"
	"github.com/yshsolar/catalog-pipeline/internal/vectorsink"
	"github.com/yshsolar/catalog-pipeline/internal/vision"
)

// RunOptions holds configuration for running the pipeline
type RunOptions struct {
	Config     *config.Config
	Sources    []string // only these sources are ingested when set
	Categories []string // only these categories are kept when set
	Strict     bool
	NoEnrich   bool
	DryRun     bool
	Workers    int
	Logger     *zap.Logger
	Out        io.Writer

	// Providers and sinks are built from the config unless set here.
	LLM        llm.Client
	Vision     *vision.Options
	Embedder   vectorsink.Embedder
	Sink       vectorsink.Sink
	HTTPClient *http.Client
	Now        func() time.Time
}

// Summary is what a run reports back to the CLI.
type Summary struct {
	RunID       string
	Products    int
	Valid       int
	Quarantined int
	Rejected    int
	Issues      int
	Published   bool
	Vectors     int
	Report      *types.IntegrityReport
	Index       *types.MasterIndex
}

// Held reports whether any product failed validation.
func (s *Summary) Held() bool {
	return s.Quarantined+s.Rejected > 0
}

// Run owns the state of one pipeline invocation.
type Run struct {
	ID      string
	cfg     *config.Config
	opts    RunOptions
	workers int
	logger  *zap.Logger
	printer *observability.Printer
	now     func() time.Time
	llm     llm.Client
	scratch string
}

// FilterError reports a --sources or --categories value that names nothing known.
type FilterError struct {
	Kind  string // "source" or "category"
	Value string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

// NewRun validates the options and prepares a run.
func NewRun(opts RunOptions) (*Run, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("pipeline needs a configuration")
	}
	if opts.Config.CatalogRoot == "" {
		return nil, fmt.Errorf("catalog root is required")
	}
	for _, name := range opts.Sources {
		if _, ok := opts.Config.Source(name); !ok {
			return nil, &FilterError{Kind: "source", Value: name}
		}
	}
	for _, c := range opts.Categories {
		if _, ok := types.ParseCategory(c); !ok {
			return nil, &FilterError{Kind: "category", Value: c}
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = opts.Config.Workers
	}
	if workers <= 0 {
		workers = 4
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Run{
		ID:      uuid.NewString(),
		cfg:     opts.Config,
		opts:    opts,
		workers: workers,
		logger:  logging.OrNop(opts.Logger),
		printer: observability.NewPrinter(out),
		now:     now,
		llm:     opts.LLM,
	}, nil
}

// Close releases provider clients and scratch files opened by the run.
func (r *Run) Close() error {
	var errs []error
	if r.scratch != "" {
		errs = append(errs, os.RemoveAll(r.scratch))
		r.scratch = ""
	}
	if r.llm != nil && r.opts.LLM == nil {
		errs = append(errs, r.llm.Close())
	}
	return errors.Join(errs...)
}

func (r *Run) banner(step string) {
	def, err := steps.Get(step)
	if err != nil {
		return
	}
	r.printer.PrintStage(def.Number, steps.Total, def.Title)
}

// sources returns the configured sources, filtered by --sources.
func (r *Run) sources() []config.Source {
	if len(r.opts.Sources) == 0 {
		return r.cfg.Sources
	}
	var out []config.Source
	for _, s := range r.cfg.Sources {
		if slices.Contains(r.opts.Sources, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// filter drops products outside --categories.
func (r *Run) filter(products []types.ConsolidatedProduct) []types.ConsolidatedProduct {
	if len(r.opts.Categories) == 0 {
		return products
	}
	out := products[:0:0]
	for _, p := range products {
		if slices.Contains(r.opts.Categories, string(p.Category)) {
			out = append(out, p)
		}
	}
	return out
}

// save writes the snapshot of a stage unless this is a dry run.
func (r *Run) save(snap *types.Snapshot) error {
	snap.RunID = r.ID
	snap.Issues = issuesOrEmpty(snap.Issues)
	if r.opts.DryRun {
		return nil
	}
	path := steps.SnapshotPath(r.cfg.CatalogRoot, snap.Stage)
	if err := fsutil.WriteJSONAtomic(path, snap); err != nil {
		return fmt.Errorf("failed to write %s snapshot: %w", snap.Stage, err)
	}
	return nil
}

// load reads the input snapshot of step: the newest optional dependency that is not skipped,
// else the required one.
func (r *Run) load(step string) (*types.Snapshot, error) {
	completed := func(s string) bool { return fsutil.Exists(steps.SnapshotPath(r.cfg.CatalogRoot, s)) }
	if err := steps.ValidateDependencies(step, completed); err != nil {
		r.logger.Warn("step is blocked",
			zap.String("step", step),
			zap.Strings("available", steps.GetAvailableSteps(completed)),
			zap.Strings("blocked", steps.GetBlockedSteps(completed)))
		return nil, err
	}
	def, err := steps.Get(step)
	if err != nil {
		return nil, err
	}

	input := def.Dependencies[0]
	for _, opt := range def.Optional {
		if opt == steps.Enrich && r.opts.NoEnrich {
			continue
		}
		if newer(steps.SnapshotPath(r.cfg.CatalogRoot, opt), steps.SnapshotPath(r.cfg.CatalogRoot, input)) {
			input = opt
		}
	}

	var snap types.Snapshot
	if err := fsutil.ReadJSON(steps.SnapshotPath(r.cfg.CatalogRoot, input), &snap); err != nil {
		return nil, err
	}
	snap.Products = r.filter(snap.Products)
	r.logger.Debug("loaded snapshot", zap.String("stage", input), zap.Int("products", len(snap.Products)))
	return &snap, nil
}

// newer reports whether a exists and is at least as recent as b.
func newer(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	if err != nil {
		return false
	}
	return !ai.ModTime().Before(bi.ModTime())
}

func (r *Run) client(ctx context.Context) (llm.Client, error) {
	if r.llm != nil {
		return r.llm, nil
	}
	if r.cfg.APIKey == "" {
		return nil, nil
	}
	cfg := llm.DefaultConfig().WithEmbeddingModel(r.cfg.VectorSink.EmbeddingModel)
	client, err := llm.NewClient(ctx, cfg, r.cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	r.llm = client
	return client, nil
}

func issuesOrEmpty(issues []types.Issue) []types.Issue {
	if issues == nil {
		return []types.Issue{}
	}
	return issues
}

// collector seeds a collector with the issues carried by snap.
func collector(snap *types.Snapshot) *report.Collector {
	return report.NewCollector(snap.Issues...)
}
