package vision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/consolidate"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/report"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const stage = "enrich"

// SourcePrefix starts the source_name of provenance entries added by an agent.
const SourcePrefix = "vision:"

// Options selects the agents and cache of an Enricher. Fallback, Quality and Cache are optional.
type Options struct {
	Primary  Agent
	Fallback Agent
	Quality  QualityAgent
	Cache    *Cache
}

// Stats summarizes one Enrich call.
type Stats struct {
	Candidates      int   `json:"candidates"`
	Enriched        int   `json:"enriched"`
	CacheHits       int64 `json:"cache_hits"`
	Calls           int64 `json:"calls"`
	Escalations     int   `json:"escalations"`
	Recaptures      int   `json:"needs_recapture"`
	Failures        int   `json:"failures"`
	BudgetExhausted bool  `json:"budget_exhausted"`
}

// Enricher runs the vision stage over products that have a primary image.
type Enricher struct {
	root      string
	opts      Options
	version   string
	threshold float64
	maxCalls  int64
	callTO    time.Duration
	recordTO  time.Duration
	workers   int
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	issues    *report.Collector
	logger    *zap.Logger

	calls     atomic.Int64
	hits      atomic.Int64
	exhausted atomic.Bool
	warnOnce  sync.Once
}

// NewEnricher builds an enricher from the vision section of cfg.
func NewEnricher(cfg *config.Config, opts Options, workers int, issues *report.Collector, logger *zap.Logger) (*Enricher, error) {
	if opts.Primary == nil {
		return nil, fmt.Errorf("vision enrichment needs a primary agent")
	}
	v := cfg.Vision
	if workers < 1 {
		workers = 1
	}
	concurrent := v.MaxConcurrentCalls
	if concurrent < 1 {
		concurrent = 1
	}
	limit := rate.Inf
	if v.RequestsPerSecond > 0 {
		limit = rate.Limit(v.RequestsPerSecond)
	}
	version := v.PromptVersion
	if version == "" {
		version = "v1"
	}
	return &Enricher{
		root:      cfg.CatalogRoot,
		opts:      opts,
		version:   version,
		threshold: v.ConfidenceThreshold,
		maxCalls:  int64(v.MaxCalls),
		callTO:    config.Duration(v.CallTimeout, 60*time.Second),
		recordTO:  config.Duration(v.RecordDeadline, 3*time.Minute),
		workers:   workers,
		sem:       semaphore.NewWeighted(int64(concurrent)),
		limiter:   rate.NewLimiter(limit, 1),
		issues:    issues,
		logger:    logging.OrNop(logger).Named(stage),
	}, nil
}

type outcome struct {
	enriched  bool
	escalated bool
	recapture bool
	failed    bool
}

// Enrich analyzes the primary image of every product and merges the results in place. Agent
// failures become EnrichmentError issues and exhausting max_calls stops further calls with a
// BudgetWarning; neither is returned. Only cancellation and a failed cache index write are errors.
func (e *Enricher) Enrich(ctx context.Context, products []types.ConsolidatedProduct) (stats *Stats, err error) {
	stats = &Stats{}
	callsBefore, hitsBefore := e.calls.Load(), e.hits.Load()
	defer func() {
		if ferr := e.opts.Cache.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	outcomes := make([]outcome, len(products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range products {
		if products[i].PrimaryImage() == nil {
			continue
		}
		stats.Candidates++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := e.enrichOne(gctx, &products[i])
			outcomes[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("vision enrichment stopped: %w", err)
	}

	for _, o := range outcomes {
		if o.enriched {
			stats.Enriched++
		}
		if o.escalated {
			stats.Escalations++
		}
		if o.recapture {
			stats.Recaptures++
		}
		if o.failed {
			stats.Failures++
		}
	}
	stats.Calls = e.calls.Load() - callsBefore
	stats.CacheHits = e.hits.Load() - hitsBefore
	stats.BudgetExhausted = e.exhausted.Load()

	e.logger.Info("enriched products",
		zap.Int("candidates", stats.Candidates),
		zap.Int("enriched", stats.Enriched),
		zap.Int64("calls", stats.Calls),
		zap.Int64("cache_hits", stats.CacheHits),
		zap.Int("escalations", stats.Escalations),
		zap.Int("needs_recapture", stats.Recaptures))
	return stats, nil
}

func (e *Enricher) enrichOne(ctx context.Context, p *types.ConsolidatedProduct) (outcome, error) {
	var out outcome
	img := p.PrimaryImage()
	data, err := e.readImage(img)
	if err != nil {
		e.fail(p, "", "cannot read primary image", err)
		out.failed = true
		return out, nil
	}

	rctx, cancel := context.WithTimeout(ctx, e.recordTO)
	defer cancel()

	if e.opts.Quality != nil {
		q, err := e.assess(rctx, p, img.ContentHash, data)
		if cerr := canceled(ctx, err); cerr != nil {
			return out, cerr
		}
		switch {
		case err != nil:
			if !errors.Is(err, ErrBudgetExhausted) {
				e.fail(p, e.opts.Quality.ID(), "quality gate failed", err)
				out.failed = true
			}
		case !q.Usable:
			p.AddFlag(types.FlagNeedsRecapture)
			p.Enrichment = &types.Enrichment{
				AgentID:           e.opts.Quality.ID(),
				PromptVersion:     e.version,
				ImageQualityScore: q.Quality,
				QualityIssues:     q.Issues,
				ContentHash:       img.ContentHash,
			}
			out.recapture = true
			return out, nil
		}
	}

	best, bestAgent, err := e.analyze(rctx, e.opts.Primary, p, img.ContentHash, data)
	if rerr := canceled(ctx, err); rerr != nil {
		return out, rerr
	}
	if err != nil && !errors.Is(err, ErrBudgetExhausted) {
		e.fail(p, e.opts.Primary.ID(), "primary agent failed", err)
		out.failed = true
	}

	if e.opts.Fallback != nil && (best == nil || best.Confidence < e.threshold) && !errors.Is(err, ErrBudgetExhausted) {
		alt, _, ferr := e.analyze(rctx, e.opts.Fallback, p, img.ContentHash, data)
		if rerr := canceled(ctx, ferr); rerr != nil {
			return out, rerr
		}
		switch {
		case ferr != nil:
			if !errors.Is(ferr, ErrBudgetExhausted) {
				e.fail(p, e.opts.Fallback.ID(), "fallback agent failed", ferr)
				out.failed = true
			}
		case best == nil || alt.Confidence > best.Confidence:
			best, bestAgent = alt, e.opts.Fallback.ID()
			out.escalated = true
		}
	}
	if best == nil {
		return out, nil
	}

	Merge(p, best, bestAgent, e.version, img.ContentHash)
	if p.Enrichment != nil {
		p.Enrichment.Escalated = out.escalated
	}
	out.enriched = true
	return out, nil
}

// canceled returns the run context's error when a failed call was caused by cancellation. A
// record deadline or an agent error yields nil.
func canceled(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return ctx.Err()
}

func (e *Enricher) assess(ctx context.Context, p *types.ConsolidatedProduct, hash string, image []byte) (*QualityAssessment, error) {
	agent := e.opts.Quality
	key := CacheKey{ContentHash: hash, Category: p.Category, AgentID: agent.ID(), PromptVersion: qualityPrompt + "-" + e.version}
	if entry, ok := e.opts.Cache.Get(key); ok && entry.Quality != nil {
		e.hits.Add(1)
		return entry.Quality, nil
	}
	var q *QualityAssessment
	err := e.call(ctx, func(cctx context.Context) error {
		var err error
		q, err = agent.Assess(cctx, image, p.Category)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := e.opts.Cache.Put(key, CacheEntry{Quality: q}); err != nil {
		return nil, err
	}
	return q, nil
}

func (e *Enricher) analyze(ctx context.Context, agent Agent, p *types.ConsolidatedProduct, hash string, image []byte) (*ExtractionResult, string, error) {
	key := CacheKey{ContentHash: hash, Category: p.Category, AgentID: agent.ID(), PromptVersion: e.version}
	if entry, ok := e.opts.Cache.Get(key); ok && entry.Extraction != nil {
		e.hits.Add(1)
		return entry.Extraction, agent.ID(), nil
	}
	var r *ExtractionResult
	err := e.call(ctx, func(cctx context.Context) error {
		var err error
		r, err = agent.Analyze(cctx, image, p.Category)
		return err
	})
	if err != nil {
		return nil, agent.ID(), err
	}
	if err := e.opts.Cache.Put(key, CacheEntry{Extraction: r}); err != nil {
		return nil, agent.ID(), err
	}
	return r, agent.ID(), nil
}

// call spends one unit of budget and runs fn under the concurrency semaphore, the rate limiter
// and the per-call timeout.
func (e *Enricher) call(ctx context.Context, fn func(context.Context) error) error {
	if !e.reserve() {
		return ErrBudgetExhausted
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, e.callTO)
	defer cancel()
	return fn(cctx)
}

func (e *Enricher) reserve() bool {
	if e.maxCalls <= 0 {
		e.calls.Add(1)
		return true
	}
	for {
		n := e.calls.Load()
		if n >= e.maxCalls {
			e.warnOnce.Do(func() {
				e.exhausted.Store(true)
				msg := fmt.Sprintf("vision call budget of %d exhausted; remaining products are not enriched", e.maxCalls)
				e.issues.Addf(types.KindBudget, stage, "", 0, "", "", msg)
				e.logger.Warn(msg)
			})
			return false
		}
		if e.calls.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (e *Enricher) readImage(img *types.ImageAsset) ([]byte, error) {
	for _, name := range []string{types.VariantLarge, types.VariantOriginal} {
		rel, ok := img.Variants[name]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no readable variant for image %s", img.ContentHash)
}

func (e *Enricher) fail(p *types.ConsolidatedProduct, agentID, msg string, cause error) {
	err := &EnrichmentError{ProductID: p.ID, AgentID: agentID, Message: msg, Cause: cause}
	file := ""
	if len(p.Provenance) > 0 {
		file = p.Provenance[0].SourceFile
	}
	e.issues.Addf(types.KindEnrichment, stage, file, 0, "", p.ID, err.Error())
	e.logger.Debug("enrichment failed", zap.String("product", p.ID), zap.Error(err))
}

// Merge folds an extraction into p at Extracted precedence: values only fill nulls and every
// conflicting distributor value stays, recorded as shadowed on the vision provenance entry.
func Merge(p *types.ConsolidatedProduct, r *ExtractionResult, agentID, version, contentHash string) {
	m := consolidate.NewMerger(p)
	entry := m.Begin(types.ProvenanceEntry{
		SourceName: SourcePrefix + agentID,
		SourceID:   contentHash,
	})
	m.OfferString(entry, consolidate.FieldManufacturer, r.Manufacturer, types.PrecedenceExtracted)
	m.OfferString(entry, consolidate.FieldModel, r.Model, types.PrecedenceExtracted)
	m.OfferCertifications(entry, r.Certifications)

	p.Enrichment = &types.Enrichment{
		AgentID:           agentID,
		PromptVersion:     version,
		Manufacturer:      r.Manufacturer,
		Model:             r.Model,
		VisibleText:       r.VisibleText,
		Certifications:    r.Certifications,
		ImageQualityScore: r.ImageQualityScore,
		Confidence:        r.Confidence,
		ContentHash:       contentHash,
	}
}
