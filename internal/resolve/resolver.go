package resolve

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/normalize"
	"github.com/yshsolar/catalog-pipeline/internal/report"
	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const stage = "resolve"

// Folded raw field keys that carry identity information.
var (
	categoryKeys     = []string{"category", "categoria", "tipo_produto", "tipo", "type", "product_type"}
	manufacturerKeys = []string{"manufacturer", "fabricante", "marca", "brand"}
	modelKeys        = []string{"model", "modelo", "part_number", "modelo_fabricante"}
)

// Resolver assigns category, canonical manufacturer, model, power bucket and fingerprint to
// raw records.
type Resolver struct {
	categories    *CategoryResolver
	manufacturers *ManufacturerResolver
	sources       map[string]config.Source
	logger        *zap.Logger
}

// New creates a resolver from the configured alias tables and sources.
func New(cfg *config.Config, logger *zap.Logger) *Resolver {
	sources := make(map[string]config.Source, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources[s.Name] = s
	}
	return &Resolver{
		categories:    NewCategoryResolver(cfg.CategoryAliases),
		manufacturers: NewManufacturerResolver(cfg.ManufacturerAliases),
		sources:       sources,
		logger:        logging.OrNop(logger),
	}
}

// Resolve returns annotated copies of products in input order. Records that cannot be
// identified get a synthetic fingerprint and a ResolutionError issue.
func (r *Resolver) Resolve(products []types.RawProduct, issues *report.Collector) []types.RawProduct {
	out := make([]types.RawProduct, len(products))
	for i := range products {
		out[i] = r.identify(products[i], issues)
	}

	// Revision letters are stripped only once every model of the run has been seen.
	stripRevisions(out)

	for i := range out {
		r.fingerprint(&out[i], issues)
	}
	return out
}

func (r *Resolver) identify(p types.RawProduct, issues *report.Collector) types.RawProduct {
	fields := normalize.FoldKeys(p.RawFields)
	p.DerivedFields = nil
	p.NeedsReview = false

	p.Category = r.category(&p, fields)

	brandEnd := -1
	if raw, _, ok := normalize.LookupString(fields, manufacturerKeys...); ok {
		p.Manufacturer = r.manufacturers.Canonical(raw)
	} else if c, end, ok := r.manufacturers.Detect(p.FreeText); ok {
		p.Manufacturer = c
		brandEnd = end
		p.DerivedFields = append(p.DerivedFields, "manufacturer")
	} else {
		p.Manufacturer = ""
	}

	if raw, _, ok := normalize.LookupString(fields, modelKeys...); ok {
		p.Model = CanonicalModel(raw)
	} else {
		p.Model = ""
		if brandEnd < 0 && p.Manufacturer != "" {
			// Structured brand: find where it sits in the title.
			if _, end, ok := r.manufacturers.Detect(p.FreeText); ok {
				brandEnd = end
			}
		}
		if brandEnd >= 0 {
			if m, ok := ModelFromText(p.FreeText, brandEnd); ok {
				p.Model = m
				p.DerivedFields = append(p.DerivedFields, "model")
			}
		}
	}

	p.PowerBucket = ""
	if rating, ok := normalize.Nominal(p.Category, fields, p.FreeText); ok {
		p.PowerBucket = PowerBucket(p.Category, rating.Value)
	}

	if p.Category == types.CategoryOther {
		issues.Addf(types.KindResolution, stage, p.SourceFile, p.Row, "category", "",
			"category could not be determined")
		p.NeedsReview = true
	}
	return p
}

// category resolves in order: declared field, source configuration, file name, free text.
func (r *Resolver) category(p *types.RawProduct, fields map[string]any) types.Category {
	if raw, _, ok := normalize.LookupString(fields, categoryKeys...); ok {
		if c, ok := r.categories.FromDeclared(raw); ok {
			return c
		}
	}
	if src, ok := r.sources[p.SourceName]; ok && src.Category != "" {
		if c, ok := types.ParseCategory(src.Category); ok {
			return c
		}
	}

	c, ok, candidates := FromFileName(p.SourceFile)
	if ok {
		return c
	}
	fromText, textOK := FromText(p.FreeText)
	if len(candidates) == 0 && textOK {
		return fromText
	}
	if textOK {
		for _, cand := range candidates {
			if cand == fromText {
				return fromText
			}
		}
	}
	if len(candidates) > 0 {
		r.logger.Debug("ambiguous category",
			zap.String("source_file", p.SourceFile),
			zap.Int("row", p.Row),
			zap.Any("candidates", candidates))
	}
	return types.CategoryOther
}

func (r *Resolver) fingerprint(p *types.RawProduct, issues *report.Collector) {
	switch {
	case p.Manufacturer != "" && p.Model != "":
		p.Fingerprint = Fingerprint(p.Manufacturer, p.Model, p.PowerBucket, p.Category)
	case textnorm.Trim(p.FreeText) != "":
		p.Fingerprint = TextFingerprint(p.SourceName, p.FreeText)
	default:
		p.Fingerprint = SyntheticFingerprint(p.SourceName, p.SourceID, p.Row)
		p.Category = types.CategoryOther
		p.NeedsReview = true
		err := &ResolutionError{Message: fmt.Sprintf("record %s has no manufacturer, model or description", p.SourceID)}
		issues.Addf(types.KindResolution, stage, p.SourceFile, p.Row, "fingerprint", "", err.Error())
	}
}

// stripRevisions drops a trailing revision letter ("X123A" -> "X123") when the base model
// was observed for the same manufacturer.
func stripRevisions(products []types.RawProduct) {
	observed := make(map[string]map[string]bool)
	for _, p := range products {
		if p.Manufacturer == "" || p.Model == "" {
			continue
		}
		mfr := textnorm.Fold(p.Manufacturer)
		if observed[mfr] == nil {
			observed[mfr] = make(map[string]bool)
		}
		observed[mfr][strings.ToUpper(p.Model)] = true
	}

	for i := range products {
		p := &products[i]
		if p.Manufacturer == "" || p.Model == "" {
			continue
		}
		base, ok := revisionBase(p.Model)
		if ok && observed[textnorm.Fold(p.Manufacturer)][base] {
			p.Model = base
		}
	}
}
