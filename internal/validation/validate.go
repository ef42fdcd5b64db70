package validation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/report"
	"github.com/yshsolar/catalog-pipeline/internal/schemas"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

const stage = "validate"

// Stats counts validation outcomes.
type Stats struct {
	Valid       int `json:"valid"`
	Quarantined int `json:"quarantined"`
	Rejected    int `json:"rejected"`
}

// Validator runs the schema validation stage.
type Validator struct {
	registry *schemas.Registry
	strict   bool
	workers  int
	issues   *report.Collector
	logger   *zap.Logger
}

// NewValidator returns a validator. In strict mode failing products are rejected rather than
// quarantined.
func NewValidator(registry *schemas.Registry, strict bool, workers int, issues *report.Collector, logger *zap.Logger) *Validator {
	if workers < 1 {
		workers = 1
	}
	return &Validator{
		registry: registry,
		strict:   strict,
		workers:  workers,
		issues:   issues,
		logger:   logging.OrNop(logger).Named(stage),
	}
}

// Validate sets validation.status on every product in place and records one ValidationError
// issue per violation. Products are never dropped here; the indexer routes them by status.
func (v *Validator) Validate(ctx context.Context, products []types.ConsolidatedProduct) (*Stats, error) {
	violations := make([][]schemas.FieldError, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i := range products {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := &products[i]
			NormalizeContainers(p)
			p.Validation = types.Validation{}
			err := v.registry.ValidateProduct(p)
			var verr *schemas.ValidationError
			switch {
			case err == nil:
			case errors.As(err, &verr):
				violations[i] = verr.Errors
			default:
				return &Error{Message: fmt.Sprintf("cannot validate product %s", p.ID), Cause: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &Stats{}
	failed := types.StatusQuarantined
	if v.strict {
		failed = types.StatusRejected
	}
	for i := range products {
		p := &products[i]
		errs := violations[i]
		if len(errs) == 0 {
			p.Validation = types.Validation{Status: types.StatusValid}
			stats.Valid++
			continue
		}

		p.Validation = types.Validation{Status: failed, Errors: make([]types.ValidationIssue, 0, len(errs))}
		file := ""
		if len(p.Provenance) > 0 {
			file = p.Provenance[0].SourceFile
		}
		for _, fe := range errs {
			p.Validation.Errors = append(p.Validation.Errors, types.ValidationIssue{Path: fe.Path, Message: fe.Message})
			v.issues.Addf(types.KindValidation, stage, file, 0, fe.Path, p.ID, fe.Message)
		}
		if v.strict {
			stats.Rejected++
		} else {
			stats.Quarantined++
		}
		v.logger.Debug("product failed validation",
			zap.String("product", p.ID),
			zap.String("category", string(p.Category)),
			zap.Int("violations", len(errs)))
	}

	v.logger.Info("validated products",
		zap.Int("valid", stats.Valid),
		zap.Int("quarantined", stats.Quarantined),
		zap.Int("rejected", stats.Rejected))
	return stats, nil
}

// NormalizeContainers replaces nil container fields with empty ones so they serialize as []
// and {} rather than null.
func NormalizeContainers(p *types.ConsolidatedProduct) {
	if p.Pricing == nil {
		p.Pricing = []types.PriceObservation{}
	}
	if p.Images == nil {
		p.Images = []types.ImageAsset{}
	}
	if p.Provenance == nil {
		p.Provenance = []types.ProvenanceEntry{}
	}
	if p.FieldSources == nil {
		p.FieldSources = map[string]string{}
	}
	for i := range p.Provenance {
		if p.Provenance[i].FieldsContributed == nil {
			p.Provenance[i].FieldsContributed = []string{}
		}
	}
}
