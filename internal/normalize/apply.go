package normalize

import (
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/specparse"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// Apply recomputes the product's technical specs and parses its raw price observations.
// It is deterministic, so re-running it over its own output changes nothing.
func Apply(p *types.ConsolidatedProduct) []Warning {
	text := ProductText(p)
	specs, warnings := Normalize(text, p.Attributes, p.Category)
	p.TechnicalSpecs = specs
	warnings = append(warnings, ParsePricing(p)...)
	return warnings
}

// ProductText joins the title and every free-text contribution for parsing.
func ProductText(p *types.ConsolidatedProduct) string {
	parts := make([]string, 0, len(p.FreeText)+1)
	if t := types.Str(p.Title); t != "" {
		parts = append(parts, t)
	}
	for _, ft := range p.FreeText {
		if ft != types.Str(p.Title) {
			parts = append(parts, ft)
		}
	}
	return strings.Join(parts, "\n")
}

// ParsePricing fills currency and minor units of observations that still carry only the raw
// price string.
func ParsePricing(p *types.ConsolidatedProduct) []Warning {
	var warnings []Warning
	for i := range p.Pricing {
		obs := &p.Pricing[i]
		if obs.AmountMinorUnits != nil || obs.Raw == "" {
			continue
		}
		price, ok := specparse.ParseBRL(obs.Raw)
		if !ok {
			warnings = append(warnings, Warning{
				Kind:    types.KindNormalization,
				Field:   "pricing",
				Input:   obs.Raw,
				Message: "unparseable price from " + obs.Source,
			})
			continue
		}
		obs.Currency = price.Currency
		obs.AmountMinorUnits = types.Ptr(price.AmountMinorUnits)
	}
	return warnings
}
