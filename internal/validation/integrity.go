package validation

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/yshsolar/catalog-pipeline/internal/report"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// TopFiles is how many offending source files the report lists.
const TopFiles = 10

// Top-level fields whose coverage is reported for every category.
var coverageFields = []string{"manufacturer", "model", "family", "title", "description_short", "description_long", "images", "pricing"}

// BuildIntegrityReport aggregates validated products and every issue of the run.
func BuildIntegrityReport(products []types.ConsolidatedProduct, issues []types.Issue, generatedAt string) types.IntegrityReport {
	sorted := make([]types.Issue, len(issues))
	copy(sorted, issues)
	report.Sort(sorted)

	r := types.IntegrityReport{
		GeneratedAt:    generatedAt,
		Total:          len(products),
		PerCategory:    make(map[string]types.CategoryIntegrity),
		SourceCounts:   make(map[string]int),
		CountsByKind:   report.CountsByKind(sorted),
		TopSourceFiles: report.TopSourceFiles(sorted, TopFiles),
		Issues:         sorted,
	}

	nonNull := make(map[string]map[string]int)
	for i := range products {
		p := &products[i]
		cat := string(p.Category)
		ci := r.PerCategory[cat]
		ci.Total++
		switch p.Validation.Status {
		case types.StatusValid:
			ci.Valid++
			r.Valid++
		case types.StatusQuarantined:
			ci.Quarantined++
			r.Quarantined++
		case types.StatusRejected:
			ci.Rejected++
			r.Rejected++
		}
		r.PerCategory[cat] = ci

		if nonNull[cat] == nil {
			nonNull[cat] = make(map[string]int)
		}
		for _, f := range presentFields(p) {
			nonNull[cat][f]++
		}

		if len(p.Images) > 0 {
			r.Images.WithImages++
		} else {
			r.Images.WithoutImages++
		}

		seen := make(map[string]bool)
		for _, e := range p.Provenance {
			if !seen[e.SourceName] {
				seen[e.SourceName] = true
				r.SourceCounts[e.SourceName]++
			}
		}
	}

	for cat, ci := range r.PerCategory {
		ci.Coverage = make(map[string]float64)
		for _, f := range coverageFields {
			ci.Coverage[f] = ratio(nonNull[cat][f], ci.Total)
		}
		for f, n := range nonNull[cat] {
			if _, ok := ci.Coverage[f]; !ok {
				ci.Coverage[f] = ratio(n, ci.Total)
			}
		}
		r.PerCategory[cat] = ci
	}

	r.Images.Misses = r.CountsByKind[types.KindImageMiss]
	r.Images.Coverage = ratio(r.Images.WithImages, r.Total)
	return r
}

// presentFields lists the non-null top-level fields of p and its technical_specs fields as
// technical_specs.<name>.
func presentFields(p *types.ConsolidatedProduct) []string {
	var out []string
	for field, ptr := range map[string]*string{
		"manufacturer":      p.Manufacturer,
		"model":             p.Model,
		"family":            p.Family,
		"title":             p.Title,
		"description_short": p.DescriptionShort,
		"description_long":  p.DescriptionLong,
	} {
		if ptr != nil && *ptr != "" {
			out = append(out, field)
		}
	}
	if len(p.Images) > 0 {
		out = append(out, "images")
	}
	if len(p.Pricing) > 0 {
		out = append(out, "pricing")
	}

	// TechnicalSpecs omits null fields, so its JSON keys are exactly the present ones.
	data, err := json.Marshal(p.TechnicalSpecs)
	if err == nil {
		var specs map[string]json.RawMessage
		if json.Unmarshal(data, &specs) == nil {
			for k := range specs {
				out = append(out, "technical_specs."+k)
			}
		}
	}
	sort.Strings(out)
	return out
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 10000
}
