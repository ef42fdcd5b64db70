// Package consolidate groups resolved raw records by (category, fingerprint) and merges each
// group into one ConsolidatedProduct with provenance and a stable SKU.
package consolidate

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/logging"
	"github.com/yshsolar/catalog-pipeline/internal/normalize"
	"github.com/yshsolar/catalog-pipeline/internal/sku"
	"github.com/yshsolar/catalog-pipeline/internal/specparse"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

type groupKey struct {
	category    types.Category
	fingerprint string
}

// Consolidator merges resolved records. Sources are ranked by their declaration order.
type Consolidator struct {
	order  map[string]int
	codes  map[string]string
	logger *zap.Logger
}

// New creates a consolidator for the configured sources.
func New(cfg *config.Config, logger *zap.Logger) *Consolidator {
	codes := make(map[string]string, len(cfg.Sources))
	for _, s := range cfg.Sources {
		codes[s.Name] = sku.DistCode(s.Code, s.Name)
	}
	return &Consolidator{
		order:  cfg.SourceOrder(),
		codes:  codes,
		logger: logging.OrNop(logger),
	}
}

// Consolidate returns one product per (category, fingerprint), sorted by that key. Records of
// one source are merged before the next source is considered, and within a source records
// apply in file and row order.
func (c *Consolidator) Consolidate(raws []types.RawProduct) []types.ConsolidatedProduct {
	groups := make(map[groupKey][]types.RawProduct)
	var keys []groupKey
	for _, r := range raws {
		k := groupKey{category: r.Category, fingerprint: r.Fingerprint}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].fingerprint < keys[j].fingerprint
	})

	products := make([]types.ConsolidatedProduct, 0, len(keys))
	skuKeys := make([]sku.Key, 0, len(keys))
	for _, k := range keys {
		members := groups[k]
		c.sortMembers(members)

		p := c.merge(k, members)
		products = append(products, p)
		skuKeys = append(skuKeys, sku.Key{
			Dist:        c.distCode(members[0].SourceName),
			Category:    k.category,
			PowerBucket: members[0].PowerBucket,
			Brand:       types.Str(p.Manufacturer),
			Certified:   len(p.Certifications) > 0,
			Fingerprint: k.fingerprint,
		})
		if len(members) > 1 {
			c.logger.Debug("merged records",
				zap.String("fingerprint", k.fingerprint),
				zap.Int("records", len(members)))
		}
	}

	ids := sku.Allocate(skuKeys)
	for i := range products {
		products[i].ID = ids[i]
	}

	c.logger.Info("consolidated",
		zap.Int("records", len(raws)),
		zap.Int("products", len(products)))
	return products
}

func (c *Consolidator) sortMembers(members []types.RawProduct) {
	sort.SliceStable(members, func(i, j int) bool {
		oi, oj := c.rank(members[i].SourceName), c.rank(members[j].SourceName)
		if oi != oj {
			return oi < oj
		}
		if members[i].SourceFile != members[j].SourceFile {
			return members[i].SourceFile < members[j].SourceFile
		}
		return members[i].Row < members[j].Row
	})
}

// rank places undeclared sources after every declared one, by name.
func (c *Consolidator) rank(source string) int {
	if o, ok := c.order[source]; ok {
		return o
	}
	return len(c.order)
}

func (c *Consolidator) distCode(source string) string {
	if code, ok := c.codes[source]; ok {
		return code
	}
	return sku.DistCode("", source)
}

func (c *Consolidator) merge(k groupKey, members []types.RawProduct) types.ConsolidatedProduct {
	p := types.ConsolidatedProduct{
		Fingerprint: k.fingerprint,
		Category:    k.category,
	}
	m := NewMerger(&p)

	for _, r := range members {
		entry := m.Begin(types.ProvenanceEntry{
			SourceName: r.SourceName,
			SourceFile: r.SourceFile,
			SourceID:   r.SourceID,
			ObservedAt: r.ObservedAt,
		})
		AddRaw(m, entry, r)
		if r.NeedsReview {
			p.AddFlag(types.FlagNeedsReview)
		}
	}
	return p
}

// AddRaw offers every field of a resolved raw record through the merger.
func AddRaw(m *Merger, entry int, r types.RawProduct) {
	fields := normalize.FoldKeys(r.RawFields)

	m.OfferString(entry, FieldManufacturer, r.Manufacturer, identityPrecedence(r, FieldManufacturer))
	m.OfferString(entry, FieldModel, r.Model, identityPrecedence(r, FieldModel))

	if s, _, ok := normalize.LookupString(fields, titleKeys...); ok {
		m.OfferString(entry, FieldTitle, s, types.PrecedenceFreeText)
	} else if line := firstLine(r.FreeText); line != "" {
		m.OfferString(entry, FieldTitle, line, types.PrecedenceFreeText)
	}
	if s, _, ok := normalize.LookupString(fields, descriptionShortKeys...); ok {
		m.OfferString(entry, FieldDescriptionShort, s, types.PrecedenceFreeText)
	}
	if s, _, ok := normalize.LookupString(fields, descriptionLongKeys...); ok {
		m.OfferString(entry, FieldDescriptionLong, s, types.PrecedenceFreeText)
	}
	if s, _, ok := normalize.LookupString(fields, familyKeys...); ok {
		m.OfferString(entry, FieldFamily, s, types.PrecedenceStructured)
	}

	m.OfferFreeText(entry, r.FreeText)
	m.OfferAttributes(entry, fields, types.PrecedenceStructured)
	m.OfferCertifications(entry, certificationsFrom(fields))
	m.OfferImageRefs(entry, r.ImageRefs)

	if v, _, ok := normalize.Lookup(fields, priceKeys...); ok {
		if obs, ok := priceObservation(v, r); ok {
			m.AddPrice(entry, obs)
		}
	}
}

// priceObservation keeps the raw text of a price. Typed JSON numbers are already an amount
// in reais and are parsed here; text waits for the normalizer.
func priceObservation(v any, r types.RawProduct) (types.PriceObservation, bool) {
	s, ok := specparse.String(v)
	if !ok {
		return types.PriceObservation{}, false
	}
	obs := types.PriceObservation{Source: r.SourceName, Raw: s, ObservedAt: r.ObservedAt}
	if _, isText := v.(string); !isText {
		if price, ok := specparse.PriceFrom(v); ok {
			obs.Currency = price.Currency
			obs.AmountMinorUnits = types.Ptr(price.AmountMinorUnits)
		}
	}
	return obs, true
}

// identityPrecedence is Structured unless the resolver read the field from free text.
func identityPrecedence(r types.RawProduct, field string) types.Precedence {
	for _, f := range r.DerivedFields {
		if f == field {
			return types.PrecedenceFreeText
		}
	}
	return types.PrecedenceStructured
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
