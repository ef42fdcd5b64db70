package consolidate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/normalize"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Sources: []config.Source{
			{Name: "x", Code: "XXX", AdapterType: "json", InputPath: "raw/x"},
			{Name: "y", Code: "YYY", AdapterType: "json", InputPath: "raw/y"},
			{Name: "z", AdapterType: "csv", InputPath: "raw/z"},
		},
	}
}

const growattFP = "growatt|min 5000tl-x|5.0|inverter"

func scenarioRaws() []types.RawProduct {
	return []types.RawProduct{
		{
			SourceID: "y7", SourceName: "y", SourceFile: "raw/y/y_inverters.json", Row: 1,
			RawFields:  map[string]any{"id": "y7", "manufacturer": "Growatt", "model": "MIN 5000TL-X", "power_kw": 5.0, "efficiency": "98.4%"},
			ObservedAt: "2024-05-01T00:00:00Z",
			Category:   types.CategoryInverter, Fingerprint: growattFP, Manufacturer: "Growatt", Model: "MIN 5000TL-X", PowerBucket: "5.0",
		},
		{
			SourceID: "x1", SourceName: "x", SourceFile: "raw/x/export.json", Row: 1,
			RawFields:  map[string]any{"id": "x1", "name": "Inversor 5kW Growatt MIN 5000TL-X", "price": "R$ 4.500,00"},
			FreeText:   "Inversor 5kW Growatt MIN 5000TL-X",
			ObservedAt: "2024-04-01T00:00:00Z",
			Category:   types.CategoryInverter, Fingerprint: growattFP, Manufacturer: "Growatt", Model: "MIN 5000TL-X", PowerBucket: "5.0",
			DerivedFields: []string{"manufacturer", "model"},
		},
	}
}

func TestConsolidate_CrossSourceMerge(t *testing.T) {
	c := New(testConfig(), nil)
	products := c.Consolidate(scenarioRaws())
	require.Len(t, products, 1)
	p := products[0]

	assert.Equal(t, types.CategoryInverter, p.Category)
	assert.Equal(t, growattFP, p.Fingerprint)
	assert.Equal(t, "XXX-INV-5000W-GROWATT-BRZ-NONE-001", p.ID)
	assert.Equal(t, "Growatt", types.Str(p.Manufacturer))
	assert.Equal(t, "Inversor 5kW Growatt MIN 5000TL-X", types.Str(p.Title))

	// Source x is declared first, so it is merged first.
	require.Len(t, p.Provenance, 2)
	assert.Equal(t, "x", p.Provenance[0].SourceName)
	assert.Equal(t, "y", p.Provenance[1].SourceName)
	assert.Equal(t, "y", p.FieldSources[FieldManufacturer], "structured value beats the one read from text")
	assert.NotContains(t, p.Provenance[0].FieldsContributed, FieldManufacturer)
	assert.Contains(t, p.Provenance[1].FieldsContributed, FieldManufacturer)
	assert.Equal(t, "x", p.FieldSources[FieldTitle])

	require.Len(t, p.Pricing, 1)
	assert.Equal(t, "x", p.Pricing[0].Source)
	assert.Equal(t, "R$ 4.500,00", p.Pricing[0].Raw)
	assert.Equal(t, "2024-04-01T00:00:00Z", p.Pricing[0].ObservedAt)

	warnings := normalize.Apply(&p)
	for _, w := range warnings {
		assert.NotEqual(t, types.KindNormalization, w.Kind, w.Message)
	}
	require.NotNil(t, p.TechnicalSpecs.PowerKW)
	assert.Equal(t, 5.0, *p.TechnicalSpecs.PowerKW)
	require.NotNil(t, p.TechnicalSpecs.Efficiency)
	assert.Equal(t, 98.4, *p.TechnicalSpecs.Efficiency)
	require.NotNil(t, p.Pricing[0].AmountMinorUnits)
	assert.Equal(t, int64(450000), *p.Pricing[0].AmountMinorUnits)
	assert.Equal(t, "BRL", p.Pricing[0].Currency)
}

func TestConsolidate_TypedPrices(t *testing.T) {
	raws := []types.RawProduct{
		{SourceName: "y", SourceFile: "raw/y/kits.json", Row: 1, ObservedAt: "2024-05-01T00:00:00Z",
			RawFields: map[string]any{"preco": 4.995},
			Category:  types.CategoryKit, Fingerprint: "kit"},
		{SourceName: "x", SourceFile: "raw/x/kits.json", Row: 1, ObservedAt: "2024-05-01T00:00:00Z",
			RawFields: map[string]any{"preco": "R$ 4.995,00"},
			Category:  types.CategoryKit, Fingerprint: "kit"},
	}
	products := New(testConfig(), nil).Consolidate(raws)
	require.Len(t, products, 1)
	pricing := products[0].Pricing
	require.Len(t, pricing, 2)

	assert.Equal(t, "x", pricing[0].Source)
	assert.Nil(t, pricing[0].AmountMinorUnits, "text prices are parsed by the normalizer")

	assert.Equal(t, "y", pricing[1].Source)
	assert.Equal(t, "4.995", pricing[1].Raw)
	require.NotNil(t, pricing[1].AmountMinorUnits)
	assert.Equal(t, int64(500), *pricing[1].AmountMinorUnits, "a typed number is an amount in reais")
	assert.Equal(t, "BRL", pricing[1].Currency)
}

func TestConsolidate_IntraSourceLaterRecordsFillNulls(t *testing.T) {
	raws := []types.RawProduct{
		{SourceName: "z", SourceFile: "raw/z/a.csv", Row: 2,
			RawFields: map[string]any{"fabricante": "Deye", "garantia": "10 anos", "cor": "cinza"},
			Category:  types.CategoryInverter, Fingerprint: "fp", Manufacturer: "Deye"},
		{SourceName: "z", SourceFile: "raw/z/a.csv", Row: 1,
			RawFields: map[string]any{"fabricante": "Deye", "garantia": "5 anos"},
			Category:  types.CategoryInverter, Fingerprint: "fp", Manufacturer: "Deye"},
	}
	products := New(testConfig(), nil).Consolidate(raws)
	require.Len(t, products, 1)
	p := products[0]

	assert.Equal(t, "5 anos", p.Attributes["garantia"], "row 1 applies first")
	assert.Equal(t, "cinza", p.Attributes["cor"], "row 2 fills the null")
	assert.Contains(t, p.Provenance[0].FieldsContributed, "attributes.garantia")
	assert.Contains(t, p.Provenance[1].FieldsShadowed, "attributes.garantia")
	assert.Equal(t, "ZXX", p.ID[:3])
}

func TestConsolidate_GroupsByCategoryAndFingerprint(t *testing.T) {
	raws := []types.RawProduct{
		{SourceName: "x", SourceFile: "f", Row: 1, Category: types.CategoryPanel, Fingerprint: "a"},
		{SourceName: "x", SourceFile: "f", Row: 2, Category: types.CategoryInverter, Fingerprint: "a"},
		{SourceName: "y", SourceFile: "g", Row: 1, Category: types.CategoryPanel, Fingerprint: "a", NeedsReview: true},
	}
	products := New(testConfig(), nil).Consolidate(raws)
	require.Len(t, products, 2)
	assert.Equal(t, types.CategoryInverter, products[0].Category)
	assert.Equal(t, types.CategoryPanel, products[1].Category)
	assert.Len(t, products[1].Provenance, 2)
	assert.True(t, products[1].HasFlag(types.FlagNeedsReview))
	assert.NotEqual(t, products[0].ID, products[1].ID)
}

func TestMerger_Precedence(t *testing.T) {
	t.Run("higher precedence overwrites and shadows the loser", func(t *testing.T) {
		p := &types.ConsolidatedProduct{}
		m := NewMerger(p)
		a := m.Begin(types.ProvenanceEntry{SourceName: "a"})
		m.OfferString(a, FieldModel, "X1", types.PrecedenceFreeText)
		b := m.Begin(types.ProvenanceEntry{SourceName: "b"})
		m.OfferString(b, FieldModel, "X1-PRO", types.PrecedenceStructured)

		assert.Equal(t, "X1-PRO", types.Str(p.Model))
		assert.Equal(t, "b", p.FieldSources[FieldModel])
		assert.Empty(t, p.Provenance[a].FieldsContributed)
		assert.Equal(t, []string{FieldModel}, p.Provenance[a].FieldsShadowed)
		assert.Equal(t, []string{FieldModel}, p.Provenance[b].FieldsContributed)
	})

	t.Run("extracted value never overwrites a structured one", func(t *testing.T) {
		p := &types.ConsolidatedProduct{}
		m := NewMerger(p)
		a := m.Begin(types.ProvenanceEntry{SourceName: "distributor"})
		m.OfferString(a, FieldManufacturer, "A", types.PrecedenceStructured)
		v := m.Begin(types.ProvenanceEntry{SourceName: "vision:fake"})
		m.OfferString(v, FieldManufacturer, "B", types.PrecedenceExtracted)
		m.OfferString(v, FieldFamily, "Serie Z", types.PrecedenceExtracted)

		assert.Equal(t, "A", types.Str(p.Manufacturer))
		assert.Equal(t, []string{FieldManufacturer}, p.Provenance[v].FieldsShadowed)
		assert.Equal(t, "Serie Z", types.Str(p.Family))
		assert.Equal(t, "vision:fake", p.FieldSources[FieldFamily])
	})

	t.Run("equal precedence keeps the first value", func(t *testing.T) {
		p := &types.ConsolidatedProduct{}
		m := NewMerger(p)
		a := m.Begin(types.ProvenanceEntry{SourceName: "a"})
		m.OfferString(a, FieldTitle, "first", types.PrecedenceFreeText)
		b := m.Begin(types.ProvenanceEntry{SourceName: "b"})
		m.OfferString(b, FieldTitle, "second", types.PrecedenceFreeText)
		m.OfferString(b, FieldDescriptionLong, "  ", types.PrecedenceFreeText)

		assert.Equal(t, "first", types.Str(p.Title))
		assert.Nil(t, p.DescriptionLong)
		assert.Equal(t, []string{FieldTitle}, p.Provenance[b].FieldsShadowed)
	})

	t.Run("merger resumes from a snapshot", func(t *testing.T) {
		p := &types.ConsolidatedProduct{}
		m := NewMerger(p)
		a := m.Begin(types.ProvenanceEntry{SourceName: "a"})
		m.OfferString(a, FieldModel, "M1", types.PrecedenceFreeText)

		resumed := NewMerger(p)
		b := resumed.Begin(types.ProvenanceEntry{SourceName: "b"})
		resumed.OfferString(b, FieldModel, "M2", types.PrecedenceStructured)
		assert.Equal(t, "M2", types.Str(p.Model))
		assert.Equal(t, []string{FieldModel}, p.Provenance[a].FieldsShadowed)
	})
}

func TestMerger_Containers(t *testing.T) {
	p := &types.ConsolidatedProduct{}
	m := NewMerger(p)

	a := m.Begin(types.ProvenanceEntry{SourceName: "a"})
	m.OfferAttributes(a, map[string]any{
		"panels": []any{
			map[string]any{"id": "p1", "power": 550.0},
			map[string]any{"power": 450.0},
		},
		"tags":  []any{"on-grid", "residencial"},
		"specs": map[string]any{"voltage": "220V"},
	}, types.PrecedenceStructured)

	b := m.Begin(types.ProvenanceEntry{SourceName: "b"})
	m.OfferAttributes(b, map[string]any{
		"panels": []any{
			map[string]any{"id": "p1", "power": 555.0},
			map[string]any{"power": 450.0},
			map[string]any{"power": 460.0},
		},
		"tags":  []any{"residencial", "promo"},
		"specs": map[string]any{"voltage": "380V", "phases": "tri"},
	}, types.PrecedenceStructured)
	m.OfferCertifications(b, []string{"INMETRO", "inmetro", "IEC 61215"})
	m.OfferImageRefs(a, []types.ImageRef{{Ref: "a.jpg"}})
	m.OfferImageRefs(b, []types.ImageRef{{Ref: "a.jpg", Role: types.RoleComponentPanel}, {Ref: "b.jpg"}})

	panels := p.Attributes["panels"].([]any)
	assert.Len(t, panels, 3)
	assert.Equal(t, 550.0, panels[0].(map[string]any)["power"], "object identity is its id")
	assert.Equal(t, []any{"on-grid", "residencial", "promo"}, p.Attributes["tags"])

	specs := p.Attributes["specs"].(map[string]any)
	assert.Equal(t, "220V", specs["voltage"])
	assert.Equal(t, "tri", specs["phases"])
	assert.Contains(t, p.Provenance[b].FieldsShadowed, "attributes.specs.voltage")
	assert.Contains(t, p.Provenance[b].FieldsContributed, "attributes.specs.phases")

	assert.Equal(t, []string{"INMETRO", "IEC 61215"}, p.Certifications)
	require.Len(t, p.ImageRefs, 2)
	assert.Equal(t, types.RoleComponentPanel, p.ImageRefs[0].Role)
	assert.Equal(t, "a", p.FieldSources[FieldAttributes])
	assert.Equal(t, "a", p.FieldSources[FieldImageRefs])
}

func TestMerger_DoesNotAliasRawFields(t *testing.T) {
	raw := map[string]any{"specs": map[string]any{"voltage": "220V"}, "tags": []any{"a"}}
	p := &types.ConsolidatedProduct{}
	m := NewMerger(p)
	m.OfferAttributes(m.Begin(types.ProvenanceEntry{SourceName: "a"}), raw, types.PrecedenceStructured)

	p.Attributes["specs"].(map[string]any)["voltage"] = "changed"
	assert.Equal(t, "220V", raw["specs"].(map[string]any)["voltage"])
}

// nonNullFields counts the top-level fields of p that carry a value.
func nonNullFields(p types.ConsolidatedProduct) int {
	n := 0
	for _, s := range []*string{p.Manufacturer, p.Model, p.Family, p.Title, p.DescriptionShort, p.DescriptionLong} {
		if s != nil {
			n++
		}
	}
	for _, l := range []int{len(p.Pricing), len(p.ImageRefs), len(p.Certifications), len(p.Attributes), len(p.FreeText)} {
		if l > 0 {
			n++
		}
	}
	return n
}

func randomRaws(f *gofakeit.Faker, source string, n int) []types.RawProduct {
	brands := []string{"Growatt", "Deye", "LONGi", "Jinko Solar"}
	optional := []string{"titulo", "descricao", "familia", "preco", "certificacoes", "garantia"}
	out := make([]types.RawProduct, 0, n)
	for i := 0; i < n; i++ {
		brand := f.RandomString(brands)
		model := fmt.Sprintf("M%d", f.Number(1, 6))
		fields := map[string]any{"fabricante": brand, "modelo": model}
		for _, k := range optional {
			if f.Bool() {
				fields[k] = f.Sentence(3)
			}
		}
		var refs []types.ImageRef
		if f.Bool() {
			refs = append(refs, types.ImageRef{Ref: f.Word() + ".jpg"})
		}
		out = append(out, types.RawProduct{
			SourceID:     fmt.Sprintf("%s-%d", source, i),
			SourceName:   source,
			SourceFile:   "raw/" + source + "/feed.json",
			Row:          i + 1,
			RawFields:    fields,
			ImageRefs:    refs,
			FreeText:     f.Sentence(4),
			Category:     types.CategoryInverter,
			Manufacturer: brand,
			Model:        model,
			Fingerprint:  strings.ToLower(brand + "|" + model + "||inverter"),
		})
	}
	return out
}

func TestConsolidate_MergeMonotonicity(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		f := gofakeit.New(seed)
		x := randomRaws(f, "x", 12)
		y := randomRaws(f, "y", 12)
		z := randomRaws(f, "z", 12)

		c := New(testConfig(), nil)
		base := c.Consolidate(append(append([]types.RawProduct{}, x...), y...))
		more := c.Consolidate(append(append(append([]types.RawProduct{}, x...), y...), z...))

		byFP := make(map[string]types.ConsolidatedProduct, len(more))
		ids := make(map[string]bool, len(more))
		for _, p := range more {
			byFP[p.Fingerprint] = p
			assert.False(t, ids[p.ID], "seed %d: duplicate id %s", seed, p.ID)
			ids[p.ID] = true
			assert.NotEmpty(t, p.Provenance)
		}
		for _, p := range base {
			after, ok := byFP[p.Fingerprint]
			require.True(t, ok)
			assert.GreaterOrEqual(t, nonNullFields(after), nonNullFields(p), "seed %d fingerprint %s", seed, p.Fingerprint)
		}
	}
}
