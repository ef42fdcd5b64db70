package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/yshsolar/catalog-pipeline/internal/specparse"
	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// FoldKey turns a raw column or JSON key into snake case without accents:
// "Potência (W)" -> "potencia_w".
func FoldKey(k string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range textnorm.Fold(k) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimRight(sb.String(), "_")
}

// FoldKeys returns attrs with folded keys. On collisions the value of the key that sorts
// first is kept.
func FoldKeys(attrs map[string]any) map[string]any {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(attrs))
	for _, k := range keys {
		fk := FoldKey(k)
		if fk == "" {
			continue
		}
		if _, exists := out[fk]; exists {
			continue
		}
		out[fk] = attrs[k]
	}
	return out
}

// Lookup returns the first non-null value among keys, and the key that supplied it.
func Lookup(attrs map[string]any, keys ...string) (any, string, bool) {
	for _, k := range keys {
		v, ok := attrs[k]
		if !ok || types.IsNull(v) {
			continue
		}
		return v, k, true
	}
	return nil, "", false
}

// lookupScalar is Lookup restricted to typed numbers and text.
func lookupScalar(attrs map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := attrs[k]
		if !ok || types.IsNull(v) {
			continue
		}
		if _, ok := specparse.String(v); ok {
			return v, true
		}
	}
	return nil, false
}

// LookupString is Lookup restricted to scalar values rendered as text.
func LookupString(attrs map[string]any, keys ...string) (string, string, bool) {
	for _, k := range keys {
		v, ok := attrs[k]
		if !ok || types.IsNull(v) {
			continue
		}
		if s, ok := specparse.String(v); ok {
			return s, k, true
		}
	}
	return "", "", false
}

type ratingKey struct {
	name string
	unit types.PowerUnit
}

// Rating keys per category, canonical key first. Any other key is an alias whose use is
// reported as a coercion.
var ratingKeys = map[types.Category][]ratingKey{
	types.CategoryPanel: {
		{"power_w", types.UnitW},
		{"potencia_w", types.UnitW},
		{"pmax", types.UnitW},
		{"potencia_maxima", types.UnitW},
		{"wp", types.UnitW},
		{"potencia_wp", types.UnitW},
		{"power", types.UnitNone},
		{"potencia", types.UnitNone},
		{"potencia_nominal", types.UnitNone},
	},
	types.CategoryInverter: {
		{"power_kw", types.UnitKW},
		{"potencia_kw", types.UnitKW},
		{"potencia_nominal_kw", types.UnitKW},
		{"power_kwp", types.UnitKWp},
		{"potencia_kwp", types.UnitKWp},
		{"power", types.UnitNone},
		{"potencia", types.UnitNone},
		{"potencia_nominal", types.UnitNone},
		{"power_w", types.UnitW},
		{"potencia_w", types.UnitW},
	},
	types.CategoryKit: {
		{"power_kwp", types.UnitKWp},
		{"potencia_kwp", types.UnitKWp},
		{"kwp", types.UnitKWp},
		{"power_kw", types.UnitKW},
		{"potencia_kw", types.UnitKW},
		{"potencia_kit", types.UnitNone},
		{"power", types.UnitNone},
		{"potencia", types.UnitNone},
		{"potencia_nominal", types.UnitNone},
	},
	types.CategoryEVCharger: {
		{"power_kw", types.UnitKW},
		{"potencia_kw", types.UnitKW},
		{"power", types.UnitNone},
		{"potencia", types.UnitNone},
		{"power_w", types.UnitW},
	},
	types.CategoryBattery: {
		{"capacity_ah", types.UnitAh},
		{"capacidade_ah", types.UnitAh},
		{"capacidade", types.UnitAh},
		{"capacity", types.UnitAh},
		{"ah", types.UnitAh},
	},
}

// Rating is the nominal rating of a product in its category's canonical unit.
type Rating struct {
	Value    float64
	Unit     types.PowerUnit
	Key      string // attribute key that supplied the value; empty when parsed from text
	Coerced  bool   // Key is an alias of the canonical key
	FromText bool
}

// CanonicalRatingKey returns the technical_specs field holding the nominal rating.
func CanonicalRatingKey(c types.Category) string {
	if keys, ok := ratingKeys[c]; ok {
		return keys[0].name
	}
	return ""
}

// Nominal derives the nominal rating from folded attributes, falling back to free text.
// Categories without a canonical unit have no rating.
func Nominal(category types.Category, attrs map[string]any, freeText string) (Rating, bool) {
	unit := category.CanonicalUnit()
	keys, ok := ratingKeys[category]
	if !ok || unit == types.UnitNone {
		return Rating{}, false
	}

	for i, k := range keys {
		v, present := attrs[k.name]
		if !present || types.IsNull(v) {
			continue
		}
		value, ok := parseRating(v, k.unit, unit)
		if !ok {
			continue
		}
		return Rating{Value: value, Unit: unit, Key: k.name, Coerced: i > 0}, true
	}

	if freeText == "" {
		return Rating{}, false
	}
	var (
		value float64
		found bool
	)
	switch category {
	case types.CategoryBattery:
		value, found = specparse.ParseCapacityAh(freeText)
	case types.CategoryKit:
		var watts float64
		watts, found = specparse.FindKitPower(freeText)
		value = specparse.ConvertPower(watts, unit)
	default:
		var watts float64
		watts, found = specparse.FindPower(freeText)
		value = specparse.ConvertPower(watts, unit)
	}
	if !found || value <= 0 {
		return Rating{}, false
	}
	return Rating{Value: value, Unit: unit, FromText: true}, true
}

func parseRating(v any, keyUnit, canonical types.PowerUnit) (float64, bool) {
	if canonical == types.UnitAh {
		if ah, ok := specparse.Numeric(v); ok {
			return ah, ah > 0
		}
		s, ok := specparse.String(v)
		if !ok {
			return 0, false
		}
		ah, ok := specparse.ParseCapacityAh(s)
		return ah, ok && ah > 0
	}
	watts, ok := specparse.PowerFrom(v, keyUnit)
	if !ok || watts <= 0 {
		return 0, false
	}
	return specparse.ConvertPower(watts, canonical), true
}
