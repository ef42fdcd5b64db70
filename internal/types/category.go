// Package types provides type definitions for structured data used throughout the catalog pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "strings"

// Category is the closed set of product categories. It selects the normalizer rules
// and the JSON-Schema applied to a product.
type Category string

// Category values
const (
	CategoryPanel      Category = "panel"
	CategoryInverter   Category = "inverter"
	CategoryBattery    Category = "battery"
	CategoryKit        Category = "kit"
	CategoryStringbox  Category = "stringbox"
	CategoryStructure  Category = "structure"
	CategoryCable      Category = "cable"
	CategoryEVCharger  Category = "ev_charger"
	CategoryController Category = "controller"
	CategoryAccessory  Category = "accessory"
	CategoryPost       Category = "post"
	CategoryOther      Category = "other"
)

// PowerUnit is the canonical unit a category expresses its nominal rating in.
type PowerUnit string

// Canonical units
const (
	UnitNone PowerUnit = ""
	UnitW    PowerUnit = "W"
	UnitKW   PowerUnit = "kW"
	UnitKWp  PowerUnit = "kWp"
	UnitAh   PowerUnit = "Ah"
)

var allCategories = []Category{
	CategoryPanel,
	CategoryInverter,
	CategoryBattery,
	CategoryKit,
	CategoryStringbox,
	CategoryStructure,
	CategoryCable,
	CategoryEVCharger,
	CategoryController,
	CategoryAccessory,
	CategoryPost,
	CategoryOther,
}

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory maps an exact (case-insensitive) category name to a Category.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range allCategories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Valid reports whether c belongs to the closed set.
func (c Category) Valid() bool {
	_, ok := ParseCategory(string(c))
	return ok
}

// CanonicalUnit returns the unit the category's power bucket is expressed in.
func (c Category) CanonicalUnit() PowerUnit {
	switch c {
	case CategoryPanel:
		return UnitW
	case CategoryInverter, CategoryEVCharger:
		return UnitKW
	case CategoryKit:
		return UnitKWp
	case CategoryBattery:
		return UnitAh
	default:
		return UnitNone
	}
}

// TypeCode returns the three-letter SKU type code of the category.
func (c Category) TypeCode() string {
	switch c {
	case CategoryKit:
		return "KIT"
	case CategoryPanel:
		return "PNL"
	case CategoryInverter:
		return "INV"
	case CategoryBattery:
		return "BAT"
	case CategoryStringbox:
		return "SBX"
	case CategoryStructure:
		return "EST"
	case CategoryCable:
		return "CAB"
	case CategoryEVCharger:
		return "EVC"
	case CategoryController:
		return "CTR"
	case CategoryAccessory:
		return "ACS"
	case CategoryPost:
		return "PST"
	default:
		return "OUT"
	}
}
