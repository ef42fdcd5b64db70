// Package normalize derives typed technical specifications from consolidated attributes and
// free text, one rule set per category.
package normalize

import "github.com/yshsolar/catalog-pipeline/internal/types"

// Rule lists the technical_specs fields a category requires and the ones it may carry.
type Rule struct {
	Required []string
	Optional []string
}

var rules = map[types.Category]Rule{
	types.CategoryPanel: {
		Required: []string{"power_w"},
		Optional: []string{"technology", "efficiency", "cells", "voltage"},
	},
	types.CategoryInverter: {
		Required: []string{"power_kw"},
		Optional: []string{"voltage", "phases", "efficiency", "inverter_type", "mppts"},
	},
	types.CategoryKit: {
		Required: []string{"power_kwp"},
		Optional: []string{"panel_count", "panel_power_w", "voltage", "phases", "inverter_type"},
	},
	types.CategoryBattery: {
		Required: []string{"capacity_ah"},
		Optional: []string{"capacity_kwh", "voltage"},
	},
	types.CategoryController: {
		Required: []string{"current_a"},
		Optional: []string{"controller_type", "voltage"},
	},
	types.CategoryEVCharger: {
		Required: []string{"power_kw"},
		Optional: []string{"voltage", "phases", "connector"},
	},
	types.CategoryStringbox: {
		Optional: []string{"voltage", "current_a"},
	},
	types.CategoryCable: {
		Optional: []string{"cross_section_mm2", "connector"},
	},
	types.CategoryAccessory: {
		Optional: []string{"connector"},
	},
	types.CategoryStructure: {},
	types.CategoryPost:      {},
	types.CategoryOther:     {},
}

// RuleFor returns the rule of a category.
func RuleFor(c types.Category) Rule {
	return rules[c]
}
