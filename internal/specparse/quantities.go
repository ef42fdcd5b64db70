package specparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
)

var (
	capacityPattern     = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*ah\b`)
	energyPattern       = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(kwh|wh)\b`)
	currentPattern      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*a\b`)
	crossSectionPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*mm(?:2|²)?`)
	cellsPattern        = regexp.MustCompile(`(\d{2,3})\s*(?:meia[s]?\s*)?(?:celulas|cells|cel\b|half[- ]?cells?)`)
	mpptPattern         = regexp.MustCompile(`(\d{1,2})\s*(?:x\s*)?mppts?\b`)
	panelCountPattern   = regexp.MustCompile(`(\d{1,3})\s*(?:x\s*)?(?:paineis|painel|modulos|modulo|placas|panels)\b`)
)

// ParseCapacityAh parses an ampere-hour capacity ("100Ah"). A bare number is read as Ah.
func ParseCapacityAh(s string) (float64, bool) {
	return parseQuantity(s, capacityPattern)
}

// ParseEnergyKWh parses an energy capacity in kWh ("5,12 kWh", "2400Wh").
func ParseEnergyKWh(s string) (float64, bool) {
	m := energyPattern.FindStringSubmatch(s)
	if m == nil {
		if isBareNumber(s) {
			return parseDecimalToken(strings.TrimSpace(s))
		}
		return 0, false
	}
	if strings.EqualFold(m[2], "wh") {
		v, ok := parseNumberToken(m[1])
		return v / 1000, ok
	}
	return parseDecimalToken(m[1])
}

// ParseCurrent parses a current rating in amperes ("60A"). "Ah" is never read as a current.
func ParseCurrent(s string) (float64, bool) {
	return parseQuantity(s, currentPattern)
}

// ParseCrossSection parses a cable cross-section in mm² ("6mm²", "6 mm2").
func ParseCrossSection(s string) (float64, bool) {
	return parseQuantity(s, crossSectionPattern)
}

// ParseCells returns the cell count of a panel ("144 células", "132 half-cells").
func ParseCells(s string) (int, bool) {
	return parseCount(s, cellsPattern)
}

// ParseMPPTs returns the number of MPPT trackers ("2 MPPTs").
func ParseMPPTs(s string) (int, bool) {
	return parseCount(s, mpptPattern)
}

// ParsePanelCount returns how many panels a kit ships with ("10 painéis", "10x módulos").
func ParsePanelCount(s string) (int, bool) {
	return parseCount(s, panelCountPattern)
}

func parseQuantity(s string, re *regexp.Regexp) (float64, bool) {
	s = strings.TrimSpace(s)
	if m := re.FindStringSubmatch(s); m != nil {
		return parseNumberToken(m[1])
	}
	if isBareNumber(s) {
		return ParseNumber(s)
	}
	return 0, false
}

func parseCount(s string, re *regexp.Regexp) (int, bool) {
	folded := textnorm.Fold(s)
	if m := re.FindStringSubmatch(folded); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil && n > 0
	}
	if isBareNumber(folded) {
		n, err := strconv.Atoi(folded)
		return n, err == nil && n > 0
	}
	return 0, false
}
