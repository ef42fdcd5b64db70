package specparse

import (
	"regexp"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
)

var efficiencyPattern = regexp.MustCompile(`(?:eficiencia|efficiency|efic\.?|eff\.?)\s*(?:maxima|max\.?|europeia|euro)?\s*[:=]?\s*(\d+(?:[.,]\d+)?)\s*(%?)`)

// ParseEfficiency accepts a percentage ("98,4%", "98.4") or a fraction ("0.984") and returns
// the percentage rounded to one decimal.
func ParseEfficiency(s string) (float64, bool) {
	v, ok := ParseNumber(s)
	if !ok {
		return 0, false
	}
	if !strings.Contains(s, "%") && v <= 1 {
		v *= 100
	}
	return efficiencyPercent(v)
}

// EfficiencyFrom is ParseEfficiency over a raw field value.
func EfficiencyFrom(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		return ParseEfficiency(s)
	}
	f, ok := NumberFrom(v)
	if !ok {
		return 0, false
	}
	if f <= 1 {
		f *= 100
	}
	return efficiencyPercent(f)
}

func efficiencyPercent(v float64) (float64, bool) {
	if v <= 0 || v > 100 {
		return 0, false
	}
	return Round(v, 1), true
}

// FindEfficiency looks for an efficiency statement ("eficiência máx. 98,4%") in free text.
func FindEfficiency(text string) (float64, bool) {
	m := efficiencyPattern.FindStringSubmatch(textnorm.Fold(text))
	if m == nil {
		return 0, false
	}
	return ParseEfficiency(m[1] + m[2])
}
