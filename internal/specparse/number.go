// Package specparse turns free-form technical strings from distributor feeds into typed values.
// Every parser is deterministic, never panics, and reports failure with ok=false.
package specparse

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

// ParseNumber returns the first number found in s. Brazilian ("1.234,56") and
// international ("1,234.56") separators are both accepted.
func ParseNumber(s string) (float64, bool) {
	tok := numberPattern.FindString(s)
	if tok == "" {
		return 0, false
	}
	return parseNumberToken(tok)
}

// NumberFrom converts a raw field value (JSON number, integer or string) to a float.
func NumberFrom(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		return ParseNumber(t)
	default:
		return 0, false
	}
}

// Numeric returns v when it is already a typed number. Strings yield ok=false so callers
// never send a decoded JSON number back through the separator heuristics.
func Numeric(v any) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return NumberFrom(v)
}

// String renders a scalar raw field value as text. Lists, maps and booleans yield ok=false.
func String(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func parseNumberToken(tok string) (float64, bool) {
	return parseToken(tok, true)
}

// parseDecimalToken reads a single dot as the decimal separator. Values in kW, kWp and kWh
// are small, so "4.995 kWp" is 4.995 and never 4995.
func parseDecimalToken(tok string) (float64, bool) {
	return parseToken(tok, false)
}

func parseToken(tok string, dotGroups bool) (float64, bool) {
	canonical, ok := canonicalNumber(tok, dotGroups)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(canonical, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// canonicalNumber rewrites a digit/separator token as "1234.56". With dotGroups a lone dot
// followed by three digits is a thousands separator.
func canonicalNumber(tok string, dotGroups bool) (string, bool) {
	lastDot := strings.LastIndex(tok, ".")
	lastComma := strings.LastIndex(tok, ",")

	var intPart, frac string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The separator that appears last is the decimal one.
		if lastComma > lastDot {
			intPart = strings.ReplaceAll(tok[:lastComma], ".", "")
			frac = tok[lastComma+1:]
		} else {
			intPart = strings.ReplaceAll(tok[:lastDot], ",", "")
			frac = tok[lastDot+1:]
		}
	case lastComma >= 0:
		if strings.Count(tok, ",") > 1 {
			intPart = strings.ReplaceAll(tok, ",", "")
		} else {
			intPart = tok[:lastComma]
			frac = tok[lastComma+1:]
		}
	case lastDot >= 0:
		if strings.Count(tok, ".") > 1 || (dotGroups && isThousandsGroup(tok, lastDot)) {
			intPart = strings.ReplaceAll(tok, ".", "")
		} else {
			intPart = tok[:lastDot]
			frac = tok[lastDot+1:]
		}
	default:
		intPart = tok
	}

	if intPart == "" || !allDigits(intPart) || !allDigits(frac) {
		return "", false
	}
	if frac == "" {
		return intPart, true
	}
	return intPart + "." + frac, true
}

// isThousandsGroup treats "4.500" as 4500, the Brazilian grouping, but keeps "0.984" and "1.5".
func isThousandsGroup(tok string, dot int) bool {
	return len(tok)-dot-1 == 3 && dot <= 3 && tok[0] != '0'
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
