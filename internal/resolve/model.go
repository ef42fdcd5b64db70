package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yshsolar/catalog-pipeline/internal/specparse"
	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
)

// Words that carry a rating or unit rather than a model code ("550W", "220V", "98%").
var ratingWord = regexp.MustCompile(`(?i)^\d+(?:[.,]\d+)?(?:w|wp|kw|kwp|mw|v|vca|vcc|a|ah|kwh|wh|%|mm2?|mm²)$`)

// CanonicalModel collapses whitespace and upper-cases a model string.
func CanonicalModel(raw string) string {
	return strings.ToUpper(textnorm.Trim(raw))
}

// ModelFromText reads the model code that follows the brand in a title: the run of
// model-looking words starting at words[start]. At least one word must contain a digit.
func ModelFromText(text string, start int) (string, bool) {
	words := strings.Fields(text)
	if start < 0 || start >= len(words) {
		return "", false
	}

	var parts []string
	hasDigit := false
	for _, w := range words[start:] {
		w = strings.Trim(w, ",;:()[]")
		if !looksLikeModel(w) {
			break
		}
		parts = append(parts, w)
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			hasDigit = true
		}
	}
	if !hasDigit {
		return "", false
	}
	return CanonicalModel(strings.Join(parts, " ")), true
}

func looksLikeModel(w string) bool {
	if w == "" || ratingWord.MatchString(w) {
		return false
	}
	if _, ok := specparse.ParsePhases(w); ok {
		return false
	}
	if _, ok := specparse.ParseVoltage(w); ok {
		return false
	}
	hasDigit, hasLower := false, false
	for _, r := range w {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r), r == '-', r == '/', r == '.', r == '_', r == '+':
		default:
			return false
		}
	}
	// Codes are upper case ("MIN", "TL-X") or contain a digit ("5000TL-X", "Hi-MO5").
	return hasDigit || !hasLower
}

// revisionBase returns the model without a trailing revision letter ("X123A" -> "X123").
// ok is false when the model does not end in a letter preceded by a digit.
func revisionBase(model string) (string, bool) {
	r := []rune(model)
	if len(r) < 2 {
		return "", false
	}
	last, prev := r[len(r)-1], r[len(r)-2]
	if !unicode.IsLetter(last) || !unicode.IsDigit(prev) {
		return "", false
	}
	return string(r[:len(r)-1]), true
}
