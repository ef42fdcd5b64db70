// Package textnorm provides case, diacritic and whitespace folding shared by the resolver,
// the unit parsers and the image locator.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks ("Módulo" -> "Modulo").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold lowercases, strips diacritics and collapses whitespace.
func Fold(s string) string {
	s = StripDiacritics(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// AlnumOnly folds s and keeps only letters and digits ("LON GI" -> "longi").
func AlnumOnly(s string) string {
	var sb strings.Builder
	for _, r := range Fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Tokens folds s and splits it on anything that is not a letter or digit.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Trim trims surrounding whitespace and collapses inner whitespace runs, leaving case and
// accents untouched. Adapters use it as their only normalization.
func Trim(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
