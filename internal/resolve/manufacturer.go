package resolve

import (
	"sort"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
)

// Brands seen across distributor feeds, in their canonical spelling.
var knownBrands = []string{
	"APsystems", "Astronergy", "BYD", "Canadian Solar", "Chint", "DAH Solar", "Deye", "Enphase",
	"Epever", "Fronius", "Goodwe", "Growatt", "Hoymiles", "Huawei", "Intelbras", "JA Solar",
	"Jinko Solar", "LONGi", "Moura", "Pylontech", "Renovigi", "Risen", "SAJ", "SMA", "Sofar",
	"Solis", "Solplanet", "Sungrow", "Sunova", "Trina Solar", "Tsuness", "Unipower", "Victron",
	"WEG",
}

// ManufacturerResolver canonicalizes manufacturer spellings and detects brands in free text.
// Comparison ignores case, accents, whitespace and punctuation.
type ManufacturerResolver struct {
	canonical map[string]string // AlnumOnly(spelling) -> canonical name
	phrases   [][]string        // AlnumOnly words of every spelling, longest first
}

// NewManufacturerResolver builds a resolver from the built-in brands and aliases overlaid with
// configured aliases.
func NewManufacturerResolver(configured map[string]string) *ManufacturerResolver {
	r := &ManufacturerResolver{canonical: make(map[string]string)}
	for _, b := range knownBrands {
		r.add(b, b)
	}
	defaults := config.DefaultManufacturerAliases()
	for _, raw := range sortedKeys(defaults) {
		r.add(raw, defaults[raw])
	}
	for _, raw := range sortedKeys(configured) {
		r.add(raw, configured[raw])
		// The canonical spelling maps to itself even when it is not a known brand.
		r.add(configured[raw], configured[raw])
	}

	sort.Slice(r.phrases, func(i, j int) bool {
		if len(r.phrases[i]) != len(r.phrases[j]) {
			return len(r.phrases[i]) > len(r.phrases[j])
		}
		return strings.Join(r.phrases[i], " ") < strings.Join(r.phrases[j], " ")
	})
	return r
}

func (r *ManufacturerResolver) add(spelling, canonical string) {
	key := textnorm.AlnumOnly(spelling)
	if key == "" {
		return
	}
	r.canonical[key] = canonical

	words := alnumWords(spelling)
	id := strings.Join(words, " ")
	for _, p := range r.phrases {
		if strings.Join(p, " ") == id {
			return
		}
	}
	r.phrases = append(r.phrases, words)
}

// Canonical returns the canonical name for a raw manufacturer string. Unknown manufacturers
// keep their spelling with whitespace collapsed.
func (r *ManufacturerResolver) Canonical(raw string) string {
	raw = textnorm.Trim(raw)
	if c, ok := r.canonical[textnorm.AlnumOnly(raw)]; ok {
		return c
	}
	return raw
}

// Detect finds the first known brand or alias in free text. end is the index, in
// strings.Fields(text), of the first word after the brand.
func (r *ManufacturerResolver) Detect(text string) (canonical string, end int, ok bool) {
	words := strings.Fields(text)
	norm := make([]string, len(words))
	for i, w := range words {
		norm[i] = textnorm.AlnumOnly(w)
	}

	for i := range norm {
		for _, p := range r.phrases {
			if matchAt(norm, i, p) {
				return r.canonical[strings.Join(p, "")], i + len(p), true
			}
		}
	}
	return "", 0, false
}

func matchAt(norm []string, at int, words []string) bool {
	if at+len(words) > len(norm) {
		return false
	}
	for j, w := range words {
		if norm[at+j] != w {
			return false
		}
	}
	return true
}

func alnumWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		if a := textnorm.AlnumOnly(w); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
