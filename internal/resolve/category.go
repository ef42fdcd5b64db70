package resolve

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/config"
	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// Folded keyword tokens that identify a category. Two adjacent tokens are also tried joined,
// so "string box" matches "stringbox".
var categoryKeywords = map[string]types.Category{
	"painel":          types.CategoryPanel,
	"paineis":         types.CategoryPanel,
	"panel":           types.CategoryPanel,
	"panels":          types.CategoryPanel,
	"modulo":          types.CategoryPanel,
	"modulos":         types.CategoryPanel,
	"module":          types.CategoryPanel,
	"modules":         types.CategoryPanel,
	"placa":           types.CategoryPanel,
	"inversor":        types.CategoryInverter,
	"inversores":      types.CategoryInverter,
	"inverter":        types.CategoryInverter,
	"inverters":       types.CategoryInverter,
	"microinversor":   types.CategoryInverter,
	"microinversores": types.CategoryInverter,
	"microinverter":   types.CategoryInverter,
	"bateria":         types.CategoryBattery,
	"baterias":        types.CategoryBattery,
	"battery":         types.CategoryBattery,
	"batteries":       types.CategoryBattery,
	"kit":             types.CategoryKit,
	"kits":            types.CategoryKit,
	"gerador":         types.CategoryKit,
	"geradores":       types.CategoryKit,
	"stringbox":       types.CategoryStringbox,
	"stringboxes":     types.CategoryStringbox,
	"estrutura":       types.CategoryStructure,
	"estruturas":      types.CategoryStructure,
	"structure":       types.CategoryStructure,
	"structures":      types.CategoryStructure,
	"cabo":            types.CategoryCable,
	"cabos":           types.CategoryCable,
	"cable":           types.CategoryCable,
	"cables":          types.CategoryCable,
	"carregador":      types.CategoryEVCharger,
	"carregadores":    types.CategoryEVCharger,
	"wallbox":         types.CategoryEVCharger,
	"charger":         types.CategoryEVCharger,
	"chargers":        types.CategoryEVCharger,
	"controlador":     types.CategoryController,
	"controladores":   types.CategoryController,
	"controller":      types.CategoryController,
	"controllers":     types.CategoryController,
	"conector":        types.CategoryAccessory,
	"conectores":      types.CategoryAccessory,
	"connector":       types.CategoryAccessory,
	"acessorio":       types.CategoryAccessory,
	"acessorios":      types.CategoryAccessory,
	"accessory":       types.CategoryAccessory,
	"accessories":     types.CategoryAccessory,
	"poste":           types.CategoryPost,
	"postes":          types.CategoryPost,
	"ev":              types.CategoryEVCharger,
	"evcharger":       types.CategoryEVCharger,
	"evchargers":      types.CategoryEVCharger,
	"microinverters":  types.CategoryInverter,
}

// CategoryResolver maps declared category strings and keyword hints to the closed set.
type CategoryResolver struct {
	aliases map[string]types.Category
}

// NewCategoryResolver builds a resolver from the built-in aliases overlaid with configured ones.
func NewCategoryResolver(configured map[string]string) *CategoryResolver {
	r := &CategoryResolver{aliases: make(map[string]types.Category)}
	for raw, canonical := range config.DefaultCategoryAliases() {
		r.add(raw, canonical)
	}
	for raw, canonical := range configured {
		r.add(raw, canonical)
	}
	return r
}

func (r *CategoryResolver) add(raw, canonical string) {
	if c, ok := types.ParseCategory(canonical); ok {
		r.aliases[textnorm.Fold(raw)] = c
	}
}

// FromDeclared maps a source-declared category string. Exact category names and alias table
// entries resolve directly; otherwise the leading keyword of the string decides.
func (r *CategoryResolver) FromDeclared(raw string) (types.Category, bool) {
	folded := textnorm.Fold(raw)
	if folded == "" {
		return "", false
	}
	if c, ok := types.ParseCategory(strings.ReplaceAll(folded, " ", "_")); ok {
		return c, true
	}
	if c, ok := r.aliases[folded]; ok {
		return c, true
	}
	return FromText(raw)
}

// FromFileName applies keyword heuristics to a source file name. When tokens of more than one
// category appear, ok is false and candidates lists them.
func FromFileName(path string) (c types.Category, ok bool, candidates []types.Category) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	hits := keywordHits(textnorm.Tokens(base))

	seen := make(map[types.Category]bool)
	for _, h := range hits {
		if !seen[h] {
			seen[h] = true
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], true, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	return "", false, candidates
}

// FromText picks the category of the earliest keyword in free text. The word "kit" anywhere
// wins, since kit titles list their components.
func FromText(text string) (types.Category, bool) {
	tokens := textnorm.Tokens(text)
	for _, tok := range tokens {
		if tok == "kit" || tok == "kits" {
			return types.CategoryKit, true
		}
	}
	hits := keywordHits(tokens)
	if len(hits) == 0 {
		return "", false
	}
	return hits[0], true
}

// keywordHits returns the category of every keyword token, in text order.
func keywordHits(tokens []string) []types.Category {
	var hits []types.Category
	for i, tok := range tokens {
		if i+1 < len(tokens) {
			if c, ok := categoryKeywords[tok+tokens[i+1]]; ok {
				hits = append(hits, c)
				continue
			}
		}
		if c, ok := categoryKeywords[tok]; ok {
			hits = append(hits, c)
		}
	}
	return hits
}
