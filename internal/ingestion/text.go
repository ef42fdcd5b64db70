package ingestion

import (
	"regexp"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/normalize"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

var (
	spaceRun      = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
	imageListSeps = regexp.MustCompile(`\s*[|;,]\s*`)
)

// Folded field names that hold image references.
var imageFields = []string{"image", "imagem", "image_url", "imagem_url", "images", "imagens", "foto", "fotos", "image_refs", "url_imagem"}

// Folded field names whose text describes the product.
var (
	titleFields       = []string{"name", "nome", "title", "titulo", "produto", "product_name", "nome_produto"}
	descriptionFields = []string{"description", "descricao", "descricao_longa", "long_description", "detalhes"}
	idFields          = []string{"id", "sku", "codigo", "code", "cod", "product_id", "part_number"}
)

// CleanText trims a text block: line endings become LF, whitespace runs inside a line
// collapse to one space, and at most one blank line separates paragraphs. It is the only
// rewriting adapters apply to text.
func CleanText(content string) string {
	if content == "" {
		return ""
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	result := blankLineRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(result)
}

// freeText joins the title-like and description-like values of a record.
func freeText(fields map[string]any) string {
	folded := normalize.FoldKeys(fields)
	var parts []string
	if s, _, ok := normalize.LookupString(folded, titleFields...); ok {
		parts = append(parts, s)
	}
	if s, _, ok := normalize.LookupString(folded, descriptionFields...); ok && (len(parts) == 0 || s != parts[0]) {
		parts = append(parts, s)
	}
	return CleanText(strings.Join(parts, "\n"))
}

// sourceID returns the record's own identifier, or a file-and-row fallback.
func sourceID(fields map[string]any, fallback string) string {
	if s, _, ok := normalize.LookupString(normalize.FoldKeys(fields), idFields...); ok {
		return s
	}
	return fallback
}

// imageRefs collects references from image fields. roles maps a folded field name to the
// role its images carry.
func imageRefs(fields map[string]any, roles map[string]string) []types.ImageRef {
	folded := normalize.FoldKeys(fields)
	var refs []types.ImageRef
	seen := make(map[string]bool)
	add := func(ref, role string) {
		ref = strings.TrimSpace(ref)
		if ref == "" || seen[ref] {
			return
		}
		seen[ref] = true
		refs = append(refs, types.ImageRef{Ref: ref, Role: role})
	}

	collect := func(v any, role string) {
		switch t := v.(type) {
		case string:
			for _, ref := range splitRefs(t) {
				add(ref, role)
			}
		case []any:
			for _, item := range t {
				switch it := item.(type) {
				case string:
					add(it, role)
				case map[string]any:
					ref, _, _ := normalize.LookupString(it, "url", "src", "ref", "path", "file")
					r, _, _ := normalize.LookupString(it, "role")
					if r == "" {
						r = role
					}
					add(ref, r)
				}
			}
		}
	}

	for _, k := range imageFields {
		if v, ok := folded[k]; ok {
			collect(v, "")
		}
	}
	for _, k := range sortedKeys(roles) {
		if v, ok := folded[normalize.FoldKey(k)]; ok {
			collect(v, roles[k])
		}
	}
	return refs
}

// splitRefs splits a delimited image list. URLs keep their commas only when the value holds a
// single URL.
func splitRefs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.Count(s, "://") == 1 && !strings.ContainsAny(s, "|;") {
		return []string{s}
	}
	return imageListSeps.Split(s, -1)
}
