package consolidate

import (
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/normalize"
	"github.com/yshsolar/catalog-pipeline/internal/specparse"
)

// Folded raw field keys mapped onto top-level product fields.
var (
	titleKeys            = []string{"title", "titulo", "name", "nome", "produto", "product_name", "nome_produto"}
	descriptionShortKeys = []string{"description_short", "short_description", "descricao_curta", "resumo"}
	descriptionLongKeys  = []string{"description_long", "long_description", "descricao_longa", "descricao", "description", "detalhes"}
	familyKeys           = []string{"family", "familia", "series", "serie", "linha"}
	certificationKeys    = []string{"certifications", "certificacoes", "certification", "certificacao", "certificados"}
	priceKeys            = []string{"price", "preco", "valor", "preco_venda", "price_brl", "preco_unitario", "preco_kit"}
	inmetroKeys          = []string{"inmetro", "registro_inmetro", "certificado_inmetro"}
)

// certificationsFrom reads certification names from a list or a delimited string. An INMETRO
// registration number counts as a certification.
func certificationsFrom(fields map[string]any) []string {
	var out []string
	if v, _, ok := normalize.Lookup(fields, certificationKeys...); ok {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				if s, ok := specparse.String(item); ok {
					out = append(out, s)
				}
			}
		default:
			if s, ok := specparse.String(t); ok {
				out = append(out, splitList(s)...)
			}
		}
	}
	if s, _, ok := normalize.LookupString(fields, inmetroKeys...); ok && !isNegative(s) {
		out = append(out, "INMETRO")
	}
	return out
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' || r == '/' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isNegative(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nao", "não", "no", "false", "0", "-", "n/a":
		return true
	}
	return false
}
