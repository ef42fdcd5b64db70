package specparse

import "github.com/yshsolar/catalog-pipeline/internal/textnorm"

// Phase values
const (
	PhaseMono = "Monofásico"
	PhaseBi   = "Bifásico"
	PhaseTri  = "Trifásico"
)

// Matched as whole folded tokens, so brands such as "TRINA" never read as "TRI".
var phaseTokens = map[string]string{
	"mono":        PhaseMono,
	"monofasico":  PhaseMono,
	"monofasica":  PhaseMono,
	"monophase":   PhaseMono,
	"1f":          PhaseMono,
	"1ph":         PhaseMono,
	"single":      PhaseMono,
	"bi":          PhaseBi,
	"bifasico":    PhaseBi,
	"bifasica":    PhaseBi,
	"2f":          PhaseBi,
	"2ph":         PhaseBi,
	"split":       PhaseBi,
	"tri":         PhaseTri,
	"trifasico":   PhaseTri,
	"trifasica":   PhaseTri,
	"3f":          PhaseTri,
	"3ph":         PhaseTri,
	"three":       PhaseTri,
	"threephase":  PhaseTri,
	"singlephase": PhaseMono,
}

// ParsePhases maps the first phase token in s to Monofásico, Bifásico or Trifásico.
func ParsePhases(s string) (string, bool) {
	for _, tok := range textnorm.Tokens(s) {
		if phase, ok := phaseTokens[tok]; ok {
			return phase, true
		}
	}
	return "", false
}
