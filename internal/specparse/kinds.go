package specparse

import (
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/textnorm"
)

// Inverter types
const (
	InverterMicro   = "MICROINVERSOR"
	InverterHybrid  = "HÍBRIDO"
	InverterOffGrid = "OFF-GRID"
	InverterString  = "STRING"
)

// Panel technologies
const (
	TechMono = "Monocristalino"
	TechPoly = "Policristalino"
)

// Controller types
const (
	ControllerMPPT = "MPPT"
	ControllerPWM  = "PWM"
)

// ParseInverterType detects an explicit inverter type. Callers default to InverterString
// when ok is false.
func ParseInverterType(s string) (string, bool) {
	folded := textnorm.Fold(s)
	compact := strings.NewReplacer("-", "", " ", "", "_", "").Replace(folded)
	switch {
	case strings.Contains(folded, "micro"):
		return InverterMicro, true
	case strings.Contains(folded, "hibrid"), strings.Contains(folded, "hybrid"):
		return InverterHybrid, true
	case strings.Contains(compact, "offgrid"):
		return InverterOffGrid, true
	case strings.Contains(compact, "ongrid"), strings.Contains(compact, "gridtie"),
		strings.Contains(folded, "string"):
		return InverterString, true
	}
	return "", false
}

// ParseTechnology detects the cell technology of a panel. Callers default to TechMono when
// ok is false.
func ParseTechnology(s string) (string, bool) {
	for _, tok := range textnorm.Tokens(s) {
		switch {
		case strings.HasPrefix(tok, "monocrist"), tok == "mono", tok == "perc", tok == "monoperc",
			tok == "topcon", tok == "hjt":
			return TechMono, true
		case strings.HasPrefix(tok, "policrist"), strings.HasPrefix(tok, "polycrist"),
			tok == "poli", tok == "poly":
			return TechPoly, true
		}
	}
	return "", false
}

// ParseControllerType detects MPPT or PWM charge controllers.
func ParseControllerType(s string) (string, bool) {
	for _, tok := range textnorm.Tokens(s) {
		switch tok {
		case "mppt":
			return ControllerMPPT, true
		case "pwm":
			return ControllerPWM, true
		}
	}
	return "", false
}

// ParseConnector detects the common PV connector families.
func ParseConnector(s string) (string, bool) {
	for _, tok := range textnorm.Tokens(s) {
		switch tok {
		case "mc4":
			return "MC4", true
		case "mc3":
			return "MC3", true
		case "t2", "type2", "tipo2":
			return "Type 2", true
		}
	}
	return "", false
}
