package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/yshsolar/catalog-pipeline/internal/specparse"
	"github.com/yshsolar/catalog-pipeline/internal/types"
)

// Warning is a NormalizationWarning or CoercionNotice raised while deriving specs.
type Warning struct {
	Kind    string
	Field   string
	Input   string
	Message string
}

// Attribute keys per spec field, after FoldKey.
var (
	voltageKeys      = []string{"voltage", "tensao", "tensao_nominal", "tensao_saida", "tensao_de_saida", "tensao_ca"}
	phaseKeys        = []string{"phases", "fases", "fase", "phase", "tipo_de_rede", "rede"}
	efficiencyKeys   = []string{"efficiency", "eficiencia", "eficiencia_maxima", "eficiencia_max", "rendimento"}
	inverterTypeKeys = []string{"inverter_type", "tipo_inversor", "tipo_de_inversor", "tipo"}
	technologyKeys   = []string{"technology", "tecnologia", "tipo_celula", "tipo_de_celula"}
	cellsKeys        = []string{"cells", "celulas", "numero_celulas", "n_celulas", "qtd_celulas"}
	mpptKeys         = []string{"mppts", "mppt", "numero_mppt", "qtd_mppt", "n_mppt"}
	currentKeys      = []string{"current_a", "corrente", "corrente_a", "corrente_maxima", "current"}
	controllerKeys   = []string{"controller_type", "tipo_controlador", "tecnologia", "tipo"}
	crossSectionKeys = []string{"cross_section_mm2", "secao", "secao_mm2", "bitola", "bitola_mm2"}
	connectorKeys    = []string{"connector", "conector", "tipo_conector", "plug"}
	capacityKWhKeys  = []string{"capacity_kwh", "capacidade_kwh", "energia", "energia_kwh", "kwh"}
	panelCountKeys   = []string{"panel_count", "quantidade_paineis", "qtd_paineis", "num_paineis", "numero_de_paineis", "quantidade_modulos"}
	panelPowerKeys   = []string{"panel_power_w", "potencia_painel", "potencia_do_painel", "potencia_modulo"}
)

// Normalize derives technical specs for category from raw attributes and free text.
// Structured attributes take precedence over values parsed from text. Fields that stay
// null are reported only when the category requires them.
func Normalize(freeText string, attrs map[string]any, category types.Category) (types.TechnicalSpecs, []Warning) {
	n := &normalizer{attrs: FoldKeys(attrs), text: freeText, category: category}
	n.run()
	n.checkRequired()
	return n.specs, n.warnings
}

type normalizer struct {
	attrs    map[string]any
	text     string
	category types.Category
	specs    types.TechnicalSpecs
	warnings []Warning
}

func (n *normalizer) run() {
	switch n.category {
	case types.CategoryPanel:
		n.rating()
		n.technology()
		n.efficiency()
		n.cells()
		n.voltage()
	case types.CategoryInverter:
		n.rating()
		n.voltage()
		n.phases()
		n.efficiency()
		n.inverterType()
		n.mppts()
	case types.CategoryKit:
		n.rating()
		n.panelCount()
		n.panelPower()
		n.voltage()
		n.phases()
		n.kitInverterType()
	case types.CategoryBattery:
		n.rating()
		n.capacityKWh()
		n.voltage()
	case types.CategoryController:
		n.current()
		n.controllerType()
		n.voltage()
	case types.CategoryEVCharger:
		n.rating()
		n.voltage()
		n.phases()
		n.connector()
	case types.CategoryStringbox:
		n.voltage()
		n.current()
	case types.CategoryCable:
		n.crossSection()
		n.connector()
	case types.CategoryAccessory:
		n.connector()
	}
}

func (n *normalizer) rating() {
	r, ok := Nominal(n.category, n.attrs, n.text)
	if !ok {
		return
	}
	canonical := CanonicalRatingKey(n.category)
	if r.Coerced {
		n.warn(types.KindCoercion, canonical, r.Key, fmt.Sprintf("%s read as %s", r.Key, canonical))
	}
	switch n.category {
	case types.CategoryPanel:
		n.specs.PowerW = types.Ptr(specparse.Round(r.Value, 1))
	case types.CategoryInverter, types.CategoryEVCharger:
		n.specs.PowerKW = types.Ptr(specparse.Round(r.Value, 3))
	case types.CategoryKit:
		n.specs.PowerKWp = types.Ptr(specparse.Round(r.Value, 3))
	case types.CategoryBattery:
		n.specs.CapacityAh = types.Ptr(specparse.Round(r.Value, 1))
	}
}

// stringField resolves a text-valued spec: attributes first, then free text.
func (n *normalizer) stringField(keys []string, parse func(string) (string, bool)) (string, bool) {
	for _, k := range keys {
		s, _, ok := LookupString(n.attrs, k)
		if !ok {
			continue
		}
		if v, ok := parse(s); ok {
			return v, true
		}
	}
	if n.text != "" {
		return parse(n.text)
	}
	return "", false
}

func (n *normalizer) voltage() {
	if v, ok := n.stringField(voltageKeys, specparse.ParseVoltage); ok {
		n.specs.Voltage = &v
	}
}

func (n *normalizer) phases() {
	if v, ok := n.stringField(phaseKeys, specparse.ParsePhases); ok {
		n.specs.Phases = &v
	}
}

func (n *normalizer) inverterType() {
	v, ok := n.stringField(inverterTypeKeys, specparse.ParseInverterType)
	if !ok {
		v = specparse.InverterString
	}
	n.specs.InverterType = &v
}

// kitInverterType records the inverter type a kit ships with only when the listing names
// it; kits are sold with string and micro inverters alike.
func (n *normalizer) kitInverterType() {
	if v, ok := n.stringField(inverterTypeKeys, specparse.ParseInverterType); ok {
		n.specs.InverterType = &v
	}
}

func (n *normalizer) technology() {
	v, ok := n.stringField(technologyKeys, specparse.ParseTechnology)
	if !ok {
		v = specparse.TechMono
	}
	n.specs.Technology = &v
}

func (n *normalizer) controllerType() {
	if v, ok := n.stringField(controllerKeys, specparse.ParseControllerType); ok {
		n.specs.ControllerType = &v
	}
}

func (n *normalizer) connector() {
	if v, ok := n.stringField(connectorKeys, specparse.ParseConnector); ok {
		n.specs.Connector = &v
	}
}

// efficiency is never defaulted.
func (n *normalizer) efficiency() {
	if v, k, ok := Lookup(n.attrs, efficiencyKeys...); ok {
		if e, ok := specparse.EfficiencyFrom(v); ok {
			n.specs.Efficiency = &e
			return
		}
		n.warn(types.KindNormalization, "efficiency", fmt.Sprint(v), "unparseable "+k)
	}
	if e, ok := specparse.FindEfficiency(n.text); ok {
		n.specs.Efficiency = &e
	}
}

func (n *normalizer) numberField(keys []string, parse func(string) (float64, bool)) (float64, bool) {
	if raw, ok := lookupScalar(n.attrs, keys...); ok {
		if v, ok := specparse.Numeric(raw); ok {
			if v > 0 {
				return v, true
			}
		} else if s, ok := specparse.String(raw); ok {
			if v, ok := parse(s); ok && v > 0 {
				return v, true
			}
		}
	}
	if n.text != "" {
		if v, ok := parse(n.text); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

func (n *normalizer) countField(keys []string, parse func(string) (int, bool)) (int, bool) {
	if raw, ok := lookupScalar(n.attrs, keys...); ok {
		if f, ok := specparse.Numeric(raw); ok {
			if f > 0 && f == math.Trunc(f) {
				return int(f), true
			}
		} else if s, ok := specparse.String(raw); ok {
			if v, ok := parse(s); ok {
				return v, true
			}
		}
	}
	if n.text != "" {
		return parse(n.text)
	}
	return 0, false
}

func (n *normalizer) current() {
	if v, ok := n.numberField(currentKeys, specparse.ParseCurrent); ok {
		n.specs.CurrentA = types.Ptr(specparse.Round(v, 2))
	}
}

func (n *normalizer) crossSection() {
	if v, ok := n.numberField(crossSectionKeys, specparse.ParseCrossSection); ok {
		n.specs.CrossSectionMM2 = types.Ptr(specparse.Round(v, 2))
	}
}

func (n *normalizer) capacityKWh() {
	if v, ok := n.numberField(capacityKWhKeys, specparse.ParseEnergyKWh); ok {
		n.specs.CapacityKWh = types.Ptr(specparse.Round(v, 3))
	}
}

func (n *normalizer) cells() {
	if v, ok := n.countField(cellsKeys, specparse.ParseCells); ok {
		n.specs.Cells = &v
	}
}

func (n *normalizer) mppts() {
	if v, ok := n.countField(mpptKeys, specparse.ParseMPPTs); ok {
		n.specs.MPPTs = &v
	}
}

func (n *normalizer) panelCount() {
	if v, ok := n.countField(panelCountKeys, specparse.ParsePanelCount); ok {
		n.specs.PanelCount = &v
		return
	}
	if panels, ok := n.attrs["panels"].([]any); ok {
		total := 0
		for _, item := range panels {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			q, ok := specparse.NumberFrom(FoldKeys(obj)["quantity"])
			if !ok {
				q, ok = specparse.NumberFrom(FoldKeys(obj)["quantidade"])
			}
			if ok {
				total += int(q)
			}
		}
		if total > 0 {
			n.specs.PanelCount = &total
		}
	}
}

func (n *normalizer) panelPower() {
	if raw, ok := lookupScalar(n.attrs, panelPowerKeys...); ok {
		if w, ok := specparse.PowerFrom(raw, types.UnitW); ok {
			n.specs.PanelPowerW = types.Ptr(specparse.Round(w, 1))
			return
		}
	}
	if panels, ok := n.attrs["panels"].([]any); ok && len(panels) > 0 {
		if obj, ok := panels[0].(map[string]any); ok {
			folded := FoldKeys(obj)
			if raw, ok := lookupScalar(folded, "power_w", "potencia", "power", "potencia_w"); ok {
				if w, ok := specparse.PowerFrom(raw, types.UnitW); ok {
					n.specs.PanelPowerW = types.Ptr(specparse.Round(w, 1))
				}
			}
		}
	}
}

func (n *normalizer) checkRequired() {
	for _, field := range RuleFor(n.category).Required {
		if specSet(&n.specs, field) {
			continue
		}
		n.warn(types.KindNormalization, field, truncate(n.text, 120),
			fmt.Sprintf("required %s could not be derived", field))
	}
}

func (n *normalizer) warn(kind, field, input, message string) {
	n.warnings = append(n.warnings, Warning{Kind: kind, Field: field, Input: input, Message: message})
}

func specSet(s *types.TechnicalSpecs, field string) bool {
	switch field {
	case "power_w":
		return s.PowerW != nil
	case "power_kw":
		return s.PowerKW != nil
	case "power_kwp":
		return s.PowerKWp != nil
	case "capacity_ah":
		return s.CapacityAh != nil
	case "current_a":
		return s.CurrentA != nil
	default:
		return false
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
