package specparse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshsolar/catalog-pipeline/internal/types"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"550", 550, true},
		{"5,5", 5.5, true},
		{"5.5", 5.5, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"4.500", 4500, true},
		{"0.984", 0.984, true},
		{"1.234.567", 1234567, true},
		{"R$ 4.500,00", 4500, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestNumberFrom(t *testing.T) {
	v, ok := NumberFrom(5.0)
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)

	v, ok = NumberFrom(json.Number("98.4"))
	assert.True(t, ok)
	assert.Equal(t, 98.4, v)

	v, ok = NumberFrom("98,4%")
	assert.True(t, ok)
	assert.InDelta(t, 98.4, v, 1e-9)

	_, ok = NumberFrom([]any{1})
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	s, ok := String(5.0)
	assert.True(t, ok)
	assert.Equal(t, "5", s)

	s, ok = String("  MIN 5000TL-X ")
	assert.True(t, ok)
	assert.Equal(t, "MIN 5000TL-X", s)

	_, ok = String(true)
	assert.False(t, ok)
	_, ok = String("   ")
	assert.False(t, ok)
}

func TestParsePower(t *testing.T) {
	tests := []struct {
		in    string
		watts float64
		ok    bool
	}{
		{"550 W", 550, true},
		{"550Wp", 550, true},
		{"5 kW", 5000, true},
		{"5,5kW", 5500, true},
		{"5.6 kWp", 5600, true},
		{"4.995 kWp", 4995, true},
		{"2.125kW", 2125, true},
		{"1.250 MWp", 1_250_000, true},
		{"4.500 W", 4500, true},
		{"1,2 MW", 1_200_000, true},
		{"550", 550, true},
		{"5", 5000, true},
		{"8.2", 8200, true},
		{"12000", 12000, true},
		{"5 kWh", 0, false},
		{"220V", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePower(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.watts, got, 1e-6)
			}
		})
	}
}

func TestParsePowerAs_DeclaredUnit(t *testing.T) {
	w, ok := ParsePowerAs("75", types.UnitKW)
	require.True(t, ok)
	assert.Equal(t, 75000.0, w)

	w, ok = ParsePowerAs("5", types.UnitW)
	require.True(t, ok)
	assert.Equal(t, 5.0, w)

	// Three decimals in a kW column are decimals, not thousands
	w, ok = ParsePowerAs("4.995", types.UnitKWp)
	require.True(t, ok)
	assert.InDelta(t, 4995.0, w, 1e-6)

	w, ok = ParsePowerAs("4.500", types.UnitW)
	require.True(t, ok)
	assert.Equal(t, 4500.0, w)

	// Explicit units override the declared one
	w, ok = ParsePowerAs("550W", types.UnitKW)
	require.True(t, ok)
	assert.Equal(t, 550.0, w)
}

func TestPowerFrom_TypedNumbers(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		bare  types.PowerUnit
		watts float64
		ok    bool
	}{
		{"float kWp", 4.995, types.UnitKWp, 4995, true},
		{"float kW", 2.125, types.UnitKW, 2125, true},
		{"json number", json.Number("4.995"), types.UnitKWp, 4995, true},
		{"int watts", int64(550), types.UnitW, 550, true},
		{"float without unit below ten", 8.2, types.UnitNone, 8200, true},
		{"string with unit", "4.995 kWp", types.UnitKWp, 4995, true},
		{"zero", 0.0, types.UnitKW, 0, false},
		{"list", []any{5.0}, types.UnitKW, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PowerFrom(tt.in, tt.bare)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.watts, got, 1e-6)
			}
		})
	}
}

func TestFindPower(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		watts float64
		ok    bool
	}{
		{"unit qualified", "Inversor 5kW Growatt MIN 5000TL-X", 5000, true},
		{"bare number", "Painel 550", 550, true},
		{"bare number followed by voltage unit", "Bateria 12 V 100Ah", 0, false},
		{"decimal comma", "Kit Gerador 5,6 kWp", 5600, true},
		{"three decimals", "Kit Solar 4.995 kWp", 4995, true},
		{"no number", "Estrutura para telhado", 0, false},
		{"kwh is not power", "Bateria 5 kWh", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindPower(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.watts, got, 1e-6)
			}
		})
	}
}

func TestFindKitPower_PrefersPeakRating(t *testing.T) {
	w, ok := FindKitPower("Kit com 10 painéis 560W e inversor - 5,6 kWp")
	require.True(t, ok)
	assert.InDelta(t, 5600.0, w, 1e-6)

	w, ok = FindKitPower("Kit 560W")
	require.True(t, ok)
	assert.Equal(t, 560.0, w)
}

func TestConvertPower(t *testing.T) {
	assert.Equal(t, 5.0, ConvertPower(5000, types.UnitKW))
	assert.Equal(t, 5.6, ConvertPower(5600, types.UnitKWp))
	assert.Equal(t, 550.0, ConvertPower(550, types.UnitW))
}

func TestParseVoltage(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Inversor 220/127V trifásico", "220/127V", true},
		{"127/220V", "220/127V", true},
		{"220V/127V", "220/127V", true},
		{"380/220 V", "380/220V", true},
		{"220V", "220V", true},
		{"Bateria 12 V", "12V", true},
		{"48Vcc", "48V", true},
		{"1220V", "", false},
		{"110V", "", false},
		{"12/24V", "", false},
		{"sem tensão", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseVoltage(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePhases(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Inversor 220/127V trifásico", PhaseTri, true},
		{"MONO", PhaseMono, true},
		{"1F", PhaseMono, true},
		{"single-phase", PhaseMono, true},
		{"3F 380V", PhaseTri, true},
		{"THREE phase", PhaseTri, true},
		{"Bifásico", PhaseBi, true},
		{"2F", PhaseBi, true},
		{"Painel TRINA Vertex", "", false},
		{"BIFACIAL", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePhases(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEfficiency(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"98.4%", 98.4, true},
		{"98,4 %", 98.4, true},
		{"0.984", 98.4, true},
		{"21.25", 21.3, true},
		{"150%", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseEfficiency(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestEfficiencyFrom(t *testing.T) {
	v, ok := EfficiencyFrom(0.975)
	require.True(t, ok)
	assert.InDelta(t, 97.5, v, 1e-9)

	v, ok = EfficiencyFrom(98.4)
	require.True(t, ok)
	assert.InDelta(t, 98.4, v, 1e-9)

	v, ok = EfficiencyFrom("98.4%")
	require.True(t, ok)
	assert.InDelta(t, 98.4, v, 1e-9)
}

func TestFindEfficiency(t *testing.T) {
	v, ok := FindEfficiency("Inversor 5kW, eficiência máx. 98,4%")
	require.True(t, ok)
	assert.InDelta(t, 98.4, v, 1e-9)

	_, ok = FindEfficiency("Inversor 5kW com 10% de desconto")
	assert.False(t, ok)
}

func TestParseInverterType(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Microinversor Hoymiles", InverterMicro, true},
		{"Inversor Híbrido Deye", InverterHybrid, true},
		{"Hybrid inverter", InverterHybrid, true},
		{"Inversor Off-Grid", InverterOffGrid, true},
		{"OFF GRID", InverterOffGrid, true},
		{"On-Grid", InverterString, true},
		{"Inversor Growatt", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseInverterType(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTechnology(t *testing.T) {
	got, ok := ParseTechnology("Painel Monocristalino PERC")
	assert.True(t, ok)
	assert.Equal(t, TechMono, got)

	got, ok = ParseTechnology("Módulo Policristalino 330W")
	assert.True(t, ok)
	assert.Equal(t, TechPoly, got)

	_, ok = ParseTechnology("Painel monofásico 550W")
	assert.False(t, ok, "monofasico is a phase, not a technology")
}

func TestParseControllerTypeAndConnector(t *testing.T) {
	got, ok := ParseControllerType("Controlador de carga MPPT 60A")
	assert.True(t, ok)
	assert.Equal(t, ControllerMPPT, got)

	got, ok = ParseControllerType("controlador pwm 30a")
	assert.True(t, ok)
	assert.Equal(t, ControllerPWM, got)

	got, ok = ParseConnector("Conector MC4 macho/fêmea")
	assert.True(t, ok)
	assert.Equal(t, "MC4", got)
}

func TestQuantities(t *testing.T) {
	ah, ok := ParseCapacityAh("Bateria 12V 100Ah")
	require.True(t, ok)
	assert.Equal(t, 100.0, ah)

	kwh, ok := ParseEnergyKWh("5,12 kWh")
	require.True(t, ok)
	assert.InDelta(t, 5.12, kwh, 1e-9)

	kwh, ok = ParseEnergyKWh("Bateria 5.120 kWh")
	require.True(t, ok)
	assert.InDelta(t, 5.12, kwh, 1e-9)

	kwh, ok = ParseEnergyKWh("2400Wh")
	require.True(t, ok)
	assert.InDelta(t, 2.4, kwh, 1e-9)

	a, ok := ParseCurrent("MPPT 60A")
	require.True(t, ok)
	assert.Equal(t, 60.0, a)

	_, ok = ParseCurrent("100Ah")
	assert.False(t, ok)

	mm, ok := ParseCrossSection("Cabo solar 6mm² preto")
	require.True(t, ok)
	assert.Equal(t, 6.0, mm)

	mm, ok = ParseCrossSection("4 mm2")
	require.True(t, ok)
	assert.Equal(t, 4.0, mm)

	cells, ok := ParseCells("Painel 550W 144 células")
	require.True(t, ok)
	assert.Equal(t, 144, cells)

	mppts, ok := ParseMPPTs("Inversor 2 MPPTs")
	require.True(t, ok)
	assert.Equal(t, 2, mppts)

	panels, ok := ParsePanelCount("Kit com 10 painéis 560W")
	require.True(t, ok)
	assert.Equal(t, 10, panels)
}

func TestParseBRL(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		minor    int64
		ok       bool
	}{
		{"R$ 4.500,00", "BRL", 450000, true},
		{"R$4.500", "BRL", 450000, true},
		{"1234,56", "BRL", 123456, true},
		{"US$ 1,234.50", "USD", 123450, true},
		{"sob consulta", "", 0, false},
		{"-10", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseBRL(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.currency, got.Currency)
				assert.Equal(t, tt.minor, got.AmountMinorUnits)
			}
		})
	}
}

func TestPriceFrom_Number(t *testing.T) {
	p, ok := PriceFrom(4500.5)
	require.True(t, ok)
	assert.Equal(t, int64(450050), p.AmountMinorUnits)
	assert.Equal(t, "BRL", p.Currency)
}

func TestParsersNeverPanic(t *testing.T) {
	inputs := []string{"", " ", "%%%", "...", ",,,", "R$", "9999999999999999999999999", "kW", "/V"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = ParsePower(in)
			_, _ = FindPower(in)
			_, _ = ParseVoltage(in)
			_, _ = ParsePhases(in)
			_, _ = ParseEfficiency(in)
			_, _ = ParseBRL(in)
			_, _ = ParseCapacityAh(in)
			_, _ = ParseCells(in)
		})
	}
}
