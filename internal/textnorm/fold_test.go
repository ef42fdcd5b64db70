package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"accents removed", "Módulo Fotovoltaico", "modulo fotovoltaico"},
		{"whitespace collapsed", "  Inversor   Híbrido \t 5kW ", "inversor hibrido 5kw"},
		{"cedilla", "Instalação", "instalacao"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fold(tt.input))
		})
	}
}

func TestAlnumOnly(t *testing.T) {
	assert.Equal(t, "longi", AlnumOnly("LON GI"))
	assert.Equal(t, "longi", AlnumOnly("Longi"))
	assert.Equal(t, "min5000tlx", AlnumOnly("MIN 5000TL-X"))
	assert.Equal(t, "", AlnumOnly(" - "))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"inversor", "220", "127v", "trifasico"}, Tokens("Inversor 220/127V trifásico"))
	assert.Equal(t, []string{"off", "grid"}, Tokens("OFF-GRID"))
}

func TestTrim(t *testing.T) {
	assert.Equal(t, "Painel Solar 550W", Trim("  Painel  Solar\n550W "))
	assert.Equal(t, "Módulo", Trim("Módulo"))
}

