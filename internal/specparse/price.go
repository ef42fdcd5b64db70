package specparse

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a parsed monetary amount.
type Price struct {
	Currency         string
	AmountMinorUnits int64
}

var currencyMarkers = []struct {
	marker   string
	currency string
}{
	{"US$", "USD"},
	{"USD", "USD"},
	{"€", "EUR"},
	{"EUR", "EUR"},
	{"R$", "BRL"},
	{"BRL", "BRL"},
}

// ParseBRL parses a price such as "R$ 4.500,00" into minor units (450000). Amounts without a
// currency marker are taken as BRL.
func ParseBRL(s string) (Price, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return Price{}, false
	}

	currency := "BRL"
	upper := strings.ToUpper(s)
	for _, cm := range currencyMarkers {
		if strings.Contains(upper, cm.marker) {
			currency = cm.currency
			break
		}
	}

	tok := numberPattern.FindString(s)
	if tok == "" {
		return Price{}, false
	}
	canonical, ok := canonicalNumber(tok, true)
	if !ok {
		return Price{}, false
	}
	amount, err := decimal.NewFromString(canonical)
	if err != nil {
		return Price{}, false
	}
	minor := amount.Mul(decimal.NewFromInt(100)).Round(0)
	return Price{Currency: currency, AmountMinorUnits: minor.IntPart()}, true
}

// PriceFrom parses a raw price field. JSON numbers are read as major units.
func PriceFrom(v any) (Price, bool) {
	if s, ok := v.(string); ok {
		return ParseBRL(s)
	}
	f, ok := NumberFrom(v)
	if !ok || f < 0 {
		return Price{}, false
	}
	minor := decimal.NewFromFloat(f).Mul(decimal.NewFromInt(100)).Round(0)
	return Price{Currency: "BRL", AmountMinorUnits: minor.IntPart()}, true
}
