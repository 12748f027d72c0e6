package normalizers

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = []string{"$", "€", "£", "¥", "₹", "₩", "฿", "₱", "₫"}

// ParseDecimal reads an amount as written in exports: thousands separators, currency
// symbols, a trailing or leading sign and accounting parentheses are accepted.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty numeric value")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	for _, symbol := range currencySymbols {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "_", "")
	s = removeWhitespace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// CanonicalNumber renders a number without insignificant zeros, so "100", "100.00"
// and "1,00.0" all key the same way.
func CanonicalNumber(raw string) (string, error) {
	d, err := ParseDecimal(raw)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// WithinTolerance reports whether |a-b| <= tolerance
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance.Abs())
}
