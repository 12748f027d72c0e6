package matching

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

const keySeparator = "\x1f"

// canonicalKey builds the lookup key of a row from the key pairs. ok is false when
// every key part is blank; such rows cannot be paired.
func canonicalKey(row models.Row, keys []models.FieldPair, side models.Side) (string, bool) {
	parts := make([]string, len(keys))
	blank := true
	for i, pair := range keys {
		field := pair.Field1
		if side == models.SideSource2 {
			field = pair.Field2
		}
		parts[i] = normalizers.PairValue(row.Values[field], pair, side)
		if parts[i] != "" {
			blank = false
		}
	}
	if blank {
		return "", false
	}
	return strings.Join(parts, keySeparator), true
}

// displayKey renders the raw key values of a row for exception output
func displayKey(row models.Row, keys []models.FieldPair, side models.Side) string {
	parts := make([]string, len(keys))
	for i, pair := range keys {
		field := pair.Field1
		if side == models.SideSource2 {
			field = pair.Field2
		}
		parts[i] = row.Values[field]
	}
	return strings.Join(parts, " | ")
}

// agree reports whether two raw values are equal under the pair's type and tolerance.
// Values that do not parse as the declared type fall back to a case-folded comparison.
func agree(pair models.FieldPair, raw1, raw2 string) bool {
	if strings.TrimSpace(raw1) == "" && strings.TrimSpace(raw2) == "" {
		return true
	}

	if pair.EffectiveType() == models.FieldTypeNumber {
		a, errA := normalizers.ParseDecimal(normalizers.ApplyChain(raw1, pair.Normalizers...))
		b, errB := normalizers.ParseDecimal(normalizers.ApplyChain(raw2, pair.Normalizers...))
		if errA == nil && errB == nil {
			return normalizers.WithinTolerance(a, b, tolerance(pair))
		}
		return normalizers.CaseFold(raw1) == normalizers.CaseFold(raw2)
	}

	return normalizers.PairValue(raw1, pair, models.SideSource1) == normalizers.PairValue(raw2, pair, models.SideSource2)
}

func tolerance(pair models.FieldPair) decimal.Decimal {
	if pair.Tolerance == "" {
		return decimal.Zero
	}
	tol, err := normalizers.ParseDecimal(pair.Tolerance)
	if err != nil {
		return decimal.Zero
	}
	return tol
}
