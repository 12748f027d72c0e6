package normalizers

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// Canonical renders a raw value in the comparable form for its field type.
// Strings are case-folded, numbers reduced to their decimal value and dates parsed
// with the declared format. Blank values canonicalize to "".
func Canonical(raw string, fieldType models.FieldType, dateFormat string) (string, error) {
	trimmed := Trim(raw)
	if trimmed == "" {
		return "", nil
	}

	switch fieldType {
	case models.FieldTypeNumber:
		return CanonicalNumber(trimmed)
	case models.FieldTypeDate:
		return CanonicalDate(trimmed, dateFormat)
	default:
		return CaseFold(trimmed), nil
	}
}

// CanonicalOrFold canonicalizes raw, falling back to the case-folded text when the
// value does not parse as its declared type. The bool reports whether parsing succeeded.
func CanonicalOrFold(raw string, fieldType models.FieldType, dateFormat string) (string, bool) {
	canonical, err := Canonical(raw, fieldType, dateFormat)
	if err != nil {
		return CaseFold(raw), false
	}
	return canonical, true
}

// PairValue runs the pair's normalizer chain over a raw value from side and then
// canonicalizes it with that side's declared date format.
func PairValue(raw string, pair models.FieldPair, side models.Side) string {
	format := pair.DateFormat1
	if side == models.SideSource2 {
		format = pair.DateFormat2
	}
	canonical, _ := CanonicalOrFold(ApplyChain(raw, pair.Normalizers...), pair.EffectiveType(), format)
	return canonical
}
