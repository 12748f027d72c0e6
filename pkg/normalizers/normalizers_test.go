package normalizers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestRegistry(t *testing.T) {
	t.Run("applies a registered normalizer", func(t *testing.T) {
		assert.Equal(t, "inv 001", Apply("  INV   001 ", "casefold"))
	})

	t.Run("unknown normalizer leaves value unchanged", func(t *testing.T) {
		assert.Equal(t, "A1", Apply("A1", "does-not-exist"))
	})

	t.Run("chains in order", func(t *testing.T) {
		assert.Equal(t, "inv001", ApplyChain(" INV-001 ", "trim", "alphanumeric", "lowercase"))
	})

	t.Run("strips leading zeros", func(t *testing.T) {
		assert.Equal(t, "123", ApplyChain("000123", "strip_leading_zeros"))
		assert.Equal(t, "0", ApplyChain("000", "strip_leading_zeros"))
	})

	t.Run("names are sorted", func(t *testing.T) {
		names := Names()
		assert.Contains(t, names, "digits_only")
		assert.IsNonDecreasing(t, names)
	})

	t.Run("custom normalizers can be registered", func(t *testing.T) {
		Register("strip_prefix", func(s string) string { return s[1:] })
		fn, ok := Get("strip_prefix")
		require.True(t, ok)
		assert.Equal(t, "123", fn("#123"))
	})
}

func TestCanonicalNumber(t *testing.T) {
	cases := map[string]string{
		"100":         "100",
		"100.00":      "100",
		" 1,250.50 ":  "1250.5",
		"$1,000":      "1000",
		"(42.10)":     "-42.1",
		"42.10-":      "-42.1",
		"₹ 12,34,567": "1234567",
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			got, err := CanonicalNumber(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := CanonicalNumber("twelve")
	assert.Error(t, err)
}

func TestWithinTolerance(t *testing.T) {
	a := decimal.RequireFromString("100.00")
	assert.True(t, WithinTolerance(a, decimal.RequireFromString("100.004"), decimal.RequireFromString("0.005")))
	assert.False(t, WithinTolerance(a, decimal.RequireFromString("100.01"), decimal.RequireFromString("0.005")))
	assert.True(t, WithinTolerance(a, a, decimal.Zero))
}

func TestCanonicalDate(t *testing.T) {
	t.Run("different declared formats agree", func(t *testing.T) {
		iso, err := CanonicalDate("2023-04-15", "date")
		require.NoError(t, err)
		eu, err := CanonicalDate("15/04/2023", "dd/mm/yyyy")
		require.NoError(t, err)
		assert.Equal(t, "2023-04-15", iso)
		assert.Equal(t, iso, eu)
	})

	t.Run("month names", func(t *testing.T) {
		got, err := CanonicalDate("15-Apr-2023", "dd-mon-yyyy")
		require.NoError(t, err)
		assert.Equal(t, "2023-04-15", got)
	})

	t.Run("go layouts pass through", func(t *testing.T) {
		got, err := CanonicalDate("04/15/2023", "01/02/2006")
		require.NoError(t, err)
		assert.Equal(t, "2023-04-15", got)
	})

	t.Run("times are kept", func(t *testing.T) {
		got, err := CanonicalDate("2023-04-15T10:30:00Z", "iso8601")
		require.NoError(t, err)
		assert.Equal(t, "2023-04-15T10:30:00Z", got)
	})

	t.Run("format is required", func(t *testing.T) {
		_, err := CanonicalDate("2023-04-15", "")
		assert.Error(t, err)
	})

	t.Run("mismatched value", func(t *testing.T) {
		_, err := CanonicalDate("2023-04-15", "dd/mm/yyyy")
		assert.Error(t, err)
	})
}

func TestResolveDateFormat(t *testing.T) {
	assert.Equal(t, "02/01/2006", ResolveDateFormat("dd/mm/yyyy"))
	assert.Equal(t, "2006-01-02 15:04:05", ResolveDateFormat("yyyy-mm-dd hh:mi:ss"))
	assert.Equal(t, "2006-01-02T15:04:05", ResolveDateFormat("yyyy-mm-ddThh:mi:ss"))
	assert.Equal(t, "2006-01-02", ResolveDateFormat("date"))
	assert.Equal(t, "Jan 2, 2006", ResolveDateFormat("Jan 2, 2006"))
}

func TestCanonical(t *testing.T) {
	got, err := Canonical("  Dealer  ABC ", models.FieldTypeString, "")
	require.NoError(t, err)
	assert.Equal(t, "dealer abc", got)

	got, err = Canonical("   ", models.FieldTypeNumber, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	folded, ok := CanonicalOrFold("N/A", models.FieldTypeNumber, "")
	assert.False(t, ok)
	assert.Equal(t, "n/a", folded)
}

func TestPairValue(t *testing.T) {
	pair := models.FieldPair{
		Field1:      "invoice",
		Field2:      "ref",
		Normalizers: []string{"digits_only", "strip_leading_zeros"},
	}
	assert.Equal(t, "42", PairValue("INV-0042", pair, models.SideSource1))
	assert.Equal(t, "42", PairValue("42", pair, models.SideSource2))

	date := models.FieldPair{Type: models.FieldTypeDate, DateFormat1: "dd/mm/yyyy", DateFormat2: "yyyy-mm-dd"}
	assert.Equal(t, PairValue("2024-03-05", date, models.SideSource2), PairValue("05/03/2024", date, models.SideSource1))
}
