package mapping

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestMapper() *Mapper {
	return NewMapper(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), DefaultConfig())
}

func fields(m *models.FieldMapping) [][2]string {
	out := make([][2]string, len(m.Pairs))
	for i, p := range m.Pairs {
		out[i] = [2]string{p.Field1, p.Field2}
	}
	return out
}

func TestAutoMatchExactColumns(t *testing.T) {
	m := newTestMapper()

	got := m.AutoMatch(context.Background(),
		[]string{"purchase_date", "amount"},
		[]string{"purchase_date", "amount", "dealer_code"})

	assert.Equal(t, [][2]string{{"purchase_date", "purchase_date"}, {"amount", "amount"}}, fields(got))
}

func TestAutoMatchScoring(t *testing.T) {
	m := newTestMapper()

	got := m.AutoMatch(context.Background(),
		[]string{"item_date", "Order Reference", "invoice_number", "amount", "emi", "notes"},
		[]string{"emi", "amount", "invoice_number", "order_reference", "purchase_date", "dealer_code"})

	assert.Equal(t, [][2]string{
		{"item_date", "purchase_date"},
		{"Order Reference", "order_reference"},
		{"invoice_number", "invoice_number"},
		{"amount", "amount"},
		{"emi", "emi"},
	}, fields(got))

	// the first identifier-like column becomes the key
	assert.Equal(t, models.FieldRoleCompare, got.Pairs[0].Role)
	assert.Equal(t, models.FieldRoleKey, got.Pairs[1].Role)
	assert.Len(t, got.KeyPairs(), 1)
}

func TestAutoMatchStrongestClaimWins(t *testing.T) {
	m := newTestMapper()

	got := m.AutoMatch(context.Background(),
		[]string{"total", "total_amount"},
		[]string{"total_amount"})
	assert.Equal(t, [][2]string{{"total_amount", "total_amount"}}, fields(got))

	// an earlier synonym must not take the column a later one matches exactly
	got = m.AutoMatch(context.Background(),
		[]string{"total_amount", "amount"},
		[]string{"amount", "total"})
	assert.Equal(t, [][2]string{{"total_amount", "total"}, {"amount", "amount"}}, fields(got))
}

func TestAutoMatchTiesGoToEarlierColumn(t *testing.T) {
	m := newTestMapper()

	got := m.AutoMatch(context.Background(),
		[]string{"total", "amount"},
		[]string{"total_amount"})

	assert.Equal(t, [][2]string{{"total", "total_amount"}}, fields(got))
}

func TestScoreSubstringOnTokenBoundaries(t *testing.T) {
	m := newTestMapper()

	assert.Equal(t, ScoreSubstring, m.score("date", "due_date"))
	assert.Equal(t, ScoreSubstring, m.score("dealer name", "dealer_name_full"))
	assert.Less(t, m.score("id", "paid_amount"), m.config.Threshold)
	assert.Less(t, m.score("no", "notes"), m.config.Threshold)

	got := m.AutoMatch(context.Background(), []string{"id", "no"}, []string{"paid_amount", "notes"})
	assert.Empty(t, got.Pairs)
}

func TestAutoMatchBelowThresholdOmitted(t *testing.T) {
	m := newTestMapper()

	got := m.AutoMatch(context.Background(), []string{"invoice_date"}, []string{"shipping_date"})
	assert.Empty(t, got.Pairs)
}

func TestAutoMatchDeterministic(t *testing.T) {
	m := newTestMapper()
	c1 := []string{"ref", "customerName", "amount", "dueDate"}
	c2 := []string{"customer_name", "due_date", "reference", "amount"}

	first := m.AutoMatch(context.Background(), c1, c2)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.AutoMatch(context.Background(), c1, c2))
	}
	assert.Equal(t, [][2]string{
		{"ref", "reference"},
		{"customerName", "customer_name"},
		{"amount", "amount"},
		{"dueDate", "due_date"},
	}, fields(first))
}

func TestSetMapping(t *testing.T) {
	base := &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "ref", Field2: "ref", Role: models.FieldRoleKey},
		{Field1: "amount", Field2: "amount"},
	}}

	t.Run("insert", func(t *testing.T) {
		got, err := SetMapping(base, models.FieldPair{Field1: "date", Field2: "purchase_date"}, models.ConflictModeStrict)
		require.NoError(t, err)
		assert.Len(t, got.Pairs, 3)
		assert.Len(t, base.Pairs, 2, "input must not be modified")
	})

	t.Run("re-point existing field1 keeps position", func(t *testing.T) {
		got, err := SetMapping(base, models.FieldPair{Field1: "ref", Field2: "order_ref", Role: models.FieldRoleKey}, models.ConflictModeStrict)
		require.NoError(t, err)
		assert.Equal(t, "order_ref", got.Pairs[0].Field2)
		assert.Len(t, got.Pairs, 2)
	})

	t.Run("strict conflict", func(t *testing.T) {
		_, err := SetMapping(base, models.FieldPair{Field1: "total", Field2: "amount"}, models.ConflictModeStrict)
		require.Error(t, err)
		assert.True(t, ferrors.IsMappingConflict(err))
		var conflict *ferrors.MappingConflict
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "amount", conflict.ExistingField1)
	})

	t.Run("overwrite drops other claimant", func(t *testing.T) {
		got, err := SetMapping(base, models.FieldPair{Field1: "total", Field2: "amount"}, models.ConflictModeOverwrite)
		require.NoError(t, err)
		assert.Equal(t, [][2]string{{"ref", "ref"}, {"total", "amount"}}, fields(got))
	})

	t.Run("idempotent", func(t *testing.T) {
		pair := models.FieldPair{Field1: "date", Field2: "purchase_date", Type: models.FieldTypeDate}
		once, err := SetMapping(base, pair, models.ConflictModeStrict)
		require.NoError(t, err)
		twice, err := SetMapping(once, pair, models.ConflictModeStrict)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})

	t.Run("nil mapping", func(t *testing.T) {
		got, err := SetMapping(nil, models.FieldPair{Field1: "a", Field2: "b"}, models.ConflictModeStrict)
		require.NoError(t, err)
		assert.Len(t, got.Pairs, 1)
	})
}

func TestValidateCollectsAll(t *testing.T) {
	mapping := &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "ref", Field2: "reference", Role: models.FieldRoleKey},
		{Field1: "missing1", Field2: "missing2"},
		{Field1: "date", Field2: "date", Type: models.FieldTypeDate, DateFormat1: "yyyy-mm-dd"},
		{Field1: "amount", Field2: "amount", Type: models.FieldTypeNumber, Tolerance: "abc"},
	}}

	problems := Validate(mapping, []string{"ref", "date", "amount"}, []string{"reference", "date", "amount"})

	require.Len(t, problems, 4)
	assert.Equal(t, "missing1", problems[0].Field)
	assert.Equal(t, "source1", problems[0].Side)
	assert.Equal(t, "missing2", problems[1].Field)
	assert.Equal(t, "source2", problems[1].Side)
	assert.Contains(t, problems[2].Message, "date format")
	assert.Contains(t, problems[3].Message, "tolerance")
}

func TestValidateRequiresKey(t *testing.T) {
	mapping := &models.FieldMapping{Pairs: []models.FieldPair{{Field1: "a", Field2: "a"}}}

	problems := Validate(mapping, []string{"a"}, []string{"a"})
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Message, "match key")

	assert.NotEmpty(t, Validate(nil, nil, nil))
}

func TestValidateUnknownNormalizer(t *testing.T) {
	mapping := &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "a", Field2: "a", Role: models.FieldRoleKey, Normalizers: []string{"trim", "soundex"}},
	}}

	problems := Validate(mapping, []string{"a"}, []string{"a"})
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Message, "soundex")
}

func TestCheck(t *testing.T) {
	mapping := &models.FieldMapping{Pairs: []models.FieldPair{{Field1: "a", Field2: "b", Role: models.FieldRoleKey}}}

	assert.NoError(t, Check(mapping, []string{"a"}, []string{"b"}))

	err := Check(mapping, []string{"a"}, []string{"c"})
	require.Error(t, err)
	assert.True(t, ferrors.IsConfigurationError(err))
}

func TestApplyColumnTypes(t *testing.T) {
	mapping := &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "amount", Field2: "total"},
		{Field1: "ref", Field2: "ref"},
	}}
	f1 := &models.SourceFile{ColumnTypes: map[string]models.ColumnType{"amount": models.ColumnTypeNumber, "ref": models.ColumnTypeNumber}}
	f2 := &models.SourceFile{ColumnTypes: map[string]models.ColumnType{"total": models.ColumnTypeNumber, "ref": models.ColumnTypeString}}

	ApplyColumnTypes(mapping, f1, f2)
	assert.Equal(t, models.FieldTypeNumber, mapping.Pairs[0].Type)
	assert.Equal(t, models.FieldType(""), mapping.Pairs[1].Type)
}
