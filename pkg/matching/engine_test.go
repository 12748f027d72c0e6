package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestEngine() *Engine {
	return NewEngine(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), DefaultConfig())
}

func rows(side models.Side, values ...map[string]string) []models.Row {
	out := make([]models.Row, len(values))
	for i, v := range values {
		out[i] = models.Row{ID: fmt.Sprintf("%s:%d", side, i+1), Side: side, Line: i + 1, Values: v}
	}
	return out
}

func refAmountMapping() *models.FieldMapping {
	return &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "ref", Field2: "ref", Role: models.FieldRoleKey},
		{Field1: "amount", Field2: "amount", Role: models.FieldRoleCompare, Type: models.FieldTypeNumber},
	}}
}

func match(t *testing.T, mapping *models.FieldMapping, s1, s2 []models.Row) *Result {
	t.Helper()
	result, err := newTestEngine().Match(context.Background(), mapping, NewSliceSource(s1), NewSliceSource(s2))
	require.NoError(t, err)
	assertCoverage(t, result, s1, s2)
	return result
}

// assertCoverage checks every input row has exactly one classification and the
// counters add up to the row total.
func assertCoverage(t *testing.T, result *Result, s1, s2 []models.Row) {
	t.Helper()
	assert.Len(t, result.Outcomes, len(s1)+len(s2))
	for _, r := range append(append([]models.Row{}, s1...), s2...) {
		assert.Contains(t, result.Outcomes, r.ID)
	}
	st := result.Stats
	assert.Equal(t, st.Total(), st.MatchedRows+st.ExceptionRows+st.UnmatchedRows)
}

func TestScenarioAMatched(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1, map[string]string{"ref": "A1", "amount": "100"}),
		rows(models.SideSource2, map[string]string{"ref": "A1", "amount": "100"}))

	assert.Len(t, result.Matched, 1)
	assert.Empty(t, result.Exceptions)
	assert.Equal(t, 2, result.Stats.MatchedRows)
}

func TestScenarioBFieldMismatch(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1, map[string]string{"ref": "A1", "amount": "100"}),
		rows(models.SideSource2, map[string]string{"ref": "A1", "amount": "105"}))

	require.Len(t, result.Exceptions, 1)
	exc := result.Exceptions[0]
	assert.Equal(t, "Field mismatch: amount", exc.Rule)
	assert.Equal(t, "100", exc.Source1Value)
	assert.Equal(t, "105", exc.Source2Value)
	assert.Equal(t, "source1:1", exc.RecordID)
	assert.Equal(t, "source2:1", exc.RelatedRecordID)
	assert.Equal(t, models.ExceptionKindMismatch, exc.Kind)
	assert.Len(t, result.Mismatched, 1)
	assert.Equal(t, 2, result.Stats.ExceptionRows)
}

func TestScenarioCUnmatched(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1, map[string]string{"ref": "A1", "amount": "100"}),
		nil)

	require.Len(t, result.Exceptions, 1)
	exc := result.Exceptions[0]
	assert.Equal(t, models.RuleUnmatchedRecord, exc.Rule)
	assert.Equal(t, models.ExceptionKindUnmatched, exc.Kind)
	assert.Equal(t, "source1:1", exc.RecordID)
	assert.Equal(t, "A1", exc.Source1Value)
	assert.Equal(t, OutcomeUnmatched, result.Outcomes["source1:1"])
}

func TestUnclaimedSource2IsUnmatched(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1, map[string]string{"ref": "A1", "amount": "100"}),
		rows(models.SideSource2,
			map[string]string{"ref": "A1", "amount": "100"},
			map[string]string{"ref": "B2", "amount": "7"}))

	require.Len(t, result.Exceptions, 1)
	assert.Equal(t, "source2:2", result.Exceptions[0].RecordID)
	assert.Equal(t, "B2", result.Exceptions[0].Source2Value)
	assert.Equal(t, "", result.Exceptions[0].Source1Value)
	assert.Equal(t, 1, result.Stats.UnmatchedRows)
	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "source2:2", result.Unmatched[0].ID)
	assert.Equal(t, models.SideSource2, result.Unmatched[0].Side)
}

func TestDuplicateMatchKey(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1, map[string]string{"ref": "A1", "amount": "100"}),
		rows(models.SideSource2,
			map[string]string{"ref": "A1", "amount": "100"},
			map[string]string{"ref": " a1 ", "amount": "100"}))

	require.Len(t, result.Exceptions, 2)
	for _, exc := range result.Exceptions {
		assert.Equal(t, models.RuleDuplicateMatchKey, exc.Rule)
		assert.Equal(t, "source1:1", exc.RecordID)
	}
	assert.Empty(t, result.Matched)
	assert.Equal(t, 3, result.Stats.ExceptionRows)
}

func TestDuplicateSource1Key(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1,
			map[string]string{"ref": "A1", "amount": "100"},
			map[string]string{"ref": "A1", "amount": "100"}),
		rows(models.SideSource2, map[string]string{"ref": "A1", "amount": "100"}))

	// both Source-1 rows are flagged, whatever their order in the file
	assert.Empty(t, result.Matched)
	require.Len(t, result.Exceptions, 2)
	assert.Equal(t, "source1:1", result.Exceptions[0].RecordID)
	assert.Equal(t, "source1:2", result.Exceptions[1].RecordID)
	for _, exc := range result.Exceptions {
		assert.Equal(t, models.RuleDuplicateMatchKey, exc.Rule)
		assert.Equal(t, "source2:1", exc.RelatedRecordID)
	}
	assert.Equal(t, 3, result.Stats.ExceptionRows)
	assert.Equal(t, OutcomeException, result.Outcomes["source1:1"])
}

func TestDuplicateSource1KeyDropsFirstPairMismatches(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1,
			map[string]string{"ref": "A1", "amount": "90"},
			map[string]string{"ref": "B2", "amount": "5"},
			map[string]string{"ref": "A1", "amount": "100"},
			map[string]string{"ref": "A1", "amount": "110"}),
		rows(models.SideSource2,
			map[string]string{"ref": "A1", "amount": "100"},
			map[string]string{"ref": "B2", "amount": "5"}))

	assert.Empty(t, result.Mismatched)
	require.Len(t, result.Matched, 1)
	assert.Equal(t, "source1:2", result.Matched[0].Source1.ID)

	require.Len(t, result.Exceptions, 3)
	for i, id := range []string{"source1:1", "source1:3", "source1:4"} {
		assert.Equal(t, models.RuleDuplicateMatchKey, result.Exceptions[i].Rule)
		assert.Equal(t, id, result.Exceptions[i].RecordID)
	}
	assert.Equal(t, 2, result.Stats.MatchedRows)
	assert.Equal(t, 4, result.Stats.ExceptionRows)
}

func TestBlankKeysNeverPair(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1, map[string]string{"ref": "", "amount": "1"}),
		rows(models.SideSource2, map[string]string{"ref": "  ", "amount": "1"}))

	assert.Empty(t, result.Matched)
	assert.Equal(t, 2, result.Stats.UnmatchedRows)
}

func TestCanonicalization(t *testing.T) {
	mapping := &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "date", Field2: "purchase_date", Role: models.FieldRoleKey, Type: models.FieldTypeDate, DateFormat1: "yyyy-mm-dd", DateFormat2: "dd/mm/yyyy"},
		{Field1: "ref", Field2: "order_ref", Role: models.FieldRoleKey},
		{Field1: "amount", Field2: "total", Type: models.FieldTypeNumber, Tolerance: "0.01"},
		{Field1: "customer", Field2: "client"},
	}}

	result := match(t, mapping,
		rows(models.SideSource1, map[string]string{"date": "2023-04-15", "ref": "INV-9", "amount": "1,200.00", "customer": "Acme Ltd"}),
		rows(models.SideSource2, map[string]string{"purchase_date": "15/04/2023", "order_ref": "inv-9 ", "total": "$1200.005", "client": " ACME LTD"}))

	assert.Len(t, result.Matched, 1)
	assert.Empty(t, result.Exceptions)
}

func TestKeyNormalizers(t *testing.T) {
	mapping := &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "invoice", Field2: "ref", Role: models.FieldRoleKey, Normalizers: []string{"digits_only", "strip_leading_zeros"}},
	}}
	result := match(t, mapping,
		rows(models.SideSource1, map[string]string{"invoice": "INV-0042"}),
		rows(models.SideSource2, map[string]string{"ref": "42"}))

	assert.Len(t, result.Matched, 1)
	assert.Equal(t, 2, result.Stats.MatchedRows)
}

func TestMultipleMismatchesOnePair(t *testing.T) {
	mapping := refAmountMapping()
	mapping.Pairs = append(mapping.Pairs, models.FieldPair{Field1: "status", Field2: "state"})

	result := match(t, mapping,
		rows(models.SideSource1, map[string]string{"ref": "A1", "amount": "100", "status": "paid"}),
		rows(models.SideSource2, map[string]string{"ref": "A1", "amount": "90", "state": "open"}))

	require.Len(t, result.Exceptions, 2)
	assert.Equal(t, "Field mismatch: amount", result.Exceptions[0].Rule)
	assert.Equal(t, "Field mismatch: status", result.Exceptions[1].Rule)
	assert.Equal(t, 2, result.Stats.ExceptionRows)
}

func TestDeterminism(t *testing.T) {
	var v1, v2 []map[string]string
	for i := 0; i < 200; i++ {
		v1 = append(v1, map[string]string{"ref": fmt.Sprintf("R%d", i%150), "amount": fmt.Sprintf("%d", i)})
		v2 = append(v2, map[string]string{"ref": fmt.Sprintf("R%d", (i*7)%180), "amount": fmt.Sprintf("%d", i%3)})
	}
	s1, s2 := rows(models.SideSource1, v1...), rows(models.SideSource2, v2...)

	first := match(t, refAmountMapping(), s1, s2)
	for i := 0; i < 5; i++ {
		again := match(t, refAmountMapping(), s1, s2)
		assert.Equal(t, first.Exceptions, again.Exceptions)
		assert.Equal(t, first.Outcomes, again.Outcomes)
		assert.Equal(t, first.Stats, again.Stats)
	}
}

func TestReclassify(t *testing.T) {
	result := match(t, refAmountMapping(),
		rows(models.SideSource1, map[string]string{"ref": "A1", "amount": "100"}),
		rows(models.SideSource2, map[string]string{"ref": "A1", "amount": "100"}))

	result.Reclassify("source1:1", OutcomeException)
	result.Reclassify("source2:1", OutcomeException)
	result.Reclassify("unknown", OutcomeException)

	assert.Equal(t, 0, result.Stats.MatchedRows)
	assert.Equal(t, 2, result.Stats.ExceptionRows)
}

func TestMatchRequiresKey(t *testing.T) {
	mapping := &models.FieldMapping{Pairs: []models.FieldPair{{Field1: "a", Field2: "a"}}}

	_, err := newTestEngine().Match(context.Background(), mapping, NewSliceSource(nil), NewSliceSource(nil))
	assert.True(t, ferrors.IsConfigurationError(err))
}

func TestMatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Match(ctx, refAmountMapping(), NewSliceSource(nil), NewSliceSource(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
