package reconciliation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

func sideRows(side models.Side, values ...map[string]string) []models.Row {
	out := make([]models.Row, len(values))
	for i, v := range values {
		out[i] = models.Row{ID: fmt.Sprintf("%s:%d", side, i+1), Side: side, Line: i + 1, Values: v}
	}
	return out
}

func TestPipelinePresenceChecksUnmatchedRows(t *testing.T) {
	p := newPipeline()
	fm := &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "ref", Field2: "ref", Role: models.FieldRoleKey},
		{Field1: "amount", Field2: "amount", Type: models.FieldTypeNumber},
	}}
	columns := []string{"ref", "amount", "dealer"}
	rules, err := p.Prepare(fm, columns, columns, []models.ValidationRule{
		{ID: "r1", Name: "Dealer present", Type: models.RuleTypePresence, Field1: "dealer", Enabled: true},
		{ID: "r2", Name: "Amount band", Type: models.RuleTypeMinMax, Field1: "amount", Value: ptr("0-1000"), Enabled: true},
	})
	require.NoError(t, err)

	s1 := sideRows(models.SideSource1,
		map[string]string{"ref": "A1", "amount": "100", "dealer": "D-01"},
		map[string]string{"ref": "B2", "amount": "5000", "dealer": ""})
	s2 := sideRows(models.SideSource2,
		map[string]string{"ref": "A1", "amount": "100", "dealer": "D-01"},
		map[string]string{"ref": "C3", "amount": "7", "dealer": " "})

	out, err := p.Execute(context.Background(), fm, rules, matching.NewSliceSource(s1), matching.NewSliceSource(s2))
	require.NoError(t, err)

	// only the presence rule runs on unpaired rows
	require.Len(t, out.Failures, 2)
	assert.Equal(t, "source1:2", out.Failures[0].RecordID)
	assert.Equal(t, "source2:2", out.Failures[1].RecordID)
	for _, f := range out.Failures {
		assert.Equal(t, "r1", f.RuleID)
	}

	var validation []models.ExceptionRecord
	for _, exc := range out.Exceptions {
		if exc.Kind == models.ExceptionKindValidation {
			validation = append(validation, exc)
		}
	}
	require.Len(t, validation, 2)
	assert.Equal(t, "Dealer present", validation[0].Rule)
	assert.Empty(t, validation[0].RelatedRecordID)
	assert.Len(t, out.Exceptions, 4)

	stats := out.Match.Stats
	assert.Equal(t, 2, stats.MatchedRows)
	assert.Equal(t, 2, stats.UnmatchedRows)
	assert.Equal(t, 0, stats.ExceptionRows)
}

func TestPipelineWithoutRowRulesSkipsUnmatchedRows(t *testing.T) {
	p := newPipeline()
	fm := &models.FieldMapping{Pairs: []models.FieldPair{
		{Field1: "ref", Field2: "ref", Role: models.FieldRoleKey},
	}}
	columns := []string{"ref", "amount"}
	rules, err := p.Prepare(fm, columns, columns, []models.ValidationRule{
		{ID: "r1", Name: "Amount band", Type: models.RuleTypeMinMax, Field1: "amount", Value: ptr("0-10"), Enabled: true},
	})
	require.NoError(t, err)

	out, err := p.Execute(context.Background(), fm, rules,
		matching.NewSliceSource(sideRows(models.SideSource1, map[string]string{"ref": "A1", "amount": "99"})),
		matching.NewSliceSource(nil))
	require.NoError(t, err)

	assert.Empty(t, out.Failures)
	require.Len(t, out.Exceptions, 1)
	assert.Equal(t, models.RuleUnmatchedRecord, out.Exceptions[0].Rule)
}
