// Package reconciliation sequences a run: mapping checks, matching, rule evaluation,
// exception assembly and persistence of the finished ReconciliationRecord.
package reconciliation

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// Pipeline is the storage-free part of a run, shared by the service and the CLI
type Pipeline struct {
	matcher   *matching.Engine
	validator *validation.Engine
	logger    ectologger.Logger
}

func NewPipeline(logger ectologger.Logger, matcher *matching.Engine, validator *validation.Engine) *Pipeline {
	return &Pipeline{matcher: matcher, validator: validator, logger: logger}
}

// Outcome is the result of executing a run before it is persisted
type Outcome struct {
	Match *matching.Result
	// Exceptions holds matching exceptions followed by validation exceptions
	Exceptions []models.ExceptionRecord
	// Failures holds every failed validation result
	Failures []models.ValidationResult
}

// Prepare checks the mapping against both files' columns and compiles the enabled
// rules. Nothing has been read from the files when it fails.
func (p *Pipeline) Prepare(fm *models.FieldMapping, columns1, columns2 []string, defs []models.ValidationRule) ([]validation.Rule, error) {
	if err := mapping.Check(fm, columns1, columns2); err != nil {
		return nil, err
	}
	return p.validator.Compile(defs)
}

// Execute matches the two sources and evaluates the rules over every linked pair.
// A pair that fails a rule is counted as an exception even when its fields agree.
// Rules that apply to single rows also run over unmatched rows; those rows keep their
// unmatched classification.
func (p *Pipeline) Execute(ctx context.Context, fm *models.FieldMapping, rules []validation.Rule, source1, source2 matching.RowSource) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Pipeline.Execute")
	defer span.End()

	match, err := p.matcher.Match(ctx, fm, source1, source2)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	outcome := &Outcome{
		Match:      match,
		Exceptions: append([]models.ExceptionRecord{}, match.Exceptions...),
		Failures:   []models.ValidationResult{},
	}
	if len(rules) == 0 {
		return outcome, nil
	}

	pairs := append(append([]matching.Pair{}, match.Matched...), match.Mismatched...)
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Source1.Line < pairs[j].Source1.Line })

	records := make([]validation.Record, len(pairs))
	related := make(map[string]string, len(pairs))
	for i, pair := range pairs {
		records[i] = validation.Record{
			ID:        pair.Source1.ID,
			RelatedID: pair.Source2.ID,
			Source1:   pair.Source1.Values,
			Source2:   pair.Source2.Values,
			Mapping:   fm,
		}
		related[pair.Source1.ID] = pair.Source2.ID
	}

	summary, err := p.validator.Evaluate(ctx, rules, records)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	failures := summary.Failures

	if rowRules := validation.RowRules(rules); len(rowRules) > 0 && len(match.Unmatched) > 0 {
		singles := make([]validation.Record, len(match.Unmatched))
		for i, row := range match.Unmatched {
			singles[i] = validation.Record{ID: row.ID, Mapping: fm}
			if row.Side == models.SideSource2 {
				singles[i].Source2 = row.Values
			} else {
				singles[i].Source1 = row.Values
			}
		}
		rowSummary, err := p.validator.Evaluate(ctx, rowRules, singles)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		failures = append(failures, rowSummary.Failures...)
	}

	outcome.Failures = failures
	for _, failure := range failures {
		relatedID, paired := related[failure.RecordID]
		outcome.Exceptions = append(outcome.Exceptions, models.ExceptionRecord{
			RecordID:        failure.RecordID,
			RelatedRecordID: relatedID,
			Kind:            models.ExceptionKindValidation,
			Rule:            failure.RuleName,
			RuleID:          failure.RuleID,
			Field:           failure.Field1,
			Source1Value:    failure.Value1,
			Source2Value:    failure.Value2,
		})
		if paired {
			match.Reclassify(failure.RecordID, matching.OutcomeException)
			match.Reclassify(relatedID, matching.OutcomeException)
		}
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"matched_rows":        match.Stats.MatchedRows,
		"exception_rows":      match.Stats.ExceptionRows,
		"unmatched_rows":      match.Stats.UnmatchedRows,
		"validation_failures": len(failures),
	}).Debug("Executed reconciliation pipeline")

	return outcome, nil
}
