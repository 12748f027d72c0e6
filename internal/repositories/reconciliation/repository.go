package reconciliation

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	tableName       = "reconciliations"
	exceptionsTable = "exceptions"
	resultsTable    = "validation_results"
	insertBatchSize = 500
)

var columns = []string{
	"id", "tenant_id", "workspace_id", "status", "source1_file_id", "source2_file_id", "executed_at", "completed_at",
	"total_records", "matched_records", "exception_records", "unmatched_records", "exception_count", "validation_failures",
	"triggered_by", "failure_reason",
}

var exceptionColumns = []string{
	"id", "tenant_id", "workspace_id", "reconciliation_id", "record_id", "related_record_id", "kind", "rule", "rule_id",
	"field", "source1_value", "source2_value", "status", "notes", "resolved_by", "resolved_at", "version", "fingerprint",
	"created_at", "updated_at",
}

var resultColumns = []string{
	"tenant_id", "reconciliation_id", "rule_id", "rule_name", "record_id", "passed", "field1", "field2", "value1", "value2",
	"expected_value", "message",
}

type row struct {
	ID                 string     `db:"id"`
	TenantID           string     `db:"tenant_id"`
	WorkspaceID        string     `db:"workspace_id"`
	Status             string     `db:"status"`
	Source1FileID      string     `db:"source1_file_id"`
	Source2FileID      string     `db:"source2_file_id"`
	ExecutedAt         time.Time  `db:"executed_at"`
	CompletedAt        *time.Time `db:"completed_at"`
	TotalRecords       int        `db:"total_records"`
	MatchedRecords     int        `db:"matched_records"`
	ExceptionRecords   int        `db:"exception_records"`
	UnmatchedRecords   int        `db:"unmatched_records"`
	ExceptionCount     int        `db:"exception_count"`
	ValidationFailures int        `db:"validation_failures"`
	TriggeredBy        string     `db:"triggered_by"`
	FailureReason      *string    `db:"failure_reason"`
}

func (r row) toModel() models.ReconciliationRecord {
	return models.ReconciliationRecord{
		ID:                 r.ID,
		TenantID:           r.TenantID,
		WorkspaceID:        r.WorkspaceID,
		Status:             models.RunStatus(r.Status),
		Source1FileID:      r.Source1FileID,
		Source2FileID:      r.Source2FileID,
		ExecutedAt:         r.ExecutedAt,
		CompletedAt:        r.CompletedAt,
		TotalRecords:       r.TotalRecords,
		MatchedRecords:     r.MatchedRecords,
		ExceptionRecords:   r.ExceptionRecords,
		UnmatchedRecords:   r.UnmatchedRecords,
		ExceptionCount:     r.ExceptionCount,
		ValidationFailures: r.ValidationFailures,
		TriggeredBy:        r.TriggeredBy,
		FailureReason:      r.FailureReason,
	}
}

type resultRow struct {
	ReconciliationID string `db:"reconciliation_id"`
	RuleID           string `db:"rule_id"`
	RuleName         string `db:"rule_name"`
	RecordID         string `db:"record_id"`
	Passed           bool   `db:"passed"`
	Field1           string `db:"field1"`
	Field2           string `db:"field2"`
	Value1           string `db:"value1"`
	Value2           string `db:"value2"`
	ExpectedValue    string `db:"expected_value"`
	Message          string `db:"message"`
}

// Repository implements storage.ReconciliationStore on postgres. Finish writes the
// run, its exceptions and its validation results in one transaction.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, rec *models.ReconciliationRecord) error {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(rec.ID, rec.TenantID, rec.WorkspaceID, string(rec.Status), rec.Source1FileID, rec.Source2FileID, rec.ExecutedAt, rec.CompletedAt,
		rec.TotalRecords, rec.MatchedRecords, rec.ExceptionRecords, rec.UnmatchedRecords, rec.ExceptionCount, rec.ValidationFailures,
		rec.TriggeredBy, rec.FailureReason)

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create reconciliation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create reconciliation")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ReconciliationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()

	var result row
	err := r.db.Conn(ctx).GetContext(ctx, &result, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ferrors.NewNotFoundError("reconciliation", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get reconciliation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation")
	}

	rec := result.toModel()
	return &rec, nil
}

func (r *Repository) List(ctx context.Context, tenantID, workspaceID string) ([]models.ReconciliationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("workspace_id", workspaceID),
	)
	sb.OrderBy("seq DESC")

	query, args := sb.Build()

	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list reconciliations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list reconciliations")
	}

	return ectolinq.Map(rows, func(r row) models.ReconciliationRecord { return r.toModel() }), nil
}

func (r *Repository) Finish(ctx context.Context, outcome storage.RunOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.Finish")
	defer span.End()

	rec := outcome.Record
	log := r.logger.WithContext(ctx).WithField("reconciliation_id", rec.ID)

	err := database.WithTx(ctx, r.db, func(ctx context.Context) error {
		if err := r.finishRecord(ctx, rec); err != nil {
			return err
		}
		if err := r.insertExceptions(ctx, outcome.Exceptions); err != nil {
			return err
		}
		return r.insertResults(ctx, rec.TenantID, outcome.Results)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	log.WithFields(map[string]any{
		"status":     string(rec.Status),
		"exceptions": len(outcome.Exceptions),
		"results":    len(outcome.Results),
	}).Debug("Stored reconciliation outcome")

	return nil
}

// finishRecord moves a pending run to its final state
func (r *Repository) finishRecord(ctx context.Context, rec *models.ReconciliationRecord) error {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", string(rec.Status)),
		ub.Assign("completed_at", rec.CompletedAt),
		ub.Assign("total_records", rec.TotalRecords),
		ub.Assign("matched_records", rec.MatchedRecords),
		ub.Assign("exception_records", rec.ExceptionRecords),
		ub.Assign("unmatched_records", rec.UnmatchedRecords),
		ub.Assign("exception_count", rec.ExceptionCount),
		ub.Assign("validation_failures", rec.ValidationFailures),
		ub.Assign("failure_reason", rec.FailureReason),
	)
	ub.Where(
		ub.Equal("id", rec.ID),
		ub.Equal("tenant_id", rec.TenantID),
		ub.Equal("status", string(models.RunStatusPending)),
	)

	query, args := ub.Build()
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to finish reconciliation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish reconciliation")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := r.Get(ctx, rec.TenantID, rec.ID)
	if err != nil {
		return err
	}
	return ferrors.NewConcurrencyError("reconciliation", rec.ID, string(models.RunStatusPending), string(current.Status))
}

func (r *Repository) insertExceptions(ctx context.Context, exceptions []models.ExceptionRecord) error {
	for start := 0; start < len(exceptions); start += insertBatchSize {
		end := min(start+insertBatchSize, len(exceptions))

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(exceptionsTable)
		ib.Cols(exceptionColumns...)
		for _, exc := range exceptions[start:end] {
			ib.Values(exc.ID, exc.TenantID, exc.WorkspaceID, exc.ReconciliationID, exc.RecordID, exc.RelatedRecordID,
				string(exc.Kind), exc.Rule, exc.RuleID, exc.Field, exc.Source1Value, exc.Source2Value, string(exc.Status),
				exc.Notes, exc.ResolvedBy, exc.ResolvedAt, exc.Version, exc.Fingerprint, exc.CreatedAt, exc.UpdatedAt)
		}
		database.OnConflictDoNothing(ib)

		query, args := ib.Build()
		if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to insert exceptions")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert exceptions")
		}
	}
	return nil
}

func (r *Repository) insertResults(ctx context.Context, tenantID string, results []models.ValidationResult) error {
	for start := 0; start < len(results); start += insertBatchSize {
		end := min(start+insertBatchSize, len(results))

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(resultsTable)
		ib.Cols(resultColumns...)
		for _, res := range results[start:end] {
			ib.Values(tenantID, res.ReconciliationID, res.RuleID, res.RuleName, res.RecordID, res.Passed, res.Field1, res.Field2,
				res.Value1, res.Value2, res.ExpectedValue, res.Message)
		}

		query, args := ib.Build()
		if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to insert validation results")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert validation results")
		}
	}
	return nil
}

func (r *Repository) Results(ctx context.Context, tenantID, reconciliationID string) ([]models.ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Repository.Results")
	defer span.End()

	if _, err := r.Get(ctx, tenantID, reconciliationID); err != nil {
		return nil, err
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(resultColumns[1:]...)
	sb.From(resultsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("reconciliation_id", reconciliationID),
	)
	sb.OrderBy("seq ASC")

	query, args := sb.Build()

	var rows []resultRow
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list validation results")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list validation results")
	}

	return ectolinq.Map(rows, func(r resultRow) models.ValidationResult {
		return models.ValidationResult{
			ReconciliationID: r.ReconciliationID,
			RuleID:           r.RuleID,
			RuleName:         r.RuleName,
			RecordID:         r.RecordID,
			Passed:           r.Passed,
			Field1:           r.Field1,
			Field2:           r.Field2,
			Value1:           r.Value1,
			Value2:           r.Value2,
			ExpectedValue:    r.ExpectedValue,
			Message:          r.Message,
		}
	}), nil
}
