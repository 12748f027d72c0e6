package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "exceptions"

var columns = []string{
	"id", "tenant_id", "workspace_id", "reconciliation_id", "record_id", "related_record_id", "kind", "rule", "rule_id",
	"field", "source1_value", "source2_value", "status", "notes", "resolved_by", "resolved_at", "version", "fingerprint",
	"created_at", "updated_at",
}

type row struct {
	ID               string     `db:"id"`
	TenantID         string     `db:"tenant_id"`
	WorkspaceID      string     `db:"workspace_id"`
	ReconciliationID string     `db:"reconciliation_id"`
	RecordID         string     `db:"record_id"`
	RelatedRecordID  string     `db:"related_record_id"`
	Kind             string     `db:"kind"`
	Rule             string     `db:"rule"`
	RuleID           string     `db:"rule_id"`
	Field            string     `db:"field"`
	Source1Value     string     `db:"source1_value"`
	Source2Value     string     `db:"source2_value"`
	Status           string     `db:"status"`
	Notes            *string    `db:"notes"`
	ResolvedBy       *string    `db:"resolved_by"`
	ResolvedAt       *time.Time `db:"resolved_at"`
	Version          int        `db:"version"`
	Fingerprint      string     `db:"fingerprint"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (r row) toModel() models.ExceptionRecord {
	return models.ExceptionRecord{
		ID:               r.ID,
		TenantID:         r.TenantID,
		WorkspaceID:      r.WorkspaceID,
		ReconciliationID: r.ReconciliationID,
		RecordID:         r.RecordID,
		RelatedRecordID:  r.RelatedRecordID,
		Kind:             models.ExceptionKind(r.Kind),
		Rule:             r.Rule,
		RuleID:           r.RuleID,
		Field:            r.Field,
		Source1Value:     r.Source1Value,
		Source2Value:     r.Source2Value,
		Status:           models.ExceptionStatus(r.Status),
		Notes:            r.Notes,
		ResolvedBy:       r.ResolvedBy,
		ResolvedAt:       r.ResolvedAt,
		Version:          r.Version,
		Fingerprint:      r.Fingerprint,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// Repository implements storage.ExceptionStore on postgres. Exceptions are inserted
// by the reconciliation repository when a run finishes.
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

func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ExceptionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "exception.Repository.Get")
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
		return nil, ferrors.NewNotFoundError("exception", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get exception")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get exception")
	}

	exc := result.toModel()
	return &exc, nil
}

func (r *Repository) List(ctx context.Context, tenantID string, filter models.ExceptionFilter) ([]models.ExceptionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "exception.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("tenant_id", tenantID))
	if filter.ReconciliationID != "" {
		sb.Where(sb.Equal("reconciliation_id", filter.ReconciliationID))
	}
	if filter.Status != nil {
		sb.Where(sb.Equal("status", string(*filter.Status)))
	}
	sb.OrderBy("seq ASC")

	query, args := sb.Build()

	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list exceptions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list exceptions")
	}

	return ectolinq.Map(rows, func(r row) models.ExceptionRecord { return r.toModel() }), nil
}

func (r *Repository) Transition(ctx context.Context, exc *models.ExceptionRecord, expectedStatus models.ExceptionStatus, expectedVersion int) error {
	ctx, span := tracing.StartSpan(ctx, "exception.Repository.Transition")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("status", string(exc.Status)),
		ub.Assign("notes", exc.Notes),
		ub.Assign("resolved_by", exc.ResolvedBy),
		ub.Assign("resolved_at", exc.ResolvedAt),
		ub.Assign("version", exc.Version),
		ub.Assign("updated_at", exc.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", exc.ID),
		ub.Equal("tenant_id", exc.TenantID),
		ub.Equal("status", string(expectedStatus)),
		ub.Equal("version", expectedVersion),
	)

	query, args := ub.Build()
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update exception")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update exception")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := r.Get(ctx, exc.TenantID, exc.ID)
	if err != nil {
		return err
	}
	return ferrors.NewConcurrencyError("exception", exc.ID,
		fmt.Sprintf("%s@%d", expectedStatus, expectedVersion),
		fmt.Sprintf("%s@%d", current.Status, current.Version))
}

func (r *Repository) CountPending(ctx context.Context, tenantID, reconciliationID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "exception.Repository.CountPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("reconciliation_id", reconciliationID),
		sb.NotEqual("status", string(models.ExceptionStatusResolved)),
	)

	query, args := sb.Build()

	var count int
	if err := r.db.Conn(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count pending exceptions")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count pending exceptions")
	}
	return count, nil
}
