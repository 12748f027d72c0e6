package validationrule

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
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "validation_rules"

var columns = []string{"id", "tenant_id", "workspace_id", "name", "description", "type", "field1", "field2", "condition", "value", "enabled", "created_at", "updated_at"}

type row struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	WorkspaceID string    `db:"workspace_id"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	Type        string    `db:"type"`
	Field1      string    `db:"field1"`
	Field2      *string   `db:"field2"`
	Condition   *string   `db:"condition"`
	Value       *string   `db:"value"`
	Enabled     bool      `db:"enabled"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r row) toModel() models.ValidationRule {
	return models.ValidationRule{
		ID:          r.ID,
		TenantID:    r.TenantID,
		WorkspaceID: r.WorkspaceID,
		Name:        r.Name,
		Description: r.Description,
		Type:        models.RuleType(r.Type),
		Field1:      r.Field1,
		Field2:      r.Field2,
		Condition:   r.Condition,
		Value:       r.Value,
		Enabled:     r.Enabled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Repository implements storage.RuleStore on postgres
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

func (r *Repository) Create(ctx context.Context, rule *models.ValidationRule) error {
	ctx, span := tracing.StartSpan(ctx, "validationrule.Repository.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(rule.ID, rule.TenantID, rule.WorkspaceID, rule.Name, rule.Description, string(rule.Type),
		rule.Field1, rule.Field2, rule.Condition, rule.Value, rule.Enabled, rule.CreatedAt, rule.UpdatedAt)

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create validation rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create validation rule")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ValidationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "validationrule.Repository.Get")
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
		return nil, ferrors.NewNotFoundError("validation rule", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get validation rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get validation rule")
	}

	rule := result.toModel()
	return &rule, nil
}

// List returns a workspace's rules in creation order
func (r *Repository) List(ctx context.Context, tenantID, workspaceID string) ([]models.ValidationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "validationrule.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("workspace_id", workspaceID),
	)
	sb.OrderBy("seq ASC")

	query, args := sb.Build()

	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list validation rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list validation rules")
	}

	return ectolinq.Map(rows, func(r row) models.ValidationRule { return r.toModel() }), nil
}

func (r *Repository) Update(ctx context.Context, rule *models.ValidationRule) error {
	ctx, span := tracing.StartSpan(ctx, "validationrule.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("name", rule.Name),
		ub.Assign("description", rule.Description),
		ub.Assign("type", string(rule.Type)),
		ub.Assign("field1", rule.Field1),
		ub.Assign("field2", rule.Field2),
		ub.Assign("condition", rule.Condition),
		ub.Assign("value", rule.Value),
		ub.Assign("enabled", rule.Enabled),
		ub.Assign("updated_at", rule.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", rule.ID),
		ub.Equal("tenant_id", rule.TenantID),
	)

	query, args := ub.Build()
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update validation rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update validation rule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ferrors.NewNotFoundError("validation rule", rule.ID)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "validationrule.Repository.Delete")
	defer span.End()

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom(tableName)
	del.Where(
		del.Equal("id", id),
		del.Equal("tenant_id", tenantID),
	)

	query, args := del.Build()
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete validation rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete validation rule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ferrors.NewNotFoundError("validation rule", id)
	}
	return nil
}
