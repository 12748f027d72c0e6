package workspace

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "workspaces"

var columns = []string{"id", "tenant_id", "name", "description", "brand", "created_at", "updated_at"}

// Repository implements storage.WorkspaceStore on postgres
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

func (r *Repository) Create(ctx context.Context, ws *models.Workspace) error {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(ws.ID, ws.TenantID, ws.Name, ws.Description, ws.Brand, ws.CreatedAt, ws.UpdatedAt)

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create workspace")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create workspace")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":        ws.ID,
		"tenant_id": ws.TenantID,
	}).Info("Created workspace")

	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Workspace, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()

	var ws models.Workspace
	err := r.db.Conn(ctx).GetContext(ctx, &ws, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ferrors.NewNotFoundError("workspace", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get workspace")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get workspace")
	}

	return &ws, nil
}

func (r *Repository) List(ctx context.Context, tenantID string) ([]models.Workspace, error) {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("name ASC", "id ASC")

	query, args := sb.Build()

	items := []models.Workspace{}
	if err := r.db.Conn(ctx).SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list workspaces")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list workspaces")
	}

	return items, nil
}

func (r *Repository) Update(ctx context.Context, ws *models.Workspace) error {
	ctx, span := tracing.StartSpan(ctx, "workspace.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName)
	ub.Set(
		ub.Assign("name", ws.Name),
		ub.Assign("description", ws.Description),
		ub.Assign("brand", ws.Brand),
		ub.Assign("updated_at", ws.UpdatedAt),
	)
	ub.Where(
		ub.Equal("id", ws.ID),
		ub.Equal("tenant_id", ws.TenantID),
	)

	query, args := ub.Build()
	res, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update workspace")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update workspace")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ferrors.NewNotFoundError("workspace", ws.ID)
	}

	return nil
}
