package fieldmapping

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "field_mappings"

type row struct {
	ID          string                             `db:"id"`
	TenantID    string                             `db:"tenant_id"`
	WorkspaceID string                             `db:"workspace_id"`
	Pairs       database.JSONB[[]models.FieldPair] `db:"pairs"`
	UpdatedAt   time.Time                          `db:"updated_at"`
}

// Repository implements storage.MappingStore on postgres, one mapping per workspace
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

func (r *Repository) Get(ctx context.Context, tenantID, workspaceID string) (*models.FieldMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "fieldmapping.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "workspace_id", "pairs", "updated_at")
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("workspace_id", workspaceID),
	)

	query, args := sb.Build()

	var result row
	err := r.db.Conn(ctx).GetContext(ctx, &result, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ferrors.NewNotFoundError("field mapping", workspaceID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get field mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get field mapping")
	}

	pairs := result.Pairs.Data
	if pairs == nil {
		pairs = []models.FieldPair{}
	}
	return &models.FieldMapping{
		ID:          result.ID,
		TenantID:    result.TenantID,
		WorkspaceID: result.WorkspaceID,
		Pairs:       pairs,
		UpdatedAt:   result.UpdatedAt,
	}, nil
}

// Save inserts the workspace mapping or replaces its pairs
func (r *Repository) Save(ctx context.Context, mapping *models.FieldMapping) error {
	ctx, span := tracing.StartSpan(ctx, "fieldmapping.Repository.Save")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols("tenant_id", "workspace_id", "id", "pairs", "updated_at")
	ib.Values(mapping.TenantID, mapping.WorkspaceID, mapping.ID, database.NewJSONB(mapping.Pairs), mapping.UpdatedAt)
	database.Upsert(ib, []string{"tenant_id", "workspace_id"}, "pairs", "updated_at")

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to save field mapping")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save field mapping")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": mapping.WorkspaceID,
		"pairs":        len(mapping.Pairs),
	}).Debug("Saved field mapping")

	return nil
}
