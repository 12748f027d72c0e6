package sourcefile

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

const tableName = "source_files"

var columns = []string{"id", "tenant_id", "workspace_id", "side", "name", "format", "columns", "column_types", "row_count", "blob_key", "created_at"}

type row struct {
	ID          string                                       `db:"id"`
	TenantID    string                                       `db:"tenant_id"`
	WorkspaceID string                                       `db:"workspace_id"`
	Side        string                                       `db:"side"`
	Name        string                                       `db:"name"`
	Format      string                                       `db:"format"`
	Columns     database.JSONB[[]string]                     `db:"columns"`
	ColumnTypes database.JSONB[map[string]models.ColumnType] `db:"column_types"`
	RowCount    int                                          `db:"row_count"`
	BlobKey     string                                       `db:"blob_key"`
	CreatedAt   time.Time                                    `db:"created_at"`
}

func (r row) toModel() models.SourceFile {
	return models.SourceFile{
		ID:          r.ID,
		TenantID:    r.TenantID,
		WorkspaceID: r.WorkspaceID,
		Side:        models.Side(r.Side),
		Name:        r.Name,
		Format:      models.FileFormat(r.Format),
		Columns:     r.Columns.Data,
		ColumnTypes: r.ColumnTypes.Data,
		RowCount:    r.RowCount,
		BlobKey:     r.BlobKey,
		CreatedAt:   r.CreatedAt,
	}
}

// Repository implements storage.SourceFileStore on postgres
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

func (r *Repository) Create(ctx context.Context, file *models.SourceFile) error {
	ctx, span := tracing.StartSpan(ctx, "sourcefile.Repository.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(file.ID, file.TenantID, file.WorkspaceID, string(file.Side), file.Name, string(file.Format),
		database.NewJSONB(file.Columns), database.NewJSONB(file.ColumnTypes), file.RowCount, file.BlobKey, file.CreatedAt)

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create source file")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create source file")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.SourceFile, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcefile.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	return r.getOne(ctx, sb, id)
}

func (r *Repository) Current(ctx context.Context, tenantID, workspaceID string, side models.Side) (*models.SourceFile, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcefile.Repository.Current")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("workspace_id", workspaceID),
		sb.Equal("side", string(side)),
	)
	sb.OrderBy("seq DESC")
	sb.Limit(1)

	return r.getOne(ctx, sb, fmt.Sprintf("%s/%s", workspaceID, side))
}

func (r *Repository) getOne(ctx context.Context, sb *sqlbuilder.SelectBuilder, id string) (*models.SourceFile, error) {
	query, args := sb.Build()

	var result row
	err := r.db.Conn(ctx).GetContext(ctx, &result, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ferrors.NewNotFoundError("source file", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get source file")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get source file")
	}

	file := result.toModel()
	return &file, nil
}

func (r *Repository) List(ctx context.Context, tenantID, workspaceID string) ([]models.SourceFile, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcefile.Repository.List")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list source files")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list source files")
	}

	return ectolinq.Map(rows, func(r row) models.SourceFile { return r.toModel() }), nil
}
