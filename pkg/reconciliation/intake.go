package reconciliation

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/blob"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Ingest stores an uploaded file, infers its schema and records it as the current
// file of its side. A file that fails inference is removed again and never recorded.
func (c *Controller) Ingest(ctx context.Context, tenantID, workspaceID string, side models.Side, name string, body io.Reader) (*models.SourceFile, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Controller.Ingest")
	defer span.End()

	if !side.Valid() {
		return nil, ferrors.NewSchemaErrorf("unknown side '%s'", side).AddFile(name)
	}
	if _, err := c.stores.Workspaces.Get(ctx, tenantID, workspaceID); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	key := blob.Key(tenantID, workspaceID, id, name)
	if _, err := c.blobs.Put(ctx, key, body); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	inferred, err := c.infer(ctx, key, name)
	if err != nil {
		if delErr := c.blobs.Delete(ctx, key); delErr != nil {
			c.logger.WithContext(ctx).WithError(delErr).Warn("Failed to remove rejected upload")
		}
		tracing.RecordError(span, err)
		return nil, err
	}

	file := &models.SourceFile{
		ID:          id,
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		Side:        side,
		Name:        name,
		Format:      inferred.Format,
		Columns:     inferred.Columns,
		ColumnTypes: inferred.ColumnTypes,
		RowCount:    inferred.RowCount,
		BlobKey:     key,
		CreatedAt:   c.now(),
	}
	if err := c.stores.SourceFiles.Create(ctx, file); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": workspaceID,
		"file_id":      id,
		"side":         string(side),
		"columns":      len(file.Columns),
		"rows":         file.RowCount,
	}).Info("Source file ingested")

	return file, nil
}

func (c *Controller) infer(ctx context.Context, key, name string) (*schema.Schema, error) {
	r, err := c.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return schema.Infer(ctx, r, name, schema.Options{})
}

// Files returns the files uploaded to a workspace, newest first
func (c *Controller) Files(ctx context.Context, tenantID, workspaceID string) ([]models.SourceFile, error) {
	if _, err := c.stores.Workspaces.Get(ctx, tenantID, workspaceID); err != nil {
		return nil, err
	}
	return c.stores.SourceFiles.List(ctx, tenantID, workspaceID)
}
