package reconciliation

import (
	"context"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Summary builds the dashboard view of a workspace from its latest runs.
// Record counts and pending exceptions come from the newest finished run.
func (c *Controller) Summary(ctx context.Context, tenantID, workspaceID string) (*models.WorkspaceSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Controller.Summary")
	defer span.End()

	ws, err := c.stores.Workspaces.Get(ctx, tenantID, workspaceID)
	if err != nil {
		return nil, err
	}

	runs, err := c.stores.Reconciliations.List(ctx, tenantID, workspaceID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	summary := &models.WorkspaceSummary{Workspace: *ws}
	lastUpdated := ws.UpdatedAt
	if len(runs) > 0 {
		status := runs[0].Status
		summary.LastRunStatus = &status
		if at := runs[0].ExecutedAt; at.After(lastUpdated) {
			lastUpdated = at
		}
		if at := runs[0].CompletedAt; at != nil && at.After(lastUpdated) {
			lastUpdated = *at
		}
	}
	summary.LastUpdated = &lastUpdated

	finished := ectolinq.Find(runs, func(r models.ReconciliationRecord) bool { return r.Status.IsFinished() })
	if ectolinq.IsEmpty(finished) {
		return summary, nil
	}

	pending, err := c.stores.Exceptions.CountPending(ctx, tenantID, finished.ID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	summary.PendingExceptions = pending
	summary.TotalRecords = finished.TotalRecords
	summary.MatchedRecords = finished.MatchedRecords

	return summary, nil
}

// History returns a workspace's runs, newest first
func (c *Controller) History(ctx context.Context, tenantID, workspaceID string) ([]models.ReconciliationRecord, error) {
	if _, err := c.stores.Workspaces.Get(ctx, tenantID, workspaceID); err != nil {
		return nil, err
	}
	return c.stores.Reconciliations.List(ctx, tenantID, workspaceID)
}
