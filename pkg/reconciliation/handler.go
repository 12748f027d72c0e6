package reconciliation

import (
	"context"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/kafka"
)

// HandleRunRequest runs a reconciliation for a reconciliation.requested message.
// Requests that can never succeed are marked permanent so the consumer skips them.
func (c *Controller) HandleRunRequest(ctx context.Context, msg *kafka.IncomingMessage) error {
	req, err := msg.ParseRunRequest()
	if err != nil {
		return &kafka.PermanentError{Err: err}
	}

	ctx = appctx.SetTenantID(ctx, req.TenantID)
	if id := msg.Headers["request_id"]; id != "" {
		ctx = appctx.SetRequestID(ctx, id)
	}

	_, err = c.Run(ctx, *req)
	switch {
	case err == nil:
		return nil
	case ferrors.IsNotFound(err), ferrors.IsConfigurationError(err), ferrors.IsSchemaError(err),
		ferrors.IsValidationRuleError(err), ferrors.IsRunInProgress(err):
		c.logger.WithContext(ctx).WithError(err).WithField("workspace_id", req.WorkspaceID).Warn("Skipping run request")
		return &kafka.PermanentError{Err: err}
	default:
		return err
	}
}
