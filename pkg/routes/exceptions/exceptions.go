package exceptions

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/exceptions"
	"github.com/Ramsey-B/fern/pkg/export"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/reconciliations"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Handler lists, resolves and exports exceptions
type Handler struct {
	manager         *exceptions.Manager
	reconciliations storage.ReconciliationStore
	logger          ectologger.Logger
}

func NewHandler(manager *exceptions.Manager, reconciliations storage.ReconciliationStore, logger ectologger.Logger) *Handler {
	return &Handler{
		manager:         manager,
		reconciliations: reconciliations,
		logger:          logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/workspaces/:id/reconciliations/:runId/exceptions", h.List)
	g.GET("/workspaces/:id/reconciliations/:runId/exceptions/export", h.Export)
	g.GET("/exceptions/:exceptionId", h.Get)
	g.POST("/exceptions/:exceptionId/resolve", h.Resolve)
	g.POST("/exceptions/:exceptionId/suspend", h.Suspend)
}

// List returns a run's exceptions, optionally narrowed by ?status=
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "exceptions.Handler.List")
	defer span.End()

	rec, err := reconciliations.Lookup(ctx, c, h.reconciliations)
	if err != nil {
		return err
	}

	filter := models.ExceptionFilter{ReconciliationID: rec.ID}
	if raw := c.QueryParam("status"); raw != "" {
		status := models.ExceptionStatus(raw)
		if !status.Valid() {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown status '%s'", raw)
		}
		filter.Status = &status
	}

	list, err := h.manager.List(ctx, rec.TenantID, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// Export downloads the run's exceptions as an xlsx workbook
func (h *Handler) Export(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "exceptions.Handler.Export")
	defer span.End()

	rec, err := reconciliations.Lookup(ctx, c, h.reconciliations)
	if err != nil {
		return err
	}

	list, err := h.manager.List(ctx, rec.TenantID, models.ExceptionFilter{ReconciliationID: rec.ID})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.Exceptions(&buf, rec, list); err != nil {
		tracing.RecordError(span, err)
		h.logger.WithContext(ctx).WithError(err).Error("Failed to render exception workbook")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to export exceptions")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", export.Filename(rec)))
	return c.Blob(http.StatusOK, export.ContentType, buf.Bytes())
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "exceptions.Handler.Get")
	defer span.End()

	id, err := utils.PathParam(c, "exceptionId")
	if err != nil {
		return err
	}

	exc, err := h.manager.Get(ctx, appctx.GetTenantID(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exc)
}

func (h *Handler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "exceptions.Handler.Resolve")
	defer span.End()

	id, err := utils.PathParam(c, "exceptionId")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.ExceptionTransitionRequest](c)
	if err != nil {
		return err
	}

	exc, err := h.manager.Resolve(ctx, appctx.GetTenantID(ctx), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exc)
}

func (h *Handler) Suspend(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "exceptions.Handler.Suspend")
	defer span.End()

	id, err := utils.PathParam(c, "exceptionId")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.ExceptionTransitionRequest](c)
	if err != nil {
		return err
	}

	exc, err := h.manager.Suspend(ctx, appctx.GetTenantID(ctx), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exc)
}
