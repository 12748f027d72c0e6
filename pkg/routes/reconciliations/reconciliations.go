package reconciliations

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Handler triggers runs and serves run history
type Handler struct {
	controller      *reconciliation.Controller
	reconciliations storage.ReconciliationStore
	logger          ectologger.Logger
}

func NewHandler(controller *reconciliation.Controller, reconciliations storage.ReconciliationStore, logger ectologger.Logger) *Handler {
	return &Handler{
		controller:      controller,
		reconciliations: reconciliations,
		logger:          logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/workspaces/:id/reconciliations", h.Run)
	g.GET("/workspaces/:id/reconciliations", h.List)
	g.GET("/workspaces/:id/reconciliations/:runId", h.Get)
	g.GET("/workspaces/:id/reconciliations/:runId/results", h.Results)
}

// Run reconciles the workspace's current files and responds once the run is finished
func (h *Handler) Run(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "reconciliations.Handler.Run")
	defer span.End()

	workspaceID, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}

	rec, err := h.controller.Run(ctx, models.RunRequest{
		TenantID:    appctx.GetTenantID(ctx),
		WorkspaceID: workspaceID,
		RequestedBy: appctx.GetUserID(ctx),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "reconciliations.Handler.List")
	defer span.End()

	workspaceID, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}

	history, err := h.controller.History(ctx, appctx.GetTenantID(ctx), workspaceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "reconciliations.Handler.Get")
	defer span.End()

	rec, err := Lookup(ctx, c, h.reconciliations)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Results(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "reconciliations.Handler.Results")
	defer span.End()

	rec, err := Lookup(ctx, c, h.reconciliations)
	if err != nil {
		return err
	}

	results, err := h.reconciliations.Results(ctx, rec.TenantID, rec.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, results)
}

// Lookup loads the run named by :runId and checks that it belongs to workspace :id
func Lookup(ctx context.Context, c echo.Context, store storage.ReconciliationStore) (*models.ReconciliationRecord, error) {
	workspaceID, err := utils.PathParam(c, "id")
	if err != nil {
		return nil, err
	}
	runID, err := utils.PathParam(c, "runId")
	if err != nil {
		return nil, err
	}

	rec, err := store.Get(ctx, appctx.GetTenantID(ctx), runID)
	if err != nil {
		return nil, err
	}
	if rec.WorkspaceID != workspaceID {
		return nil, ferrors.NewNotFoundError("reconciliation", runID)
	}
	return rec, nil
}
