package workspace

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Handler serves workspace CRUD and the dashboard summary
type Handler struct {
	workspaces storage.WorkspaceStore
	controller *reconciliation.Controller
	logger     ectologger.Logger
}

func NewHandler(workspaces storage.WorkspaceStore, controller *reconciliation.Controller, logger ectologger.Logger) *Handler {
	return &Handler{
		workspaces: workspaces,
		controller: controller,
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/workspaces", h.List)
	g.POST("/workspaces", h.Create)
	g.GET("/workspaces/:id", h.Get)
	g.PUT("/workspaces/:id", h.Update)
	g.GET("/workspaces/:id/summary", h.Summary)
}

func (h *Handler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace.Handler.Create")
	defer span.End()

	req, err := utils.BindRequest[models.CreateWorkspaceRequest](c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	ws := &models.Workspace{
		ID:          uuid.New().String(),
		TenantID:    appctx.GetTenantID(ctx),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Brand:       req.Brand,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.workspaces.Create(ctx, ws); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": ws.ID,
		"name":         ws.Name,
	}).Info("Workspace created")

	return c.JSON(http.StatusCreated, ws)
}

func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace.Handler.List")
	defer span.End()

	list, err := h.workspaces.List(ctx, appctx.GetTenantID(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace.Handler.Get")
	defer span.End()

	id, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}

	ws, err := h.workspaces.Get(ctx, appctx.GetTenantID(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ws)
}

func (h *Handler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace.Handler.Update")
	defer span.End()

	id, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.UpdateWorkspaceRequest](c)
	if err != nil {
		return err
	}

	ws, err := h.workspaces.Get(ctx, appctx.GetTenantID(ctx), id)
	if err != nil {
		return err
	}
	if req.Name != nil {
		ws.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		ws.Description = req.Description
	}
	if req.Brand != nil {
		ws.Brand = req.Brand
	}
	ws.UpdatedAt = time.Now().UTC()

	if err := h.workspaces.Update(ctx, ws); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ws)
}

func (h *Handler) Summary(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "workspace.Handler.Summary")
	defer span.End()

	id, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}

	summary, err := h.controller.Summary(ctx, appctx.GetTenantID(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
