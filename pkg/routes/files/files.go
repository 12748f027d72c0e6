package files

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// Handler accepts source file uploads
type Handler struct {
	controller *reconciliation.Controller
	logger     ectologger.Logger
}

func NewHandler(controller *reconciliation.Controller, logger ectologger.Logger) *Handler {
	return &Handler{
		controller: controller,
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/workspaces/:id/files", h.List)
	g.POST("/workspaces/:id/files", h.Upload)
}

// Upload reads the multipart "file" part for the side named by the "side" form value
func (h *Handler) Upload(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "files.Handler.Upload")
	defer span.End()

	workspaceID, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}

	side := models.Side(c.FormValue("side"))
	if !side.Valid() {
		return httperror.NewHTTPError(http.StatusBadRequest, "side must be source1 or source2")
	}

	header, err := c.FormFile("file")
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing file")
	}
	body, err := header.Open()
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "failed to read file")
	}
	defer body.Close()

	file, err := h.controller.Ingest(ctx, appctx.GetTenantID(ctx), workspaceID, side, header.Filename, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, file)
}

func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "files.Handler.List")
	defer span.End()

	workspaceID, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}

	list, err := h.controller.Files(ctx, appctx.GetTenantID(ctx), workspaceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}
