package mapping

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// ValidateResponse lists every problem found; Valid is true when there are none
type ValidateResponse struct {
	Valid    bool                     `json:"valid"`
	Problems []ferrors.MappingProblem `json:"problems"`
}

// Handler edits a workspace's field mapping
type Handler struct {
	stores storage.Stores
	mapper *mapping.Mapper
	logger ectologger.Logger
}

func NewHandler(stores storage.Stores, mapper *mapping.Mapper, logger ectologger.Logger) *Handler {
	return &Handler{
		stores: stores,
		mapper: mapper,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/normalizers", h.Normalizers)
	g.GET("/workspaces/:id/mapping", h.Get)
	g.PUT("/workspaces/:id/mapping", h.Replace)
	g.POST("/workspaces/:id/mapping/auto", h.AutoMatch)
	g.PUT("/workspaces/:id/mapping/pairs", h.SetPair)
	g.POST("/workspaces/:id/mapping/validate", h.Validate)
}

// Normalizers lists the names a field pair may use in its normalizers list
func (h *Handler) Normalizers(c echo.Context) error {
	return c.JSON(http.StatusOK, normalizers.Names())
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.Handler.Get")
	defer span.End()

	workspaceID, err := h.workspace(c)
	if err != nil {
		return err
	}

	fm, err := h.stores.Mappings.Get(ctx, appctx.GetTenantID(ctx), workspaceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fm)
}

// AutoMatch proposes a mapping from the current files' columns and saves it,
// replacing any mapping the workspace had.
func (h *Handler) AutoMatch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.Handler.AutoMatch")
	defer span.End()

	workspaceID, err := h.workspace(c)
	if err != nil {
		return err
	}
	tenantID := appctx.GetTenantID(ctx)

	file1, file2, err := h.currentFiles(ctx, tenantID, workspaceID)
	if err != nil {
		return err
	}
	if file1 == nil || file2 == nil {
		return ferrors.NewConfigurationError("both sources need a file before fields can be matched", missingFiles(file1, file2)...)
	}

	proposed := h.mapper.AutoMatch(ctx, file1.Columns, file2.Columns)
	mapping.ApplyColumnTypes(proposed, file1, file2)

	fm, err := h.save(ctx, tenantID, workspaceID, proposed.Pairs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fm)
}

// SetPair inserts or re-points one pair. With override the pair takes its Source-2
// field away from any other Source-1 field; without it such a claim is a conflict.
func (h *Handler) SetPair(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.Handler.SetPair")
	defer span.End()

	workspaceID, err := h.workspace(c)
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.SetMappingRequest](c)
	if err != nil {
		return err
	}
	tenantID := appctx.GetTenantID(ctx)

	current, err := h.stores.Mappings.Get(ctx, tenantID, workspaceID)
	if err != nil && !ferrors.IsNotFound(err) {
		return err
	}

	mode := models.ConflictModeStrict
	if req.Override {
		mode = models.ConflictModeOverwrite
	}
	updated, err := mapping.SetMapping(current, req.FieldPair, mode)
	if err != nil {
		return err
	}

	fm, err := h.save(ctx, tenantID, workspaceID, updated.Pairs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fm)
}

// Replace swaps the whole pair list. Pairs are applied in order in strict mode, so
// two pairs claiming one Source-2 field are rejected.
func (h *Handler) Replace(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.Handler.Replace")
	defer span.End()

	workspaceID, err := h.workspace(c)
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.ReplaceMappingRequest](c)
	if err != nil {
		return err
	}

	fm := &models.FieldMapping{Pairs: []models.FieldPair{}}
	for _, pair := range req.Pairs {
		if fm, err = mapping.SetMapping(fm, pair, models.ConflictModeStrict); err != nil {
			return err
		}
	}

	saved, err := h.save(ctx, appctx.GetTenantID(ctx), workspaceID, fm.Pairs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

// Validate checks the saved mapping against the current files and reports every problem
func (h *Handler) Validate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "mapping.Handler.Validate")
	defer span.End()

	workspaceID, err := h.workspace(c)
	if err != nil {
		return err
	}
	tenantID := appctx.GetTenantID(ctx)

	fm, err := h.stores.Mappings.Get(ctx, tenantID, workspaceID)
	if err != nil && !ferrors.IsNotFound(err) {
		return err
	}
	file1, file2, err := h.currentFiles(ctx, tenantID, workspaceID)
	if err != nil {
		return err
	}

	problems := missingFiles(file1, file2)
	problems = append(problems, mapping.Validate(fm, columns(file1), columns(file2))...)

	return c.JSON(http.StatusOK, ValidateResponse{
		Valid:    len(problems) == 0,
		Problems: problems,
	})
}

// workspace resolves the :id parameter to a workspace of the caller's tenant
func (h *Handler) workspace(c echo.Context) (string, error) {
	ctx := c.Request().Context()
	id, err := utils.PathParam(c, "id")
	if err != nil {
		return "", err
	}
	if _, err := h.stores.Workspaces.Get(ctx, appctx.GetTenantID(ctx), id); err != nil {
		return "", err
	}
	return id, nil
}

func (h *Handler) currentFiles(ctx context.Context, tenantID, workspaceID string) (*models.SourceFile, *models.SourceFile, error) {
	files := make([]*models.SourceFile, 2)
	for i, side := range []models.Side{models.SideSource1, models.SideSource2} {
		file, err := h.stores.SourceFiles.Current(ctx, tenantID, workspaceID, side)
		if err != nil && !ferrors.IsNotFound(err) {
			return nil, nil, err
		}
		files[i] = file
	}
	return files[0], files[1], nil
}

func (h *Handler) save(ctx context.Context, tenantID, workspaceID string, pairs []models.FieldPair) (*models.FieldMapping, error) {
	id := uuid.New().String()
	if existing, err := h.stores.Mappings.Get(ctx, tenantID, workspaceID); err == nil {
		id = existing.ID
	} else if !ferrors.IsNotFound(err) {
		return nil, err
	}

	fm := &models.FieldMapping{
		ID:          id,
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		Pairs:       pairs,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := h.stores.Mappings.Save(ctx, fm); err != nil {
		return nil, err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": workspaceID,
		"pairs":        len(pairs),
	}).Info("Field mapping saved")

	return fm, nil
}

func missingFiles(file1, file2 *models.SourceFile) []ferrors.MappingProblem {
	problems := []ferrors.MappingProblem{}
	if file1 == nil {
		problems = append(problems, ferrors.MappingProblem{Side: string(models.SideSource1), Message: "no file uploaded"})
	}
	if file2 == nil {
		problems = append(problems, ferrors.MappingProblem{Side: string(models.SideSource2), Message: "no file uploaded"})
	}
	return problems
}

func columns(file *models.SourceFile) []string {
	if file == nil {
		return nil
	}
	return file.Columns
}
