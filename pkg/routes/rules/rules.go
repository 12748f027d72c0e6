package rules

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/utils"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// Handler manages validation rules. Rules are parsed on every write so a malformed
// rule is rejected when saved instead of failing a later run.
type Handler struct {
	stores    storage.Stores
	validator *validation.Engine
	logger    ectologger.Logger
}

func NewHandler(stores storage.Stores, validator *validation.Engine, logger ectologger.Logger) *Handler {
	return &Handler{
		stores:    stores,
		validator: validator,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/custom-formulas", h.CustomFormulas)
	g.GET("/workspaces/:id/rules", h.List)
	g.POST("/workspaces/:id/rules", h.Create)
	g.GET("/workspaces/:id/rules/:ruleId", h.Get)
	g.PUT("/workspaces/:id/rules/:ruleId", h.Update)
	g.DELETE("/workspaces/:id/rules/:ruleId", h.Delete)
}

func (h *Handler) CustomFormulas(c echo.Context) error {
	return c.JSON(http.StatusOK, h.validator.Registry().List())
}

func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "rules.Handler.List")
	defer span.End()

	workspaceID, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}
	tenantID := appctx.GetTenantID(ctx)
	if _, err := h.stores.Workspaces.Get(ctx, tenantID, workspaceID); err != nil {
		return err
	}

	list, err := h.stores.Rules.List(ctx, tenantID, workspaceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "rules.Handler.Create")
	defer span.End()

	workspaceID, err := utils.PathParam(c, "id")
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.CreateValidationRuleRequest](c)
	if err != nil {
		return err
	}
	tenantID := appctx.GetTenantID(ctx)
	if _, err := h.stores.Workspaces.Get(ctx, tenantID, workspaceID); err != nil {
		return err
	}

	now := time.Now().UTC()
	rule := &models.ValidationRule{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Type:        req.Type,
		Field1:      strings.TrimSpace(req.Field1),
		Field2:      req.Field2,
		Condition:   req.Condition,
		Value:       req.Value,
		Enabled:     req.Enabled == nil || *req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := h.validator.Parse(*rule); err != nil {
		return err
	}

	if err := h.stores.Rules.Create(ctx, rule); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": workspaceID,
		"rule_id":      rule.ID,
		"type":         string(rule.Type),
	}).Info("Validation rule created")

	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "rules.Handler.Get")
	defer span.End()

	rule, err := h.rule(ctx, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) Update(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "rules.Handler.Update")
	defer span.End()

	rule, err := h.rule(ctx, c)
	if err != nil {
		return err
	}
	req, err := utils.BindRequest[models.UpdateValidationRuleRequest](c)
	if err != nil {
		return err
	}

	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		rule.Description = req.Description
	}
	if req.Type != nil {
		rule.Type = *req.Type
	}
	if req.Field1 != nil {
		rule.Field1 = strings.TrimSpace(*req.Field1)
	}
	if req.Field2 != nil {
		rule.Field2 = req.Field2
	}
	if req.Condition != nil {
		rule.Condition = req.Condition
	}
	if req.Value != nil {
		rule.Value = req.Value
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	rule.UpdatedAt = time.Now().UTC()

	if _, err := h.validator.Parse(*rule); err != nil {
		return err
	}
	if err := h.stores.Rules.Update(ctx, rule); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "rules.Handler.Delete")
	defer span.End()

	rule, err := h.rule(ctx, c)
	if err != nil {
		return err
	}
	if err := h.stores.Rules.Delete(ctx, rule.TenantID, rule.ID); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": rule.WorkspaceID,
		"rule_id":      rule.ID,
	}).Info("Validation rule deleted")

	return c.NoContent(http.StatusNoContent)
}

// rule loads :ruleId and checks that it belongs to workspace :id
func (h *Handler) rule(ctx context.Context, c echo.Context) (*models.ValidationRule, error) {
	workspaceID, err := utils.PathParam(c, "id")
	if err != nil {
		return nil, err
	}
	ruleID, err := utils.PathParam(c, "ruleId")
	if err != nil {
		return nil, err
	}

	rule, err := h.stores.Rules.Get(ctx, appctx.GetTenantID(ctx), ruleID)
	if err != nil {
		return nil, err
	}
	if rule.WorkspaceID != workspaceID {
		return nil, ferrors.NewNotFoundError("validation rule", ruleID)
	}
	return rule, nil
}
