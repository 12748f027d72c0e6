package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/blob"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/exceptions"
	"github.com/Ramsey-B/fern/pkg/export"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	mappingroutes "github.com/Ramsey-B/fern/pkg/routes/mapping"
	"github.com/Ramsey-B/fern/pkg/storage/memory"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const tenant = "tenant-a"

type server struct {
	t *testing.T
	e *echo.Echo
}

func newServer(t *testing.T) *server {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	stores := memory.NewStores()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	emitter := events.NewEmitter(nil, logger)
	validator := validation.NewEngine(logger, validation.NewRegistry(expressions.NewEvaluator()), validation.DefaultConfig())
	pipeline := reconciliation.NewPipeline(logger, matching.NewEngine(logger, matching.DefaultConfig()), validator)
	controller := reconciliation.NewController(stores, blobs, lock.NewMemoryLocker(), pipeline, emitter, logger, reconciliation.DefaultConfig())

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	Register(e.Group("/api/v1"), Dependencies{
		Stores:     stores,
		Controller: controller,
		Mapper:     mapping.NewMapper(logger, mapping.DefaultConfig()),
		Validator:  validator,
		Exceptions: exceptions.NewManager(stores.Exceptions, emitter, logger),
		Logger:     logger,
	})

	return &server{t: t, e: e}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(middleware.HeaderTenantID, tenant)
	req.Header.Set(middleware.HeaderUserID, "ops@example.com")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) json(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return s.do(req)
}

func (s *server) upload(workspaceID string, side models.Side, name, content string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(s.t, w.WriteField("side", string(side)))
	part, err := w.CreateFormFile("file", name)
	require.NoError(s.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(s.t, err)
	require.NoError(s.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workspaces/"+workspaceID+"/files", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return s.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) workspace(name string) models.Workspace {
	s.t.Helper()
	rec := s.json(http.MethodPost, "/workspaces", models.CreateWorkspaceRequest{Name: name})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Workspace](s.t, rec)
}

func TestWorkspaces(t *testing.T) {
	s := newServer(t)

	ws := s.workspace("Dealer payouts")
	assert.NotEmpty(t, ws.ID)
	assert.Equal(t, tenant, ws.TenantID)

	t.Run("name is required", func(t *testing.T) {
		rec := s.json(http.MethodPost, "/workspaces", map[string]string{"description": "no name"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update", func(t *testing.T) {
		name := "EMI payouts"
		rec := s.json(http.MethodPut, "/workspaces/"+ws.ID, models.UpdateWorkspaceRequest{Name: &name})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "EMI payouts", decode[models.Workspace](t, rec).Name)
	})

	t.Run("list", func(t *testing.T) {
		rec := s.json(http.MethodGet, "/workspaces", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]models.Workspace](t, rec), 1)
	})

	t.Run("other tenants cannot see it", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/"+ws.ID, nil)
		req.Header.Set(middleware.HeaderTenantID, "tenant-b")
		rec := httptest.NewRecorder()
		s.e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("summary before any run", func(t *testing.T) {
		rec := s.json(http.MethodGet, "/workspaces/"+ws.ID+"/summary", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		summary := decode[models.WorkspaceSummary](t, rec)
		assert.Nil(t, summary.LastRunStatus)
		assert.Zero(t, summary.TotalRecords)
	})
}

func TestUploadRejectsBadInput(t *testing.T) {
	s := newServer(t)
	ws := s.workspace("Uploads")

	assert.Equal(t, http.StatusBadRequest, s.upload(ws.ID, "source3", "a.csv", "ref\nA1\n").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, s.upload(ws.ID, models.SideSource1, "empty.csv", "").Code)
	assert.Equal(t, http.StatusNotFound, s.upload("missing", models.SideSource1, "a.csv", "ref\nA1\n").Code)

	rec := s.json(http.MethodGet, "/workspaces/"+ws.ID+"/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.SourceFile](t, rec))
}

func TestMappingEndpoints(t *testing.T) {
	s := newServer(t)
	ws := s.workspace("Mapping")
	base := "/workspaces/" + ws.ID + "/mapping"

	t.Run("lists normalizers", func(t *testing.T) {
		rec := s.json(http.MethodGet, "/normalizers", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "digits_only")
	})

	t.Run("auto match needs both files", func(t *testing.T) {
		rec := s.json(http.MethodPost, base+"/auto", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	require.Equal(t, http.StatusCreated, s.upload(ws.ID, models.SideSource1, "bank.csv", "purchase_date,amount,order_ref\n2024-01-01,10,A1\n").Code)
	require.Equal(t, http.StatusCreated, s.upload(ws.ID, models.SideSource2, "ledger.csv", "purchase_date,amount,order_ref,dealer_code\n2024-01-01,10,A1,D9\n").Code)

	t.Run("auto match", func(t *testing.T) {
		rec := s.json(http.MethodPost, base+"/auto", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		fm := decode[models.FieldMapping](t, rec)
		require.Len(t, fm.Pairs, 3)
		assert.Equal(t, "purchase_date", fm.Pairs[0].Field2)
		assert.Equal(t, models.FieldTypeNumber, fm.Pairs[1].Type)
		assert.Equal(t, models.FieldRoleKey, fm.Pairs[2].Role)
	})

	t.Run("valid after auto match", func(t *testing.T) {
		rec := s.json(http.MethodPost, base+"/validate", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[mappingroutes.ValidateResponse](t, rec).Valid)
	})

	t.Run("conflicting pair is rejected without override", func(t *testing.T) {
		rec := s.json(http.MethodPut, base+"/pairs", models.SetMappingRequest{
			FieldPair: models.FieldPair{Field1: "purchase_date", Field2: "order_ref"},
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("override takes the field", func(t *testing.T) {
		rec := s.json(http.MethodPut, base+"/pairs", models.SetMappingRequest{
			FieldPair: models.FieldPair{Field1: "purchase_date", Field2: "order_ref"},
			Override:  true,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		fm := decode[models.FieldMapping](t, rec)
		assert.Len(t, fm.Pairs, 2)

		rec = s.json(http.MethodPost, base+"/validate", nil)
		result := decode[mappingroutes.ValidateResponse](t, rec)
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Problems)
	})

	t.Run("replace", func(t *testing.T) {
		rec := s.json(http.MethodPut, base, models.ReplaceMappingRequest{Pairs: []models.FieldPair{
			{Field1: "order_ref", Field2: "order_ref", Role: models.FieldRoleKey},
			{Field1: "amount", Field2: "amount", Type: models.FieldTypeNumber},
		}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = s.json(http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[models.FieldMapping](t, rec).Pairs, 2)
	})

	t.Run("replace rejects a field claimed twice", func(t *testing.T) {
		rec := s.json(http.MethodPut, base, models.ReplaceMappingRequest{Pairs: []models.FieldPair{
			{Field1: "order_ref", Field2: "order_ref", Role: models.FieldRoleKey},
			{Field1: "amount", Field2: "order_ref"},
		}})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestRuleEndpoints(t *testing.T) {
	s := newServer(t)
	ws := s.workspace("Rules")
	base := "/workspaces/" + ws.ID + "/rules"
	rangeValue := "5-25"

	t.Run("custom formulas", func(t *testing.T) {
		rec := s.json(http.MethodGet, "/custom-formulas", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		formulas := decode[[]validation.FormulaInfo](t, rec)
		require.NotEmpty(t, formulas)
		assert.Equal(t, validation.ExpressionFormula, formulas[0].Name)
	})

	t.Run("malformed rule is rejected", func(t *testing.T) {
		bad := "abc"
		rec := s.json(http.MethodPost, base, models.CreateValidationRuleRequest{Name: "Rate", Type: models.RuleTypeMinMax, Field1: "rate", Value: &bad})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		unknown := "no-such-formula"
		rec = s.json(http.MethodPost, base, models.CreateValidationRuleRequest{Name: "Custom", Type: models.RuleTypeCustom, Condition: &unknown})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec := s.json(http.MethodPost, base, models.CreateValidationRuleRequest{Name: "Rate", Type: models.RuleTypeMinMax, Field1: "rate", Value: &rangeValue})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decode[models.ValidationRule](t, rec)
	assert.True(t, rule.Enabled)

	t.Run("update", func(t *testing.T) {
		disabled := false
		rec := s.json(http.MethodPut, base+"/"+rule.ID, models.UpdateValidationRuleRequest{Enabled: &disabled})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decode[models.ValidationRule](t, rec).Enabled)

		bad := "25-5"
		rec = s.json(http.MethodPut, base+"/"+rule.ID, models.UpdateValidationRuleRequest{Value: &bad})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rule of another workspace", func(t *testing.T) {
		other := s.workspace("Other")
		rec := s.json(http.MethodGet, "/workspaces/"+other.ID+"/rules/"+rule.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list and delete", func(t *testing.T) {
		rec := s.json(http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]models.ValidationRule](t, rec), 1)

		assert.Equal(t, http.StatusNoContent, s.json(http.MethodDelete, base+"/"+rule.ID, nil).Code)
		assert.Equal(t, http.StatusNotFound, s.json(http.MethodGet, base+"/"+rule.ID, nil).Code)
	})
}

func TestRunAndResolve(t *testing.T) {
	s := newServer(t)
	ws := s.workspace("Dealer payouts")
	wsPath := "/workspaces/" + ws.ID

	require.Equal(t, http.StatusCreated, s.upload(ws.ID, models.SideSource1, "bank.csv", "ref,amount\nA1,100\nA2,200\n").Code)
	require.Equal(t, http.StatusCreated, s.upload(ws.ID, models.SideSource2, "ledger.csv", "ref,amount\nA1,100\nA2,205\n").Code)
	require.Equal(t, http.StatusOK, s.json(http.MethodPost, wsPath+"/mapping/auto", nil).Code)

	rec := s.json(http.MethodPost, wsPath+"/reconciliations", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	run := decode[models.ReconciliationRecord](t, rec)
	assert.Equal(t, models.RunStatusException, run.Status)
	assert.Equal(t, 4, run.TotalRecords)
	assert.Equal(t, "ops@example.com", run.TriggeredBy)
	runPath := wsPath + "/reconciliations/" + run.ID

	rec = s.json(http.MethodGet, runPath+"/exceptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.ExceptionRecord](t, rec)
	require.Len(t, list, 1)
	exc := list[0]
	assert.Equal(t, models.RuleFieldMismatch+"amount", exc.Rule)
	assert.Equal(t, "200", exc.Source1Value)
	assert.Equal(t, "205", exc.Source2Value)

	t.Run("status filter", func(t *testing.T) {
		rec := s.json(http.MethodGet, runPath+"/exceptions?status=resolved", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]models.ExceptionRecord](t, rec))

		assert.Equal(t, http.StatusBadRequest, s.json(http.MethodGet, runPath+"/exceptions?status=closed", nil).Code)
	})

	t.Run("blank notes", func(t *testing.T) {
		rec := s.json(http.MethodPost, "/exceptions/"+exc.ID+"/resolve", models.ExceptionTransitionRequest{Notes: "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("resolve", func(t *testing.T) {
		rec := s.json(http.MethodPost, "/exceptions/"+exc.ID+"/resolve", models.ExceptionTransitionRequest{Notes: "fee deducted by dealer"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resolved := decode[models.ExceptionRecord](t, rec)
		assert.Equal(t, models.ExceptionStatusResolved, resolved.Status)
		require.NotNil(t, resolved.ResolvedBy)
		assert.Equal(t, "ops@example.com", *resolved.ResolvedBy)

		rec = s.json(http.MethodPost, "/exceptions/"+exc.ID+"/suspend", models.ExceptionTransitionRequest{Notes: "again"})
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = s.json(http.MethodGet, "/exceptions/"+exc.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, decode[models.ExceptionRecord](t, rec).Version)
	})

	t.Run("export", func(t *testing.T) {
		rec := s.json(http.MethodGet, runPath+"/exceptions/export", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, export.ContentType, rec.Header().Get(echo.HeaderContentType))
		assert.True(t, strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), ".xlsx"))
		assert.NotZero(t, rec.Body.Len())
	})

	t.Run("history and results", func(t *testing.T) {
		rec := s.json(http.MethodGet, wsPath+"/reconciliations", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]models.ReconciliationRecord](t, rec), 1)

		rec = s.json(http.MethodGet, runPath, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, run.ID, decode[models.ReconciliationRecord](t, rec).ID)

		rec = s.json(http.MethodGet, runPath+"/results", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]models.ValidationResult](t, rec))

		assert.Equal(t, http.StatusNotFound, s.json(http.MethodGet, wsPath+"/reconciliations/nope", nil).Code)
	})

	t.Run("summary counts pending exceptions of the last run", func(t *testing.T) {
		rec := s.json(http.MethodGet, wsPath+"/summary", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		summary := decode[models.WorkspaceSummary](t, rec)
		assert.Equal(t, 0, summary.PendingExceptions)
		assert.Equal(t, 4, summary.TotalRecords)
		assert.Equal(t, 2, summary.MatchedRecords)
		require.NotNil(t, summary.LastRunStatus)
		assert.Equal(t, models.RunStatusException, *summary.LastRunStatus)
	})
}

func TestRunWithoutMappingIsAConfigurationError(t *testing.T) {
	s := newServer(t)
	ws := s.workspace("No mapping")
	require.Equal(t, http.StatusCreated, s.upload(ws.ID, models.SideSource1, "a.csv", "ref\nA1\n").Code)
	require.Equal(t, http.StatusCreated, s.upload(ws.ID, models.SideSource2, "b.csv", "ref\nA1\n").Code)

	rec := s.json(http.MethodPost, "/workspaces/"+ws.ID+"/reconciliations", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.json(http.MethodGet, "/workspaces/"+ws.ID+"/reconciliations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.ReconciliationRecord](t, rec))
}
