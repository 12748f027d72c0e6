// Package exceptions owns the lifecycle of exception records: open exceptions are
// resolved or put in suspense, suspended ones can still be resolved, and nothing
// ever returns to open.
package exceptions

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// transitions lists, per target status, the statuses it may be entered from
var transitions = map[models.ExceptionStatus][]models.ExceptionStatus{
	models.ExceptionStatusResolved:   {models.ExceptionStatusOpen, models.ExceptionStatusInSuspense},
	models.ExceptionStatusInSuspense: {models.ExceptionStatusOpen},
}

// CanTransition reports whether an exception may move from one status to another
func CanTransition(from, to models.ExceptionStatus) bool {
	for _, allowed := range transitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

type Manager struct {
	store   storage.ExceptionStore
	emitter *events.Emitter
	logger  ectologger.Logger
	now     func() time.Time
}

func NewManager(store storage.ExceptionStore, emitter *events.Emitter, logger ectologger.Logger) *Manager {
	return &Manager{
		store:   store,
		emitter: emitter,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Resolve closes an open or suspended exception
func (m *Manager) Resolve(ctx context.Context, tenantID, id string, req models.ExceptionTransitionRequest) (*models.ExceptionRecord, error) {
	return m.transition(ctx, tenantID, id, models.ExceptionStatusResolved, req)
}

// Suspend parks an open exception for later review. Notes are optional here; the
// later resolve still requires them.
func (m *Manager) Suspend(ctx context.Context, tenantID, id string, req models.ExceptionTransitionRequest) (*models.ExceptionRecord, error) {
	return m.transition(ctx, tenantID, id, models.ExceptionStatusInSuspense, req)
}

func (m *Manager) transition(ctx context.Context, tenantID, id string, to models.ExceptionStatus, req models.ExceptionTransitionRequest) (*models.ExceptionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "exceptions.Manager.transition")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"exception_id": id,
		"to_status":    string(to),
	})

	exc, err := m.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	notes := strings.TrimSpace(req.Notes)
	if notes == "" && to == models.ExceptionStatusResolved {
		metrics.ExceptionTransitions.WithLabelValues(string(to), "rejected").Inc()
		return nil, ferrors.NewBlankNotesError(id, string(exc.Status))
	}

	if req.ExpectedStatus != nil && *req.ExpectedStatus != exc.Status {
		metrics.ExceptionTransitions.WithLabelValues(string(to), "conflict").Inc()
		return nil, ferrors.NewConcurrencyError("exception", id, string(*req.ExpectedStatus), string(exc.Status))
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != exc.Version {
		metrics.ExceptionTransitions.WithLabelValues(string(to), "conflict").Inc()
		return nil, ferrors.NewConcurrencyError("exception", id, strconv.Itoa(*req.ExpectedVersion), strconv.Itoa(exc.Version))
	}

	if !CanTransition(exc.Status, to) {
		metrics.ExceptionTransitions.WithLabelValues(string(to), "rejected").Inc()
		return nil, ferrors.NewResolutionError(id, string(exc.Status), "cannot move from "+string(exc.Status)+" to "+string(to))
	}

	fromStatus, fromVersion := exc.Status, exc.Version
	now := m.now()
	updated := *exc
	updated.Status = to
	if notes != "" {
		updated.Notes = &notes
	}
	updated.Version = fromVersion + 1
	updated.UpdatedAt = now
	if actor := appctx.GetUserID(ctx); actor != "" {
		updated.ResolvedBy = &actor
	}
	updated.ResolvedAt = &now

	if err := m.store.Transition(ctx, &updated, fromStatus, fromVersion); err != nil {
		if ferrors.IsConcurrencyError(err) {
			metrics.ExceptionTransitions.WithLabelValues(string(to), "conflict").Inc()
		}
		tracing.RecordError(span, err)
		return nil, err
	}
	metrics.ExceptionTransitions.WithLabelValues(string(to), "success").Inc()

	log.WithFields(map[string]any{
		"from_status": string(fromStatus),
		"version":     updated.Version,
	}).Info("Exception transitioned")

	if m.emitter != nil {
		// the transition is already stored; a lost event is logged by the emitter
		_ = m.emitter.EmitExceptionTransitioned(ctx, &updated)
	}

	return &updated, nil
}

// Get returns one exception
func (m *Manager) Get(ctx context.Context, tenantID, id string) (*models.ExceptionRecord, error) {
	return m.store.Get(ctx, tenantID, id)
}

// List returns the exceptions matching a filter
func (m *Manager) List(ctx context.Context, tenantID string, filter models.ExceptionFilter) ([]models.ExceptionRecord, error) {
	return m.store.List(ctx, tenantID, filter)
}
