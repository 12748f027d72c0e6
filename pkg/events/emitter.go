// Package events publishes reconciliation lifecycle events for downstream consumers
// such as reporting and notification services.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher sends an encoded event; kafka.Producer is the production implementation
type Publisher interface {
	Publish(ctx context.Context, key, eventType, tenantID string, value []byte) error
}

// Emitter builds events and hands them to a publisher. A nil publisher drops events,
// which is how the service runs without Kafka.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitReconciliationCompleted announces a run's final status and counts
func (e *Emitter) EmitReconciliationCompleted(ctx context.Context, rec *models.ReconciliationRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitReconciliationCompleted")
	defer span.End()

	event := &ReconciliationCompletedEvent{
		BaseEvent:          e.base(ctx, EventTypeReconciliationCompleted, rec.TenantID),
		WorkspaceID:        rec.WorkspaceID,
		ReconciliationID:   rec.ID,
		Status:             rec.Status,
		TotalRecords:       rec.TotalRecords,
		MatchedRecords:     rec.MatchedRecords,
		ExceptionRecords:   rec.ExceptionRecords,
		UnmatchedRecords:   rec.UnmatchedRecords,
		ExceptionCount:     rec.ExceptionCount,
		ValidationFailures: rec.ValidationFailures,
		FailureReason:      rec.FailureReason,
	}
	return e.emit(ctx, rec.WorkspaceID, event.EventType, rec.TenantID, event)
}

// EmitExceptionTransitioned announces a resolve or suspend action
func (e *Emitter) EmitExceptionTransitioned(ctx context.Context, exc *models.ExceptionRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitExceptionTransitioned")
	defer span.End()

	eventType := EventTypeExceptionResolved
	if exc.Status == models.ExceptionStatusInSuspense {
		eventType = EventTypeExceptionSuspended
	}

	event := &ExceptionTransitionedEvent{
		BaseEvent:        e.base(ctx, eventType, exc.TenantID),
		WorkspaceID:      exc.WorkspaceID,
		ReconciliationID: exc.ReconciliationID,
		ExceptionID:      exc.ID,
		Rule:             exc.Rule,
		Status:           exc.Status,
		Version:          exc.Version,
	}
	if exc.Notes != nil {
		event.Notes = *exc.Notes
	}
	if exc.ResolvedBy != nil {
		event.Actor = *exc.ResolvedBy
	}
	return e.emit(ctx, exc.WorkspaceID, eventType, exc.TenantID, event)
}

func (e *Emitter) base(ctx context.Context, eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: appctx.GetRequestID(ctx),
	}
}

func (e *Emitter) emit(ctx context.Context, key string, eventType EventType, tenantID string, event any) error {
	if e.publisher == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := e.publisher.Publish(ctx, key, string(eventType), tenantID, data); err != nil {
		metrics.EventsPublished.WithLabelValues(string(eventType), "error").Inc()
		e.logger.WithContext(ctx).WithError(err).WithField("event_type", string(eventType)).Warn("Failed to emit event")
		return err
	}
	metrics.EventsPublished.WithLabelValues(string(eventType), "success").Inc()
	return nil
}
