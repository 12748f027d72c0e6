package events

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

type EventType string

const (
	EventTypeReconciliationRequested EventType = "reconciliation.requested"
	EventTypeReconciliationCompleted EventType = "reconciliation.completed"
	EventTypeExceptionResolved       EventType = "exception.resolved"
	EventTypeExceptionSuspended      EventType = "exception.suspended"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	TenantID      string    `json:"tenant_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// ReconciliationCompletedEvent is emitted when a run reaches a final status
type ReconciliationCompletedEvent struct {
	BaseEvent
	WorkspaceID        string           `json:"workspace_id"`
	ReconciliationID   string           `json:"reconciliation_id"`
	Status             models.RunStatus `json:"status"`
	TotalRecords       int              `json:"total_records"`
	MatchedRecords     int              `json:"matched_records"`
	ExceptionRecords   int              `json:"exception_records"`
	UnmatchedRecords   int              `json:"unmatched_records"`
	ExceptionCount     int              `json:"exception_count"`
	ValidationFailures int              `json:"validation_failures"`
	FailureReason      *string          `json:"failure_reason,omitempty"`
}

// ExceptionTransitionedEvent is emitted when a user resolves or suspends an exception
type ExceptionTransitionedEvent struct {
	BaseEvent
	WorkspaceID      string                 `json:"workspace_id"`
	ReconciliationID string                 `json:"reconciliation_id"`
	ExceptionID      string                 `json:"exception_id"`
	Rule             string                 `json:"rule"`
	Status           models.ExceptionStatus `json:"status"`
	Notes            string                 `json:"notes"`
	Actor            string                 `json:"actor,omitempty"`
	Version          int                    `json:"version"`
}
