package models

import "time"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusComplete  RunStatus = "complete"
	RunStatusException RunStatus = "exception"
	// RunStatusFailed marks a run that hit an infrastructure error after it started processing data
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled marks a run whose context was cancelled or timed out
	RunStatusCancelled RunStatus = "cancelled"
)

// IsFinal reports whether the status can no longer change
func (s RunStatus) IsFinal() bool {
	return s != RunStatusPending
}

// IsFinished reports whether the run produced results
func (s RunStatus) IsFinished() bool {
	return s == RunStatusComplete || s == RunStatusException
}

// ReconciliationRecord is one execution of the pipeline over a pair of source files.
// Record counts are row classifications: for a finished run
// MatchedRecords + ExceptionRecords + UnmatchedRecords == TotalRecords.
type ReconciliationRecord struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	WorkspaceID   string     `json:"workspace_id"`
	Status        RunStatus  `json:"status"`
	Source1FileID string     `json:"source1_file_id"`
	Source2FileID string     `json:"source2_file_id"`
	ExecutedAt    time.Time  `json:"executed_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	TotalRecords     int `json:"total_records"`
	MatchedRecords   int `json:"matched_records"`
	ExceptionRecords int `json:"exception_records"`
	UnmatchedRecords int `json:"unmatched_records"`
	// ExceptionCount is the number of ExceptionRecords emitted, which can exceed
	// ExceptionRecords when one pair disagrees on several fields.
	ExceptionCount     int `json:"exception_count"`
	ValidationFailures int `json:"validation_failures"`

	TriggeredBy   string  `json:"triggered_by,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
}

// RunRequest asks for a reconciliation of a workspace's current files
type RunRequest struct {
	TenantID    string `json:"tenant_id"`
	WorkspaceID string `json:"workspace_id" validate:"required"`
	RequestedBy string `json:"requested_by,omitempty"`
}
