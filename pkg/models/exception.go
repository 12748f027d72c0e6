package models

import "time"

type ExceptionStatus string

const (
	ExceptionStatusOpen       ExceptionStatus = "open"
	ExceptionStatusResolved   ExceptionStatus = "resolved"
	ExceptionStatusInSuspense ExceptionStatus = "in-suspense"
)

func (s ExceptionStatus) Valid() bool {
	switch s {
	case ExceptionStatusOpen, ExceptionStatusResolved, ExceptionStatusInSuspense:
		return true
	}
	return false
}

// ExceptionKind says which check produced an exception
type ExceptionKind string

const (
	ExceptionKindMismatch     ExceptionKind = "mismatch"
	ExceptionKindUnmatched    ExceptionKind = "unmatched"
	ExceptionKindDuplicateKey ExceptionKind = "duplicate_key"
	ExceptionKindValidation   ExceptionKind = "validation"
)

// Rule labels produced by the matching engine
const (
	RuleUnmatchedRecord   = "Unmatched record"
	RuleDuplicateMatchKey = "Duplicate match key"
	RuleFieldMismatch     = "Field mismatch: "
)

// ExceptionRecord is one discrepancy found by a run. It is never deleted; once resolved
// or in suspense it never returns to open.
type ExceptionRecord struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	WorkspaceID      string          `json:"workspace_id"`
	ReconciliationID string          `json:"reconciliation_id"`
	// RecordID is the originating row, the Source-1 row whenever one is involved
	RecordID        string          `json:"record_id"`
	RelatedRecordID string          `json:"related_record_id,omitempty"`
	Kind            ExceptionKind   `json:"kind"`
	Rule            string          `json:"rule"`
	RuleID          string          `json:"rule_id,omitempty"`
	Field           string          `json:"field,omitempty"`
	Source1Value    string          `json:"source1_value"`
	Source2Value    string          `json:"source2_value"`
	Status          ExceptionStatus `json:"status"`
	Notes           *string         `json:"notes,omitempty"`
	ResolvedBy      *string         `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	// Version increases on every transition and guards compare-and-set updates
	Version     int       `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExceptionTransitionRequest is the body of resolve and suspend calls
type ExceptionTransitionRequest struct {
	Notes string `json:"notes"`
	// ExpectedStatus, when set, must equal the current status for the transition to apply
	ExpectedStatus *ExceptionStatus `json:"expected_status,omitempty"`
	// ExpectedVersion, when set, must equal the current version
	ExpectedVersion *int `json:"expected_version,omitempty"`
}

// ExceptionFilter narrows exception listings
type ExceptionFilter struct {
	ReconciliationID string
	Status           *ExceptionStatus
}
