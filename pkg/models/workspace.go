package models

import "time"

// Workspace groups the two source files, the field mapping, validation rules and run history
// of one reconciliation relationship.
type Workspace struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Brand       *string   `json:"brand,omitempty" db:"brand"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WorkspaceSummary is the dashboard card view of a workspace
type WorkspaceSummary struct {
	Workspace
	LastUpdated       *time.Time `json:"last_updated,omitempty"`
	LastRunStatus     *RunStatus `json:"last_run_status,omitempty"`
	PendingExceptions int        `json:"pending_exceptions"`
	TotalRecords      int        `json:"total_records"`
	MatchedRecords    int        `json:"matched_records"`
}

type CreateWorkspaceRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description,omitempty"`
	Brand       *string `json:"brand,omitempty"`
}

type UpdateWorkspaceRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty"`
	Brand       *string `json:"brand,omitempty"`
}
