// Package storage declares the persistence contracts of the reconciliation engine.
// Implementations live in storage/memory and internal/repositories.
package storage

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Missing entities are reported as *errors.NotFoundError and lost compare-and-set
// updates as *errors.ConcurrencyError by every implementation.

type WorkspaceStore interface {
	Create(ctx context.Context, ws *models.Workspace) error
	Get(ctx context.Context, tenantID, id string) (*models.Workspace, error)
	List(ctx context.Context, tenantID string) ([]models.Workspace, error)
	Update(ctx context.Context, ws *models.Workspace) error
}

type SourceFileStore interface {
	Create(ctx context.Context, file *models.SourceFile) error
	Get(ctx context.Context, tenantID, id string) (*models.SourceFile, error)
	// Current returns the newest file of a side, the one a run reconciles
	Current(ctx context.Context, tenantID, workspaceID string, side models.Side) (*models.SourceFile, error)
	List(ctx context.Context, tenantID, workspaceID string) ([]models.SourceFile, error)
}

type MappingStore interface {
	Get(ctx context.Context, tenantID, workspaceID string) (*models.FieldMapping, error)
	Save(ctx context.Context, mapping *models.FieldMapping) error
}

type RuleStore interface {
	Create(ctx context.Context, rule *models.ValidationRule) error
	Get(ctx context.Context, tenantID, id string) (*models.ValidationRule, error)
	List(ctx context.Context, tenantID, workspaceID string) ([]models.ValidationRule, error)
	Update(ctx context.Context, rule *models.ValidationRule) error
	Delete(ctx context.Context, tenantID, id string) error
}

// RunOutcome is everything a finished run persists in one step
type RunOutcome struct {
	Record     *models.ReconciliationRecord
	Exceptions []models.ExceptionRecord
	Results    []models.ValidationResult
}

type ReconciliationStore interface {
	Create(ctx context.Context, rec *models.ReconciliationRecord) error
	Get(ctx context.Context, tenantID, id string) (*models.ReconciliationRecord, error)
	// List returns a workspace's runs, newest first
	List(ctx context.Context, tenantID, workspaceID string) ([]models.ReconciliationRecord, error)
	// Finish moves a pending run to its final state together with its exceptions and
	// validation failures, all or nothing. A run that is no longer pending is rejected.
	Finish(ctx context.Context, outcome RunOutcome) error
	Results(ctx context.Context, tenantID, reconciliationID string) ([]models.ValidationResult, error)
}

type ExceptionStore interface {
	Get(ctx context.Context, tenantID, id string) (*models.ExceptionRecord, error)
	List(ctx context.Context, tenantID string, filter models.ExceptionFilter) ([]models.ExceptionRecord, error)
	// Transition stores exc only if the stored record still has the expected status
	// and version; otherwise it fails with a ConcurrencyError.
	Transition(ctx context.Context, exc *models.ExceptionRecord, expectedStatus models.ExceptionStatus, expectedVersion int) error
	// CountPending counts open and in-suspense exceptions of a run
	CountPending(ctx context.Context, tenantID, reconciliationID string) (int, error)
}

// Stores bundles one implementation of every store
type Stores struct {
	Workspaces      WorkspaceStore
	SourceFiles     SourceFileStore
	Mappings        MappingStore
	Rules           RuleStore
	Reconciliations ReconciliationStore
	Exceptions      ExceptionStore
}
