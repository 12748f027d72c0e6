// Package memory keeps every store in process memory. It backs the CLI, tests and
// single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/storage"
)

// state is shared by all stores so a run's outcome is written under one lock
type state struct {
	mu         sync.RWMutex
	workspaces map[string]models.Workspace
	files      map[string]models.SourceFile
	fileOrder  []string
	mappings   map[string]models.FieldMapping
	rules      map[string]models.ValidationRule
	ruleOrder  []string
	runs       map[string]models.ReconciliationRecord
	runOrder   []string
	exceptions map[string]models.ExceptionRecord
	excOrder   []string
	results    map[string][]models.ValidationResult
}

func tenantKey(tenantID, id string) string {
	return tenantID + "/" + id
}

// NewStores returns a fresh, empty set of stores
func NewStores() storage.Stores {
	s := &state{
		workspaces: map[string]models.Workspace{},
		files:      map[string]models.SourceFile{},
		mappings:   map[string]models.FieldMapping{},
		rules:      map[string]models.ValidationRule{},
		runs:       map[string]models.ReconciliationRecord{},
		exceptions: map[string]models.ExceptionRecord{},
		results:    map[string][]models.ValidationResult{},
	}
	return storage.Stores{
		Workspaces:      &WorkspaceStore{s},
		SourceFiles:     &SourceFileStore{s},
		Mappings:        &MappingStore{s},
		Rules:           &RuleStore{s},
		Reconciliations: &ReconciliationStore{s},
		Exceptions:      &ExceptionStore{s},
	}
}

type WorkspaceStore struct{ s *state }

func (w *WorkspaceStore) Create(_ context.Context, ws *models.Workspace) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.s.workspaces[tenantKey(ws.TenantID, ws.ID)] = *ws
	return nil
}

func (w *WorkspaceStore) Get(_ context.Context, tenantID, id string) (*models.Workspace, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()
	ws, ok := w.s.workspaces[tenantKey(tenantID, id)]
	if !ok {
		return nil, ferrors.NewNotFoundError("workspace", id)
	}
	return &ws, nil
}

func (w *WorkspaceStore) List(_ context.Context, tenantID string) ([]models.Workspace, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()
	out := []models.Workspace{}
	for _, ws := range w.s.workspaces {
		if ws.TenantID == tenantID {
			out = append(out, ws)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (w *WorkspaceStore) Update(_ context.Context, ws *models.Workspace) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	key := tenantKey(ws.TenantID, ws.ID)
	if _, ok := w.s.workspaces[key]; !ok {
		return ferrors.NewNotFoundError("workspace", ws.ID)
	}
	w.s.workspaces[key] = *ws
	return nil
}

type SourceFileStore struct{ s *state }

func (f *SourceFileStore) Create(_ context.Context, file *models.SourceFile) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	key := tenantKey(file.TenantID, file.ID)
	f.s.files[key] = *file
	f.s.fileOrder = append(f.s.fileOrder, key)
	return nil
}

func (f *SourceFileStore) Get(_ context.Context, tenantID, id string) (*models.SourceFile, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	file, ok := f.s.files[tenantKey(tenantID, id)]
	if !ok {
		return nil, ferrors.NewNotFoundError("source file", id)
	}
	return &file, nil
}

func (f *SourceFileStore) Current(_ context.Context, tenantID, workspaceID string, side models.Side) (*models.SourceFile, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	for i := len(f.s.fileOrder) - 1; i >= 0; i-- {
		file := f.s.files[f.s.fileOrder[i]]
		if file.TenantID == tenantID && file.WorkspaceID == workspaceID && file.Side == side {
			return &file, nil
		}
	}
	return nil, ferrors.NewNotFoundError("source file", fmt.Sprintf("%s/%s", workspaceID, side))
}

// List returns a workspace's files, newest first
func (f *SourceFileStore) List(_ context.Context, tenantID, workspaceID string) ([]models.SourceFile, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	out := []models.SourceFile{}
	for i := len(f.s.fileOrder) - 1; i >= 0; i-- {
		file := f.s.files[f.s.fileOrder[i]]
		if file.TenantID == tenantID && file.WorkspaceID == workspaceID {
			out = append(out, file)
		}
	}
	return out, nil
}

type MappingStore struct{ s *state }

func (m *MappingStore) Get(_ context.Context, tenantID, workspaceID string) (*models.FieldMapping, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	mapping, ok := m.s.mappings[tenantKey(tenantID, workspaceID)]
	if !ok {
		return nil, ferrors.NewNotFoundError("field mapping", workspaceID)
	}
	return mapping.Clone(), nil
}

func (m *MappingStore) Save(_ context.Context, mapping *models.FieldMapping) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.mappings[tenantKey(mapping.TenantID, mapping.WorkspaceID)] = *mapping.Clone()
	return nil
}

type RuleStore struct{ s *state }

func (r *RuleStore) Create(_ context.Context, rule *models.ValidationRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := tenantKey(rule.TenantID, rule.ID)
	r.s.rules[key] = *rule
	r.s.ruleOrder = append(r.s.ruleOrder, key)
	return nil
}

func (r *RuleStore) Get(_ context.Context, tenantID, id string) (*models.ValidationRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rule, ok := r.s.rules[tenantKey(tenantID, id)]
	if !ok {
		return nil, ferrors.NewNotFoundError("validation rule", id)
	}
	return &rule, nil
}

// List returns a workspace's rules in creation order
func (r *RuleStore) List(_ context.Context, tenantID, workspaceID string) ([]models.ValidationRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.ValidationRule{}
	for _, key := range r.s.ruleOrder {
		rule, ok := r.s.rules[key]
		if ok && rule.TenantID == tenantID && rule.WorkspaceID == workspaceID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *RuleStore) Update(_ context.Context, rule *models.ValidationRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := tenantKey(rule.TenantID, rule.ID)
	if _, ok := r.s.rules[key]; !ok {
		return ferrors.NewNotFoundError("validation rule", rule.ID)
	}
	r.s.rules[key] = *rule
	return nil
}

func (r *RuleStore) Delete(_ context.Context, tenantID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := tenantKey(tenantID, id)
	if _, ok := r.s.rules[key]; !ok {
		return ferrors.NewNotFoundError("validation rule", id)
	}
	delete(r.s.rules, key)
	return nil
}

type ReconciliationStore struct{ s *state }

func (r *ReconciliationStore) Create(_ context.Context, rec *models.ReconciliationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := tenantKey(rec.TenantID, rec.ID)
	r.s.runs[key] = *rec
	r.s.runOrder = append(r.s.runOrder, key)
	return nil
}

func (r *ReconciliationStore) Get(_ context.Context, tenantID, id string) (*models.ReconciliationRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.runs[tenantKey(tenantID, id)]
	if !ok {
		return nil, ferrors.NewNotFoundError("reconciliation", id)
	}
	return &rec, nil
}

func (r *ReconciliationStore) List(_ context.Context, tenantID, workspaceID string) ([]models.ReconciliationRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.ReconciliationRecord{}
	for i := len(r.s.runOrder) - 1; i >= 0; i-- {
		rec := r.s.runs[r.s.runOrder[i]]
		if rec.TenantID == tenantID && rec.WorkspaceID == workspaceID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *ReconciliationStore) Finish(_ context.Context, outcome storage.RunOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec := outcome.Record
	key := tenantKey(rec.TenantID, rec.ID)
	stored, ok := r.s.runs[key]
	if !ok {
		return ferrors.NewNotFoundError("reconciliation", rec.ID)
	}
	if stored.Status != models.RunStatusPending {
		return ferrors.NewConcurrencyError("reconciliation", rec.ID, string(models.RunStatusPending), string(stored.Status))
	}

	r.s.runs[key] = *rec
	for _, exc := range outcome.Exceptions {
		excKey := tenantKey(exc.TenantID, exc.ID)
		r.s.exceptions[excKey] = exc
		r.s.excOrder = append(r.s.excOrder, excKey)
	}
	if len(outcome.Results) > 0 {
		r.s.results[key] = append([]models.ValidationResult(nil), outcome.Results...)
	}
	return nil
}

func (r *ReconciliationStore) Results(_ context.Context, tenantID, reconciliationID string) ([]models.ValidationResult, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	key := tenantKey(tenantID, reconciliationID)
	if _, ok := r.s.runs[key]; !ok {
		return nil, ferrors.NewNotFoundError("reconciliation", reconciliationID)
	}
	return append([]models.ValidationResult{}, r.s.results[key]...), nil
}

type ExceptionStore struct{ s *state }

func (e *ExceptionStore) Get(_ context.Context, tenantID, id string) (*models.ExceptionRecord, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	exc, ok := e.s.exceptions[tenantKey(tenantID, id)]
	if !ok {
		return nil, ferrors.NewNotFoundError("exception", id)
	}
	return &exc, nil
}

// List returns exceptions in the order their runs produced them
func (e *ExceptionStore) List(_ context.Context, tenantID string, filter models.ExceptionFilter) ([]models.ExceptionRecord, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	out := []models.ExceptionRecord{}
	for _, key := range e.s.excOrder {
		exc := e.s.exceptions[key]
		if exc.TenantID != tenantID {
			continue
		}
		if filter.ReconciliationID != "" && exc.ReconciliationID != filter.ReconciliationID {
			continue
		}
		if filter.Status != nil && exc.Status != *filter.Status {
			continue
		}
		out = append(out, exc)
	}
	return out, nil
}

func (e *ExceptionStore) Transition(_ context.Context, exc *models.ExceptionRecord, expectedStatus models.ExceptionStatus, expectedVersion int) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	key := tenantKey(exc.TenantID, exc.ID)
	stored, ok := e.s.exceptions[key]
	if !ok {
		return ferrors.NewNotFoundError("exception", exc.ID)
	}
	if stored.Status != expectedStatus || stored.Version != expectedVersion {
		return ferrors.NewConcurrencyError("exception", exc.ID,
			fmt.Sprintf("%s@%d", expectedStatus, expectedVersion),
			fmt.Sprintf("%s@%d", stored.Status, stored.Version))
	}
	e.s.exceptions[key] = *exc
	return nil
}

func (e *ExceptionStore) CountPending(_ context.Context, tenantID, reconciliationID string) (int, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	n := 0
	for _, exc := range e.s.exceptions {
		if exc.TenantID == tenantID && exc.ReconciliationID == reconciliationID && exc.Status != models.ExceptionStatusResolved {
			n++
		}
	}
	return n, nil
}
