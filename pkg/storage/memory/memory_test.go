package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/storage"
)

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	stores := NewStores()

	require.NoError(t, stores.Workspaces.Create(ctx, &models.Workspace{ID: "w1", TenantID: "t1", Name: "EMI"}))

	_, err := stores.Workspaces.Get(ctx, "t2", "w1")
	assert.True(t, ferrors.IsNotFound(err))

	list, err := stores.Workspaces.List(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCurrentSourceFile(t *testing.T) {
	ctx := context.Background()
	stores := NewStores()

	for _, id := range []string{"f1", "f2"} {
		require.NoError(t, stores.SourceFiles.Create(ctx, &models.SourceFile{ID: id, TenantID: "t", WorkspaceID: "w", Side: models.SideSource1}))
	}
	require.NoError(t, stores.SourceFiles.Create(ctx, &models.SourceFile{ID: "f3", TenantID: "t", WorkspaceID: "w", Side: models.SideSource2}))

	cur, err := stores.SourceFiles.Current(ctx, "t", "w", models.SideSource1)
	require.NoError(t, err)
	assert.Equal(t, "f2", cur.ID)

	_, err = stores.SourceFiles.Current(ctx, "t", "other", models.SideSource1)
	assert.True(t, ferrors.IsNotFound(err))
}

func TestMappingIsCopied(t *testing.T) {
	ctx := context.Background()
	stores := NewStores()
	mapping := &models.FieldMapping{TenantID: "t", WorkspaceID: "w", Pairs: []models.FieldPair{{Field1: "a", Field2: "b"}}}
	require.NoError(t, stores.Mappings.Save(ctx, mapping))

	mapping.Pairs[0].Field2 = "changed"
	got, err := stores.Mappings.Get(ctx, "t", "w")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Pairs[0].Field2)
}

func TestFinishIsOnce(t *testing.T) {
	ctx := context.Background()
	stores := NewStores()
	run := &models.ReconciliationRecord{ID: "r1", TenantID: "t", WorkspaceID: "w", Status: models.RunStatusPending, ExecutedAt: time.Now()}
	require.NoError(t, stores.Reconciliations.Create(ctx, run))

	done := *run
	done.Status = models.RunStatusException
	outcome := storage.RunOutcome{
		Record:     &done,
		Exceptions: []models.ExceptionRecord{{ID: "e1", TenantID: "t", ReconciliationID: "r1", Status: models.ExceptionStatusOpen, Version: 1}},
		Results:    []models.ValidationResult{{RuleID: "rule", RecordID: "source1:1"}},
	}
	require.NoError(t, stores.Reconciliations.Finish(ctx, outcome))

	err := stores.Reconciliations.Finish(ctx, outcome)
	assert.True(t, ferrors.IsConcurrencyError(err))

	results, err := stores.Reconciliations.Results(ctx, "t", "r1")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	excs, err := stores.Exceptions.List(ctx, "t", models.ExceptionFilter{ReconciliationID: "r1"})
	require.NoError(t, err)
	assert.Len(t, excs, 1)

	pending, err := stores.Exceptions.CountPending(ctx, "t", "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestExceptionTransitionCAS(t *testing.T) {
	ctx := context.Background()
	stores := NewStores()
	run := &models.ReconciliationRecord{ID: "r1", TenantID: "t", Status: models.RunStatusPending}
	require.NoError(t, stores.Reconciliations.Create(ctx, run))
	done := *run
	done.Status = models.RunStatusException
	require.NoError(t, stores.Reconciliations.Finish(ctx, storage.RunOutcome{
		Record:     &done,
		Exceptions: []models.ExceptionRecord{{ID: "e1", TenantID: "t", Status: models.ExceptionStatusOpen, Version: 1}},
	}))

	exc, err := stores.Exceptions.Get(ctx, "t", "e1")
	require.NoError(t, err)
	exc.Status = models.ExceptionStatusResolved
	exc.Version = 2
	require.NoError(t, stores.Exceptions.Transition(ctx, exc, models.ExceptionStatusOpen, 1))

	// a second writer holding the stale version loses
	err = stores.Exceptions.Transition(ctx, exc, models.ExceptionStatusOpen, 1)
	assert.True(t, ferrors.IsConcurrencyError(err))

	resolved := models.ExceptionStatusResolved
	excs, err := stores.Exceptions.List(ctx, "t", models.ExceptionFilter{Status: &resolved})
	require.NoError(t, err)
	assert.Len(t, excs, 1)
}

func TestRuleDelete(t *testing.T) {
	ctx := context.Background()
	stores := NewStores()
	require.NoError(t, stores.Rules.Create(ctx, &models.ValidationRule{ID: "r1", TenantID: "t", WorkspaceID: "w"}))
	require.NoError(t, stores.Rules.Create(ctx, &models.ValidationRule{ID: "r2", TenantID: "t", WorkspaceID: "w"}))
	require.NoError(t, stores.Rules.Delete(ctx, "t", "r1"))

	rules, err := stores.Rules.List(ctx, "t", "w")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r2", rules[0].ID)

	assert.True(t, ferrors.IsNotFound(stores.Rules.Delete(ctx, "t", "r1")))
}
