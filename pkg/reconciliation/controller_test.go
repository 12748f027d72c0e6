package reconciliation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/blob"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/storage/memory"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const tenant = "tenant-a"

type recordingPublisher struct {
	eventTypes []string
}

func (p *recordingPublisher) Publish(_ context.Context, _, eventType, _ string, _ []byte) error {
	p.eventTypes = append(p.eventTypes, eventType)
	return nil
}

type fixture struct {
	t          *testing.T
	controller *Controller
	stores     storage.Stores
	locker     *lock.MemoryLocker
	publisher  *recordingPublisher
	workspace  string
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newPipeline() *Pipeline {
	logger := testLogger()
	return NewPipeline(logger,
		matching.NewEngine(logger, matching.DefaultConfig()),
		validation.NewEngine(logger, validation.NewRegistry(expressions.NewEvaluator()), validation.DefaultConfig()))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores := memory.NewStores()
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	locker := lock.NewMemoryLocker()
	pub := &recordingPublisher{}
	controller := NewController(stores, blobs, locker, newPipeline(), events.NewEmitter(pub, testLogger()), testLogger(), DefaultConfig())

	ws := &models.Workspace{ID: "ws-1", TenantID: tenant, Name: "Dealer payouts", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, stores.Workspaces.Create(context.Background(), ws))

	return &fixture{t: t, controller: controller, stores: stores, locker: locker, publisher: pub, workspace: ws.ID}
}

func (f *fixture) upload(side models.Side, name, content string) *models.SourceFile {
	f.t.Helper()
	file, err := f.controller.Ingest(context.Background(), tenant, f.workspace, side, name, strings.NewReader(content))
	require.NoError(f.t, err)
	return file
}

func (f *fixture) mapping(pairs ...models.FieldPair) {
	f.t.Helper()
	require.NoError(f.t, f.stores.Mappings.Save(context.Background(), &models.FieldMapping{
		ID: "map-1", TenantID: tenant, WorkspaceID: f.workspace, Pairs: pairs,
	}))
}

func (f *fixture) refAmount() {
	f.mapping(
		models.FieldPair{Field1: "ref", Field2: "ref", Role: models.FieldRoleKey},
		models.FieldPair{Field1: "amount", Field2: "amount", Role: models.FieldRoleCompare, Type: models.FieldTypeNumber},
	)
}

func (f *fixture) rule(rule models.ValidationRule) {
	f.t.Helper()
	rule.TenantID = tenant
	rule.WorkspaceID = f.workspace
	require.NoError(f.t, f.stores.Rules.Create(context.Background(), &rule))
}

func (f *fixture) run() (*models.ReconciliationRecord, error) {
	return f.controller.Run(context.Background(), models.RunRequest{TenantID: tenant, WorkspaceID: f.workspace, RequestedBy: "ops@example.com"})
}

func (f *fixture) history() []models.ReconciliationRecord {
	f.t.Helper()
	runs, err := f.controller.History(context.Background(), tenant, f.workspace)
	require.NoError(f.t, err)
	return runs
}

func (f *fixture) exceptions(runID string) []models.ExceptionRecord {
	f.t.Helper()
	list, err := f.stores.Exceptions.List(context.Background(), tenant, models.ExceptionFilter{ReconciliationID: runID})
	require.NoError(f.t, err)
	return list
}

func assertCounts(t *testing.T, rec *models.ReconciliationRecord) {
	t.Helper()
	assert.Equal(t, rec.TotalRecords, rec.MatchedRecords+rec.ExceptionRecords+rec.UnmatchedRecords)
}

func ptr(s string) *string { return &s }

func TestRunAllMatched(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,100.00\n")
	f.refAmount()

	rec, err := f.run()
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusComplete, rec.Status)
	assert.Equal(t, 2, rec.TotalRecords)
	assert.Equal(t, 2, rec.MatchedRecords)
	assert.Equal(t, 0, rec.ExceptionCount)
	assert.Equal(t, "ops@example.com", rec.TriggeredBy)
	assert.NotNil(t, rec.CompletedAt)
	assertCounts(t, rec)

	stored, err := f.stores.Reconciliations.Get(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, stored.Status)
	assert.Empty(t, f.exceptions(rec.ID))
	assert.Equal(t, []string{string(events.EventTypeReconciliationCompleted)}, f.publisher.eventTypes)
}

func TestRunFieldMismatch(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,105\n")
	f.refAmount()

	rec, err := f.run()
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusException, rec.Status)
	assert.Equal(t, 2, rec.ExceptionRecords)
	assert.Equal(t, 1, rec.ExceptionCount)
	assertCounts(t, rec)

	list := f.exceptions(rec.ID)
	require.Len(t, list, 1)
	exc := list[0]
	assert.Equal(t, "Field mismatch: amount", exc.Rule)
	assert.Equal(t, "100", exc.Source1Value)
	assert.Equal(t, "105", exc.Source2Value)
	assert.Equal(t, models.ExceptionStatusOpen, exc.Status)
	assert.Equal(t, 1, exc.Version)
	assert.Equal(t, rec.ID, exc.ReconciliationID)
	assert.NotEmpty(t, exc.ID)
	assert.NotEmpty(t, exc.Fingerprint)
}

func TestRunUnmatched(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nB7,100\n")
	f.refAmount()

	rec, err := f.run()
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusException, rec.Status)
	assert.Equal(t, 2, rec.UnmatchedRecords)
	assert.Equal(t, 0, rec.MatchedRecords)
	assertCounts(t, rec)

	list := f.exceptions(rec.ID)
	require.Len(t, list, 2)
	assert.Equal(t, models.RuleUnmatchedRecord, list[0].Rule)
	assert.Equal(t, "source1:1", list[0].RecordID)
	assert.Equal(t, "source2:1", list[1].RecordID)
}

func TestRunValidationFailureMakesPairAnException(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount,rate\nA1,100,30\nA2,50,10\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount,rate\nA1,100,30\nA2,50,10\n")
	f.mapping(
		models.FieldPair{Field1: "ref", Field2: "ref", Role: models.FieldRoleKey},
		models.FieldPair{Field1: "amount", Field2: "amount", Type: models.FieldTypeNumber},
		models.FieldPair{Field1: "rate", Field2: "rate", Type: models.FieldTypeNumber},
	)
	f.rule(models.ValidationRule{ID: "r1", Name: "Rate band", Type: models.RuleTypeMinMax, Field1: "rate", Value: ptr("5-25"), Enabled: true})
	f.rule(models.ValidationRule{ID: "r2", Name: "Disabled band", Type: models.RuleTypeMinMax, Field1: "rate", Value: ptr("0-1"), Enabled: false})

	rec, err := f.run()
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusException, rec.Status)
	assert.Equal(t, 1, rec.ValidationFailures)
	assert.Equal(t, 2, rec.MatchedRecords)
	assert.Equal(t, 2, rec.ExceptionRecords)
	assertCounts(t, rec)

	list := f.exceptions(rec.ID)
	require.Len(t, list, 1)
	assert.Equal(t, models.ExceptionKindValidation, list[0].Kind)
	assert.Equal(t, "Rate band", list[0].Rule)
	assert.Equal(t, "r1", list[0].RuleID)
	assert.Equal(t, "source1:1", list[0].RecordID)
	assert.Equal(t, "source2:1", list[0].RelatedRecordID)

	results, err := f.stores.Reconciliations.Results(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, rec.ID, results[0].ReconciliationID)
	assert.Equal(t, "5-25", results[0].ExpectedValue)
	assert.Equal(t, "30", results[0].Value1)
}

func TestRunConfigurationErrorsCreateNoRecord(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t)
		f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
		f.refAmount()

		_, err := f.run()
		assert.True(t, ferrors.IsConfigurationError(err))
		assert.Empty(t, f.history())
	})

	t.Run("missing mapping", func(t *testing.T) {
		f := newFixture(t)
		f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
		f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,100\n")

		_, err := f.run()
		assert.True(t, ferrors.IsConfigurationError(err))
		assert.Empty(t, f.history())
	})

	t.Run("unknown column", func(t *testing.T) {
		f := newFixture(t)
		f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
		f.upload(models.SideSource2, "theirs.csv", "ref,total\nA1,100\n")
		f.refAmount()

		_, err := f.run()
		assert.True(t, ferrors.IsConfigurationError(err))
		assert.Empty(t, f.history())
	})

	t.Run("malformed rule", func(t *testing.T) {
		f := newFixture(t)
		f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
		f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,100\n")
		f.refAmount()
		f.rule(models.ValidationRule{ID: "bad", Name: "bad", Type: models.RuleTypeMinMax, Field1: "amount", Value: ptr("lots"), Enabled: true})

		_, err := f.run()
		assert.True(t, ferrors.IsValidationRuleError(err))
		assert.Empty(t, f.history())
	})

	t.Run("unknown workspace", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.controller.Run(context.Background(), models.RunRequest{TenantID: tenant, WorkspaceID: "nope"})
		assert.True(t, ferrors.IsNotFound(err))
	})
}

func TestRunRejectedWhileWorkspaceLocked(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,100\n")
	f.refAmount()

	held, err := f.locker.Acquire(context.Background(), lockKey(tenant, f.workspace), time.Minute)
	require.NoError(t, err)

	_, err = f.run()
	assert.True(t, ferrors.IsRunInProgress(err))
	assert.Empty(t, f.history())

	require.NoError(t, held.Release(context.Background()))
	rec, err := f.run()
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusComplete, rec.Status)

	// the run released its lock
	again, err := f.locker.Acquire(context.Background(), lockKey(tenant, f.workspace), time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(context.Background()))
}

func TestRunCancelledLeavesCancelledRecord(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,105\n")
	f.refAmount()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := f.controller.Run(ctx, models.RunRequest{TenantID: tenant, WorkspaceID: f.workspace})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rec)
	assert.Equal(t, models.RunStatusCancelled, rec.Status)
	require.NotNil(t, rec.FailureReason)

	runs := f.history()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusCancelled, runs[0].Status)
	assert.Empty(t, f.exceptions(rec.ID))
	assert.Empty(t, f.publisher.eventTypes)
}

// flakyFinish fails the first Finish call and stores the rest
type flakyFinish struct {
	storage.ReconciliationStore
	calls int
}

func (s *flakyFinish) Finish(ctx context.Context, outcome storage.RunOutcome) error {
	s.calls++
	if s.calls == 1 {
		return errors.New("connection reset")
	}
	return s.ReconciliationStore.Finish(ctx, outcome)
}

func TestRunMarkedFailedWhenOutcomeCannotBeStored(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,105\n")
	f.refAmount()

	flaky := &flakyFinish{ReconciliationStore: f.stores.Reconciliations}
	f.controller.stores.Reconciliations = flaky

	rec, err := f.run()
	require.EqualError(t, err, "connection reset")
	require.NotNil(t, rec)
	assert.Equal(t, models.RunStatusFailed, rec.Status)
	assert.Equal(t, 2, flaky.calls)

	stored, err := f.stores.Reconciliations.Get(context.Background(), tenant, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "connection reset", *stored.FailureReason)
	assert.Empty(t, f.exceptions(rec.ID))
	assert.Empty(t, f.publisher.eventTypes)
}

func TestRunsAreDeterministic(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\nA2,7\nA3,9\nA3,9\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,101\nA2,7\nZ9,1\n")
	f.refAmount()

	first, err := f.run()
	require.NoError(t, err)
	second, err := f.run()
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	fingerprints := func(runID string) []string {
		var out []string
		for _, exc := range f.exceptions(runID) {
			out = append(out, exc.Fingerprint)
		}
		return out
	}
	assert.Equal(t, fingerprints(first.ID), fingerprints(second.ID))
	assert.Equal(t, first.ExceptionRecords, second.ExceptionRecords)
	assert.Equal(t, first.MatchedRecords, second.MatchedRecords)

	runs := f.history()
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
}

func TestIngestRejectsEmptyFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.Ingest(context.Background(), tenant, f.workspace, models.SideSource1, "empty.csv", strings.NewReader("ref,amount\n"))
	assert.True(t, ferrors.IsSchemaError(err))

	_, err = f.controller.Ingest(context.Background(), tenant, f.workspace, "source3", "x.csv", strings.NewReader("ref\nA\n"))
	assert.True(t, ferrors.IsSchemaError(err))

	files, err := f.controller.Files(context.Background(), tenant, f.workspace)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestIngestSupersedesPreviousFile(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "v1.csv", "ref,amount\nA1,100\n")
	latest := f.upload(models.SideSource1, "v2.csv", "ref,amount,rate\nA1,100,5\nA2,1,1\n")

	assert.Equal(t, []string{"ref", "amount", "rate"}, latest.Columns)
	assert.Equal(t, 2, latest.RowCount)
	assert.Equal(t, models.ColumnTypeNumber, latest.ColumnTypes["amount"])

	current, err := f.stores.SourceFiles.Current(context.Background(), tenant, f.workspace, models.SideSource1)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, current.ID)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)

	summary, err := f.controller.Summary(context.Background(), tenant, f.workspace)
	require.NoError(t, err)
	assert.Nil(t, summary.LastRunStatus)
	assert.Equal(t, 0, summary.TotalRecords)

	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\nA2,5\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,105\nA2,5\n")
	f.refAmount()
	rec, err := f.run()
	require.NoError(t, err)

	summary, err = f.controller.Summary(context.Background(), tenant, f.workspace)
	require.NoError(t, err)
	require.NotNil(t, summary.LastRunStatus)
	assert.Equal(t, models.RunStatusException, *summary.LastRunStatus)
	assert.Equal(t, rec.TotalRecords, summary.TotalRecords)
	assert.Equal(t, 2, summary.MatchedRecords)
	assert.Equal(t, 1, summary.PendingExceptions)
	assert.NotNil(t, summary.LastUpdated)
}

func TestHandleRunRequest(t *testing.T) {
	f := newFixture(t)
	f.upload(models.SideSource1, "ours.csv", "ref,amount\nA1,100\n")
	f.upload(models.SideSource2, "theirs.csv", "ref,amount\nA1,100\n")
	f.refAmount()

	var permanent *kafka.PermanentError

	err := f.controller.HandleRunRequest(context.Background(), &kafka.IncomingMessage{Value: []byte("{not json")})
	assert.ErrorAs(t, err, &permanent)

	err = f.controller.HandleRunRequest(context.Background(), &kafka.IncomingMessage{
		Value:   []byte(`{"workspace_id":"missing"}`),
		Headers: map[string]string{"tenant_id": tenant},
	})
	assert.ErrorAs(t, err, &permanent)

	err = f.controller.HandleRunRequest(context.Background(), &kafka.IncomingMessage{
		Value:   []byte(`{"workspace_id":"ws-1","requested_by":"scheduler"}`),
		Headers: map[string]string{"tenant_id": tenant},
	})
	require.NoError(t, err)

	runs := f.history()
	require.Len(t, runs, 1)
	assert.Equal(t, "scheduler", runs[0].TriggeredBy)
}
