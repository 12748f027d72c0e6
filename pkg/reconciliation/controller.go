package reconciliation

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/blob"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/storage"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

type Config struct {
	// RunTimeout bounds reading and matching; zero means no limit
	RunTimeout time.Duration
	// LockTTL is how long a workspace lock survives a crashed holder
	LockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{RunTimeout: 5 * time.Minute, LockTTL: 10 * time.Minute}
}

// Controller runs reconciliations for workspaces, at most one at a time per workspace
type Controller struct {
	stores   storage.Stores
	blobs    blob.Store
	locker   lock.Locker
	pipeline *Pipeline
	emitter  *events.Emitter
	logger   ectologger.Logger
	config   Config
	now      func() time.Time
}

func NewController(stores storage.Stores, blobs blob.Store, locker lock.Locker, pipeline *Pipeline, emitter *events.Emitter, logger ectologger.Logger, config Config) *Controller {
	return &Controller{
		stores:   stores,
		blobs:    blobs,
		locker:   locker,
		pipeline: pipeline,
		emitter:  emitter,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// plan is everything a run reads before it creates its record
type plan struct {
	file1   *models.SourceFile
	file2   *models.SourceFile
	mapping *models.FieldMapping
	rules   []validation.Rule
}

// Run reconciles the current files of a workspace. Configuration problems abort the
// run before any record exists; failures after that leave a failed or cancelled record.
func (c *Controller) Run(ctx context.Context, req models.RunRequest) (*models.ReconciliationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Controller.Run",
		attribute.String("fern.workspace_id", req.WorkspaceID),
		attribute.String("fern.tenant_id", req.TenantID),
	)
	defer span.End()

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = appctx.GetTenantID(ctx)
	}
	triggeredBy := req.RequestedBy
	if triggeredBy == "" {
		triggeredBy = appctx.GetUserID(ctx)
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"workspace_id": req.WorkspaceID,
	})

	if _, err := c.stores.Workspaces.Get(ctx, tenantID, req.WorkspaceID); err != nil {
		return nil, err
	}

	held, err := c.locker.Acquire(ctx, lockKey(tenantID, req.WorkspaceID), c.config.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.RunLockContention.Inc()
		log.Warn("Reconciliation already in progress for workspace")
		return nil, ferrors.NewRunInProgressError(req.WorkspaceID)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("Failed to release workspace run lock")
		}
	}()

	p, err := c.plan(ctx, tenantID, req.WorkspaceID)
	if err != nil {
		log.WithError(err).Info("Reconciliation rejected before start")
		return nil, err
	}

	started := c.now()
	rec := &models.ReconciliationRecord{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		WorkspaceID:   req.WorkspaceID,
		Status:        models.RunStatusPending,
		Source1FileID: p.file1.ID,
		Source2FileID: p.file2.ID,
		ExecutedAt:    started,
		TriggeredBy:   triggeredBy,
	}
	if err := c.stores.Reconciliations.Create(ctx, rec); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	ctx = appctx.SetRunID(ctx, rec.ID)
	log = log.WithField("reconciliation_id", rec.ID)
	log.Info("Reconciliation started")

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	runCtx := ctx
	if c.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.config.RunTimeout)
		defer cancel()
	}

	outcome, err := c.execute(runCtx, p)
	if err != nil {
		tracing.RecordError(span, err)
		return c.abort(ctx, rec, err)
	}

	c.complete(rec, outcome)
	stored := storage.RunOutcome{
		Record:     rec,
		Exceptions: c.exceptions(rec, outcome),
		Results:    outcome.Failures,
	}
	for i := range stored.Results {
		stored.Results[i].ReconciliationID = rec.ID
	}

	if err := c.stores.Reconciliations.Finish(context.WithoutCancel(ctx), stored); err != nil {
		tracing.RecordError(span, err)
		log.WithError(err).Error("Failed to store reconciliation outcome")
		// the record must not stay pending; store it as failed without its exceptions
		return c.abort(ctx, rec, err)
	}

	c.observe(rec, started, stored.Exceptions)
	log.WithFields(map[string]any{
		"status":          string(rec.Status),
		"total_records":   rec.TotalRecords,
		"matched_records": rec.MatchedRecords,
		"exceptions":      rec.ExceptionCount,
	}).Info("Reconciliation finished")

	if c.emitter != nil {
		_ = c.emitter.EmitReconciliationCompleted(ctx, rec)
	}

	return rec, nil
}

func (c *Controller) plan(ctx context.Context, tenantID, workspaceID string) (*plan, error) {
	file1, err := c.currentFile(ctx, tenantID, workspaceID, models.SideSource1)
	if err != nil {
		return nil, err
	}
	file2, err := c.currentFile(ctx, tenantID, workspaceID, models.SideSource2)
	if err != nil {
		return nil, err
	}

	fm, err := c.stores.Mappings.Get(ctx, tenantID, workspaceID)
	if ferrors.IsNotFound(err) {
		return nil, ferrors.NewConfigurationError("workspace has no field mapping")
	}
	if err != nil {
		return nil, err
	}

	// the rule set is read once so edits made during the run do not reach it
	defs, err := c.stores.Rules.List(ctx, tenantID, workspaceID)
	if err != nil {
		return nil, err
	}

	rules, err := c.pipeline.Prepare(fm, file1.Columns, file2.Columns, defs)
	if err != nil {
		return nil, err
	}

	return &plan{file1: file1, file2: file2, mapping: fm, rules: rules}, nil
}

func (c *Controller) currentFile(ctx context.Context, tenantID, workspaceID string, side models.Side) (*models.SourceFile, error) {
	file, err := c.stores.SourceFiles.Current(ctx, tenantID, workspaceID, side)
	if ferrors.IsNotFound(err) {
		return nil, ferrors.NewConfigurationError("workspace is missing a source file",
			ferrors.MappingProblem{Side: string(side), Message: "no file uploaded"})
	}
	return file, err
}

func (c *Controller) execute(ctx context.Context, p *plan) (*Outcome, error) {
	source1, err := c.open(ctx, p.file1)
	if err != nil {
		return nil, err
	}
	defer source1.Close()

	source2, err := c.open(ctx, p.file2)
	if err != nil {
		return nil, err
	}
	defer source2.Close()

	return c.pipeline.Execute(ctx, p.mapping, p.rules, source1, source2)
}

// fileSource streams the rows of a stored file and closes the blob with it
type fileSource struct {
	*schema.RowIterator
	body io.Closer
}

func (f *fileSource) Close() error {
	err := f.RowIterator.Close()
	if closeErr := f.body.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (c *Controller) open(ctx context.Context, file *models.SourceFile) (*fileSource, error) {
	body, err := c.blobs.Open(ctx, file.BlobKey)
	if err != nil {
		return nil, err
	}
	reader, err := schema.Open(body, file.Name, schema.Options{})
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	return &fileSource{RowIterator: schema.NewRowIterator(reader, file.Side), body: body}, nil
}

// abort records a run that started but could not finish
func (c *Controller) abort(ctx context.Context, rec *models.ReconciliationRecord, cause error) (*models.ReconciliationRecord, error) {
	status := models.RunStatusFailed
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		status = models.RunStatusCancelled
	}

	completed := c.now()
	reason := cause.Error()
	rec.Status = status
	rec.CompletedAt = &completed
	rec.FailureReason = &reason

	log := c.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"reconciliation_id": rec.ID,
		"status":            string(status),
	})
	if err := c.stores.Reconciliations.Finish(context.WithoutCancel(ctx), storage.RunOutcome{Record: rec}); err != nil {
		log.WithField("finish_error", err.Error()).Error("Failed to record aborted reconciliation")
	} else {
		log.Error("Reconciliation aborted")
	}
	metrics.RunsTotal.WithLabelValues(rec.TenantID, string(status)).Inc()

	return rec, cause
}

// complete fills in the final counts and status. Any exception makes the run an exception run.
func (c *Controller) complete(rec *models.ReconciliationRecord, outcome *Outcome) {
	stats := outcome.Match.Stats
	completed := c.now()

	rec.CompletedAt = &completed
	rec.TotalRecords = stats.Total()
	rec.MatchedRecords = stats.MatchedRows
	rec.ExceptionRecords = stats.ExceptionRows
	rec.UnmatchedRecords = stats.UnmatchedRows
	rec.ExceptionCount = len(outcome.Exceptions)
	rec.ValidationFailures = len(outcome.Failures)

	rec.Status = models.RunStatusComplete
	if rec.ExceptionCount > 0 {
		rec.Status = models.RunStatusException
	}
}

// exceptions stamps the run's exceptions with identity and an open lifecycle
func (c *Controller) exceptions(rec *models.ReconciliationRecord, outcome *Outcome) []models.ExceptionRecord {
	out := make([]models.ExceptionRecord, len(outcome.Exceptions))
	for i, exc := range outcome.Exceptions {
		exc.ID = uuid.New().String()
		exc.TenantID = rec.TenantID
		exc.WorkspaceID = rec.WorkspaceID
		exc.ReconciliationID = rec.ID
		exc.Status = models.ExceptionStatusOpen
		exc.Version = 1
		exc.Fingerprint = fingerprint.Exception(rec.WorkspaceID, exc)
		exc.CreatedAt = *rec.CompletedAt
		exc.UpdatedAt = *rec.CompletedAt
		out[i] = exc
	}
	return out
}

func (c *Controller) observe(rec *models.ReconciliationRecord, started time.Time, exceptions []models.ExceptionRecord) {
	metrics.RunsTotal.WithLabelValues(rec.TenantID, string(rec.Status)).Inc()
	metrics.RunDuration.WithLabelValues(rec.TenantID).Observe(rec.CompletedAt.Sub(started).Seconds())
	metrics.RowsProcessed.WithLabelValues("matched").Add(float64(rec.MatchedRecords))
	metrics.RowsProcessed.WithLabelValues("exception").Add(float64(rec.ExceptionRecords))
	metrics.RowsProcessed.WithLabelValues("unmatched").Add(float64(rec.UnmatchedRecords))
	for _, exc := range exceptions {
		metrics.ExceptionsCreated.WithLabelValues(string(exc.Kind)).Inc()
	}
}

func lockKey(tenantID, workspaceID string) string {
	return "reconciliation:" + tenantID + ":" + workspaceID
}
