// Package dispatcher implements the single-threaded cooperative claim
// loop that drives job handlers to completion. Claiming
// is delegated entirely to the database via SELECT ... FOR UPDATE SKIP
// LOCKED, grounded on smallbiznis-valora/internal/scheduler/locks.go's
// fetchSubscriptionsForWork.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"commerce-ingest-worker/internal/clock"
	"commerce-ingest-worker/internal/jobs"
	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/sourceclient"
	"commerce-ingest-worker/internal/store"
)

// claimedRun is the minimal shape the claim query reads off a Sync Run
// row before the handler takes over.
type claimedRun struct {
	ID            uuid.UUID
	IntegrationID uuid.UUID
	JobType       string
}

// Dispatcher owns the claim-run-terminate loop.
type Dispatcher struct {
	db       *gorm.DB
	store    *store.Store
	handlers map[model.JobType]jobs.Handler
	clock    clock.Clock
	log      *zap.Logger

	pollInterval time.Duration
}

// New builds a Dispatcher.
func New(db *gorm.DB, st *store.Store, handlers map[model.JobType]jobs.Handler, cl clock.Clock, pollInterval time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:           db,
		store:        st,
		handlers:     handlers,
		clock:        cl,
		pollInterval: pollInterval,
		log:          log.Named("dispatcher"),
	}
}

// Run loops until stop is closed. It checks stop only between
// iterations, not during one, so a claimed run is always driven to
// completion before the process exits. Each iteration runs
// against its own background context rather than a context tied to stop,
// precisely so closing stop cannot abort an in-flight handler call. A
// panic inside one iteration is recovered, logged, and the loop restarts
// after a 5-second pause.
func (d *Dispatcher) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		d.safeIteration(context.Background())
	}
}

const panicRestartPause = 5 * time.Second

func (d *Dispatcher) safeIteration(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatcher loop panicked, restarting", zap.Any("panic", r))
			d.clock.Sleep(panicRestartPause)
		}
	}()
	d.iterate(ctx)
}

// iterate runs one claim cycle.
func (d *Dispatcher) iterate(ctx context.Context) {
	run, found, err := d.claim(ctx)
	if err != nil {
		d.log.Error("claim failed", zap.Error(err))
		d.clock.Sleep(d.pollInterval)
		return
	}
	if !found {
		d.clock.Sleep(d.pollInterval)
		return
	}

	log := d.log.With(zap.String("run_id", run.ID.String()), zap.String("job_type", run.JobType))
	log.Info("claimed run")

	integ, err := d.store.GetIntegration(ctx, run.IntegrationID)
	if err != nil {
		d.terminateError(ctx, run.ID, model.ErrWorker, err.Error())
		return
	}

	handler, known := d.handlers[model.JobType(run.JobType)]
	if !known {
		log.Warn("unknown job type")
		d.terminateError(ctx, run.ID, model.ErrUnknownJobType, fmt.Sprintf("unrecognised job_type %q", run.JobType))
		return
	}

	syncRun := model.SyncRun{ID: run.ID, IntegrationID: run.IntegrationID, JobType: run.JobType}
	stats, err := handler.Run(ctx, syncRun, integ)
	if err != nil {
		d.handleFailure(ctx, run.ID, integ.ID, err, log)
		return
	}

	d.terminateSuccess(ctx, run.ID, stats)
	log.Info("run succeeded")
}

// claim opens one transaction, selects at most one queued (and not
// currently rate-limited) run with FOR UPDATE SKIP LOCKED, and flips it
// to running in the same transaction.
func (d *Dispatcher) claim(ctx context.Context) (claimedRun, bool, error) {
	var run claimedRun
	found := false

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []claimedRun
		err := tx.Raw(
			`SELECT id, integration_id, job_type
			 FROM sync_runs
			 WHERE status = 'queued'
			   AND (NOT rate_limited OR rate_limit_reset_at <= now())
			 ORDER BY created_at ASC
			 LIMIT 1
			 FOR UPDATE SKIP LOCKED`,
		).Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("dispatcher: claim select: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		run = rows[0]
		found = true

		res := tx.Exec(
			`UPDATE sync_runs
			 SET status = 'running', started_at = now(), error_code = NULL, error_message = NULL
			 WHERE id = ?`,
			run.ID,
		)
		if res.Error != nil {
			return fmt.Errorf("dispatcher: claim update: %w", res.Error)
		}
		return nil
	})
	if err != nil {
		return claimedRun{}, false, err
	}
	return run, found, nil
}

// handleFailure classifies err and terminates the run accordingly,
// marking the integration as errored on auth failures and
// flagging rate limits so the dispatcher skips the run until reset.
func (d *Dispatcher) handleFailure(ctx context.Context, runID, integrationID uuid.UUID, err error, log *zap.Logger) {
	kind := sourceclient.KindOf(err)
	log.Error("run failed", zap.String("error_code", string(kind)), zap.Error(err))

	switch kind {
	case model.ErrAuth:
		if markErr := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return store.MarkIntegrationError(ctx, tx, integrationID)
		}); markErr != nil {
			log.Error("failed to mark integration error", zap.Error(markErr))
		}
		d.terminateError(ctx, runID, kind, err.Error())
	case model.ErrRateLimited:
		d.terminateRateLimited(ctx, runID, err.Error())
	default:
		d.terminateError(ctx, runID, kind, err.Error())
	}
}

const rateLimitCooldown = 5 * time.Minute

func (d *Dispatcher) terminateSuccess(ctx context.Context, runID uuid.UUID, stats jobs.Stats) {
	res := d.db.WithContext(ctx).Exec(
		`UPDATE sync_runs SET status = 'success', finished_at = now(), stats = ? WHERE id = ?`,
		statsJSON(stats), runID,
	)
	if res.Error != nil {
		d.log.Error("failed to record success", zap.Error(res.Error), zap.String("run_id", runID.String()))
	}
}

func (d *Dispatcher) terminateError(ctx context.Context, runID uuid.UUID, code model.ErrorCode, message string) {
	truncated := model.TruncateErrorMessage(message)
	res := d.db.WithContext(ctx).Exec(
		`UPDATE sync_runs SET status = 'error', finished_at = now(), error_code = ?, error_message = ? WHERE id = ?`,
		string(code), truncated, runID,
	)
	if res.Error != nil {
		d.log.Error("failed to record error", zap.Error(res.Error), zap.String("run_id", runID.String()))
	}
}

func (d *Dispatcher) terminateRateLimited(ctx context.Context, runID uuid.UUID, message string) {
	truncated := model.TruncateErrorMessage(message)
	resetAt := d.clock.Now().Add(rateLimitCooldown)
	res := d.db.WithContext(ctx).Exec(
		`UPDATE sync_runs
		 SET status = 'error', finished_at = now(), error_code = ?, error_message = ?,
		     rate_limited = true, rate_limit_reset_at = ?
		 WHERE id = ?`,
		string(model.ErrRateLimited), truncated, resetAt, runID,
	)
	if res.Error != nil {
		d.log.Error("failed to record rate-limited error", zap.Error(res.Error), zap.String("run_id", runID.String()))
	}
}

// statsJSON marshals handler stats for storage; a nil/empty map still
// produces a valid empty JSON object rather than a null column.
func statsJSON(stats jobs.Stats) string {
	if stats == nil {
		stats = jobs.Stats{}
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// abandonedThreshold is the default age after which a running Sync Run is
// considered abandoned.
const abandonedThreshold = 30 * time.Minute

// SweepAbandoned marks running Sync Runs older than threshold as
// error/abandoned. This is an external collaborator's responsibility; it
// is exposed here so an operator cron or supervisor binary can invoke it
// without reimplementing the query.
func (d *Dispatcher) SweepAbandoned(ctx context.Context, threshold time.Duration) (int64, error) {
	if threshold <= 0 {
		threshold = abandonedThreshold
	}
	res := d.db.WithContext(ctx).Exec(
		`UPDATE sync_runs
		 SET status = 'error', finished_at = now(), error_code = 'abandoned',
		     error_message = 'run exceeded running threshold with no finished_at'
		 WHERE status = 'running' AND started_at <= now() - ?::interval`,
		fmt.Sprintf("%d seconds", int(threshold.Seconds())),
	)
	if res.Error != nil {
		return 0, fmt.Errorf("dispatcher: sweep abandoned: %w", res.Error)
	}
	return res.RowsAffected, nil
}
