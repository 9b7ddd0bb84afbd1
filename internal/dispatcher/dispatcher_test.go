package dispatcher

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"commerce-ingest-worker/internal/clock"
	"commerce-ingest-worker/internal/dbx"
	"commerce-ingest-worker/internal/jobs"
	"commerce-ingest-worker/internal/logging"
	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/store"
)

func TestStatsJSON_NilStatsIsEmptyObject(t *testing.T) {
	require.Equal(t, "{}", statsJSON(nil))
}

func TestStatsJSON_MarshalsMap(t *testing.T) {
	out := statsJSON(jobs.Stats{"orders_fetched": 3})
	require.Equal(t, `{"orders_fetched":3}`, out)
}

// openDispatcherTestDB connects a Dispatcher to a real schema; it is
// skipped unless INGEST_TEST_DATABASE_URL is set because the claim query
// relies on Postgres-only FOR UPDATE SKIP LOCKED semantics.
func openDispatcherTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("INGEST_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("INGEST_TEST_DATABASE_URL not set, skipping Postgres-backed dispatcher test")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
		CREATE TABLE IF NOT EXISTS integrations (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
		)
	`).Error)
	require.NoError(t, db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_runs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			integration_id UUID NOT NULL,
			job_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			trigger TEXT NOT NULL DEFAULT 'manual',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			error_code TEXT,
			error_message TEXT,
			rate_limited BOOLEAN NOT NULL DEFAULT false,
			rate_limit_reset_at TIMESTAMPTZ,
			stats JSONB
		)
	`).Error)
	return db
}

func TestClaim_SkipsRateLimitedUntilReset(t *testing.T) {
	db := openDispatcherTestDB(t)
	ctx := context.Background()

	integrationID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO integrations (id, account_id, type, status) VALUES (?, ?, 'commerce', 'active')`,
		integrationID, uuid.New(),
	).Error)

	runID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO sync_runs (id, integration_id, job_type, status, rate_limited, rate_limit_reset_at)
		 VALUES (?, ?, 'commerce_fresh', 'queued', true, now() + interval '1 hour')`,
		runID, integrationID,
	).Error)

	log, err := logging.New(logging.Options{Level: "error"})
	require.NoError(t, err)
	st := store.New(&dbx.Pool{DB: db})
	d := New(db, st, map[model.JobType]jobs.Handler{}, clock.System{}, time.Second, log)

	_, found, err := d.claim(ctx)
	require.NoError(t, err)
	require.False(t, found, "a rate-limited run with a future reset must not be claimable")
}

func TestClaim_ClaimsQueuedRunAndMarksRunning(t *testing.T) {
	db := openDispatcherTestDB(t)
	ctx := context.Background()

	integrationID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO integrations (id, account_id, type, status) VALUES (?, ?, 'commerce', 'active')`,
		integrationID, uuid.New(),
	).Error)

	runID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO sync_runs (id, integration_id, job_type, status) VALUES (?, ?, 'commerce_fresh', 'queued')`,
		runID, integrationID,
	).Error)

	log, err := logging.New(logging.Options{Level: "error"})
	require.NoError(t, err)
	st := store.New(&dbx.Pool{DB: db})
	d := New(db, st, map[model.JobType]jobs.Handler{}, clock.System{}, time.Second, log)

	claimed, found, err := d.claim(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, runID, claimed.ID)

	var status string
	require.NoError(t, db.Raw(`SELECT status FROM sync_runs WHERE id = ?`, runID).Scan(&status).Error)
	require.Equal(t, "running", status)
}

func TestSweepAbandoned_MarksStaleRunningAsError(t *testing.T) {
	db := openDispatcherTestDB(t)
	ctx := context.Background()

	integrationID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO integrations (id, account_id, type, status) VALUES (?, ?, 'commerce', 'active')`,
		integrationID, uuid.New(),
	).Error)

	runID := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO sync_runs (id, integration_id, job_type, status, started_at)
		 VALUES (?, ?, 'commerce_fresh', 'running', now() - interval '1 hour')`,
		runID, integrationID,
	).Error)

	log, err := logging.New(logging.Options{Level: "error"})
	require.NoError(t, err)
	st := store.New(&dbx.Pool{DB: db})
	d := New(db, st, map[model.JobType]jobs.Handler{}, clock.System{}, time.Second, log)

	affected, err := d.SweepAbandoned(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.GreaterOrEqual(t, affected, int64(1))

	var status, code string
	require.NoError(t, db.Raw(`SELECT status, error_code FROM sync_runs WHERE id = ?`, runID).Row().Scan(&status, &code))
	require.Equal(t, "error", status)
	require.Equal(t, "abandoned", code)
}
