package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"agentsched-go/internal/schedule"
	"agentsched-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := storage.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// mustCreate inserts a pending job with the given next_run offset from now.
func mustCreate(t *testing.T, store JobStore, name, action string, kind schedule.Kind, cronSpec string, nextRun time.Time) *Job {
	t.Helper()
	job := &Job{
		Name:         name,
		Action:       action,
		Params:       json.RawMessage(`{}`),
		ScheduleKind: kind,
		CronSpec:     cronSpec,
		Status:       StatusPending,
		NextRun:      &nextRun,
	}
	require.NoError(t, store.Create(context.Background(), job))
	return job
}

func TestJobStore_CreateAndGet(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()

	next := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	job := &Job{
		Name:         "daily-report",
		Action:       "server_status",
		Params:       json.RawMessage(`{"detail":true}`),
		ScheduleKind: schedule.KindRecurring,
		CronSpec:     "0 9 * * *",
		Status:       StatusPending,
		NextRun:      &next,
	}
	require.NoError(t, store.Create(ctx, job))
	require.NotEmpty(t, job.ID)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "daily-report", got.Name)
	assert.Equal(t, "server_status", got.Action)
	assert.JSONEq(t, `{"detail":true}`, string(got.Params))
	assert.Equal(t, schedule.KindRecurring, got.ScheduleKind)
	assert.Equal(t, "0 9 * * *", got.CronSpec)
	assert.Equal(t, StatusPending, got.Status)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.Equal(next))
	assert.Nil(t, got.LastRun)
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))

	_, err := store.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobStore_GetByName(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	older := mustCreate(t, store, "morning report", "remind", schedule.KindOnce, "", now.Add(time.Hour))
	// Force distinct created_at values so recency is unambiguous.
	_, err := store.db.ExecContext(ctx, `UPDATE jobs SET created_at = ? WHERE id = ?`,
		now.Add(-time.Hour), older.ID)
	require.NoError(t, err)
	newer := mustCreate(t, store, "evening REPORT", "remind", schedule.KindOnce, "", now.Add(time.Hour))

	got, err := store.GetByName(ctx, "report")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID, "substring match must return the most recently created job")

	got, err = store.GetByName(ctx, "MORNING")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	_, err = store.GetByName(ctx, "banana")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobStore_ListOrdering(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	late := mustCreate(t, store, "late", "remind", schedule.KindOnce, "", now.Add(2*time.Hour))
	early := mustCreate(t, store, "early", "remind", schedule.KindOnce, "", now.Add(time.Hour))
	done := mustCreate(t, store, "done", "remind", schedule.KindOnce, "", now)
	require.NoError(t, store.MarkRunning(ctx, done.ID, now))
	require.NoError(t, store.MarkDone(ctx, done.ID, StatusCompleted, "ok", now, nil))

	jobs, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// Live jobs first in next_run order, terminal jobs after.
	assert.Equal(t, early.ID, jobs[0].ID)
	assert.Equal(t, late.ID, jobs[1].ID)
	assert.Equal(t, done.ID, jobs[2].ID)
}

func TestJobStore_ListStatusFilter(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	pending := mustCreate(t, store, "pending", "remind", schedule.KindOnce, "", now.Add(time.Hour))
	cancelled := mustCreate(t, store, "cancelled", "remind", schedule.KindOnce, "", now.Add(time.Hour))
	n, err := store.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	jobs, err := store.List(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, pending.ID, jobs[0].ID)
}

func TestJobStore_Due(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	overdue := mustCreate(t, store, "overdue", "remind", schedule.KindOnce, "", now.Add(-time.Minute))
	exact := mustCreate(t, store, "exact", "remind", schedule.KindOnce, "", now)
	mustCreate(t, store, "future", "remind", schedule.KindOnce, "", now.Add(time.Hour))

	due, err := store.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, overdue.ID, due[0].ID, "due jobs come back earliest first")
	assert.Equal(t, exact.ID, due[1].ID, "next_run == now counts as due")

	// Idempotent without intervening execution.
	again, err := store.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, due[0].ID, again[0].ID)
	assert.Equal(t, due[1].ID, again[1].ID)
}

func TestJobStore_Cancel(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	job := mustCreate(t, store, "cancellable", "remind", schedule.KindOnce, "", now.Add(time.Hour))

	n, err := store.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Nil(t, got.NextRun)

	// Cancelled jobs never show up as due.
	due, err := store.Due(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	// Already cancelled: nothing left to cancel.
	n, err = store.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestJobStore_CancelRunningIsNoop(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	job := mustCreate(t, store, "busy", "remind", schedule.KindOnce, "", now)
	require.NoError(t, store.MarkRunning(ctx, job.ID, now))

	n, err := store.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestJobStore_CancelByName(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	mustCreate(t, store, "report morning", "remind", schedule.KindOnce, "", now.Add(time.Hour))
	mustCreate(t, store, "report evening", "remind", schedule.KindOnce, "", now.Add(time.Hour))
	mustCreate(t, store, "unrelated", "remind", schedule.KindOnce, "", now.Add(time.Hour))

	n, err := store.CancelByName(ctx, "report")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestJobStore_MarkRunningRequiresPending(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	job := mustCreate(t, store, "claimed", "remind", schedule.KindOnce, "", now)
	require.NoError(t, store.MarkRunning(ctx, job.ID, now))

	// Second claim must fail: the first one owns the job.
	err := store.MarkRunning(ctx, job.ID, now)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestJobStore_MarkDone(t *testing.T) {
	store := NewSQLiteJobStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("once job becomes terminal", func(t *testing.T) {
		job := mustCreate(t, store, "once", "remind", schedule.KindOnce, "", now)
		require.NoError(t, store.MarkRunning(ctx, job.ID, now))
		require.NoError(t, store.MarkDone(ctx, job.ID, StatusCompleted, "did it", now, nil))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		assert.Equal(t, "did it", got.Result)
		assert.Nil(t, got.NextRun)
		require.NotNil(t, got.LastRun)
		assert.True(t, got.LastRun.Equal(now))
	})

	t.Run("recurring job returns to pending", func(t *testing.T) {
		job := mustCreate(t, store, "recurring", "remind", schedule.KindRecurring, "0 9 * * *", now)
		require.NoError(t, store.MarkRunning(ctx, job.ID, now))

		next := now.Add(24 * time.Hour)
		require.NoError(t, store.MarkDone(ctx, job.ID, StatusPending, "ok", now, &next))

		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		require.NotNil(t, got.NextRun)
		assert.True(t, got.NextRun.Equal(next))
	})

	t.Run("requires running status", func(t *testing.T) {
		job := mustCreate(t, store, "still-pending", "remind", schedule.KindOnce, "", now)
		err := store.MarkDone(ctx, job.ID, StatusCompleted, "nope", now, nil)
		assert.ErrorIs(t, err, ErrNotRunning)
	})
}
