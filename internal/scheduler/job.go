package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentsched-go/internal/schedule"
	"agentsched-go/internal/storage"

	"github.com/google/uuid"
)

var (
	// ErrNotPending is returned when a state transition requires a pending
	// job and the row is in any other status.
	ErrNotPending = errors.New("job is not pending")

	// ErrNotRunning is returned when completing a job that is not running.
	ErrNotRunning = errors.New("job is not running")
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job represents a scheduled unit of deferred or recurring work.
// NextRun is non-nil exactly while the job is pending; CronSpec is set
// only for recurring jobs. Jobs are never physically deleted.
type Job struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Action       string          `json:"action"`
	Params       json.RawMessage `json:"params"`
	ScheduleKind schedule.Kind   `json:"schedule_kind"`
	CronSpec     string          `json:"cron_spec,omitempty"`
	Status       JobStatus       `json:"status"`
	NextRun      *time.Time      `json:"next_run,omitempty"`
	LastRun      *time.Time      `json:"last_run,omitempty"`
	Result       string          `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// JobStore defines the interface for job persistence operations
type JobStore interface {
	// Create inserts a new job.
	Create(ctx context.Context, job *Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*Job, error)

	// GetByName returns the most recently created job whose name contains
	// the given text (case-insensitive substring, not a fuzzy match).
	GetByName(ctx context.Context, text string) (*Job, error)

	// List returns jobs, optionally filtered by status. Pending and running
	// jobs come first in ascending next_run order; terminal jobs follow,
	// newest first.
	List(ctx context.Context, status JobStatus) ([]*Job, error)

	// Due returns all pending jobs with next_run <= now, earliest first.
	Due(ctx context.Context, now time.Time) ([]*Job, error)

	// Cancel marks a pending job cancelled and reports how many rows
	// changed (0 if the job is missing or not pending).
	Cancel(ctx context.Context, id string) (int64, error)

	// CancelByName cancels every pending job whose name contains text.
	CancelByName(ctx context.Context, text string) (int64, error)

	// MarkRunning transitions a pending job to running in one atomic
	// update. Fails with ErrNotPending if the job is in any other state.
	MarkRunning(ctx context.Context, id string, now time.Time) error

	// MarkDone transitions a running job to its post-execution state in one
	// atomic update: terminal for once jobs, back to pending with a fresh
	// next_run for recurring ones.
	MarkDone(ctx context.Context, id string, status JobStatus, result string, lastRun time.Time, nextRun *time.Time) error
}

// SQLiteJobStore implements JobStore backed by SQLite.
type SQLiteJobStore struct {
	db *sql.DB
}

// NewSQLiteJobStore creates a new SQLite-backed job store.
func NewSQLiteJobStore(db *sql.DB) *SQLiteJobStore {
	return &SQLiteJobStore{db: db}
}

// Create implements JobStore
func (s *SQLiteJobStore) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if len(job.Params) == 0 {
		job.Params = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	query := `
	INSERT INTO jobs (
		id, name, action, params, schedule_kind, cron_spec,
		status, next_run, last_run, result, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.Name, job.Action, string(job.Params), job.ScheduleKind,
		nullString(job.CronSpec), job.Status, nullTime(job.NextRun),
		nullTime(job.LastRun), nullString(job.Result), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, name, action, params, schedule_kind, cron_spec,
	status, next_run, last_run, result, created_at, updated_at`

// Get implements JobStore
func (s *SQLiteJobStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", storage.ErrNotFound, id)
		}
		return nil, err
	}
	return job, nil
}

// GetByName implements JobStore
func (s *SQLiteJobStore) GetByName(ctx context.Context, text string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE name LIKE ? ORDER BY created_at DESC, id LIMIT 1`,
		"%"+text+"%")
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no job matching %q", storage.ErrNotFound, text)
		}
		return nil, err
	}
	return job, nil
}

// List implements JobStore
func (s *SQLiteJobStore) List(ctx context.Context, status JobStatus) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	// Deterministic ordering: live jobs first by next_run, then the rest
	// newest first, id as the final tiebreak.
	query += `
	ORDER BY
		CASE WHEN status IN ('pending', 'running') THEN 0 ELSE 1 END,
		CASE WHEN status IN ('pending', 'running') THEN next_run END ASC,
		created_at DESC,
		id`

	return s.queryJobs(ctx, query, args...)
}

// Due implements JobStore
func (s *SQLiteJobStore) Due(ctx context.Context, now time.Time) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
	WHERE status = 'pending' AND next_run IS NOT NULL AND next_run <= ?
	ORDER BY next_run ASC, id`
	return s.queryJobs(ctx, query, now.UTC())
}

// Cancel implements JobStore
func (s *SQLiteJobStore) Cancel(ctx context.Context, id string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'cancelled', next_run = NULL, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("cancel job: %w", err)
	}
	return result.RowsAffected()
}

// CancelByName implements JobStore
func (s *SQLiteJobStore) CancelByName(ctx context.Context, text string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'cancelled', next_run = NULL, updated_at = ?
		 WHERE name LIKE ? AND status = 'pending'`,
		time.Now().UTC(), "%"+text+"%")
	if err != nil {
		return 0, fmt.Errorf("cancel jobs by name: %w", err)
	}
	return result.RowsAffected()
}

// MarkRunning implements JobStore. The status precondition in the WHERE
// clause makes the transition a single atomic read-modify-write, so a
// manual run racing the periodic tick cannot double-claim a job.
func (s *SQLiteJobStore) MarkRunning(ctx context.Context, id string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		now.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %s", ErrNotPending, id)
	}
	return nil
}

// MarkDone implements JobStore
func (s *SQLiteJobStore) MarkDone(ctx context.Context, id string, status JobStatus, result string, lastRun time.Time, nextRun *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, last_run = ?, next_run = ?, updated_at = ?
		 WHERE id = ? AND status = 'running'`,
		status, result, lastRun.UTC(), nullTime(nextRun), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %s", ErrNotRunning, id)
	}
	return nil
}

func (s *SQLiteJobStore) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return jobs, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var params string
	var cronSpec, result sql.NullString
	var nextRun, lastRun sql.NullTime

	err := row.Scan(
		&job.ID, &job.Name, &job.Action, &params, &job.ScheduleKind,
		&cronSpec, &job.Status, &nextRun, &lastRun, &result,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Params = json.RawMessage(params)
	job.CronSpec = cronSpec.String
	job.Result = result.String
	if nextRun.Valid {
		t := nextRun.Time
		job.NextRun = &t
	}
	if lastRun.Valid {
		t := lastRun.Time
		job.LastRun = &t
	}
	return &job, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
