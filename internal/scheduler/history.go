package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is one run attempt of a job. The log is append-only: every
// execution, success or failure, produces exactly one record.
type HistoryRecord struct {
	ID       string        `json:"id"`
	JobID    string        `json:"job_id"`
	RunAt    time.Time     `json:"run_at"`
	Status   JobStatus     `json:"status"` // completed or failed
	Result   string        `json:"result,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HistoryRecordWithJob annotates a record with its job's name for display.
type HistoryRecordWithJob struct {
	HistoryRecord
	JobName string `json:"job_name"`
}

// HistoryStore defines the interface for run-history persistence.
type HistoryStore interface {
	// Append records one run attempt.
	Append(ctx context.Context, rec *HistoryRecord) error

	// ForJob returns the most recent limit records for a job, newest first.
	ForJob(ctx context.Context, jobID string, limit int) ([]*HistoryRecord, error)

	// Recent returns the most recent limit records across all jobs, newest
	// first, each annotated with its job's name.
	Recent(ctx context.Context, limit int) ([]*HistoryRecordWithJob, error)

	// Prune deletes records older than the retention period and reports how
	// many were removed.
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// SQLiteHistoryStore implements HistoryStore backed by SQLite.
type SQLiteHistoryStore struct {
	db *sql.DB
}

// NewSQLiteHistoryStore creates a new SQLite-backed history store.
func NewSQLiteHistoryStore(db *sql.DB) *SQLiteHistoryStore {
	return &SQLiteHistoryStore{db: db}
}

// Append implements HistoryStore
func (s *SQLiteHistoryStore) Append(ctx context.Context, rec *HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_history (id, job_id, run_at, status, result, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobID, rec.RunAt.UTC(), rec.Status, rec.Result,
		rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ForJob implements HistoryStore
func (s *SQLiteHistoryStore) ForJob(ctx context.Context, jobID string, limit int) ([]*HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, run_at, status, result, duration_ms
		 FROM job_history WHERE job_id = ?
		 ORDER BY run_at DESC, id LIMIT ?`,
		jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []*HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Recent implements HistoryStore
func (s *SQLiteHistoryStore) Recent(ctx context.Context, limit int) ([]*HistoryRecordWithJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.job_id, h.run_at, h.status, h.result, h.duration_ms, j.name
		 FROM job_history h
		 JOIN jobs j ON j.id = h.job_id
		 ORDER BY h.run_at DESC, h.id LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query recent history: %w", err)
	}
	defer rows.Close()

	var records []*HistoryRecordWithJob
	for rows.Next() {
		var rec HistoryRecordWithJob
		var result sql.NullString
		var durationMs int64
		err := rows.Scan(&rec.ID, &rec.JobID, &rec.RunAt, &rec.Status,
			&result, &durationMs, &rec.JobName)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Result = result.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Prune implements HistoryStore
func (s *SQLiteHistoryStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention period must be positive")
	}
	cutoff := time.Now().Add(-retention).UTC()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM job_history WHERE run_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return result.RowsAffected()
}

func scanHistory(rows *sql.Rows) (*HistoryRecord, error) {
	var rec HistoryRecord
	var result sql.NullString
	var durationMs int64
	err := rows.Scan(&rec.ID, &rec.JobID, &rec.RunAt, &rec.Status, &result, &durationMs)
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	rec.Result = result.String
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return &rec, nil
}
