package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema defines the jobs and job_history tables. Jobs are never physically
// deleted; terminal rows are retained for audit. History rows reference their
// job and are only removed by retention pruning.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    action TEXT NOT NULL,
    params TEXT NOT NULL DEFAULT '{}',
    schedule_kind TEXT NOT NULL CHECK (schedule_kind IN ('once', 'recurring')),
    cron_spec TEXT,
    status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
    next_run DATETIME,
    last_run DATETIME,
    result TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_next_run ON jobs(next_run) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_jobs_name ON jobs(name);

CREATE TABLE IF NOT EXISTS job_history (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES jobs(id),
    run_at DATETIME NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('completed', 'failed')),
    result TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_job_history_job ON job_history(job_id, run_at);
CREATE INDEX IF NOT EXISTS idx_job_history_run_at ON job_history(run_at);
`

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
