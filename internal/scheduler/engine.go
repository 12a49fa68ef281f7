package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"agentsched-go/internal/metrics"
	"agentsched-go/internal/schedule"

	"github.com/google/uuid"
)

// ErrValidation is returned for a bad schedule phrase, an unknown action
// kind, or malformed params. Nothing is persisted when it is returned.
var ErrValidation = errors.New("validation failed")

// ScheduleRequest is the input of the Schedule operation.
type ScheduleRequest struct {
	Name   string          `json:"name"`
	Phrase string          `json:"phrase"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// CancelRequest identifies jobs to cancel by exact id or name substring.
type CancelRequest struct {
	JobID string `json:"job_id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Engine exposes the transport-agnostic operations of the scheduling system:
// Schedule, Cancel, Query (Get/Find/List/History/Recent), Tick and RunNow.
type Engine struct {
	jobs       JobStore
	history    HistoryStore
	dispatcher Dispatcher
	runner     *Runner
	logger     *log.Logger
	now        func() time.Time
}

// NewEngine creates an Engine around the given stores, dispatcher and runner.
func NewEngine(jobs JobStore, history HistoryStore, dispatcher Dispatcher, runner *Runner, logger *log.Logger) *Engine {
	return &Engine{
		jobs:       jobs,
		history:    history,
		dispatcher: dispatcher,
		runner:     runner,
		logger:     logger,
		now:        time.Now,
	}
}

// Schedule validates the request and persists a new pending job. The action
// kind and params are checked against the dispatcher's whitelist before the
// phrase is parsed; on any validation failure no row is written.
func (e *Engine) Schedule(ctx context.Context, req ScheduleRequest) (*Job, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := e.dispatcher.Validate(req.Action, req.Params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	sched, err := schedule.Parse(req.Phrase, e.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	nextRun := sched.NextRun
	job := &Job{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Action:       req.Action,
		Params:       req.Params,
		ScheduleKind: sched.Kind,
		CronSpec:     sched.CronSpec,
		Status:       StatusPending,
		NextRun:      &nextRun,
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	metrics.JobsScheduled.WithLabelValues(req.Action).Inc()
	e.logger.Printf("scheduled job %s (%q): %s, next run %s",
		job.ID, job.Name, job.ScheduleKind, nextRun.Format(time.RFC3339))
	return job, nil
}

// Cancel marks matching pending jobs cancelled and returns the count
// affected. Jobs that are running or already terminal are left alone.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (int64, error) {
	switch {
	case req.JobID != "":
		return e.jobs.Cancel(ctx, req.JobID)
	case req.Name != "":
		return e.jobs.CancelByName(ctx, req.Name)
	default:
		return 0, fmt.Errorf("%w: job_id or name is required", ErrValidation)
	}
}

// Get retrieves a job by exact id.
func (e *Engine) Get(ctx context.Context, id string) (*Job, error) {
	return e.jobs.Get(ctx, id)
}

// Find returns the most recently created job whose name contains text.
func (e *Engine) Find(ctx context.Context, text string) (*Job, error) {
	return e.jobs.GetByName(ctx, text)
}

// List returns jobs, optionally filtered by status.
func (e *Engine) List(ctx context.Context, status JobStatus) ([]*Job, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return e.jobs.List(ctx, status)
}

// History returns the most recent limit run records for one job.
func (e *Engine) History(ctx context.Context, jobID string, limit int) ([]*HistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.history.ForJob(ctx, jobID, limit)
}

// Recent returns the most recent limit run records across all jobs.
func (e *Engine) Recent(ctx context.Context, limit int) ([]*HistoryRecordWithJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.history.Recent(ctx, limit)
}

// Tick runs one sweep of due jobs.
func (e *Engine) Tick(ctx context.Context) ([]TickResult, error) {
	return e.runner.Tick(ctx)
}

// RunNow executes a single pending job immediately.
func (e *Engine) RunNow(ctx context.Context, id string) (TickResult, error) {
	return e.runner.RunNow(ctx, id)
}
