package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"agentsched-go/internal/metrics"
	"agentsched-go/internal/schedule"
)

// ErrTickInProgress is returned when a tick is requested while the previous
// one is still processing. The caller is expected to simply try again on the
// next interval.
var ErrTickInProgress = errors.New("tick already in progress")

// Dispatcher runs one whitelisted action against caller params. Faults never
// propagate: Execute reports them as success=false with the fault message as
// the result.
type Dispatcher interface {
	// Validate checks that the action kind is known and the params match
	// the action's expected shape.
	Validate(action string, params json.RawMessage) error

	// Execute runs the action, bounded and fault-isolated.
	Execute(ctx context.Context, action string, params json.RawMessage) (bool, string)
}

// TickResult describes one job execution within a tick.
type TickResult struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// Runner sweeps due jobs and executes them through the dispatcher. It assumes
// a single runner process; ticks never overlap, and within a tick jobs run
// sequentially in ascending next_run order.
type Runner struct {
	jobs       JobStore
	history    HistoryStore
	dispatcher Dispatcher
	logger     *log.Logger
	retention  time.Duration

	tickMu sync.Mutex
	locks  jobLocks
	now    func() time.Time
}

// NewRunner creates a Runner. A retention of zero disables history pruning.
func NewRunner(jobs JobStore, history HistoryStore, dispatcher Dispatcher, logger *log.Logger, retention time.Duration) *Runner {
	return &Runner{
		jobs:       jobs,
		history:    history,
		dispatcher: dispatcher,
		logger:     logger,
		retention:  retention,
		now:        time.Now,
	}
}

// Tick snapshots the due jobs and executes each one sequentially. A store
// failure on one job is logged and the tick continues with the rest. If a
// previous tick is still running, Tick returns ErrTickInProgress without
// touching any job.
func (r *Runner) Tick(ctx context.Context) ([]TickResult, error) {
	if !r.tickMu.TryLock() {
		return nil, ErrTickInProgress
	}
	defer r.tickMu.Unlock()

	metrics.TicksTotal.Inc()

	now := r.now()
	due, err := r.jobs.Due(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	metrics.DueJobs.Set(float64(len(due)))

	results := make([]TickResult, 0, len(due))
	for _, job := range due {
		res, err := r.runOne(ctx, job)
		if err != nil {
			r.logger.Printf("tick: job %s (%q): %v", job.ID, job.Name, err)
			continue
		}
		results = append(results, res)
	}

	r.pruneHistory(ctx)
	return results, nil
}

// RunNow executes a single pending job immediately, outside the periodic
// sweep. It goes through the same per-job critical section as the tick, so a
// manual run can never double-execute a job the sweep has already claimed.
func (r *Runner) RunNow(ctx context.Context, id string) (TickResult, error) {
	job, err := r.jobs.Get(ctx, id)
	if err != nil {
		return TickResult{}, err
	}
	return r.runOne(ctx, job)
}

// runOne drives one job through markRunning -> execute -> markDone and
// appends the history record. The keyed mutex plus the status precondition
// on MarkRunning make the sequence mutually exclusive per job id.
func (r *Runner) runOne(ctx context.Context, job *Job) (TickResult, error) {
	unlock := r.locks.lock(job.ID)
	defer unlock()

	startedAt := r.now()
	if err := r.jobs.MarkRunning(ctx, job.ID, startedAt); err != nil {
		return TickResult{}, err
	}

	wallStart := time.Now()
	success, output := r.dispatcher.Execute(ctx, job.Action, job.Params)
	elapsed := time.Since(wallStart)

	runStatus := StatusCompleted
	if !success {
		runStatus = StatusFailed
	}

	if job.ScheduleKind == schedule.KindRecurring {
		// Recurring jobs return to pending on their next natural
		// occurrence whether or not this run succeeded.
		next, err := schedule.NextCron(job.CronSpec, r.now())
		if err != nil {
			// The spec was validated at creation, so this is a corrupt
			// row; park it as failed rather than looping on it.
			r.logger.Printf("job %s: unusable cron spec %q: %v", job.ID, job.CronSpec, err)
			success = false
			runStatus = StatusFailed
			output = fmt.Sprintf("unusable cron spec: %v", err)
			if err := r.jobs.MarkDone(ctx, job.ID, StatusFailed, output, startedAt, nil); err != nil {
				r.logger.Printf("job %s: mark done: %v", job.ID, err)
			}
		} else if err := r.jobs.MarkDone(ctx, job.ID, StatusPending, output, startedAt, &next); err != nil {
			r.logger.Printf("job %s: mark done: %v", job.ID, err)
		}
	} else {
		if err := r.jobs.MarkDone(ctx, job.ID, runStatus, output, startedAt, nil); err != nil {
			r.logger.Printf("job %s: mark done: %v", job.ID, err)
		}
	}

	rec := &HistoryRecord{
		JobID:    job.ID,
		RunAt:    startedAt,
		Status:   runStatus,
		Result:   output,
		Duration: elapsed,
	}
	if err := r.history.Append(ctx, rec); err != nil {
		r.logger.Printf("job %s: append history: %v", job.ID, err)
	}

	if success {
		metrics.JobsCompleted.WithLabelValues(job.Action).Inc()
	} else {
		metrics.JobsFailed.WithLabelValues(job.Action).Inc()
	}
	metrics.JobDuration.WithLabelValues(job.Action).Observe(elapsed.Seconds())

	return TickResult{JobID: job.ID, Success: success, Result: output}, nil
}

func (r *Runner) pruneHistory(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	pruned, err := r.history.Prune(ctx, r.retention)
	if err != nil {
		r.logger.Printf("prune history: %v", err)
		return
	}
	if pruned > 0 {
		r.logger.Printf("pruned %d history records older than %s", pruned, r.retention)
	}
}

// jobLocks is a mutex per job id. Entries are never removed: jobs are never
// deleted, so the map is bounded by the number of jobs ever created.
type jobLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *jobLocks) lock(id string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	jm, ok := l.m[id]
	if !ok {
		jm = &sync.Mutex{}
		l.m[id] = jm
	}
	l.mu.Unlock()

	jm.Lock()
	return jm.Unlock
}
