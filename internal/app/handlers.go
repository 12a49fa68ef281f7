package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"agentsched-go/internal/scheduler"
	"agentsched-go/internal/storage"
)

// writeJSON renders v as the response body with the given status.
func (a *Application) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Logger.Printf("writing response: %v", err)
	}
}

// writeError maps engine errors onto HTTP statuses.
func (a *Application) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrValidation), errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrNotPending), errors.Is(err, scheduler.ErrTickInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		a.Logger.Printf("request failed: %v", err)
	}
	a.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleSchedule registers a new job from {name, phrase, action, params}.
func (a *Application) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduler.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := a.Engine.Schedule(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, map[string]any{
		"job_id":        job.ID,
		"schedule_kind": job.ScheduleKind,
		"next_run":      job.NextRun.Format(time.RFC3339),
	})
}

// handleCancel cancels pending jobs by id or name substring and reports the
// count affected.
func (a *Application) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req scheduler.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	n, err := a.Engine.Cancel(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]int64{"cancelled_count": n})
}

// handleRunNow executes one pending job immediately.
func (a *Application) handleRunNow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := a.Engine.RunNow(r.Context(), req.JobID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, res)
}

// handleListJobs lists jobs, optionally filtered by ?status= or matched by
// ?name= (most recent name-substring match).
func (a *Application) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		job, err := a.Engine.Find(r.Context(), name)
		if err != nil {
			a.writeError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, []*scheduler.Job{job})
		return
	}

	status := scheduler.JobStatus(r.URL.Query().Get("status"))
	jobs, err := a.Engine.List(r.Context(), status)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*scheduler.Job{}
	}

	a.writeJSON(w, http.StatusOK, jobs)
}

// handleGetJob returns one job by exact id.
func (a *Application) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, job)
}

// handleHistory returns recent run records: for one job with ?job_id=, or
// across all jobs (annotated with job names) without it.
func (a *Application) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	if jobID := r.URL.Query().Get("job_id"); jobID != "" {
		records, err := a.Engine.History(r.Context(), jobID, limit)
		if err != nil {
			a.writeError(w, err)
			return
		}
		if records == nil {
			records = []*scheduler.HistoryRecord{}
		}
		a.writeJSON(w, http.StatusOK, records)
		return
	}

	records, err := a.Engine.Recent(r.Context(), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if records == nil {
		records = []*scheduler.HistoryRecordWithJob{}
	}
	a.writeJSON(w, http.StatusOK, records)
}

// handleHealth reports liveness, including database reachability.
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.DB.PingContext(r.Context()); err != nil {
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
