package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"agentsched-go/internal/config"
	"agentsched-go/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{DBPath: filepath.Join(dir, "test.db")}
	cfg.Scheduler.TickInterval = config.Duration{Duration: time.Minute}
	cfg.Actions.CommandTimeout = config.Duration{Duration: 5 * time.Second}
	cfg.Actions.NotesDir = filepath.Join(dir, "notes")
	cfg.Actions.MemoryPath = filepath.Join(dir, "memory.md")

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.DB.Close() })
	return a
}

func doJSON(t *testing.T, a *Application, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	a.HTTPServer.Handler.ServeHTTP(rr, req)
	return rr
}

func scheduleReminder(t *testing.T, a *Application, name, phrase string) string {
	t.Helper()
	rr := doJSON(t, a, http.MethodPost, "/api/schedule", map[string]any{
		"name":   name,
		"phrase": phrase,
		"action": "remind",
		"params": map[string]string{"message": "ping"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	return resp.JobID
}

func TestHandlers_Schedule(t *testing.T) {
	a := newTestApp(t)

	rr := doJSON(t, a, http.MethodPost, "/api/schedule", map[string]any{
		"name":   "stretch",
		"phrase": "in 5 minutes",
		"action": "remind",
		"params": map[string]string{"message": "stretch"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["job_id"])
	assert.Equal(t, "once", resp["schedule_kind"])
	assert.NotEmpty(t, resp["next_run"])
}

func TestHandlers_ScheduleRejectsBadRequests(t *testing.T) {
	a := newTestApp(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad phrase", map[string]any{
			"name": "x", "phrase": "someday", "action": "remind",
			"params": map[string]string{"message": "hi"},
		}},
		{"unknown action", map[string]any{
			"name": "x", "phrase": "in 5 minutes", "action": "launch_missiles",
		}},
		{"missing name", map[string]any{
			"phrase": "in 5 minutes", "action": "remind",
			"params": map[string]string{"message": "hi"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, a, http.MethodPost, "/api/schedule", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	rr := doJSON(t, a, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestHandlers_GetJob(t *testing.T) {
	a := newTestApp(t)
	id := scheduleReminder(t, a, "lookup", "in 1 hour")

	rr := doJSON(t, a, http.MethodGet, "/api/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var job scheduler.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.Equal(t, id, job.ID)
	assert.Equal(t, scheduler.StatusPending, job.Status)

	rr = doJSON(t, a, http.MethodGet, "/api/jobs/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlers_ListJobs(t *testing.T) {
	a := newTestApp(t)
	scheduleReminder(t, a, "first", "in 1 hour")
	scheduleReminder(t, a, "second", "in 2 hours")

	rr := doJSON(t, a, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var jobs []scheduler.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 2)

	rr = doJSON(t, a, http.MethodGet, "/api/jobs?status=completed", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = doJSON(t, a, http.MethodGet, "/api/jobs?status=paused", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, a, http.MethodGet, "/api/jobs?name=sec", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "second", jobs[0].Name)
}

func TestHandlers_Cancel(t *testing.T) {
	a := newTestApp(t)
	id := scheduleReminder(t, a, "doomed", "in 1 hour")

	rr := doJSON(t, a, http.MethodPost, "/api/cancel", map[string]string{"job_id": id})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"cancelled_count": 1}`, rr.Body.String())

	// Already cancelled: nothing left to match.
	rr = doJSON(t, a, http.MethodPost, "/api/cancel", map[string]string{"job_id": id})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"cancelled_count": 0}`, rr.Body.String())

	// Neither selector given.
	rr = doJSON(t, a, http.MethodPost, "/api/cancel", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlers_RunNowAndHistory(t *testing.T) {
	a := newTestApp(t)
	id := scheduleReminder(t, a, "manual", "in 1 hour")

	rr := doJSON(t, a, http.MethodPost, "/api/run", map[string]string{"job_id": id})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res scheduler.TickResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, id, res.JobID)

	// A completed job cannot be run again.
	rr = doJSON(t, a, http.MethodPost, "/api/run", map[string]string{"job_id": id})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, a, http.MethodGet, "/api/history?job_id="+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var records []scheduler.HistoryRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, scheduler.StatusCompleted, records[0].Status)

	rr = doJSON(t, a, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var recent []scheduler.HistoryRecordWithJob
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, "manual", recent[0].JobName)
}

func TestHandlers_Health(t *testing.T) {
	a := newTestApp(t)

	rr := doJSON(t, a, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rr.Body.String())
}

func TestHandlers_MethodNotAllowed(t *testing.T) {
	a := newTestApp(t)

	rr := doJSON(t, a, http.MethodGet, "/api/schedule", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
