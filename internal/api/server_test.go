package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"cthulhu/internal/errcapture"
	"cthulhu/internal/gateway"
	"cthulhu/internal/store"
	"cthulhu/internal/worker"
)

// backend fakes the cronjob and artemis services on one router.
type backend struct {
	mu    sync.Mutex
	hits  map[string]int
	last  map[string]string
	srv   *httptest.Server
	fails map[string]int
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{hits: map[string]int{}, last: map[string]string{}, fails: map[string]int{}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			body, _ := io.ReadAll(req.Body)
			key := req.Method + " " + req.URL.Path
			b.mu.Lock()
			b.hits[key]++
			b.last[key] = string(body)
			code := b.fails[key]
			b.mu.Unlock()
			if code != 0 {
				w.WriteHeader(code)
				_, _ = io.WriteString(w, `{"message":"backend exploded"}`)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/tasks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{
			"items": []map[string]any{{"id": 1, "name": "nightly-report", "status": "ENABLED"}},
			"total": 1, "limit": 10, "offset": 0,
		})
	})
	r.Post("/tasks", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"id": 2, "name": "created"})
	})
	r.Post("/tasks/{id}/trigger", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"run_id": 12})
	})
	runStatus := "RUNNING"
	r.Get("/tasks/{id}/runs", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		status := runStatus
		b.mu.Unlock()
		writeJSON(w, 200, []map[string]any{
			{"id": 11, "task_id": 1, "status": status},
			{"id": 10, "task_id": 1, "status": "SUCCESS"},
		})
	})
	r.Post("/runs/{id}/cancel", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		runStatus = "CANCELED"
		b.mu.Unlock()
		writeJSON(w, 200, map[string]any{"canceled": true})
	})
	r.Post("/runs/cleanup", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"deleted": 3})
	})
	r.Get("/runs/progress", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"items": []map[string]any{{"run_id": 11, "current": 1, "total": 4, "percent": 25}}, "enabled": true, "count": 1})
	})
	r.Put("/runtime/task-yaml", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, map[string]any{"content": "tasks: []\n"})
	})
	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[key]
}

func (b *backend) body(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last[key]
}

func (b *backend) fail(key string, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails[key] = code
}

type harness struct {
	backend  *backend
	notifier *errcapture.Notifier
	handler  http.Handler
	progress *worker.ProgressBoard
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := newBackend(t)
	n := errcapture.NewNotifier(errcapture.Options{}, errcapture.StatusMessageMap{})
	hc := gateway.NewHTTPClient(errcapture.NewTransport(nil, n), 0)
	cron := gateway.NewCronjobClient(b.srv.URL, hc)
	board := worker.NewProgressBoard(cron)
	h := NewServer(Deps{
		Store:    store.New(cron, store.ServerPaging, store.Options{}),
		Cronjob:  cron,
		Artemis:  gateway.NewArtemisClient(b.srv.URL, hc),
		Notifier: n,
		Progress: board,
	})
	return &harness{backend: b, notifier: n, handler: h, progress: board}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v))
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cthulhu_up 1")
	require.Contains(t, rec.Body.String(), "cthulhu_captured_errors 0")
}

func TestListTasks(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/console/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp taskListResp
	decodeBody(t, rec, &resp)
	require.Equal(t, 1, resp.Total)
	require.Equal(t, 1, resp.Page)
	require.Equal(t, "nightly-report", resp.Tasks[0].Name)

	h.do(t, http.MethodGet, "/console/tasks", "")
	require.Equal(t, 1, h.backend.count("GET /tasks"))

	h.do(t, http.MethodPost, "/console/tasks/reload", "")
	require.Equal(t, 2, h.backend.count("GET /tasks"))
}

func TestApplyFiltersRejectsBadDates(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/console/tasks/filters", `{"name":"x","created_from":"yesterday"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResp
	decodeBody(t, rec, &resp)
	require.Equal(t, "created_from", resp.Problems[0].Field)
	require.Zero(t, h.backend.count("GET /tasks"))

	rec = h.do(t, http.MethodPost, "/console/tasks/filters", `{"name":"nightly","status":"ENABLED","created_from":"2026-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var list taskListResp
	decodeBody(t, rec, &list)
	require.Equal(t, "nightly", list.Filters.Name)
	require.Equal(t, 1, h.backend.count("GET /tasks"))
}

func TestCreateTaskValidatesLocally(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/console/tasks", `{"name":"","cron_expr":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, h.backend.count("POST /tasks"))
	require.Empty(t, h.notifier.Snapshot())

	rec = h.do(t, http.MethodPost, "/console/tasks", `{"name":"created","cron_expr":"*/5 * * * *","target_url":"https://svc.internal/hook"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, h.backend.count("POST /tasks"))

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(h.backend.body("POST /tasks")), &sent))
	require.Equal(t, "UTC", sent["timezone"])
	require.Equal(t, "SYNC", sent["exec_type"])
	require.Equal(t, 1, h.backend.count("GET /tasks"))
}

func TestBackendFailureIsCapturedAndReported(t *testing.T) {
	h := newHarness(t)
	h.backend.fail("GET /tasks/9", http.StatusInternalServerError)

	rec := h.do(t, http.MethodGet, "/console/tasks/9", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp errorResp
	decodeBody(t, rec, &resp)
	require.Equal(t, http.StatusInternalServerError, resp.Status)

	recs := h.notifier.Snapshot()
	require.Len(t, recs, 1)
	require.Equal(t, errcapture.SeverityError, recs[0].Severity)
	require.Equal(t, "backend exploded", recs[0].RawMessage)

	rec = h.do(t, http.MethodGet, "/console/errors", "")
	var listed []errcapture.ErrorRecord
	decodeBody(t, rec, &listed)
	require.Len(t, listed, 1)

	rec = h.do(t, http.MethodDelete, "/console/errors/"+listed[0].ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, h.notifier.Snapshot())
}

func TestTaskLoadFailureKeepsList(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/console/tasks", "")
	h.backend.fail("GET /tasks", http.StatusServiceUnavailable)

	rec := h.do(t, http.MethodPost, "/console/tasks/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp taskListResp
	decodeBody(t, rec, &resp)
	require.Equal(t, store.ErrLoadTasks, resp.Error)
	require.Len(t, resp.Tasks, 1)
	require.Len(t, h.notifier.Snapshot(), 1)
}

func TestRunsAreCachedPerTask(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/console/tasks/1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp runListResp
	decodeBody(t, rec, &resp)
	require.Equal(t, 2, resp.Total)
	require.True(t, resp.Runs[0].CanCancel)
	require.Equal(t, "processing", resp.Runs[0].Badge.Status)
	require.False(t, resp.Runs[1].CanCancel)

	h.do(t, http.MethodGet, "/console/tasks/1/runs", "")
	require.Equal(t, 1, h.backend.count("GET /tasks/1/runs"))
	h.do(t, http.MethodGet, "/console/tasks/1/runs?force=true", "")
	require.Equal(t, 2, h.backend.count("GET /tasks/1/runs"))

	rec = h.do(t, http.MethodPost, "/console/tasks/1/runs/page", `{"page":1,"page_size":1}`)
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Runs, 1)
	require.Equal(t, 1, resp.PageSize)
	require.Equal(t, 2, h.backend.count("GET /tasks/1/runs"))
}

func TestTriggerReloadsRuns(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/console/tasks/1/trigger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"run_id":12}`, rec.Body.String())
	require.Equal(t, 1, h.backend.count("GET /tasks/1/runs"))
	require.Equal(t, 1, h.backend.count("GET /tasks"))
}

func TestCancelRunRefreshesCachedRuns(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/console/tasks/1/runs", "")
	require.Equal(t, 1, h.backend.count("GET /tasks/1/runs"))

	rec := h.do(t, http.MethodPost, "/console/runs/11/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"canceled":true}`, rec.Body.String())
	require.Equal(t, 2, h.backend.count("GET /tasks/1/runs"))

	rec = h.do(t, http.MethodGet, "/console/tasks/1/runs", "")
	var resp runListResp
	decodeBody(t, rec, &resp)
	require.Equal(t, "CANCELED", string(resp.Runs[0].Status))
	require.False(t, resp.Runs[0].CanCancel)
	require.Equal(t, 2, h.backend.count("GET /tasks/1/runs"))
}

func TestCleanup(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/console/maintenance/cleanup", `{"mode":"everything"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/console/maintenance/cleanup", `{"mode":"age","max_age_seconds":86400}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"deleted":3}`, rec.Body.String())
	require.JSONEq(t, `{"mode":"age","max_age_seconds":86400}`, h.backend.body("POST /runs/cleanup"))
}

func TestProgressServesBoard(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/console/runs/progress", "")
	require.JSONEq(t, `{"items":null,"enabled":false,"count":0}`, rec.Body.String())
	require.Zero(t, h.backend.count("GET /runs/progress"))

	require.NoError(t, h.progress.Refresh(context.Background()))
	rec = h.do(t, http.MethodGet, "/console/runs/progress", "")
	var list gateway.ProgressList
	decodeBody(t, rec, &list)
	require.Equal(t, 25, list.Items[0].Percent)
}

func TestTaskYAMLIsValidatedBeforeSaving(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPut, "/console/artemis/yaml", `{"content":"- not\n- a mapping\n"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, h.backend.count("PUT /runtime/task-yaml"))

	rec = h.do(t, http.MethodPut, "/console/artemis/yaml", `{"content":"tasks: []\n"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, h.backend.count("PUT /runtime/task-yaml"))
}

func TestCronPreview(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/console/tasks/preview", `{"cron_expr":"0 * * * *","count":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Next []string `json:"next"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Next, 3)

	rec = h.do(t, http.MethodPost, "/console/tasks/preview", `{"cron_expr":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorHistoryWithoutArchive(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/console/errors/history", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDashboardRendersTasks(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "nightly-report")
}
