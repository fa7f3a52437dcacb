package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cthulhu/internal/domain"
	"cthulhu/internal/scheduler"
	"cthulhu/internal/store"
	"cthulhu/internal/validate"
)

type taskListResp struct {
	Tasks     []domain.Task `json:"tasks"`
	Total     int           `json:"total"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
	PageCount int           `json:"page_count"`
	Filters   store.Filters `json:"filters"`
	Loading   bool          `json:"loading"`
	Error     string        `json:"error,omitempty"`
}

func taskList(snap store.Snapshot) taskListResp {
	return taskListResp{
		Tasks:     store.PagedTasks(snap),
		Total:     store.TaskTotal(snap),
		Page:      snap.TaskPage,
		PageSize:  snap.TaskPageSize,
		PageCount: store.TaskPageCount(snap),
		Filters:   snap.Filters,
		Loading:   snap.TasksLoading,
		Error:     snap.Error,
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	if !s.store.Snapshot().TasksLoaded {
		s.store.LoadTasks(r.Context(), false)
	}
	writeJSON(w, http.StatusOK, taskList(s.store.Snapshot()))
}

func (s *Server) reloadTasks(w http.ResponseWriter, r *http.Request) {
	s.store.LoadTasks(r.Context(), true)
	writeJSON(w, http.StatusOK, taskList(s.store.Snapshot()))
}

// filterReq takes dates as RFC3339 strings so that blank fields are accepted.
type filterReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedFrom string `json:"created_from"`
	CreatedTo   string `json:"created_to"`
	UpdatedFrom string `json:"updated_from"`
	UpdatedTo   string `json:"updated_to"`
}

func (f filterReq) filters() (store.Filters, error) {
	out := store.Filters{Name: f.Name, Description: f.Description, Status: store.StatusFilter(f.Status)}
	dates := []struct {
		field string
		raw   string
		dst   *time.Time
	}{
		{"created_from", f.CreatedFrom, &out.CreatedFrom},
		{"created_to", f.CreatedTo, &out.CreatedTo},
		{"updated_from", f.UpdatedFrom, &out.UpdatedFrom},
		{"updated_to", f.UpdatedTo, &out.UpdatedTo},
	}
	verr := &validate.Error{}
	for _, d := range dates {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(d.raw))
		if err != nil {
			verr.Problems = append(verr.Problems, validate.Problem{Field: d.field, Message: "must be an RFC3339 timestamp"})
			continue
		}
		*d.dst = t
	}
	if len(verr.Problems) > 0 {
		return store.Filters{}, verr
	}
	return out, nil
}

func (s *Server) applyFilters(w http.ResponseWriter, r *http.Request) {
	var req filterReq
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	f, err := req.filters()
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	s.store.ApplyFilters(r.Context(), f)
	writeJSON(w, http.StatusOK, taskList(s.store.Snapshot()))
}

func (s *Server) resetFilters(w http.ResponseWriter, r *http.Request) {
	s.store.ResetFilters(r.Context())
	writeJSON(w, http.StatusOK, taskList(s.store.Snapshot()))
}

type pageReq struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (s *Server) setTaskPage(w http.ResponseWriter, r *http.Request) {
	var req pageReq
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.PageSize > 0 && req.PageSize != s.store.Snapshot().TaskPageSize {
		s.store.SetTaskPageSize(r.Context(), req.PageSize)
	} else {
		s.store.SetTaskPage(r.Context(), req.Page)
	}
	writeJSON(w, http.StatusOK, taskList(s.store.Snapshot()))
}

func (s *Server) searchTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.store.SetTaskSearch(r.Context(), req.Name)
	writeJSON(w, http.StatusAccepted, map[string]string{"name": req.Name})
}

func (s *Server) previewCron(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CronExpr string `json:"cron_expr"`
		Timezone string `json:"timezone"`
		Count    int    `json:"count"`
	}
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Count <= 0 {
		req.Count = 5
	}
	times, err := scheduler.NextRunTimes(req.CronExpr, req.Timezone, time.Now(), req.Count)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cron_expr": req.CronExpr, "next": times})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	t, err := s.cron.GetTask(r.Context(), id)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var t domain.Task
	if err := decode(r, &t); err != nil {
		writeBadRequest(w, err)
		return
	}
	t = validate.ApplyDefaults(t)
	if err := validate.TaskPayload(t); err != nil {
		writeBadRequest(w, err)
		return
	}
	created, err := s.cron.CreateTask(r.Context(), t)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	s.store.LoadTasks(r.Context(), true)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var t domain.Task
	if err := decode(r, &t); err != nil {
		writeBadRequest(w, err)
		return
	}
	t.ID = id
	t = validate.ApplyDefaults(t)
	if err := validate.TaskPayload(t); err != nil {
		writeBadRequest(w, err)
		return
	}
	updated, err := s.cron.UpdateTask(r.Context(), id, t)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	s.store.LoadTasks(r.Context(), true)
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

// taskIntent runs a pass-through store call and reloads the list so the response shows
// the backend's view.
func (s *Server) taskIntent(w http.ResponseWriter, r *http.Request, key string, fn func(ctx context.Context, id int64) (any, error)) {
	id, err := idParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	out, err := fn(r.Context(), id)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	s.store.LoadTasks(r.Context(), true)
	writeJSON(w, http.StatusOK, map[string]any{key: out})
}

func (s *Server) enableTask(w http.ResponseWriter, r *http.Request) {
	s.taskIntent(w, r, "updated", func(ctx context.Context, id int64) (any, error) { return s.store.Enable(ctx, id) })
}

func (s *Server) disableTask(w http.ResponseWriter, r *http.Request) {
	s.taskIntent(w, r, "updated", func(ctx context.Context, id int64) (any, error) { return s.store.Disable(ctx, id) })
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	s.taskIntent(w, r, "deleted", func(ctx context.Context, id int64) (any, error) { return s.store.Delete(ctx, id) })
}

func (s *Server) triggerTask(w http.ResponseWriter, r *http.Request) {
	s.taskIntent(w, r, "run_id", func(ctx context.Context, id int64) (any, error) {
		run, err := s.store.Trigger(ctx, id)
		if err != nil {
			return nil, err
		}
		s.store.LoadRuns(ctx, id, true)
		return run.RunID, nil
	})
}

type runListResp struct {
	TaskID   int64     `json:"task_id"`
	Runs     []runView `json:"runs"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Loading  bool      `json:"loading"`
	Error    string    `json:"error,omitempty"`
}

type runView struct {
	domain.TaskRun
	Badge     domain.Badge `json:"badge"`
	CanCancel bool         `json:"can_cancel"`
}

func newRunView(run domain.TaskRun) runView {
	return runView{TaskRun: run, Badge: run.Status.Badge(), CanCancel: run.CanCancel()}
}

func runList(snap store.Snapshot, taskID int64) runListResp {
	paged := store.PagedRuns(snap, taskID)
	views := make([]runView, len(paged))
	for i, run := range paged {
		views[i] = newRunView(run)
	}
	p := store.RunPager(snap, taskID)
	return runListResp{
		TaskID:   taskID,
		Runs:     views,
		Total:    len(store.RunsFor(snap, taskID)),
		Page:     p.Page,
		PageSize: p.Size,
		Loading:  store.LoadingRunsFor(snap, taskID),
		Error:    snap.Error,
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	s.store.LoadRuns(r.Context(), id, queryBool(r, "force"))
	writeJSON(w, http.StatusOK, runList(s.store.Snapshot(), id))
}

func (s *Server) setRunPage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req pageReq
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.PageSize > 0 && req.PageSize != store.RunPager(s.store.Snapshot(), id).Size {
		s.store.SetRunPageSize(id, req.PageSize)
	} else {
		s.store.SetRunPage(id, req.Page)
	}
	writeJSON(w, http.StatusOK, runList(s.store.Snapshot(), id))
}

func (s *Server) taskStats(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	stats, err := s.cron.TaskRunStats(r.Context(), id)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func statusList(raw string) ([]domain.RunStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []domain.RunStatus
	for _, part := range strings.Split(raw, ",") {
		st := domain.RunStatus(strings.ToUpper(strings.TrimSpace(part)))
		if st == "" {
			continue
		}
		if !st.Valid() {
			return nil, fmt.Errorf("unknown run status %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}
