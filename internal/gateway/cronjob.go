package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cthulhu/internal/domain"
)

// TaskListQuery filters GET /tasks. Zero values are left out of the query string.
type TaskListQuery struct {
	Status      domain.TaskStatus
	Name        string
	Description string
	CreatedFrom time.Time
	CreatedTo   time.Time
	UpdatedFrom time.Time
	UpdatedTo   time.Time
	Limit       int
	Offset      int
}

func (q TaskListQuery) values() url.Values {
	v := url.Values{}
	setString(v, "status", string(q.Status))
	setString(v, "name", q.Name)
	setString(v, "description", q.Description)
	setTime(v, "created_from", q.CreatedFrom)
	setTime(v, "created_to", q.CreatedTo)
	setTime(v, "updated_from", q.UpdatedFrom)
	setTime(v, "updated_to", q.UpdatedTo)
	setInt(v, "limit", q.Limit)
	setInt(v, "offset", q.Offset)
	return v
}

// RunListQuery filters run listings. TimeField selects which timestamp From/To apply to.
type RunListQuery struct {
	Statuses  []domain.RunStatus
	From      time.Time
	To        time.Time
	TimeField string
	Limit     int
	Offset    int
}

func (q RunListQuery) values() url.Values {
	v := url.Values{}
	if len(q.Statuses) > 0 {
		parts := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			if s != "" {
				parts = append(parts, string(s))
			}
		}
		setString(v, "status", strings.Join(parts, ","))
	}
	setTime(v, "from", q.From)
	setTime(v, "to", q.To)
	setString(v, "time_field", q.TimeField)
	setInt(v, "limit", q.Limit)
	setInt(v, "offset", q.Offset)
	return v
}

type (
	TaskPage = Page[domain.Task]
	RunPage  = Page[domain.TaskRun]
)

// ProgressList is the in-flight progress board. Enabled is false when the backend has
// progress tracking switched off.
type ProgressList struct {
	Items   []domain.RunProgress `json:"items"`
	Enabled bool                 `json:"enabled"`
	Count   int                  `json:"count"`
}

// CronjobClient talks to the cronjob scheduling service.
type CronjobClient struct {
	baseClient
}

func NewCronjobClient(baseURL string, hc *http.Client) *CronjobClient {
	return &CronjobClient{baseClient: newBaseClient(baseURL, hc)}
}

func (c *CronjobClient) ListTasks(ctx context.Context, q TaskListQuery) (TaskPage, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, "/tasks", q.values(), nil)
	if err != nil {
		return TaskPage{}, fmt.Errorf("list tasks: %w", err)
	}
	page, err := decodePage[domain.Task](raw, q.Limit, q.Offset)
	if err != nil {
		return TaskPage{}, fmt.Errorf("list tasks: %w", err)
	}
	return page, nil
}

func (c *CronjobClient) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var t domain.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil, &t); err != nil {
		return domain.Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

func (c *CronjobClient) CreateTask(ctx context.Context, t domain.Task) (domain.CreatedTask, error) {
	var out domain.CreatedTask
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, t, &out); err != nil {
		return domain.CreatedTask{}, fmt.Errorf("create task: %w", err)
	}
	return out, nil
}

func (c *CronjobClient) UpdateTask(ctx context.Context, id int64, t domain.Task) (bool, error) {
	var out struct {
		Updated bool `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPut, taskPath(id), nil, t, &out); err != nil {
		return false, fmt.Errorf("update task %d: %w", id, err)
	}
	return out.Updated, nil
}

func (c *CronjobClient) DeleteTask(ctx context.Context, id int64) (bool, error) {
	var out struct {
		Deleted bool `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, taskPath(id), nil, nil, &out); err != nil {
		return false, fmt.Errorf("delete task %d: %w", id, err)
	}
	return out.Deleted, nil
}

func (c *CronjobClient) EnableTask(ctx context.Context, id int64) (bool, error) {
	return c.setEnabled(ctx, id, "enable")
}

func (c *CronjobClient) DisableTask(ctx context.Context, id int64) (bool, error) {
	return c.setEnabled(ctx, id, "disable")
}

func (c *CronjobClient) setEnabled(ctx context.Context, id int64, action string) (bool, error) {
	var out struct {
		Updated bool `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPatch, taskPath(id)+"/"+action, nil, struct{}{}, &out); err != nil {
		return false, fmt.Errorf("%s task %d: %w", action, id, err)
	}
	return out.Updated, nil
}

func (c *CronjobClient) TriggerTask(ctx context.Context, id int64) (domain.TriggeredRun, error) {
	var out domain.TriggeredRun
	if err := c.do(ctx, http.MethodPost, taskPath(id)+"/trigger", nil, struct{}{}, &out); err != nil {
		return domain.TriggeredRun{}, fmt.Errorf("trigger task %d: %w", id, err)
	}
	return out, nil
}

// ListRuns accepts both the legacy bare array and the {items,limit,offset} envelope.
func (c *CronjobClient) ListRuns(ctx context.Context, taskID int64, q RunListQuery) (RunPage, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, taskPath(taskID)+"/runs", q.values(), nil)
	if err != nil {
		return RunPage{}, fmt.Errorf("list runs of task %d: %w", taskID, err)
	}
	page, err := decodePage[domain.TaskRun](raw, q.Limit, q.Offset)
	if err != nil {
		return RunPage{}, fmt.Errorf("list runs of task %d: %w", taskID, err)
	}
	return page, nil
}

func (c *CronjobClient) TaskRunStats(ctx context.Context, taskID int64) (domain.TaskRunStats, error) {
	var out domain.TaskRunStats
	if err := c.do(ctx, http.MethodGet, taskPath(taskID)+"/runs/stats", nil, nil, &out); err != nil {
		return domain.TaskRunStats{}, fmt.Errorf("run stats of task %d: %w", taskID, err)
	}
	return out, nil
}

func (c *CronjobClient) GetRun(ctx context.Context, id int64) (domain.TaskRun, error) {
	var out domain.TaskRun
	if err := c.do(ctx, http.MethodGet, runPath(id), nil, nil, &out); err != nil {
		return domain.TaskRun{}, fmt.Errorf("get run %d: %w", id, err)
	}
	return out, nil
}

func (c *CronjobClient) CancelRun(ctx context.Context, id int64) (bool, error) {
	var out struct {
		Canceled bool `json:"canceled"`
	}
	if err := c.do(ctx, http.MethodPost, runPath(id)+"/cancel", nil, struct{}{}, &out); err != nil {
		return false, fmt.Errorf("cancel run %d: %w", id, err)
	}
	return out.Canceled, nil
}

func (c *CronjobClient) ListActiveRuns(ctx context.Context, q RunListQuery) (RunPage, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, "/runs/active", q.values(), nil)
	if err != nil {
		return RunPage{}, fmt.Errorf("list active runs: %w", err)
	}
	page, err := decodePage[domain.TaskRun](raw, q.Limit, q.Offset)
	if err != nil {
		return RunPage{}, fmt.Errorf("list active runs: %w", err)
	}
	return page, nil
}

func (c *CronjobClient) RunsSummary(ctx context.Context) (domain.RunsSummary, error) {
	var out domain.RunsSummary
	if err := c.do(ctx, http.MethodGet, "/runs/summary", nil, nil, &out); err != nil {
		return domain.RunsSummary{}, fmt.Errorf("runs summary: %w", err)
	}
	return out, nil
}

func (c *CronjobClient) ListAllRunProgress(ctx context.Context) (ProgressList, error) {
	var out ProgressList
	if err := c.do(ctx, http.MethodGet, "/runs/progress", nil, nil, &out); err != nil {
		return ProgressList{}, fmt.Errorf("list run progress: %w", err)
	}
	if out.Items == nil {
		out.Items = []domain.RunProgress{}
	}
	return out, nil
}

func (c *CronjobClient) GetRunProgress(ctx context.Context, runID int64) (domain.RunProgress, error) {
	var out domain.RunProgress
	if err := c.do(ctx, http.MethodGet, runPath(runID)+"/progress", nil, nil, &out); err != nil {
		return domain.RunProgress{}, fmt.Errorf("get progress of run %d: %w", runID, err)
	}
	return out, nil
}

func (c *CronjobClient) SetRunProgress(ctx context.Context, runID, current, total int64, message string) (domain.RunProgress, error) {
	in := struct {
		Current int64  `json:"current"`
		Total   int64  `json:"total"`
		Message string `json:"message,omitempty"`
	}{current, total, message}
	var out domain.RunProgress
	if err := c.do(ctx, http.MethodPost, runPath(runID)+"/progress", nil, in, &out); err != nil {
		return domain.RunProgress{}, fmt.Errorf("set progress of run %d: %w", runID, err)
	}
	return out, nil
}

func (c *CronjobClient) SubmitCallback(ctx context.Context, runID int64, cb domain.CallbackRequest) error {
	if err := c.do(ctx, http.MethodPost, runPath(runID)+"/callback", nil, cb, nil); err != nil {
		return fmt.Errorf("callback for run %d: %w", runID, err)
	}
	return nil
}

func (c *CronjobClient) CleanupRuns(ctx context.Context, req domain.CleanupRequest) (domain.CleanupResult, error) {
	var out domain.CleanupResult
	if err := c.do(ctx, http.MethodPost, "/runs/cleanup", nil, req, &out); err != nil {
		return domain.CleanupResult{}, fmt.Errorf("cleanup runs (%s): %w", req.Mode(), err)
	}
	return out, nil
}

func (c *CronjobClient) RefreshCache(ctx context.Context) (bool, error) {
	var out struct {
		Refreshed bool `json:"refreshed"`
	}
	if err := c.do(ctx, http.MethodPost, "/tasks/cache/refresh", nil, struct{}{}, &out); err != nil {
		return false, fmt.Errorf("refresh task cache: %w", err)
	}
	return out.Refreshed, nil
}

func taskPath(id int64) string { return "/tasks/" + strconv.FormatInt(id, 10) }
func runPath(id int64) string  { return "/runs/" + strconv.FormatInt(id, 10) }

func setString(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func setInt(v url.Values, key string, val int) {
	if val > 0 {
		v.Set(key, strconv.Itoa(val))
	}
}

func setTime(v url.Values, key string, t time.Time) {
	if !t.IsZero() {
		v.Set(key, t.UTC().Format(time.RFC3339))
	}
}
