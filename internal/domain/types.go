package domain

import "time"

type TaskStatus string

const (
	TaskEnabled  TaskStatus = "ENABLED"
	TaskDisabled TaskStatus = "DISABLED"
)

type ExecType string

const (
	ExecSync  ExecType = "SYNC"
	ExecAsync ExecType = "ASYNC"
)

// Task is a scheduled job definition owned by the cronjob service.
// Version is bumped server side; the console never computes it.
type Task struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	CronExpr           string     `json:"cron_expr"`
	Timezone           string     `json:"timezone"`
	ExecType           ExecType   `json:"exec_type"`
	HTTPMethod         string     `json:"http_method,omitempty"`
	TargetURL          string     `json:"target_url,omitempty"`
	Method             string     `json:"method,omitempty"`
	TargetService      string     `json:"target_service,omitempty"`
	TargetPath         string     `json:"target_path,omitempty"`
	HeadersJSON        string     `json:"headers_json"`
	BodyTemplate       string     `json:"body_template"`
	TimeoutSeconds     int        `json:"timeout_seconds"`
	RetryPolicyJSON    string     `json:"retry_policy_json"`
	MaxConcurrency     int        `json:"max_concurrency"`
	ConcurrencyPolicy  string     `json:"concurrency_policy"`
	CallbackMethod     string     `json:"callback_method"`
	CallbackTimeoutSec int        `json:"callback_timeout_sec"`
	OverlapAction      string     `json:"overlap_action"`
	FailureAction      string     `json:"failure_action"`
	Status             TaskStatus `json:"status"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Deleted            int        `json:"deleted"`
}

// TaskRun is one execution attempt of a Task. Status transitions belong to the backend.
type TaskRun struct {
	ID               int64      `json:"id"`
	TaskID           int64      `json:"task_id"`
	ScheduledTime    time.Time  `json:"scheduled_time"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	Status           RunStatus  `json:"status"`
	Attempt          int        `json:"attempt"`
	TargetService    string     `json:"target_service,omitempty"`
	TargetPath       string     `json:"target_path,omitempty"`
	Method           string     `json:"method,omitempty"`
	ExecType         ExecType   `json:"exec_type,omitempty"`
	RequestHeaders   string     `json:"request_headers"`
	RequestBody      string     `json:"request_body"`
	ResponseCode     *int       `json:"response_code"`
	ResponseBody     string     `json:"response_body"`
	ErrorMessage     string     `json:"error_message"`
	NextRetryTime    *time.Time `json:"next_retry_time"`
	CallbackToken    string     `json:"callback_token"`
	CallbackDeadline *time.Time `json:"callback_deadline"`
	TraceID          string     `json:"trace_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CanCancel reports whether the run is still in a state the backend accepts a cancel for.
func (r TaskRun) CanCancel() bool {
	switch r.Status {
	case RunScheduled, RunRunning, RunCallbackPending:
		return true
	}
	return false
}

type RunProgress struct {
	RunID     int64     `json:"run_id"`
	Current   int64     `json:"current"`
	Total     int64     `json:"total"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TaskRunStats struct {
	TaskID             int64                 `json:"task_id"`
	TotalRuns          int64                 `json:"total_runs"`
	StatusDistribution map[RunStatus]int64   `json:"status_distribution"`
	StatusRatios       map[RunStatus]float64 `json:"status_ratios"`
	AvgWaitMs          int64                 `json:"avg_wait_ms"`
	AvgExecMs          int64                 `json:"avg_exec_ms"`
	SampleSize         int                   `json:"sample_size"`
}

type TaskAggregate struct {
	TotalRuns             int64               `json:"total_runs"`
	StatusDistribution    map[RunStatus]int64 `json:"status_distribution"`
	TerminalRatioEstimate float64             `json:"terminal_ratio_estimate"`
}

// RunsSummary is keyed by task id (JSON object keys are decimal strings).
type RunsSummary struct {
	Counts     map[int64]int64         `json:"counts"`
	Aggregates map[int64]TaskAggregate `json:"aggregates"`
}

type CallbackRequest struct {
	Result       string `json:"result"`
	Code         int    `json:"code,omitempty"`
	Body         string `json:"body,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type CreatedTask struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type TriggeredRun struct {
	RunID int64 `json:"run_id"`
}
