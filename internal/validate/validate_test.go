package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"cthulhu/internal/domain"
)

func validTask() domain.Task {
	return ApplyDefaults(domain.Task{
		Name:      "nightly-report",
		CronExpr:  "0 3 * * *",
		TargetURL: "https://reports.internal/run",
	})
}

func problemFields(t *testing.T, err error) []string {
	t.Helper()
	var ve *Error
	require.True(t, errors.As(err, &ve), "expected *validate.Error, got %v", err)
	fields := make([]string, 0, len(ve.Problems))
	for _, p := range ve.Problems {
		fields = append(fields, p.Field)
	}
	return fields
}

func TestApplyDefaults(t *testing.T) {
	task := validTask()
	require.Equal(t, "UTC", task.Timezone)
	require.Equal(t, domain.ExecSync, task.ExecType)
	require.Equal(t, "GET", task.HTTPMethod)
	require.Equal(t, "{}", task.HeadersJSON)
	require.Equal(t, 30, task.TimeoutSeconds)
	require.Equal(t, 1, task.MaxConcurrency)
	require.Equal(t, "PARALLEL", task.ConcurrencyPolicy)
	require.Equal(t, 10, task.CallbackTimeoutSec)
	require.Equal(t, domain.TaskEnabled, task.Status)

	kept := ApplyDefaults(domain.Task{Timezone: "Asia/Shanghai", TimeoutSeconds: 5, Status: domain.TaskDisabled})
	require.Equal(t, "Asia/Shanghai", kept.Timezone)
	require.Equal(t, 5, kept.TimeoutSeconds)
	require.Equal(t, domain.TaskDisabled, kept.Status)
}

func TestTaskPayloadAcceptsValidTasks(t *testing.T) {
	require.NoError(t, TaskPayload(validTask()))

	svc := ApplyDefaults(domain.Task{
		Name:          "reindex",
		CronExpr:      "@daily",
		TargetService: "search",
		TargetPath:    "/jobs/reindex",
		Method:        "post",
		ExecType:      domain.ExecAsync,
	})
	require.NoError(t, TaskPayload(svc))
}

func TestTaskPayloadReportsEveryProblem(t *testing.T) {
	task := validTask()
	task.Name = ""
	task.CronExpr = "not a cron"
	task.ExecType = "BATCH"
	task.TargetURL = "ftp://host/x"
	task.HeadersJSON = `["a"]`
	task.RetryPolicyJSON = `{"max": 3`
	task.TimeoutSeconds = -1

	err := TaskPayload(task)
	require.ElementsMatch(t, []string{
		"name", "cron_expr", "exec_type", "target_url", "headers_json", "retry_policy_json", "timeout_seconds",
	}, problemFields(t, err))
}

func TestTaskPayloadTargets(t *testing.T) {
	task := validTask()
	task.TargetURL = ""
	require.Equal(t, []string{"target_url"}, problemFields(t, TaskPayload(task)))

	task = validTask()
	task.TargetURL = ""
	task.TargetPath = "jobs"
	require.ElementsMatch(t, []string{"target_service", "target_path"}, problemFields(t, TaskPayload(task)))

	task = validTask()
	task.HTTPMethod = "FETCH"
	require.Equal(t, []string{"http_method"}, problemFields(t, TaskPayload(task)))
}

func TestTaskPayloadNameLength(t *testing.T) {
	task := validTask()
	name := make([]rune, MaxNameLength)
	for i := range name {
		name[i] = '任'
	}
	task.Name = string(name)
	require.NoError(t, TaskPayload(task))

	task.Name += "x"
	require.Equal(t, []string{"name"}, problemFields(t, TaskPayload(task)))
}

func TestTaskYAML(t *testing.T) {
	require.NoError(t, TaskYAML("tasks:\n  - code: sync_orders\n    module: jobs.orders\n"))

	cases := []struct {
		name    string
		content string
		line    int
	}{
		{"empty", "   \n", 0},
		{"comment only", "# nothing here\n", 0},
		{"sequence root", "- a\n- b\n", 1},
		{"scalar root", "\n\njust text\n", 3},
		{"syntax error", "tasks:\n  - code: a\n bad: [\n", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := TaskYAML(tc.content)
			var ve *Error
			require.True(t, errors.As(err, &ve))
			require.Len(t, ve.Problems, 1)
			if tc.line > 0 {
				require.Equal(t, tc.line, ve.Problems[0].Line)
			}
		})
	}
}

func TestTaskYAMLSyntaxErrorCarriesLine(t *testing.T) {
	err := TaskYAML("a: 1\nb: : 2\n")
	var ve *Error
	require.True(t, errors.As(err, &ve))
	require.Equal(t, 2, ve.Problems[0].Line)
	require.Contains(t, err.Error(), "line 2")
}
