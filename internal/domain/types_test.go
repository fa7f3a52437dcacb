package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanCancel(t *testing.T) {
	require.True(t, TaskRun{Status: RunRunning}.CanCancel())
	require.True(t, TaskRun{Status: RunScheduled}.CanCancel())
	require.True(t, TaskRun{Status: RunCallbackPending}.CanCancel())
	require.False(t, TaskRun{Status: RunSuccess}.CanCancel())
	require.False(t, TaskRun{Status: RunCanceled}.CanCancel())
}

func TestRunStatusBadge(t *testing.T) {
	require.Equal(t, Badge{"success", "成功"}, RunSuccess.Badge())
	require.Equal(t, Badge{"default", "WEIRD"}, RunStatus("WEIRD").Badge())
	require.True(t, RunOverlapSkip.Valid())
	require.False(t, RunStatus("WEIRD").Valid())
	require.True(t, RunFailedTimeout.Terminal())
	require.False(t, RunRetrying.Terminal())
}

func TestCleanupRequestEncoding(t *testing.T) {
	cases := []struct {
		name string
		req  CleanupRequest
		want string
	}{
		{"age all tasks", CleanupByAge{MaxAgeSeconds: 86400}, `{"mode":"age","max_age_seconds":86400}`},
		{"age one task", CleanupByAge{TaskID: 7, MaxAgeSeconds: 60}, `{"mode":"age","task_id":7,"max_age_seconds":60}`},
		{"count", CleanupByCount{TaskID: 3, Keep: 1000}, `{"mode":"count","task_id":3,"keep":1000}`},
		{"ids", CleanupByIDs{IDs: []int64{1, 2}}, `{"mode":"ids","ids":[1,2]}`},
		{"ids empty", CleanupByIDs{}, `{"mode":"ids","ids":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.req)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(b))
		})
	}
}
