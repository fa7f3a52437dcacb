package domain

type RunStatus string

const (
	RunScheduled       RunStatus = "SCHEDULED"
	RunRunning         RunStatus = "RUNNING"
	RunSuccess         RunStatus = "SUCCESS"
	RunFailed          RunStatus = "FAILED"
	RunTimeout         RunStatus = "TIMEOUT"
	RunRetrying        RunStatus = "RETRYING"
	RunCallbackPending RunStatus = "CALLBACK_PENDING"
	RunCallbackSuccess RunStatus = "CALLBACK_SUCCESS"
	RunCallbackFailed  RunStatus = "CALLBACK_FAILED"
	RunFailedTimeout   RunStatus = "FAILED_TIMEOUT"
	RunCanceled        RunStatus = "CANCELED"
	RunSkipped         RunStatus = "SKIPPED"
	RunFailureSkip     RunStatus = "FAILURE_SKIP"
	RunConcurrentSkip  RunStatus = "CONCURRENT_SKIP"
	RunOverlapSkip     RunStatus = "OVERLAP_SKIP"
)

// Badge is the display hint for a run status.
type Badge struct {
	Status string `json:"status"` // processing|success|error|warning|default
	Text   string `json:"text"`
}

var runBadges = map[RunStatus]Badge{
	RunScheduled:       {"processing", "排队"},
	RunRunning:         {"processing", "运行中"},
	RunSuccess:         {"success", "成功"},
	RunFailed:          {"error", "失败"},
	RunTimeout:         {"error", "超时"},
	RunRetrying:        {"warning", "重试中"},
	RunCallbackPending: {"processing", "待回调"},
	RunCallbackSuccess: {"success", "回调成功"},
	RunCallbackFailed:  {"error", "回调失败"},
	RunFailedTimeout:   {"error", "失败/超时"},
	RunCanceled:        {"default", "已取消"},
	RunSkipped:         {"default", "跳过"},
	RunFailureSkip:     {"default", "失败跳过"},
	RunConcurrentSkip:  {"warning", "并发跳过"},
	RunOverlapSkip:     {"warning", "重叠跳过"},
}

func (s RunStatus) Valid() bool {
	_, ok := runBadges[s]
	return ok
}

// Terminal reports whether the backend will no longer move a run out of this status.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunFailed, RunTimeout, RunCallbackSuccess, RunCallbackFailed, RunFailedTimeout,
		RunCanceled, RunSkipped, RunFailureSkip, RunConcurrentSkip, RunOverlapSkip:
		return true
	}
	return false
}

// Badge falls back to the raw status text for values the console does not know.
func (s RunStatus) Badge() Badge {
	if b, ok := runBadges[s]; ok {
		return b
	}
	return Badge{Status: "default", Text: string(s)}
}
