// Package errcapture turns failed HTTP exchanges into a capped, deduplicated list of error
// records that the console shows to operators.
package errcapture

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const (
	fallbackMessage = "请求失败，请稍后重试"
	networkMessage  = "网络异常，请检查网络连接"
	rawJSONLimit    = 300
)

type ErrorRecord struct {
	ID         string    `json:"id"`
	Status     int       `json:"status"`
	StatusText string    `json:"status_text"`
	Message    string    `json:"message"`
	RawMessage string    `json:"raw_message,omitempty"`
	URL        string    `json:"url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   Severity  `json:"severity"`
}

// Failure is a caught HTTP failure. Status is 0 when the request never got a response.
type Failure struct {
	Status     int
	StatusText string
	URL        string
	Body       []byte
	Err        error
}

// StatusMessageMap maps HTTP statuses to operator-facing text. Default covers unmapped
// statuses and Network covers status 0.
type StatusMessageMap struct {
	Status  map[int]string `yaml:"status"`
	Default string         `yaml:"default"`
	Network string         `yaml:"network"`
}

func DefaultStatusMessages() StatusMessageMap {
	return StatusMessageMap{
		Status: map[int]string{
			400: "请求参数错误",
			401: "未授权，请重新登录",
			403: "没有访问权限",
			404: "资源未找到",
			409: "请求冲突",
			422: "请求数据无法处理",
			429: "请求过于频繁，请稍后再试",
			500: "服务器内部错误",
			502: "网关错误",
			503: "服务暂时不可用",
			504: "网关超时",
		},
		Default: fallbackMessage,
		Network: networkMessage,
	}
}

func DeriveSeverity(status int) Severity {
	switch {
	case status >= 500:
		return SeverityError
	case status == 404:
		return SeverityInfo
	case status >= 400:
		return SeverityWarning
	}
	return SeverityInfo
}

// Classify never fails; a body it cannot interpret simply leaves RawMessage empty.
func Classify(f Failure, m StatusMessageMap, now time.Time) ErrorRecord {
	var msg string
	if f.Status == 0 {
		msg = m.Network
		if msg == "" {
			msg = networkMessage
		}
	} else {
		msg = m.Status[f.Status]
		if msg == "" {
			msg = m.Default
		}
		if msg == "" {
			msg = fallbackMessage
		}
	}
	return ErrorRecord{
		ID:         newID(now),
		Status:     f.Status,
		StatusText: f.StatusText,
		Message:    msg,
		RawMessage: rawMessage(f.Body),
		URL:        f.URL,
		Timestamp:  now,
		Severity:   DeriveSeverity(f.Status),
	}
}

func newID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

func rawMessage(body []byte) string {
	if len(strings.TrimSpace(string(body))) == 0 {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return string(body)
	}
	switch v := decoded.(type) {
	case string:
		return v
	case map[string]any:
		return objectMessage(v)
	case []any:
		obj := make(map[string]any, len(v))
		for i, el := range v {
			obj[fmt.Sprint(i)] = el
		}
		return objectMessage(obj)
	}
	// bare numbers and booleans carry no readable detail
	return ""
}

func objectMessage(obj map[string]any) string {
	if v, ok := obj["message"]; ok && truthy(v) {
		return scalarString(v)
	}
	if v, ok := obj["error"]; ok && truthy(v) {
		return scalarString(v)
	}
	keys := make([]string, 0, len(obj))
	for k, v := range obj {
		if isScalar(v) {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + scalarString(obj[k])
		}
		return strings.Join(parts, ", ")
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	if r := []rune(string(b)); len(r) > rawJSONLimit {
		return string(r[:rawJSONLimit])
	}
	return string(b)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	}
	return true
}

// isScalar treats null like an object, matching how browsers report typeof null.
func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, bool:
		return true
	}
	return false
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64, bool:
		return fmt.Sprint(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
