// Package validate checks operator input locally before anything is sent to a backend.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"cthulhu/internal/domain"
	"cthulhu/internal/scheduler"
)

const MaxNameLength = 128

type Problem struct {
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	switch {
	case p.Field != "":
		return p.Field + ": " + p.Message
	case p.Line > 0:
		return fmt.Sprintf("line %d: %s", p.Line, p.Message)
	}
	return p.Message
}

// Error collects every problem found in one input.
type Error struct {
	Problems []Problem `json:"problems"`
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Error) add(field, format string, args ...any) {
	e.Problems = append(e.Problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *Error) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// ApplyDefaults fills the fields a new task form starts with.
func ApplyDefaults(t domain.Task) domain.Task {
	setDefault(&t.Timezone, "UTC")
	if t.ExecType == "" {
		t.ExecType = domain.ExecSync
	}
	if t.TargetService == "" {
		setDefault(&t.HTTPMethod, "GET")
	}
	setDefault(&t.HeadersJSON, "{}")
	setDefault(&t.RetryPolicyJSON, "{}")
	setDefault(&t.ConcurrencyPolicy, "PARALLEL")
	setDefault(&t.CallbackMethod, "POST")
	setDefault(&t.OverlapAction, "SKIP")
	setDefault(&t.FailureAction, "ALERT")
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = 30
	}
	if t.MaxConcurrency == 0 {
		t.MaxConcurrency = 1
	}
	if t.CallbackTimeoutSec == 0 {
		t.CallbackTimeoutSec = 10
	}
	if t.Status == "" {
		t.Status = domain.TaskEnabled
	}
	return t
}

func setDefault(s *string, v string) {
	if strings.TrimSpace(*s) == "" {
		*s = v
	}
}

// TaskPayload checks a task before it is created or updated.
func TaskPayload(t domain.Task) error {
	e := &Error{}

	name := strings.TrimSpace(t.Name)
	switch {
	case name == "":
		e.add("name", "is required")
	case utf8.RuneCountInString(name) > MaxNameLength:
		e.add("name", "must be at most %d characters", MaxNameLength)
	}

	if err := scheduler.ValidateCronExpression(t.CronExpr); err != nil {
		e.add("cron_expr", "%v", err)
	}
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			e.add("timezone", "unknown timezone %q", t.Timezone)
		}
	}

	switch t.ExecType {
	case "", domain.ExecSync, domain.ExecAsync:
	default:
		e.add("exec_type", "must be SYNC or ASYNC")
	}
	switch t.Status {
	case "", domain.TaskEnabled, domain.TaskDisabled:
	default:
		e.add("status", "must be ENABLED or DISABLED")
	}

	checkTarget(e, t)

	if t.TimeoutSeconds < 0 {
		e.add("timeout_seconds", "must not be negative")
	}
	if t.CallbackTimeoutSec < 0 {
		e.add("callback_timeout_sec", "must not be negative")
	}
	if t.MaxConcurrency < 0 {
		e.add("max_concurrency", "must not be negative")
	}
	if t.CallbackMethod != "" && !httpMethods[strings.ToUpper(t.CallbackMethod)] {
		e.add("callback_method", "unsupported method %q", t.CallbackMethod)
	}

	checkJSONObject(e, "headers_json", t.HeadersJSON)
	checkJSONObject(e, "retry_policy_json", t.RetryPolicyJSON)

	return e.orNil()
}

// checkTarget accepts either http_method+target_url or target_service+target_path.
func checkTarget(e *Error, t domain.Task) {
	if t.TargetService != "" || t.TargetPath != "" {
		if strings.TrimSpace(t.TargetService) == "" {
			e.add("target_service", "is required with target_path")
		}
		if !strings.HasPrefix(t.TargetPath, "/") {
			e.add("target_path", "must start with /")
		}
		if t.Method != "" && !httpMethods[strings.ToUpper(t.Method)] {
			e.add("method", "unsupported method %q", t.Method)
		}
		return
	}

	if strings.TrimSpace(t.TargetURL) == "" {
		e.add("target_url", "is required")
	} else if u, err := url.Parse(t.TargetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		e.add("target_url", "must be an absolute http(s) URL")
	}
	if t.HTTPMethod != "" && !httpMethods[strings.ToUpper(t.HTTPMethod)] {
		e.add("http_method", "unsupported method %q", t.HTTPMethod)
	}
}

func checkJSONObject(e *Error, field, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&obj); err != nil || obj == nil {
		e.add(field, "must be a JSON object")
		return
	}
	if dec.More() {
		e.add(field, "has trailing data after the JSON object")
	}
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// TaskYAML checks that content parses and that its root is a mapping.
func TaskYAML(content string) error {
	if strings.TrimSpace(content) == "" {
		return &Error{Problems: []Problem{{Message: "document is empty"}}}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		p := Problem{Message: strings.TrimPrefix(err.Error(), "yaml: ")}
		if m := yamlLine.FindStringSubmatch(p.Message); m != nil {
			p.Line, _ = strconv.Atoi(m[1])
			p.Message = strings.TrimSpace(strings.TrimPrefix(p.Message, m[0]+":"))
		}
		return &Error{Problems: []Problem{p}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return &Error{Problems: []Problem{{Message: "document is empty"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return &Error{Problems: []Problem{{Line: root.Line, Message: "root must be a mapping"}}}
	}
	return nil
}
