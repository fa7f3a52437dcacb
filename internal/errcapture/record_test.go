package errcapture

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeriveSeverity(t *testing.T) {
	cases := map[int]Severity{
		0:   SeverityInfo,
		200: SeverityInfo,
		400: SeverityWarning,
		401: SeverityWarning,
		404: SeverityInfo,
		429: SeverityWarning,
		500: SeverityError,
		503: SeverityError,
	}
	for status, want := range cases {
		require.Equal(t, want, DeriveSeverity(status), "status %d", status)
	}
}

func TestClassifyMessages(t *testing.T) {
	now := time.Now()
	m := StatusMessageMap{Status: map[int]string{404: "资源未找到"}, Default: "请求失败，请稍后重试"}

	rec := Classify(Failure{Status: 404, URL: "/x"}, m, now)
	require.Equal(t, "资源未找到", rec.Message)
	require.Equal(t, SeverityInfo, rec.Severity)
	require.Equal(t, "/x", rec.URL)
	require.True(t, rec.Timestamp.Equal(now))

	rec = Classify(Failure{Status: 500}, m, now)
	require.Equal(t, "请求失败，请稍后重试", rec.Message)
	require.Equal(t, SeverityError, rec.Severity)

	rec = Classify(Failure{Status: 0}, m, now)
	require.Equal(t, networkMessage, rec.Message)
	require.Equal(t, SeverityInfo, rec.Severity)

	rec = Classify(Failure{Status: 0}, StatusMessageMap{Network: "offline"}, now)
	require.Equal(t, "offline", rec.Message)

	rec = Classify(Failure{Status: 418}, StatusMessageMap{}, now)
	require.Equal(t, fallbackMessage, rec.Message)
}

func TestClassifyID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	a := Classify(Failure{Status: 500}, DefaultStatusMessages(), now)
	b := Classify(Failure{Status: 500}, DefaultStatusMessages(), now)
	require.True(t, strings.HasPrefix(a.ID, "1700000000123-"))
	require.Len(t, a.ID, len("1700000000123-")+6)
	require.NotEqual(t, a.ID, b.ID)
}

func TestRawMessage(t *testing.T) {
	long := `{"nested":{"a":"` + strings.Repeat("x", 400) + `"}}`
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", ""},
		{"plain text", "upstream exploded", "upstream exploded"},
		{"json string", `"bad things"`, "bad things"},
		{"message field", `{"message":"Not found","error":"nf"}`, "Not found"},
		{"error field", `{"error":"run_not_found"}`, "run_not_found"},
		{"empty message falls to error", `{"message":"","error":"boom"}`, "boom"},
		{"numeric message", `{"message":42}`, "42"},
		{"scalar fields", `{"code":3001,"detail":"x","nested":{"a":1},"ok":false}`, "code: 3001, detail: x, ok: false"},
		{"null is not scalar", `{"a":null,"b":"y"}`, "b: y"},
		{"object only", `{"nested":{"a":1}}`, `{"nested":{"a":1}}`},
		{"array of scalars", `["a","b"]`, "0: a, 1: b"},
		{"bare number", `12`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, rawMessage([]byte(tc.body)))
		})
	}

	got := rawMessage([]byte(long))
	require.Len(t, []rune(got), rawJSONLimit)
	require.True(t, strings.HasPrefix(got, `{"nested":{"a":"xxx`))
}
