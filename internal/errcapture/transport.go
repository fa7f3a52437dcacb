package errcapture

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

// maxCapturedBody bounds how much of a failed response body is kept for the raw message.
const maxCapturedBody = 64 << 10

// Transport reports every failed exchange to a Notifier. It never changes the outcome the
// caller sees: error responses are returned with their body intact and transport errors are
// returned as is.
type Transport struct {
	Base     http.RoundTripper
	Notifier *Notifier
}

func NewTransport(base http.RoundTripper, n *Notifier) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Notifier: n}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		t.Notifier.AddFailure(Failure{URL: req.URL.String(), Err: err})
		return resp, err
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
		rest := resp.Body
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), rest), rest}
	}
	t.Notifier.AddFailure(Failure{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		URL:        req.URL.String(),
		Body:       body,
	})
	return resp, nil
}

// statusText strips the numeric prefix net/http keeps in Response.Status.
func statusText(resp *http.Response) string {
	if i := strings.IndexByte(resp.Status, ' '); i >= 0 {
		if s := strings.TrimSpace(resp.Status[i+1:]); s != "" {
			return s
		}
	}
	return http.StatusText(resp.StatusCode)
}
