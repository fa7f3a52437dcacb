// Package gateway holds typed clients for the cronjob scheduling service and the artemis
// task-unit runtime.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUnexpectedShape = errors.New("unexpected response shape")

// HTTPError is returned for any non-2xx answer. Body holds the raw response text.
type HTTPError struct {
	Status     int
	StatusText string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d error from %s: %s", e.Status, e.URL, e.Body)
	}
	return fmt.Sprintf("HTTP %d error from %s", e.Status, e.URL)
}

// StatusOf returns the HTTP status carried by err, or 0 for transport-level failures.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// NewHTTPClient builds the client both gateways share. transport is normally the error
// capture transport.
func NewHTTPClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

type baseClient struct {
	base string
	http *http.Client
}

func newBaseClient(baseURL string, hc *http.Client) baseClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return baseClient{base: strings.TrimRight(baseURL, "/"), http: hc}
}

// do sends the request and decodes a JSON answer into out when out is non-nil.
func (c baseClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	raw, err := c.doRaw(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c baseClient) doRaw(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: create request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response body: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			URL:        u,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	return respBody, nil
}
