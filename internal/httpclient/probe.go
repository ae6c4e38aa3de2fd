// Package httpclient provides the small, hard-deadline HTTP client used to
// probe sibling services (worker telemetry API, endpoint sweeps). Probes must
// fail fast: a down sibling should cost one timeout, never a hung handler.
package httpclient

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// ProbeClient wraps http.Client with a per-request deadline.
type ProbeClient struct {
	client  *http.Client
	timeout time.Duration
}

// NewProbeClient returns a client whose every request is bounded by timeout.
func NewProbeClient(timeout time.Duration) *ProbeClient {
	return &ProbeClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DisableKeepAlives:   true,
				MaxIdleConnsPerHost: 1,
			},
		},
		timeout: timeout,
	}
}

// Timeout returns the configured deadline.
func (pc *ProbeClient) Timeout() time.Duration { return pc.timeout }

// GetJSON fetches url and returns the raw body on a 2xx response. The
// request is additionally bounded by ctx so callers can compose deadlines.
func (pc *ProbeClient) GetJSON(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build probe request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := pc.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "probe of %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf("probe of %s returned %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read probe body from %s", url)
	}
	return body, nil
}

// Head performs a HEAD-like GET used by the endpoint sweep; it returns status
// code and headers without retaining the body.
func (pc *ProbeClient) Head(ctx context.Context, url string) (int, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to build sweep request")
	}

	resp, err := pc.client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "sweep of %s failed", url)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, resp.Header, nil
}
