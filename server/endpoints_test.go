package server

import (
	"net/http"
	"strings"
	"testing"
)

func TestGetAllEndpointsDedup(t *testing.T) {
	ts := newTestServer(t, nil)

	buckets := ts.getAllEndpoints()

	// /health appears in both the registry and the legacy list; dedup by
	// (path, method) keeps one
	count := 0
	for _, e := range buckets["dev"] {
		if e.Path == "/health" && e.Method == "GET" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("/health appears %d times, want 1", count)
	}

	if len(buckets["worker"]) == 0 || len(buckets["spline"]) == 0 {
		t.Errorf("expected non-empty worker and spline buckets: %d / %d",
			len(buckets["worker"]), len(buckets["spline"]))
	}
}

func TestEndpointsIndexServed(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.get(t, "/api/dev/endpoints", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("endpoints = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("ETag") == "" {
		t.Error("endpoints index should carry an ETag")
	}
	body := decodeBody(t, resp)
	services := body["services"].(map[string]any)
	for _, svc := range []string{"dev", "worker", "spline"} {
		if _, ok := services[svc]; !ok {
			t.Errorf("bucket %s missing", svc)
		}
	}
}

func TestEndpointsCheckSweep(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.runWarmup()

	// Point the sweep at the live httptest listener
	port := portFromURL(t, ts.http.URL)
	ts.boundPortVal.Store(int64(port))

	resp := ts.get(t, "/api/dev/endpoints/check", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	summary := body["summary"].(map[string]any)

	if summary["skipped"].(float64) == 0 {
		t.Error("sweep should document skipped WS/non-GET endpoints")
	}
	if summary["checked"].(float64) == 0 {
		t.Error("sweep should reach at least one live endpoint")
	}

	endpoints := body["endpoints"].([]any)
	var sawEnriched, sawWSSkip bool
	for _, raw := range endpoints {
		row := raw.(map[string]any)
		if row["skipped"] == true && strings.Contains(row["reason"].(string), "websocket") {
			sawWSSkip = true
		}
		if headers, ok := row["headers"].([]any); ok {
			for _, h := range headers {
				// Key:Value~[SCOPE][domain][TYPE]... shape
				if strings.Contains(h.(string), "~[RESP][") {
					sawEnriched = true
				}
			}
		}
	}
	if !sawWSSkip {
		t.Error("no websocket endpoint documented as skipped")
	}
	if !sawEnriched {
		t.Error("no header carried the 8-dimension metadata suffix")
	}
}

func portFromURL(t *testing.T, url string) int {
	t.Helper()
	i := strings.LastIndexByte(url, ':')
	if i < 0 {
		t.Fatalf("no port in %s", url)
	}
	var port int
	for _, r := range url[i+1:] {
		port = port*10 + int(r-'0')
	}
	return port
}

func TestSubstituteParams(t *testing.T) {
	if got := substituteParams("/api/workers/snapshot/:id"); got != "/api/workers/snapshot/worker-example" {
		t.Errorf("substituted = %q", got)
	}
	if got := substituteParams("/api/dev/:endpoint"); got != "/api/dev/metrics" {
		t.Errorf("substituted = %q", got)
	}
	if got := substituteParams("/api/x/:unknown"); got != "/api/x/example" {
		t.Errorf("substituted = %q", got)
	}
}
