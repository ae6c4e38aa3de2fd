package server

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// EndpointInfo is one row of the metadata registry: the single source of
// truth behind /api/dev/endpoints and the live sweep.
type EndpointInfo struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Description string            `json:"description"`
	QuerySchema map[string]string `json:"querySchema,omitempty"`
	BodySchema  map[string]string `json:"bodySchema,omitempty"`
	Service     string            `json:"service"` // dev | worker | spline
	Cache       *CacheMeta        `json:"cache,omitempty"`
	WebSocket   bool              `json:"websocket,omitempty"`
}

// metadataRegistry is the declarative endpoint table.
var metadataRegistry = []EndpointInfo{
	{Method: "GET", Path: "/health", Description: "process liveness", Service: "dev"},
	{Method: "GET", Path: "/ready", Description: "warmup readiness gate", Service: "dev"},
	{Method: "GET", Path: "/api/version", Description: "build info", Service: "dev",
		Cache: &CacheMeta{DurationSec: 300, Type: "public"}},
	{Method: "GET", Path: "/api/dev/endpoints", Description: "this index", Service: "dev"},
	{Method: "GET", Path: "/api/dev/endpoints/check", Description: "live endpoint sweep", Service: "dev"},
	{Method: "GET", Path: "/api/dev/metrics", Description: "process counters", Service: "dev"},
	{Method: "GET", Path: "/api/dev/configs", Description: "redacted config snapshot", Service: "dev"},
	{Method: "GET", Path: "/api/dev/status", Description: "status document", Service: "dev"},
	{Method: "GET", Path: "/api/dev/status/legacy", Description: "legacy flat status", Service: "dev"},
	{Method: "GET", Path: "/api/dev/event-loop", Description: "event loop monitor", Service: "dev"},
	{Method: "GET", Path: "/api/dev/colors", Description: "relation palette", Service: "dev",
		Cache: &CacheMeta{DurationSec: 3600, Type: "public"}},
	{Method: "GET", Path: "/api/dev/versions", Description: "version registry entities", Service: "dev"},
	{Method: "POST", Path: "/api/dev/bump-version", Description: "CSRF-guarded version bump", Service: "dev",
		BodySchema: map[string]string{"type": "major|minor|patch", "entity": "optional entity id"}},
	{Method: "GET", Path: "/api/dev/server-metrics", Description: "server metrics document", Service: "dev"},
	{Method: "WS", Path: "/api/dev/server-metrics/live", Description: "500ms metrics stream", Service: "dev", WebSocket: true},
	{Method: "WS", Path: "/ws/server-metrics/live", Description: "500ms metrics stream", Service: "dev", WebSocket: true},
	{Method: "WS", Path: "/api/dev/version-ws", Description: "privileged version stream", Service: "dev", WebSocket: true},
	{Method: "GET", Path: "/api/dev/workers", Description: "worker summary (token)", Service: "worker"},
	{Method: "GET", Path: "/api/dev/glossary", Description: "betting glossary", Service: "dev",
		QuerySchema: map[string]string{"term": "lookup", "q": "search", "suggest": "prefix", "category": "filter"}},
	{Method: "GET", Path: "/api/dev/flags", Description: "feature flags", Service: "dev"},
	{Method: "POST", Path: "/api/dev/flags", Description: "toggle feature flags", Service: "dev",
		BodySchema: map[string]string{"key": "flag key", "action": "enable|disable|rollout"}},
	{Method: "GET", Path: "/api/dev/books", Description: "bookmaker registry", Service: "dev"},
	{Method: "PATCH", Path: "/api/dev/books", Description: "mutate bookmaker registry", Service: "dev"},
	{Method: "GET", Path: "/api/dev/tmux/status", Description: "tmux session status", Service: "dev"},
	{Method: "POST", Path: "/api/dev/tmux/start", Description: "start tmux session", Service: "dev"},
	{Method: "POST", Path: "/api/dev/tmux/stop", Description: "stop tmux session", Service: "dev"},
	{Method: "GET", Path: "/api/auth/csrf-token", Description: "one-time CSRF token", Service: "dev"},
	{Method: "GET", Path: "/api/workers/registry", Description: "worker registry (token)", Service: "worker"},
	{Method: "POST", Path: "/api/workers/scale", Description: "scale worker pool (token)", Service: "worker",
		BodySchema: map[string]string{"action": "spawn|terminate|list", "count": "optional", "type": "optional"}},
	{Method: "GET", Path: "/api/workers/snapshot/:id", Description: "gzipped heap snapshot (token)", Service: "worker"},
	{Method: "WS", Path: "/ws/workers/telemetry", Description: "worker telemetry stream", Service: "worker", WebSocket: true},
	{Method: "GET", Path: "/api/tension/map", Description: "tension edge mapping", Service: "dev",
		QuerySchema: map[string]string{"conflict": "[0,1]", "entropy": "[0,1]", "tension": "[0,1]", "format": "json|csv|yaml|table"},
		Cache:       &CacheMeta{DurationSec: 3600, Type: "public"}},
	{Method: "POST", Path: "/api/tension/batch", Description: "batch tension mapping", Service: "dev"},
	{Method: "GET", Path: "/api/tension/help", Description: "tension query docs", Service: "dev"},
	{Method: "GET", Path: "/api/tension/health", Description: "tension collaborator health", Service: "dev"},
	{Method: "GET", Path: "/api/tension/socket-info", Description: "shadow-market socket info", Service: "dev"},
	{Method: "GET", Path: "/api/gauge/womens-sports", Description: "WNBATOR gauge", Service: "dev",
		QuerySchema: map[string]string{"tensor": "csv numeric list"}},
	{Method: "POST", Path: "/api/ai/maparse", Description: "curve detection", Service: "dev"},
	{Method: "GET", Path: "/api/ai/models/status", Description: "model cache status", Service: "dev"},
	{Method: "GET", Path: "/api/validate/threshold", Description: "threshold validator", Service: "dev",
		QuerySchema: map[string]string{"expr": "metric op value"}},
	{Method: "POST", Path: "/api/spline/render", Description: "spline path render", Service: "spline"},
	{Method: "POST", Path: "/api/spline/predict", Description: "spline extrapolation", Service: "spline"},
	{Method: "POST", Path: "/api/spline/preset/store", Description: "persist spline preset", Service: "spline"},
	{Method: "WS", Path: "/ws/spline-live", Description: "60 FPS spline stream", Service: "spline", WebSocket: true},
	{Method: "GET", Path: "/api/lifecycle/export", Description: "registry export", Service: "dev"},
	{Method: "GET", Path: "/api/lifecycle/health", Description: "subsystem health", Service: "dev"},
}

// legacyEndpoints predate the metadata registry; merged with dedup by
// (path, method).
var legacyEndpoints = []EndpointInfo{
	{Method: "GET", Path: "/", Description: "dashboard", Service: "dev"},
	{Method: "GET", Path: "/favicon.ico", Description: "204 no icon", Service: "dev"},
	{Method: "GET", Path: "/tension-map", Description: "redirect to /tension", Service: "dev"},
	{Method: "GET", Path: "/health", Description: "duplicate of registry row, dropped by dedup", Service: "dev"},
}

// getAllEndpoints merges the registry, the legacy list and static-file
// entries into the three service buckets.
func (s *TESServer) getAllEndpoints() map[string][]EndpointInfo {
	seen := make(map[string]bool)
	var merged []EndpointInfo

	add := func(e EndpointInfo) {
		key := e.Path + "\x00" + e.Method
		if seen[key] {
			return
		}
		seen[key] = true
		merged = append(merged, e)
	}

	for _, e := range metadataRegistry {
		add(e)
	}
	for _, e := range legacyEndpoints {
		add(e)
	}
	for _, p := range s.static.Paths() {
		add(EndpointInfo{Method: "GET", Path: p, Description: "static file", Service: "dev"})
	}

	buckets := map[string][]EndpointInfo{"dev": {}, "worker": {}, "spline": {}}
	for _, e := range merged {
		svc := e.Service
		if _, ok := buckets[svc]; !ok {
			svc = "dev"
		}
		buckets[svc] = append(buckets[svc], e)
	}
	for _, b := range buckets {
		sort.Slice(b, func(i, j int) bool {
			if b[i].Path == b[j].Path {
				return b[i].Method < b[j].Method
			}
			return b[i].Path < b[j].Path
		})
	}
	return buckets
}

// handleDevEndpoints serves the merged three-bucket index.
func (s *TESServer) handleDevEndpoints(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()
	buckets := s.getAllEndpoints()
	s.writeCachedJSON(w, r, start, map[string]any{
		"services": buckets,
		"count":    len(buckets["dev"]) + len(buckets["worker"]) + len(buckets["spline"]),
	}, CacheMeta{DurationSec: 60, Type: "private"})
}

// checkedEndpoint is one sweep row.
type checkedEndpoint struct {
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	URL      string   `json:"url,omitempty"`
	Status   int      `json:"status,omitempty"`
	Headers  []string `json:"headers,omitempty"`
	Cookies  bool     `json:"setsCookies,omitempty"`
	Skipped  bool     `json:"skipped,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	ErrorMsg string   `json:"error,omitempty"`
}

// paramExamples substitutes example values for :param segments in sweep URLs.
var paramExamples = map[string]string{
	"id":       "worker-example",
	"endpoint": "metrics",
}

// handleEndpointsCheck sweeps the live endpoints: GETs each non-WS GET route
// with a 5 s budget and annotates every response header with the
// 8-dimensional metadata string.
func (s *TESServer) handleEndpointsCheck(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	base := fmt.Sprintf("http://127.0.0.1:%d", s.boundPort())
	buckets := s.getAllEndpoints()

	var results []checkedEndpoint
	var skipped, checked, withCookies int

	for _, bucket := range []string{"dev", "worker", "spline"} {
		for _, e := range buckets[bucket] {
			row := checkedEndpoint{Method: e.Method, Path: e.Path}

			switch {
			case e.WebSocket:
				row.Skipped = true
				row.Reason = "websocket endpoint, needs upgrade handshake"
			case e.Method != "GET":
				row.Skipped = true
				row.Reason = "non-GET endpoint, sweep is read-only"
			case e.Path == "/api/dev/endpoints/check":
				row.Skipped = true
				row.Reason = "would recurse"
			}
			if row.Skipped {
				skipped++
				results = append(results, row)
				continue
			}

			path := substituteParams(e.Path)
			row.URL = base + path

			ctx, cancel := context.WithTimeout(r.Context(), endpointCheckTimeout)
			status, headers, err := s.probe.Head(ctx, row.URL)
			cancel()
			if err != nil {
				row.ErrorMsg = err.Error()
				results = append(results, row)
				continue
			}

			checked++
			row.Status = status
			if len(headers.Values("Set-Cookie")) > 0 {
				row.Cookies = true
				withCookies++
			}
			row.Headers = s.enrichHeaders(headers)
			results = append(results, row)
		}
	}

	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"summary": map[string]any{
			"checked":        checked,
			"skipped":        skipped,
			"cookieSetting":  withCookies,
			"total":          len(results),
			"sweepDurationMs": float64(s.clock.Now().Sub(start).Microseconds()) / 1000,
		},
		"endpoints": results,
	})
}

// enrichHeaders serializes each response header with the 8-dimension
// metadata suffix:
// Key:Value~[SCOPE][domain][TYPE][PURPOSE][VERSION][TICKET][API][#REF:url][TIMESTAMP]
func (s *TESServer) enrichHeaders(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ts := s.clock.Now().UnixMilli()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v := h.Get(k)
		out = append(out, fmt.Sprintf("%s:%s~[%s][%s][%s][%s][%s][%s][%s][#REF:%s][%d]",
			k, v,
			"RESP",
			s.cfg.Server.APIDomain,
			headerType(k),
			headerPurpose(k),
			s.apiVersion,
			"TES-0",
			"fetch",
			"https://developer.mozilla.org/docs/Web/HTTP/Headers/"+k,
			ts,
		))
	}
	return out
}

func headerType(key string) string {
	switch strings.ToLower(key) {
	case "content-security-policy", "x-frame-options", "x-content-type-options", "referrer-policy":
		return "SECURITY"
	case "cache-control", "etag", "last-modified", "expires":
		return "CACHING"
	case "access-control-allow-origin", "access-control-allow-methods", "access-control-allow-headers":
		return "CORS"
	case "x-api-domain", "x-api-scope", "x-api-version", "x-response-time-ms", "x-ready":
		return "METADATA"
	default:
		return "STANDARD"
	}
}

func headerPurpose(key string) string {
	switch strings.ToLower(key) {
	case "x-response-time-ms":
		return "timing"
	case "etag", "cache-control", "last-modified":
		return "revalidation"
	case "content-type":
		return "negotiation"
	case "retry-after", "x-ratelimit-limit", "x-ratelimit-remaining", "x-ratelimit-reset":
		return "throttling"
	default:
		return "transport"
	}
}

func substituteParams(path string) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, ":") {
			if example, ok := paramExamples[seg[1:]]; ok {
				segs[i] = example
			} else {
				segs[i] = "example"
			}
		}
	}
	return strings.Join(segs, "/")
}
