package server

import (
	"context"
	"net/http"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/version"
)

var defaultDashboardHTML = []byte(`<!doctype html>
<html>
<head><title>TES Dev Console</title></head>
<body>
<h1>TES Dev Console</h1>
<p>Endpoint index: <a href="/api/dev/endpoints">/api/dev/endpoints</a></p>
</body>
</html>
`)

// logEvent emits one structured event in the canonical shape:
// {threadGroup, threadId, channel, event, ...payload, ts}.
func (s *TESServer) logEvent(channel, event string, payload ...any) {
	fields := []any{
		"threadGroup", "server",
		"threadId", 0,
		"channel", channel,
		"event", event,
	}
	fields = append(fields, payload...)
	fields = append(fields, "ts", s.clock.Now().UnixMilli())
	s.logger.Infow(event, fields...)
}

// handleDashboard serves the dashboard shell with the 60/min per-IP limiter
// and security headers.
func (s *TESServer) handleDashboard(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if d := s.dashboardLimiter.Allow(clientIP(r)); !d.Allowed {
		s.writeRateLimited(w, start, d, true)
		return
	}

	dashboardHeaders(w.Header(), !s.isDev)
	s.apiHeaders(w.Header(), "text/html; charset=utf-8", start)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.dashboardHTML)
}

// handleFavicon answers 204; the console ships no icon.
func (s *TESServer) handleFavicon(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth is plain liveness: the process answers, it is alive.
func (s *TESServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"status":  "ok",
		"uptime":  true,
		"version": version.Get().Version,
	})
}

// handleReady is the warmup gate.
func (s *TESServer) handleReady(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if !s.warmup.Complete() {
		w.Header().Set(headerRetryAfter, "2")
		s.writeJSON(w, http.StatusServiceUnavailable, start, map[string]any{
			"ready":          false,
			"warmupComplete": false,
			"status":         "warming_up",
		})
		return
	}

	if err := s.warmup.Err(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, start, map[string]any{
			"ready":          false,
			"warmupComplete": true,
			"status":         "error",
			"error":          err.Error(),
		})
		return
	}

	w.Header().Set(headerReady, "1")
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"ready":          true,
		"warmupComplete": true,
		"status":         "ready",
	})
}

// handleTensionMapRedirect preserves the legacy /tension-map path.
func (s *TESServer) handleTensionMapRedirect(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	http.Redirect(w, r, "/tension", http.StatusFound)
}

// handleVersion serves the static build-info JSON.
func (s *TESServer) handleVersion(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeCachedJSON(w, r, start, version.Get(), CacheMeta{DurationSec: 300, Type: "public"})
}

// handleStaticEntry routes manifest paths.
func (s *TESServer) handleStaticEntry(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()
	entry, ok := s.static.Lookup(r.URL.Path)
	if !ok {
		s.renderNotFound(w, r, start)
		return
	}
	s.serveStatic(w, r, entry, start)
}

// runWithTimeout runs fn under a deadline composed with the request's own
// context. Returns context.DeadlineExceeded when the deadline trips; the
// caller answers 408 and bumps requestTimeouts. fn must not touch the
// ResponseWriter.
func runWithTimeout(r *http.Request, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(r.Context(), d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
