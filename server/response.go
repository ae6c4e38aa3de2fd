package server

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"time"
)

// apiHeaders stamps the canonical response headers: CORS, API metadata and,
// when start is non-zero, the timing header. Every non-204 response goes
// through here, 304 revalidations included.
func (s *TESServer) apiHeaders(h http.Header, contentType string, start time.Time) {
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Access-Control-Allow-Origin", s.allowOrigin)
	h.Set(headerAPIDomain, s.cfg.Server.APIDomain)
	h.Set(headerAPIScope, "dev-console")
	h.Set(headerAPIVersion, s.apiVersion)
	if !start.IsZero() {
		elapsed := float64(s.clock.Now().Sub(start).Microseconds()) / 1000
		h.Set(headerRespTime, strconv.FormatFloat(elapsed, 'f', 2, 64))
	}
}

// writeJSON writes a JSON response with the given status code. The encoder
// streams straight into the response writer, no intermediate string.
func (s *TESServer) writeJSON(w http.ResponseWriter, status int, start time.Time, data any) {
	s.apiHeaders(w.Header(), "application/json", start)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debugw("Failed to encode JSON response", "error", err)
	}
}

// writeError writes a structured JSON error body with canonical headers.
func (s *TESServer) writeError(w http.ResponseWriter, status int, start time.Time, message string) {
	s.writeJSON(w, status, start, map[string]string{"error": message})
}

// writeCachedJSON marshals data once so it can stamp an ETag, answers 304 on
// an If-None-Match hit, and attaches Cache-Control from meta.
func (s *TESServer) writeCachedJSON(w http.ResponseWriter, r *http.Request, start time.Time, data any, meta CacheMeta) {
	body, err := json.Marshal(data)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, start, "failed to encode response")
		return
	}
	body = append(body, '\n')

	etag := ETagFor(body)
	if cacheControl := cacheControlValue(meta); cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	w.Header().Set("ETag", etag)

	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		// 304: no body, but CORS and the API metadata headers still apply so
		// cross-origin revalidation is not blocked by the browser
		s.apiHeaders(w.Header(), "", start)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	s.apiHeaders(w.Header(), "application/json", start)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// ETagFor hashes a canonical body to a stable strong ETag.
func ETagFor(body []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(body)
	return fmt.Sprintf(`"%016x"`, h.Sum64())
}

// etagMatches implements the If-None-Match comparison, including the `*`
// wildcard and comma-separated lists.
func etagMatches(headerValue, etag string) bool {
	if headerValue == "*" {
		return true
	}
	for _, candidate := range splitETags(headerValue) {
		if candidate == etag {
			return true
		}
	}
	return false
}

func splitETags(v string) []string {
	var out []string
	start := -1
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '"':
			if start < 0 {
				start = i
			} else {
				out = append(out, v[start:i+1])
				start = -1
			}
		}
	}
	return out
}

func cacheControlValue(meta CacheMeta) string {
	if meta.DurationSec <= 0 {
		return ""
	}
	visibility := meta.Type
	if visibility == "" {
		visibility = "public"
	}
	v := fmt.Sprintf("%s, max-age=%d", visibility, meta.DurationSec)
	if meta.Immutable {
		v += ", immutable"
	}
	return v
}

// dashboardHeaders adds the security header set for HTML surfaces.
func dashboardHeaders(h http.Header, isProduction bool) {
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	csp := "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'"
	if !isProduction {
		// Dev mode allows the HMR websocket and inline scripts
		csp = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:"
	}
	h.Set("Content-Security-Policy", csp)
}

// writeRateLimited emits the 429 with retry headers. htmlBody switches to the
// static HTML body used by the dashboard limiter.
func (s *TESServer) writeRateLimited(w http.ResponseWriter, start time.Time, d RateLimitDecision, htmlBody bool) {
	s.metrics.IncRateLimitHit()
	h := w.Header()
	h.Set(headerRetryAfter, strconv.Itoa(d.RetryAfterSec))
	h.Set(headerRLLimit, strconv.Itoa(d.Limit))
	h.Set(headerRLRemaining, strconv.Itoa(d.Remaining))
	h.Set(headerRLReset, strconv.FormatInt(d.ResetAtMs, 10))

	if htmlBody {
		s.apiHeaders(h, "text/html; charset=utf-8", start)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write(rateLimitedHTML)
		return
	}
	s.writeJSON(w, http.StatusTooManyRequests, start, map[string]any{
		"error":      "rate limit exceeded",
		"retryAfter": d.RetryAfterSec,
	})
}

var rateLimitedHTML = []byte(`<!doctype html>
<html><head><title>Slow down</title></head>
<body><h1>429</h1><p>Too many dashboard requests. Try again shortly.</p></body></html>
`)
