package server

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Sentinel errors for the handler taxonomy.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUnavailable  = errors.New("service unavailable")
)

// renderError is the single 500 path. Development mode returns an HTML page
// with the stack; production returns a generic JSON body. CORS is always
// appended.
func (s *TESServer) renderError(w http.ResponseWriter, r *http.Request, start time.Time, err error, stack string) {
	s.logger.Errorw("Unhandled handler error",
		"path", r.URL.Path,
		"method", r.Method,
		"error", err,
	)

	if s.isDev {
		s.apiHeaders(w.Header(), "text/html; charset=utf-8", start)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `<!doctype html>
<html><head><title>500 - %s</title></head><body>
<h1>Internal error</h1>
<p><code>%s %s</code></p>
<pre>%s</pre>
<pre>%s</pre>
</body></html>
`,
			html.EscapeString(r.URL.Path),
			html.EscapeString(r.Method),
			html.EscapeString(r.URL.Path),
			html.EscapeString(err.Error()),
			html.EscapeString(stack),
		)
		return
	}

	s.writeJSON(w, http.StatusInternalServerError, start, map[string]string{
		"error": "internal server error",
	})
}

// handlerError renders a collaborator error as a structured 500. Panics are
// not handled here; ServeHTTP recovers them.
func (s *TESServer) handlerError(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	s.renderError(w, r, start, err, "")
}

// renderNotFound answers unknown paths: JSON under /api/*, plain text
// elsewhere. CORS appended in both shapes.
func (s *TESServer) renderNotFound(w http.ResponseWriter, r *http.Request, start time.Time) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.writeJSON(w, http.StatusNotFound, start, map[string]string{
			"error": "not found",
			"path":  r.URL.Path,
		})
		return
	}
	s.apiHeaders(w.Header(), "text/plain; charset=utf-8", start)
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "404 not found: %s\n", r.URL.Path)
}
