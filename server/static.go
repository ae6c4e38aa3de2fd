package server

import (
	"net/http"
	"os"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// StaticEntry is one allowed static path. Exactly one of Bytes (immutable,
// memory-resident, precomputed ETag) or FilePath (opened per request,
// streamed with Last-Modified and Range support) is set.
type StaticEntry struct {
	Path        string
	ContentType string
	Bytes       []byte
	ETag        string
	FilePath    string
	Cache       CacheMeta
}

// StaticManifest is the fixed allow-list of static routes. Paths never reach
// the filesystem unless they appear here, so traversal is structurally
// impossible.
type StaticManifest struct {
	entries map[string]*StaticEntry
}

// NewStaticManifest builds the manifest. Immutable entries are buffered and
// hashed immediately; file entries are verified to exist.
func NewStaticManifest(entries []StaticEntry) (*StaticManifest, error) {
	sm := &StaticManifest{entries: make(map[string]*StaticEntry, len(entries))}
	for i := range entries {
		e := entries[i]
		if (e.Bytes == nil) == (e.FilePath == "") {
			return nil, errors.Newf("static entry %s must set exactly one of bytes or file", e.Path)
		}
		if e.Bytes != nil {
			e.ETag = ETagFor(e.Bytes)
		} else {
			if _, err := os.Stat(e.FilePath); err != nil {
				return nil, errors.Wrapf(err, "static entry %s", e.Path)
			}
		}
		sm.entries[e.Path] = &e
	}
	return sm, nil
}

// Lookup returns the entry for path, if allowed.
func (sm *StaticManifest) Lookup(path string) (*StaticEntry, bool) {
	e, ok := sm.entries[path]
	return e, ok
}

// Paths lists every allowed path, for the endpoint metadata merge.
func (sm *StaticManifest) Paths() []string {
	out := make([]string, 0, len(sm.entries))
	for p := range sm.entries {
		out = append(out, p)
	}
	return out
}

// serveStatic writes one manifest entry.
func (s *TESServer) serveStatic(w http.ResponseWriter, r *http.Request, e *StaticEntry, start time.Time) {
	if cc := cacheControlValue(e.Cache); cc != "" {
		w.Header().Set("Cache-Control", cc)
	}

	if e.Bytes != nil {
		w.Header().Set("ETag", e.ETag)
		if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, e.ETag) {
			// CORS and API metadata stay on the 304 so cross-origin
			// revalidation succeeds
			s.apiHeaders(w.Header(), "", start)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		s.apiHeaders(w.Header(), e.ContentType, start)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(e.Bytes)
		return
	}

	f, err := os.Open(e.FilePath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, start, "static file unavailable")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, start, "static file unavailable")
		return
	}

	s.apiHeaders(w.Header(), e.ContentType, start)
	// ServeContent handles Range, Last-Modified and If-Modified-Since
	http.ServeContent(w, r, e.Path, info.ModTime(), f)
}
