package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
)

// authorizeWorkerRequest enforces the developer token and the localhost
// origin policy for the worker endpoints. Violations log a structured event;
// the caller writes the 401/403.
func (s *TESServer) authorizeWorkerRequest(r *http.Request) (int, error) {
	token := r.Header.Get(headerDevToken)
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Security.DevToken)) != 1 {
		s.logEvent("security", "dev_token_rejected",
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"token_present", token != "",
		)
		return http.StatusUnauthorized, ErrUnauthorized
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !s.originAllowed(origin) {
		s.logEvent("security", "origin_rejected",
			"path", r.URL.Path,
			"origin", origin,
		)
		return http.StatusForbidden, ErrForbidden
	}
	return 0, nil
}

// hostAllowed validates the Host header on privileged upgrades. Localhost in
// any form passes; anything else must be the advertised API domain.
func (s *TESServer) hostAllowed(hostHeader string) bool {
	if hostHeader == "" {
		return false
	}
	host := hostHeader
	if h, _, err := net.SplitHostPort(hostHeader); err == nil {
		host = h
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	return host == s.cfg.Server.APIDomain
}

// originAllowed accepts only localhost/127.0.0.1 on the configured port.
func (s *TESServer) originAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return false
	}
	port := u.Port()
	want := strconv.Itoa(s.cfg.Security.AllowedOriginPort)
	if port == "" {
		// Scheme default ports never match the dev console port
		return false
	}
	return port == want
}

// handleWorkersRegistry serves the resolved registry view.
func (s *TESServer) handleWorkersRegistry(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if status, err := s.authorizeWorkerRequest(r); err != nil {
		s.writeError(w, status, start, err.Error())
		return
	}

	view := s.resolver.Resolve(r.Context())
	s.writeJSON(w, http.StatusOK, start, view)
}

// handleWorkersScale applies spawn/terminate/list actions.
func (s *TESServer) handleWorkersScale(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if status, err := s.authorizeWorkerRequest(r); err != nil {
		s.writeError(w, status, start, err.Error())
		return
	}

	var body struct {
		Action string `json:"action"`
		Count  int    `json:"count"`
		Type   string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeValidationError(w, start, "body", "", `JSON {"action":"spawn|terminate|list","count?","type?"}`)
		return
	}
	if body.Count <= 0 {
		body.Count = 1
	}

	switch body.Action {
	case "spawn":
		var spawned []string
		for i := 0; i < body.Count; i++ {
			id, err := s.pool.Spawn(body.Type)
			if err != nil {
				s.handlerError(w, r, start, err)
				return
			}
			spawned = append(spawned, id)
		}
		s.afterScale()
		s.logEvent("workers", "scale_spawn", "count", len(spawned))
		s.writeJSON(w, http.StatusOK, start, map[string]any{
			"action":  "spawn",
			"spawned": spawned,
			"summary": s.pool.View().Summary,
		})

	case "terminate":
		terminated := s.pool.TerminateOldest(body.Count)
		s.afterScale()
		s.logEvent("workers", "scale_terminate", "count", len(terminated))
		s.writeJSON(w, http.StatusOK, start, map[string]any{
			"action":     "terminate",
			"terminated": terminated,
			"summary":    s.pool.View().Summary,
		})

	case "list":
		s.writeJSON(w, http.StatusOK, start, s.pool.View())

	default:
		s.writeValidationError(w, start, "action", body.Action, "one of spawn, terminate, list")
	}
}

// afterScale refreshes gauges and the shared map after pool mutations.
func (s *TESServer) afterScale() {
	s.metrics.SetWorkerPoolSize(s.pool.Size())
	s.resolver.Publish()
	s.broadcastTopic(TopicWorkers, map[string]any{
		"type":    "worker_pool_update",
		"summary": s.pool.View().Summary,
	})
}

// handleWorkerSnapshot streams one gzipped heap snapshot, limited to one
// request per worker id per 10 seconds.
func (s *TESServer) handleWorkerSnapshot(w http.ResponseWriter, r *http.Request, params map[string]string) {
	start := s.clock.Now()

	if status, err := s.authorizeWorkerRequest(r); err != nil {
		s.writeError(w, status, start, err.Error())
		return
	}

	id := params["id"]
	if d := s.snapshotLimiter.Allow("snapshot:" + id); !d.Allowed {
		s.writeRateLimited(w, start, d, false)
		return
	}

	if _, ok := s.pool.Get(id); !ok {
		// Embedded pool doesn't know the worker: check the sibling before
		// declaring it missing
		if !s.resolver.SiblingAvailable(r.Context()) {
			w.Header().Set(headerRetryAfter, "15")
			s.writeJSON(w, http.StatusServiceUnavailable, start, map[string]any{
				"error": "telemetry service is not running",
				"hint":  fmt.Sprintf("start the worker telemetry API on port %d or scale up the embedded pool", s.cfg.Workers.APIPort),
			})
			return
		}
		s.writeError(w, http.StatusNotFound, start, fmt.Sprintf("unknown worker %q", id))
		return
	}

	s.apiHeaders(w.Header(), "application/gzip", start)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-heap.json.gz", id))
	w.WriteHeader(http.StatusOK)

	if _, err := s.pool.WriteSnapshot(id, w); err != nil {
		// Headers already sent; log the structured event and drop the conn
		s.logEvent("workers", "snapshot_failed", "worker_id", id, "error", err.Error())
	}
}

// handleDevWorkers is the dev-scoped summary view (token-guarded like the
// rest of the worker surface).
func (s *TESServer) handleDevWorkers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if status, err := s.authorizeWorkerRequest(r); err != nil {
		s.writeError(w, status, start, err.Error())
		return
	}

	view := s.resolver.Resolve(r.Context())
	byStatus := map[string][]string{}
	for id, wk := range view.Workers {
		byStatus[wk.Status] = append(byStatus[wk.Status], id)
	}
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"summary":  view.Summary,
		"byStatus": byStatus,
		"source":   view.Source,
		"counters": map[string]int64{
			"spawns":       s.pool.TotalSpawns.Load(),
			"terminations": s.pool.TotalTerminations.Load(),
		},
	})
}
