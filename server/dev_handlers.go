package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/config"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/tension"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/version"
)

// handleDevMetrics serves the full counter snapshot.
func (s *TESServer) handleDevMetrics(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	snap := s.metrics.Snapshot(s.clock.Now(), s.pool.TotalSpawns.Load(), s.pool.TotalTerminations.Load())
	s.writeJSON(w, http.StatusOK, start, snap)
}

// handleDevConfigs serves the redacted TOML config snapshot.
func (s *TESServer) handleDevConfigs(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	snapshot, err := config.Snapshot(s.cfg)
	if err != nil {
		s.handlerError(w, r, start, err)
		return
	}
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"format": "toml",
		"config": snapshot,
	})
}

// handleDevStatus is the current status document.
func (s *TESServer) handleDevStatus(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"state":          stateString(ServerState(s.state.Load())),
		"uptimeSec":      s.clock.Now().Sub(s.startedAt).Seconds(),
		"warmupComplete": s.warmup.Complete(),
		"eventLoop":      s.eventLoop.Snapshot(),
		"workerPool": map[string]any{
			"size":         s.pool.Size(),
			"spawns":       s.pool.TotalSpawns.Load(),
			"terminations": s.pool.TotalTerminations.Load(),
		},
		"version": version.Get(),
	})
}

// handleDevStatusLegacy keeps the flat shape older dashboards scrape.
func (s *TESServer) handleDevStatusLegacy(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	el := s.eventLoop.Snapshot()
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"status":           stateString(ServerState(s.state.Load())),
		"uptime":           int64(s.clock.Now().Sub(s.startedAt).Seconds()),
		"warmup_complete":  s.warmup.Complete(),
		"event_loop_health": el.Health,
		"worker_pool_size": s.pool.Size(),
		"version":          version.Get().Version,
	})
}

// handleDevEventLoop serves the monitor snapshot.
func (s *TESServer) handleDevEventLoop(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusOK, start, s.eventLoop.Snapshot())
}

// handleDevColors lists the relation palette the dashboard renders edges
// with: one representative mapping per relation bucket.
func (s *TESServer) handleDevColors(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	samples := map[string]tension.Inputs{
		tension.RelationTemperate: {Conflict: 0.1, Entropy: 0.9, Tension: 0.1},
		tension.RelationModerate:  {Conflict: 0.5, Entropy: 0.5, Tension: 0.4},
		tension.RelationIntense:   {Conflict: 0.8, Entropy: 0.3, Tension: 0.6},
		tension.RelationExtreme:   {Conflict: 1.0, Entropy: 0.0, Tension: 1.0},
	}

	palette := make(map[string]any, len(samples))
	for relation, in := range samples {
		res := tension.MapEdgeRelation(in)
		palette[relation] = map[string]any{
			"hex":     res.Color.HEX,
			"opacity": res.Opacity,
			"width":   res.Width,
		}
	}
	s.writeCachedJSON(w, r, start, map[string]any{"palette": palette}, CacheMeta{DurationSec: 3600, Type: "public"})
}

// handleDevVersions serves the registry entities plus the legacy maps.
func (s *TESServer) handleDevVersions(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if s.versionReg == nil {
		w.Header().Set(headerRetryAfter, "10")
		s.writeError(w, http.StatusServiceUnavailable, start, "version registry not loaded")
		return
	}

	entities := s.versionReg.Displayable()
	componentVersions := make(map[string]string)
	endpointsByVersion := make(map[string][]string)
	for _, e := range s.versionReg.Entities() {
		componentVersions[e.ID] = e.CurrentVersion
		endpointsByVersion[e.CurrentVersion] = append(endpointsByVersion[e.CurrentVersion], e.ID)
	}
	for _, ids := range endpointsByVersion {
		sort.Strings(ids)
	}

	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"entities":           entities,
		"componentVersions":  componentVersions,
		"endpointsByVersion": endpointsByVersion,
	})
}

// handleBumpVersion performs a CSRF-guarded targeted or global bump.
func (s *TESServer) handleBumpVersion(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if err := s.csrf.Consume(r.Header.Get(headerCSRF)); err != nil {
		s.logEvent("security", "csrf_rejected", "path", r.URL.Path, "reason", err.Error())
		s.writeError(w, http.StatusForbidden, start, err.Error())
		return
	}

	if s.versionReg == nil {
		w.Header().Set(headerRetryAfter, "10")
		s.writeError(w, http.StatusServiceUnavailable, start, "version registry not loaded")
		return
	}

	var body struct {
		Type   string `json:"type"`
		Entity string `json:"entity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeValidationError(w, start, "body", "", `JSON {"type":"major|minor|patch","entity":"optional"}`)
		return
	}

	var (
		result *version.BumpResult
		err    error
	)
	if body.Entity != "" {
		result, err = s.versionReg.Bump(body.Entity, body.Type)
	} else {
		result, err = s.versionReg.BumpAll(body.Type)
	}
	if err != nil {
		s.writeValidationError(w, start, "type/entity", fmt.Sprintf("%s %s", body.Type, body.Entity), err.Error())
		return
	}

	// Reload so current versions re-extract from the rewritten files
	if err := s.versionReg.Reload(); err != nil {
		s.handlerError(w, r, start, err)
		return
	}

	s.logEvent("versions", "bump",
		"entity", result.Entity,
		"old", result.OldVersion,
		"new", result.NewVersion,
	)
	s.broadcastTopic(TopicVersionUpdates, map[string]any{
		"type":     "version_bump",
		"entity":   result.Entity,
		"old":      result.OldVersion,
		"new":      result.NewVersion,
		"affected": result.Affected,
	})
	s.writeJSON(w, http.StatusOK, start, result)
}

// handleCSRFToken issues a one-time token.
func (s *TESServer) handleCSRFToken(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	token, err := s.csrf.Issue()
	if err != nil {
		s.handlerError(w, r, start, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	s.writeJSON(w, http.StatusOK, start, map[string]string{"token": token})
}

// handleDevServerMetrics is the REST shape of the live metrics stream.
func (s *TESServer) handleDevServerMetrics(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusOK, start, s.serverMetricsDoc())
}

// handleDevGlossary serves lookup, search, suggestions and categories off
// query parameters.
func (s *TESServer) handleDevGlossary(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()
	q := r.URL.Query()

	switch {
	case q.Get("term") != "":
		term, ok := s.glossaryReg.GetTerm(q.Get("term"))
		if !ok {
			s.writeJSON(w, http.StatusNotFound, start, map[string]any{
				"error":       "unknown term",
				"term":        q.Get("term"),
				"suggestions": s.glossaryReg.GetSuggestions(q.Get("term"), 5),
			})
			return
		}
		s.writeJSON(w, http.StatusOK, start, map[string]any{
			"term":    term,
			"related": s.glossaryReg.GetRelatedTerms(term.Key),
		})
	case q.Get("q") != "":
		s.writeJSON(w, http.StatusOK, start, map[string]any{"results": s.glossaryReg.Search(q.Get("q"))})
	case q.Get("suggest") != "":
		limit, _ := queryInt(r, "limit", 10, 1, 50)
		s.writeJSON(w, http.StatusOK, start, map[string]any{"suggestions": s.glossaryReg.GetSuggestions(q.Get("suggest"), limit)})
	case q.Get("category") != "":
		s.writeJSON(w, http.StatusOK, start, map[string]any{"terms": s.glossaryReg.GetTermsByCategory(q.Get("category"))})
	default:
		s.writeJSON(w, http.StatusOK, start, map[string]any{"categories": s.glossaryReg.Categories()})
	}
}

// handleDevFlags lists flags (GET) or mutates them (POST).
func (s *TESServer) handleDevFlags(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if r.Method == http.MethodGet {
		if category := r.URL.Query().Get("category"); category != "" {
			s.writeJSON(w, http.StatusOK, start, map[string]any{"flags": s.flagsReg.ByCategory(category)})
			return
		}
		s.writeJSON(w, http.StatusOK, start, map[string]any{"flags": s.flagsReg.All()})
		return
	}

	var body struct {
		Key     string   `json:"key"`
		Action  string   `json:"action"` // enable | disable | rollout
		Rollout *float64 `json:"rollout"`
		Source  string   `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeValidationError(w, start, "body", "", `JSON {"key","action","rollout?","source?"}`)
		return
	}
	if body.Source == "" {
		body.Source = "dev-api"
	}

	var (
		updated any
		err     error
	)
	switch body.Action {
	case "enable":
		updated, err = s.flagsReg.Enable(body.Key, body.Source)
	case "disable":
		updated, err = s.flagsReg.Disable(body.Key, body.Source)
	case "rollout":
		if body.Rollout == nil {
			s.writeValidationError(w, start, "rollout", "", "number in [0,1]")
			return
		}
		updated, err = s.flagsReg.UpdateRollout(body.Key, *body.Rollout, body.Source)
	default:
		s.writeValidationError(w, start, "action", body.Action, "one of enable, disable, rollout")
		return
	}
	if err != nil {
		s.writeValidationError(w, start, "key", body.Key, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, start, map[string]any{"flag": updated})
}

// handleDevBooks serves the bookmaker registry and its mutations.
func (s *TESServer) handleDevBooks(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if r.Method == http.MethodGet {
		s.writeJSON(w, http.StatusOK, start, map[string]any{"bookmakers": s.booksReg.All()})
		return
	}

	var body struct {
		ID      string   `json:"id"`
		Active  *bool    `json:"active"`
		Rollout *float64 `json:"rollout"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeValidationError(w, start, "body", "", `JSON {"id","active?","rollout?"}`)
		return
	}

	var (
		updated any
		err     error
	)
	switch {
	case body.Active != nil:
		updated, err = s.booksReg.UpdateFlag(body.ID, *body.Active)
	case body.Rollout != nil:
		updated, err = s.booksReg.UpdateRollout(body.ID, *body.Rollout)
	default:
		s.writeValidationError(w, start, "body", "", "one of active or rollout required")
		return
	}
	if err != nil {
		s.writeValidationError(w, start, "id", body.ID, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, start, map[string]any{"bookmaker": updated})
}

// handleDevEndpointFallback answers /api/dev/:endpoint for names with no
// dedicated handler: a 404 with the available subresources.
func (s *TESServer) handleDevEndpointFallback(w http.ResponseWriter, _ *http.Request, params map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusNotFound, start, map[string]any{
		"error":     "unknown dev endpoint",
		"endpoint":  params["endpoint"],
		"available": s.devEndpointNames(),
	})
}

func (s *TESServer) devEndpointNames() []string {
	var names []string
	for _, route := range s.router.Routes() {
		if route.Tier != tierExact {
			continue
		}
		const prefix = "/api/dev/"
		if len(route.Pattern) > len(prefix) && route.Pattern[:len(prefix)] == prefix {
			names = append(names, route.Pattern[len(prefix):])
		}
	}
	sort.Strings(names)
	return names
}
