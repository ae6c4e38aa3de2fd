package server

import "net/http"

// registerRoutes wires the canonical route set. Registration order inside a
// tier is the match order, so exact routes can be listed freely while the
// param/wildcard fallbacks go last.
func (s *TESServer) registerRoutes() {
	rt := s.router

	// Root surfaces
	rt.Handle("/", s.handleDashboard, http.MethodGet)
	rt.Handle("/favicon.ico", s.handleFavicon, http.MethodGet)
	rt.Handle("/health", s.handleHealth, http.MethodGet)
	rt.Handle("/ready", s.handleReady, http.MethodGet)
	rt.Handle("/tension-map", s.handleTensionMapRedirect, http.MethodGet)
	rt.Handle("/tension", s.handleDashboard, http.MethodGet)
	rt.Handle("/api/version", s.handleVersion, http.MethodGet)

	// Static manifest entries
	for _, p := range s.static.Paths() {
		rt.Handle(p, s.handleStaticEntry, http.MethodGet)
	}

	// Dev surface
	rt.Handle("/api/dev/endpoints", s.handleDevEndpoints, http.MethodGet)
	rt.Handle("/api/dev/endpoints/check", s.handleEndpointsCheck, http.MethodGet)
	rt.Handle("/api/dev/metrics", s.handleDevMetrics, http.MethodGet)
	rt.Handle("/api/dev/configs", s.handleDevConfigs, http.MethodGet)
	rt.Handle("/api/dev/status", s.handleDevStatus, http.MethodGet)
	rt.Handle("/api/dev/status/legacy", s.handleDevStatusLegacy, http.MethodGet)
	rt.Handle("/api/dev/event-loop", s.handleDevEventLoop, http.MethodGet)
	rt.Handle("/api/dev/colors", s.handleDevColors, http.MethodGet)
	rt.Handle("/api/dev/versions", s.handleDevVersions, http.MethodGet)
	rt.Handle("/api/dev/bump-version", s.handleBumpVersion, http.MethodPost)
	rt.Handle("/api/dev/server-metrics", s.handleDevServerMetrics, http.MethodGet)
	rt.Handle("/api/dev/workers", s.handleDevWorkers, http.MethodGet)
	rt.Handle("/api/dev/glossary", s.handleDevGlossary, http.MethodGet)
	rt.Handle("/api/dev/flags", s.handleDevFlags, http.MethodGet, http.MethodPost)
	rt.Handle("/api/dev/books", s.handleDevBooks, http.MethodGet, http.MethodPatch)
	rt.Handle("/api/dev/tmux/status", s.handleTmuxStatus, http.MethodGet)
	rt.Handle("/api/dev/tmux/start", s.handleTmuxStart, http.MethodPost)
	rt.Handle("/api/dev/tmux/stop", s.handleTmuxStop, http.MethodPost)

	// Auth
	rt.Handle("/api/auth/csrf-token", s.handleCSRFToken, http.MethodGet)

	// Worker surface
	rt.Handle("/api/workers/registry", s.handleWorkersRegistry, http.MethodGet)
	rt.Handle("/api/workers/scale", s.handleWorkersScale, http.MethodPost)
	rt.Handle("/api/workers/snapshot/:id", s.handleWorkerSnapshot, http.MethodGet)

	// Collaborator endpoints
	rt.Handle("/api/tension/map", s.handleTensionMap, http.MethodGet)
	rt.Handle("/api/tension/batch", s.handleTensionBatch, http.MethodPost)
	rt.Handle("/api/tension/help", s.handleTensionHelp, http.MethodGet)
	rt.Handle("/api/tension/health", s.handleTensionHealth, http.MethodGet)
	rt.Handle("/api/tension/socket-info", s.handleTensionSocketInfo, http.MethodGet)
	rt.Handle("/api/gauge/womens-sports", s.handleGauge, http.MethodGet)
	rt.Handle("/api/ai/maparse", s.handleMaparse, http.MethodPost)
	rt.Handle("/api/ai/models/status", s.handleModelStatus, http.MethodGet)
	rt.Handle("/api/validate/threshold", s.handleValidateThreshold, http.MethodGet, http.MethodPost)
	rt.Handle("/api/spline/render", s.handleSplineRender, http.MethodPost)
	rt.Handle("/api/spline/predict", s.handleSplinePredict, http.MethodPost)
	rt.Handle("/api/spline/preset/store", s.handleSplinePresetStore, http.MethodPost)
	rt.Handle("/api/lifecycle/export", s.handleLifecycleExport, http.MethodGet)
	rt.Handle("/api/lifecycle/health", s.handleLifecycleHealth, http.MethodGet)

	// WebSocket upgrades
	rt.Handle("/ws/workers/telemetry", s.handleTelemetryWS, http.MethodGet).WS = true
	rt.Handle("/ws/spline-live", s.handleSplineWS, http.MethodGet).WS = true
	rt.Handle("/api/dev/version-ws", s.handleVersionWS, http.MethodGet).WS = true
	// Both spellings of the metrics stream are live: the /ws path is the
	// documented one, the /api/dev path is what older dashboards dial
	rt.Handle("/ws/server-metrics/live", s.handleMetricsWS, http.MethodGet).WS = true
	rt.Handle("/api/dev/server-metrics/live", s.handleMetricsWS, http.MethodGet).WS = true

	// Parameter fallback: any other /api/dev/<name> answers with the
	// available subresources
	rt.Handle("/api/dev/:endpoint", s.handleDevEndpointFallback, http.MethodGet)

	// Wildcard and catch-all 404s
	rt.Handle("/api/*", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		s.renderNotFound(w, r, s.clock.Now())
	}, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	rt.Handle("/*", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		s.renderNotFound(w, r, s.clock.Now())
	}, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
}
