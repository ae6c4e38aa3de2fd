package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/books"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/gauge"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/maparse"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/spline"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/tension"
)

// Cache TTLs for the compute endpoints (seconds).
const (
	gaugeCacheTTL   = 60
	aiCacheTTL      = 300
	tensionCacheTTL = 3600
)

// handleTensionMap maps {conflict, entropy, tension} query inputs to edge
// attributes in json, csv, yaml or table form. All formats carry identical
// color/opacity/width/relation values for the same inputs.
func (s *TESServer) handleTensionMap(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	conflict, ok := queryFloat(r, "conflict", 0.5, 0, 1)
	if !ok {
		s.writeValidationError(w, start, "conflict", r.URL.Query().Get("conflict"), "number in [0,1]")
		return
	}
	entropy, ok := queryFloat(r, "entropy", 0.5, 0, 1)
	if !ok {
		s.writeValidationError(w, start, "entropy", r.URL.Query().Get("entropy"), "number in [0,1]")
		return
	}
	tens, ok := queryFloat(r, "tension", 0.5, 0, 1)
	if !ok {
		s.writeValidationError(w, start, "tension", r.URL.Query().Get("tension"), "number in [0,1]")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	cacheKey := fmt.Sprintf("%v|%v|%v", conflict, entropy, tens)
	var result tension.Result
	if cached, hit := s.tensionCache.Get(cacheKey); hit {
		result = cached.(tension.Result)
	} else {
		result = tension.MapEdgeRelation(tension.Inputs{Conflict: conflict, Entropy: entropy, Tension: tens})
		s.tensionCache.Set(cacheKey, result, tensionCacheTTL)
	}

	switch format {
	case "json":
		s.writeCachedJSON(w, r, start, map[string]any{"data": result}, CacheMeta{DurationSec: tensionCacheTTL, Type: "public"})
	case "csv":
		body := fmt.Sprintf("hex,opacity,width,relation\n%s,%v,%d,%s\n",
			result.Color.HEX, result.Opacity, result.Width, result.Meta.Relation)
		s.apiHeaders(w.Header(), "text/csv; charset=utf-8", start)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	case "yaml":
		data, err := yaml.Marshal(map[string]any{"data": result})
		if err != nil {
			s.handlerError(w, r, start, errors.Wrap(err, "yaml encode failed"))
			return
		}
		s.apiHeaders(w.Header(), "application/yaml", start)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "table":
		var b strings.Builder
		fmt.Fprintf(&b, "%-10s %-8s %-6s %s\n", "HEX", "OPACITY", "WIDTH", "RELATION")
		fmt.Fprintf(&b, "%-10s %-8v %-6d %s\n", result.Color.HEX, result.Opacity, result.Width, result.Meta.Relation)
		s.apiHeaders(w.Header(), "text/plain; charset=utf-8", start)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(b.String()))
	default:
		s.writeValidationError(w, start, "format", format, "one of json, csv, yaml, table")
	}
}

// handleTensionBatch maps a JSON list of [conflict, entropy, tension]
// triplets in one call.
func (s *TESServer) handleTensionBatch(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	var body struct {
		Inputs [][3]float64 `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeValidationError(w, start, "inputs", "", "JSON array of [conflict, entropy, tension] triplets")
		return
	}
	if len(body.Inputs) == 0 || len(body.Inputs) > 1000 {
		s.writeValidationError(w, start, "inputs", fmt.Sprintf("%d rows", len(body.Inputs)), "1-1000 triplets")
		return
	}

	results := make([]tension.Result, len(body.Inputs))
	for i, in := range body.Inputs {
		results[i] = tension.MapEdgeRelation(tension.Inputs{Conflict: in[0], Entropy: in[1], Tension: in[2]})
	}
	s.writeJSON(w, http.StatusOK, start, map[string]any{"data": results, "count": len(results)})
}

// handleTensionHelp documents the tension query surface.
func (s *TESServer) handleTensionHelp(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"query":   map[string]string{"conflict": "[0,1]", "entropy": "[0,1]", "tension": "[0,1]", "format": "json|csv|yaml|table"},
		"formats": []string{"json", "csv", "yaml", "table"},
	})
}

// handleTensionHealth reports the collaborator is reachable.
func (s *TESServer) handleTensionHealth(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusOK, start, map[string]any{"status": "ok", "cached": s.tensionCache.Len()})
}

// handleTensionSocketInfo points clients at the shadow-market WS sibling.
func (s *TESServer) handleTensionSocketInfo(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"shadowMarket": map[string]any{
			"port":     s.cfg.Server.ShadowWSPort,
			"protocol": "ws",
			"path":     "/shadow",
		},
	})
}

// handleGauge runs the WNBATOR gauge over a CSV tensor, cached 60 s per
// tensor.
func (s *TESServer) handleGauge(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	raw := r.URL.Query().Get("tensor")
	if raw == "" {
		s.writeValidationError(w, start, "tensor", "", "comma-separated numeric list")
		return
	}
	tensor, err := parseCSVFloats(raw)
	if err != nil {
		s.writeValidationError(w, start, "tensor", raw, "comma-separated numeric list")
		return
	}

	if cached, hit := s.gaugeCache.Get(raw); hit {
		s.writeJSON(w, http.StatusOK, start, map[string]any{"data": cached, "cached": true})
		return
	}

	result, err := gauge.WNBATOR(tensor)
	if err != nil {
		s.writeValidationError(w, start, "tensor", raw, err.Error())
		return
	}
	s.gaugeCache.Set(raw, result, gaugeCacheTTL)
	s.writeJSON(w, http.StatusOK, start, map[string]any{"data": result, "cached": false})
}

// handleMaparse detects curves over posted points, or falls back to the auto
// detector over bare prices. Results cache for 300 s.
func (s *TESServer) handleMaparse(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	var body struct {
		Points      [][2]float64 `json:"points"`
		Prices      []float64    `json:"prices"`
		Sensitivity float64      `json:"sensitivity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeValidationError(w, start, "body", "", "JSON with points or prices")
		return
	}
	if body.Sensitivity == 0 {
		body.Sensitivity = 0.5
	}

	cacheKey := fmt.Sprintf("maparse|%v|%v|%v", body.Points, body.Prices, body.Sensitivity)
	if cached, hit := s.aiCache.Get(cacheKey); hit {
		s.writeJSON(w, http.StatusOK, start, map[string]any{"data": cached, "cached": true})
		return
	}

	var result any
	var err error
	if len(body.Points) > 0 {
		result, err = maparse.DetectCurves(body.Points, body.Sensitivity)
	} else if len(body.Prices) > 0 {
		result, err = maparse.Auto(body.Prices)
	} else {
		s.writeValidationError(w, start, "body", "", "either points or prices required")
		return
	}
	if err != nil {
		s.writeValidationError(w, start, "body", "", err.Error())
		return
	}

	s.metrics.IncDetections()
	s.aiCache.Set(cacheKey, result, aiCacheTTL)
	s.writeJSON(w, http.StatusOK, start, map[string]any{"data": result, "cached": false})
}

// handleModelStatus reports model cache ages.
func (s *TESServer) handleModelStatus(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"models": s.modelCache.Status("curve-detector", "auto-maparse"),
	})
}

// handleValidateThreshold parses a threshold expression; malformed input is a
// 400, collaborator errors never escape as panics.
func (s *TESServer) handleValidateThreshold(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	expr := r.URL.Query().Get("expr")
	if expr == "" {
		var body struct {
			Expr string `json:"expr"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			expr = body.Expr
		}
	}

	result, err := books.ValidateThreshold(expr)
	if err != nil {
		s.writeValidationError(w, start, "expr", expr, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, start, map[string]any{"data": result})
}

// handleSplineRender renders a path under the 100/min limiter and the 5 s
// deadline.
func (s *TESServer) handleSplineRender(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if d := s.splineLimiter.Allow(clientIP(r)); !d.Allowed {
		s.writeRateLimited(w, start, d, false)
		return
	}

	var body struct {
		Method  string         `json:"method"`
		Points  []spline.Point `json:"points"`
		Samples int            `json:"samples"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeValidationError(w, start, "body", "", "JSON with method, points, samples")
		return
	}
	if body.Method == "" {
		body.Method = spline.MethodCatmullRom
	}
	if body.Samples == 0 {
		body.Samples = splineFramePoints
	}

	var rendered []spline.Point
	err := runWithTimeout(r, splineRenderTimeout, func(ctx context.Context) error {
		var renderErr error
		rendered, renderErr = s.splineEngine.Render(body.Method, body.Points, body.Samples)
		return renderErr
	})
	if errors.Is(err, context.DeadlineExceeded) {
		s.metrics.IncRequestTimeout()
		s.writeError(w, http.StatusRequestTimeout, start, "spline render timed out")
		return
	}
	if err != nil {
		s.writeValidationError(w, start, "body", "", err.Error())
		return
	}

	s.metrics.IncRenders()
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"method":  body.Method,
		"samples": body.Samples,
		"data":    rendered,
	})
}

// handleSplinePredict extrapolates beyond posted control points.
func (s *TESServer) handleSplinePredict(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	var body struct {
		Points  []spline.Point `json:"points"`
		Horizon int            `json:"horizon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeValidationError(w, start, "body", "", "JSON with points, horizon")
		return
	}
	if body.Horizon == 0 {
		body.Horizon = 10
	}

	predicted, err := s.splineEngine.Predict(body.Points, body.Horizon)
	if err != nil {
		s.writeValidationError(w, start, "body", "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, start, map[string]any{"horizon": body.Horizon, "data": predicted})
}

// handleSplinePresetStore persists a named preset as YAML.
func (s *TESServer) handleSplinePresetStore(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	var preset spline.Preset
	if err := json.NewDecoder(r.Body).Decode(&preset); err != nil {
		s.writeValidationError(w, start, "body", "", "JSON preset {name, method, samples, points}")
		return
	}

	path, err := s.presets.Store(preset)
	if err != nil {
		s.writeValidationError(w, start, "preset", preset.Name, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, start, map[string]any{"stored": preset.Name, "path": path})
}

// handleLifecycleExport dumps current registries for offline inspection.
func (s *TESServer) handleLifecycleExport(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()
	view := s.resolver.Resolve(r.Context())
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"workers":    view,
		"flags":      s.flagsReg.All(),
		"bookmakers": s.booksReg.All(),
		"exportedAt": s.clock.Now().UnixMilli(),
	})
}

// handleLifecycleHealth summarizes subsystem health in one document.
func (s *TESServer) handleLifecycleHealth(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	start := s.clock.Now()
	el := s.eventLoop.Snapshot()
	s.writeJSON(w, http.StatusOK, start, map[string]any{
		"warmupComplete": s.warmup.Complete(),
		"eventLoop":      el.Health,
		"workerPool":     s.pool.Size(),
		"state":          stateString(ServerState(s.state.Load())),
	})
}
