package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/internal/httpclient"
)

// RegistryResolver resolves the worker registry view through the documented
// lookup order: shared map, embedded pool, sibling telemetry service, empty.
// Every hit from a lower tier is written through to the shared map.
type RegistryResolver struct {
	shared  *SharedMap
	pool    *Pool // nil when the pool runs out of process
	probe   *httpclient.ProbeClient
	apiPort int
	logger  *zap.SugaredLogger
}

// NewRegistryResolver wires the lookup chain. pool may be nil.
func NewRegistryResolver(shared *SharedMap, pool *Pool, probe *httpclient.ProbeClient, apiPort int, log *zap.SugaredLogger) *RegistryResolver {
	return &RegistryResolver{
		shared:  shared,
		pool:    pool,
		probe:   probe,
		apiPort: apiPort,
		logger:  log,
	}
}

// Resolve returns the registry view from the first source that has one.
func (rr *RegistryResolver) Resolve(ctx context.Context) RegistryView {
	// 1. Process-wide shared map
	if workers := rr.shared.Get(StateKey); workers != nil {
		return RegistryView{Workers: workers, Summary: Summarize(workers), Source: "shared-map"}
	}

	// 2. Embedded pool
	if rr.pool != nil {
		view := rr.pool.View()
		rr.shared.Set(StateKey, view.Workers)
		return view
	}

	// 3. Sibling telemetry service
	if view, ok := rr.probeSibling(ctx); ok {
		rr.shared.Set(StateKey, view.Workers)
		return view
	}

	// 4. Empty
	return RegistryView{Workers: map[string]Worker{}, Summary: Summary{}, Source: "empty"}
}

// SiblingAvailable probes the telemetry sibling and reports whether it answered.
// Used by the snapshot endpoint to produce its remediation hint.
func (rr *RegistryResolver) SiblingAvailable(ctx context.Context) bool {
	_, ok := rr.probeSibling(ctx)
	return ok
}

// Publish writes the embedded pool's view through to the shared map. Called
// after scale operations so shared-map readers see fresh state.
func (rr *RegistryResolver) Publish() {
	if rr.pool == nil {
		return
	}
	view := rr.pool.View()
	rr.shared.Set(StateKey, view.Workers)
}

// Invalidate drops the shared-map entry so the next Resolve refetches.
func (rr *RegistryResolver) Invalidate() {
	rr.shared.Set(StateKey, nil)
}

func (rr *RegistryResolver) probeSibling(ctx context.Context) (RegistryView, bool) {
	url := fmt.Sprintf("http://127.0.0.1:%d/registry", rr.apiPort)
	body, err := rr.probe.GetJSON(ctx, url)
	if err != nil {
		rr.logger.Debugw("Telemetry sibling probe failed",
			"url", url,
			"timeout", rr.probe.Timeout(),
			"error", err,
		)
		return RegistryView{}, false
	}

	var workers map[string]Worker
	if err := json.Unmarshal(body, &workers); err != nil {
		rr.logger.Warnw("Telemetry sibling returned malformed registry",
			"url", url,
			"error", err,
		)
		return RegistryView{}, false
	}

	return RegistryView{Workers: workers, Summary: Summarize(workers), Source: "sibling"}, true
}
