package maparse

import (
	"sync"
	"time"
)

// ModelStatus describes one loaded model for /api/ai/models/status.
type ModelStatus struct {
	Name     string    `json:"name"`
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loadedAt"`
	AgeSec   float64   `json:"ageSec"`
}

// ModelCache tracks which detector models have been warmed. The detectors in
// this package are analytic, so "loading" a model amounts to priming its
// parameters once; the cache exists so the status endpoint and warmup can
// observe that it happened.
type ModelCache struct {
	mu     sync.RWMutex
	loaded map[string]time.Time
	now    func() time.Time
}

// NewModelCache returns an empty cache. now is injectable for tests; nil
// means time.Now.
func NewModelCache(now func() time.Time) *ModelCache {
	if now == nil {
		now = time.Now
	}
	return &ModelCache{loaded: make(map[string]time.Time), now: now}
}

// Prime marks a model as loaded.
func (mc *ModelCache) Prime(name string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.loaded[name] = mc.now()
}

// Status reports every known model. Unloaded models report Loaded=false.
func (mc *ModelCache) Status(known ...string) []ModelStatus {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make([]ModelStatus, 0, len(known))
	for _, name := range known {
		st := ModelStatus{Name: name}
		if at, ok := mc.loaded[name]; ok {
			st.Loaded = true
			st.LoadedAt = at
			st.AgeSec = mc.now().Sub(at).Seconds()
		}
		out = append(out, st)
	}
	return out
}
