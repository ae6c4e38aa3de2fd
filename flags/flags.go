// Package flags is the in-process feature flag registry. Flags are seeded at
// startup and toggled at runtime through the dev endpoints; no persistence.
package flags

import (
	"sort"
	"sync"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Flag is one feature switch.
type Flag struct {
	Key         string    `json:"key"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Enabled     bool      `json:"enabled"`
	Rollout     float64   `json:"rollout"` // [0,1] fraction of traffic
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Registry holds flags behind a mutex; toggles record who flipped them.
type Registry struct {
	mu    sync.RWMutex
	flags map[string]*Flag
	now   func() time.Time
}

// NewRegistry seeds the built-in flags. now is injectable for tests; nil
// means time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := &Registry{flags: make(map[string]*Flag, len(seedFlags)), now: now}
	for _, f := range seedFlags {
		copied := f
		r.flags[f.Key] = &copied
	}
	return r
}

// All returns every flag, sorted by key.
func (r *Registry) All() []Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Flag, 0, len(r.flags))
	for _, f := range r.flags {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ByCategory returns flags in a category, sorted by key.
func (r *Registry) ByCategory(category string) []Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Flag
	for _, f := range r.flags {
		if f.Category == category {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Enable turns a flag on, recording the source of the change.
func (r *Registry) Enable(key, source string) (Flag, error) {
	return r.set(key, source, true)
}

// Disable turns a flag off, recording the source of the change.
func (r *Registry) Disable(key, source string) (Flag, error) {
	return r.set(key, source, false)
}

func (r *Registry) set(key, source string, enabled bool) (Flag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[key]
	if !ok {
		return Flag{}, errors.Newf("unknown feature flag %q", key)
	}
	f.Enabled = enabled
	f.UpdatedBy = source
	f.UpdatedAt = r.now()
	return *f, nil
}

// UpdateRollout sets a flag's rollout fraction.
func (r *Registry) UpdateRollout(key string, rollout float64, source string) (Flag, error) {
	if rollout < 0 || rollout > 1 {
		return Flag{}, errors.Newf("rollout must be in [0,1], got %v", rollout)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[key]
	if !ok {
		return Flag{}, errors.Newf("unknown feature flag %q", key)
	}
	f.Rollout = rollout
	f.UpdatedBy = source
	f.UpdatedAt = r.now()
	return *f, nil
}

var seedFlags = []Flag{
	{Key: "spline-live-v2", Description: "Second-generation spline frame encoding", Category: "streaming", Enabled: true, Rollout: 1},
	{Key: "maparse-auto-fallback", Description: "Fall back to auto maparse when no points supplied", Category: "ai", Enabled: true, Rollout: 1},
	{Key: "worker-snapshot-gzip", Description: "Gzip heap snapshots in flight", Category: "workers", Enabled: true, Rollout: 1},
	{Key: "dashboard-dark-mode", Description: "Dark palette for the dev dashboard", Category: "ui", Enabled: false, Rollout: 0},
	{Key: "shadow-market-feed", Description: "Mirror odds into the shadow-market WS", Category: "streaming", Enabled: false, Rollout: 0.25},
}
