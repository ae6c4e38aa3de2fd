package workers

import (
	"sync/atomic"
)

// SharedMap is the process-wide worker state map. Single-writer discipline:
// writers publish a fresh map via atomic pointer swap, readers get lock-free
// snapshots. Entries live under string keys; the registry uses "state".
type SharedMap struct {
	current atomic.Pointer[map[string]map[string]Worker]
}

// StateKey is the well-known key the registry view lives under.
const StateKey = "state"

// NewSharedMap returns an empty shared map.
func NewSharedMap() *SharedMap {
	sm := &SharedMap{}
	empty := make(map[string]map[string]Worker)
	sm.current.Store(&empty)
	return sm
}

// Get returns the worker map under key, or nil if absent.
func (sm *SharedMap) Get(key string) map[string]Worker {
	m := *sm.current.Load()
	return m[key]
}

// Set publishes a new worker map under key. Copy-on-write: the previous
// snapshot stays valid for in-flight readers.
func (sm *SharedMap) Set(key string, workers map[string]Worker) {
	for {
		old := sm.current.Load()
		next := make(map[string]map[string]Worker, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[key] = workers
		if sm.current.CompareAndSwap(old, &next) {
			return
		}
	}
}
