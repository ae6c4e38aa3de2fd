// Package workers manages the pre-spawned worker child processes behind the
// /api/workers endpoints: spawning, scaling, state tracking, registry views
// and heap snapshots.
package workers

import (
	"sync"
	"time"
)

// Worker statuses. Transitions: spawning → idle → working → idle | error,
// with terminating → terminated absorbing from any state.
const (
	StatusSpawning    = "spawning"
	StatusIdle        = "idle"
	StatusWorking     = "working"
	StatusError       = "error"
	StatusTerminating = "terminating"
	StatusTerminated  = "terminated"
)

// Worker is the externally visible state of one worker process.
type Worker struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	QueueDepth   int        `json:"queue_depth"`
	PID          int        `json:"pid,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
}

// workerState is the pool-internal record: public view plus process handle.
type workerState struct {
	mu      sync.Mutex
	view    Worker
	proc    Process
	doneC   chan struct{} // closed when the process exits
	endOnce sync.Once     // terminatedAt is set exactly once
}

func (ws *workerState) snapshot() Worker {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.view
}

// setStatus applies a transition, enforcing the absorbing terminal state.
func (ws *workerState) setStatus(status string, now time.Time) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.view.Status == StatusTerminated {
		return
	}
	ws.view.Status = status
	if status == StatusTerminated {
		ws.endOnce.Do(func() {
			at := now
			ws.view.TerminatedAt = &at
		})
	}
}

func (ws *workerState) setQueueDepth(depth int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if depth < 0 {
		depth = 0
	}
	ws.view.QueueDepth = depth
}

// Summary is the aggregate block returned next to the registry map.
type Summary struct {
	Total           int `json:"total"`
	Idle            int `json:"idle"`
	Working         int `json:"working"`
	Error           int `json:"error"`
	TotalQueueDepth int `json:"total_queue_depth"`
}

// RegistryView is a read-consistent projection of the pool.
type RegistryView struct {
	Workers map[string]Worker `json:"workers"`
	Summary Summary           `json:"summary"`
	Source  string            `json:"source"` // shared-map | pool | sibling | empty
}

// Summarize recomputes the summary from the worker map.
func Summarize(workers map[string]Worker) Summary {
	s := Summary{Total: len(workers)}
	for _, w := range workers {
		switch w.Status {
		case StatusIdle:
			s.Idle++
		case StatusWorking:
			s.Working++
		case StatusError:
			s.Error++
		}
		s.TotalQueueDepth += w.QueueDepth
	}
	return s
}
