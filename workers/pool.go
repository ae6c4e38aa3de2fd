package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

const (
	// Grace period between SIGTERM and SIGKILL on terminate
	terminateGrace = 3 * time.Second

	// DefaultWorkerType is used when scale requests omit a type
	DefaultWorkerType = "api"

	// MaxPoolSize bounds runaway scale requests
	MaxPoolSize = 64
)

// Pool owns the worker child processes. It is the single writer of worker
// state; every read path goes through View() snapshots.
type Pool struct {
	launcher Launcher
	logger   *zap.SugaredLogger
	clock    func() time.Time

	mu      sync.Mutex
	workers map[string]*workerState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Monotonic operation counters, read by the metrics store
	TotalSpawns       atomic.Int64
	TotalTerminations atomic.Int64
}

// NewPool creates an empty pool. clock is injectable for tests; nil means
// time.Now.
func NewPool(launcher Launcher, log *zap.SugaredLogger, clock func() time.Time) *Pool {
	if clock == nil {
		clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		launcher: launcher,
		logger:   log,
		clock:    clock,
		workers:  make(map[string]*workerState),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Initialize spawns the initial cohort.
func (p *Pool) Initialize(size int) error {
	if size < 0 || size > MaxPoolSize {
		return errors.Newf("pool size must be in [0,%d], got %d", MaxPoolSize, size)
	}

	for i := 0; i < size; i++ {
		if _, err := p.Spawn(DefaultWorkerType); err != nil {
			return errors.Wrapf(err, "initial cohort spawn %d/%d", i+1, size)
		}
	}

	p.logger.Infow("Worker pool initialized", "size", size)
	return nil
}

// Spawn launches one worker and returns its id.
func (p *Pool) Spawn(workerType string) (string, error) {
	if workerType == "" {
		workerType = DefaultWorkerType
	}

	p.mu.Lock()
	if len(p.workers) >= MaxPoolSize {
		p.mu.Unlock()
		return "", errors.Newf("pool at capacity (%d workers)", MaxPoolSize)
	}
	p.mu.Unlock()

	id := "worker-" + uuid.NewString()[:8]
	now := p.clock()

	ws := &workerState{
		view: Worker{
			ID:        id,
			Type:      workerType,
			Status:    StatusSpawning,
			CreatedAt: now,
		},
		doneC: make(chan struct{}),
	}

	proc, err := p.launcher.Launch(p.ctx, id, workerType)
	if err != nil {
		return "", errors.Wrapf(err, "failed to launch worker %s", id)
	}
	ws.proc = proc
	ws.mu.Lock()
	ws.view.PID = proc.PID()
	ws.mu.Unlock()

	p.mu.Lock()
	p.workers[id] = ws
	p.mu.Unlock()

	// Monitor goroutine owns the single Wait call
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := proc.Wait()
		close(ws.doneC)

		ws.mu.Lock()
		status := ws.view.Status
		ws.mu.Unlock()

		if status != StatusTerminating && status != StatusTerminated {
			// Unrequested exit is an error state until the pool reaps it
			ws.setStatus(StatusError, p.clock())
			p.logger.Warnw("Worker exited unexpectedly",
				"worker_id", id,
				"error", err,
			)
		}
		ws.setStatus(StatusTerminated, p.clock())
	}()

	ws.setStatus(StatusIdle, now)
	p.TotalSpawns.Add(1)

	p.logger.Infow("Worker spawned",
		"worker_id", id,
		"type", workerType,
		"pid", ws.snapshot().PID,
	)
	return id, nil
}

// Terminate stops one worker by id.
func (p *Pool) Terminate(id string) error {
	p.mu.Lock()
	ws, ok := p.workers[id]
	p.mu.Unlock()
	if !ok {
		return errors.Newf("unknown worker %q", id)
	}

	ws.mu.Lock()
	if ws.view.Status == StatusTerminating || ws.view.Status == StatusTerminated {
		ws.mu.Unlock()
		return nil
	}
	ws.mu.Unlock()

	ws.setStatus(StatusTerminating, p.clock())
	terminateProcess(ws.proc, ws.doneC, terminateGrace)
	ws.setStatus(StatusTerminated, p.clock())
	p.TotalTerminations.Add(1)

	p.logger.Infow("Worker terminated", "worker_id", id)
	return nil
}

// TerminateOldest stops up to count workers, oldest first. Returns the ids
// actually terminated.
func (p *Pool) TerminateOldest(count int) []string {
	p.mu.Lock()
	var live []*workerState
	for _, ws := range p.workers {
		view := ws.snapshot()
		if view.Status != StatusTerminated && view.Status != StatusTerminating {
			live = append(live, ws)
		}
	}
	p.mu.Unlock()

	// Oldest first
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			if live[j].snapshot().CreatedAt.Before(live[i].snapshot().CreatedAt) {
				live[i], live[j] = live[j], live[i]
			}
		}
	}

	var terminated []string
	for _, ws := range live {
		if len(terminated) >= count {
			break
		}
		id := ws.snapshot().ID
		if err := p.Terminate(id); err == nil {
			terminated = append(terminated, id)
		}
	}
	return terminated
}

// View returns a read-consistent snapshot of all workers.
func (p *Pool) View() RegistryView {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]Worker, len(p.workers))
	for id, ws := range p.workers {
		out[id] = ws.snapshot()
	}
	return RegistryView{
		Workers: out,
		Summary: Summarize(out),
		Source:  "pool",
	}
}

// Get returns one worker's snapshot.
func (p *Pool) Get(id string) (Worker, bool) {
	p.mu.Lock()
	ws, ok := p.workers[id]
	p.mu.Unlock()
	if !ok {
		return Worker{}, false
	}
	return ws.snapshot(), true
}

// MarkWorking flips a worker into the working state with the given queue
// depth. Called by the dispatch path when jobs are assigned.
func (p *Pool) MarkWorking(id string, queueDepth int) error {
	return p.markStatus(id, StatusWorking, queueDepth)
}

// MarkIdle returns a worker to idle after its queue drains.
func (p *Pool) MarkIdle(id string) error {
	return p.markStatus(id, StatusIdle, 0)
}

func (p *Pool) markStatus(id, status string, queueDepth int) error {
	p.mu.Lock()
	ws, ok := p.workers[id]
	p.mu.Unlock()
	if !ok {
		return errors.Newf("unknown worker %q", id)
	}

	view := ws.snapshot()
	if view.Status == StatusTerminated || view.Status == StatusTerminating {
		return errors.Newf("worker %q is %s", id, view.Status)
	}
	ws.setStatus(status, p.clock())
	ws.setQueueDepth(queueDepth)
	return nil
}

// Size returns the count of non-terminated workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ws := range p.workers {
		s := ws.snapshot().Status
		if s != StatusTerminated && s != StatusTerminating {
			n++
		}
	}
	return n
}

// Shutdown terminates every worker and waits for monitors to drain, bounded
// by ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		_ = p.Terminate(id)
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Infow("Worker pool shut down", "terminated", len(ids))
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), fmt.Sprintf("worker pool shutdown timed out with %d workers", len(ids)))
	}
}
