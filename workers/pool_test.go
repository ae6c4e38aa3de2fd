package workers

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// fakeProcess satisfies Process without a real child.
type fakeProcess struct {
	pid      int
	mu       sync.Mutex
	exited   bool
	exitCh   chan struct{}
	exitOnce sync.Once
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, exitCh: make(chan struct{})}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.exit()
	return nil
}

func (p *fakeProcess) Kill() error {
	p.exit()
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exitCh
	return nil
}

func (p *fakeProcess) exit() {
	p.exitOnce.Do(func() { close(p.exitCh) })
}

type fakeLauncher struct {
	mu      sync.Mutex
	nextPID int
	procs   []*fakeProcess
}

func (l *fakeLauncher) Launch(ctx context.Context, id, workerType string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPID++
	p := newFakeProcess(l.nextPID)
	l.procs = append(l.procs, p)
	return p, nil
}

func newTestPool(t *testing.T) (*Pool, *fakeLauncher) {
	t.Helper()
	launcher := &fakeLauncher{}
	pool := NewPool(launcher, zap.NewNop().Sugar(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return pool, launcher
}

func TestInitializeSpawnsCohort(t *testing.T) {
	pool, launcher := newTestPool(t)

	if err := pool.Initialize(3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if got := pool.Size(); got != 3 {
		t.Errorf("pool size = %d, want 3", got)
	}
	if got := pool.TotalSpawns.Load(); got != 3 {
		t.Errorf("TotalSpawns = %d, want 3", got)
	}
	if len(launcher.procs) != 3 {
		t.Errorf("launched %d processes, want 3", len(launcher.procs))
	}

	view := pool.View()
	if view.Summary.Total != 3 || view.Summary.Idle != 3 {
		t.Errorf("summary = %+v, want 3 total, 3 idle", view.Summary)
	}
}

func TestSpawnIncrementsExactlyOnce(t *testing.T) {
	pool, _ := newTestPool(t)

	before := pool.TotalSpawns.Load()
	id, err := pool.Spawn("api")
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if pool.TotalSpawns.Load() != before+1 {
		t.Errorf("TotalSpawns did not increase by exactly 1")
	}

	w, ok := pool.Get(id)
	if !ok {
		t.Fatalf("spawned worker %s not in registry", id)
	}
	if w.Status != StatusIdle {
		t.Errorf("worker status = %s, want idle", w.Status)
	}
	if w.TerminatedAt != nil {
		t.Error("terminatedAt set on live worker")
	}
}

func TestTerminateSetsTerminatedAtOnce(t *testing.T) {
	pool, _ := newTestPool(t)

	id, err := pool.Spawn("api")
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := pool.Terminate(id); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	w, _ := pool.Get(id)
	if w.Status != StatusTerminated {
		t.Errorf("status = %s, want terminated", w.Status)
	}
	if w.TerminatedAt == nil {
		t.Fatal("terminatedAt not set")
	}
	first := *w.TerminatedAt

	// Second terminate is a no-op and must not move terminatedAt
	if err := pool.Terminate(id); err != nil {
		t.Fatalf("second Terminate errored: %v", err)
	}
	w, _ = pool.Get(id)
	if !w.TerminatedAt.Equal(first) {
		t.Error("terminatedAt changed on repeat terminate")
	}

	if got := pool.TotalTerminations.Load(); got != 1 {
		t.Errorf("TotalTerminations = %d, want 1", got)
	}
}

func TestMarkWorkingAndIdle(t *testing.T) {
	pool, _ := newTestPool(t)

	id, _ := pool.Spawn("api")
	if err := pool.MarkWorking(id, 5); err != nil {
		t.Fatalf("MarkWorking failed: %v", err)
	}

	view := pool.View()
	if view.Summary.Working != 1 || view.Summary.TotalQueueDepth != 5 {
		t.Errorf("summary = %+v, want 1 working, depth 5", view.Summary)
	}

	if err := pool.MarkIdle(id); err != nil {
		t.Fatalf("MarkIdle failed: %v", err)
	}
	w, _ := pool.Get(id)
	if w.Status != StatusIdle || w.QueueDepth != 0 {
		t.Errorf("worker = %+v, want idle depth 0", w)
	}

	_ = pool.Terminate(id)
	if err := pool.MarkWorking(id, 1); err == nil {
		t.Error("MarkWorking on terminated worker should fail")
	}
}

func TestTerminateOldest(t *testing.T) {
	launcher := &fakeLauncher{}
	now := time.Unix(1000, 0)
	pool := NewPool(launcher, zap.NewNop().Sugar(), func() time.Time {
		now = now.Add(time.Second)
		return now
	})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := pool.Spawn("api")
		if err != nil {
			t.Fatalf("Spawn failed: %v", err)
		}
		ids = append(ids, id)
	}

	terminated := pool.TerminateOldest(2)
	if len(terminated) != 2 {
		t.Fatalf("terminated %d workers, want 2", len(terminated))
	}
	if terminated[0] != ids[0] || terminated[1] != ids[1] {
		t.Errorf("terminated %v, want oldest-first %v", terminated, ids[:2])
	}
	if pool.Size() != 1 {
		t.Errorf("pool size = %d, want 1", pool.Size())
	}
}

func TestWriteSnapshotGzipRoundTrip(t *testing.T) {
	pool, _ := newTestPool(t)
	id, _ := pool.Spawn("api")

	var buf bytes.Buffer
	rawSize, err := pool.WriteSnapshot(id, &buf)
	if err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	if rawSize == 0 {
		t.Error("raw size should be > 0")
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("output is not gzip: %v", err)
	}
	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("gunzip failed: %v", err)
	}
	if len(raw) != rawSize {
		t.Errorf("uncompressed size = %d, want %d", len(raw), rawSize)
	}
	if !bytes.Contains(raw, []byte(id)) {
		t.Error("snapshot missing worker id")
	}

	if _, err := pool.WriteSnapshot("worker-missing", io.Discard); err == nil {
		t.Error("snapshot of unknown worker should fail")
	}
}

func TestSharedMapWriteThrough(t *testing.T) {
	sm := NewSharedMap()
	if sm.Get(StateKey) != nil {
		t.Fatal("fresh shared map should be empty")
	}

	workers := map[string]Worker{"worker-1": {ID: "worker-1", Status: StatusIdle}}
	sm.Set(StateKey, workers)

	got := sm.Get(StateKey)
	if len(got) != 1 || got["worker-1"].Status != StatusIdle {
		t.Errorf("shared map returned %+v", got)
	}
}
