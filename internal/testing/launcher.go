// Package testing provides shared test doubles. Import with an alias
// (conventionally testutil) to avoid clashing with the stdlib testing
// package.
package testing

import (
	"context"
	"os"
	"sync"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/workers"
)

// FakeProcess satisfies workers.Process without spawning anything.
type FakeProcess struct {
	pid      int
	exitCh   chan struct{}
	exitOnce sync.Once
}

// NewFakeProcess returns a live fake with the given pid.
func NewFakeProcess(pid int) *FakeProcess {
	return &FakeProcess{pid: pid, exitCh: make(chan struct{})}
}

func (p *FakeProcess) PID() int { return p.pid }

func (p *FakeProcess) Signal(sig os.Signal) error {
	p.Exit()
	return nil
}

func (p *FakeProcess) Kill() error {
	p.Exit()
	return nil
}

func (p *FakeProcess) Wait() error {
	<-p.exitCh
	return nil
}

// Exit simulates the child terminating.
func (p *FakeProcess) Exit() {
	p.exitOnce.Do(func() { close(p.exitCh) })
}

// FakeLauncher hands out FakeProcesses and records launches.
type FakeLauncher struct {
	mu      sync.Mutex
	nextPID int
	Procs   []*FakeProcess
}

// Launch implements workers.Launcher.
func (l *FakeLauncher) Launch(ctx context.Context, id, workerType string) (workers.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPID++
	p := NewFakeProcess(l.nextPID)
	l.Procs = append(l.Procs, p)
	return p, nil
}
