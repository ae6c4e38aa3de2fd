package workers

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// Process abstracts a launched worker child so tests can run the pool without
// real subprocesses.
type Process interface {
	PID() int
	Signal(sig os.Signal) error
	Wait() error
	Kill() error
}

// Launcher spawns one worker process of the given type.
type Launcher interface {
	Launch(ctx context.Context, id, workerType string) (Process, error)
}

// ExecLauncher launches real child processes: the server binary re-invoked
// with the hidden `worker` subcommand.
type ExecLauncher struct {
	// Binary overrides the executable path; empty means os.Executable().
	Binary string
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) PID() int                  { return p.cmd.Process.Pid }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Wait() error               { return p.cmd.Wait() }
func (p *execProcess) Kill() error               { return p.cmd.Process.Kill() }

// Launch starts `<binary> worker --id=<id> --type=<type>` detached from the
// caller's stdio.
func (l *ExecLauncher) Launch(ctx context.Context, id, workerType string) (Process, error) {
	binary := l.Binary
	if binary == "" {
		var err error
		binary, err = os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve own executable")
		}
	}

	cmd := exec.CommandContext(ctx, binary, "worker", "--id="+id, "--type="+workerType)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to spawn worker %s", id)
	}
	return &execProcess{cmd: cmd}, nil
}

// terminateProcess asks the process to stop and escalates to SIGKILL after
// the grace period. done must be the channel closed by the pool's monitor
// goroutine when Wait returns; Wait itself is only ever called there.
func terminateProcess(p Process, done <-chan struct{}, grace time.Duration) {
	if err := p.Signal(syscall.SIGTERM); err != nil {
		// Already gone
		return
	}

	select {
	case <-done:
	case <-time.After(grace):
		_ = p.Kill()
		<-done
	}
}
