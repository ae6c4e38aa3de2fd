package server

import (
	"sync"
	"sync/atomic"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/maparse"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/spline"
)

// WarmupState gates readiness. complete transitions false→true exactly once;
// a task failure records the error but still completes so routing decisions
// unblock; /ready keeps reporting the terminal error.
type WarmupState struct {
	complete atomic.Bool
	mu       sync.Mutex
	err      error
	once     sync.Once
}

// Complete reports whether warmup finished (successfully or not).
func (ws *WarmupState) Complete() bool { return ws.complete.Load() }

// Err returns the terminal warmup error, if any.
func (ws *WarmupState) Err() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.err
}

func (ws *WarmupState) finish(err error) {
	ws.once.Do(func() {
		ws.mu.Lock()
		ws.err = err
		ws.mu.Unlock()
		ws.complete.Store(true)
	})
}

// runWarmup fires the warmup tasks in parallel and completes the state when
// all return. Tasks: every spline method over a 100-point synthetic, and the
// curve detector over a 50-point synthetic.
func (s *TESServer) runWarmup() {
	type task struct {
		name string
		run  func() error
	}

	engine := s.splineEngine
	tasks := []task{
		{"spline:catmull-rom", func() error {
			_, err := engine.Render(spline.MethodCatmullRom, spline.Synthetic(100, 0), 100)
			return err
		}},
		{"spline:cubic", func() error {
			_, err := engine.Render(spline.MethodCubic, spline.Synthetic(100, 0.4), 100)
			return err
		}},
		{"spline:linear", func() error {
			_, err := engine.Render(spline.MethodLinear, spline.Synthetic(100, 0.9), 100)
			return err
		}},
		{"spline:extrapolate", func() error {
			_, err := engine.Render(spline.MethodExtrapolate, spline.Synthetic(100, 1.3), 100)
			return err
		}},
		{"maparse:detector", func() error {
			points := spline.Synthetic(50, 0.2)
			raw := make([][2]float64, len(points))
			for i, p := range points {
				raw[i] = [2]float64(p)
			}
			if _, err := maparse.DetectCurves(raw, 0.5); err != nil {
				return err
			}
			s.modelCache.Prime("curve-detector")
			s.modelCache.Prime("auto-maparse")
			return nil
		}},
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(tasks))
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errCh <- errors.Newf("warmup task %s panicked: %v", t.name, r)
				}
			}()
			if err := t.run(); err != nil {
				errCh <- errors.Wrapf(err, "warmup task %s", t.name)
			}
		}(t)
	}

	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
		s.logger.Errorw("Warmup task failed", "error", err)
	}

	s.warmup.finish(firstErr)
	if firstErr == nil {
		s.logger.Infow("Warmup complete", "tasks", len(tasks))
	} else {
		s.logger.Warnw("Warmup complete with terminal error", "error", firstErr)
	}
}
