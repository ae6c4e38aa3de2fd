package version

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// RegistryWatcher watches the version registry file and reloads it on change,
// notifying callbacks so the server can broadcast version updates.
type RegistryWatcher struct {
	registry       *Registry
	watcher        *fsnotify.Watcher
	logger         *zap.SugaredLogger
	mu             sync.Mutex
	callbacks      []func()
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	done           chan struct{}
	closeOnce      sync.Once
}

// NewRegistryWatcher creates a watcher for the registry's backing file.
func NewRegistryWatcher(registry *Registry, log *zap.SugaredLogger) (*RegistryWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := watcher.Add(registry.Path()); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch version registry %s", registry.Path())
	}

	rw := &RegistryWatcher{
		registry:       registry,
		watcher:        watcher,
		logger:         log,
		debouncePeriod: 500 * time.Millisecond, // Debounce rapid file changes
		done:           make(chan struct{}),
	}
	go rw.run()
	return rw, nil
}

// OnReload registers a callback invoked after each successful reload.
func (rw *RegistryWatcher) OnReload(fn func()) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.callbacks = append(rw.callbacks, fn)
}

func (rw *RegistryWatcher) run() {
	for {
		select {
		case <-rw.done:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rw.scheduleReload()
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warnw("Version registry watcher error", "error", err)
		}
	}
}

func (rw *RegistryWatcher) scheduleReload() {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.debounceTimer != nil {
		rw.debounceTimer.Stop()
	}
	rw.debounceTimer = time.AfterFunc(rw.debouncePeriod, func() {
		if err := rw.registry.Reload(); err != nil {
			rw.logger.Warnw("Version registry reload failed",
				"path", rw.registry.Path(),
				"error", err,
			)
			return
		}
		rw.logger.Infow("Version registry reloaded", "path", rw.registry.Path())

		rw.mu.Lock()
		callbacks := make([]func(), len(rw.callbacks))
		copy(callbacks, rw.callbacks)
		rw.mu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
	})
}

// Close stops watching. Idempotent.
func (rw *RegistryWatcher) Close() error {
	var err error
	rw.closeOnce.Do(func() {
		close(rw.done)
		err = rw.watcher.Close()
	})
	return err
}
