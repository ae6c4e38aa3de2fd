package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/version"
)

func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// boundPort reports the actual listen port (meaningful once Start has bound,
// and when port 0 requested a random one).
func (s *TESServer) boundPort() int {
	return int(s.boundPortVal.Load())
}

// Start binds the listener, initializes the worker pool, fires warmup and
// serves until Stop. Blocks; returns on listener failure or shutdown.
func (s *TESServer) Start() error {
	if err := s.InitializeWorkerPool(); err != nil {
		return err
	}
	s.PushShutdown(func(ctx context.Context) error {
		return s.pool.Shutdown(ctx)
	})

	// Warmup runs in the background; /ready gates until it completes
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWarmup()
	}()

	s.startJanitor()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Hostname, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to bind %s", addr)
	}
	s.boundPortVal.Store(int64(listener.Addr().(*net.TCPAddr).Port))

	s.httpServer = &http.Server{
		Handler:     s,
		IdleTimeout: time.Duration(s.cfg.Server.IdleTimeoutSeconds) * time.Second,
	}
	s.PushShutdown(func(ctx context.Context) error {
		// Immediate termination of active connections, per the shutdown
		// contract; workers go down after the listener
		return s.httpServer.Close()
	})

	s.logger.Infow("Server ready",
		"addr", listener.Addr().String(),
		"version", version.Get().Version,
		"production", !s.isDev,
	)

	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// startJanitor sweeps rate-limiter buckets and expired CSRF tokens.
func (s *TESServer) startJanitor() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.dashboardLimiter.Sweep()
				s.splineLimiter.Sweep()
				s.snapshotLimiter.Sweep()
				s.csrf.Sweep()
			}
		}
	}()
}

// Stop runs the shutdown stack in LIFO order under a bounded deadline, then
// cancels the root context and waits for goroutines.
func (s *TESServer) Stop() error {
	if !s.state.CompareAndSwap(int32(ServerStateRunning), int32(ServerStateDraining)) {
		return nil // already stopping
	}
	s.logger.Infow("Initiating server shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	// Close WebSocket connections so pumps unblock before ctx cancellation
	s.wsMu.Lock()
	clients := make([]*Client, 0, len(s.wsClients))
	for c := range s.wsClients {
		clients = append(clients, c)
	}
	s.wsMu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}

	// LIFO teardown stack
	s.shutMu.Lock()
	stack := make([]func(context.Context) error, len(s.shutdown))
	copy(stack, s.shutdown)
	s.shutdown = nil
	s.shutMu.Unlock()

	var firstErr error
	for i := len(stack) - 1; i >= 0; i-- {
		if err := stack[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.eventLoop.Stop()
	if s.registryWatch != nil {
		_ = s.registryWatch.Close()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-ctx.Done():
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit", "timeout", ShutdownTimeout)
	}

	s.state.Store(int32(ServerStateStopped))
	s.logger.Infow("Server shutdown complete")
	return firstErr
}
