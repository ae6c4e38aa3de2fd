package server

import (
	"context"
	"sync"
	"time"
)

// Event-loop health thresholds. A tick at or over longTickThreshold blows the
// 60 FPS budget.
const (
	probeInterval     = 10 * time.Millisecond
	longTickThreshold = 16 * time.Millisecond
)

// EventLoopMetrics is the wire shape of /api/dev/event-loop.
type EventLoopMetrics struct {
	TickCount          int64   `json:"tickCount"`
	LongTickCount      int64   `json:"longTickCount"`
	MaxTickDurationMs  float64 `json:"maxTickDuration"`
	AvgTickDurationMs  float64 `json:"averageTickDuration"`
	LastTickStart      int64   `json:"lastTickStart"` // epoch ms
	LastTickDurationMs float64 `json:"lastTickDuration"`
	Health             string  `json:"health"` // green | yellow | red
}

// EventLoopMonitor approximates event-loop lag in a threaded runtime with a
// periodic self-probe: a timer fires every probeInterval and the observed
// latency between scheduled and actual wake is the "tick duration". Single
// producer (the probe goroutine), many readers.
type EventLoopMonitor struct {
	mu sync.RWMutex

	tickCount     int64
	longTickCount int64
	maxTick       time.Duration
	totalTick     time.Duration
	lastTickStart time.Time
	lastTick      time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEventLoopMonitor returns a stopped monitor; call Start.
func NewEventLoopMonitor() *EventLoopMonitor {
	return &EventLoopMonitor{}
}

// Start launches the probe goroutine.
func (elm *EventLoopMonitor) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	elm.cancel = cancel
	elm.done = make(chan struct{})

	go func() {
		defer close(elm.done)
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()

		expected := time.Now().Add(probeInterval)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				lag := now.Sub(expected)
				if lag < 0 {
					lag = 0
				}
				elm.record(now, lag)
				expected = now.Add(probeInterval)
			}
		}
	}()
}

// Stop halts the probe and waits for it to exit.
func (elm *EventLoopMonitor) Stop() {
	if elm.cancel == nil {
		return
	}
	elm.cancel()
	<-elm.done
}

// record is called from the probe goroutine and from the RecordTick test hook.
func (elm *EventLoopMonitor) record(start time.Time, d time.Duration) {
	elm.mu.Lock()
	defer elm.mu.Unlock()

	elm.tickCount++
	elm.totalTick += d
	if d >= longTickThreshold {
		elm.longTickCount++
	}
	if d > elm.maxTick {
		elm.maxTick = d
	}
	elm.lastTickStart = start
	elm.lastTick = d
}

// RecordTick feeds an observation directly. Test hook; production ticks come
// from the probe goroutine.
func (elm *EventLoopMonitor) RecordTick(start time.Time, d time.Duration) {
	elm.record(start, d)
}

// Snapshot returns current metrics with derived health.
func (elm *EventLoopMonitor) Snapshot() EventLoopMetrics {
	elm.mu.RLock()
	defer elm.mu.RUnlock()

	var avg float64
	if elm.tickCount > 0 {
		avg = float64(elm.totalTick.Microseconds()) / float64(elm.tickCount) / 1000
	}

	health := "green"
	if elm.tickCount > 0 {
		longRatio := float64(elm.longTickCount) / float64(elm.tickCount)
		switch {
		case longRatio > 0.10 || elm.maxTick >= 10*longTickThreshold:
			health = "red"
		case longRatio > 0.01 || elm.maxTick >= 3*longTickThreshold:
			health = "yellow"
		}
	}

	return EventLoopMetrics{
		TickCount:          elm.tickCount,
		LongTickCount:      elm.longTickCount,
		MaxTickDurationMs:  float64(elm.maxTick.Microseconds()) / 1000,
		AvgTickDurationMs:  avg,
		LastTickStart:      elm.lastTickStart.UnixMilli(),
		LastTickDurationMs: float64(elm.lastTick.Microseconds()) / 1000,
		Health:             health,
	}
}
