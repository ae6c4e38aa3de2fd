package server

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Metrics is the process-wide counter store. Pending gauges pair start/end
// calls; totals are monotonic. All fields are atomics so handlers update them
// lock-free on every exit path.
type Metrics struct {
	pendingRequests   atomic.Int64
	pendingWebSockets atomic.Int64
	activeConnections atomic.Int64

	totalRequests        atomic.Int64
	totalWebSocketOpens  atomic.Int64
	totalWebSocketCloses atomic.Int64

	totalRenders    atomic.Int64
	totalDetections atomic.Int64
	requestTimeouts atomic.Int64
	rateLimitHits   atomic.Int64
	workerPoolSize  atomic.Int64
}

// NewMetrics returns a zeroed store.
func NewMetrics() *Metrics { return &Metrics{} }

// TrackRequestStart must be paired with exactly one TrackRequestEnd on every
// exit path of a handler.
func (m *Metrics) TrackRequestStart() {
	m.pendingRequests.Add(1)
	m.totalRequests.Add(1)
	m.activeConnections.Add(1)
}

// TrackRequestEnd closes out a tracked request.
func (m *Metrics) TrackRequestEnd() {
	if m.pendingRequests.Add(-1) < 0 {
		// Unpaired end; clamp rather than go negative
		m.pendingRequests.Store(0)
	}
	if m.activeConnections.Add(-1) < 0 {
		m.activeConnections.Store(0)
	}
}

// TrackWebSocketOpen records a WS upgrade.
func (m *Metrics) TrackWebSocketOpen() {
	m.pendingWebSockets.Add(1)
	m.totalWebSocketOpens.Add(1)
}

// TrackWebSocketClose records a WS teardown.
func (m *Metrics) TrackWebSocketClose() {
	if m.pendingWebSockets.Add(-1) < 0 {
		m.pendingWebSockets.Store(0)
	}
	m.totalWebSocketCloses.Add(1)
}

// Counter bumps used by specific handlers.
func (m *Metrics) IncRenders()        { m.totalRenders.Add(1) }
func (m *Metrics) IncDetections()     { m.totalDetections.Add(1) }
func (m *Metrics) IncRequestTimeout() { m.requestTimeouts.Add(1) }
func (m *Metrics) IncRateLimitHit()   { m.rateLimitHits.Add(1) }

// SetWorkerPoolSize records the current pool size gauge.
func (m *Metrics) SetWorkerPoolSize(n int) { m.workerPoolSize.Store(int64(n)) }

// MetricsSnapshot is the wire shape served by /api/dev/metrics.
type MetricsSnapshot struct {
	PendingRequests   int64 `json:"pendingRequests"`
	PendingWebSockets int64 `json:"pendingWebSockets"`
	ActiveConnections int64 `json:"activeConnections"`
	Totals            struct {
		Requests        int64 `json:"requests"`
		WebSocketOpens  int64 `json:"websocketOpens"`
		WebSocketCloses int64 `json:"websocketCloses"`
		Renders         int64 `json:"renders"`
		Detections      int64 `json:"detections"`
		WorkerSpawns    int64 `json:"workerSpawns"`
		WorkerTerms     int64 `json:"workerTerminations"`
	} `json:"totals"`
	RequestTimeouts int64 `json:"requestTimeouts"`
	RateLimitHits   int64 `json:"rateLimitHits"`
	WorkerPoolSize  int64 `json:"workerPoolSize"`
	TimestampNs     int64 `json:"timestampNs"`
}

// Snapshot captures all counters at one instant. Spawn/termination totals are
// supplied by the caller because the pool owns them.
func (m *Metrics) Snapshot(now time.Time, spawns, terms int64) MetricsSnapshot {
	var s MetricsSnapshot
	s.PendingRequests = m.pendingRequests.Load()
	s.PendingWebSockets = m.pendingWebSockets.Load()
	s.ActiveConnections = m.activeConnections.Load()
	s.Totals.Requests = m.totalRequests.Load()
	s.Totals.WebSocketOpens = m.totalWebSocketOpens.Load()
	s.Totals.WebSocketCloses = m.totalWebSocketCloses.Load()
	s.Totals.Renders = m.totalRenders.Load()
	s.Totals.Detections = m.totalDetections.Load()
	s.Totals.WorkerSpawns = spawns
	s.Totals.WorkerTerms = terms
	s.RequestTimeouts = m.requestTimeouts.Load()
	s.RateLimitHits = m.rateLimitHits.Load()
	s.WorkerPoolSize = m.workerPoolSize.Load()
	s.TimestampNs = now.UnixNano()
	return s
}

// PendingWebSockets exposes the gauge for subscriber-count fallback.
func (m *Metrics) PendingWebSockets() int64 { return m.pendingWebSockets.Load() }

// MemoryStats is the memory block in the server-metrics stream.
type MemoryStats struct {
	RSS         uint64  `json:"rss"`
	SystemTotal uint64  `json:"systemTotal"`
	SystemAvail uint64  `json:"systemAvailable"`
	UsedPercent float64 `json:"usedPercent"`
}

var (
	selfProc     *process.Process
	selfProcOnce sync.Once
)

// ReadMemoryStats samples process RSS and system memory via gopsutil.
// Best-effort: zero values on platforms where the probe fails.
func ReadMemoryStats() MemoryStats {
	var stats MemoryStats

	if v, err := mem.VirtualMemory(); err == nil {
		stats.SystemTotal = v.Total
		stats.SystemAvail = v.Available
		stats.UsedPercent = v.UsedPercent
	}

	selfProcOnce.Do(func() {
		selfProc, _ = process.NewProcess(int32(os.Getpid()))
	})
	if selfProc != nil {
		if info, err := selfProc.MemoryInfo(); err == nil && info != nil {
			stats.RSS = info.RSS
		}
	}
	return stats
}
