package server

import (
	"encoding/json"
	"time"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/spline"
)

// broadcastTopic marshals once and queues the frame to every client on the
// topic. Snapshot iteration: the client set is copied under the lock, sends
// happen outside it.
func (s *TESServer) broadcastTopic(topic Topic, payload any) int {
	frame, err := json.Marshal(payload)
	if err != nil {
		s.logger.Debugw("Failed to marshal broadcast frame", "topic", string(topic), "error", err)
		return 0
	}

	s.wsMu.Lock()
	targets := make([]*Client, 0, len(s.wsClients))
	for c := range s.wsClients {
		if c.topic == topic {
			targets = append(targets, c)
		}
	}
	s.wsMu.Unlock()

	for _, c := range targets {
		c.queue(frame)
	}
	return len(targets)
}

// ensureSplineLoopLocked starts the 60 FPS broadcaster if it is not already
// running. Caller must hold wsMu.
func (s *TESServer) ensureSplineLoopLocked() {
	if s.splineLoopOn {
		return
	}
	s.splineLoopOn = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSplineLoop()
	}()
}

// runSplineLoop renders and fans out frames while at least one spline client
// is connected; it stops when the set empties.
func (s *TESServer) runSplineLoop() {
	ticker := time.NewTicker(splineFrameInterval)
	defer ticker.Stop()

	s.logger.Infow("Spline live broadcast started", "fps", 60)

	for {
		select {
		case <-s.ctx.Done():
			s.stopSplineLoop()
			return
		case <-ticker.C:
			s.wsMu.Lock()
			targets := make([]*Client, 0, len(s.splineClients))
			for c := range s.splineClients {
				targets = append(targets, c)
			}
			if len(targets) == 0 {
				s.splineLoopOn = false
				s.wsMu.Unlock()
				s.logger.Infow("Spline live broadcast stopped", "frames", s.splineFrame.Load())
				return
			}
			s.wsMu.Unlock()

			frame := s.splineFrame.Add(1)
			phase := float64(frame) / 60
			points := s.splineEngine.CatmullRom(spline.Synthetic(splineFramePoints, phase), splineFramePoints)

			now := s.clock.Now()
			payload := map[string]any{
				"type":   "data",
				"t":      now.UnixMilli(),
				"points": len(points),
				"data":   points,
				"metadata": map[string]any{
					"timestamp": now.UnixMilli(),
					"frame":     frame,
				},
			}

			raw, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			for _, c := range targets {
				c.queue(raw)
			}
		}
	}
}

func (s *TESServer) stopSplineLoop() {
	s.wsMu.Lock()
	s.splineLoopOn = false
	s.wsMu.Unlock()
}

// serverMetricsDoc builds the document shared by the REST endpoint and the
// 500 ms live stream.
func (s *TESServer) serverMetricsDoc() map[string]any {
	counts := s.SubscriberCounts()

	total := 0
	for _, n := range counts {
		total += n
	}
	// Fallback: when topic accounting comes up empty but sockets are open,
	// report the pending gauge so the stream never claims zero listeners
	if total == 0 && s.metrics.PendingWebSockets() > 0 {
		total = int(s.metrics.PendingWebSockets())
	}

	snap := s.metrics.Snapshot(s.clock.Now(), s.pool.TotalSpawns.Load(), s.pool.TotalTerminations.Load())

	return map[string]any{
		"timestamp": s.clock.Now().UnixMilli(),
		"http": map[string]any{
			"pendingRequests": snap.PendingRequests,
			"totalRequests":   snap.Totals.Requests,
			"timeouts":        snap.RequestTimeouts,
			"rateLimited":     snap.RateLimitHits,
		},
		"websockets": map[string]any{
			"pending": snap.PendingWebSockets,
			"subscribers": map[string]any{
				"chat":    counts[TopicChat],
				"status":  counts[TopicStatusLive],
				"workers": counts[TopicWorkers],
				"version": counts[TopicVersionUpdates],
				"spline":  counts[TopicSplineLive],
			},
			"totalSubscribers": total,
		},
		"memory": ReadMemoryStats(),
	}
}

// CompressionReport aggregates per-client compression metrics.
func (s *TESServer) CompressionReport() map[string]CompressionMetrics {
	s.wsMu.Lock()
	clients := make([]*Client, 0, len(s.wsClients))
	for c := range s.wsClients {
		clients = append(clients, c)
	}
	s.wsMu.Unlock()

	out := make(map[string]CompressionMetrics, len(clients))
	for _, c := range clients {
		out[c.id] = c.Compression()
	}
	return out
}
