package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket timeout constants following Gorilla best practices
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20

	// Per-client send buffer; when full the oldest queued frame is dropped
	clientSendBuffer = 64
)

// deflateRatio approximates per-message-deflate output size. The protocol
// layer does not expose real compressed lengths, so reporting uses this
// fixed ratio.
const deflateRatio = 0.3

// CompressionMetrics is the per-client accounting surfaced in reports.
type CompressionMetrics struct {
	UncompressedBytes int64   `json:"uncompressedBytes"`
	CompressedBytes   float64 `json:"compressedBytes"`
	MessageCount      int64   `json:"messageCount"`
}

// Client is one WebSocket connection, owned by its handler goroutines.
type Client struct {
	server *TESServer
	conn   *websocket.Conn
	send   chan []byte
	id     string
	topic  Topic

	closeOnce sync.Once

	compMu sync.Mutex
	comp   CompressionMetrics
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// queue enqueues a marshaled frame; when the buffer is full the oldest
// queued frame is dropped so slow readers lag rather than stall the sender.
func (c *Client) queue(frame []byte) {
	select {
	case c.send <- frame:
		return
	default:
	}
	// Buffer full: drop the oldest and retry once
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- frame:
	default:
	}
}

// recordSend updates compression accounting for one outbound frame.
func (c *Client) recordSend(n int) {
	c.compMu.Lock()
	c.comp.UncompressedBytes += int64(n)
	c.comp.CompressedBytes += float64(n) * deflateRatio
	c.comp.MessageCount++
	c.compMu.Unlock()
}

// Compression returns a copy of the client's metrics.
func (c *Client) Compression() CompressionMetrics {
	c.compMu.Lock()
	defer c.compMu.Unlock()
	return c.comp
}

// newUpgrader builds a per-path upgrader with subprotocol preference order.
func (s *TESServer) newUpgrader(subprotocols ...string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
		Subprotocols:      subprotocols,
		CheckOrigin:       func(r *http.Request) bool { return true },
	}
}

// registerClient installs a client in the fan-out maps.
func (s *TESServer) registerClient(c *Client) bool {
	s.wsMu.Lock()
	if len(s.wsClients) >= MaxClients {
		s.wsMu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection", "client_id", c.id)
		c.conn.Close()
		return false
	}
	s.wsClients[c] = true
	s.topicCounts[c.topic]++
	if c.topic == TopicSplineLive {
		s.splineClients[c] = true
		s.ensureSplineLoopLocked()
	}
	total := len(s.wsClients)
	s.wsMu.Unlock()

	s.metrics.TrackWebSocketOpen()
	s.logger.Infow("WebSocket client connected",
		"client_id", c.id,
		"topic", string(c.topic),
		"total_clients", total,
	)
	return true
}

// unregisterClient removes a client and tears down its accounting.
func (s *TESServer) unregisterClient(c *Client) {
	s.wsMu.Lock()
	if _, ok := s.wsClients[c]; !ok {
		s.wsMu.Unlock()
		return
	}
	delete(s.wsClients, c)
	delete(s.splineClients, c)
	if s.topicCounts[c.topic] > 0 {
		s.topicCounts[c.topic]--
	}
	total := len(s.wsClients)
	s.wsMu.Unlock()

	c.close()
	s.metrics.TrackWebSocketClose()
	s.logger.Infow("WebSocket client disconnected",
		"client_id", c.id,
		"topic", string(c.topic),
		"total_clients", total,
	)
}

// SubscriberCounts snapshots per-topic counts.
func (s *TESServer) SubscriberCounts() map[Topic]int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	out := make(map[Topic]int, len(AllTopics))
	for _, t := range AllTopics {
		out[t] = s.topicCounts[t]
	}
	return out
}

// SplineClientCount reports connected spline-live clients.
func (s *TESServer) SplineClientCount() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.splineClients)
}

// serveClient runs the read and write pumps until either exits.
func (s *TESServer) serveClient(c *Client, onMessage func([]byte)) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump(onMessage)
	}()
}

// readPump drains inbound frames until the connection dies.
func (c *Client) readPump(onMessage func([]byte)) {
	defer func() {
		c.server.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.server.pingLog.Do(func() {
			c.server.logger.Debugw("Pong received", "client_id", c.id)
		})
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.logger.Warnw("WebSocket read error",
					"client_id", c.id,
					"error", err,
				)
			}
			return
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}

// writePump owns all writes on the connection: queued frames and pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.server.logger.Debugw("WebSocket write error",
					"client_id", c.id,
					"error", err,
				)
				return
			}
			c.recordSend(len(frame))
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.server.pingLog.Do(func() {
				c.server.logger.Debugw("Ping sent", "client_id", c.id)
			})
		}
	}
}

// sendJSON marshals and queues one envelope.
func (c *Client) sendJSON(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		c.server.logger.Debugw("Failed to marshal WS frame", "client_id", c.id, "error", err)
		return
	}
	c.queue(frame)
}

// upgradeAndRegister performs the shared upgrade path.
func (s *TESServer) upgradeAndRegister(w http.ResponseWriter, r *http.Request, topic Topic, subprotocols ...string) (*Client, bool) {
	upgrader := s.newUpgrader(subprotocols...)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "path", r.URL.Path, "error", err)
		return nil, false
	}

	c := &Client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		id:     fmt.Sprintf("%s_%d", r.RemoteAddr, s.clock.Now().UnixNano()),
		topic:  topic,
	}
	if !s.registerClient(c) {
		return nil, false
	}
	return c, true
}

// handleTelemetryWS streams worker telemetry. Unknown inbound types are
// ignored.
func (s *TESServer) handleTelemetryWS(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	c, ok := s.upgradeAndRegister(w, r, TopicWorkers, "telemetry-v2", "telemetry-v1")
	if !ok {
		return
	}

	c.sendJSON(map[string]any{
		"type":        "connection",
		"topic":       string(TopicWorkers),
		"subprotocol": c.conn.Subprotocol(),
	})
	c.sendJSON(map[string]any{
		"type":    "registry",
		"workers": s.resolver.Resolve(r.Context()),
	})

	s.serveClient(c, func(message []byte) {
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			return
		}
		switch envelope.Type {
		case "registry_request":
			c.sendJSON(map[string]any{
				"type":    "registry",
				"workers": s.resolver.Resolve(s.ctx),
			})
		default:
			// Telemetry ignores unknown types
		}
	})
}

// handleSplineWS joins the 60 FPS spline stream.
func (s *TESServer) handleSplineWS(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	c, ok := s.upgradeAndRegister(w, r, TopicSplineLive, "spline-v2", "spline-v1")
	if !ok {
		return
	}

	c.sendJSON(map[string]any{
		"type":        "connection",
		"topic":       string(TopicSplineLive),
		"subprotocol": c.conn.Subprotocol(),
		"fps":         60,
	})

	// Default path echoes unknown envelopes back
	s.serveClient(c, func(message []byte) {
		c.queue(message)
	})
}

// handleVersionWS is the privileged upgrade: one-time CSRF token via query
// parameter (browser limitation) or header, and a Host check for
// non-localhost deployments.
func (s *TESServer) handleVersionWS(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	start := s.clock.Now()

	if !s.hostAllowed(r.Host) {
		s.logEvent("security", "ws_host_rejected", "path", r.URL.Path, "host", r.Host)
		s.writeError(w, http.StatusBadRequest, start, "host header mismatch")
		return
	}

	token := r.URL.Query().Get("csrf")
	if token == "" {
		token = r.Header.Get(headerWSCSRF)
	}
	if err := s.csrf.Consume(token); err != nil {
		s.logEvent("security", "ws_csrf_rejected", "path", r.URL.Path, "reason", err.Error())
		s.writeError(w, http.StatusForbidden, start, err.Error())
		return
	}

	c, ok := s.upgradeAndRegister(w, r, TopicVersionUpdates, "tes-ui-v2", "tes-ui-v1")
	if !ok {
		return
	}

	c.sendJSON(map[string]any{
		"type":        "connection",
		"topic":       string(TopicVersionUpdates),
		"subprotocol": c.conn.Subprotocol(),
	})

	s.serveClient(c, func(message []byte) {
		c.queue(message)
	})
}

// handleMetricsWS streams server metrics to this client every 500 ms. No
// subprotocol negotiation on this path.
func (s *TESServer) handleMetricsWS(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	c, ok := s.upgradeAndRegister(w, r, TopicStatusLive)
	if !ok {
		return
	}

	// Independent per-client ticker
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(metricsStreamInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.wsMu.Lock()
				_, alive := s.wsClients[c]
				s.wsMu.Unlock()
				if !alive {
					return
				}
				c.sendJSON(s.serverMetricsDoc())
			}
		}
	}()

	s.serveClient(c, nil)
}
