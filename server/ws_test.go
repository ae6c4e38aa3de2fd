package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(ts *testServer, path string) string {
	return "ws" + strings.TrimPrefix(ts.http.URL, "http") + path
}

func dialWS(t *testing.T, url string, subprotocols []string, header http.Header) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{
		Subprotocols:      subprotocols,
		EnableCompression: true,
		HandshakeTimeout:  2 * time.Second,
	}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s failed: %v", url, err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("bad envelope %q: %v", raw, err)
	}
	return out
}

// Scenario 5: spline live stream lifecycle.
func TestSplineLiveLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	clientA := dialWS(t, wsURL(ts, "/ws/spline-live"), []string{"spline-v1", "spline-v2"}, nil)
	defer clientA.Close()

	// Server prefers spline-v2 regardless of client order
	if proto := clientA.Subprotocol(); proto != "spline-v2" {
		t.Errorf("negotiated %q, want spline-v2", proto)
	}

	// First envelope is the connection frame, then data frames arrive
	env := readEnvelope(t, clientA)
	if env["type"] != "connection" {
		t.Fatalf("first envelope type = %v, want connection", env["type"])
	}

	env = readEnvelope(t, clientA)
	if env["type"] != "data" {
		t.Fatalf("second envelope type = %v, want data", env["type"])
	}
	if env["points"].(float64) != splineFramePoints {
		t.Errorf("points = %v, want %d", env["points"], splineFramePoints)
	}
	metadata := env["metadata"].(map[string]any)
	if metadata["frame"].(float64) < 1 {
		t.Errorf("frame = %v, want >= 1", metadata["frame"])
	}
	if len(env["data"].([]any)) != splineFramePoints {
		t.Errorf("data length = %d, want %d", len(env["data"].([]any)), splineFramePoints)
	}

	// Second client receives frames too
	clientB := dialWS(t, wsURL(ts, "/ws/spline-live"), []string{"spline-v1"}, nil)
	defer clientB.Close()
	if proto := clientB.Subprotocol(); proto != "spline-v1" {
		t.Errorf("clientB negotiated %q, want spline-v1", proto)
	}
	env = readEnvelope(t, clientB) // connection
	env = readEnvelope(t, clientB)
	if env["type"] != "data" {
		t.Errorf("clientB envelope type = %v, want data", env["type"])
	}

	if n := ts.SplineClientCount(); n != 2 {
		t.Errorf("spline clients = %d, want 2", n)
	}

	// A disconnects; broadcast continues for B
	clientA.Close()
	deadline := time.Now().Add(2 * time.Second)
	for ts.SplineClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := ts.SplineClientCount(); n != 1 {
		t.Fatalf("spline clients after A left = %d, want 1", n)
	}
	env = readEnvelope(t, clientB)
	if env["type"] != "data" {
		t.Errorf("post-disconnect envelope = %v, want data", env["type"])
	}

	// B disconnects; the loop drains to zero and stops
	clientB.Close()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ts.wsMu.Lock()
		on := ts.splineLoopOn
		n := len(ts.splineClients)
		ts.wsMu.Unlock()
		if n == 0 && !on {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("spline loop did not stop after last client left")
}

func TestTelemetrySubprotocolAndRegistry(t *testing.T) {
	ts := newTestServer(t, nil)
	if err := ts.InitializeWorkerPool(); err != nil {
		t.Fatal(err)
	}

	conn := dialWS(t, wsURL(ts, "/ws/workers/telemetry"), []string{"telemetry-v2"}, nil)
	defer conn.Close()

	if proto := conn.Subprotocol(); proto != "telemetry-v2" {
		t.Errorf("negotiated %q, want telemetry-v2", proto)
	}

	env := readEnvelope(t, conn)
	if env["type"] != "connection" {
		t.Fatalf("first envelope = %v, want connection", env["type"])
	}
	env = readEnvelope(t, conn)
	if env["type"] != "registry" {
		t.Fatalf("second envelope = %v, want registry", env["type"])
	}

	// Unknown message types are ignored, registry_request is answered
	if err := conn.WriteJSON(map[string]string{"type": "mystery"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "registry_request"}); err != nil {
		t.Fatal(err)
	}
	env = readEnvelope(t, conn)
	if env["type"] != "registry" {
		t.Errorf("reply = %v, want registry (mystery ignored)", env["type"])
	}
}

func TestVersionWSRequiresCSRF(t *testing.T) {
	ts := newTestServer(t, nil)

	// No token: upgrade is refused with 403
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	_, resp, err := dialer.Dial(wsURL(ts, "/api/dev/version-ws"), nil)
	if err == nil {
		t.Fatal("tokenless privileged upgrade should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("tokenless upgrade status = %v, want 403", resp)
	}

	// With a fresh token via query parameter the upgrade succeeds
	httpResp := ts.get(t, "/api/auth/csrf-token", nil)
	token := decodeBody(t, httpResp)["token"].(string)

	conn := dialWS(t, wsURL(ts, "/api/dev/version-ws?csrf="+token), []string{"tes-ui-v2"}, nil)
	defer conn.Close()
	if proto := conn.Subprotocol(); proto != "tes-ui-v2" {
		t.Errorf("negotiated %q, want tes-ui-v2", proto)
	}
	env := readEnvelope(t, conn)
	if env["type"] != "connection" {
		t.Errorf("first envelope = %v, want connection", env["type"])
	}

	// The consumed token cannot be replayed
	_, resp, err = dialer.Dial(wsURL(ts, "/api/dev/version-ws?csrf="+token), nil)
	if err == nil {
		t.Fatal("token replay should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("replay status = %v, want 403", resp)
	}
}

func TestVersionWSRejectsForeignHost(t *testing.T) {
	ts := newTestServer(t, nil)

	httpResp := ts.get(t, "/api/auth/csrf-token", nil)
	token := decodeBody(t, httpResp)["token"].(string)

	// A Host header that is neither localhost nor the advertised API domain
	// is refused before the CSRF token is even consumed
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	_, resp, err := dialer.Dial(wsURL(ts, "/api/dev/version-ws?csrf="+token),
		http.Header{"Host": []string{"evil.example:3002"}})
	if err == nil {
		t.Fatal("foreign-host upgrade should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("foreign-host upgrade status = %v, want 400", resp)
	}

	// The advertised API domain passes the Host check
	conn := dialWS(t, wsURL(ts, "/api/dev/version-ws?csrf="+token), nil,
		http.Header{"Host": []string{ts.cfg.Server.APIDomain}})
	defer conn.Close()
	env := readEnvelope(t, conn)
	if env["type"] != "connection" {
		t.Errorf("first envelope = %v, want connection", env["type"])
	}
}

func TestMetricsStream(t *testing.T) {
	ts := newTestServer(t, nil)
	if err := ts.InitializeWorkerPool(); err != nil {
		t.Fatal(err)
	}

	conn := dialWS(t, wsURL(ts, "/ws/server-metrics/live"), nil, nil)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("no metrics frame within deadline: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("bad metrics doc: %v", err)
	}
	ws := doc["websockets"].(map[string]any)
	subs := ws["subscribers"].(map[string]any)
	for _, key := range []string{"chat", "status", "workers", "version", "spline"} {
		if _, ok := subs[key]; !ok {
			t.Errorf("subscribers missing topic %s", key)
		}
	}
	if ws["totalSubscribers"].(float64) < 1 {
		t.Errorf("totalSubscribers = %v, want >= 1 (this client)", ws["totalSubscribers"])
	}
	if _, ok := doc["memory"]; !ok {
		t.Error("metrics doc missing memory block")
	}
	if _, ok := doc["http"]; !ok {
		t.Error("metrics doc missing http block")
	}
}

func TestCompressionAccounting(t *testing.T) {
	ts := newTestServer(t, nil)

	conn := dialWS(t, wsURL(ts, "/ws/spline-live"), nil, nil)
	defer conn.Close()

	readEnvelope(t, conn) // connection
	readEnvelope(t, conn) // at least one data frame

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		report := ts.CompressionReport()
		for _, m := range report {
			if m.MessageCount >= 1 && m.UncompressedBytes > 0 {
				approx := float64(m.UncompressedBytes) * deflateRatio
				if m.CompressedBytes < approx*0.99 || m.CompressedBytes > approx*1.01 {
					t.Errorf("compressed = %v, want ~0.3 x %d", m.CompressedBytes, m.UncompressedBytes)
				}
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("no compression metrics recorded")
}

func TestSubscriberCountsTrackCloses(t *testing.T) {
	ts := newTestServer(t, nil)

	conn := dialWS(t, wsURL(ts, "/ws/workers/telemetry"), nil, nil)
	if got := ts.SubscriberCounts()[TopicWorkers]; got != 1 {
		t.Errorf("workers subscribers = %d, want 1", got)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for ts.SubscriberCounts()[TopicWorkers] != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := ts.SubscriberCounts()[TopicWorkers]; got != 0 {
		t.Errorf("workers subscribers after close = %d, want 0", got)
	}
}
