package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/internal/httpclient"
)

func TestResolveOrderSharedMapFirst(t *testing.T) {
	sm := NewSharedMap()
	sm.Set(StateKey, map[string]Worker{"worker-a": {ID: "worker-a", Status: StatusWorking, QueueDepth: 2}})

	rr := NewRegistryResolver(sm, nil, httpclient.NewProbeClient(50*time.Millisecond), 1, zap.NewNop().Sugar())
	view := rr.Resolve(context.Background())

	if view.Source != "shared-map" {
		t.Errorf("source = %s, want shared-map", view.Source)
	}
	if view.Summary.Working != 1 || view.Summary.TotalQueueDepth != 2 {
		t.Errorf("summary = %+v", view.Summary)
	}
}

func TestResolveFallsBackToPoolAndWritesThrough(t *testing.T) {
	pool, _ := newTestPool(t)
	if _, err := pool.Spawn("api"); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	sm := NewSharedMap()
	rr := NewRegistryResolver(sm, pool, httpclient.NewProbeClient(50*time.Millisecond), 1, zap.NewNop().Sugar())

	view := rr.Resolve(context.Background())
	if view.Source != "pool" {
		t.Errorf("source = %s, want pool", view.Source)
	}

	// Write-through: second resolve hits the shared map
	view = rr.Resolve(context.Background())
	if view.Source != "shared-map" {
		t.Errorf("second resolve source = %s, want shared-map", view.Source)
	}
}

func TestResolveProbesSibling(t *testing.T) {
	sibling := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/registry" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]Worker{
			"worker-remote": {ID: "worker-remote", Status: StatusIdle},
		})
	}))
	defer sibling.Close()

	port, err := strconv.Atoi(strings.TrimPrefix(sibling.URL, "http://127.0.0.1:"))
	if err != nil {
		t.Fatalf("failed to parse test server port: %v", err)
	}

	sm := NewSharedMap()
	rr := NewRegistryResolver(sm, nil, httpclient.NewProbeClient(time.Second), port, zap.NewNop().Sugar())

	view := rr.Resolve(context.Background())
	if view.Source != "sibling" {
		t.Fatalf("source = %s, want sibling", view.Source)
	}
	if _, ok := view.Workers["worker-remote"]; !ok {
		t.Error("sibling worker missing from view")
	}

	if !rr.SiblingAvailable(context.Background()) {
		t.Error("SiblingAvailable should be true while test server runs")
	}
}

func TestResolveEmptyWhenNothingAnswers(t *testing.T) {
	sm := NewSharedMap()
	// Port 1 should refuse connections quickly
	rr := NewRegistryResolver(sm, nil, httpclient.NewProbeClient(100*time.Millisecond), 1, zap.NewNop().Sugar())

	view := rr.Resolve(context.Background())
	if view.Source != "empty" {
		t.Errorf("source = %s, want empty", view.Source)
	}
	if len(view.Workers) != 0 {
		t.Errorf("workers = %+v, want empty", view.Workers)
	}
}
