package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/config"
	testutil "github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/internal/testing"
)

func TestStartStopLifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0 // random port

	srv, err := NewTESServer(cfg, zap.NewNop().Sugar(), Options{
		Launcher:  &testutil.FakeLauncher{},
		PresetDir: filepath.Join(t.TempDir(), "presets"),
	})
	if err != nil {
		t.Fatalf("NewTESServer failed: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	// Wait for the listener to bind
	deadline := time.Now().Add(5 * time.Second)
	for srv.boundPort() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	port := srv.boundPort()
	if port == 0 {
		t.Fatal("server did not bind")
	}

	// Warmup finishes and the gate opens
	deadline = time.Now().Add(5 * time.Second)
	for !srv.warmup.Complete() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !srv.warmup.Complete() {
		t.Fatal("warmup did not complete")
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ready", port))
	if err != nil {
		t.Fatalf("GET /ready failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/ready = %d, want 200", resp.StatusCode)
	}

	// Pool spawned the configured cohort
	if got := srv.pool.Size(); got != cfg.Workers.PoolSize {
		t.Errorf("pool size = %d, want %d", got, cfg.Workers.PoolSize)
	}

	if err := srv.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Start returned %v after Stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Start did not return after Stop")
	}

	// Workers were terminated by the LIFO teardown
	if got := srv.pool.Size(); got != 0 {
		t.Errorf("pool size after Stop = %d, want 0", got)
	}

	// Stop is idempotent
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestShutdownStackLIFO(t *testing.T) {
	ts := newTestServer(t, nil)

	var order []string
	ts.PushShutdown(func(ctx context.Context) error {
		order = append(order, "first-pushed")
		return nil
	})
	ts.PushShutdown(func(ctx context.Context) error {
		order = append(order, "second-pushed")
		return nil
	})

	if err := ts.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(order) != 2 || order[0] != "second-pushed" || order[1] != "first-pushed" {
		t.Errorf("teardown order = %v, want LIFO", order)
	}
}

func TestStaticManifest(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "feed.csv")
	if err := writeFile(filePath, "a,b\n1,2\n"); err != nil {
		t.Fatal(err)
	}

	ts := newTestServer(t, func(cfg *config.Config, opts *Options) {
		opts.StaticEntries = []StaticEntry{
			{Path: "/static/app.js", ContentType: "application/javascript",
				Bytes: []byte("console.log('tes')"), Cache: CacheMeta{DurationSec: 86400, Immutable: true, Type: "public"}},
			{Path: "/static/feed.csv", ContentType: "text/csv", FilePath: filePath},
		}
	})

	// Immutable entry: buffered bytes, precomputed ETag, immutable cache
	resp := ts.get(t, "/static/app.js", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("app.js = %d, want 200", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("immutable static entry missing ETag")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=86400, immutable" {
		t.Errorf("Cache-Control = %q", cc)
	}
	resp.Body.Close()

	resp = ts.get(t, "/static/app.js", map[string]string{"If-None-Match": etag})
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("revalidation = %d, want 304", resp.StatusCode)
	}
	resp.Body.Close()

	// Streamed entry: Last-Modified and Range support via ServeContent
	resp = ts.get(t, "/static/feed.csv", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feed.csv = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Last-Modified") == "" {
		t.Error("streamed static entry missing Last-Modified")
	}
	resp.Body.Close()

	resp = ts.get(t, "/static/feed.csv", map[string]string{"Range": "bytes=0-2"})
	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("range request = %d, want 206", resp.StatusCode)
	}
	resp.Body.Close()

	// Paths outside the manifest never reach the filesystem
	resp = ts.get(t, "/static/../../etc/passwd", nil)
	if resp.StatusCode == http.StatusOK {
		t.Error("traversal path must not serve")
	}
	resp.Body.Close()
}

func TestManifestRejectsAmbiguousEntry(t *testing.T) {
	_, err := NewStaticManifest([]StaticEntry{{Path: "/x", Bytes: []byte("b"), FilePath: "/also"}})
	if err == nil {
		t.Error("entry with both bytes and file should be rejected")
	}
	_, err = NewStaticManifest([]StaticEntry{{Path: "/x"}})
	if err == nil {
		t.Error("entry with neither bytes nor file should be rejected")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
