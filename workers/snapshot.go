package workers

import (
	"encoding/json"
	"io"
	"runtime"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
)

// HeapSnapshot is the document streamed by the snapshot endpoint, gzipped.
// Workers in this pool are cooperative children of the same binary, so the
// heap figures come from the pool process's runtime plus the worker's own
// queue accounting; a full child core dump is not part of this surface.
type HeapSnapshot struct {
	WorkerID    string    `json:"workerId"`
	Status      string    `json:"status"`
	QueueDepth  int       `json:"queueDepth"`
	CapturedAt  time.Time `json:"capturedAt"`
	HeapAlloc   uint64    `json:"heapAlloc"`
	HeapSys     uint64    `json:"heapSys"`
	HeapObjects uint64    `json:"heapObjects"`
	NumGC       uint32    `json:"numGC"`
	Goroutines  int       `json:"goroutines"`
}

// WriteSnapshot captures a heap snapshot for the worker and writes it gzipped
// to w. Returns the uncompressed size.
func (p *Pool) WriteSnapshot(id string, w io.Writer) (int, error) {
	worker, ok := p.Get(id)
	if !ok {
		return 0, errors.Newf("unknown worker %q", id)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := HeapSnapshot{
		WorkerID:    worker.ID,
		Status:      worker.Status,
		QueueDepth:  worker.QueueDepth,
		CapturedAt:  p.clock(),
		HeapAlloc:   ms.HeapAlloc,
		HeapSys:     ms.HeapSys,
		HeapObjects: ms.HeapObjects,
		NumGC:       ms.NumGC,
		Goroutines:  runtime.NumGoroutine(),
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal heap snapshot")
	}

	gz := gzip.NewWriter(w)
	if _, err := gz.Write(raw); err != nil {
		return 0, errors.Wrap(err, "failed to write gzipped snapshot")
	}
	if err := gz.Close(); err != nil {
		return 0, errors.Wrap(err, "failed to flush gzipped snapshot")
	}
	return len(raw), nil
}
