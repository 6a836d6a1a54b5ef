package snapshot

import (
	"context"
	"log/slog"
	"sync"

	"reach/blackbox/internal/rowhash"
	"reach/blackbox/internal/store"
	"reach/blackbox/internal/table"
)

// AsyncPool is a small bounded worker pool for snapshot writes: Capture
// calls that would otherwise block a step's scope exit are submitted here,
// and the final Fingerprint is returned by PendingCapture.Wait once the
// write completes.
type AsyncPool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewAsyncPool starts workers goroutines draining a buffered job queue.
// workers defaults to 2 if <= 0.
func NewAsyncPool(workers int, logger *slog.Logger) *AsyncPool {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &AsyncPool{jobs: make(chan func(), workers*4), logger: logger}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *AsyncPool) worker() {
	for job := range p.jobs {
		job()
	}
}

// PendingCapture is the result handle for a snapshot submitted to the
// pool: Fingerprint is populated synchronously with fingerprints and
// snapshot_pending=true; Wait returns the final one once the write
// completes.
type PendingCapture struct {
	Fingerprint *Fingerprint
	done        chan struct{}
	result      *Fingerprint
}

// Wait blocks until the async write completes and returns the final
// Fingerprint (with snapshot_pending cleared and size/error populated).
func (p *PendingCapture) Wait() *Fingerprint {
	<-p.done
	return p.result
}

// SubmitCapture computes fingerprints synchronously (cheap relative to
// the write) and submits the artifact write to the pool, returning
// immediately with snapshot_pending=true.
func (p *AsyncPool) SubmitCapture(ctx context.Context, st *store.Store, key string, t table.Table, cfg Config) *PendingCapture {
	schemaFP := rowhash.ComputeSchemaFingerprint(t)
	contentFP := rowhash.ComputeContentFingerprint(t, cfg.OrderSensitive)

	fp := &Fingerprint{
		SchemaFP:        schemaFP,
		ContentFP:       contentFP,
		NRows:           t.NumRows(),
		NCols:           len(schemaFP.Cols),
		SnapshotPending: true,
	}

	pc := &PendingCapture{Fingerprint: fp, done: make(chan struct{})}
	p.wg.Add(1)
	p.jobs <- func() {
		defer p.wg.Done()
		defer close(pc.done)

		final, err := Capture(ctx, st, key, t, cfg)
		if err != nil {
			p.logger.Error("snapshot async write failed", "key", key, "error", err)
			final = &Fingerprint{
				SchemaFP:      schemaFP,
				ContentFP:     contentFP,
				NRows:         t.NumRows(),
				NCols:         len(schemaFP.Cols),
				SnapshotError: err.Error(),
			}
		}
		final.SnapshotPending = false
		pc.result = final
	}
	return pc
}

// Drain waits for every submitted job to complete. Run.Finish MUST call
// this before writing run_finish.json so chained evidence reflects final
// snapshot state.
func (p *AsyncPool) Drain() {
	p.wg.Wait()
}

// Close stops accepting new jobs after the current queue drains.
func (p *AsyncPool) Close() {
	p.wg.Wait()
	close(p.jobs)
}
