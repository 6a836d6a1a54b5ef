// Package recorder implements the Run/Step orchestration layer (C7): it
// wires the canonical encoder, evidence store, hashing/fingerprint engine,
// differ, snapshot engine, and sealer into the on-disk layout spec.md §6
// describes, and owns the policy decisions (enforce_explicit_output,
// max_run_mb, require_verify_for_prod) that span more than one engine.
package recorder

import (
	"context"
	"log/slog"

	"reach/blackbox/internal/config"
	"reach/blackbox/internal/snapshot"
	"reach/blackbox/internal/store"
)

// Recorder holds the store, project/dataset scope, and default
// configuration shared by every Run it opens.
type Recorder struct {
	store   *store.Store
	project string
	dataset string
	cfg     *config.Config
	logger  *slog.Logger
	pool    *snapshot.AsyncPool
}

// Option configures a Recorder at construction time.
type Option func(*Recorder)

// WithConfig overrides the default configuration (otherwise config.Default()).
func WithConfig(cfg *config.Config) Option {
	return func(r *Recorder) { r.cfg = cfg }
}

// WithLogger overrides the default slog.Logger (otherwise slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// New builds a Recorder scoped to project/dataset, backed by st.
func New(st *store.Store, project, dataset string, opts ...Option) *Recorder {
	r := &Recorder{
		store:   st,
		project: project,
		dataset: dataset,
		cfg:     config.Default(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.Recorder.SnapshotAsync {
		r.pool = snapshot.NewAsyncPool(r.cfg.Recorder.SnapshotAsyncWorkers, r.logger)
	}
	return r
}

// Config returns the Recorder's effective configuration.
func (r *Recorder) Config() *config.Config { return r.cfg }

// NewRun opens and starts a new Run under this Recorder's project/dataset,
// with an optional set of tags (e.g. {"env": "prod"}) consulted by
// require_verify_for_prod at finish, and optional RunOptions (e.g.
// WithRunMetadata).
func (r *Recorder) NewRun(ctx context.Context, tags map[string]string, opts ...RunOption) (*Run, error) {
	run := newRun(r, tags)
	for _, opt := range opts {
		opt(run)
	}
	if err := run.start(ctx); err != nil {
		return nil, err
	}
	return run, nil
}

// Close drains any in-flight async snapshot writes. Call once, after every
// Run opened from this Recorder has finished.
func (r *Recorder) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
