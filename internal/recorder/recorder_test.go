package recorder

import (
	"context"
	"errors"
	"testing"

	"reach/blackbox/internal/config"
	"reach/blackbox/internal/diff"
	"reach/blackbox/internal/seal"
	"reach/blackbox/internal/snapshot"
	"reach/blackbox/internal/store"
	"reach/blackbox/internal/table"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	backend, err := store.NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}
	return store.New(backend)
}

func mustTable(t *testing.T, ids []any, names []any) *table.NativeTable {
	t.Helper()
	nt, err := table.NewNativeTable(
		[]string{"id", "name"},
		map[string]string{"id": "int", "name": "string"},
		map[string][]any{"id": ids, "name": names},
	)
	if err != nil {
		t.Fatalf("NewNativeTable: %v", err)
	}
	return nt
}

func readStepJSON(t *testing.T, st *store.Store, run *Run, ordinal int, safeName string) stepEvidence {
	t.Helper()
	var ev stepEvidence
	key := run.Prefix() + "/steps/0001_" + safeName + "/step.json"
	_ = ordinal
	if err := st.GetJSON(context.Background(), key, &ev); err != nil {
		t.Fatalf("GetJSON step.json: %v", err)
	}
	return ev
}

// scenario: normalize-then-add (spec.md §8) — a step that adds a column
// produces a schema diff and a populated row diff.
func TestStepNormalizeThenAdd(t *testing.T) {
	st := newTestStore(t)
	rec := New(st, "proj", "ds")
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	in := mustTable(t, []any{1, 2, 3}, []any{"alice", "bob", "carol"})
	out, err := table.NewNativeTable(
		[]string{"id", "name", "flag"},
		map[string]string{"id": "int", "name": "string", "flag": "bool"},
		map[string][]any{"id": {1, 2, 3}, "name": {"alice", "bob", "carol"}, "flag": {true, false, true}},
	)
	if err != nil {
		t.Fatalf("NewNativeTable: %v", err)
	}

	err = run.Step(ctx, "add_flag", func(ctx context.Context, s *Step) error {
		s.WithDiffConfig(diff.Config{PrimaryKey: []string{"id"}})
		s.SetInput(in)
		s.SetOutput(out)
		return nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	ev := readStepJSON(t, st, run, 1, "add_flag")
	if ev.Status != "ok" {
		t.Fatalf("expected ok status, got %s", ev.Status)
	}
	if ev.SchemaDiff == nil || len(ev.SchemaDiff.AddedCols) != 1 {
		t.Fatalf("expected 1 added column, got %+v", ev.SchemaDiff)
	}
	if ev.DiffRef == "" {
		t.Fatal("expected a diff ref when schema changes")
	}

	if err := run.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

// scenario: fingerprint-skip — identical input/output content and schema
// short-circuits the differ entirely.
func TestStepFingerprintSkip(t *testing.T) {
	st := newTestStore(t)
	rec := New(st, "proj", "ds")
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	a := mustTable(t, []any{1, 2}, []any{"x", "y"})
	b := mustTable(t, []any{1, 2}, []any{"x", "y"})

	err = run.Step(ctx, "passthrough", func(ctx context.Context, s *Step) error {
		s.SetInput(a)
		s.SetOutput(b)
		return nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	ev := readStepJSON(t, st, run, 1, "passthrough")
	if ev.DiffSkip == nil || ev.DiffSkip.Reason != "fingerprint_match" {
		t.Fatalf("expected fingerprint-skip placeholder, got %+v", ev.DiffSkip)
	}
	if ev.DiffRef != "" {
		t.Fatal("expected no diff ref when fingerprint-skipped")
	}
}

// A step returning a non-nil error writes error evidence and re-raises.
func TestStepErrorRePropagates(t *testing.T) {
	st := newTestStore(t)
	rec := New(st, "proj", "ds")
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	wantErr := errors.New("boom")
	err = run.Step(ctx, "explode", func(ctx context.Context, s *Step) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected re-raised error, got %v", err)
	}

	ev := readStepJSON(t, st, run, 1, "explode")
	if ev.Status != "error" {
		t.Fatalf("expected error status, got %s", ev.Status)
	}
	if ev.Error == nil || ev.Error.Message != "boom" {
		t.Fatalf("unexpected error evidence: %+v", ev.Error)
	}
}

// A panicking step is recovered, writes error evidence with a truncated
// traceback, then re-panics.
func TestStepPanicRecoveredAndReraised(t *testing.T) {
	st := newTestStore(t)
	rec := New(st, "proj", "ds")
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic to re-raise")
		}
		ev := readStepJSON(t, st, run, 1, "panics")
		if ev.Status != "error" {
			t.Fatalf("expected error status, got %s", ev.Status)
		}
		if ev.Error == nil || ev.Error.TruncatedTraceback == "" {
			t.Fatal("expected a captured traceback")
		}
	}()

	_ = run.Step(ctx, "panics", func(ctx context.Context, s *Step) error {
		panic("kaboom")
	})
	t.Fatal("unreachable: Step should have re-panicked")
}

// enforce_explicit_output rejects a step that exits without SetOutput.
func TestEnforceExplicitOutput(t *testing.T) {
	st := newTestStore(t)
	cfg := config.Default()
	cfg.Recorder.EnforceExplicitOutput = true
	rec := New(st, "proj", "ds", WithConfig(cfg))
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	err = run.Step(ctx, "silent", func(ctx context.Context, s *Step) error {
		s.SetInput(mustTable(t, []any{1}, []any{"a"}))
		return nil
	})
	if err == nil {
		t.Fatal("expected CodeOutputMissing error")
	}
}

// Ordinals are dense 1..N and the chain links every step plus run_start
// and run_finish in order.
func TestOrdinalsAndChainLinkage(t *testing.T) {
	st := newTestStore(t)
	rec := New(st, "proj", "ds")
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	for i := 0; i < 3; i++ {
		name := "step"
		err := run.Step(ctx, name, func(ctx context.Context, s *Step) error {
			s.SetOutput(mustTable(t, []any{1}, []any{"a"}))
			return nil
		})
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if err := run.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if len(run.steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(run.steps))
	}
	for i, s := range run.steps {
		if s.Ordinal != i+1 {
			t.Fatalf("expected dense ordinals, got %+v", run.steps)
		}
	}

	var chain seal.Chain
	if err := st.GetJSON(ctx, run.Prefix()+"/chain.json", &chain); err != nil {
		t.Fatalf("GetJSON chain.json: %v", err)
	}
	// run_start + 3 steps + run_finish
	if len(chain.Entries) != 5 {
		t.Fatalf("expected 5 chain entries, got %d", len(chain.Entries))
	}
	for i := 1; i < len(chain.Entries); i++ {
		if chain.Entries[i].Prev != chain.Entries[i-1].Digest {
			t.Fatalf("chain entry %d does not link to entry %d", i, i-1)
		}
	}
	vr, err := seal.Verify(ctx, st, run.Prefix(), &chain)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !vr.OK {
		t.Fatalf("expected chain to verify, got %s", vr.Message)
	}
}

// async snapshot mode defers step commit/chain append to Finish, but
// ordinal order and chain order must still agree.
func TestAsyncSnapshotDrainAtFinish(t *testing.T) {
	st := newTestStore(t)
	cfg := config.Default()
	cfg.Recorder.SnapshotAsync = true
	cfg.Recorder.SnapshotAsyncWorkers = 2
	cfg.Snapshot.Mode = string(snapshot.ModeAlways)
	rec := New(st, "proj", "ds", WithConfig(cfg))
	defer rec.Close()
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	for i := 0; i < 4; i++ {
		err := run.Step(ctx, "batch", func(ctx context.Context, s *Step) error {
			s.SetOutput(mustTable(t, []any{1, 2}, []any{"a", "b"}))
			return nil
		})
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	// Nothing has been chained yet: commits are deferred.
	if len(run.steps) != 0 {
		t.Fatalf("expected deferred commits before Finish, got %d steps recorded", len(run.steps))
	}

	if err := run.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(run.steps) != 4 {
		t.Fatalf("expected 4 steps recorded after Finish, got %d", len(run.steps))
	}
	for i, s := range run.steps {
		if s.Ordinal != i+1 {
			t.Fatalf("expected dense ordinals after drain, got %+v", run.steps)
		}
	}

	var chain seal.Chain
	if err := st.GetJSON(ctx, run.Prefix()+"/chain.json", &chain); err != nil {
		t.Fatalf("GetJSON chain.json: %v", err)
	}
	if len(chain.Entries) != 6 { // run_start + 4 steps + run_finish
		t.Fatalf("expected 6 chain entries, got %d", len(chain.Entries))
	}
}

// max_run_mb rejects Finish once accumulated snapshot size exceeds policy.
func TestMaxRunMBPolicyViolation(t *testing.T) {
	st := newTestStore(t)
	cfg := config.Default()
	cfg.Recorder.MaxRunMB = 0.0000001
	cfg.Snapshot.Mode = string(snapshot.ModeAlways)
	rec := New(st, "proj", "ds", WithConfig(cfg))
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	err = run.Step(ctx, "big", func(ctx context.Context, s *Step) error {
		s.SetOutput(mustTable(t, []any{1, 2, 3}, []any{"a", "b", "c"}))
		return nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	if err := run.Finish(ctx); err == nil {
		t.Fatal("expected max_run_mb policy violation")
	}
}

// scenario: tamper detection — mutating a byte in a chained payload after
// finish is caught at the earliest affected entry.
func TestTamperDetection(t *testing.T) {
	st := newTestStore(t)
	rec := New(st, "proj", "ds")
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	err = run.Step(ctx, "s", func(ctx context.Context, s *Step) error {
		s.SetOutput(mustTable(t, []any{1}, []any{"a"}))
		return nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := run.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var chain seal.Chain
	if err := st.GetJSON(ctx, run.Prefix()+"/chain.json", &chain); err != nil {
		t.Fatalf("GetJSON chain.json: %v", err)
	}
	vr, err := seal.Verify(ctx, st, run.Prefix(), &chain)
	if err != nil || !vr.OK {
		t.Fatalf("expected untampered chain to verify, got ok=%v err=%v msg=%s", vr.OK, err, vr.Message)
	}

	var finishDoc runEvidenceDoc
	if err := st.GetJSON(ctx, run.Prefix()+"/run_finish.json", &finishDoc); err != nil {
		t.Fatalf("GetJSON run_finish.json: %v", err)
	}
	finishDoc.Status = "tampered"
	if _, err := st.PutJSON(ctx, run.Prefix()+"/run_finish.json", finishDoc); err != nil {
		t.Fatalf("PutJSON tampered run_finish.json: %v", err)
	}

	vr, err = seal.Verify(ctx, st, run.Prefix(), &chain)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if vr.OK {
		t.Fatal("expected tamper to be detected")
	}
}

// scenario: snapshot skip with sample — max_mb=0 skips every artifact but
// still emits a sampled artifact and populated fingerprints.
func TestSnapshotSkipWithSample(t *testing.T) {
	st := newTestStore(t)
	cfg := config.Default()
	cfg.Snapshot.Mode = string(snapshot.ModeAuto)
	cfg.Snapshot.MaxMB = 0
	cfg.Snapshot.SampleOnSkip = true
	cfg.Snapshot.SampleRows = 5
	rec := New(st, "proj", "ds", WithConfig(cfg))
	ctx := context.Background()

	run, err := rec.NewRun(ctx, nil)
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	err = run.Step(ctx, "s", func(ctx context.Context, s *Step) error {
		s.SetOutput(mustTable(t, []any{1, 2, 3}, []any{"a", "b", "c"}))
		return nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	ev := readStepJSON(t, st, run, 1, "s")
	if ev.Output == nil {
		t.Fatal("expected output fingerprint")
	}
	if ev.Output.Artifact != "" {
		t.Fatalf("expected no full artifact when max_mb=0, got %q", ev.Output.Artifact)
	}
	if ev.Output.SnapshotSkipped == nil {
		t.Fatal("expected snapshot_skipped to be set")
	}
	if ev.Output.SampleArtifact == "" {
		t.Fatal("expected a sample artifact when sample_on_skip is true")
	}
	if ev.Output.NRows != 3 {
		t.Fatalf("expected fingerprints still populated, got n_rows=%d", ev.Output.NRows)
	}

	if err := run.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

// require_verify_for_prod runs chain verification at Finish when the run
// is tagged env=prod.
func TestRequireVerifyForProd(t *testing.T) {
	st := newTestStore(t)
	cfg := config.Default()
	cfg.Recorder.RequireVerifyForProd = true
	rec := New(st, "proj", "ds", WithConfig(cfg))
	ctx := context.Background()

	run, err := rec.NewRun(ctx, map[string]string{"env": "prod"})
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	err = run.Step(ctx, "s", func(ctx context.Context, s *Step) error {
		s.SetOutput(mustTable(t, []any{1}, []any{"a"}))
		return nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := run.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}
