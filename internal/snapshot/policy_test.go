package snapshot

import (
	"context"
	"testing"

	"reach/blackbox/internal/store"
	"reach/blackbox/internal/table"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	backend, err := store.NewFSBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}
	return store.New(backend)
}

func TestCaptureModeNoneWritesNothing(t *testing.T) {
	st := newStore(t)
	nt := mustTable(t)
	fp, err := Capture(context.Background(), st, "x.bbdata", nt, Config{Mode: ModeNone})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if fp.Artifact != "" {
		t.Fatalf("expected no artifact under ModeNone, got %s", fp.Artifact)
	}
	if fp.NRows != 3 {
		t.Fatalf("expected fingerprints still computed, got %+v", fp)
	}
}

func TestCaptureModeAlwaysWritesArtifact(t *testing.T) {
	st := newStore(t)
	nt := mustTable(t)
	fp, err := Capture(context.Background(), st, "x.bbdata", nt, Config{Mode: ModeAlways, Compression: CodecNone})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if fp.Artifact != "x.bbdata" {
		t.Fatalf("expected artifact written, got %+v", fp)
	}
	ok, _ := st.Exists(context.Background(), "x.bbdata")
	if !ok {
		t.Fatalf("expected artifact present in store")
	}
}

func TestCaptureAutoSkipsOverSizeAndSamples(t *testing.T) {
	st := newStore(t)
	nt := mustTable(t)
	fp, err := Capture(context.Background(), st, "x.bbdata", nt, Config{
		Mode:         ModeAuto,
		MaxMB:        0,
		SampleOnSkip: true,
		Compression:  CodecNone,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if fp.SnapshotSkipped == nil || fp.SnapshotSkipped.Reason != "size" {
		t.Fatalf("expected size-skip, got %+v", fp)
	}
	if fp.Artifact != "" {
		t.Fatalf("expected artifact=null on skip, got %q", fp.Artifact)
	}
	if fp.SampleArtifact != "x.sample.bbdata" {
		t.Fatalf("expected sample artifact at x.sample.bbdata, got %q", fp.SampleArtifact)
	}
	ok, _ := st.Exists(context.Background(), fp.SampleArtifact)
	if !ok {
		t.Fatalf("expected sample artifact present in store")
	}
}

func TestCaptureAutoUnderThresholdWritesFull(t *testing.T) {
	st := newStore(t)
	nt := mustTable(t)
	fp, err := Capture(context.Background(), st, "x.bbdata", nt, Config{
		Mode:  ModeAuto,
		MaxMB: 1000,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if fp.Artifact == "" || fp.SnapshotSkipped != nil {
		t.Fatalf("expected full artifact under threshold, got %+v", fp)
	}
}

func TestEstimateBytesScalesWithMultiplier(t *testing.T) {
	nt := mustTable(t)
	base := EstimateBytes(nt, 1.0)
	doubled := EstimateBytes(nt, 2.0)
	if doubled != base*2 {
		t.Fatalf("expected doubled estimate, got %d vs %d", doubled, base)
	}
}

func TestAsyncPoolSubmitCaptureResolves(t *testing.T) {
	st := newStore(t)
	nt := mustTable(t)
	pool := NewAsyncPool(2, nil)
	pc := pool.SubmitCapture(context.Background(), st, "async.bbdata", nt, Config{Mode: ModeAlways})
	if !pc.Fingerprint.SnapshotPending {
		t.Fatalf("expected snapshot_pending true immediately after submit")
	}
	final := pc.Wait()
	if final.SnapshotPending {
		t.Fatalf("expected snapshot_pending cleared after drain")
	}
	if final.Artifact != "async.bbdata" {
		t.Fatalf("expected artifact written, got %+v", final)
	}
	pool.Drain()
}

func TestSampleColumnsTruncates(t *testing.T) {
	nt := mustTable(t)
	sampled := sampleColumns(nt, 1)
	if len(sampled.Columns()) != 1 {
		t.Fatalf("expected 1 column, got %v", sampled.Columns())
	}
	if sampleColumns(nt, 0) != table.Table(nt) {
		t.Fatalf("expected n<=0 to return table unchanged")
	}
}
