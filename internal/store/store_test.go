package store

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestStorePutJSONGetJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFSBackend(dir)
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}
	s := New(backend)
	ctx := context.Background()

	type payload struct {
		Action string `json:"action"`
		N      int    `json:"n"`
	}
	in := payload{Action: "deploy", N: 3}

	digest, err := s.PutJSON(ctx, "runs/run_1/manifest.json", in)
	if err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	if !strings.HasPrefix(digest, "sha256:") {
		t.Fatalf("expected sha256-prefixed digest, got %s", digest)
	}

	var out payload
	if err := s.GetJSON(ctx, "runs/run_1/manifest.json", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestNewRunIDFormat(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	id := NewRunID(now)
	if !strings.HasPrefix(id, "run_20260801T123000_") {
		t.Fatalf("unexpected run id: %s", id)
	}
	suffix := strings.TrimPrefix(id, "run_20260801T123000_")
	if len(suffix) != 6 {
		t.Fatalf("expected 6 hex chars, got %d (%s)", len(suffix), suffix)
	}
}

func TestNewRunIDIsUnique(t *testing.T) {
	now := time.Now()
	a := NewRunID(now)
	b := NewRunID(now)
	if a == b {
		t.Fatalf("expected distinct run ids for same timestamp, got %s twice", a)
	}
}

func TestInferContentType(t *testing.T) {
	cases := map[string]ContentType{
		"x.json":          ContentJSON,
		"x.jsonl":         ContentJSONLines,
		"x.bbdata":        ContentColumnar,
		"x.sample.bbdata": ContentColumnarSample,
		"x.bbdelta":       ContentDelta,
		"x.unknownsuffix": ContentUnknown,
	}
	for k, want := range cases {
		if got := InferContentType(k); got != want {
			t.Fatalf("InferContentType(%s) = %v, want %v", k, got, want)
		}
	}
}
