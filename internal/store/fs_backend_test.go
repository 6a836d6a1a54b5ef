package store

import (
	"context"
	"path/filepath"
	"testing"

	blackbox "reach/blackbox/internal/errors"
)

func TestFSBackendPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFSBackend(dir)
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}
	ctx := context.Background()

	if err := b.PutBytes(ctx, "runs/run_1/manifest.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	got, err := b.GetBytes(ctx, "runs/run_1/manifest.json")
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("got %s", got)
	}

	ok, err := b.Exists(ctx, "runs/run_1/manifest.json")
	if err != nil || !ok {
		t.Fatalf("expected Exists true, got %v, %v", ok, err)
	}
}

func TestFSBackendGetMissingIsNotFound(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFSBackend(dir)
	_, err := b.GetBytes(context.Background(), "missing.json")
	if blackbox.CodeOf(err) != blackbox.CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}

func TestFSBackendListAndChildren(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFSBackend(dir)
	ctx := context.Background()

	keys := []string{
		"runs/run_1/chain/00000.json",
		"runs/run_1/chain/00001.json",
		"runs/run_2/chain/00000.json",
	}
	for _, k := range keys {
		if err := b.PutBytes(ctx, k, []byte("{}")); err != nil {
			t.Fatalf("PutBytes(%s): %v", k, err)
		}
	}

	all, err := b.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 keys, got %d: %v", len(all), all)
	}

	children, err := b.ListChildren(ctx, "runs")
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 2 || children[0] != "run_1" || children[1] != "run_2" {
		t.Fatalf("expected [run_1 run_2], got %v", children)
	}
}

func TestFSBackendAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewFSBackend(dir)
	ctx := context.Background()
	if err := b.PutBytes(ctx, "x.json", []byte("{}")); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".blackbox-write-*"))
	if len(matches) != 0 {
		t.Fatalf("expected no leftover temp files, found %v", matches)
	}
}

func TestSanitizeSegment(t *testing.T) {
	if got := SanitizeSegment("my project/v1"); got != "my_project_v1" {
		t.Fatalf("got %q", got)
	}
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	if got := SanitizeSegment(long); len(got) != 64 {
		t.Fatalf("expected truncation to 64 chars, got %d", len(got))
	}
}
