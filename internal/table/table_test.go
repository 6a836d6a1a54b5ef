package table

import (
	"context"
	"errors"
	"testing"
)

func TestNewNativeTableRejectsRaggedColumns(t *testing.T) {
	_, err := NewNativeTable(
		[]string{"id", "name"},
		map[string]string{"id": "int", "name": "string"},
		map[string][]any{"id": {1, 2}, "name": {"a"}},
	)
	if err == nil {
		t.Fatalf("expected error for mismatched column lengths")
	}
}

func TestNativeTableCellAndShape(t *testing.T) {
	nt, err := NewNativeTable(
		[]string{"id", "name"},
		map[string]string{"id": "int", "name": "string"},
		map[string][]any{"id": {1, 2, 3}, "name": {"a", "b", "c"}},
	)
	if err != nil {
		t.Fatalf("NewNativeTable: %v", err)
	}
	if nt.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", nt.NumRows())
	}
	if nt.Cell(1, "name") != "b" {
		t.Fatalf("expected cell (1, name) = b, got %v", nt.Cell(1, "name"))
	}
	if nt.Cell(99, "name") != nil {
		t.Fatalf("expected out-of-range cell to be nil")
	}
}

func TestHeadTruncates(t *testing.T) {
	nt, _ := NewNativeTable(
		[]string{"id"},
		map[string]string{"id": "int"},
		map[string][]any{"id": {1, 2, 3, 4, 5}},
	)
	h := Head(nt, 2)
	if h.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", h.NumRows())
	}
	if Head(nt, 0) != Table(nt) {
		t.Fatalf("expected n<=0 to return the table unchanged")
	}
}

type fakeAdapter struct{ t Table }

func (f fakeAdapter) ToTable(ctx context.Context) (Table, error) { return f.t, nil }

type brokenAdapter struct{}

func (brokenAdapter) ToTable(ctx context.Context) (Table, error) {
	return nil, errors.New("boom")
}

func TestResolve(t *testing.T) {
	nt, _ := NewNativeTable([]string{"id"}, map[string]string{"id": "int"}, map[string][]any{"id": {1}})

	got, err := Resolve(context.Background(), nt)
	if err != nil || got != Table(nt) {
		t.Fatalf("expected Resolve to pass through a Table, got %v, %v", got, err)
	}

	got, err = Resolve(context.Background(), fakeAdapter{t: nt})
	if err != nil || got != Table(nt) {
		t.Fatalf("expected Resolve to unwrap an Adapter, got %v, %v", got, err)
	}

	if _, err := Resolve(context.Background(), brokenAdapter{}); err == nil {
		t.Fatalf("expected adapter error to propagate")
	}

	if _, err := Resolve(context.Background(), 42); err == nil {
		t.Fatalf("expected error for unsupported value type")
	}
}

func TestCellText(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{42, "42"},
		{int64(9), "9"},
		{3.5, "3.5"},
	}
	for _, c := range cases {
		if got := CellText(c.in); got != c.want {
			t.Fatalf("CellText(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
