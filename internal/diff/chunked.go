package diff

import (
	"reach/blackbox/internal/rowhash"
	"reach/blackbox/internal/table"

	blackbox "reach/blackbox/internal/errors"
)

// buildPKIndexChunked is the chunked variant of buildPKIndex: it walks t
// chunkRows at a time and accumulates the row->PK map. Duplicate detection
// is cumulative across chunk boundaries; once the walk is done, any
// repeated key fails with PkDuplicate (carrying up to 5 sample values).
// The resulting map is identical to buildPKIndex's for the same table.
func buildPKIndexChunked(t table.Table, pk []string, chunkRows int) (map[int]string, error) {
	idx := make(map[int]string, t.NumRows())
	seen := make(map[string]bool, t.NumRows())
	var dupSample []string

	n := t.NumRows()
	for start := 0; start < n || n == 0; start += chunkRows {
		end := start + chunkRows
		if end > n {
			end = n
		}
		for r := start; r < end; r++ {
			key := pkText(t, r, pk)
			idx[r] = key
			if seen[key] {
				if len(dupSample) < 5 {
					dupSample = append(dupSample, key)
				}
				continue
			}
			seen[key] = true
		}
		if n == 0 {
			break
		}
	}

	if len(dupSample) > 0 {
		return nil, blackbox.New(blackbox.CodePkDuplicate, "duplicate primary key values found").
			WithContext("sample", dupSample)
	}
	return idx, nil
}

// chunkedRowHashes hashes t in chunkRows-sized slices, incrementally
// building the same output RowHashes would for the whole table.
func chunkedRowHashes(t table.Table, cols []string, plan rowhash.ParallelPlan, chunkRows int) []uint64 {
	n := t.NumRows()
	out := make([]uint64, 0, n)
	for start := 0; start < n || n == 0; start += chunkRows {
		end := start + chunkRows
		if end > n {
			end = n
		}
		chunk := chunkView{t: t, start: start, end: end}
		out = append(out, rowhash.RowHashes(chunk, cols, plan)...)
		if n == 0 {
			break
		}
	}
	return out
}

// chunkView presents rows [start, end) of an underlying table.Table as a
// zero-copy table.Table.
type chunkView struct {
	t          table.Table
	start, end int
}

func (c chunkView) Columns() []string       { return c.t.Columns() }
func (c chunkView) DType(col string) string { return c.t.DType(col) }
func (c chunkView) NumRows() int            { return c.end - c.start }
func (c chunkView) Cell(row int, col string) any {
	return c.t.Cell(c.start+row, col)
}
