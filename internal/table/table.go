// Package table defines the table-value abstraction the recorder, differ,
// hashing, and snapshot engine all operate over, plus the bridge interface
// external collaborators (warehouse loaders, workflow adapters — out of
// scope per spec.md §1) use to hand the recorder a table they own.
package table

import (
	"context"
	"fmt"
	"strconv"
)

// Table is a finite ordered sequence of columns, each with a name and a
// dtype, and a finite set of rows. Column order is significant for schema
// fingerprinting.
type Table interface {
	Columns() []string
	DType(col string) string
	NumRows() int
	// Cell returns the raw value at (row, col). row is 0-based.
	Cell(row int, col string) any
}

// Adapter lets an external table engine hand the recorder a Table without
// the recorder depending on that engine's types directly (a to_pandas-style
// adapter call, a lazy-frame collect, or a columnar reader).
type Adapter interface {
	ToTable(ctx context.Context) (Table, error)
}

// Resolve normalizes any of {Table, Adapter} into a Table value.
func Resolve(ctx context.Context, v any) (Table, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Table:
		return t, nil
	case Adapter:
		return t.ToTable(ctx)
	default:
		return nil, fmt.Errorf("table: value of type %T does not implement table.Table or table.Adapter", v)
	}
}

// NativeTable is a simple in-memory column-oriented table: the primary
// Table implementation used when the caller already has data in hand.
type NativeTable struct {
	cols   []string
	dtypes map[string]string
	data   map[string][]any
	nrows  int
}

// NewNativeTable builds a NativeTable from ordered columns, a dtype per
// column, and column-major data. All columns must have exactly nrows
// entries.
func NewNativeTable(cols []string, dtypes map[string]string, data map[string][]any) (*NativeTable, error) {
	nrows := -1
	for _, c := range cols {
		vals, ok := data[c]
		if !ok {
			return nil, fmt.Errorf("table: column %q has no data", c)
		}
		if nrows == -1 {
			nrows = len(vals)
		} else if len(vals) != nrows {
			return nil, fmt.Errorf("table: column %q has %d rows, expected %d", c, len(vals), nrows)
		}
	}
	if nrows == -1 {
		nrows = 0
	}
	colsCopy := append([]string(nil), cols...)
	dtCopy := make(map[string]string, len(dtypes))
	for k, v := range dtypes {
		dtCopy[k] = v
	}
	return &NativeTable{cols: colsCopy, dtypes: dtCopy, data: data, nrows: nrows}, nil
}

func (t *NativeTable) Columns() []string { return t.cols }

func (t *NativeTable) DType(col string) string { return t.dtypes[col] }

func (t *NativeTable) NumRows() int { return t.nrows }

func (t *NativeTable) Cell(row int, col string) any {
	vals, ok := t.data[col]
	if !ok || row < 0 || row >= len(vals) {
		return nil
	}
	return vals[row]
}

// Head returns a NativeTable containing only the first n rows (n<=0 means
// the full table), used for the diff's sample_rows cap and for snapshot
// sample artifacts.
func Head(t Table, n int) Table {
	if n <= 0 || n >= t.NumRows() {
		return t
	}
	cols := t.Columns()
	dtypes := make(map[string]string, len(cols))
	data := make(map[string][]any, len(cols))
	for _, c := range cols {
		dtypes[c] = t.DType(c)
		vals := make([]any, n)
		for r := 0; r < n; r++ {
			vals[r] = t.Cell(r, c)
		}
		data[c] = vals
	}
	nt, _ := NewNativeTable(cols, dtypes, data)
	return nt
}

// CellText renders a cell value in the canonical text form used for
// multi-column primary key tuples and string-cell normalization before
// hashing: numbers in a stable decimal form, booleans as "true"/"false",
// nil as the empty string, everything else via fmt.Sprint.
func CellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}
