// Package rowhash computes per-row content hashes, schema fingerprints,
// and content fingerprints over table.Table values, and caches row hashes
// against a table's identity without pinning it in memory.
//
// The 64-bit row hash is deliberately non-cryptographic: it is a cheap
// equality signal for the differ and fingerprint-skip path, never a
// security primitive. Payload integrity and chain linkage (internal/seal)
// use SHA-256 via internal/canon instead.
package rowhash

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"reach/blackbox/internal/table"
)

const (
	// ThresholdCols is the hashed-column count at or above which
	// column-group parallelism auto-enables if the caller hasn't set
	// explicit group/worker counts.
	ThresholdCols = 40
	// DefaultGroupSize is the auto-parallel column group size.
	DefaultGroupSize = 8
	// DefaultWorkers is the auto-parallel worker count used when no worker
	// count is configured (the floor is 2).
	DefaultWorkers = 4
)

// ParallelPlan describes the group/worker counts a rowhash call used, for
// the differ's notes.parallel_groups reporting.
type ParallelPlan struct {
	GroupSize int
	Workers   int
	Groups    int
	Auto      bool
}

// PlanParallelism applies spec's auto-parallelization policy: if
// numCols >= ThresholdCols and the caller left groupSize/workers unset
// (<=0), pick group_size=8, workers=max(2, configuredWorkers or 4).
func PlanParallelism(numCols, groupSize, workers, configuredWorkers int) ParallelPlan {
	if groupSize > 0 || workers > 0 {
		gs := groupSize
		if gs <= 0 {
			gs = numCols
		}
		w := workers
		if w <= 0 {
			w = 1
		}
		return ParallelPlan{GroupSize: gs, Workers: w, Groups: numGroups(numCols, gs), Auto: false}
	}
	if numCols < ThresholdCols {
		return ParallelPlan{GroupSize: numCols, Workers: 1, Groups: 1, Auto: false}
	}
	cw := configuredWorkers
	if cw <= 0 {
		cw = DefaultWorkers
	}
	w := cw
	if w < 2 {
		w = 2
	}
	return ParallelPlan{GroupSize: DefaultGroupSize, Workers: w, Groups: numGroups(numCols, DefaultGroupSize), Auto: true}
}

func numGroups(numCols, groupSize int) int {
	if groupSize <= 0 {
		return 1
	}
	g := (numCols + groupSize - 1) / groupSize
	if g < 1 {
		g = 1
	}
	return g
}

// RowHashes computes one 64-bit hash per row of t over columns cols,
// applying plan's column grouping and worker fan-out. Group hashes
// combine by XOR fold, so partitioning never changes the result for a
// fixed column set.
func RowHashes(t table.Table, cols []string, plan ParallelPlan) []uint64 {
	n := t.NumRows()
	out := make([]uint64, n)
	if len(cols) == 0 {
		return out
	}

	groupSize := plan.GroupSize
	if groupSize <= 0 {
		groupSize = len(cols)
	}
	groups := splitColumns(cols, groupSize)
	if len(groups) <= 1 || plan.Workers <= 1 {
		for _, g := range groups {
			addGroupHashes(out, t, g)
		}
		return out
	}

	partials := make([][]uint64, len(groups))
	sem := make(chan struct{}, plan.Workers)
	var wg sync.WaitGroup
	for gi, g := range groups {
		wg.Add(1)
		sem <- struct{}{}
		go func(gi int, g []string) {
			defer wg.Done()
			defer func() { <-sem }()
			partials[gi] = groupHashes(t, g)
		}(gi, g)
	}
	wg.Wait()

	for _, p := range partials {
		for i, h := range p {
			out[i] ^= h
		}
	}
	return out
}

func splitColumns(cols []string, groupSize int) [][]string {
	var groups [][]string
	for i := 0; i < len(cols); i += groupSize {
		end := i + groupSize
		if end > len(cols) {
			end = len(cols)
		}
		groups = append(groups, cols[i:end])
	}
	if len(groups) == 0 {
		groups = [][]string{{}}
	}
	return groups
}

func addGroupHashes(dst []uint64, t table.Table, cols []string) {
	h := groupHashes(t, cols)
	for i, v := range h {
		dst[i] ^= v
	}
}

// groupHashes hashes every cell together with its column name and XOR-folds
// the cell hashes of each row, so a group's row hash is the XOR of its
// columns' hashes and any grouping of the same columns folds to the same
// final value.
func groupHashes(t table.Table, cols []string) []uint64 {
	n := t.NumRows()
	out := make([]uint64, n)
	d := xxhash.New()
	for r := 0; r < n; r++ {
		var h uint64
		for _, c := range cols {
			d.Reset()
			d.WriteString(c)
			d.Write([]byte{0})
			d.WriteString(table.CellText(t.Cell(r, c)))
			h ^= d.Sum64()
		}
		out[r] = h
	}
	return out
}

// SchemaFingerprint is the ordered column list plus name-to-dtype map
// used for schema equality and diffing.
type SchemaFingerprint struct {
	Cols   []string          `json:"cols"`
	Dtypes map[string]string `json:"dtypes"`
}

// ComputeSchemaFingerprint builds a SchemaFingerprint from t.
func ComputeSchemaFingerprint(t table.Table) SchemaFingerprint {
	cols := append([]string(nil), t.Columns()...)
	dtypes := make(map[string]string, len(cols))
	for _, c := range cols {
		dtypes[c] = t.DType(c)
	}
	return SchemaFingerprint{Cols: cols, Dtypes: dtypes}
}

// Equal reports structural equality of two schema fingerprints.
func (s SchemaFingerprint) Equal(o SchemaFingerprint) bool {
	if len(s.Cols) != len(o.Cols) {
		return false
	}
	for i := range s.Cols {
		if s.Cols[i] != o.Cols[i] {
			return false
		}
	}
	if len(s.Dtypes) != len(o.Dtypes) {
		return false
	}
	for k, v := range s.Dtypes {
		if o.Dtypes[k] != v {
			return false
		}
	}
	return true
}

// SchemaDiff is the set of column-level differences between schema A and B.
type SchemaDiff struct {
	AddedCols    []string             `json:"added_cols"`
	RemovedCols  []string             `json:"removed_cols"`
	DtypeChanged map[string][2]string `json:"dtype_changed"`
}

// DiffSchema computes added/removed columns (in B/A order respectively)
// and dtype changes over the column intersection.
func DiffSchema(a, b SchemaFingerprint) SchemaDiff {
	aSet := make(map[string]bool, len(a.Cols))
	for _, c := range a.Cols {
		aSet[c] = true
	}
	bSet := make(map[string]bool, len(b.Cols))
	for _, c := range b.Cols {
		bSet[c] = true
	}

	var added, removed []string
	for _, c := range b.Cols {
		if !aSet[c] {
			added = append(added, c)
		}
	}
	for _, c := range a.Cols {
		if !bSet[c] {
			removed = append(removed, c)
		}
	}

	changed := map[string][2]string{}
	for _, c := range a.Cols {
		if !bSet[c] {
			continue
		}
		from, to := a.Dtypes[c], b.Dtypes[c]
		if from != to {
			changed[c] = [2]string{from, to}
		}
	}

	return SchemaDiff{AddedCols: added, RemovedCols: removed, DtypeChanged: changed}
}

// ContentFingerprint is a cheap equality signal over row hashes: the 10
// smallest hashes (order-insensitive) or the first 10 in row order
// (order-sensitive).
type ContentFingerprint struct {
	Label  string   `json:"label"`
	Sample []uint64 `json:"sample"`
	N      int      `json:"n"`
}

// ComputeContentFingerprint hashes all columns of t (optionally
// head-sampled by the caller beforehand) and reduces to a 10-element
// sample.
func ComputeContentFingerprint(t table.Table, orderSensitive bool) ContentFingerprint {
	cols := t.Columns()
	plan := PlanParallelism(len(cols), 0, 0, 0)
	hashes := RowHashes(t, cols, plan)

	sample := make([]uint64, len(hashes))
	copy(sample, hashes)
	if orderSensitive {
		if len(sample) > 10 {
			sample = sample[:10]
		}
	} else {
		sort.Slice(sample, func(i, j int) bool { return sample[i] < sample[j] })
		if len(sample) > 10 {
			sample = sample[:10]
		}
	}
	return ContentFingerprint{Label: "h64", Sample: sample, N: t.NumRows()}
}
