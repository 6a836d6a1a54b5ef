// Package diff implements the primary-key-indexed row differ: it resolves
// a primary key, checks uniqueness on both sides, hashes the shared
// non-key columns, and reports added/removed/changed key sets with the
// adaptive summary-only and schema-add-remove-as-change policies.
package diff

import (
	"sort"

	"reach/blackbox/internal/rowhash"
	"reach/blackbox/internal/table"

	blackbox "reach/blackbox/internal/errors"
)

// Mode selects how much row-level detail the differ renders.
type Mode string

const (
	ModeRows     Mode = "rows"
	ModeSchema   Mode = "schema"
	ModeKeysOnly Mode = "keys-only"
)

// Config controls one invocation of Diff.
type Config struct {
	PrimaryKey                   []string
	OrderSensitive               bool
	SampleRows                   int
	DiffMode                     Mode
	SummaryOnlyThreshold         float64
	TotalKeysHint                int
	ChunkRows                    int
	HashGroupSize                int
	Workers                      int
	TreatSchemaAddRemoveAsChange bool
}

// Summary is the added/removed/changed row counts.
type Summary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

// Notes carries the diagnostic fields attached to a Result.
type Notes struct {
	OrderSensitive               bool     `json:"order_sensitive"`
	SampleRows                   int      `json:"sample_rows"`
	HashColsMode                 string   `json:"hash_cols_mode"`
	SchemaChanged                bool     `json:"schema_changed"`
	ColsOnlyInLeft               []string `json:"cols_only_in_left"`
	ColsOnlyInRight              []string `json:"cols_only_in_right"`
	TreatSchemaAddRemoveAsChange bool     `json:"treat_schema_add_remove_as_change"`
	ChunkRows                    int      `json:"chunk_rows"`
	HashGroupSize                int      `json:"hash_group_size"`
	ParallelGroups               int      `json:"parallel_groups"`
}

// HashInfo names the row-hash algorithm used.
type HashInfo struct {
	Algo  string `json:"algo"`
	Label string `json:"label"`
}

// Result is the differ's output shape, spec.md §4.4.
type Result struct {
	Version      string   `json:"version"`
	Mode         string   `json:"mode"`
	Hash         HashInfo `json:"hash"`
	PrimaryKey   []string `json:"primary_key"`
	ColsHashed   []string `json:"cols_hashed"`
	AddedKeys    []string `json:"added_keys"`
	RemovedKeys  []string `json:"removed_keys"`
	ChangedKeys  []string `json:"changed_keys"`
	Summary      Summary  `json:"summary"`
	SummaryOnly  bool     `json:"summary_only"`
	UIHint       string   `json:"ui_hint,omitempty"`
	DiffMode     string   `json:"diff_mode"`
	Notes        Notes    `json:"notes"`
}

// Diff computes the PK-indexed diff between a and b under cfg.
func Diff(a, b table.Table, cfg Config) (*Result, error) {
	pk, err := resolvePrimaryKey(a, b, cfg.PrimaryKey)
	if err != nil {
		return nil, err
	}

	left := table.Head(a, cfg.SampleRows)
	right := table.Head(b, cfg.SampleRows)

	chunked := cfg.ChunkRows > 0
	var leftKeys, rightKeys map[int]string
	if chunked {
		leftKeys, err = buildPKIndexChunked(left, pk, cfg.ChunkRows)
	} else {
		leftKeys, err = buildPKIndex(left, pk)
	}
	if err != nil {
		return nil, err
	}
	if chunked {
		rightKeys, err = buildPKIndexChunked(right, pk, cfg.ChunkRows)
	} else {
		rightKeys, err = buildPKIndex(right, pk)
	}
	if err != nil {
		return nil, err
	}

	hashedCols, onlyLeft, onlyRight := intersectNonPKColumns(left, right, pk)

	var aHash, bHash []uint64
	hashColsMode := "shared"
	var plan rowhash.ParallelPlan
	if cfg.DiffMode == ModeKeysOnly || len(hashedCols) == 0 {
		hashColsMode = "none"
		aHash = make([]uint64, left.NumRows())
		bHash = make([]uint64, right.NumRows())
	} else {
		plan = rowhash.PlanParallelism(len(hashedCols), cfg.HashGroupSize, cfg.Workers, 0)
		if chunked {
			aHash = chunkedRowHashes(left, hashedCols, plan, cfg.ChunkRows)
			bHash = chunkedRowHashes(right, hashedCols, plan, cfg.ChunkRows)
		} else {
			aHash = rowhash.RowHashes(left, hashedCols, plan)
			bHash = rowhash.RowHashes(right, hashedCols, plan)
		}
	}

	aMap := mapRows(leftKeys, aHash)
	bMap := mapRows(rightKeys, bHash)

	added, removed, changed := diffMaps(aMap, bMap)

	schemaChanged := len(onlyLeft) > 0 || len(onlyRight) > 0
	if cfg.TreatSchemaAddRemoveAsChange && schemaChanged {
		changed = commonKeys(aMap, bMap)
	}

	summary := Summary{Added: len(added), Removed: len(removed), Changed: len(changed)}

	res := &Result{
		Version:    "0.1",
		Mode:       "rowhash",
		Hash:       HashInfo{Algo: "xxhash64", Label: "h64"},
		PrimaryKey: pk,
		ColsHashed: hashedCols,
		Summary:    summary,
		DiffMode:   string(cfg.DiffMode),
		Notes: Notes{
			OrderSensitive:               cfg.OrderSensitive,
			SampleRows:                   cfg.SampleRows,
			HashColsMode:                 hashColsMode,
			SchemaChanged:                schemaChanged,
			ColsOnlyInLeft:               onlyLeft,
			ColsOnlyInRight:              onlyRight,
			TreatSchemaAddRemoveAsChange: cfg.TreatSchemaAddRemoveAsChange,
			ChunkRows:                    cfg.ChunkRows,
			HashGroupSize:                cfg.HashGroupSize,
			ParallelGroups:               plan.Groups,
		},
	}

	total := cfg.TotalKeysHint
	if len(aMap) > total {
		total = len(aMap)
	}
	if len(bMap) > total {
		total = len(bMap)
	}
	if total < 1 {
		total = 1
	}
	ratio := float64(len(added)+len(removed)) / float64(total)
	if cfg.SummaryOnlyThreshold > 0 && ratio >= cfg.SummaryOnlyThreshold {
		res.SummaryOnly = true
		res.UIHint = "summary_only_high_churn"
		res.AddedKeys = []string{}
		res.RemovedKeys = []string{}
		res.ChangedKeys = []string{}
	} else {
		res.AddedKeys = sortedKeys(added)
		res.RemovedKeys = sortedKeys(removed)
		res.ChangedKeys = sortedKeys(changed)
	}

	return res, nil
}

func resolvePrimaryKey(a, b table.Table, declared []string) ([]string, error) {
	if len(declared) > 0 {
		for _, col := range declared {
			if !hasColumn(a, col) || !hasColumn(b, col) {
				return nil, blackbox.New(blackbox.CodePkMissing, "primary key column not present on both sides: "+col).
					WithContext("column", col)
			}
		}
		return declared, nil
	}
	if hasColumn(a, "id") && hasColumn(b, "id") {
		return []string{"id"}, nil
	}
	cols := a.Columns()
	if len(cols) == 0 {
		return nil, blackbox.New(blackbox.CodePkMissing, "table A has no columns to infer a primary key from")
	}
	first := cols[0]
	if !hasColumn(b, first) {
		return nil, blackbox.New(blackbox.CodePkMissing, "inferred primary key column not present on side B: "+first).
			WithContext("column", first)
	}
	return []string{first}, nil
}

func hasColumn(t table.Table, name string) bool {
	for _, c := range t.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// buildPKIndex maps row index -> canonical PK text, failing with
// PkDuplicate (carrying up to 5 sample values) if any PK value repeats.
func buildPKIndex(t table.Table, pk []string) (map[int]string, error) {
	idx := make(map[int]string, t.NumRows())
	seen := make(map[string]bool, t.NumRows())
	var dupSample []string
	for r := 0; r < t.NumRows(); r++ {
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
	if len(dupSample) > 0 {
		return nil, blackbox.New(blackbox.CodePkDuplicate, "duplicate primary key values found").
			WithContext("sample", dupSample)
	}
	return idx, nil
}

func pkText(t table.Table, row int, pk []string) string {
	if len(pk) == 1 {
		return table.CellText(t.Cell(row, pk[0]))
	}
	parts := make([]string, len(pk))
	for i, col := range pk {
		parts[i] = table.CellText(t.Cell(row, col))
	}
	return joinTuple(parts)
}

func joinTuple(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\x1f"
		}
		out += p
	}
	return out
}

func intersectNonPKColumns(a, b table.Table, pk []string) (hashed, onlyLeft, onlyRight []string) {
	pkSet := make(map[string]bool, len(pk))
	for _, c := range pk {
		pkSet[c] = true
	}
	aSet := make(map[string]bool)
	for _, c := range a.Columns() {
		if !pkSet[c] {
			aSet[c] = true
		}
	}
	bSet := make(map[string]bool)
	for _, c := range b.Columns() {
		if !pkSet[c] {
			bSet[c] = true
		}
	}
	for _, c := range a.Columns() {
		if pkSet[c] {
			continue
		}
		if bSet[c] {
			hashed = append(hashed, c)
		} else {
			onlyLeft = append(onlyLeft, c)
		}
	}
	for _, c := range b.Columns() {
		if pkSet[c] {
			continue
		}
		if !aSet[c] {
			onlyRight = append(onlyRight, c)
		}
	}
	return hashed, onlyLeft, onlyRight
}

func mapRows(idx map[int]string, hashes []uint64) map[string]uint64 {
	out := make(map[string]uint64, len(idx))
	for r, key := range idx {
		if r < len(hashes) {
			out[key] = hashes[r]
		}
	}
	return out
}

func diffMaps(a, b map[string]uint64) (added, removed, changed map[string]bool) {
	added = make(map[string]bool)
	removed = make(map[string]bool)
	changed = make(map[string]bool)
	for k := range b {
		if _, ok := a[k]; !ok {
			added[k] = true
		}
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			removed[k] = true
		}
	}
	for k, av := range a {
		if bv, ok := b[k]; ok && av != bv {
			changed[k] = true
		}
	}
	return added, removed, changed
}

func commonKeys(a, b map[string]uint64) map[string]bool {
	out := make(map[string]bool)
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = true
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
