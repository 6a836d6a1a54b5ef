package snapshot

import (
	"context"
	"strings"

	"reach/blackbox/internal/rowhash"
	"reach/blackbox/internal/store"
	"reach/blackbox/internal/table"
)

// Mode selects the snapshot policy for an artifact.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeAuto   Mode = "auto"
	ModeAlways Mode = "always"
)

// Config controls one call to Capture.
type Config struct {
	Mode                   Mode
	MaxMB                  float64
	SampleOnSkip           bool
	SampleRows             int
	SampleCols             int
	SizeEstimateMultiplier float64
	Compression            Codec
	OrderSensitive         bool
}

// SkippedReason describes why a full artifact was not written.
type SkippedReason struct {
	Reason string `json:"reason"`
}

// Fingerprint is the input/output field of a step evidence record,
// spec.md §4.5.
type Fingerprint struct {
	SchemaFP        rowhash.SchemaFingerprint  `json:"schema_fp"`
	ContentFP       rowhash.ContentFingerprint `json:"content_fp"`
	NRows           int                        `json:"n_rows"`
	NCols           int                        `json:"n_cols"`
	Artifact        string                     `json:"artifact,omitempty"`
	SnapshotSizeMB  float64                    `json:"snapshot_size_mb,omitempty"`
	SnapshotEstMB   float64                    `json:"snapshot_est_mb,omitempty"`
	SnapshotSkipped *SkippedReason             `json:"snapshot_skipped,omitempty"`
	SampleArtifact  string                     `json:"sample_artifact,omitempty"`
	SampleSizeMB    float64                    `json:"sample_size_mb,omitempty"`
	SampleRows      int                        `json:"sample_rows,omitempty"`
	SampleError     string                     `json:"sample_error,omitempty"`

	// SnapshotPending is set when the full artifact write was handed to
	// the async worker pool and has not completed yet; the run must wait
	// for it to drain before finishing.
	SnapshotPending bool   `json:"snapshot_pending,omitempty"`
	SnapshotError   string `json:"snapshot_error,omitempty"`
}

const defaultSampleRows = 2000

// EstimateBytes approximates a table's in-memory footprint as the sum of
// each cell's canonical text length, times cfg.SizeEstimateMultiplier
// (default 1.0 if unset).
func EstimateBytes(t table.Table, multiplier float64) int64 {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	var total int64
	cols := t.Columns()
	n := t.NumRows()
	for _, c := range cols {
		for r := 0; r < n; r++ {
			total += int64(len(table.CellText(t.Cell(r, c))))
		}
	}
	return int64(float64(total) * multiplier)
}

func bytesToMB(b int64) float64 { return float64(b) / (1024 * 1024) }

// Capture always computes schema and content fingerprints, then applies
// the mode policy to decide whether (and how) to write a columnar
// artifact at key via st.
func Capture(ctx context.Context, st *store.Store, key string, t table.Table, cfg Config) (*Fingerprint, error) {
	schemaFP := rowhash.ComputeSchemaFingerprint(t)
	contentFP := rowhash.ComputeContentFingerprint(t, cfg.OrderSensitive)

	fp := &Fingerprint{
		SchemaFP:  schemaFP,
		ContentFP: contentFP,
		NRows:     t.NumRows(),
		NCols:     len(schemaFP.Cols),
	}

	switch cfg.Mode {
	case ModeNone, "":
		return fp, nil
	case ModeAuto:
		return captureAuto(ctx, st, key, t, cfg, fp)
	case ModeAlways:
		return captureFull(ctx, st, key, t, cfg, fp)
	default:
		return fp, nil
	}
}

func captureAuto(ctx context.Context, st *store.Store, key string, t table.Table, cfg Config, fp *Fingerprint) (*Fingerprint, error) {
	estBytes := EstimateBytes(t, cfg.SizeEstimateMultiplier)
	estMB := bytesToMB(estBytes)
	fp.SnapshotEstMB = estMB

	if estMB > cfg.MaxMB {
		fp.SnapshotSkipped = &SkippedReason{Reason: "size"}
		if cfg.SampleOnSkip {
			writeSample(ctx, st, key, t, cfg, fp)
		}
		return fp, nil
	}
	return captureFull(ctx, st, key, t, cfg, fp)
}

func captureFull(ctx context.Context, st *store.Store, key string, t table.Table, cfg Config, fp *Fingerprint) (*Fingerprint, error) {
	data, err := EncodeArtifact(t, cfg.Compression)
	if err != nil {
		fp.SnapshotError = err.Error()
		return fp, nil
	}
	sizeMB := bytesToMB(int64(len(data)))

	if cfg.Mode == ModeAuto && sizeMB > cfg.MaxMB {
		fp.Artifact = ""
		fp.SnapshotSizeMB = sizeMB
		fp.SnapshotSkipped = &SkippedReason{Reason: "size"}
		return fp, nil
	}

	if err := st.PutBytes(ctx, key, data); err != nil {
		fp.SnapshotError = err.Error()
		return fp, nil
	}
	fp.Artifact = key
	fp.SnapshotSizeMB = sizeMB
	return fp, nil
}

func writeSample(ctx context.Context, st *store.Store, key string, t table.Table, cfg Config, fp *Fingerprint) {
	sampleRows := cfg.SampleRows
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}
	sampled := table.Head(t, sampleRows)
	sampled = sampleColumns(sampled, cfg.SampleCols)

	data, err := EncodeArtifact(sampled, cfg.Compression)
	if err != nil {
		fp.SampleError = err.Error()
		return
	}
	sampleKey := sampleArtifactKey(key)
	if err := st.PutBytes(ctx, sampleKey, data); err != nil {
		fp.SampleError = err.Error()
		return
	}
	fp.SampleArtifact = sampleKey
	fp.SampleSizeMB = bytesToMB(int64(len(data)))
	fp.SampleRows = sampled.NumRows()
}

// sampleArtifactKey inserts the ".sample" infix before the ".bbdata"
// extension, spec.md §6 (artifacts/input.sample.bbdata), matching the
// original's key.replace(".bbdata", ".sample.bbdata").
func sampleArtifactKey(key string) string {
	if strings.HasSuffix(key, ".bbdata") {
		return strings.TrimSuffix(key, ".bbdata") + ".sample.bbdata"
	}
	return key + ".sample"
}

// sampleColumns truncates t to the first n columns (0 means all), used by
// sample_cols.
func sampleColumns(t table.Table, n int) table.Table {
	cols := t.Columns()
	if n <= 0 || n >= len(cols) {
		return t
	}
	keep := cols[:n]
	dtypes := make(map[string]string, len(keep))
	data := make(map[string][]any, len(keep))
	rows := t.NumRows()
	for _, c := range keep {
		dtypes[c] = t.DType(c)
		vals := make([]any, rows)
		for r := 0; r < rows; r++ {
			vals[r] = t.Cell(r, c)
		}
		data[c] = vals
	}
	nt, _ := table.NewNativeTable(keep, dtypes, data)
	return nt
}
