// Package config holds the Recorder's nested option structs — Diff,
// Snapshot, Seal, and Recorder-level settings — each field tagged with
// json/env/default the way the teacher's configuration package tags its
// sections, adapted here to the BLACKBOX_ environment prefix and reach's
// own option set (spec.md §4.7).
package config

// DiffConfig controls the row-level differ (C4).
type DiffConfig struct {
	Mode                         string   `json:"mode" env:"BLACKBOX_DIFF_MODE" default:"rowhash"`
	DiffMode                     string   `json:"diff_mode" env:"BLACKBOX_DIFF_RENDER_MODE" default:"rows"`
	PrimaryKey                   []string `json:"primary_key,omitempty" env:"BLACKBOX_DIFF_PRIMARY_KEY" default:""`
	OrderSensitive               bool     `json:"order_sensitive" env:"BLACKBOX_DIFF_ORDER_SENSITIVE" default:"false"`
	SampleRows                   int      `json:"sample_rows" env:"BLACKBOX_DIFF_SAMPLE_ROWS" default:"0"`
	Adaptive                     bool     `json:"adaptive" env:"BLACKBOX_DIFF_ADAPTIVE" default:"true"`
	SkipIfFingerprintMatch       bool     `json:"skip_if_fingerprint_match" env:"BLACKBOX_DIFF_SKIP_IF_FINGERPRINT_MATCH" default:"true"`
	SummaryOnlyThreshold         float64  `json:"summary_only_threshold" env:"BLACKBOX_DIFF_SUMMARY_ONLY_THRESHOLD" default:"0"`
	ChunkRows                    int      `json:"chunk_rows" env:"BLACKBOX_DIFF_CHUNK_ROWS" default:"0"`
	HashGroupSize                int      `json:"hash_group_size" env:"BLACKBOX_DIFF_HASH_GROUP_SIZE" default:"8"`
	ParallelGroups               int      `json:"parallel_groups" env:"BLACKBOX_DIFF_PARALLEL_GROUPS" default:"4"`
	AutoParallelWide             bool     `json:"auto_parallel_wide" env:"BLACKBOX_DIFF_AUTO_PARALLEL_WIDE" default:"true"`
	AutoParallelWideColsMin      int      `json:"auto_parallel_wide_cols_min" env:"BLACKBOX_DIFF_AUTO_PARALLEL_WIDE_COLS_MIN" default:"40"`
	CacheRowhash                 bool     `json:"cache_rowhash" env:"BLACKBOX_DIFF_CACHE_ROWHASH" default:"true"`
	TreatSchemaAddRemoveAsChange bool     `json:"treat_schema_add_remove_as_change" env:"BLACKBOX_DIFF_TREAT_SCHEMA_ADD_REMOVE_AS_CHANGE" default:"false"`
}

// SnapshotConfig controls the columnar snapshot engine (C5).
type SnapshotConfig struct {
	Mode         string  `json:"mode" env:"BLACKBOX_SNAPSHOT_MODE" default:"auto"`
	MaxMB        float64 `json:"max_mb" env:"BLACKBOX_SNAPSHOT_MAX_MB" default:"64"`
	SampleOnSkip bool    `json:"sample_on_skip" env:"BLACKBOX_SNAPSHOT_SAMPLE_ON_SKIP" default:"true"`
	SampleRows   int     `json:"sample_rows" env:"BLACKBOX_SNAPSHOT_SAMPLE_ROWS" default:"2000"`
	SampleCols   int     `json:"sample_cols" env:"BLACKBOX_SNAPSHOT_SAMPLE_COLS" default:"0"`
}

// SealConfig controls the per-run hash chain (C6).
type SealConfig struct {
	Mode string `json:"mode" env:"BLACKBOX_SEAL_MODE" default:"chain"`
	Algo string `json:"algo" env:"BLACKBOX_SEAL_ALGO" default:"sha256"`
}

// RecorderConfig controls Run/Step orchestration (C7) and ambient policy
// that doesn't belong to any single engine.
type RecorderConfig struct {
	EnforceExplicitOutput  bool    `json:"enforce_explicit_output" env:"BLACKBOX_ENFORCE_EXPLICIT_OUTPUT" default:"false"`
	ParquetCompression     string  `json:"parquet_compression" env:"BLACKBOX_PARQUET_COMPRESSION" default:"snappy"`
	SnapshotAsync          bool    `json:"snapshot_async" env:"BLACKBOX_SNAPSHOT_ASYNC" default:"false"`
	SnapshotAsyncWorkers   int     `json:"snapshot_async_workers" env:"BLACKBOX_SNAPSHOT_ASYNC_WORKERS" default:"2"`
	SizeEstimateMultiplier float64 `json:"size_estimate_multiplier" env:"BLACKBOX_SIZE_ESTIMATE_MULTIPLIER" default:"1.0"`
	MaxRunMB               float64 `json:"max_run_mb" env:"BLACKBOX_MAX_RUN_MB" default:"0"`
	RequireVerifyForProd   bool    `json:"require_verify_for_prod" env:"BLACKBOX_REQUIRE_VERIFY_FOR_PROD" default:"false"`
	RetentionDays          int     `json:"retention_days" env:"BLACKBOX_RETENTION_DAYS" default:"0"`
}

// Config is the Recorder's full option set: defaults for Diff, Snapshot,
// and Seal engines plus Recorder-level policy. A Recorder holds one of
// these and threads it through Run.start/Step/finish unless a caller
// overrides a scope for a single Run.
type Config struct {
	Diff     DiffConfig     `json:"diff"`
	Snapshot SnapshotConfig `json:"snapshot"`
	Seal     SealConfig     `json:"seal"`
	Recorder RecorderConfig `json:"recorder"`
}
