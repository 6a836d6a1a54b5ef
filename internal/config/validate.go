package config

import (
	"fmt"
	"strings"
)

// ValidationError is one field-level configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// ValidationResult collects every problem found by Validate.
type ValidationResult struct {
	Errors []*ValidationError
}

func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) add(field, message string) {
	r.Errors = append(r.Errors, &ValidationError{Field: field, Message: message})
}

// Validate checks c against the option constraints spec.md §4.7 implies
// (enumerations, non-negative thresholds, ratio bounds).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Errors: make([]*ValidationError, 0)}

	if c.Diff.Mode != "none" && c.Diff.Mode != "rowhash" {
		result.add("diff.mode", "must be 'none' or 'rowhash'")
	}
	if c.Diff.DiffMode != "rows" && c.Diff.DiffMode != "schema" && c.Diff.DiffMode != "keys-only" {
		result.add("diff.diff_mode", "must be 'rows', 'schema', or 'keys-only'")
	}
	if c.Diff.SampleRows < 0 {
		result.add("diff.sample_rows", "must be >= 0")
	}
	if c.Diff.SummaryOnlyThreshold < 0 || c.Diff.SummaryOnlyThreshold > 1 {
		result.add("diff.summary_only_threshold", "must be in [0, 1]")
	}
	if c.Diff.ChunkRows < 0 {
		result.add("diff.chunk_rows", "must be >= 0")
	}
	if c.Diff.HashGroupSize <= 0 {
		result.add("diff.hash_group_size", "must be > 0")
	}
	if c.Diff.ParallelGroups <= 0 {
		result.add("diff.parallel_groups", "must be > 0")
	}

	if c.Snapshot.Mode != "none" && c.Snapshot.Mode != "auto" && c.Snapshot.Mode != "always" {
		result.add("snapshot.mode", "must be 'none', 'auto', or 'always'")
	}
	if c.Snapshot.MaxMB < 0 {
		result.add("snapshot.max_mb", "must be >= 0")
	}
	if c.Snapshot.SampleRows < 0 {
		result.add("snapshot.sample_rows", "must be >= 0")
	}
	if c.Snapshot.SampleCols < 0 {
		result.add("snapshot.sample_cols", "must be >= 0")
	}

	if c.Seal.Mode != "none" && c.Seal.Mode != "chain" {
		result.add("seal.mode", "must be 'none' or 'chain'")
	}
	if c.Seal.Algo != "sha256" {
		result.add("seal.algo", "must be 'sha256'")
	}

	validCodecs := map[string]bool{"snappy": true, "zstd": true, "gzip": true, "lz4": true, "none": true}
	if !validCodecs[c.Recorder.ParquetCompression] {
		result.add("recorder.parquet_compression", "must be one of: snappy, zstd, gzip, lz4, none")
	}
	if c.Recorder.SnapshotAsyncWorkers < 0 {
		result.add("recorder.snapshot_async_workers", "must be >= 0")
	}
	if c.Recorder.SizeEstimateMultiplier <= 0 {
		result.add("recorder.size_estimate_multiplier", "must be > 0")
	}
	if c.Recorder.MaxRunMB < 0 {
		result.add("recorder.max_run_mb", "must be >= 0")
	}
	if c.Recorder.RetentionDays < 0 {
		result.add("recorder.retention_days", "must be >= 0")
	}

	return result
}

// MustValidate panics if c is invalid; useful at process startup after Load.
func (c *Config) MustValidate() {
	if result := c.Validate(); !result.Valid() {
		panic(result.Error())
	}
}
