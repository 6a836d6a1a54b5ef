package config

// Default returns the recorder's default configuration. Values mirror the
// `default` struct tags in schema.go; both are kept in sync by hand, same
// as the teacher's config package.
func Default() *Config {
	return &Config{
		Diff: DiffConfig{
			Mode:                         "rowhash",
			DiffMode:                     "rows",
			PrimaryKey:                   nil,
			OrderSensitive:               false,
			SampleRows:                   0,
			Adaptive:                     true,
			SkipIfFingerprintMatch:       true,
			SummaryOnlyThreshold:         0,
			ChunkRows:                    0,
			HashGroupSize:                8,
			ParallelGroups:               4,
			AutoParallelWide:             true,
			AutoParallelWideColsMin:      40,
			CacheRowhash:                 true,
			TreatSchemaAddRemoveAsChange: false,
		},
		Snapshot: SnapshotConfig{
			Mode:         "auto",
			MaxMB:        64,
			SampleOnSkip: true,
			SampleRows:   2000,
			SampleCols:   0,
		},
		Seal: SealConfig{
			Mode: "chain",
			Algo: "sha256",
		},
		Recorder: RecorderConfig{
			EnforceExplicitOutput:  false,
			ParquetCompression:     "snappy",
			SnapshotAsync:          false,
			SnapshotAsyncWorkers:   2,
			SizeEstimateMultiplier: 1.0,
			MaxRunMB:               0,
			RequireVerifyForProd:   false,
			RetentionDays:          0,
		},
	}
}
