package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// Load loads configuration from defaults, then an optional config file,
// then environment variables, in that priority order (later wins).
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if err := loadFromFile(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific JSON file, with
// environment variables still applied on top.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, err
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) error {
	return loadStructFromEnv(reflect.ValueOf(cfg).Elem())
}

// loadStructFromEnv recursively loads struct fields tagged `env:"..."`
// from the process environment, descending into nested structs that
// carry no env tag of their own.
func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			if field.Kind() == reflect.Struct {
				if err := loadStructFromEnv(field); err != nil {
					return err
				}
			}
			continue
		}

		if value := os.Getenv(envTag); value != "" {
			if err := setField(field, value); err != nil {
				return fmt.Errorf("setting %s: %w", envTag, err)
			}
		}
	}

	return nil
}

// setField sets a struct field from a raw environment string. String
// slices (primary_key) are comma-separated.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing int: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parsing bool: %w", err)
		}
		field.SetBool(b)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parsing float64: %w", err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// configFilePath resolves the config file location: BLACKBOX_CONFIG_PATH
// override, then ~/.blackbox/config.json, then ~/.blackbox.json.
func configFilePath() string {
	if path := os.Getenv("BLACKBOX_CONFIG_PATH"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".blackbox", "config.json"),
		filepath.Join(home, ".blackbox.json"),
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Save writes cfg as indented JSON to path, creating parent directories
// as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// GetEnvDocs returns a short description of every recognized environment
// variable, for `--help`-style output.
func GetEnvDocs() map[string]string {
	return map[string]string{
		"BLACKBOX_DIFF_MODE":                               "Whether to compute a row diff: none or rowhash (default: rowhash)",
		"BLACKBOX_DIFF_RENDER_MODE":                         "Row-level detail rendering: rows, schema, or keys-only (default: rows)",
		"BLACKBOX_DIFF_PRIMARY_KEY":                         "Comma-separated primary key column list (default: inferred)",
		"BLACKBOX_DIFF_ORDER_SENSITIVE":                     "Affects fingerprint sample selection only (default: false)",
		"BLACKBOX_DIFF_SAMPLE_ROWS":                         "Diff input head cap, 0 = full (default: 0)",
		"BLACKBOX_DIFF_ADAPTIVE":                            "Master switch for fingerprint-skip and summary-only (default: true)",
		"BLACKBOX_DIFF_SKIP_IF_FINGERPRINT_MATCH":           "Skip the differ when fingerprints match, subject to adaptive (default: true)",
		"BLACKBOX_DIFF_SUMMARY_ONLY_THRESHOLD":              "Churn ratio cutoff for summary-only mode, 0 disables (default: 0)",
		"BLACKBOX_DIFF_CHUNK_ROWS":                          "Chunked build row count, 0 disables chunking (default: 0)",
		"BLACKBOX_DIFF_HASH_GROUP_SIZE":                     "Manual column-group size for parallel hashing (default: 8)",
		"BLACKBOX_DIFF_PARALLEL_GROUPS":                     "Manual worker count for parallel hashing (default: 4)",
		"BLACKBOX_DIFF_AUTO_PARALLEL_WIDE":                  "Auto-parallel switch for wide frames; not read by the recorder, which always passes hash_group_size and parallel_groups to the differ (default: true)",
		"BLACKBOX_DIFF_AUTO_PARALLEL_WIDE_COLS_MIN":         "Column count threshold for auto-parallel; not read by the recorder, the built-in threshold is fixed at 40 columns (default: 40)",
		"BLACKBOX_DIFF_CACHE_ROWHASH":                       "Row-hash memoization switch; not read by the recorder, which does not use the row-hash cache (default: true)",
		"BLACKBOX_DIFF_TREAT_SCHEMA_ADD_REMOVE_AS_CHANGE":   "Treat schema add/remove columns as row changes (default: false)",
		"BLACKBOX_SNAPSHOT_MODE":                            "Snapshot policy: none, auto, or always (default: auto)",
		"BLACKBOX_SNAPSHOT_MAX_MB":                          "Snapshot size threshold in MB (default: 64)",
		"BLACKBOX_SNAPSHOT_SAMPLE_ON_SKIP":                  "Write a head-sampled artifact when the full snapshot is skipped (default: true)",
		"BLACKBOX_SNAPSHOT_SAMPLE_ROWS":                     "Sample artifact row cap (default: 2000)",
		"BLACKBOX_SNAPSHOT_SAMPLE_COLS":                     "Sample artifact column cap, 0 = all (default: 0)",
		"BLACKBOX_SEAL_MODE":                                "Chain mode: none or chain (default: chain)",
		"BLACKBOX_SEAL_ALGO":                                "Chain digest algorithm (default: sha256)",
		"BLACKBOX_ENFORCE_EXPLICIT_OUTPUT":                  "Fail a step that exits without capturing output (default: false)",
		"BLACKBOX_PARQUET_COMPRESSION":                      "Columnar codec: snappy, zstd, gzip, lz4, or none (default: snappy)",
		"BLACKBOX_SNAPSHOT_ASYNC":                           "Submit snapshot writes to a background worker pool (default: false)",
		"BLACKBOX_SNAPSHOT_ASYNC_WORKERS":                   "Async snapshot worker pool size (default: 2)",
		"BLACKBOX_SIZE_ESTIMATE_MULTIPLIER":                 "Conservatism factor applied to in-memory size estimates (default: 1.0)",
		"BLACKBOX_MAX_RUN_MB":                                "Fails run policy when exceeded, 0 disables (default: 0)",
		"BLACKBOX_REQUIRE_VERIFY_FOR_PROD":                  "Auto-verify runs tagged env=prod|production at finish (default: false)",
		"BLACKBOX_RETENTION_DAYS":                            "Days evidence is retained, used by external cleanup (default: 0)",
		"BLACKBOX_CONFIG_PATH":                               "Path to config file",
	}
}
