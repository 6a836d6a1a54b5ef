// Package store implements the evidence store abstraction: a content
// key-addressed backend (local filesystem or S3) wrapped by a Store that
// knows how to serialize the recorder's JSON and columnar artifacts onto
// it.
//
// The Backend interface and the atomic local write path are grounded on
// the teacher's StorageDriver interface and writeFileAtomic helper
// (reach/src/go/sqlite.go); this package drops the SQLite metadata index
// (the evidence store has no query needs beyond prefix listing) and keeps
// the atomic-rename write discipline.
package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	blackbox "reach/blackbox/internal/errors"
)

// Backend is a content key-addressed byte store. Keys are "/"-separated
// paths; backends never interpret key structure beyond prefix matching.
type Backend interface {
	// PutBytes writes data at key, replacing any existing value.
	PutBytes(ctx context.Context, key string, data []byte) error
	// GetBytes reads the value at key. Returns a *blackbox.BlackboxError
	// with CodeNotFound if key does not exist.
	GetBytes(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every key with the given prefix, lexicographically
	// sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// ListChildren returns the immediate path segment after prefix for
	// every key and "directory" below prefix, deduplicated and sorted —
	// the directory-listing view used to enumerate run_ids and step
	// indices.
	ListChildren(ctx context.Context, prefix string) ([]string, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// SanitizeSegment replaces every character outside [A-Za-z0-9_-] in a single
// path segment with "_" and truncates it to 64 bytes, the rule applied to every
// project/dataset/run_id/step-name component before it is joined into a
// store key.
func SanitizeSegment(s string) string {
	cleaned := unsafeKeyChars.ReplaceAllString(s, "_")
	cleaned = strings.ReplaceAll(cleaned, "/", "_")
	if len(cleaned) > 64 {
		cleaned = cleaned[:64]
	}
	if cleaned == "" {
		cleaned = "_"
	}
	return cleaned
}

// JoinKey joins sanitized path segments into a store key.
func JoinKey(segments ...string) string {
	clean := make([]string, 0, len(segments))
	for _, s := range segments {
		clean = append(clean, SanitizeSegment(s))
	}
	return path.Join(clean...)
}

func childrenFromKeys(keys []string, prefix string) []string {
	prefix = strings.TrimSuffix(prefix, "/")
	seen := make(map[string]struct{})
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix+"/")
		if rest == k {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		if rest != "" {
			seen[rest] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func notFound(key string) error {
	return blackbox.New(blackbox.CodeNotFound, "key not found: "+key)
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, fs.ErrNotExist)
}
