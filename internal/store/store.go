package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reach/blackbox/internal/canon"
	blackbox "reach/blackbox/internal/errors"
)

// Store wraps a Backend with the recorder's higher-level evidence
// operations: JSON payload serialization, run_id minting, and key-prefix
// enumeration of runs/steps.
type Store struct {
	backend Backend
}

// New wraps backend in a Store.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend returns the underlying Backend, for callers that need raw byte
// access (columnar snapshot writers, for instance).
func (s *Store) Backend() Backend { return s.backend }

// PutJSON canonically encodes v, writes it pretty-printed at key, and
// returns the digest of the canonical (compact) encoding — the value
// callers chain into payload_digest.
func (s *Store) PutJSON(ctx context.Context, key string, v any) (digest string, err error) {
	compact, err := canon.Compact(v)
	if err != nil {
		return "", blackbox.Wrap(err, blackbox.CodeInvalidArgument, "canon encode failed")
	}
	pretty, err := canon.Pretty(v)
	if err != nil {
		return "", blackbox.Wrap(err, blackbox.CodeInvalidArgument, "canon pretty-encode failed")
	}
	if err := s.backend.PutBytes(ctx, key, pretty); err != nil {
		return "", err
	}
	return canon.Digest(compact), nil
}

// GetJSON reads key and decodes it into v.
func (s *Store) GetJSON(ctx context.Context, key string, v any) error {
	data, err := s.backend.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	return canon.Unmarshal(data, v)
}

// PutBytes writes raw bytes at key (used for columnar snapshot artifacts,
// which carry their own framing and are never passed through canon).
func (s *Store) PutBytes(ctx context.Context, key string, data []byte) error {
	return s.backend.PutBytes(ctx, key, data)
}

// GetBytes reads raw bytes at key.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, error) {
	return s.backend.GetBytes(ctx, key)
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.backend.Exists(ctx, key)
}

// List returns every key under prefix, lexicographically sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

// ListChildren returns the immediate child segments under prefix.
func (s *Store) ListChildren(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.ListChildren(ctx, prefix)
}

// NewRunID mints a run identifier of the form run_<UTCcompact>_<6 hex>,
// sortable by creation time and collision-resistant within a run's
// lifetime via a uuid-derived random suffix.
func NewRunID(now time.Time) string {
	ts := now.UTC().Format("20060102T150405")
	suffix := randomHex(6)
	return fmt.Sprintf("run_%s_%s", ts, suffix)
}

// randomHex returns n lowercase hex characters derived from a fresh uuid,
// matching how the rest of the pack mints opaque identifiers
// (google/uuid) rather than hand-rolling entropy handling.
func randomHex(n int) string {
	id := uuid.New()
	out := hex.EncodeToString(id[:])
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ContentType classifies a store key by its file extension.
type ContentType int

const (
	ContentUnknown ContentType = iota
	ContentJSON
	ContentJSONLines
	ContentColumnar
	ContentColumnarSample
	ContentDelta
)

// InferContentType returns the ContentType implied by key's suffix.
func InferContentType(key string) ContentType {
	switch {
	case strings.HasSuffix(key, ".sample.bbdata"):
		return ContentColumnarSample
	case strings.HasSuffix(key, ".bbdata"):
		return ContentColumnar
	case strings.HasSuffix(key, ".bbdelta"):
		return ContentDelta
	case strings.HasSuffix(key, ".jsonl"):
		return ContentJSONLines
	case strings.HasSuffix(key, ".json"):
		return ContentJSON
	default:
		return ContentUnknown
	}
}
