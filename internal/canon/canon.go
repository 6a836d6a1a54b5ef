// Package canon implements the deterministic JSON encoding and SHA-256
// digest helpers every evidence payload in the recorder is hashed through.
//
// The compact form sorts object keys at every nesting level and emits no
// insignificant whitespace; it is the only representation ever fed to a
// digest. A pretty form (2-space indent, same key order) is used for
// human-readable evidence files on disk. Go's encoding/json already sorts
// map keys, which is the same baseline the teacher's canonicalJSON in
// reach/services/runner/internal/audit relies on; this package generalizes
// that idea to struct values as well as maps, and adds the pretty variant
// spec.md requires for on-disk evidence.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Compact returns the canonical (sorted-key, whitespace-free) JSON
// encoding of v.
func Compact(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return reencodeSorted(raw)
}

// MustCompact is Compact, panicking on marshal errors. It is used where the
// input is already known to be JSON-marshalable (internal evidence
// structs), matching the teacher's "best effort, this can't realistically
// fail" call sites.
func MustCompact(v any) []byte {
	b, err := Compact(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Pretty returns a 2-space-indented, sorted-key JSON encoding of v, for
// human-readable evidence files. Digests are always computed over Compact,
// never Pretty.
func Pretty(v any) ([]byte, error) {
	compact, err := Compact(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reencodeSorted walks decoded JSON and re-marshals it with map keys sorted
// at every depth and HTML-escaping disabled, so non-ASCII content survives
// byte-for-byte and the output is stable regardless of the original struct
// field order.
func reencodeSorted(raw []byte) ([]byte, error) {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := writeSorted(&buf, decoded); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func writeSorted(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := encodeLeaf(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeSorted(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeSorted(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := encodeLeaf(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

func encodeLeaf(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Digest returns the "sha256:"-labeled digest of b, the form used at API
// boundaries (payload_digest, chain entry digest).
func Digest(b []byte) string {
	return "sha256:" + SHA256Hex(b)
}

// DigestJSON canonically encodes v and returns its labeled digest, the
// operation every chained payload goes through before being recorded as
// an entry's payload_digest.
func DigestJSON(v any) (string, error) {
	b, err := Compact(v)
	if err != nil {
		return "", err
	}
	return Digest(b), nil
}

// Unmarshal decodes JSON bytes into v, preserving numeric precision via
// json.Number the same way the canonical encoder does on the write path.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
