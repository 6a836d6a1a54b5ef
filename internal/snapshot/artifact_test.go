package snapshot

import (
	"testing"

	"reach/blackbox/internal/table"
)

func mustTable(t *testing.T) *table.NativeTable {
	t.Helper()
	nt, err := table.NewNativeTable(
		[]string{"id", "name"},
		map[string]string{"id": "int", "name": "string"},
		map[string][]any{"id": {1, 2, 3}, "name": {"alice", "bob", "carol"}},
	)
	if err != nil {
		t.Fatalf("NewNativeTable: %v", err)
	}
	return nt
}

func TestEncodeDecodeArtifactRoundTrip(t *testing.T) {
	nt := mustTable(t)
	for _, codec := range []Codec{CodecNone, CodecGzip, CodecSnappy, CodecZstd, CodecLZ4} {
		data, err := EncodeArtifact(nt, codec)
		if err != nil {
			t.Fatalf("EncodeArtifact(%s): %v", codec, err)
		}
		decoded, err := DecodeArtifact(data)
		if err != nil {
			t.Fatalf("DecodeArtifact(%s): %v", codec, err)
		}
		if decoded.NumRows != 3 || len(decoded.Columns) != 2 {
			t.Fatalf("%s: unexpected shape %+v", codec, decoded)
		}
		if decoded.Columns[1].Values[1] != "bob" {
			t.Fatalf("%s: expected bob, got %v", codec, decoded.Columns[1].Values)
		}
	}
}

func TestDecodeArtifactRejectsBadMagic(t *testing.T) {
	if _, err := DecodeArtifact([]byte("not-an-artifact")); err == nil {
		t.Fatalf("expected error for bad magic")
	}
}
