// Package snapshot implements the size-estimating columnar snapshot
// policy engine: it decides whether to materialize a full or sampled
// columnar artifact for a step's input/output table, writes it through a
// pluggable compression codec, and (in async mode) drains pending writes
// on run finish.
//
// The container format is self-designed rather than a byte-for-byte port
// of an external columnar spec (no pack example carries real Arrow/Parquet
// source, only dependency-manifest mentions — see DESIGN.md): a short
// header, then one length-prefixed, independently compressed block per
// column, each holding newline-joined canonical-text cell values.
package snapshot

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"reach/blackbox/internal/table"
)

// Codec names the compression algorithm applied to each column block.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecGzip   Codec = "gzip"
	CodecSnappy Codec = "snappy"
	CodecZstd   Codec = "zstd"
	CodecLZ4    Codec = "lz4"
)

const magic = "BBDATA01"

// EncodeArtifact serializes t into the columnar container format,
// compressing every column block with codec.
func EncodeArtifact(t table.Table, codec Codec) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeUint8(&buf, byte(codecID(codec)))

	cols := t.Columns()
	writeUint32(&buf, uint32(len(cols)))
	writeUint32(&buf, uint32(t.NumRows()))

	for _, col := range cols {
		writeString(&buf, col)
		writeString(&buf, t.DType(col))

		raw := encodeColumn(t, col)
		compressed, err := compress(codec, raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot: compress column %q: %w", col, err)
		}
		writeUint32(&buf, uint32(len(compressed)))
		buf.Write(compressed)
	}

	return buf.Bytes(), nil
}

// DecodeArtifact parses bytes produced by EncodeArtifact back into column
// name/dtype/text triples, for round-trip verification and sample
// inspection tooling.
type DecodedColumn struct {
	Name   string
	DType  string
	Values []string
}

type DecodedArtifact struct {
	NumRows int
	Columns []DecodedColumn
}

func DecodeArtifact(data []byte) (*DecodedArtifact, error) {
	r := bytes.NewReader(data)
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	if string(hdr) != magic {
		return nil, fmt.Errorf("snapshot: bad magic %q", hdr)
	}
	codecByte, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	codec := codecFromID(int(codecByte))

	numCols, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	numRows, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	out := &DecodedArtifact{NumRows: int(numRows)}
	for i := uint32(0); i < numCols; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		dtype, err := readString(r)
		if err != nil {
			return nil, err
		}
		blockLen, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		block := make([]byte, blockLen)
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, err
		}
		raw, err := decompress(codec, block)
		if err != nil {
			return nil, fmt.Errorf("snapshot: decompress column %q: %w", name, err)
		}
		out.Columns = append(out.Columns, DecodedColumn{
			Name:   name,
			DType:  dtype,
			Values: decodeColumn(raw, int(numRows)),
		})
	}
	return out, nil
}

func encodeColumn(t table.Table, col string) []byte {
	var buf bytes.Buffer
	n := t.NumRows()
	for r := 0; r < n; r++ {
		if r > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(table.CellText(t.Cell(r, col)))
	}
	return buf.Bytes()
}

func decodeColumn(raw []byte, numRows int) []string {
	if numRows == 0 {
		return nil
	}
	out := make([]string, 0, numRows)
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

func codecID(c Codec) int {
	switch c {
	case CodecGzip:
		return 1
	case CodecSnappy:
		return 2
	case CodecZstd:
		return 3
	case CodecLZ4:
		return 4
	default:
		return 0
	}
}

func codecFromID(id int) Codec {
	switch id {
	case 1:
		return CodecGzip
	case 2:
		return CodecSnappy
	case 3:
		return CodecZstd
	case 4:
		return CodecLZ4
	default:
		return CodecNone
	}
}

func compress(codec Codec, raw []byte) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return raw, nil
	case CodecGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CodecSnappy:
		return snappy.Encode(nil, raw), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case CodecLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown codec %q", codec)
	}
}

func decompress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return data, nil
	case CodecGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CodecSnappy:
		return snappy.Decode(nil, data)
	case CodecZstd:
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	case CodecLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("snapshot: unknown codec %q", codec)
	}
}

func writeUint8(buf *bytes.Buffer, v byte) { buf.WriteByte(v) }

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint8(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
