// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // on-disk digest format
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// fixtureEntry is one entry of a synthetic archive.
type fixtureEntry struct {
	// name is raw index filename, mount prefix included when wanted.
	name string
	data []byte
	// method selects stored form; unsupported tags store data as-is in one block.
	method CompressionMethod
	// blockSize splits data into independently compressed blocks; zero means one implicit block.
	blockSize uint32
	timestamp uint64
	encrypted bool
}

// fixture describes a synthetic archive.
type fixture struct {
	mount     string
	entries   []fixtureEntry
	guid      uuid.UUID
	version   uint32
	layout    FooterLayout
	order     ByteOrder
	magic     MagicLayout
	encrypted bool
}

// rawRecord is one index record with every field explicit.
type rawRecord struct {
	name      string
	blocks    []Block
	offset    uint64
	csize     uint64
	usize     uint64
	timestamp uint64
	hash      [hashSize]byte
	method    uint32
	blockSize uint32
	encrypted bool
}

// footer returns footer template with defaults applied.
func (fx fixture) footer() Footer {
	f := Footer{
		EncryptionKeyGUID: fx.guid,
		Version:           fx.version,
		Layout:            fx.layout,
		ByteOrder:         fx.order,
		Magic:             fx.magic,
		Encrypted:         fx.encrypted,
	}
	if f.Version == 0 {
		f.Version = DefaultVersion
	}
	if f.Layout == FooterAuto {
		f.Layout = FooterLegacy
	}

	return f
}

// build returns archive bytes for fx.
func (fx fixture) build(t testing.TB) []byte {
	t.Helper()

	var data bytes.Buffer
	records := make([]rawRecord, 0, len(fx.entries))
	for _, e := range fx.entries {
		stored, blocks := storeFixtureData(t, e)
		records = append(records, rawRecord{
			name:      e.name,
			offset:    uint64(data.Len()),
			csize:     uint64(len(stored)),
			usize:     uint64(len(e.data)),
			method:    uint32(e.method),
			timestamp: e.timestamp,
			hash:      sha1.Sum(stored), //nolint:gosec // on-disk digest format
			blockSize: e.blockSize,
			blocks:    blocks,
			encrypted: e.encrypted,
		})
		data.Write(stored)
	}

	f := fx.footer()
	return assembleArchive(t, data.Bytes(), encodeRawIndex(t, fx.mount, records, f.Version, f.ByteOrder), f)
}

// storeFixtureData returns stored bytes and block ranges for one entry.
func storeFixtureData(t testing.TB, e fixtureEntry) ([]byte, []Block) {
	t.Helper()

	switch {
	case e.method == CompressionNone:
		return e.data, nil
	case !e.method.Supported():
		return e.data, []Block{{Start: 0, End: uint64(len(e.data))}}
	case e.blockSize == 0:
		return compressChunk(t, e.method, e.data), nil
	}

	var (
		stored bytes.Buffer
		blocks []Block
	)
	for start := 0; start < len(e.data); start += int(e.blockSize) {
		end := min(start+int(e.blockSize), len(e.data))
		chunk := compressChunk(t, e.method, e.data[start:end])
		blocks = append(blocks, Block{Start: uint64(stored.Len()), End: uint64(stored.Len() + len(chunk))})
		stored.Write(chunk)
	}

	return stored.Bytes(), blocks
}

// compressChunk compresses data as one standalone zlib or gzip stream.
func compressChunk(t testing.TB, method CompressionMethod, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	switch method {
	case CompressionZlib:
		w = zlib.NewWriter(&buf)
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	default:
		t.Fatalf("compressChunk: method %s", method)
	}

	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}

	return buf.Bytes()
}

// encodeRawIndex serializes mount point and records exactly as given.
func encodeRawIndex(t testing.TB, mount string, records []rawRecord, version uint32, order ByteOrder) []byte {
	t.Helper()

	bo := order.Binary()
	var buf bytes.Buffer
	if err := appendString(&buf, bo, mount); err != nil {
		t.Fatalf("mount: %v", err)
	}
	buf.Write(bo.AppendUint32(nil, uint32(len(records))))

	for _, r := range records {
		if err := appendString(&buf, bo, r.name); err != nil {
			t.Fatalf("name: %v", err)
		}

		buf.Write(bo.AppendUint64(nil, r.offset))
		buf.Write(bo.AppendUint64(nil, r.csize))
		buf.Write(bo.AppendUint64(nil, r.usize))
		buf.Write(bo.AppendUint32(nil, r.method))
		if version >= timestampVersion {
			buf.Write(bo.AppendUint64(nil, r.timestamp))
		}
		buf.Write(r.hash[:])

		if r.method != uint32(CompressionNone) {
			if version >= blockCountVersion {
				buf.Write(bo.AppendUint32(nil, uint32(len(r.blocks))))
			} else {
				buf.Write(bo.AppendUint32(nil, r.blockSize))
			}
			for _, b := range r.blocks {
				buf.Write(bo.AppendUint64(nil, b.Start))
				buf.Write(bo.AppendUint64(nil, b.End))
			}
		}

		if r.encrypted {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}

	return buf.Bytes()
}

// assembleArchive concatenates data, index and footer f with offsets filled in.
// GUID and encryption flag are written for layouts that carry them.
func assembleArchive(t testing.TB, data, index []byte, f Footer) []byte {
	t.Helper()

	f.IndexOffset = uint64(len(data))
	f.IndexSize = uint64(len(index))
	if f.Layout == FooterExtended {
		f.IndexHash = sha1.Sum(index) //nolint:gosec // on-disk digest format
	}

	footer := encodeFooter(f)
	if f.Layout.hasEncryptionFields() {
		copy(footer[:guidSize], f.EncryptionKeyGUID[:])
		if f.Encrypted {
			footer[footerFlagOffset] = 1
		}
	}

	out := make([]byte, 0, len(data)+len(index)+len(footer))
	out = append(out, data...)
	out = append(out, index...)
	return append(out, footer...)
}

// parseBytes parses archive bytes and fails the test on error.
func parseBytes(t testing.TB, b []byte) *Archive {
	t.Helper()

	a, err := Parse(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	return a
}

// openBytes returns reader over archive bytes.
func openBytes(t testing.TB, b []byte) *Reader {
	t.Helper()

	r, err := NewReaderFromReaderAt(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	return r
}

// writeTempArchive writes b into a temp dir and returns its path.
func writeTempArchive(t testing.TB, b []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.pak")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	return path
}

// memInput returns input serving content from memory.
func memInput(path, content string) Input {
	return Input{
		Path:     path,
		SizeHint: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

// errInput returns input whose Open fails with err.
func errInput(path string, err error) Input {
	return Input{
		Path: path,
		Open: func() (io.ReadCloser, error) {
			return nil, err
		},
	}
}

// entryPaths returns paths of entries in order.
func entryPaths(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}

	return out
}

// failingWriter accepts limit bytes and fails afterwards.
type failingWriter struct {
	err   error
	limit int
	n     int
}

// Write implements io.Writer.
func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		accepted := w.limit - w.n
		w.n = w.limit
		return accepted, w.err
	}

	w.n += len(p)
	return len(p), nil
}

var errSinkFull = errors.New("sink full")

// threeEntryFixture is a small mounted archive: A.txt 12 B, B.txt 0 B, C/D.txt 5 B.
func threeEntryFixture() fixture {
	return fixture{
		mount: "../../../Game/",
		entries: []fixtureEntry{
			{name: "../../../Game/A.txt", data: []byte("hello world!"), timestamp: 1700000000},
			{name: "../../../Game/B.txt", data: []byte{}, timestamp: 1700000001},
			{name: "../../../Game/C/D.txt", data: []byte("12345"), timestamp: 1700000002},
		},
	}
}
