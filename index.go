// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Fixed record widths used by the entry-count sanity bound.
const (
	recordFixedSize     = 4 + 8 + 8 + 8 + 4 + hashSize + 1 // empty filename, uncompressed record
	recordTimestampSize = 8
	blockRecordSize     = 16
)

// minRecordSize returns smallest possible record size for version.
func minRecordSize(version uint32) int {
	if version >= timestampVersion {
		return recordFixedSize + recordTimestampSize
	}

	return recordFixedSize
}

// readIndexRegion reads the whole index region into memory.
func readIndexRegion(src io.ReaderAt, f Footer) ([]byte, error) {
	if f.IndexSize > uint64(maxInt) {
		return nil, fmt.Errorf("%w: index size %d too large", ErrIndexCorrupt, f.IndexSize)
	}

	buf := make([]byte, int(f.IndexSize))
	n, err := src.ReadAt(buf, int64(f.IndexOffset))
	if n == len(buf) {
		return buf, nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return nil, fmt.Errorf("read index at %d: %w", f.IndexOffset, err)
}

// parseIndex decodes mount point and all records in physical order.
func parseIndex(region []byte, f Footer) (string, []Entry, error) {
	c := newCursor(region, f.ByteOrder)

	mountPoint, err := readString(c)
	if err != nil {
		return "", nil, fmt.Errorf("%w: mount point: %w", ErrIndexCorrupt, err)
	}

	count, ok := c.u32()
	if !ok {
		return "", nil, fmt.Errorf("%w: truncated entry count", ErrIndexCorrupt)
	}

	if uint64(count)*uint64(minRecordSize(f.Version)) > uint64(c.remaining()) {
		return "", nil, fmt.Errorf("%w: entry count %d exceeds index size %d", ErrIndexCorrupt, count, f.IndexSize)
	}

	records := make([]Entry, 0, count)
	for idx := range int(count) {
		entry, err := parseRecord(c, f.Version, mountPoint)
		if err != nil {
			return "", nil, fmt.Errorf("%w: record %d: %w", ErrIndexCorrupt, idx, err)
		}

		if err := validateRecord(&entry, f.IndexOffset); err != nil {
			return "", nil, fmt.Errorf("%w: record %d %s: %w", ErrIndexCorrupt, idx, entry.Path, err)
		}

		records = append(records, entry)
	}

	if rest := c.remaining(); rest != 0 {
		return "", nil, fmt.Errorf("%w: %d bytes after last record", ErrIndexCorrupt, rest)
	}

	return mountPoint, records, nil
}

// errTruncatedRecord is returned when a fixed field spills past the index region.
var errTruncatedRecord = errors.New("record exceeds index region")

// parseRecord decodes one entry record at cursor.
func parseRecord(c *cursor, version uint32, mountPoint string) (Entry, error) {
	rawName, err := readString(c)
	if err != nil {
		return Entry{}, fmt.Errorf("filename: %w", err)
	}

	var entry Entry
	entry.Path = normalizeRecordPath(rawName, mountPoint)
	if entry.Path == "" {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidEntryPath, rawName)
	}

	var (
		method uint32
		ok     = true
	)
	entry.Offset, ok = readU64(c, ok)
	entry.CompressedSize, ok = readU64(c, ok)
	entry.UncompressedSize, ok = readU64(c, ok)
	method, ok = readU32(c, ok)
	entry.Method = CompressionMethod(method)

	if version >= timestampVersion {
		entry.HasTimestamp = true
		entry.Timestamp, ok = readU64(c, ok)
	}

	if !ok {
		return Entry{}, errTruncatedRecord
	}

	hash, ok := c.take(hashSize)
	if !ok {
		return Entry{}, errTruncatedRecord
	}
	copy(entry.Hash[:], hash)

	if entry.Method != CompressionNone {
		if err := parseBlocks(c, version, &entry); err != nil {
			return Entry{}, err
		}
	}

	flag, ok := c.u8()
	if !ok {
		return Entry{}, errTruncatedRecord
	}
	entry.Encrypted = flag != 0

	return entry, nil
}

// parseBlocks decodes the block table of a compressed record. From version 3
// the table is an explicit count followed by ranges. Older records store the
// nominal block size instead and the count is ceil(uncompressed/blockSize).
func parseBlocks(c *cursor, version uint32, entry *Entry) error {
	var count uint64
	if version >= blockCountVersion {
		explicit, ok := c.u32()
		if !ok {
			return errTruncatedRecord
		}

		count = uint64(explicit)
	} else {
		blockSize, ok := c.u32()
		if !ok {
			return errTruncatedRecord
		}

		entry.BlockSize = blockSize
		count = implicitBlockCount(entry.UncompressedSize, blockSize)
	}

	if count > uint64(c.remaining())/blockRecordSize {
		return fmt.Errorf("block count %d exceeds index region", count)
	}

	if count == 0 {
		return nil
	}

	entry.Blocks = make([]Block, 0, count)
	for range count {
		start, _ := c.u64()
		end, _ := c.u64()
		entry.Blocks = append(entry.Blocks, Block{Start: start, End: end})
	}

	return nil
}

// implicitBlockCount returns number of blockSize chunks covering size.
// Zero blockSize means one implicit block with no table.
func implicitBlockCount(size uint64, blockSize uint32) uint64 {
	if blockSize == 0 {
		return 0
	}

	return (size + uint64(blockSize) - 1) / uint64(blockSize)
}

// validateRecord enforces per-entry structural invariants.
func validateRecord(e *Entry, indexOffset uint64) error {
	if e.Offset > indexOffset || e.CompressedSize > indexOffset-e.Offset {
		return fmt.Errorf("data [%d,+%d) overlaps index at %d", e.Offset, e.CompressedSize, indexOffset)
	}

	if e.Method == CompressionNone {
		if e.CompressedSize != e.UncompressedSize {
			return fmt.Errorf("uncompressed entry sizes differ: %d != %d", e.CompressedSize, e.UncompressedSize)
		}

		return nil
	}

	if len(e.Blocks) == 0 {
		return nil
	}

	var (
		prevEnd uint64
		total   uint64
	)
	for idx, block := range e.Blocks {
		if block.End <= block.Start {
			return fmt.Errorf("block %d [%d,%d) is empty or reversed", idx, block.Start, block.End)
		}

		if idx > 0 && block.Start < prevEnd {
			return fmt.Errorf("block %d [%d,%d) overlaps previous end %d", idx, block.Start, block.End, prevEnd)
		}

		prevEnd = block.End
		total += block.Size()
	}

	if total != e.CompressedSize {
		return fmt.Errorf("block spans total %d, compressed size %d", total, e.CompressedSize)
	}

	if prevEnd > indexOffset-e.Offset {
		return fmt.Errorf("last block end %d overlaps index at %d", e.Offset+prevEnd, indexOffset)
	}

	return nil
}

// readU64 reads u64 only while previous reads succeeded.
func readU64(c *cursor, ok bool) (uint64, bool) {
	if !ok {
		return 0, false
	}

	return c.u64()
}

// readU32 reads u32 only while previous reads succeeded.
func readU32(c *cursor, ok bool) (uint32, bool) {
	if !ok {
		return 0, false
	}

	return c.u32()
}

// storedSpan returns byte length to read from entry offset to cover all blocks.
func storedSpan(e *Entry) uint64 {
	span := e.CompressedSize
	if n := len(e.Blocks); n > 0 && e.Blocks[n-1].End > span {
		span = e.Blocks[n-1].End
	}

	return span
}

// encodeIndex serializes mount point and records. Records must be uncompressed.
func encodeIndex(mountPoint string, records []Entry, version uint32, order ByteOrder) ([]byte, error) {
	bo := order.Binary()
	var buf bytes.Buffer
	buf.Grow(64 + len(records)*(minRecordSize(version)+32))

	if err := appendString(&buf, bo, mountPoint); err != nil {
		return nil, fmt.Errorf("mount point: %w", err)
	}

	if uint64(len(records)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("too many entries: %d", len(records))
	}
	buf.Write(bo.AppendUint32(nil, uint32(len(records))))

	scratch := make([]byte, 0, 64)
	for idx := range records {
		e := &records[idx]
		if e.Method != CompressionNone || len(e.Blocks) > 0 {
			return nil, fmt.Errorf("record %s: only uncompressed records can be written", e.Path)
		}

		if err := appendString(&buf, bo, e.Path); err != nil {
			return nil, fmt.Errorf("record %s: %w", e.Path, err)
		}

		scratch = scratch[:0]
		scratch = bo.AppendUint64(scratch, e.Offset)
		scratch = bo.AppendUint64(scratch, e.CompressedSize)
		scratch = bo.AppendUint64(scratch, e.UncompressedSize)
		scratch = bo.AppendUint32(scratch, uint32(e.Method))
		if version >= timestampVersion {
			scratch = bo.AppendUint64(scratch, e.Timestamp)
		}
		scratch = append(scratch, e.Hash[:]...)
		scratch = append(scratch, 0)
		buf.Write(scratch)
	}

	return buf.Bytes(), nil
}
