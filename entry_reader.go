// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"errors"
	"fmt"
	"io"
)

// Extract returns fully decoded content of the logical entry at name.
func Extract(a *Archive, name string, src io.ReaderAt) ([]byte, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	e, ok := a.Entry(name)
	if !ok {
		return nil, archiveError(a.Name, fmt.Errorf("%w: %s", ErrEntryNotFound, name))
	}

	return ExtractEntry(a, e, src)
}

// ExtractEntry returns fully decoded content of e. Encrypted entries and archives
// are refused before any payload read. Only positioned reads are used, so one
// source may serve concurrent calls.
func ExtractEntry(a *Archive, e Entry, src io.ReaderAt) ([]byte, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	if src == nil {
		return nil, ErrNilReader
	}

	if err := checkReadable(a, &e); err != nil {
		return nil, entryError(a.Name, &e, err)
	}

	raw, err := readStoredSpan(src, &e)
	if err != nil {
		return nil, entryError(a.Name, &e, err)
	}

	data, err := Decompress(e.Method, e.Blocks, raw, e.UncompressedSize)
	if err != nil {
		return nil, entryError(a.Name, &e, err)
	}

	return data, nil
}

// checkReadable refuses encrypted or undecodable entries.
func checkReadable(a *Archive, e *Entry) error {
	switch {
	case a.ArchiveEncrypted:
		return fmt.Errorf("%w: %w", ErrEncryptedEntry, ErrEncryptedArchive)
	case e.Encrypted:
		return ErrEncryptedEntry
	case !e.Method.Supported():
		return &UnsupportedCompressionError{Tag: uint32(e.Method)}
	default:
		return nil
	}
}

// readStoredSpan reads stored bytes of entry starting at its offset.
func readStoredSpan(src io.ReaderAt, e *Entry) ([]byte, error) {
	span := storedSpan(e)
	if e.Method == CompressionNone {
		span = e.CompressedSize
	}

	if span > uint64(maxInt) || e.Offset > uint64(maxInt64) {
		return nil, fmt.Errorf("%w: stored span %d at %d out of range", ErrIndexCorrupt, span, e.Offset)
	}

	buf := make([]byte, int(span))
	if span == 0 {
		return buf, nil
	}

	n, err := src.ReadAt(buf, int64(e.Offset))
	if n == len(buf) {
		return buf, nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return nil, fmt.Errorf("read %d bytes at %d: %w", span, e.Offset, err)
}

// maxInt64 is the largest valid ReadAt offset.
const maxInt64 = 1<<63 - 1
