// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for PAK operations. Use errors.Is in callers.
var (
	// ErrFooterNotFound means no candidate footer layout validated.
	ErrFooterNotFound = errors.New("PAK footer not found")
	// ErrUnsupportedCompression means entry uses a compression method that is never decoded.
	ErrUnsupportedCompression = errors.New("unsupported compression method")
	// ErrEncryptedArchive means the archive-level encryption flag is set.
	ErrEncryptedArchive = errors.New("archive is encrypted")
	// ErrEncryptedEntry means the entry cannot be read because it is encrypted.
	ErrEncryptedEntry = errors.New("entry is encrypted")
	// ErrMalformedString means a length-prefixed string field is out of bounds.
	ErrMalformedString = errors.New("malformed string field")
	// ErrIndexCorrupt means the index region is structurally invalid.
	ErrIndexCorrupt = errors.New("index is corrupt")
	// ErrSizeMismatch means decoded payload length differs from declared size.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrDecompressionFailed means a compressed block stream is corrupt.
	ErrDecompressionFailed = errors.New("decompression failed")
	// ErrEntryUnavailable means repack could not obtain source entry content.
	ErrEntryUnavailable = errors.New("entry unavailable for repack")
	// ErrWriteFailed means the output sink rejected bytes.
	ErrWriteFailed = errors.New("write failed")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrNilReader means the reader or source is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrNilArchive means the archive is nil.
	ErrNilArchive = errors.New("archive is nil")
	// ErrClosed means the reader or resource is already closed.
	ErrClosed = errors.New("reader or resource already closed")
	// ErrInvalidEntryPath means an entry path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrDuplicateEntryPath means two inputs resolve to the same path.
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrInvalidExtractPath means archive entry path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrInvalidFilterRule means one or more include/exclude rules are invalid.
	ErrInvalidFilterRule = errors.New("invalid filter rules")
)

// MagicHit is one 4-byte window in the footer area that decodes to a known magic.
type MagicHit struct {
	// Offset is absolute file offset of the window.
	Offset int64 `json:"offset" yaml:"offset"`
	// ByteOrder is the interpretation that produced the match.
	ByteOrder ByteOrder `json:"byte_order" yaml:"byte_order"`
	// Magic is which of the two magic encodings matched.
	Magic MagicLayout `json:"magic" yaml:"magic"`
}

// FooterNotFoundError carries the diagnostic scan of a rejected footer area.
type FooterNotFoundError struct {
	// RawFooter is the trailing bytes inspected (longest candidate layout).
	RawFooter []byte
	// MagicHits lists every window that looked like a magic value.
	MagicHits []MagicHit
	// FileSize is total source size.
	FileSize int64
}

// Error implements error.
func (e *FooterNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: file size %d, footer bytes [%s]", ErrFooterNotFound, e.FileSize, hex.EncodeToString(e.RawFooter))
	if len(e.MagicHits) == 0 {
		b.WriteString(", no magic-like values")
		return b.String()
	}

	b.WriteString(", magic-like values at")
	for _, hit := range e.MagicHits {
		fmt.Fprintf(&b, " %d(%s/%s)", hit.Offset, hit.ByteOrder, hit.Magic)
	}

	return b.String()
}

// Unwrap returns ErrFooterNotFound.
func (e *FooterNotFoundError) Unwrap() error {
	return ErrFooterNotFound
}

// UnsupportedCompressionError reports the raw compression tag that was refused.
type UnsupportedCompressionError struct {
	Tag uint32
}

// Error implements error.
func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("%s: tag %d", ErrUnsupportedCompression, e.Tag)
}

// Unwrap returns ErrUnsupportedCompression.
func (e *UnsupportedCompressionError) Unwrap() error {
	return ErrUnsupportedCompression
}

// EntryError annotates one failed entry operation with diagnostic context.
type EntryError struct {
	// Err is the underlying cause; one of the sentinel errors is always in its chain.
	Err error
	// Archive is archive path or name when known.
	Archive string
	// Entry is the normalized entry path.
	Entry string
	// Offset is absolute entry data offset.
	Offset uint64
	// Expected is declared size for size errors.
	Expected uint64
	// Actual is observed size for size errors.
	Actual uint64
}

// Error implements error.
func (e *EntryError) Error() string {
	var b strings.Builder
	if e.Archive != "" {
		b.WriteString(e.Archive)
		b.WriteString(": ")
	}

	// Expected/Actual are already rendered by the size mismatch cause.
	fmt.Fprintf(&b, "entry %s at offset %d: %v", e.Entry, e.Offset, e.Err)
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *EntryError) Unwrap() error {
	return e.Err
}

// BatchError accumulates one error per failed entry in batch operations.
type BatchError struct {
	// Failures holds one error per failing entry in completion order.
	Failures []error
	// Succeeded counts entries that completed without error.
	Succeeded int
}

// Error implements error.
func (e *BatchError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("1 entry failed (%d succeeded): %v", e.Succeeded, e.Failures[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d entries failed (%d succeeded)", len(e.Failures), e.Succeeded)
	for _, err := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(err.Error())
	}

	return b.String()
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return e.Failures
}

// entryError wraps cause with entry context unless it already carries it.
func entryError(archive string, e *Entry, cause error) error {
	var existing *EntryError
	if errors.As(cause, &existing) {
		return cause
	}

	out := &EntryError{
		Err:     cause,
		Archive: archive,
	}
	if e != nil {
		out.Entry = e.Path
		out.Offset = e.Offset
	}

	var sizeErr *sizeMismatchError
	if errors.As(cause, &sizeErr) {
		out.Expected = sizeErr.expected
		out.Actual = sizeErr.actual
	}

	return out
}

// sizeMismatchError carries expected and actual sizes up to EntryError.
type sizeMismatchError struct {
	expected uint64
	actual   uint64
}

// Error implements error.
func (e *sizeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d bytes, got %d", ErrSizeMismatch, e.expected, e.actual)
}

// Unwrap returns ErrSizeMismatch.
func (e *sizeMismatchError) Unwrap() error {
	return ErrSizeMismatch
}
