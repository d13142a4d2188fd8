// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/exp/mmap"
)

// Reader provides read-only access to a parsed PAK file.
// It is safe for concurrent reads; Close must not race with them.
type Reader struct {
	ra      io.ReaderAt
	closer  io.Closer // set when the source was opened by Open
	archive *Archive

	mu     sync.Mutex
	closed bool
}

// Open opens PAK file by path and parses footer and index.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ParseOptions{})
}

// OpenWithOptions opens PAK file by path using explicit parse options.
// With MemoryMap set the file is mapped read-only instead of read with pread.
func OpenWithOptions(path string, opts ParseOptions) (*Reader, error) {
	if opts.Name == "" {
		opts.Name = path
	}

	src, size, err := openSource(path, opts.MemoryMap)
	if err != nil {
		return nil, err
	}

	r, err := NewReaderFromReaderAtWithOptions(src, size, opts)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	r.closer = src
	return r, nil
}

// readSource is a random-access source owned by a Reader.
type readSource interface {
	io.ReaderAt
	io.Closer
}

// openSource opens path as a plain file or a read-only mapping.
func openSource(path string, memoryMap bool) (readSource, int64, error) {
	if !memoryMap {
		f, size, err := openSized(path)
		if err != nil {
			return nil, 0, err
		}

		return f, size, nil
	}

	m, err := mmap.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("map archive: %w", err)
	}

	return m, int64(m.Len()), nil
}

// NewReaderFromReaderAt parses PAK from existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderFromReaderAtWithOptions(ra, size, ParseOptions{})
}

// NewReaderFromReaderAtWithOptions parses PAK from existing ReaderAt using explicit parse options.
func NewReaderFromReaderAtWithOptions(ra io.ReaderAt, size int64, opts ParseOptions) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	a, err := ParseWithOptions(ra, size, opts)
	if err != nil {
		return nil, err
	}

	return &Reader{ra: ra, archive: a}, nil
}

// Archive returns parsed archive summary.
func (r *Reader) Archive() *Archive {
	if r == nil {
		return nil
	}

	return r.archive
}

// Entries returns logical entries in index order.
func (r *Reader) Entries() []Entry {
	if r == nil {
		return nil
	}

	return r.archive.Entries()
}

// ReadEntry returns fully decoded content of logical entry path.
func (r *Reader) ReadEntry(path string) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	return Extract(r.archive, path, r.ra)
}

// Close closes the underlying source if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}

	return nil
}

// checkOpen reports ErrNilReader or ErrClosed for unusable readers.
func (r *Reader) checkOpen() error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}
