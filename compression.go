// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// blockDecoder decodes one independently framed block stream.
type blockDecoder interface {
	io.Reader
	reset(r io.Reader) error
	release()
}

// zlibDecoder wraps pooled zlib reader.
type zlibDecoder struct {
	rc io.ReadCloser
}

// gzipDecoder wraps pooled gzip reader.
type gzipDecoder struct {
	gr *gzip.Reader
}

var (
	zlibPool sync.Pool
	gzipPool sync.Pool
)

// Read implements io.Reader.
func (d *zlibDecoder) Read(p []byte) (int, error) { return d.rc.Read(p) }

// reset rebinds decoder to new block stream.
func (d *zlibDecoder) reset(r io.Reader) error {
	if d.rc == nil {
		rc, err := zlib.NewReader(r)
		if err != nil {
			return err
		}

		d.rc = rc
		return nil
	}

	return d.rc.(zlib.Resetter).Reset(r, nil)
}

// release returns decoder to pool.
func (d *zlibDecoder) release() {
	zlibPool.Put(d)
}

// Read implements io.Reader.
func (d *gzipDecoder) Read(p []byte) (int, error) { return d.gr.Read(p) }

// reset rebinds decoder to new block stream.
func (d *gzipDecoder) reset(r io.Reader) error {
	if d.gr == nil {
		gr, err := gzip.NewReader(r)
		if err != nil {
			return err
		}

		d.gr = gr
		return nil
	}

	return d.gr.Reset(r)
}

// release returns decoder to pool.
func (d *gzipDecoder) release() {
	gzipPool.Put(d)
}

// acquireDecoder returns a pooled decoder for supported compressed methods.
func acquireDecoder(method CompressionMethod) blockDecoder {
	switch method {
	case CompressionZlib:
		if d, ok := zlibPool.Get().(*zlibDecoder); ok {
			return d
		}

		return &zlibDecoder{}
	case CompressionGzip:
		if d, ok := gzipPool.Get().(*gzipDecoder); ok {
			return d
		}

		return &gzipDecoder{}
	default:
		return nil
	}
}

// Decompress reconstructs entry content from its stored bytes.
// raw starts at the entry offset; blocks index into it. Empty blocks means one
// implicit block covering raw[:len(raw)]. Output never grows past uncompressedSize.
func Decompress(method CompressionMethod, blocks []Block, raw []byte, uncompressedSize uint64) ([]byte, error) {
	if !method.Supported() {
		return nil, &UnsupportedCompressionError{Tag: uint32(method)}
	}

	if method == CompressionNone {
		if uint64(len(raw)) != uncompressedSize {
			return nil, &sizeMismatchError{expected: uncompressedSize, actual: uint64(len(raw))}
		}

		return raw, nil
	}

	if uncompressedSize > uint64(maxInt) {
		return nil, &sizeMismatchError{expected: uncompressedSize, actual: 0}
	}

	dec := acquireDecoder(method)
	defer dec.release()

	out := bytes.NewBuffer(make([]byte, 0, int(min(uncompressedSize, maxPreallocSize))))
	if len(blocks) == 0 {
		if err := decodeBlock(dec, raw, out, uncompressedSize); err != nil {
			return nil, err
		}
	}

	for idx, block := range blocks {
		if block.End < block.Start || block.End > uint64(len(raw)) {
			return nil, fmt.Errorf("%w: block %d [%d,%d) outside stored span %d", ErrIndexCorrupt, idx, block.Start, block.End, len(raw))
		}

		if err := decodeBlock(dec, raw[block.Start:block.End], out, uncompressedSize); err != nil {
			return nil, fmt.Errorf("block %d: %w", idx, err)
		}
	}

	if uint64(out.Len()) != uncompressedSize {
		return nil, &sizeMismatchError{expected: uncompressedSize, actual: uint64(out.Len())}
	}

	return out.Bytes(), nil
}

// decodeBlock appends one decoded block to out, stopping one byte past limit.
func decodeBlock(dec blockDecoder, block []byte, out *bytes.Buffer, limit uint64) error {
	if err := dec.reset(bytes.NewReader(block)); err != nil {
		return fmt.Errorf("%w: %w", ErrDecompressionFailed, err)
	}

	room := int64(limit-uint64(out.Len())) + 1
	n, err := out.ReadFrom(io.LimitReader(dec, room))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecompressionFailed, err)
	}

	if n == room {
		return &sizeMismatchError{expected: limit, actual: uint64(out.Len())}
	}

	return nil
}

const (
	// maxInt is the largest slice length on this platform.
	maxInt = int(^uint(0) >> 1)
	// maxPreallocSize caps output preallocation taken from declared sizes.
	maxPreallocSize = 64 * 1024 * 1024
)
