// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // SHA1 is the on-disk digest format
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// defaultRepackWriterPool reuses default-sized bufio writers between Repack calls.
	defaultRepackWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
)

// rewriteEntry describes one payload source for archive rewrite core.
type rewriteEntry struct {
	// input is replacement or new content; nil means copy from source.
	input *Input
	// source is original record, kept for replaced records too.
	source *Entry
	path   string
}

// rewriteTarget is the container shape written by rewrite core.
type rewriteTarget struct {
	mountPoint string
	version    uint32
	order      ByteOrder
	magic      MagicLayout
	layout     FooterLayout
}

// gathered is one resolved payload waiting for ordered write.
type gathered struct {
	data      []byte
	timestamp uint64
}

// Repack rebuilds archive a with replacements applied. Output keeps original
// record order (a replacement applies to every duplicate record of its path) and
// appends new paths in slice order. All entries are stored uncompressed. Source
// version, magic, byte order and footer layout are preserved.
func Repack(
	ctx context.Context,
	a *Archive,
	replacements []Input,
	src io.ReaderAt,
	sink io.Writer,
	opts RepackOptions,
) (*RepackResult, error) {
	if a == nil {
		return nil, ErrNilArchive
	}

	if sink == nil {
		return nil, ErrNilWriter
	}

	if opts.Name == "" {
		opts.Name = a.Name
	}

	normalized, err := normalizeInputs(replacements)
	if err != nil {
		return nil, err
	}

	plan, replaced, added := buildRepackPlan(a.records, normalized)
	target := rewriteTarget{
		mountPoint: a.MountPoint,
		version:    a.Version,
		order:      a.ByteOrder,
		magic:      a.Magic,
		layout:     a.Layout,
	}

	res, err := rewriteArchive(ctx, a, src, sink, plan, target, opts)
	if err != nil {
		return nil, err
	}

	res.ReplacedEntries = replaced
	res.AddedEntries = added
	return res, nil
}

// Create writes a fresh archive with inputs in slice order.
func Create(ctx context.Context, sink io.Writer, inputs []Input, opts CreateOptions) (*RepackResult, error) {
	if sink == nil {
		return nil, ErrNilWriter
	}

	opts.applyDefaults()
	if opts.Version < minVersion || opts.Version > maxVersion {
		return nil, fmt.Errorf("unsupported version %d", opts.Version)
	}

	normalized, err := normalizeInputs(inputs)
	if err != nil {
		return nil, err
	}

	plan := make([]rewriteEntry, 0, len(normalized))
	for i := range normalized {
		plan = append(plan, rewriteEntry{path: normalized[i].Path, input: &normalized[i]})
	}

	target := rewriteTarget{
		mountPoint: opts.MountPoint,
		version:    opts.Version,
		order:      opts.ByteOrder,
		magic:      opts.Magic,
		layout:     opts.Layout,
	}

	res, err := rewriteArchive(ctx, nil, nil, sink, plan, target, opts.RepackOptions)
	if err != nil {
		return nil, err
	}

	res.AddedEntries = len(plan)
	return res, nil
}

// RepackFile repacks srcPath into dstPath through a temporary file in the
// destination directory that is synced and renamed into place on success.
// srcPath and dstPath may be equal.
func RepackFile(
	ctx context.Context,
	srcPath string,
	dstPath string,
	replacements []Input,
	opts RepackOptions,
) (*RepackResult, error) {
	r, err := OpenWithOptions(srcPath, opts.sourceParseOptions(""))
	if err != nil {
		return nil, err
	}

	res, tmpPath, err := repackToTemp(ctx, r, dstPath, replacements, opts)
	closeErr := r.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("close source: %w", closeErr)
	}

	if err != nil {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}

		return nil, err
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("move repacked archive into place: %w", err)
	}

	res.Archive.Name = dstPath
	return res, nil
}

// repackToTemp writes repacked archive to a synced temp file next to dstPath.
func repackToTemp(
	ctx context.Context,
	r *Reader,
	dstPath string,
	replacements []Input,
	opts RepackOptions,
) (*RepackResult, string, error) {
	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dstPath)+".*.tmp")
	if err != nil {
		return nil, "", fmt.Errorf("create temp archive: %w", err)
	}

	tmpPath := tmp.Name()
	res, err := Repack(ctx, r.archive, replacements, r.ra, tmp, opts)
	if err != nil {
		_ = tmp.Close()
		return nil, tmpPath, err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, tmpPath, fmt.Errorf("sync temp archive: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return nil, tmpPath, fmt.Errorf("close temp archive: %w", err)
	}

	return res, tmpPath, nil
}

// normalizeInputs canonicalizes input paths and rejects duplicates.
func normalizeInputs(inputs []Input) ([]Input, error) {
	out := make([]Input, len(inputs))
	copy(out, inputs)

	for i := range out {
		normalizedPath, err := normalizeArchiveEntryPath(out[i].Path)
		if err != nil {
			return nil, err
		}

		out[i].Path = normalizedPath
	}

	if err := validateUniqueEntryPaths(out); err != nil {
		return nil, err
	}

	return out, nil
}

// validateUniqueEntryPaths rejects repeated input paths.
func validateUniqueEntryPaths(inputs []Input) error {
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if _, exists := seen[in.Path]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateEntryPath, in.Path)
		}

		seen[in.Path] = struct{}{}
	}

	return nil
}

// buildRepackPlan keeps record order, applies replacements to every matching
// record and appends unmatched inputs in slice order.
func buildRepackPlan(records []Entry, inputs []Input) ([]rewriteEntry, int, int) {
	byPath := make(map[string]*Input, len(inputs))
	for i := range inputs {
		byPath[inputs[i].Path] = &inputs[i]
	}

	used := make(map[string]struct{}, len(inputs))
	plan := make([]rewriteEntry, 0, len(records)+len(inputs))
	replaced := 0
	for i := range records {
		item := rewriteEntry{path: records[i].Path, source: &records[i]}
		if in, ok := byPath[records[i].Path]; ok {
			item.input = in
			used[in.Path] = struct{}{}
			replaced++
		}

		plan = append(plan, item)
	}

	added := 0
	for i := range inputs {
		if _, ok := used[inputs[i].Path]; ok {
			continue
		}

		plan = append(plan, rewriteEntry{path: inputs[i].Path, input: &inputs[i]})
		added++
	}

	return plan, replaced, added
}

// preflightRewrite refuses plans that would certainly fail after bytes reached the sink.
func preflightRewrite(a *Archive, src io.ReaderAt, plan []rewriteEntry, name string) error {
	for i := range plan {
		item := &plan[i]
		if item.input != nil {
			if item.input.Open == nil {
				return entryError(name, &Entry{Path: item.path}, fmt.Errorf("%w: input has no Open", ErrEntryUnavailable))
			}

			continue
		}

		if src == nil {
			return entryError(name, item.source, fmt.Errorf("%w: %w", ErrEntryUnavailable, ErrNilReader))
		}

		if err := checkReadable(a, item.source); err != nil {
			return entryError(name, item.source, fmt.Errorf("%w: %w", ErrEntryUnavailable, err))
		}
	}

	return nil
}

// rewriteArchive is shared writer core for Repack, Create and editor commit flows.
// Payloads are gathered in parallel windows bounded by MaxBufferedBytes and
// written strictly in plan order, followed by index and footer.
func rewriteArchive(
	ctx context.Context,
	a *Archive,
	src io.ReaderAt,
	sink io.Writer,
	plan []rewriteEntry,
	target rewriteTarget,
	opts RepackOptions,
) (*RepackResult, error) {
	startedAt := time.Now()

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	logger := loggerOrDiscard(opts.Logger)

	if target.layout == FooterAuto {
		target.layout = FooterLegacy
	}

	if err := preflightRewrite(a, src, plan, opts.Name); err != nil {
		return nil, err
	}

	w, releaseWriter := acquireRepackWriter(sink, opts.WriterBufferSize)
	defer releaseWriter()
	cw := &countingWriter{w: w}

	records := make([]Entry, 0, len(plan))
	for start := 0; start < len(plan); {
		end := nextWindow(plan, start, opts.MaxBufferedBytes)
		window, err := gatherWindow(ctx, a, src, plan[start:end], opts)
		if err != nil {
			return nil, err
		}

		for i, item := range window {
			entry := plan[start+i]
			record := Entry{
				Path:             entry.path,
				Offset:           uint64(cw.n),
				CompressedSize:   uint64(len(item.data)),
				UncompressedSize: uint64(len(item.data)),
				Method:           CompressionNone,
				HasTimestamp:     target.version >= timestampVersion,
				Hash:             sha1.Sum(item.data), //nolint:gosec // on-disk digest format
			}
			if record.HasTimestamp {
				record.Timestamp = item.timestamp
			}

			if _, err := cw.Write(item.data); err != nil {
				return nil, writeFailed(fmt.Sprintf("entry %s", entry.path), err)
			}

			records = append(records, record)
			if opts.OnEntryDone != nil {
				opts.OnEntryDone(record)
			}

			window[i].data = nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start = end
	}

	dataSize := cw.n
	index, err := encodeIndex(target.mountPoint, records, target.version, target.order)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}

	if _, err := cw.Write(index); err != nil {
		return nil, writeFailed("index", err)
	}

	footer := Footer{
		IndexOffset: uint64(dataSize),
		IndexSize:   uint64(len(index)),
		Version:     target.version,
		Layout:      target.layout,
		ByteOrder:   target.order,
		Magic:       target.magic,
	}
	if target.layout == FooterExtended {
		footer.IndexHash = sha1.Sum(index) //nolint:gosec // on-disk digest format
	}

	if _, err := cw.Write(encodeFooter(footer)); err != nil {
		return nil, writeFailed("footer", err)
	}

	if err := w.Flush(); err != nil {
		return nil, writeFailed("flush", err)
	}

	out := newArchive(footer, target.mountPoint, records)
	out.Size = cw.n

	logger.Debug("rewrote PAK archive",
		"archive", opts.Name,
		"entries", len(records),
		"data_size", dataSize,
		"index_size", len(index),
		"total_size", cw.n,
	)

	return &RepackResult{
		Archive:        out,
		WrittenEntries: len(records),
		DataSize:       dataSize,
		IndexSize:      int64(len(index)),
		TotalSize:      cw.n,
		Duration:       time.Since(startedAt),
	}, nil
}

// nextWindow returns end index of gather window starting at start.
// A window always holds at least one item.
func nextWindow(plan []rewriteEntry, start int, budget int64) int {
	var total int64
	end := start
	for end < len(plan) {
		size := estimatedSize(&plan[end])
		if end > start && total+size > budget {
			break
		}

		total += size
		end++
	}

	return end
}

// estimatedSize returns expected payload size of one plan item.
func estimatedSize(item *rewriteEntry) int64 {
	if item.input != nil {
		return max(item.input.SizeHint, 0)
	}

	return int64(min(item.source.UncompressedSize, uint64(maxInt64)))
}

// gatherWindow resolves payloads of one window on a bounded worker pool.
func gatherWindow(
	ctx context.Context,
	a *Archive,
	src io.ReaderAt,
	items []rewriteEntry,
	opts RepackOptions,
) ([]gathered, error) {
	out := make([]gathered, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)

	for i := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			item := &items[i]
			if item.input != nil {
				data, err := readInput(*item.input)
				if err != nil {
					return entryError(opts.Name, &Entry{Path: item.path}, fmt.Errorf("%w: %w", ErrEntryUnavailable, err))
				}

				out[i] = gathered{data: data, timestamp: inputTimestamp(item)}
				return nil
			}

			data, err := ExtractEntry(a, *item.source, src)
			if err != nil {
				return entryError(opts.Name, item.source, fmt.Errorf("%w: %w", ErrEntryUnavailable, err))
			}

			out[i] = gathered{data: data, timestamp: item.source.Timestamp}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// inputTimestamp returns unix seconds of input ModTime, or the replaced record timestamp.
func inputTimestamp(item *rewriteEntry) uint64 {
	if !item.input.ModTime.IsZero() && item.input.ModTime.Unix() > 0 {
		return uint64(item.input.ModTime.Unix())
	}

	if item.source != nil {
		return item.source.Timestamp
	}

	return 0
}

// readInput opens input and reads it fully.
func readInput(in Input) ([]byte, error) {
	rc, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", in.Path, err)
	}

	var buf bytes.Buffer
	if in.SizeHint > 0 && in.SizeHint <= maxPreallocSize {
		buf.Grow(int(in.SizeHint))
	}

	_, readErr := buf.ReadFrom(rc)
	closeErr := rc.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read input %s: %w", in.Path, readErr)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("close input %s: %w", in.Path, closeErr)
	}

	return buf.Bytes(), nil
}

// acquireRepackWriter returns a buffered writer and release callback.
func acquireRepackWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultRepackWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultRepackWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// countingWriter tracks absolute output position.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write implements io.Writer.
func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// writeFailed wraps sink error as ErrWriteFailed.
func writeFailed(what string, err error) error {
	if errors.Is(err, ErrWriteFailed) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", ErrWriteFailed, what, err)
}
