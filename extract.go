// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ExtractEntries decodes entries on a bounded worker pool and hands each result to fn.
// fn calls are serialized. One failing entry does not stop the others; failures
// are returned together as *BatchError.
func ExtractEntries(
	ctx context.Context,
	a *Archive,
	src io.ReaderAt,
	entries []Entry,
	opts ExtractOptions,
	fn func(entry Entry, data []byte) error,
) error {
	if a == nil {
		return ErrNilArchive
	}

	if src == nil {
		return ErrNilReader
	}

	opts.applyDefaults()
	if entries == nil {
		entries = a.Entries()
	}

	var deliverMu sync.Mutex
	return runEntryPool(ctx, entries, opts.MaxWorkers, func(entry Entry) error {
		data, err := ExtractEntry(a, entry, src)
		if err != nil {
			return err
		}

		if fn == nil {
			return nil
		}

		deliverMu.Lock()
		defer deliverMu.Unlock()
		if err := fn(entry, data); err != nil {
			return entryError(a.Name, &entry, err)
		}

		return nil
	})
}

// runEntryPool runs task for every entry on at most workers goroutines and
// accumulates failures into *BatchError. Context cancellation stops dispatch.
func runEntryPool[T any](ctx context.Context, items []T, workers int, task func(T) error) error {
	if len(items) == 0 {
		return nil
	}

	workers = max(1, min(workers, len(items)))
	taskCh := make(chan T)
	errCh := make(chan error, len(items))

	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for item := range taskCh {
				if err := ctx.Err(); err != nil {
					errCh <- err
					continue
				}

				errCh <- task(item)
			}
		})
	}

	var dispatchErr error
dispatch:
	for _, item := range items {
		select {
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		case taskCh <- item:
		}
	}

	close(taskCh)
	wg.Wait()
	close(errCh)

	batch := &BatchError{}
	for err := range errCh {
		if err != nil {
			batch.Failures = append(batch.Failures, err)
			continue
		}

		batch.Succeeded++
	}

	if dispatchErr != nil {
		batch.Failures = append(batch.Failures, dispatchErr)
	}

	if len(batch.Failures) == 0 {
		return nil
	}

	return batch
}

// Extract writes selected entries to dstDir. Paths are validated against
// traversal and filtered by rules. Per-entry failures are accumulated into *BatchError.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	opts.applyDefaults()
	entries, err := r.selectExtractEntries(opts)
	if err != nil || len(entries) == 0 {
		return err
	}

	root, err := extractRoot(dstDir, r.archive.MountPoint, opts.PrependMountPoint)
	if err != nil {
		return err
	}

	jobs, rejected := planExtractJobs(root, entries, r.archive.Name, opts.SanitizeNames)
	if err := makeJobDirs(root, jobs); err != nil {
		return err
	}

	err = runEntryPool(ctx, jobs, opts.MaxWorkers, func(job extractJob) error {
		return r.writeExtractJob(job, opts.FileMode, opts.OnEntryDone)
	})

	return mergeRejected(rejected, len(jobs), err)
}

// selectExtractEntries applies explicit entry list and filter rules.
func (r *Reader) selectExtractEntries(opts ExtractOptions) ([]Entry, error) {
	matcher, err := newEntryMatcher(opts.Filter, opts.FilterMatcherOptions)
	if err != nil {
		return nil, err
	}

	entries := opts.Entries
	if entries == nil {
		entries = r.archive.Entries()
	}

	return filterEntriesByRules(entries, matcher), nil
}

// extractRoot resolves and creates the absolute output root.
func extractRoot(dstDir, mountPoint string, withMount bool) (string, error) {
	root, err := filepath.Abs(dstDir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}

	if mount := NormalizeMountPoint(mountPoint); withMount && mount != "" {
		root = filepath.Join(root, filepath.FromSlash(mount))
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	return root, nil
}

// extractJob binds one entry to its absolute output file.
type extractJob struct {
	out   string
	entry Entry
}

// planExtractJobs maps entries to output files under root. Unsafe paths are
// rejected unless sanitize rewrites them.
func planExtractJobs(root string, entries []Entry, archive string, sanitize bool) ([]extractJob, []error) {
	toRelative := normalizeExtractEntryPath
	if sanitize {
		toRelative = SanitizePath
	}

	var rejected []error
	dedup := newPathDeduper(len(entries))
	jobs := make([]extractJob, 0, len(entries))
	for _, entry := range entries {
		rel, err := toRelative(entry.Path)
		if err != nil {
			rejected = append(rejected, entryError(archive, &entry, err))
			continue
		}

		if sanitize {
			rel = dedup.unique(rel)
		}

		jobs = append(jobs, extractJob{out: filepath.Join(root, filepath.FromSlash(rel)), entry: entry})
	}

	return jobs, rejected
}

// makeJobDirs creates each distinct parent directory once before workers start.
func makeJobDirs(root string, jobs []extractJob) error {
	made := map[string]bool{root: true}
	for _, job := range jobs {
		dir := filepath.Dir(job.out)
		if made[dir] {
			continue
		}

		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
		made[dir] = true
	}

	return nil
}

// mergeRejected folds path rejections into the pool result.
func mergeRejected(rejected []error, jobs int, poolErr error) error {
	if len(rejected) == 0 {
		return poolErr
	}

	batch := &BatchError{Failures: rejected, Succeeded: jobs}
	if poolErr == nil {
		return batch
	}

	var poolBatch *BatchError
	if errors.As(poolErr, &poolBatch) {
		batch.Failures = append(batch.Failures, poolBatch.Failures...)
		batch.Succeeded = poolBatch.Succeeded
		return batch
	}

	batch.Failures = append(batch.Failures, poolErr)
	batch.Succeeded = 0
	return batch
}

// writeExtractJob decodes one entry and stores it at job.out.
func (r *Reader) writeExtractJob(
	job extractJob,
	mode ExtractFileMode,
	onDone func(entry Entry, written int64, outputPath string),
) error {
	data, err := ExtractEntry(r.archive, job.entry, r.ra)
	if err != nil {
		return err
	}

	fail := func(op string, err error) error {
		return entryError(r.archive.Name, &job.entry, fmt.Errorf("%s output: %w", op, err))
	}

	f, err := createExtractFile(job.out, mode)
	if err != nil {
		return fail("open", err)
	}

	n, err := f.Write(data)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		return fail("close", closeErr)
	}
	if err != nil {
		return fail("write", err)
	}

	if onDone != nil {
		onDone(job.entry, int64(n), job.out)
	}

	return nil
}

// createExtractFile opens path for writing with the policy of mode.
func createExtractFile(path string, mode ExtractFileMode) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case ExtractFileModeTruncate:
		flags |= os.O_TRUNC
	case ExtractFileModeCreateOnly:
		flags |= os.O_EXCL
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", mode)
	}

	return os.OpenFile(path, flags, 0o600)
}

// normalizeExtractEntryPath returns entryPath as a clean relative path or
// ErrInvalidExtractPath when it is empty, absolute or escapes the root.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(entryPath), `\`, "/")
	if p == "" || p[0] == '/' || strings.IndexByte(p, 0) >= 0 || hasDrivePrefix(p) {
		return "", ErrInvalidExtractPath
	}

	kept := make([]string, 0, strings.Count(p, "/")+1)
	for seg := range strings.SplitSeq(p, "/") {
		switch seg {
		case "..":
			return "", ErrInvalidExtractPath
		case "", ".":
		default:
			kept = append(kept, seg)
		}
	}

	if len(kept) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(kept, "/"), nil
}

// hasDrivePrefix reports a Windows drive root such as "C:/".
func hasDrivePrefix(p string) bool {
	if len(p) < 3 || p[1] != ':' || p[2] != '/' {
		return false
	}

	lower := p[0] | 0x20
	return lower >= 'a' && lower <= 'z'
}
