// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"io"
	"os"
)

// ListEntries returns logical entry metadata of the archive at path.
// Payloads are not read.
func ListEntries(path string) ([]Entry, error) {
	return ListEntriesWithOptions(path, ListOptions{})
}

// ListEntriesWithOptions is ListEntries with prefix, rule and record selection.
func ListEntriesWithOptions(path string, opts ListOptions) ([]Entry, error) {
	f, size, err := openSized(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if opts.Parse.Name == "" {
		opts.Parse.Name = path
	}

	return ListEntriesFromReaderAtWithOptions(f, size, opts)
}

// ListEntriesFromReaderAt lists logical entries of an archive held by ra.
func ListEntriesFromReaderAt(ra io.ReaderAt, size int64) ([]Entry, error) {
	return ListEntriesFromReaderAtWithOptions(ra, size, ListOptions{})
}

// ListEntriesFromReaderAtWithOptions lists entries of an archive held by ra.
// Rules are compiled before parsing so a bad rule fails without I/O.
func ListEntriesFromReaderAtWithOptions(ra io.ReaderAt, size int64, opts ListOptions) ([]Entry, error) {
	opts.applyDefaults()

	matcher, err := newEntryMatcher(opts.Filter, opts.FilterMatcherOptions)
	if err != nil {
		return nil, err
	}

	a, err := ParseWithOptions(ra, size, opts.Parse)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if opts.Records {
		entries = a.Records()
	} else {
		entries = a.Entries()
	}

	return filterEntriesByRules(filterEntriesByPrefix(entries, opts.Prefix), matcher), nil
}

// openSized opens path read-only and reports its size.
func openSized(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open archive: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat archive: %w", err)
	}

	return f, info.Size(), nil
}
