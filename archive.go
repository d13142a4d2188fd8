// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Archive is an immutable parsed summary of one PAK container.
type Archive struct {
	// Name labels errors with archive path or name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// MountPoint is raw mount point string recorded in the index.
	MountPoint string `json:"mount_point" yaml:"mount_point"`
	// AmbiguousLayouts lists later footer layouts that also validated.
	AmbiguousLayouts []FooterLayout `json:"ambiguous_layouts,omitempty" yaml:"ambiguous_layouts,omitempty"`

	records []Entry
	logical []int
	byPath  map[string]int

	// EncryptionKeyGUID is display-only key identifier from footer.
	EncryptionKeyGUID uuid.UUID `json:"encryption_key_guid" yaml:"encryption_key_guid"`
	// IndexOffset is absolute offset of index region.
	IndexOffset uint64 `json:"index_offset" yaml:"index_offset"`
	// IndexSize is index region length.
	IndexSize uint64 `json:"index_size" yaml:"index_size"`
	// Size is total source size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// IndexHash is stored index digest (extended layout only).
	IndexHash [hashSize]byte `json:"-" yaml:"-"`
	// Version is container version (1..11).
	Version uint32 `json:"version" yaml:"version"`
	// Layout is validated footer shape.
	Layout FooterLayout `json:"layout" yaml:"layout"`
	// ByteOrder is numeric storage order.
	ByteOrder ByteOrder `json:"byte_order" yaml:"byte_order"`
	// Magic is matched magic encoding.
	Magic MagicLayout `json:"magic" yaml:"magic"`
	// ArchiveEncrypted is the per-archive footer flag.
	ArchiveEncrypted bool `json:"archive_encrypted" yaml:"archive_encrypted"`
	// Encrypted is set when the footer flag or any entry flag is set.
	Encrypted bool `json:"encrypted" yaml:"encrypted"`
}

// Parse locates the footer and decodes the index of a PAK container.
func Parse(src io.ReaderAt, size int64) (*Archive, error) {
	return ParseWithOptions(src, size, ParseOptions{})
}

// ParseWithOptions is Parse with footer overrides, name and logger.
func ParseWithOptions(src io.ReaderAt, size int64, opts ParseOptions) (*Archive, error) {
	if src == nil {
		return nil, ErrNilReader
	}

	logger := loggerOrDiscard(opts.Logger)
	footerOpts := opts.Footer
	if footerOpts.Logger == nil {
		footerOpts.Logger = logger
	}

	footer, err := LocateFooter(src, size, footerOpts)
	if err != nil {
		return nil, archiveError(opts.Name, err)
	}

	region, err := readIndexRegion(src, footer)
	if err != nil {
		return nil, archiveError(opts.Name, err)
	}

	mountPoint, records, err := parseIndex(region, footer)
	if err != nil {
		if footer.Encrypted {
			return nil, archiveError(opts.Name, fmt.Errorf("%w (index unreadable: %v)", ErrEncryptedArchive, err))
		}

		return nil, archiveError(opts.Name, err)
	}

	a := newArchive(footer, mountPoint, records)
	a.Name = opts.Name
	a.Size = size

	logger.Debug("parsed PAK index",
		"archive", opts.Name,
		"version", a.Version,
		"byte_order", a.ByteOrder,
		"layout", a.Layout,
		"records", len(a.records),
		"entries", len(a.logical),
		"encrypted", a.Encrypted,
	)

	if dup := len(a.records) - len(a.logical); dup > 0 {
		logger.Warn("duplicate entry paths in index", "archive", opts.Name, "duplicates", dup)
	}

	return a, nil
}

// newArchive builds archive view over physical records.
func newArchive(f Footer, mountPoint string, records []Entry) *Archive {
	a := &Archive{
		MountPoint:        mountPoint,
		AmbiguousLayouts:  f.Alternatives,
		records:           records,
		logical:           make([]int, 0, len(records)),
		byPath:            make(map[string]int, len(records)),
		EncryptionKeyGUID: f.EncryptionKeyGUID,
		IndexOffset:       f.IndexOffset,
		IndexSize:         f.IndexSize,
		IndexHash:         f.IndexHash,
		Version:           f.Version,
		Layout:            f.Layout,
		ByteOrder:         f.ByteOrder,
		Magic:             f.Magic,
		ArchiveEncrypted:  f.Encrypted,
		Encrypted:         f.Encrypted,
	}

	// logical holds first-occurrence slots; byPath tracks the last record per path.
	slot := make(map[string]int, len(records))
	for idx := range records {
		path := records[idx].Path
		if records[idx].Encrypted {
			a.Encrypted = true
		}

		if pos, exists := slot[path]; exists {
			a.logical[pos] = idx
		} else {
			slot[path] = len(a.logical)
			a.logical = append(a.logical, idx)
		}

		a.byPath[path] = idx
	}

	return a
}

// Len returns number of logical entries (unique paths).
func (a *Archive) Len() int {
	if a == nil {
		return 0
	}

	return len(a.logical)
}

// Entries returns logical entries: unique paths at first-occurrence position, last record value.
func (a *Archive) Entries() []Entry {
	if a == nil {
		return nil
	}

	out := make([]Entry, 0, len(a.logical))
	for _, idx := range a.logical {
		out = append(out, a.records[idx].clone())
	}

	return out
}

// Records returns every index record in physical order, duplicates included.
func (a *Archive) Records() []Entry {
	if a == nil {
		return nil
	}

	out := make([]Entry, 0, len(a.records))
	for idx := range a.records {
		out = append(out, a.records[idx].clone())
	}

	return out
}

// Entry returns logical entry for path. Path is normalized before lookup.
func (a *Archive) Entry(path string) (Entry, bool) {
	if a == nil {
		return Entry{}, false
	}

	idx, ok := a.byPath[NormalizePath(path)]
	if !ok {
		return Entry{}, false
	}

	return a.records[idx].clone(), true
}

// Footer returns footer view of archive metadata.
func (a *Archive) Footer() Footer {
	return Footer{
		Alternatives:      a.AmbiguousLayouts,
		EncryptionKeyGUID: a.EncryptionKeyGUID,
		IndexOffset:       a.IndexOffset,
		IndexSize:         a.IndexSize,
		IndexHash:         a.IndexHash,
		Version:           a.Version,
		Layout:            a.Layout,
		ByteOrder:         a.ByteOrder,
		Magic:             a.Magic,
		Encrypted:         a.ArchiveEncrypted,
	}
}

// archiveError prefixes err with archive name when known.
func archiveError(name string, err error) error {
	if name == "" {
		return err
	}

	return fmt.Errorf("%s: %w", name, err)
}
