// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Editor stages changes to an archive file and applies them in one rewrite on Commit.
type Editor struct {
	path string
	ops  []editOperation
	opts EditOptions
}

// editOperation is one staged change; inputs or paths depending on kind.
type editOperation struct {
	inputs []Input
	paths  []string
	kind   editKind
}

// editKind identifies staged change type.
type editKind uint8

const (
	editAdd editKind = iota + 1
	editReplace
	editDelete
	editDeleteDir
)

// OpenEditor returns editor for archive at path. The file is not read until Commit.
func OpenEditor(path string, opts EditOptions) (*Editor, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty archive path", ErrInvalidEntryPath)
	}

	opts.applyDefaults()
	return &Editor{path: path, opts: opts}, nil
}

// Add stages new entries. Commit fails if any path already exists.
func (e *Editor) Add(inputs ...Input) error {
	return e.stageInputs(editAdd, inputs)
}

// Replace stages new content for existing entries, every duplicate record included.
// Commit fails if any path is missing.
func (e *Editor) Replace(inputs ...Input) error {
	return e.stageInputs(editReplace, inputs)
}

// Delete stages removal of every record with exact path.
func (e *Editor) Delete(paths ...string) error {
	return e.stagePaths(editDelete, paths)
}

// DeleteDir stages removal of every record under directory prefixes.
func (e *Editor) DeleteDir(prefixes ...string) error {
	return e.stagePaths(editDeleteDir, prefixes)
}

func (e *Editor) stageInputs(kind editKind, inputs []Input) error {
	if e == nil {
		return ErrNilArchive
	}

	if len(inputs) == 0 {
		return nil
	}

	staged := make([]Input, len(inputs))
	for i, in := range inputs {
		p, err := normalizeArchiveEntryPath(in.Path)
		if err != nil {
			return err
		}

		in.Path = p
		staged[i] = in
	}

	e.ops = append(e.ops, editOperation{kind: kind, inputs: staged})
	return nil
}

func (e *Editor) stagePaths(kind editKind, paths []string) error {
	if e == nil {
		return ErrNilArchive
	}

	if len(paths) == 0 {
		return nil
	}

	staged := make([]string, len(paths))
	for i, raw := range paths {
		p, err := normalizeArchiveEntryPath(raw)
		if err != nil {
			return err
		}

		staged[i] = p
	}

	e.ops = append(e.ops, editOperation{kind: kind, paths: staged})
	return nil
}

// Commit rewrites the archive with all staged changes. The current file becomes
// `<archive>.bak` and is moved back if the rewrite fails. Staged changes are
// cleared on success.
func (e *Editor) Commit(ctx context.Context) (*RepackResult, error) {
	if e == nil {
		return nil, ErrNilArchive
	}

	if ctx == nil {
		ctx = context.Background()
	}

	backups := newBackupSet(e.path, e.opts.BackupKeep)
	if err := backups.rotate(); err != nil {
		return nil, err
	}

	backupPath := backups.generation(0)
	if err := os.Rename(e.path, backupPath); err != nil {
		return nil, fmt.Errorf("move %s to backup: %w", e.path, err)
	}

	res, err := e.commitFromBackup(ctx, backupPath)
	if err != nil {
		if restoreErr := backups.restore(e.path); restoreErr != nil {
			return nil, fmt.Errorf("%w (restore from backup failed: %v)", err, restoreErr)
		}

		return nil, err
	}

	if backups.keep == 0 {
		if err := removeFile(backupPath); err != nil {
			return nil, fmt.Errorf("drop backup: %w", err)
		}
	}

	e.ops = nil
	return res, nil
}

// commitFromBackup parses backupPath and writes the edited archive to the editor path.
func (e *Editor) commitFromBackup(ctx context.Context, backupPath string) (*RepackResult, error) {
	opts := e.opts.RepackOptions
	if opts.Name == "" {
		opts.Name = e.path
	}

	src, err := OpenWithOptions(backupPath, opts.sourceParseOptions(e.path))
	if err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	a := src.Archive()
	plan, replaced, added, err := buildEditPlan(a.records, e.ops)
	if err != nil {
		return nil, err
	}

	out, err := os.OpenFile(e.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", e.path, err)
	}

	target := rewriteTarget{
		mountPoint: a.MountPoint,
		version:    a.Version,
		order:      a.ByteOrder,
		magic:      a.Magic,
		layout:     a.Layout,
	}

	res, err := rewriteArchive(ctx, a, src.ra, out, plan, target, opts)
	if err == nil {
		if syncErr := out.Sync(); syncErr != nil {
			err = fmt.Errorf("sync %s: %w", e.path, syncErr)
		}
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", e.path, closeErr)
	}
	if err != nil {
		return nil, err
	}

	res.Archive.Name = e.path
	res.ReplacedEntries = replaced
	res.AddedEntries = added
	return res, nil
}

// buildEditPlan applies staged operations to source records in staging order.
// Record order is kept; added entries follow in staging order. replaced counts
// staged paths, not records.
func buildEditPlan(records []Entry, ops []editOperation) ([]rewriteEntry, int, int, error) {
	var replaced, added int
	plan := make([]rewriteEntry, 0, len(records))
	for i := range records {
		plan = append(plan, rewriteEntry{path: records[i].Path, source: &records[i]})
	}

	for _, op := range ops {
		switch op.kind {
		case editAdd:
			for i := range op.inputs {
				in := &op.inputs[i]
				if planHasPath(plan, in.Path) {
					return nil, 0, 0, fmt.Errorf("%w: %q", ErrDuplicateEntryPath, in.Path)
				}

				plan = append(plan, rewriteEntry{path: in.Path, input: in})
				added++
			}
		case editReplace:
			for i := range op.inputs {
				in := &op.inputs[i]
				if !planHasPath(plan, in.Path) {
					return nil, 0, 0, fmt.Errorf("%w: %q", ErrEntryNotFound, in.Path)
				}

				for j := range plan {
					if plan[j].path == in.Path {
						plan[j].input = in
					}
				}
				replaced++
			}
		case editDelete:
			for _, p := range op.paths {
				plan = removePlanItems(plan, func(item rewriteEntry) bool { return item.path == p })
			}
		case editDeleteDir:
			for _, prefix := range op.paths {
				plan = removePlanItems(plan, func(item rewriteEntry) bool { return hasDirPrefix(item.path, prefix) })
			}
		default:
			return nil, 0, 0, fmt.Errorf("unknown edit operation %d", op.kind)
		}
	}

	return plan, replaced, added, nil
}

func planHasPath(plan []rewriteEntry, p string) bool {
	for i := range plan {
		if plan[i].path == p {
			return true
		}
	}

	return false
}

// removePlanItems drops items matched by drop in place, keeping order.
func removePlanItems(plan []rewriteEntry, drop func(rewriteEntry) bool) []rewriteEntry {
	out := plan[:0]
	for _, item := range plan {
		if !drop(item) {
			out = append(out, item)
		}
	}

	return out
}

// hasDirPrefix reports whether p equals prefix or lies below it.
func hasDirPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// backupSet names backup generations of one archive: `.bak` is the newest,
// `.bak.1` .. `.bak.N-1` are older.
type backupSet struct {
	base string
	keep int
}

func newBackupSet(archivePath string, keep int) backupSet {
	return backupSet{base: archivePath + ".bak", keep: max(keep, 0)}
}

// generation returns path of generation n; 0 is the newest.
func (b backupSet) generation(n int) string {
	if n == 0 {
		return b.base
	}

	return b.base + "." + strconv.Itoa(n)
}

// rotate frees generation 0, shifting older generations up and dropping the
// one that would exceed keep.
func (b backupSet) rotate() error {
	if b.keep <= 1 {
		return removeFile(b.base)
	}

	if err := removeFile(b.generation(b.keep - 1)); err != nil {
		return err
	}

	for n := b.keep - 2; n >= 0; n-- {
		if err := moveFile(b.generation(n), b.generation(n+1)); err != nil {
			return err
		}
	}

	return nil
}

// restore puts generation 0 back in place of archivePath.
func (b backupSet) restore(archivePath string) error {
	_ = os.Remove(archivePath)

	if err := os.Rename(b.base, archivePath); err != nil {
		return fmt.Errorf("restore %s: %w", archivePath, err)
	}

	return nil
}

// moveFile renames from to to, replacing to; a missing source is not an error.
func moveFile(from, to string) error {
	if _, err := os.Lstat(from); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeFile(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rotate backup %s: %w", from, err)
	}

	return nil
}

// removeFile removes path; a missing file is not an error.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	return nil
}
