// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestEditorCommitOperations(t *testing.T) {
	t.Parallel()

	fx := fixture{
		mount: "../../../Game/",
		entries: []fixtureEntry{
			{name: "../../../Game/A.txt", data: []byte("alpha"), timestamp: 10},
			{name: "../../../Game/cfg/x.cfg", data: []byte("x=1")},
			{name: "../../../Game/cfg/y.cfg", data: []byte("y=2")},
			{name: "../../../Game/cfgs.txt", data: []byte("not a child")},
			{name: "../../../Game/B.txt", data: []byte("bravo")},
			{name: "../../../Game/tmp.bin", data: bytes.Repeat([]byte{0xAA}, 300), method: CompressionZlib, blockSize: 128},
		},
	}
	path := writeTempArchive(t, fx.build(t))

	editor, err := OpenEditor(path, EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}

	if err := editor.Replace(memInput(`\B.txt`, "BRAVO!")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := editor.Add(memInput("new/z.txt", "zulu")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := editor.Delete("tmp.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := editor.DeleteDir("cfg"); err != nil {
		t.Fatalf("DeleteDir: %v", err)
	}

	res, err := editor.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.ReplacedEntries != 1 || res.AddedEntries != 1 || res.WrittenEntries != 4 {
		t.Fatalf("result=%+v", res)
	}
	if res.Archive.Name != path {
		t.Fatalf("name=%q", res.Archive.Name)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	if got := entryPaths(r.Entries()); !slices.Equal(got, []string{"A.txt", "cfgs.txt", "B.txt", "new/z.txt"}) {
		t.Fatalf("paths=%v", got)
	}
	if r.Archive().MountPoint != "../../../Game/" {
		t.Fatalf("mount=%q", r.Archive().MountPoint)
	}

	data, err := r.ReadEntry("B.txt")
	if err != nil || string(data) != "BRAVO!" {
		t.Fatalf("B.txt=%q err=%v", data, err)
	}

	a, _ := r.Archive().Entry("A.txt")
	if a.Timestamp != 10 {
		t.Fatalf("A.txt timestamp=%d", a.Timestamp)
	}

	if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("BackupKeep 0 must remove backup: %v", err)
	}
}

func TestEditorBackupRotation(t *testing.T) {
	t.Parallel()

	path := writeTempArchive(t, threeEntryFixture().build(t))

	commit := func(keep int, content string) {
		t.Helper()

		editor, err := OpenEditor(path, EditOptions{BackupKeep: keep})
		if err != nil {
			t.Fatalf("OpenEditor: %v", err)
		}
		if err := editor.Replace(memInput("A.txt", content)); err != nil {
			t.Fatalf("Replace: %v", err)
		}
		if _, err := editor.Commit(context.Background()); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	commit(1, "first")
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("BackupKeep 1 must keep .bak: %v", err)
	}
	if _, err := os.Stat(path + ".bak.1"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unexpected .bak.1: %v", err)
	}

	commit(2, "second")
	for _, suffix := range []string{".bak", ".bak.1"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Fatalf("BackupKeep 2 must keep %s: %v", suffix, err)
		}
	}

	// .bak holds the state before the second commit.
	r, err := Open(path + ".bak")
	if err != nil {
		t.Fatalf("Open backup: %v", err)
	}
	defer func() { _ = r.Close() }()

	data, err := r.ReadEntry("A.txt")
	if err != nil || string(data) != "first" {
		t.Fatalf("backup A.txt=%q err=%v", data, err)
	}
}

func TestEditorRollback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stage   func(*Editor) error
		wantErr error
	}{
		{
			name:    "add existing path",
			stage:   func(e *Editor) error { return e.Add(memInput("A.txt", "dup")) },
			wantErr: ErrDuplicateEntryPath,
		},
		{
			name:    "replace missing path",
			stage:   func(e *Editor) error { return e.Replace(memInput("missing.txt", "x")) },
			wantErr: ErrEntryNotFound,
		},
		{
			name:    "input open failure",
			stage:   func(e *Editor) error { return e.Add(errInput("new.txt", os.ErrPermission)) },
			wantErr: ErrEntryUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			original := threeEntryFixture().build(t)
			path := writeTempArchive(t, original)

			editor, err := OpenEditor(path, EditOptions{BackupKeep: 1})
			if err != nil {
				t.Fatalf("OpenEditor: %v", err)
			}
			if err := tt.stage(editor); err != nil {
				t.Fatalf("stage: %v", err)
			}

			if _, err := editor.Commit(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want %v", err, tt.wantErr)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read restored archive: %v", err)
			}
			if !bytes.Equal(got, original) {
				t.Fatal("failed commit must restore original archive")
			}

			if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("backup must be moved back: %v", err)
			}
		})
	}
}

func TestEditorFooterOverride(t *testing.T) {
	t.Parallel()

	fx := threeEntryFixture()
	fx.layout = FooterExtended
	original := fx.build(t)
	path := writeTempArchive(t, original)

	editor, err := OpenEditor(path, EditOptions{
		RepackOptions: RepackOptions{
			Parse: ParseOptions{Footer: FooterOptions{Layout: FooterLegacy}},
		},
	})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if err := editor.Replace(memInput("A.txt", "x")); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if _, err := editor.Commit(context.Background()); !errors.Is(err, ErrFooterNotFound) {
		t.Fatalf("err=%v, want ErrFooterNotFound", err)
	}

	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, original) {
		t.Fatalf("archive must be restored: err=%v", err)
	}
}

func TestEditorStagingValidation(t *testing.T) {
	t.Parallel()

	if _, err := OpenEditor("  ", EditOptions{}); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("blank path: err=%v", err)
	}

	editor, err := OpenEditor("unused.pak", EditOptions{})
	if err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}

	if err := editor.Add(memInput("./", "x")); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("Add: err=%v", err)
	}
	if err := editor.Delete(""); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("Delete: err=%v", err)
	}

	if err := editor.Add(); err != nil {
		t.Fatalf("empty Add: %v", err)
	}
	if len(editor.ops) != 0 {
		t.Fatalf("ops=%d, want none staged", len(editor.ops))
	}
}

func TestBuildEditPlanDuplicateRecords(t *testing.T) {
	t.Parallel()

	records := []Entry{{Path: "a"}, {Path: "dir/b"}, {Path: "a"}, {Path: "dirx"}}
	ops := []editOperation{
		{kind: editReplace, inputs: []Input{{Path: "a"}}},
		{kind: editDeleteDir, paths: []string{"dir"}},
		{kind: editAdd, inputs: []Input{{Path: "c"}}},
	}

	plan, replaced, added, err := buildEditPlan(records, ops)
	if err != nil {
		t.Fatalf("buildEditPlan: %v", err)
	}
	if replaced != 1 || added != 1 {
		t.Fatalf("replaced=%d added=%d", replaced, added)
	}

	paths := make([]string, 0, len(plan))
	for _, item := range plan {
		paths = append(paths, item.path)
	}
	if !slices.Equal(paths, []string{"a", "a", "dirx", "c"}) {
		t.Fatalf("plan=%v", paths)
	}
	if plan[0].input == nil || plan[1].input == nil {
		t.Fatal("replace must apply to every duplicate record")
	}
}

func TestBackupSetRotate(t *testing.T) {
	t.Parallel()

	archive := filepath.Join(t.TempDir(), "game.pak")
	b := newBackupSet(archive, 3)

	for _, content := range []string{"one", "two", "three", "four"} {
		if err := b.rotate(); err != nil {
			t.Fatalf("rotate: %v", err)
		}
		if err := os.WriteFile(b.generation(0), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	want := map[string]string{".bak": "four", ".bak.1": "three", ".bak.2": "two"}
	for suffix, content := range want {
		got, err := os.ReadFile(archive + suffix)
		if err != nil || string(got) != content {
			t.Fatalf("%s=%q err=%v", suffix, got, err)
		}
	}

	if _, err := os.Stat(archive + ".bak.3"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("generation beyond keep must be dropped: %v", err)
	}
}
