// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/woozymasta/pathrules"
)

func TestOpenReadClose(t *testing.T) {
	t.Parallel()

	path := writeTempArchive(t, threeEntryFixture().build(t))

	for _, memoryMap := range []bool{false, true} {
		r, err := OpenWithOptions(path, ParseOptions{MemoryMap: memoryMap})
		if err != nil {
			t.Fatalf("mmap=%v: Open: %v", memoryMap, err)
		}

		if r.Archive().Name != path {
			t.Fatalf("mmap=%v: name=%q", memoryMap, r.Archive().Name)
		}
		if got := entryPaths(r.Entries()); !slices.Equal(got, []string{"A.txt", "B.txt", "C/D.txt"}) {
			t.Fatalf("mmap=%v: paths=%v", memoryMap, got)
		}

		data, err := r.ReadEntry("C/D.txt")
		if err != nil || string(data) != "12345" {
			t.Fatalf("mmap=%v: C/D.txt=%q err=%v", memoryMap, data, err)
		}

		if err := r.Close(); err != nil {
			t.Fatalf("mmap=%v: Close: %v", memoryMap, err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("mmap=%v: second Close: %v", memoryMap, err)
		}

		if _, err := r.ReadEntry("C/D.txt"); !errors.Is(err, ErrClosed) {
			t.Fatalf("mmap=%v: err=%v, want ErrClosed", memoryMap, err)
		}
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	if _, err := Open(t.TempDir() + "/missing.pak"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: err=%v", err)
	}

	junk := []byte("not an archive at all, just some bytes")
	path := writeTempArchive(t, junk)
	_, err := Open(path)
	if !errors.Is(err, ErrFooterNotFound) {
		t.Fatalf("err=%v, want ErrFooterNotFound", err)
	}

	var notFound *FooterNotFoundError
	if !errors.As(err, &notFound) || notFound.FileSize != int64(len(junk)) {
		t.Fatalf("err=%v, want diagnostics for %d bytes", err, len(junk))
	}

	if _, err := NewReaderFromReaderAt(nil, 0); !errors.Is(err, ErrNilReader) {
		t.Fatalf("nil reader: err=%v", err)
	}

	var nilReader *Reader
	if _, err := nilReader.ReadEntry("a"); !errors.Is(err, ErrNilReader) {
		t.Fatalf("nil Reader: err=%v", err)
	}
}

func TestReaderForcedFooterLayout(t *testing.T) {
	t.Parallel()

	fx := threeEntryFixture()
	fx.layout = FooterExtended
	b := fx.build(t)

	_, err := NewReaderFromReaderAtWithOptions(bytes.NewReader(b), int64(len(b)), ParseOptions{
		Footer: FooterOptions{Layout: FooterLegacy},
	})
	if !errors.Is(err, ErrFooterNotFound) {
		t.Fatalf("err=%v, want ErrFooterNotFound", err)
	}

	r, err := NewReaderFromReaderAtWithOptions(bytes.NewReader(b), int64(len(b)), ParseOptions{
		Footer: FooterOptions{Layout: FooterExtended, ByteOrder: LittleEndian, ForceByteOrder: true},
	})
	if err != nil {
		t.Fatalf("forced extended: %v", err)
	}
	if r.Archive().Layout != FooterExtended {
		t.Fatalf("layout=%s", r.Archive().Layout)
	}
}

func TestListEntriesWithOptions(t *testing.T) {
	t.Parallel()

	fx := fixture{entries: []fixtureEntry{
		{name: "Maps/a.umap", data: []byte("a")},
		{name: "Maps/Sub/b.umap", data: []byte("b")},
		{name: "Textures/c.uasset", data: []byte("c")},
		{name: "Maps/a.umap", data: []byte("a2")},
		{name: "MapsExtra.txt", data: []byte("x")},
	}}
	path := writeTempArchive(t, fx.build(t))

	testCases := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{
			name: "all logical",
			want: []string{"Maps/a.umap", "Maps/Sub/b.umap", "Textures/c.uasset", "MapsExtra.txt"},
		},
		{
			name: "records",
			opts: ListOptions{Records: true},
			want: []string{"Maps/a.umap", "Maps/Sub/b.umap", "Textures/c.uasset", "Maps/a.umap", "MapsExtra.txt"},
		},
		{
			name: "directory prefix",
			opts: ListOptions{Prefix: `\Maps\`},
			want: []string{"Maps/a.umap", "Maps/Sub/b.umap"},
		},
		{
			name: "exact file prefix",
			opts: ListOptions{Prefix: "MapsExtra.txt"},
			want: []string{"MapsExtra.txt"},
		},
		{
			name: "exclude rule",
			opts: ListOptions{Filter: []pathrules.Rule{{Action: pathrules.ActionExclude, Pattern: "*.umap"}}},
			want: []string{"Textures/c.uasset", "MapsExtra.txt"},
		},
		{
			name: "include rule case-insensitive",
			opts: ListOptions{
				Filter: []pathrules.Rule{{Action: pathrules.ActionInclude, Pattern: "*.UASSET"}},
				FilterMatcherOptions: pathrules.MatcherOptions{
					CaseInsensitive: true,
					DefaultAction:   pathrules.ActionExclude,
				},
			},
			want: []string{"Textures/c.uasset"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			entries, err := ListEntriesWithOptions(path, tc.opts)
			if err != nil {
				t.Fatalf("ListEntriesWithOptions: %v", err)
			}
			if got := entryPaths(entries); !slices.Equal(got, tc.want) {
				t.Fatalf("paths=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestListEntriesInvalidRule(t *testing.T) {
	t.Parallel()

	b := threeEntryFixture().build(t)
	_, err := ListEntriesFromReaderAtWithOptions(bytes.NewReader(b), int64(len(b)), ListOptions{
		Filter: []pathrules.Rule{{Action: pathrules.ActionUnknown, Pattern: "*.txt"}},
	})
	if !errors.Is(err, ErrInvalidFilterRule) {
		t.Fatalf("err=%v, want ErrInvalidFilterRule", err)
	}
}

func TestListEntriesNamesErrors(t *testing.T) {
	t.Parallel()

	path := writeTempArchive(t, []byte("garbage"))
	_, err := ListEntries(path)
	if !errors.Is(err, ErrFooterNotFound) {
		t.Fatalf("err=%v", err)
	}

	var notFound *FooterNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err=%v, want *FooterNotFoundError", err)
	}
	if got := err.Error(); len(got) < len(path) || got[:len(path)] != path {
		t.Fatalf("error %q must start with archive path", got)
	}
}
