// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestLocateFooterLayouts(t *testing.T) {
	t.Parallel()

	for _, layout := range footerCandidates {
		for _, order := range []ByteOrder{LittleEndian, BigEndian} {
			for _, magic := range []MagicLayout{MagicStandard, MagicReversed} {
				t.Run(fmt.Sprintf("%s/%s/%s", layout, order, magic), func(t *testing.T) {
					t.Parallel()

					fx := fixture{
						mount:   "../../../",
						version: 7,
						layout:  layout,
						order:   order,
						magic:   magic,
						entries: []fixtureEntry{{name: "data/a.bin", data: []byte("payload")}},
					}
					b := fx.build(t)

					f, err := LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{})
					if err != nil {
						t.Fatalf("LocateFooter: %v", err)
					}

					if f.Layout != layout || f.ByteOrder != order || f.Magic != magic {
						t.Fatalf("got %s/%s/%s", f.Layout, f.ByteOrder, f.Magic)
					}
					if f.Version != 7 {
						t.Fatalf("version=%d, want 7", f.Version)
					}
					if f.IndexOffset != uint64(len("payload")) {
						t.Fatalf("index offset=%d, want %d", f.IndexOffset, len("payload"))
					}
					if f.IndexOffset+f.IndexSize != uint64(len(b)-layout.Size()) {
						t.Fatalf("index end=%d, footer at %d", f.IndexOffset+f.IndexSize, len(b)-layout.Size())
					}
					if len(f.Alternatives) != 0 {
						t.Fatalf("unexpected alternatives %v", f.Alternatives)
					}
				})
			}
		}
	}
}

func TestLocateFooterEncryptionFields(t *testing.T) {
	t.Parallel()

	guid := uuid.MustParse("0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0")
	fx := fixture{
		layout:    FooterEncrypted,
		guid:      guid,
		encrypted: true,
		entries:   []fixtureEntry{{name: "a.txt", data: []byte("a")}},
	}
	b := fx.build(t)

	f, err := LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{})
	if err != nil {
		t.Fatalf("LocateFooter: %v", err)
	}

	if f.EncryptionKeyGUID != guid {
		t.Fatalf("guid=%s, want %s", f.EncryptionKeyGUID, guid)
	}
	if !f.Encrypted {
		t.Fatal("expected archive encryption flag")
	}
}

func TestLocateFooterReversedMagicBigEndian(t *testing.T) {
	t.Parallel()

	fx := fixture{
		order:   BigEndian,
		magic:   MagicReversed,
		entries: []fixtureEntry{{name: "a.txt", data: []byte("abc")}},
	}
	b := fx.build(t)

	f, err := LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{})
	if err != nil {
		t.Fatalf("LocateFooter: %v", err)
	}
	if f.ByteOrder != BigEndian || f.Magic != MagicReversed {
		t.Fatalf("got %s/%s, want big-endian/reversed", f.ByteOrder, f.Magic)
	}

	// Same bytes read little-endian match the standard magic but never validate.
	_, err = LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{
		ByteOrder:      LittleEndian,
		ForceByteOrder: true,
	})
	if !errors.Is(err, ErrFooterNotFound) {
		t.Fatalf("forced little-endian: err=%v, want ErrFooterNotFound", err)
	}
}

func TestLocateFooterForcedLayout(t *testing.T) {
	t.Parallel()

	fx := fixture{layout: FooterExtended, entries: []fixtureEntry{{name: "a.txt", data: []byte("abc")}}}
	b := fx.build(t)

	if _, err := LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{Layout: FooterExtended}); err != nil {
		t.Fatalf("forced extended: %v", err)
	}

	if _, err := LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{Layout: FooterLegacy}); !errors.Is(err, ErrFooterNotFound) {
		t.Fatalf("forced legacy: err=%v, want ErrFooterNotFound", err)
	}
}

// sparseTail is a virtual source of size bytes that are zero except the trailing tail.
type sparseTail struct {
	tail []byte
	size int64
}

// ReadAt implements io.ReaderAt.
func (s sparseTail) ReadAt(p []byte, off int64) (int, error) {
	clear(p)
	tailStart := s.size - int64(len(s.tail))
	for i := range p {
		pos := off + int64(i)
		if pos >= tailStart && pos < s.size {
			p[i] = s.tail[pos-tailStart]
		}
	}

	return len(p), nil
}

// ambiguousTail returns 64 trailing bytes that validate as a big-endian
// encrypted footer and as a big-endian extended footer at the same time.
func ambiguousTail() []byte {
	t := make([]byte, 64)
	be := binary.BigEndian

	// Extended view over all 64 bytes: index [0, 0x5A6F12E1).
	be.PutUint32(t[17:], magicStandard)
	be.PutUint32(t[21:], 8)

	// Encrypted view over the last 44 bytes: index [0, 8), an empty index.
	be.PutUint32(t[37:], magicStandard)
	be.PutUint32(t[41:], 8)
	be.PutUint64(t[45:], 0)
	be.PutUint64(t[53:], 8)

	return t
}

func TestLocateFooterAmbiguityPicksPriority(t *testing.T) {
	t.Parallel()

	src := sparseTail{tail: ambiguousTail(), size: 2 << 30}
	for range 5 {
		f, err := LocateFooter(src, src.size, FooterOptions{})
		if err != nil {
			t.Fatalf("LocateFooter: %v", err)
		}

		if f.Layout != FooterEncrypted || f.ByteOrder != BigEndian {
			t.Fatalf("got %s/%s, want encrypted/big-endian", f.Layout, f.ByteOrder)
		}
		if f.IndexSize != 8 {
			t.Fatalf("index size=%d, want 8", f.IndexSize)
		}
		if len(f.Alternatives) != 1 || f.Alternatives[0] != FooterExtended {
			t.Fatalf("alternatives=%v, want [extended]", f.Alternatives)
		}
	}

	a, err := Parse(src, src.size)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.AmbiguousLayouts) != 1 || a.Len() != 0 {
		t.Fatalf("ambiguous=%v len=%d", a.AmbiguousLayouts, a.Len())
	}
}

func TestLocateFooterNotFoundDiagnostics(t *testing.T) {
	t.Parallel()

	t.Run("no magic", func(t *testing.T) {
		t.Parallel()

		b := bytes.Repeat([]byte("not a pak file "), 8)
		_, err := LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{})

		var nf *FooterNotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("err=%v, want *FooterNotFoundError", err)
		}
		if !errors.Is(err, ErrFooterNotFound) {
			t.Fatal("FooterNotFoundError must match ErrFooterNotFound")
		}
		if len(nf.RawFooter) != maxFooterSize || nf.FileSize != int64(len(b)) {
			t.Fatalf("raw=%d size=%d", len(nf.RawFooter), nf.FileSize)
		}
		if len(nf.MagicHits) != 0 {
			t.Fatalf("unexpected magic hits %v", nf.MagicHits)
		}
	})

	t.Run("magic with bad bounds", func(t *testing.T) {
		t.Parallel()

		fx := fixture{entries: []fixtureEntry{{name: "a.txt", data: []byte("abc")}}}
		b := fx.build(t)
		footerAt := len(b) - FooterLegacy.Size()
		binary.LittleEndian.PutUint64(b[footerAt+legacyIndexOffset:], 1<<40)

		_, err := LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{})
		var nf *FooterNotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("err=%v, want *FooterNotFoundError", err)
		}

		want := MagicHit{Offset: int64(footerAt), ByteOrder: LittleEndian, Magic: MagicStandard}
		found := false
		for _, hit := range nf.MagicHits {
			if hit == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("magic hits %v missing %v", nf.MagicHits, want)
		}
	})

	t.Run("short file", func(t *testing.T) {
		t.Parallel()

		b := []byte{1, 2, 3}
		_, err := LocateFooter(bytes.NewReader(b), int64(len(b)), FooterOptions{})
		var nf *FooterNotFoundError
		if !errors.As(err, &nf) || len(nf.RawFooter) != 3 {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestReadFooter(t *testing.T) {
	t.Parallel()

	path := writeTempArchive(t, threeEntryFixture().build(t))
	f, err := ReadFooter(path)
	if err != nil {
		t.Fatalf("ReadFooter: %v", err)
	}
	if f.Layout != FooterLegacy || f.Version != DefaultVersion {
		t.Fatalf("got %s v%d", f.Layout, f.Version)
	}
}
