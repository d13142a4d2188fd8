// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"errors"
	"fmt"
	"io"
	"slices"
)

// Footer field offsets for layouts that carry encryption fields.
const (
	footerFlagOffset      = 16
	footerMagicOffset     = 17
	footerVersionOffset   = 21
	footerIndexOffset     = 25
	footerIndexSizeOffset = 33
	footerIndexHashOffset = 41
)

// Legacy footer field offsets.
const (
	legacyMagicOffset     = 0
	legacyVersionOffset   = 4
	legacyIndexOffset     = 8
	legacyIndexSizeOffset = 16
)

// footerCandidates is locator priority order.
var footerCandidates = []FooterLayout{FooterEncrypted, FooterLegacy, FooterExtended}

// maxFooterSize is the longest candidate layout.
const maxFooterSize = 64

// Size returns on-disk footer length in bytes.
func (l FooterLayout) Size() int {
	switch l {
	case FooterEncrypted:
		return 44
	case FooterLegacy:
		return 28
	case FooterExtended:
		return 64
	default:
		return 0
	}
}

// hasEncryptionFields reports whether layout carries GUID and flag.
func (l FooterLayout) hasEncryptionFields() bool {
	return l == FooterEncrypted || l == FooterExtended
}

// ReadFooter opens a PAK file and returns its validated footer.
func ReadFooter(path string) (Footer, error) {
	file, size, err := openSized(path)
	if err != nil {
		return Footer{}, err
	}
	defer func() { _ = file.Close() }()

	return LocateFooter(file, size, FooterOptions{})
}

// LocateFooter finds and validates the trailing footer. Layouts are tried in
// fixed priority order, each little-endian first; the first that validates wins.
// Later candidates that also validate are reported in Footer.Alternatives.
func LocateFooter(src io.ReaderAt, size int64, opts FooterOptions) (Footer, error) {
	if src == nil {
		return Footer{}, ErrNilReader
	}

	tailLen := min(size, maxFooterSize)
	if tailLen < 0 {
		tailLen = 0
	}

	tail := make([]byte, tailLen)
	if tailLen > 0 {
		if _, err := src.ReadAt(tail, size-tailLen); err != nil && !errors.Is(err, io.EOF) {
			return Footer{}, fmt.Errorf("read footer area: %w", err)
		}
	}

	layouts := footerCandidates
	if opts.Layout != FooterAuto {
		layouts = []FooterLayout{opts.Layout}
	}

	orders := []ByteOrder{LittleEndian, BigEndian}
	if opts.ForceByteOrder {
		orders = []ByteOrder{opts.ByteOrder}
	}

	var (
		found Footer
		ok    bool
	)
	for _, layout := range layouts {
		footerLen := layout.Size()
		if footerLen == 0 || int64(footerLen) > size {
			continue
		}

		raw := tail[len(tail)-footerLen:]
		for _, order := range orders {
			candidate, valid := decodeFooter(raw, layout, order, size)
			if !valid {
				continue
			}

			if !ok {
				found = candidate
				ok = true
				continue
			}

			if layout != found.Layout && !slices.Contains(found.Alternatives, layout) {
				found.Alternatives = append(found.Alternatives, layout)
			}
		}
	}

	if !ok {
		return Footer{}, &FooterNotFoundError{
			RawFooter: tail,
			MagicHits: scanMagicHits(tail, size-tailLen),
			FileSize:  size,
		}
	}

	if len(found.Alternatives) > 0 {
		loggerOrDiscard(opts.Logger).Warn("ambiguous PAK footer",
			"layout", found.Layout,
			"byte_order", found.ByteOrder,
			"alternatives", found.Alternatives,
		)
	}

	return found, nil
}

// decodeFooter decodes raw footer bytes in one layout and byte order and validates them.
func decodeFooter(raw []byte, layout FooterLayout, order ByteOrder, fileSize int64) (Footer, bool) {
	bo := order.Binary()
	f := Footer{Layout: layout, ByteOrder: order}

	var magic uint32
	if layout.hasEncryptionFields() {
		copy(f.EncryptionKeyGUID[:], raw[:footerFlagOffset])
		f.Encrypted = raw[footerFlagOffset] != 0
		magic = bo.Uint32(raw[footerMagicOffset:])
		f.Version = bo.Uint32(raw[footerVersionOffset:])
		f.IndexOffset = bo.Uint64(raw[footerIndexOffset:])
		f.IndexSize = bo.Uint64(raw[footerIndexSizeOffset:])
		if layout == FooterExtended {
			copy(f.IndexHash[:], raw[footerIndexHashOffset:footerIndexHashOffset+hashSize])
		}
	} else {
		magic = bo.Uint32(raw[legacyMagicOffset:])
		f.Version = bo.Uint32(raw[legacyVersionOffset:])
		f.IndexOffset = bo.Uint64(raw[legacyIndexOffset:])
		f.IndexSize = bo.Uint64(raw[legacyIndexSizeOffset:])
	}

	switch magic {
	case magicStandard:
		f.Magic = MagicStandard
	case magicReversed:
		f.Magic = MagicReversed
	default:
		return Footer{}, false
	}

	if f.Version < minVersion || f.Version > maxVersion {
		return Footer{}, false
	}

	limit := uint64(fileSize - int64(len(raw)))
	if f.IndexOffset > limit || f.IndexSize > limit-f.IndexOffset {
		return Footer{}, false
	}

	return f, true
}

// scanMagicHits reports every 4-byte window of tail that decodes to a known magic.
func scanMagicHits(tail []byte, base int64) []MagicHit {
	var hits []MagicHit
	for idx := 0; idx+4 <= len(tail); idx++ {
		for _, order := range []ByteOrder{LittleEndian, BigEndian} {
			switch order.Binary().Uint32(tail[idx:]) {
			case magicStandard:
				hits = append(hits, MagicHit{Offset: base + int64(idx), ByteOrder: order, Magic: MagicStandard})
			case magicReversed:
				hits = append(hits, MagicHit{Offset: base + int64(idx), ByteOrder: order, Magic: MagicReversed})
			}
		}
	}

	return hits
}

// encodeFooter serializes footer fields in its layout and byte order.
// Encryption GUID and flag are always written zero.
func encodeFooter(f Footer) []byte {
	bo := f.ByteOrder.Binary()
	out := make([]byte, f.Layout.Size())
	if f.Layout.hasEncryptionFields() {
		bo.PutUint32(out[footerMagicOffset:], f.Magic.Value())
		bo.PutUint32(out[footerVersionOffset:], f.Version)
		bo.PutUint64(out[footerIndexOffset:], f.IndexOffset)
		bo.PutUint64(out[footerIndexSizeOffset:], f.IndexSize)
		if f.Layout == FooterExtended {
			copy(out[footerIndexHashOffset:], f.IndexHash[:])
		}

		return out
	}

	bo.PutUint32(out[legacyMagicOffset:], f.Magic.Value())
	bo.PutUint32(out[legacyVersionOffset:], f.Version)
	bo.PutUint64(out[legacyIndexOffset:], f.IndexOffset)
	bo.PutUint64(out[legacyIndexSizeOffset:], f.IndexSize)
	return out
}
