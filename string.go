// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// cursor reads fixed-width fields from an in-memory region. Every read is bounded
// by the region, so no field may spill past it.
type cursor struct {
	order BinaryOrder
	buf   []byte
	pos   int
}

// newCursor returns cursor over buf in given byte order.
func newCursor(buf []byte, order ByteOrder) *cursor {
	return &cursor{buf: buf, order: order.Binary()}
}

// remaining returns unread byte count.
func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

// take returns next n bytes without copying.
func (c *cursor) take(n int) ([]byte, bool) {
	if n < 0 || n > c.remaining() {
		return nil, false
	}

	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, true
}

// u8 reads one byte.
func (c *cursor) u8() (uint8, bool) {
	b, ok := c.take(1)
	if !ok {
		return 0, false
	}

	return b[0], true
}

// u32 reads one 32-bit unsigned integer.
func (c *cursor) u32() (uint32, bool) {
	b, ok := c.take(4)
	if !ok {
		return 0, false
	}

	return c.order.Uint32(b), true
}

// u64 reads one 64-bit unsigned integer.
func (c *cursor) u64() (uint64, bool) {
	b, ok := c.take(8)
	if !ok {
		return 0, false
	}

	return c.order.Uint64(b), true
}

// utf16Encoding returns x/text UTF-16 codec for byte order.
func utf16Encoding(order BinaryOrder) unicode.Endianness {
	if order == binary.BigEndian {
		return unicode.BigEndian
	}

	return unicode.LittleEndian
}

// readString decodes one length-prefixed string field.
// Positive length is narrow UTF-8, negative length is UTF-16 code units.
func readString(c *cursor) (string, error) {
	raw, ok := c.u32()
	if !ok {
		return "", fmt.Errorf("%w: length prefix at %d", ErrMalformedString, c.pos)
	}

	n := int32(raw)
	switch {
	case n == 0:
		return "", nil
	case n == math.MinInt32:
		return "", fmt.Errorf("%w: length %d at %d", ErrMalformedString, n, c.pos-4)
	case n > 0:
		data, ok := c.take(int(n))
		if !ok {
			return "", fmt.Errorf("%w: %d bytes at %d exceed bound", ErrMalformedString, n, c.pos-4)
		}

		return strings.TrimRight(string(data), "\x00"), nil
	default:
		units := -int64(n)
		if units*2 > int64(c.remaining()) {
			return "", fmt.Errorf("%w: %d code units at %d exceed bound", ErrMalformedString, units, c.pos-4)
		}

		data, _ := c.take(int(units * 2))
		dec := unicode.UTF16(utf16Encoding(c.order), unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", fmt.Errorf("%w: decode UTF-16: %w", ErrMalformedString, err)
		}

		return strings.TrimRight(string(out), "\x00"), nil
	}
}

// appendString encodes s as length-prefixed NUL-terminated field.
// ASCII strings are written narrow, everything else as UTF-16.
func appendString(dst *bytes.Buffer, order BinaryOrder, s string) error {
	if s == "" {
		dst.Write(order.AppendUint32(nil, 0))
		return nil
	}

	if isASCII(s) {
		if len(s) >= math.MaxInt32 {
			return fmt.Errorf("string too long: %d bytes", len(s))
		}

		dst.Write(order.AppendUint32(nil, uint32(int32(len(s)+1))))
		dst.WriteString(s)
		dst.WriteByte(0)
		return nil
	}

	enc := unicode.UTF16(utf16Encoding(order), unicode.IgnoreBOM).NewEncoder()
	wide, err := enc.Bytes([]byte(s + "\x00"))
	if err != nil {
		return fmt.Errorf("encode UTF-16 %q: %w", s, err)
	}

	units := len(wide) / 2
	if units > math.MaxInt32 {
		return fmt.Errorf("string too long: %d code units", units)
	}

	dst.Write(order.AppendUint32(nil, uint32(-int32(units))))
	dst.Write(wide)
	return nil
}

// isASCII reports whether s contains only ASCII bytes.
func isASCII(s string) bool {
	for idx := 0; idx < len(s); idx++ {
		if s[idx] >= 0x80 {
			return false
		}
	}

	return true
}
