// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"hash/fnv"
	"path"
	"strconv"
	"strings"
	"unicode"
)

// maxSanitizedSegmentLen limits one output path segment.
const maxSanitizedSegmentLen = 240

// reservedDeviceNames are Windows device names that cannot be used as file names
// regardless of extension.
var reservedDeviceNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {}, "clock$": {}, "conin$": {}, "conout$": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SanitizePath rewrites an entry path into a form that can be created on common
// filesystems: unsafe characters become "_", device names get a "_" prefix,
// trailing dots and spaces are dropped and long segments are shortened.
func SanitizePath(entryPath string) (string, error) {
	normalized := NormalizePath(entryPath)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidExtractPath, entryPath)
	}

	parts := strings.Split(normalized, "/")
	for i, part := range parts {
		parts[i] = sanitizeSegment(part)
	}

	sanitized := strings.Join(parts, "/")
	if _, err := normalizeExtractEntryPath(sanitized); err != nil {
		return "", fmt.Errorf("%w: %q", err, entryPath)
	}

	return sanitized, nil
}

// sanitizeSegment sanitizes one path segment.
func sanitizeSegment(segment string) string {
	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range strings.TrimSpace(segment) {
		if unicode.IsControl(r) || unicode.In(r, unicode.Cf) || r == unicode.ReplacementChar ||
			strings.ContainsRune(`<>:"|?*\`, r) {
			b.WriteByte('_')
			continue
		}

		b.WriteRune(r)
	}

	out := strings.TrimRight(b.String(), ". ")
	if out == "" || out == ".." {
		return "_"
	}

	stem := strings.ToLower(out)
	if dot := strings.IndexByte(stem, '.'); dot >= 0 {
		stem = stem[:dot]
	}
	if _, reserved := reservedDeviceNames[stem]; reserved {
		out = "_" + out
	}

	return shortenSegment(out, maxSanitizedSegmentLen)
}

// pathDeduper assigns case-insensitively unique output paths.
type pathDeduper struct {
	used map[string]struct{}
}

// newPathDeduper returns deduper sized for n paths.
func newPathDeduper(n int) *pathDeduper {
	return &pathDeduper{used: make(map[string]struct{}, n)}
}

// unique returns p, or p with "~N" inserted before extension when taken.
func (d *pathDeduper) unique(p string) string {
	key := strings.ToLower(p)
	if _, taken := d.used[key]; !taken {
		d.used[key] = struct{}{}
		return p
	}

	dir, name := path.Split(p)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		suffix := "~" + strconv.Itoa(n)
		candidate := dir + shortenSegment(stem, max(maxSanitizedSegmentLen-len(ext)-len(suffix), 1)) + suffix + ext
		key = strings.ToLower(candidate)
		if _, taken := d.used[key]; !taken {
			d.used[key] = struct{}{}
			return candidate
		}
	}
}

// shortenSegment truncates value to limit keeping a stable FNV suffix.
func shortenSegment(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	if limit <= 10 {
		return value[:limit]
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	tag := fmt.Sprintf("~%08x", h.Sum32())
	return value[:limit-len(tag)] + tag
}
