// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath returns the canonical archive form of raw: slash separated,
// relative, with "." and ".." segments resolved and no trailing slash.
// Segments climbing above the root are dropped. "\" is accepted as separator.
func NormalizePath(raw string) string {
	cleaned := path.Clean("/" + normalizePathForMatching(raw))
	if cleaned == "/" {
		return ""
	}

	return cleaned[1:]
}

// NormalizeMountPoint converts a stored mount point such as "../../../Game/"
// to a relative directory usable under an extraction root.
func NormalizeMountPoint(mountPoint string) string {
	return NormalizePath(mountPoint)
}

// normalizeRecordPath derives the logical key of an index filename.
func normalizeRecordPath(raw, mountPoint string) string {
	if mountPoint != "" {
		raw = strings.TrimPrefix(raw, mountPoint)
	}

	return NormalizePath(raw)
}

// normalizePathForMatching unifies separators of user supplied paths and patterns.
func normalizePathForMatching(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	return strings.TrimPrefix(p, "./")
}

// normalizeArchiveEntryPath is NormalizePath that rejects paths naming the root.
func normalizeArchiveEntryPath(raw string) (string, error) {
	p := NormalizePath(raw)
	if p == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	return p, nil
}
