// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

// Package humanize formats sizes and durations for CLI output.
package humanize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bytes formats byte count with binary unit suffix.
// Examples: 512 -> "512 B", 1536 -> "1.5 KiB", 10485760 -> "10.0 MiB".
func Bytes(n int64) string {
	const unit = 1024
	if n < unit && n > -unit {
		return strconv.FormatInt(n, 10) + " B"
	}

	value := float64(n)
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	idx := -1
	for (value >= unit || value <= -unit) && idx < len(suffixes)-1 {
		value /= unit
		idx++
	}

	return fmt.Sprintf("%.1f %s", value, suffixes[idx])
}

// Number formats large numbers with commas for readability.
// For example: 1234567 becomes "1,234,567".
func Number(n int64) string {
	str := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(str, "-") {
		sign, str = "-", str[1:]
	}

	if len(str) <= 3 {
		return sign + str
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	return b.String()
}

// Duration formats time duration in human-readable form.
// Examples:
//   - Less than 1 millisecond: "0s"
//   - Less than 1 second: "250ms"
//   - Less than 1 minute: "5.2s"
//   - Less than 1 hour: "3m5.2s"
//   - 1 hour or more: "2h15m"
func Duration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "0s"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		minutes := int(d.Minutes())
		seconds := d.Seconds() - float64(minutes*60)
		return fmt.Sprintf("%dm%.1fs", minutes, seconds)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
