// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"

	"github.com/woozymasta/pathrules"
)

// entryMatcher selects entries by compiled include/exclude rules.
// A nil matcher selects everything.
type entryMatcher struct {
	rules *pathrules.Matcher
}

// newEntryMatcher compiles rules after path normalization; rules with empty
// patterns are ignored. Returns nil when nothing is left to match.
func newEntryMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*entryMatcher, error) {
	cleaned := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		rule.Pattern = normalizePathForMatching(rule.Pattern)
		if rule.Pattern != "" {
			cleaned = append(cleaned, rule)
		}
	}

	if len(cleaned) == 0 {
		return nil, nil
	}

	compiled, err := pathrules.NewMatcher(cleaned, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidFilterRule, err)
	}

	return &entryMatcher{rules: compiled}, nil
}

// selects reports whether entry path passes the rules.
func (m *entryMatcher) selects(p string) bool {
	if m == nil {
		return true
	}

	p = NormalizePath(p)
	return p != "" && m.rules.Included(p, false)
}

// filterEntriesByRules keeps entries selected by m.
func filterEntriesByRules(entries []Entry, m *entryMatcher) []Entry {
	if m == nil {
		return entries
	}

	return keepEntries(entries, func(e *Entry) bool { return m.selects(e.Path) })
}

// filterEntriesByPrefix keeps entries equal to prefix or below it.
func filterEntriesByPrefix(entries []Entry, prefix string) []Entry {
	prefix = NormalizePath(prefix)
	if prefix == "" {
		return entries
	}

	return keepEntries(entries, func(e *Entry) bool { return hasDirPrefix(e.Path, prefix) })
}

// keepEntries returns a new slice with entries accepted by keep, in order.
func keepEntries(entries []Entry, keep func(*Entry) bool) []Entry {
	out := make([]Entry, 0, len(entries))
	for i := range entries {
		if keep(&entries[i]) {
			out = append(out, entries[i])
		}
	}

	return out
}
