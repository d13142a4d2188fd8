// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/pathrules"

	"github.com/woozymasta/pak"
)

// filterRules builds ordered rules from include and exclude patterns.
// Any include pattern switches the default action to exclude.
func filterRules(include, exclude []string) ([]pathrules.Rule, pathrules.MatcherOptions) {
	rules := make([]pathrules.Rule, 0, len(include)+len(exclude))
	for _, pattern := range include {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}
	for _, pattern := range exclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}

	opts := pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   pathrules.ActionInclude,
	}
	if len(include) > 0 {
		opts.DefaultAction = pathrules.ActionExclude
	}

	return rules, opts
}

// fileInput describes one file on disk as archive input stored at entryPath.
func fileInput(entryPath, filePath string, info fs.FileInfo) pak.Input {
	return pak.Input{
		Path:     entryPath,
		ModTime:  info.ModTime(),
		SizeHint: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(filePath)
		},
	}
}

// dirInputs collects regular files under root as inputs keyed by relative slash path.
func dirInputs(root string) ([]pak.Input, error) {
	var inputs []pak.Input
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		inputs = append(inputs, fileInput(filepath.ToSlash(rel), p, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	return inputs, nil
}

// pairInputs parses "entry/path=file" arguments.
func pairInputs(pairs []string) ([]pak.Input, error) {
	inputs := make([]pak.Input, 0, len(pairs))
	for _, pair := range pairs {
		entryPath, filePath, ok := strings.Cut(pair, "=")
		if !ok || entryPath == "" || filePath == "" {
			return nil, fmt.Errorf("invalid replacement %q, want entry/path=file", pair)
		}

		info, err := os.Stat(filePath)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("replacement source %s is not a regular file", filePath)
		}

		inputs = append(inputs, fileInput(entryPath, filePath, info))
	}

	return inputs, nil
}
