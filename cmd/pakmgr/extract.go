// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/woozymasta/pak"
	"github.com/woozymasta/pak/internal/humanize"
	"github.com/woozymasta/pak/internal/progress"
)

var (
	extractInclude  []string
	extractExclude  []string
	extractSanitize bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <archive.pak> <dest-dir>",
	Short: "Extract entries into a directory",
	Long: `Extract logical entries into dest-dir. Entry paths escaping dest-dir are
rejected. Failures of single entries do not stop the rest; all failures are
reported at the end.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openArchive(args[0])
		if err != nil {
			printFooterDiagnostics(cmd.ErrOrStderr(), err)
			return err
		}
		defer func() { _ = r.Close() }()

		rules, matcherOpts := filterRules(extractInclude, extractExclude)
		bar := progress.New("extract", r.Archive().Len(), !cfg.NoProgress)

		var written atomic.Int64
		start := time.Now()
		err = r.Extract(cmd.Context(), args[1], pak.ExtractOptions{
			Filter:               rules,
			FilterMatcherOptions: matcherOpts,
			FileMode:             pak.ExtractFileMode(cfg.FileMode),
			MaxWorkers:           cfg.Workers,
			PrependMountPoint:    cfg.PrependMountPoint,
			SanitizeNames:        extractSanitize,
			OnEntryDone: func(entry pak.Entry, n int64, _ string) {
				written.Add(n)
				bar.Increment(entry.Path)
			},
		})
		bar.Finish()

		var batchErr *pak.BatchError
		if errors.As(err, &batchErr) {
			for _, failure := range batchErr.Failures {
				slog.Error("extract failed", "error", failure)
			}

			return fmt.Errorf("%d of %d entries failed", len(batchErr.Failures), len(batchErr.Failures)+batchErr.Succeeded)
		}
		if err != nil {
			return err
		}

		slog.Info("extracted",
			"archive", args[0],
			"dest", args[1],
			"size", humanize.Bytes(written.Load()),
			"duration", humanize.Duration(time.Since(start)))

		return nil
	},
}

func init() {
	flags := extractCmd.Flags()
	flags.StringArrayVarP(&extractInclude, "include", "i", nil, "include pattern (repeatable)")
	flags.StringArrayVarP(&extractExclude, "exclude", "e", nil, "exclude pattern (repeatable)")
	flags.String("file-mode", "", "output policy (truncate, create_only)")
	flags.Bool("prepend-mount-point", false, "place entries under the archive mount point")
	flags.BoolVar(&extractSanitize, "sanitize", false, "rewrite unsafe or colliding file names instead of failing them")
}
