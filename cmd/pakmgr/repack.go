// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/woozymasta/pak"
	"github.com/woozymasta/pak/internal/humanize"
	"github.com/woozymasta/pak/internal/progress"
)

var (
	repackDir       string
	repackReplace   []string
	repackDelete    []string
	repackDeleteDir []string
)

var repackCmd = &cobra.Command{
	Use:   "repack <archive.pak> [output.pak]",
	Short: "Rebuild archive with replaced, added or removed entries",
	Long: `Rebuild an archive keeping its version, byte order, magic and footer layout.
Files from --dir and --replace pairs replace entries with the same path or are
appended as new entries. All entries are written uncompressed.

Without output.pak the archive is edited in place: the original is moved to a
.bak backup and restored if the rewrite fails. --delete and --delete-dir are
available only in this mode.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := collectRepackInputs()
		if err != nil {
			return err
		}

		parse := pak.ParseOptions{
			Logger:    slog.Default(),
			Footer:    cfg.FooterOptions(),
			MemoryMap: cfg.MemoryMap,
		}
		records, err := pak.ListEntriesWithOptions(args[0], pak.ListOptions{
			Records: true,
			Parse:   parse,
		})
		if err != nil {
			printFooterDiagnostics(cmd.ErrOrStderr(), err)
			return err
		}

		bar := progress.New("repack", len(records)+len(inputs), !cfg.NoProgress)
		opts := pak.RepackOptions{
			Logger:           slog.Default(),
			MaxWorkers:       cfg.Workers,
			MaxBufferedBytes: cfg.MaxBufferedBytes,
			Parse:            parse,
			OnEntryDone: func(entry pak.Entry) {
				bar.Increment(entry.Path)
			},
		}

		var res *pak.RepackResult
		if len(args) == 2 {
			if len(repackDelete) > 0 || len(repackDeleteDir) > 0 {
				bar.Finish()
				return errors.New("--delete and --delete-dir require in-place mode")
			}

			res, err = pak.RepackFile(cmd.Context(), args[0], args[1], inputs, opts)
		} else {
			res, err = editInPlace(cmd, args[0], records, inputs, opts)
		}
		bar.Finish()
		if err != nil {
			return err
		}

		logRepackResult(res)
		return nil
	},
}

func init() {
	flags := repackCmd.Flags()
	flags.StringVarP(&repackDir, "dir", "d", "", "directory whose files replace or add entries by relative path")
	flags.StringArrayVarP(&repackReplace, "replace", "r", nil, "entry/path=file replacement (repeatable)")
	flags.StringArrayVar(&repackDelete, "delete", nil, "remove entry path (in-place only, repeatable)")
	flags.StringArrayVar(&repackDeleteDir, "delete-dir", nil, "remove entries under directory (in-place only, repeatable)")
	flags.Int("backups", 1, "backup generations to keep for in-place edits")
}

// collectRepackInputs merges directory inputs with explicit pairs.
func collectRepackInputs() ([]pak.Input, error) {
	var inputs []pak.Input
	if repackDir != "" {
		dirFiles, err := dirInputs(repackDir)
		if err != nil {
			return nil, err
		}

		inputs = append(inputs, dirFiles...)
	}

	pairs, err := pairInputs(repackReplace)
	if err != nil {
		return nil, err
	}

	return append(inputs, pairs...), nil
}

// editInPlace stages inputs as replacements or additions and commits through an editor.
func editInPlace(
	cmd *cobra.Command,
	path string,
	records []pak.Entry,
	inputs []pak.Input,
	opts pak.RepackOptions,
) (*pak.RepackResult, error) {
	editor, err := pak.OpenEditor(path, pak.EditOptions{
		RepackOptions: opts,
		BackupKeep:    cfg.BackupKeep,
	})
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(records))
	for _, e := range records {
		existing[e.Path] = struct{}{}
	}

	var added, replaced []pak.Input
	for _, in := range inputs {
		if _, ok := existing[pak.NormalizePath(in.Path)]; ok {
			replaced = append(replaced, in)
			continue
		}

		added = append(added, in)
	}

	if err := editor.Delete(repackDelete...); err != nil {
		return nil, err
	}
	if err := editor.DeleteDir(repackDeleteDir...); err != nil {
		return nil, err
	}
	if err := editor.Replace(replaced...); err != nil {
		return nil, err
	}
	if err := editor.Add(added...); err != nil {
		return nil, err
	}

	return editor.Commit(cmd.Context())
}

// logRepackResult reports rewrite statistics.
func logRepackResult(res *pak.RepackResult) {
	slog.Info("archive written",
		"path", res.Archive.Name,
		"entries", humanize.Number(int64(res.WrittenEntries)),
		"replaced", res.ReplacedEntries,
		"added", res.AddedEntries,
		"data", humanize.Bytes(res.DataSize),
		"index", humanize.Bytes(res.IndexSize),
		"total", humanize.Bytes(res.TotalSize),
		"duration", humanize.Duration(res.Duration))
}
