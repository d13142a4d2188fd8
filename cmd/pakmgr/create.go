// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/woozymasta/pak"
	"github.com/woozymasta/pak/internal/progress"
)

var (
	createMount   string
	createVersion uint32
	createLayout  string
	createBig     bool
	createReverse bool
)

var createCmd = &cobra.Command{
	Use:   "create <source-dir> <output.pak>",
	Short: "Create a new archive from a directory",
	Long: `Create a new uncompressed archive from every regular file under source-dir.
Entries are written in directory walk order with paths relative to source-dir.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		layout, ok := pak.ParseFooterLayout(createLayout)
		if !ok {
			return fmt.Errorf("unknown footer layout %q", createLayout)
		}

		inputs, err := dirInputs(args[0])
		if err != nil {
			return err
		}

		opts := pak.CreateOptions{
			MountPoint: createMount,
			Version:    createVersion,
			Layout:     layout,
		}
		if createBig {
			opts.ByteOrder = pak.BigEndian
		}
		if createReverse {
			opts.Magic = pak.MagicReversed
		}

		bar := progress.New("create", len(inputs), !cfg.NoProgress)
		opts.Logger = slog.Default()
		opts.MaxWorkers = cfg.Workers
		opts.MaxBufferedBytes = cfg.MaxBufferedBytes
		opts.OnEntryDone = func(entry pak.Entry) {
			bar.Increment(entry.Path)
		}

		res, err := createFile(cmd, args[1], inputs, opts)
		bar.Finish()
		if err != nil {
			return err
		}

		res.Archive.Name = args[1]
		logRepackResult(res)
		return nil
	},
}

func init() {
	flags := createCmd.Flags()
	flags.StringVarP(&createMount, "mount", "m", pak.DefaultMountPoint, "mount point written to index")
	flags.Uint32Var(&createVersion, "version", pak.DefaultVersion, "container version (1-11)")
	flags.StringVar(&createLayout, "layout", "legacy", "footer layout (legacy, encrypted, extended)")
	flags.BoolVar(&createBig, "big-endian", false, "write big-endian numbers")
	flags.BoolVar(&createReverse, "reversed-magic", false, "write byte-reversed magic")
}

// createFile writes archive through a temp file renamed into place on success.
func createFile(cmd *cobra.Command, dst string, inputs []pak.Input, opts pak.CreateOptions) (*pak.RepackResult, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()

	res, err := pak.Create(cmd.Context(), tmp, inputs, opts)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, dst)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	return res, nil
}
