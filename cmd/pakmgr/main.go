// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

// Command pakmgr inspects, extracts, repacks and creates PAK archives.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/woozymasta/pak"
	"github.com/woozymasta/pak/internal/config"
	"github.com/woozymasta/pak/internal/logging"
)

var (
	cfg      *config.Config
	cfgFile  string
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "pakmgr",
	Short: "Inspect, extract and repack PAK game archives",
	Long: `pakmgr reads PAK containers (trailing footer, index, optionally zlib/gzip
compressed entries), extracts their content and rebuilds archives with
replaced or added files. Encrypted archives are detected and refused.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		_, closeFn, err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat, cfg.LogOutputDir)
		if err != nil {
			return fmt.Errorf("could not set up logging: %w", err)
		}
		closeLog = closeFn

		slog.Debug("configuration",
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat,
			"footer_layout", cfg.FooterLayout,
			"byte_order", cfg.ByteOrder,
			"workers", cfg.Workers,
			"memory_map", cfg.MemoryMap)

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		_ = closeLog()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is pakmgr.yaml in home or pwd)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("log-output-dir", "", "directory for JSON log files in addition to stderr")
	flags.String("footer-layout", "", "force footer layout (auto, encrypted, legacy, extended)")
	flags.String("byte-order", "", "force byte order (auto, little, big)")
	flags.IntP("workers", "w", 0, "worker count (0 = GOMAXPROCS)")
	flags.Bool("mmap", false, "memory-map archives instead of positioned reads")
	flags.Bool("no-progress", false, "disable progress bar")

	rootCmd.AddCommand(infoCmd, listCmd, extractCmd, repackCmd, createCmd)
}

// openArchive opens path with configured footer overrides.
func openArchive(path string) (*pak.Reader, error) {
	return pak.OpenWithOptions(path, pak.ParseOptions{
		Logger:    slog.Default(),
		Footer:    cfg.FooterOptions(),
		MemoryMap: cfg.MemoryMap,
	})
}
