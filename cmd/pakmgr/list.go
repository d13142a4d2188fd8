// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/woozymasta/pak"
	"github.com/woozymasta/pak/internal/humanize"
)

var (
	listJSON    bool
	listRecords bool
	listPrefix  string
	listInclude []string
	listExclude []string
)

var listCmd = &cobra.Command{
	Use:   "list <archive.pak>",
	Short: "List archive entries",
	Long: `List logical entries (one per path, last record wins). With --records every
physical index record is listed in index order, duplicates included.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, matcherOpts := filterRules(listInclude, listExclude)
		entries, err := pak.ListEntriesWithOptions(args[0], pak.ListOptions{
			Prefix:               listPrefix,
			Filter:               rules,
			FilterMatcherOptions: matcherOpts,
			Records:              listRecords,
			Parse: pak.ParseOptions{
				Logger:    slog.Default(),
				Footer:    cfg.FooterOptions(),
				MemoryMap: cfg.MemoryMap,
			},
		})
		if err != nil {
			printFooterDiagnostics(cmd.ErrOrStderr(), err)
			return err
		}

		if listJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		return printEntries(cmd.OutOrStdout(), entries)
	},
}

func init() {
	flags := listCmd.Flags()
	flags.BoolVar(&listJSON, "json", false, "print entries as JSON")
	flags.BoolVar(&listRecords, "records", false, "list physical records including duplicates")
	flags.StringVar(&listPrefix, "prefix", "", "only entries under path prefix")
	flags.StringArrayVarP(&listInclude, "include", "i", nil, "include pattern (repeatable)")
	flags.StringArrayVarP(&listExclude, "exclude", "e", nil, "exclude pattern (repeatable)")
}

// printEntries writes entry table.
func printEntries(w io.Writer, entries []pak.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tSIZE\tSTORED\tMODIFIED\tFLAGS\tPATH")

	var total uint64
	for _, e := range entries {
		modified := "-"
		if e.HasTimestamp && e.Timestamp > 0 {
			modified = time.Unix(int64(e.Timestamp), 0).UTC().Format(time.DateTime)
		}

		flags := "-"
		if e.Encrypted {
			flags = "enc"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Method,
			humanize.Bytes(int64(e.UncompressedSize)),
			humanize.Bytes(int64(e.CompressedSize)),
			modified,
			flags,
			e.Path)
		total += e.UncompressedSize
	}

	fmt.Fprintf(tw, "\t%s\t\t\t\t%s entries\n", humanize.Bytes(int64(total)), humanize.Number(int64(len(entries))))
	return tw.Flush()
}
