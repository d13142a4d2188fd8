// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/woozymasta/pak"
	"github.com/woozymasta/pak/internal/humanize"
)

// archiveInfo is JSON view of archive summary.
type archiveInfo struct {
	Archive    *pak.Archive `json:"archive"`
	IndexHash  string       `json:"index_hash,omitempty"`
	Entries    int          `json:"entries"`
	Records    int          `json:"records"`
	DataSize   uint64       `json:"data_size"`
	Compressed int          `json:"compressed_entries"`
	Encrypted  int          `json:"encrypted_entries"`
}

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <archive.pak>",
	Short: "Show footer and index summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openArchive(args[0])
		if err != nil {
			printFooterDiagnostics(cmd.ErrOrStderr(), err)
			return err
		}
		defer func() { _ = r.Close() }()

		info := summarize(r.Archive())
		if infoJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		return printInfo(cmd.OutOrStdout(), info)
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print summary as JSON")
}

// summarize collects counters over archive records.
func summarize(a *pak.Archive) archiveInfo {
	info := archiveInfo{Archive: a, Entries: a.Len()}
	if a.Layout == pak.FooterExtended {
		info.IndexHash = hex.EncodeToString(a.IndexHash[:])
	}

	for _, e := range a.Records() {
		info.Records++
		info.DataSize += e.CompressedSize
		if e.IsCompressed() {
			info.Compressed++
		}
		if e.Encrypted {
			info.Encrypted++
		}
	}

	return info
}

// printInfo writes human-readable summary.
func printInfo(w io.Writer, info archiveInfo) error {
	a := info.Archive
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Archive:\t%s\n", a.Name)
	fmt.Fprintf(tw, "Size:\t%s\n", humanize.Bytes(a.Size))
	fmt.Fprintf(tw, "Version:\t%d\n", a.Version)
	fmt.Fprintf(tw, "Footer:\t%s, %s, %s magic\n", a.Layout, a.ByteOrder, a.Magic)
	fmt.Fprintf(tw, "Mount point:\t%s\n", a.MountPoint)
	fmt.Fprintf(tw, "Index:\t%d +%s\n", a.IndexOffset, humanize.Bytes(int64(a.IndexSize)))
	fmt.Fprintf(tw, "Entries:\t%s (%s records)\n", humanize.Number(int64(info.Entries)), humanize.Number(int64(info.Records)))
	fmt.Fprintf(tw, "Stored data:\t%s\n", humanize.Bytes(int64(info.DataSize)))
	fmt.Fprintf(tw, "Compressed:\t%d\n", info.Compressed)
	fmt.Fprintf(tw, "Encrypted:\tarchive=%t entries=%d\n", a.ArchiveEncrypted, info.Encrypted)
	if a.EncryptionKeyGUID != uuid.Nil {
		fmt.Fprintf(tw, "Key GUID:\t%s\n", a.EncryptionKeyGUID)
	}
	if info.IndexHash != "" {
		fmt.Fprintf(tw, "Index hash:\t%s\n", info.IndexHash)
	}
	if len(a.AmbiguousLayouts) > 0 {
		fmt.Fprintf(tw, "Also valid:\t%v\n", a.AmbiguousLayouts)
	}

	return tw.Flush()
}

// printFooterDiagnostics dumps footer bytes and magic hits when no footer validated.
func printFooterDiagnostics(w io.Writer, err error) {
	var notFound *pak.FooterNotFoundError
	if !errors.As(err, &notFound) {
		return
	}

	fmt.Fprintf(w, "Footer bytes (last %d of %d):\n%s", len(notFound.RawFooter), notFound.FileSize, hex.Dump(notFound.RawFooter))
	for _, hit := range notFound.MagicHits {
		fmt.Fprintf(w, "  magic-like value at %d (%s, %s)\n", hit.Offset, hit.ByteOrder, hit.Magic)
	}

	if len(notFound.MagicHits) > 0 {
		fmt.Fprintln(w, "Try --footer-layout and --byte-order to force a layout.")
	}
}
