// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

/*
Package pak provides parse, extract, repack and edit operations for PAK
game-archive containers: a trailing footer points at an index region that
lists named, optionally compressed entries.

Decoding rules (summary):
  - footer layouts are tried in fixed order (44-byte, 28-byte, 64-byte),
    each little-endian first; the first that validates wins and later valid
    candidates are reported as ambiguous;
  - both the standard and byte-reversed magic are accepted;
  - index strings are length-prefixed, positive for UTF-8 and negative for UTF-16;
  - zlib and gzip entries are decoded block by block, other methods are refused;
  - encrypted archives and entries are refused, never decrypted.

Repack always stores entries uncompressed and keeps the source version,
magic, byte order and footer layout.

# Reading

Open a PAK and list or read entries:

	r, err := pak.Open("Game-Windows.pak")
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.Entries() {
	    data, _ := r.ReadEntry(e.Path)
	    // use data
	}

Parse works on any io.ReaderAt with known size:

	a, err := pak.Parse(f, size)
	if err != nil {
	    return err
	}
	data, err := pak.Extract(a, "Config/DefaultGame.ini", f)

For metadata-only scans:

	footer, err := pak.ReadFooter("Game-Windows.pak")
	if err != nil {
	    return err
	}
	entries, err := pak.ListEntriesWithOptions("Game-Windows.pak", pak.ListOptions{
	    Prefix: "Config",
	})
	_, _ = footer, entries

When no footer validates, the error carries the raw footer bytes and every
magic-like window for diagnostics:

	var notFound *pak.FooterNotFoundError
	if errors.As(err, &notFound) {
	    fmt.Printf("%x %v\n", notFound.RawFooter, notFound.MagicHits)
	}

# Extract

Extract entries to disk with include/exclude filters:

	err = r.Extract(ctx, "out", pak.ExtractOptions{
	    Filter: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "Content/**"},
	        {Action: pathrules.ActionExclude, Pattern: "*.uexp"},
	    },
	    PrependMountPoint: true,
	})

Failures of single entries do not stop extraction; they are returned
together as *BatchError.

# Repack

Replace content and write a new archive:

	res, err := pak.RepackFile(ctx, "Game.pak", "Game_P.pak", []pak.Input{
	    {
	        Path: "Config/DefaultGame.ini",
	        Open: func() (io.ReadCloser, error) { return os.Open("DefaultGame.ini") },
	    },
	}, pak.RepackOptions{})

Create a fresh archive:

	res, err := pak.Create(ctx, out, inputs, pak.CreateOptions{})

# Edit

Stage in-place edits with backup and rollback:

	ed, err := pak.OpenEditor("Game.pak", pak.EditOptions{BackupKeep: 2})
	if err != nil {
	    return err
	}
	_ = ed.Replace(input)
	_ = ed.Delete("Config/Unused.ini")
	res, err := ed.Commit(ctx)
*/
package pak
