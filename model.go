// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"encoding/binary"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	hashSize          = 20 // SHA1 digest size in entry records and extended footer
	guidSize          = 16 // encryption key GUID size in footer
	minVersion        = 1
	maxVersion        = 11
	timestampVersion  = 8 // first version with per-entry timestamps
	blockCountVersion = 3 // first version with explicit block counts
)

// Magic constants. Both are accepted, the reversed one is a distinct on-disk encoding.
const (
	magicStandard uint32 = 0x5A6F12E1
	magicReversed uint32 = 0xE1126F5A
)

// Defaults for freshly authored archives.
const (
	DefaultVersion    = 8
	DefaultMountPoint = "../../../"
)

// Default tuning values.
const (
	DefaultWriteBuffer      = 4 * 1024 * 1024
	DefaultMaxBufferedBytes = 256 * 1024 * 1024
)

// ByteOrder is numeric storage order of footer and index fields.
type ByteOrder uint8

// Supported byte orders.
const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// BinaryOrder decodes and appends fixed-width integers in one byte order.
type BinaryOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Binary returns encoding/binary implementation for byte order.
func (o ByteOrder) Binary() BinaryOrder {
	if o == BigEndian {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// String implements fmt.Stringer.
func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big-endian"
	}

	return "little-endian"
}

// MarshalText implements encoding.TextMarshaler.
func (o ByteOrder) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// MagicLayout identifies which magic encoding the footer carries.
type MagicLayout uint8

// Magic encodings.
const (
	// MagicStandard is 0x5A6F12E1 decoded in archive byte order.
	MagicStandard MagicLayout = iota
	// MagicReversed is the byte-reversed 0xE1126F5A decoded in archive byte order.
	MagicReversed
)

// Value returns numeric magic for layout.
func (m MagicLayout) Value() uint32 {
	if m == MagicReversed {
		return magicReversed
	}

	return magicStandard
}

// String implements fmt.Stringer.
func (m MagicLayout) String() string {
	if m == MagicReversed {
		return "reversed"
	}

	return "standard"
}

// MarshalText implements encoding.TextMarshaler.
func (m MagicLayout) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// FooterLayout identifies one footer shape from the candidate table.
type FooterLayout uint8

// Footer shapes in locator priority order. FooterAuto is only valid as an option.
const (
	FooterAuto FooterLayout = iota
	// FooterEncrypted is 44 bytes with encryption GUID and per-archive flag.
	FooterEncrypted
	// FooterLegacy is 28 bytes without encryption fields.
	FooterLegacy
	// FooterExtended is 64 bytes with encryption fields and index hash.
	FooterExtended
)

// String implements fmt.Stringer.
func (l FooterLayout) String() string {
	switch l {
	case FooterEncrypted:
		return "encrypted"
	case FooterLegacy:
		return "legacy"
	case FooterExtended:
		return "extended"
	default:
		return "auto"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l FooterLayout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseFooterLayout converts layout name to FooterLayout.
func ParseFooterLayout(s string) (FooterLayout, bool) {
	switch s {
	case "", "auto":
		return FooterAuto, true
	case "encrypted":
		return FooterEncrypted, true
	case "legacy":
		return FooterLegacy, true
	case "extended":
		return FooterExtended, true
	default:
		return FooterAuto, false
	}
}

// CompressionMethod is the per-entry compression tag.
// Tags other than the named constants are recognized but never decoded.
type CompressionMethod uint32

// Compression method tags.
const (
	CompressionNone CompressionMethod = 0
	CompressionZlib CompressionMethod = 1
	CompressionGzip CompressionMethod = 2
)

// Supported reports whether method can be decoded.
func (m CompressionMethod) Supported() bool {
	return m == CompressionNone || m == CompressionZlib || m == CompressionGzip
}

// String implements fmt.Stringer.
func (m CompressionMethod) String() string {
	switch m {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionGzip:
		return "gzip"
	default:
		return "unsupported(" + strconv.FormatUint(uint64(m), 10) + ")"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m CompressionMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Block is one compressed chunk range relative to entry offset.
type Block struct {
	Start uint64 `json:"start" yaml:"start"`
	End   uint64 `json:"end" yaml:"end"`
}

// Size returns block length in bytes.
func (b Block) Size() uint64 {
	return b.End - b.Start
}

// Entry describes one parsed archive member.
type Entry struct {
	// Path is normalized slash-separated path relative to mount point.
	Path string `json:"path" yaml:"path"`
	// Blocks are compressed chunk ranges; empty for uncompressed or single-block entries.
	Blocks []Block `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	// Offset is absolute byte offset of entry data.
	Offset uint64 `json:"offset" yaml:"offset"`
	// CompressedSize is stored payload size in bytes.
	CompressedSize uint64 `json:"compressed_size" yaml:"compressed_size"`
	// UncompressedSize is decoded payload size in bytes.
	UncompressedSize uint64 `json:"uncompressed_size" yaml:"uncompressed_size"`
	// Timestamp is record timestamp; meaningful only when HasTimestamp is set.
	Timestamp uint64 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	// Method is compression tag.
	Method CompressionMethod `json:"method" yaml:"method"`
	// BlockSize is nominal uncompressed chunk size; only records before
	// version 3 store it.
	BlockSize uint32 `json:"block_size,omitempty" yaml:"block_size,omitempty"`
	// Hash is stored SHA1 digest, informational only.
	Hash [hashSize]byte `json:"-" yaml:"-"`
	// HasTimestamp reports whether archive version carries timestamps.
	HasTimestamp bool `json:"-" yaml:"-"`
	// Encrypted is per-entry encryption flag.
	Encrypted bool `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
}

// IsCompressed reports whether entry payload needs decoding.
func (e *Entry) IsCompressed() bool {
	return e.Method != CompressionNone
}

// clone returns deep copy so callers cannot mutate archive state.
func (e Entry) clone() Entry {
	e.Blocks = slices.Clone(e.Blocks)
	return e
}

// Footer is validated footer result.
type Footer struct {
	// Alternatives lists later candidates that also validated on the same bytes.
	Alternatives []FooterLayout `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	// EncryptionKeyGUID is display-only key identifier; zero when layout has none.
	EncryptionKeyGUID uuid.UUID `json:"encryption_key_guid" yaml:"encryption_key_guid"`
	// IndexOffset is absolute offset of index region.
	IndexOffset uint64 `json:"index_offset" yaml:"index_offset"`
	// IndexSize is index region length.
	IndexSize uint64 `json:"index_size" yaml:"index_size"`
	// IndexHash is stored index digest (extended layout only).
	IndexHash [hashSize]byte `json:"-" yaml:"-"`
	// Version is container version.
	Version uint32 `json:"version" yaml:"version"`
	// Layout is the validated footer shape.
	Layout FooterLayout `json:"layout" yaml:"layout"`
	// ByteOrder is storage order that validated.
	ByteOrder ByteOrder `json:"byte_order" yaml:"byte_order"`
	// Magic is matched magic encoding.
	Magic MagicLayout `json:"magic" yaml:"magic"`
	// Encrypted is per-archive encryption flag.
	Encrypted bool `json:"encrypted" yaml:"encrypted"`
}

// Input describes one source stream to be stored as archive entry.
type Input struct {
	// ModTime is optional entry timestamp.
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
	// Open returns raw source stream for this entry.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is destination path inside archive.
	Path string `json:"path" yaml:"path"`
	// SizeHint is expected size in bytes (zero when unknown).
	SizeHint int64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// FooterOptions override footer detection.
type FooterOptions struct {
	// Logger receives ambiguity warnings; nil disables logging.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Layout forces one footer shape; FooterAuto tries the full table.
	Layout FooterLayout `json:"layout,omitempty" yaml:"layout,omitempty"`
	// ByteOrder forces byte order when ForceByteOrder is set.
	ByteOrder ByteOrder `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
	// ForceByteOrder disables trying both byte orders.
	ForceByteOrder bool `json:"force_byte_order,omitempty" yaml:"force_byte_order,omitempty"`
}

// ParseOptions configures archive parsing.
type ParseOptions struct {
	// Logger receives parse diagnostics; nil disables logging.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Name labels errors with archive path or name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Footer overrides footer detection.
	Footer FooterOptions `json:"footer,omitzero" yaml:"footer,omitzero"`
	// MemoryMap maps the file instead of using positioned file reads (Open only).
	MemoryMap bool `json:"memory_map,omitempty" yaml:"memory_map,omitempty"`
}

// ExtractOptions configures batch extraction.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully extracted.
	OnEntryDone func(entry Entry, written int64, outputPath string) `json:"-" yaml:"-"`
	// Entries limits extraction to selected entries; nil means all logical entries.
	Entries []Entry `json:"-" yaml:"-"`
	// Filter is ordered include/exclude path rules; empty means everything.
	Filter []pathrules.Rule `json:"filter,omitempty" yaml:"filter,omitempty"`
	// FilterMatcherOptions control filter rule matching.
	FilterMatcherOptions pathrules.MatcherOptions `json:"filter_matcher_options,omitzero" yaml:"filter_matcher_options,omitzero"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// PrependMountPoint places entries under mount point directory inside destination.
	PrependMountPoint bool `json:"prepend_mount_point,omitempty" yaml:"prepend_mount_point,omitempty"`
	// SanitizeNames rewrites unsafe or colliding names instead of failing them.
	SanitizeNames bool `json:"sanitize_names,omitempty" yaml:"sanitize_names,omitempty"`
}

// ListOptions configures metadata listing.
type ListOptions struct {
	// Prefix keeps entries under path prefix (or exact file match).
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Filter is ordered include/exclude path rules; empty means everything.
	Filter []pathrules.Rule `json:"filter,omitempty" yaml:"filter,omitempty"`
	// FilterMatcherOptions control filter rule matching.
	FilterMatcherOptions pathrules.MatcherOptions `json:"filter_matcher_options,omitzero" yaml:"filter_matcher_options,omitzero"`
	// Parse configures footer detection and logging.
	Parse ParseOptions `json:"parse,omitzero" yaml:"parse,omitzero"`
	// Records lists physical index records including duplicates.
	Records bool `json:"records,omitempty" yaml:"records,omitempty"`
}

// ExtractFileMode controls output file open behavior during extraction.
type ExtractFileMode string

// Output file creation policies for extraction.
const (
	// ExtractFileModeTruncate opens existing files with truncate and creates missing files.
	ExtractFileModeTruncate ExtractFileMode = "truncate"
	// ExtractFileModeCreateOnly creates files only when absent and fails on existing files.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
)

// RepackOptions configures archive rewrite.
type RepackOptions struct {
	// OnEntryDone is called after one entry payload is written.
	OnEntryDone func(entry Entry) `json:"-" yaml:"-"`
	// Logger receives repack diagnostics; nil disables logging.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// Name labels errors with source archive path or name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// MaxWorkers bounds parallel gathering of entry content (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// MaxBufferedBytes bounds gathered content held before ordered write.
	MaxBufferedBytes int64 `json:"max_buffered_bytes,omitempty" yaml:"max_buffered_bytes,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
	// Parse configures reading of the source when it is opened by path
	// (RepackFile, Editor). A nil Parse.Logger falls back to Logger.
	Parse ParseOptions `json:"parse,omitzero" yaml:"parse,omitzero"`
}

// CreateOptions configures fresh archive authoring.
type CreateOptions struct {
	RepackOptions
	// MountPoint is written to index; empty means DefaultMountPoint.
	MountPoint string `json:"mount_point,omitempty" yaml:"mount_point,omitempty"`
	// Version is container version; zero means DefaultVersion.
	Version uint32 `json:"version,omitempty" yaml:"version,omitempty"`
	// Layout is footer shape; FooterAuto means FooterLegacy.
	Layout FooterLayout `json:"layout,omitempty" yaml:"layout,omitempty"`
	// ByteOrder is numeric storage order; zero value is little-endian.
	ByteOrder ByteOrder `json:"byte_order,omitempty" yaml:"byte_order,omitempty"`
	// Magic is magic encoding; zero value is standard.
	Magic MagicLayout `json:"magic,omitempty" yaml:"magic,omitempty"`
}

// RepackResult contains rewrite statistics and the resulting archive description.
type RepackResult struct {
	// Archive describes written output; Version, layout and entries match the bytes in sink.
	Archive *Archive `json:"-" yaml:"-"`
	// WrittenEntries is number of entry records written.
	WrittenEntries int `json:"written_entries" yaml:"written_entries"`
	// ReplacedEntries is number of original records whose content was replaced.
	ReplacedEntries int `json:"replaced_entries,omitempty" yaml:"replaced_entries,omitempty"`
	// AddedEntries is number of new paths appended.
	AddedEntries int `json:"added_entries,omitempty" yaml:"added_entries,omitempty"`
	// DataSize is total payload bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// IndexSize is total index bytes written.
	IndexSize int64 `json:"index_size" yaml:"index_size"`
	// TotalSize is total output bytes including footer.
	TotalSize int64 `json:"total_size" yaml:"total_size"`
	// Duration is end-to-end rewrite duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// EditOptions configures file-based archive edit flow.
type EditOptions struct {
	// RepackOptions are applied during commit.
	RepackOptions RepackOptions `json:"repack_options,omitzero" yaml:"repack_options,omitzero"`
	// BackupKeep controls how many backup generations are kept after successful commit.
	// 0 means remove backup, 1 keeps only `<archive>.bak`, N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}

	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeTruncate
	}

	opts.FilterMatcherOptions = defaultFilterMatcherOptions(opts.FilterMatcherOptions)
}

// applyDefaults fills zero-valued list options with defaults.
func (opts *ListOptions) applyDefaults() {
	opts.FilterMatcherOptions = defaultFilterMatcherOptions(opts.FilterMatcherOptions)
}

// defaultFilterMatcherOptions returns case-insensitive include-by-default matcher options.
func defaultFilterMatcherOptions(opts pathrules.MatcherOptions) pathrules.MatcherOptions {
	if opts == (pathrules.MatcherOptions{}) {
		return pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionInclude,
		}
	}

	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = pathrules.ActionInclude
	}

	return opts
}

// applyDefaults fills zero-valued repack options with defaults.
func (opts *RepackOptions) applyDefaults() {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.GOMAXPROCS(0)
	}

	if opts.MaxBufferedBytes <= 0 {
		opts.MaxBufferedBytes = DefaultMaxBufferedBytes
	}

	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}
}

// applyDefaults fills zero-valued create options with defaults.
func (opts *CreateOptions) applyDefaults() {
	opts.RepackOptions.applyDefaults()

	if opts.MountPoint == "" {
		opts.MountPoint = DefaultMountPoint
	}

	if opts.Version == 0 {
		opts.Version = DefaultVersion
	}

	if opts.Layout == FooterAuto {
		opts.Layout = FooterLegacy
	}
}

// applyDefaults fills zero-valued edit options with defaults.
func (opts *EditOptions) applyDefaults() {
	opts.RepackOptions.applyDefaults()

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
}

// sourceParseOptions returns parse options for a source opened by path.
func (opts *RepackOptions) sourceParseOptions(name string) ParseOptions {
	parse := opts.Parse
	if parse.Logger == nil {
		parse.Logger = opts.Logger
	}

	if name != "" {
		parse.Name = name
	}

	return parse
}

// loggerOrDiscard returns logger, falling back to a discard logger if nil.
func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return logger
}
