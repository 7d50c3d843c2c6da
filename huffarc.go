// Package huffarc reads and writes huffarc archives: self-describing
// binary containers that compress files and directory trees with
// per-file Huffman coding, authenticate every entry with an MD5
// trailer, and optionally encrypt individual files' Huffman trees
// with AES-128 under a password-derived key.
//
// Compress and Extract are the high-level entry points. The codec
// itself is streaming and single-threaded; password handling,
// progress reporting, and filesystem layout are supplied through
// small collaborator interfaces so callers can embed the codec in
// any front end.
package huffarc

import (
	"fmt"
	"os"

	"github.com/scigolib/huffarc/internal/format"
	"github.com/scigolib/huffarc/internal/reader"
	"github.com/scigolib/huffarc/internal/writer"
)

// ArchiveExt is the file extension given to created archives.
const ArchiveExt = ".huff"

// Codec selects the symbol alphabet for an archive.
type Codec = format.Codec

// Supported codecs.
const (
	CodecBinary = format.CodecBinary
	CodecUTF8   = format.CodecUTF8
)

// Error kinds surfaced by the codec. FormatError, TruncationError and
// IntegrityError abort an archive; AuthError entries are skipped and
// reported in the extract result; InputError is a refused input
// path. I/O errors pass through unchanged.
type (
	FormatError     = format.FormatError
	TruncationError = format.TruncationError
	IntegrityError  = format.IntegrityError
	AuthError       = format.AuthError
	InputError      = format.InputError
)

// Entry is one unit of writer input. See Enumerate.
type Entry = writer.Entry

// EntryKind distinguishes files from empty directories.
type EntryKind = writer.EntryKind

// Entry kinds.
const (
	KindFile     = writer.KindFile
	KindEmptyDir = writer.KindEmptyDir
)

// PasswordLookup resolves per-entry encryption on the write side.
type PasswordLookup = writer.PasswordLookup

// PasswordPrompt supplies candidate keys on the read side.
type PasswordPrompt = reader.PasswordPrompt

// Sink materializes decoded entries on the read side.
type Sink = reader.Sink

// Info describes an archive preamble.
type Info struct {
	Version uint8
	Codec   Codec
}

// Probe validates the magic bytes and header of the archive at path
// and reports its version and codec.
func Probe(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	codec, err := format.ReadHeader(f)
	if err != nil {
		return nil, &FormatError{Detail: fmt.Sprintf("%s: %v", path, err)}
	}
	return &Info{Version: format.Version, Codec: codec}, nil
}
