// Package format defines the huffarc archive container layout: magic
// bytes, the fixed header, entry framing sentinels, and the tag and
// flag bytes that prefix every entry. All values here are part of the
// on-disk format; changing any of them requires an archive version
// bump.
package format

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Version is the archive format version written into header byte 0.
const Version = 2

// Codec selects the symbol alphabet for an archive.
type Codec uint8

const (
	// CodecBinary treats input as raw bytes (header codec flag 0).
	CodecBinary Codec = 0
	// CodecUTF8 treats input as Unicode scalar values (header codec flag 1).
	CodecUTF8 Codec = 1
)

func (c Codec) String() string {
	switch c {
	case CodecBinary:
		return "binary"
	case CodecUTF8:
		return "utf-8"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// Valid reports whether c is a codec this version understands.
func (c Codec) Valid() bool {
	return c == CodecBinary || c == CodecUTF8
}

// Archive preamble sizes.
const (
	MagicSize  = 4
	HeaderSize = 32
)

// Magic identifies a huffarc archive. The high-bit first byte keeps
// text sniffers from treating archives as ASCII.
var Magic = []byte{0x89, 'H', 'U', 'F'}

// Framing sentinels. The three region terminators share a 3-byte
// prefix and differ in the final byte; AuthBytes is the 16-byte known
// plaintext encrypted under the entry key for password verification.
var (
	EndPath = []byte{0xFF, 0xFE, 0x00, 0x01}
	EndTree = []byte{0xFF, 0xFE, 0x00, 0x02}
	EndData = []byte{0xFF, 0xFE, 0x00, 0x03}

	AuthBytes = []byte("huffarc-auth-key")
)

// SentinelSize is the length of EndPath, EndTree and EndData.
const SentinelSize = 4

// Entry tag bytes.
const (
	TagEmptyDir = 0x00
	TagFile     = 0x01
)

// Entry flag bytes shared by the NotEmpty and Encrypted positions.
const (
	FlagUnset = 0x00
	FlagSet   = 0x01
)

// Sizes of fixed trailing fields.
const (
	DigestSize = 16 // MD5 trailer
	AuthSize   = 16 // auth ciphertext, one AES block
)

// WriteHeader writes the magic bytes and the 32-byte header.
//
// Header layout:
//
//	Byte 0:     Version (= 2)
//	Byte 1:     Codec flag (0 = binary, 1 = UTF-8)
//	Bytes 2-31: Reserved, zero
func WriteHeader(w io.Writer, codec Codec) error {
	if !codec.Valid() {
		return fmt.Errorf("unsupported codec flag: %d", uint8(codec))
	}
	if _, err := w.Write(Magic); err != nil {
		return err
	}
	header := make([]byte, HeaderSize)
	header[0] = Version
	header[1] = uint8(codec)
	_, err := w.Write(header)
	return err
}

// ReadHeader consumes and validates the magic bytes and header,
// returning the archive codec.
func ReadHeader(r io.Reader) (Codec, error) {
	magic := make([]byte, MagicSize)
	if _, err := io.ReadFull(r, magic); err != nil {
		return 0, fmt.Errorf("magic read failed: %w", err)
	}
	if !bytes.Equal(magic, Magic) {
		return 0, errors.New("not a huffarc archive")
	}

	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("header read failed: %w", err)
	}
	if header[0] != Version {
		return 0, fmt.Errorf("unsupported archive version: %d", header[0])
	}
	codec := Codec(header[1])
	if !codec.Valid() {
		return 0, fmt.Errorf("unsupported codec flag: %d", header[1])
	}
	return codec, nil
}
