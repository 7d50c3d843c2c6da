// Package writer emits huffarc archives: a magic/header preamble
// followed by one delimiter-framed record per entry, each carrying a
// serialized Huffman tree (optionally AES-encrypted), a bit-packed
// payload, and an MD5 integrity trailer.
package writer

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/scigolib/huffarc/internal/aes128"
	"github.com/scigolib/huffarc/internal/bitio"
	"github.com/scigolib/huffarc/internal/digest"
	"github.com/scigolib/huffarc/internal/format"
	"github.com/scigolib/huffarc/internal/huffman"
)

// DefaultBlockSize is the read granularity for source files.
const DefaultBlockSize = 256

// EntryKind distinguishes the two archivable entry variants.
type EntryKind int

const (
	// KindFile is a regular file, possibly empty.
	KindFile EntryKind = iota
	// KindEmptyDir is a directory with no children.
	KindEmptyDir
)

// Entry is one unit of writer input, supplied by the path enumerator
// in the desired archive order.
type Entry struct {
	// Path is the relative slash-separated path stored in the archive.
	Path string
	Kind EntryKind
	// Size is the source size in bytes, used only for progress.
	Size int64
	// Open yields a fresh reader over the source content. The writer
	// opens each file twice: once to build the frequency model, once
	// to encode. Nil for empty directories.
	Open func() (io.ReadCloser, error)
}

// PasswordLookup resolves per-entry encryption. A nil return means
// the entry is written in the clear; otherwise the key must be 16
// bytes.
type PasswordLookup func(relPath string) []byte

// Progress receives byte counts as source data is consumed.
type Progress interface {
	Update(n int)
}

// Options tune an Archive. The zero value is usable.
type Options struct {
	BlockSize int
	Passwords PasswordLookup
	Progress  Progress
}

// Archive streams entries to an output sink. Entries are written in
// the order supplied; a failed write leaves the sink as-is for the
// caller to discard.
type Archive struct {
	w         io.Writer
	codec     format.Codec
	blockSize int
	passwords PasswordLookup
	progress  Progress
}

// NewArchive writes the magic bytes and 32-byte header to w and
// returns an Archive ready to accept entries.
func NewArchive(w io.Writer, codec format.Codec, opts *Options) (*Archive, error) {
	if opts == nil {
		opts = &Options{}
	}
	a := &Archive{
		w:         w,
		codec:     codec,
		blockSize: opts.BlockSize,
		passwords: opts.Passwords,
		progress:  opts.Progress,
	}
	if a.blockSize <= 0 {
		a.blockSize = DefaultBlockSize
	}
	if err := format.WriteHeader(w, codec); err != nil {
		return nil, fmt.Errorf("header write failed: %w", err)
	}
	return a, nil
}

// CreateArchiveFile creates the archive file at path, refusing to
// overwrite an existing archive.
func CreateArchiveFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
}

// WriteEntry emits one framed record for e.
func (a *Archive) WriteEntry(e Entry) error {
	switch e.Kind {
	case KindFile:
		return a.writeFile(e)
	case KindEmptyDir:
		return a.writeEmptyDir(e)
	default:
		return fmt.Errorf("unknown entry kind %d for %q", e.Kind, e.Path)
	}
}

// writeEmptyDir emits the three zero framing bytes, the path, and an
// immediately-closed record whose digest covers just the path.
func (a *Archive) writeEmptyDir(e Entry) error {
	hasher := digest.New()

	if _, err := a.w.Write([]byte{format.TagEmptyDir, format.FlagUnset, format.FlagUnset}); err != nil {
		return err
	}
	path := []byte(e.Path)
	if _, err := a.w.Write(path); err != nil {
		return err
	}
	hasher.Update(path)
	if _, err := a.w.Write(format.EndPath); err != nil {
		return err
	}
	if _, err := a.w.Write(format.EndData); err != nil {
		return err
	}
	sum := hasher.Finalize()
	_, err := a.w.Write(sum[:])
	return err
}

func (a *Archive) writeFile(e Entry) error {
	var key []byte
	if a.passwords != nil {
		key = a.passwords(e.Path)
	}
	if key != nil && len(key) != aes128.KeySize {
		return fmt.Errorf("key for %q must be %d bytes, got %d", e.Path, aes128.KeySize, len(key))
	}

	model, err := a.buildModel(e)
	if err != nil {
		return err
	}
	empty := model == nil

	hasher := digest.New()

	notEmpty := byte(format.FlagSet)
	if empty {
		notEmpty = format.FlagUnset
	}
	if _, err := a.w.Write([]byte{format.TagFile, notEmpty}); err != nil {
		return err
	}

	if key != nil {
		if _, err := a.w.Write([]byte{format.FlagSet}); err != nil {
			return err
		}
		if _, err := a.w.Write(aes128.EncryptECB(key, format.AuthBytes)); err != nil {
			return err
		}
	} else if _, err := a.w.Write([]byte{format.FlagUnset}); err != nil {
		return err
	}

	path := []byte(e.Path)
	if _, err := a.w.Write(path); err != nil {
		return err
	}
	hasher.Update(path)
	if _, err := a.w.Write(format.EndPath); err != nil {
		return err
	}

	if !empty {
		if err := a.writeTree(model, key, hasher); err != nil {
			return fmt.Errorf("tree write for %q failed: %w", e.Path, err)
		}
		if err := a.writeData(e, model, hasher); err != nil {
			return fmt.Errorf("data write for %q failed: %w", e.Path, err)
		}
	}

	if _, err := a.w.Write(format.EndData); err != nil {
		return err
	}
	sum := hasher.Finalize()
	_, err = a.w.Write(sum[:])
	return err
}

// buildModel streams the file once and accumulates symbol
// frequencies. A nil model (no error) means the file is empty.
func (a *Archive) buildModel(e Entry) (*huffman.Model, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	model := huffman.New(a.codec)
	buf := make([]byte, a.blockSize)
	var rest []byte
	seen := false
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			seen = true
			if a.codec == format.CodecBinary {
				model.AddBytes(buf[:n])
			} else {
				var runes []rune
				rest = append(rest, buf[:n]...)
				runes, rest, err = splitRunes(rest, false)
				if err != nil {
					return nil, fmt.Errorf("%q: %w", e.Path, err)
				}
				model.AddRunes(runes)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	if a.codec == format.CodecUTF8 && len(rest) > 0 {
		return nil, fmt.Errorf("%q: truncated UTF-8 sequence at end of file", e.Path)
	}
	if !seen {
		return nil, nil
	}
	if err := model.Build(); err != nil {
		return nil, err
	}
	return model, nil
}

// writeTree serializes the model, folds the plaintext bytes into the
// entry digest, and emits the tree region, ECB-encrypting it when a
// key is present. The encrypted form is whole 16-byte blocks, the
// last one zero-padded, followed by a single pad-count byte (0-15)
// outside the cipher blocks.
func (a *Archive) writeTree(model *huffman.Model, key []byte, hasher *digest.MD5) error {
	tree, err := model.Serialize()
	if err != nil {
		return err
	}
	hasher.Update(tree)

	if key != nil {
		pad := (aes128.BlockSize - len(tree)%aes128.BlockSize) % aes128.BlockSize
		padded := make([]byte, len(tree)+pad)
		copy(padded, tree)
		if _, err := a.w.Write(aes128.EncryptECB(key, padded)); err != nil {
			return err
		}
		if _, err := a.w.Write([]byte{byte(pad)}); err != nil {
			return err
		}
	} else if _, err := a.w.Write(tree); err != nil {
		return err
	}

	_, err = a.w.Write(format.EndTree)
	return err
}

// writeData streams the file a second time, hashing the raw content
// bytes and emitting each symbol's code through the bit packer.
func (a *Archive) writeData(e Entry, model *huffman.Model, hasher *digest.MD5) error {
	codes, err := model.Codes()
	if err != nil {
		return err
	}

	rc, err := e.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	packer := bitio.NewPacker(a.w)
	buf := make([]byte, a.blockSize)
	var rest []byte
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			hasher.Update(buf[:n])
			if a.progress != nil {
				a.progress.Update(n)
			}
			if a.codec == format.CodecBinary {
				for _, b := range buf[:n] {
					code, ok := codes[rune(b)]
					if !ok {
						return fmt.Errorf("symbol 0x%02x not in model", b)
					}
					if err := packer.WriteBits(code); err != nil {
						return err
					}
				}
			} else {
				var runes []rune
				rest = append(rest, buf[:n]...)
				runes, rest, err = splitRunes(rest, false)
				if err != nil {
					return err
				}
				for _, r := range runes {
					code, ok := codes[r]
					if !ok {
						return fmt.Errorf("symbol %q not in model", r)
					}
					if err := packer.WriteBits(code); err != nil {
						return err
					}
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if len(rest) > 0 {
		return fmt.Errorf("truncated UTF-8 sequence at end of file")
	}
	return packer.Close()
}

// splitRunes decodes the complete UTF-8 sequences in buf, returning
// the decoded runes and any trailing incomplete sequence. Invalid
// encoding is an error; atEOF makes an incomplete tail invalid too.
func splitRunes(buf []byte, atEOF bool) ([]rune, []byte, error) {
	var runes []rune
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size <= 1 {
			if !atEOF && !utf8.FullRune(buf) && len(buf) < utf8.UTFMax {
				return runes, buf, nil
			}
			return nil, nil, fmt.Errorf("invalid UTF-8 sequence")
		}
		runes = append(runes, r)
		buf = buf[size:]
	}
	return runes, nil, nil
}
