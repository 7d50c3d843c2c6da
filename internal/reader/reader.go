// Package reader parses huffarc archives: it validates the preamble,
// iterates framed entry records, rebuilds Huffman trees, decodes
// bit-packed payloads, verifies MD5 trailers, and materializes
// entries through a filesystem sink.
//
// The reader is an explicit state machine over a rolling buffer.
// Regions of unknown length (path, tree, data) are terminated by
// sentinel scan: the buffer is searched for the expected sentinel and
// refilled from the source as needed, always retaining enough of the
// previous chunk to catch a sentinel straddling a chunk boundary.
package reader

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/scigolib/huffarc/internal/aes128"
	"github.com/scigolib/huffarc/internal/bitio"
	"github.com/scigolib/huffarc/internal/digest"
	"github.com/scigolib/huffarc/internal/format"
	"github.com/scigolib/huffarc/internal/huffman"
)

// DefaultBlockSize is the read granularity for the archive source.
const DefaultBlockSize = 512

// MaxPasswordAttempts bounds the prompt/verify rounds per encrypted
// entry before the entry is skipped.
const MaxPasswordAttempts = 3

// Sink materializes decoded entries. Relative slash paths are passed
// exactly as stored in the archive; the sink owns path validation.
type Sink interface {
	CreateDir(relPath string) error
	CreateFile(relPath string) (io.WriteCloser, error)
}

// PasswordPrompt supplies the 16-byte key for an encrypted entry.
// attempt counts from 1. A nil return skips the entry immediately.
type PasswordPrompt func(relPath string, attempt int) []byte

// Progress receives byte counts as archive data is consumed.
type Progress interface {
	Update(n int)
}

// Options tune ReadArchive. The zero value is usable; without a
// Prompt every encrypted entry is skipped.
type Options struct {
	BlockSize int
	Prompt    PasswordPrompt
	Progress  Progress
}

// Result summarizes a completed read.
type Result struct {
	// Extracted lists entry paths materialized through the sink, in
	// archive order.
	Extracted []string
	// Skipped lists encrypted entries passed over after failed
	// authentication.
	Skipped []string
}

// ReadArchive parses src to EOF, materializing entries into sink.
// Format, truncation, and integrity problems abort the archive;
// authentication failures skip the affected entry and continue.
func ReadArchive(src io.Reader, sink Sink, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	codec, err := format.ReadHeader(src)
	if err != nil {
		return nil, &format.FormatError{Detail: err.Error()}
	}

	d := &decoder{
		r:         src,
		codec:     codec,
		blockSize: opts.BlockSize,
		prompt:    opts.Prompt,
		progress:  opts.Progress,
		sink:      sink,
		res:       &Result{},
	}
	if d.blockSize <= 0 {
		d.blockSize = DefaultBlockSize
	}
	d.block = make([]byte, d.blockSize)

	for {
		tag, ok, err := d.nextTag()
		if err != nil {
			return d.res, err
		}
		if !ok {
			return d.res, nil
		}
		switch tag {
		case format.TagFile:
			err = d.readFile()
		case format.TagEmptyDir:
			err = d.readEmptyDir()
		default:
			err = &format.FormatError{Detail: fmt.Sprintf("invalid entry tag 0x%02x", tag)}
		}
		if err != nil {
			return d.res, err
		}
	}
}

type decoder struct {
	r         io.Reader
	codec     format.Codec
	blockSize int
	prompt    PasswordPrompt
	progress  Progress
	sink      Sink
	res       *Result

	buf   []byte // rolling buffer of unconsumed archive bytes
	block []byte // scratch for source reads
}

// fill appends one source read to the rolling buffer. It returns
// io.EOF only when the source is exhausted and nothing was added.
func (d *decoder) fill() error {
	for {
		n, err := d.r.Read(d.block)
		if n > 0 {
			d.buf = append(d.buf, d.block[:n]...)
			if d.progress != nil {
				d.progress.Update(n)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// need ensures at least n unconsumed bytes are buffered.
func (d *decoder) need(n int, phase, path string) error {
	for len(d.buf) < n {
		if err := d.fill(); err != nil {
			if err == io.EOF {
				return &format.TruncationError{Path: path, Phase: phase}
			}
			return err
		}
	}
	return nil
}

// take consumes and returns n buffered bytes.
func (d *decoder) take(n int, phase, path string) ([]byte, error) {
	if err := d.need(n, phase, path); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf)
	d.buf = d.buf[n:]
	return out, nil
}

// nextTag consumes the next entry tag byte. ok is false at a clean
// end of archive.
func (d *decoder) nextTag() (byte, bool, error) {
	for len(d.buf) == 0 {
		if err := d.fill(); err != nil {
			if err == io.EOF {
				return 0, false, nil
			}
			return 0, false, err
		}
	}
	tag := d.buf[0]
	d.buf = d.buf[1:]
	return tag, true, nil
}

// scanRegion consumes bytes up to the first occurrence of sentinel
// and then the sentinel itself, returning the region. The last
// SentinelSize-1 buffered bytes are always retained across refills so
// a sentinel straddling a chunk boundary is still found.
func (d *decoder) scanRegion(sentinel []byte, phase, path string) ([]byte, error) {
	var region []byte
	for {
		if k := bytes.Index(d.buf, sentinel); k >= 0 {
			region = append(region, d.buf[:k]...)
			d.buf = d.buf[k+len(sentinel):]
			return region, nil
		}
		if keep := format.SentinelSize - 1; len(d.buf) > keep {
			region = append(region, d.buf[:len(d.buf)-keep]...)
			d.buf = append(d.buf[:0:0], d.buf[len(d.buf)-keep:]...)
		}
		if err := d.fill(); err != nil {
			if err == io.EOF {
				return nil, &format.TruncationError{Path: path, Phase: phase}
			}
			return nil, err
		}
	}
}

// expectSentinel consumes the next SentinelSize bytes and checks them.
func (d *decoder) expectSentinel(sentinel []byte, phase, path string) error {
	got, err := d.take(format.SentinelSize, phase, path)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, sentinel) {
		return &format.FormatError{Detail: fmt.Sprintf("missing %s terminator for %q", phase, path)}
	}
	return nil
}

// verifyDigest consumes the 16-byte MD5 trailer and compares it to
// the running digest.
func (d *decoder) verifyDigest(hasher *digest.MD5, path string) error {
	trailer, err := d.take(format.DigestSize, "digest", path)
	if err != nil {
		return err
	}
	sum := hasher.Finalize()
	if !bytes.Equal(trailer, sum[:]) {
		return &format.IntegrityError{Path: path}
	}
	return nil
}

// skipEntry resynchronizes after a failed authentication: scan
// forward for the end-of-data sentinel, consume the unverified digest
// trailer, and record the skip.
func (d *decoder) skipEntry(path string) error {
	if _, err := d.scanRegion(format.EndData, "skipped entry", path); err != nil {
		return err
	}
	if _, err := d.take(format.DigestSize, "skipped digest", path); err != nil {
		return err
	}
	d.res.Skipped = append(d.res.Skipped, path)
	return nil
}

func (d *decoder) readEmptyDir() error {
	flags, err := d.take(2, "flags", "")
	if err != nil {
		return err
	}
	if flags[0] != format.FlagUnset || flags[1] != format.FlagUnset {
		return &format.FormatError{Detail: "bad empty-directory flags"}
	}

	hasher := digest.New()
	pathBytes, err := d.scanRegion(format.EndPath, "path", "")
	if err != nil {
		return err
	}
	hasher.Update(pathBytes)
	path := string(pathBytes)

	if err := d.expectSentinel(format.EndData, "empty-directory data", path); err != nil {
		return err
	}
	if err := d.verifyDigest(hasher, path); err != nil {
		return err
	}
	if err := d.sink.CreateDir(path); err != nil {
		return err
	}
	d.res.Extracted = append(d.res.Extracted, path)
	return nil
}

func (d *decoder) readFile() error {
	flags, err := d.take(2, "flags", "")
	if err != nil {
		return err
	}
	notEmpty, encrypted := flags[0], flags[1]
	if notEmpty > format.FlagSet || encrypted > format.FlagSet {
		return &format.FormatError{Detail: "bad file entry flags"}
	}

	var authCT []byte
	if encrypted == format.FlagSet {
		if authCT, err = d.take(format.AuthSize, "auth bytes", ""); err != nil {
			return err
		}
	}

	hasher := digest.New()
	pathBytes, err := d.scanRegion(format.EndPath, "path", "")
	if err != nil {
		return err
	}
	hasher.Update(pathBytes)
	path := string(pathBytes)

	var key []byte
	if encrypted == format.FlagSet {
		if key = d.authenticate(path, authCT); key == nil {
			return d.skipEntry(path)
		}
	}

	if notEmpty == format.FlagUnset {
		return d.readEmptyFile(path, hasher)
	}

	model, err := d.readTree(path, key, hasher)
	if err != nil {
		return err
	}
	if err := d.readData(path, model, hasher); err != nil {
		return err
	}
	if err := d.verifyDigest(hasher, path); err != nil {
		return err
	}
	d.res.Extracted = append(d.res.Extracted, path)
	return nil
}

// authenticate drives up to MaxPasswordAttempts prompt rounds,
// verifying each candidate key by decrypting the auth ciphertext and
// comparing against the known plaintext. Nil means skip.
func (d *decoder) authenticate(path string, authCT []byte) []byte {
	if d.prompt == nil {
		return nil
	}
	for attempt := 1; attempt <= MaxPasswordAttempts; attempt++ {
		key := d.prompt(path, attempt)
		if key == nil {
			return nil
		}
		if len(key) != aes128.KeySize {
			continue
		}
		if bytes.Equal(aes128.DecryptECB(key, authCT), format.AuthBytes) {
			return key
		}
	}
	return nil
}

// readEmptyFile finishes an entry whose NotEmpty flag is clear: no
// tree, no payload, just the end-of-data sentinel and the trailer.
func (d *decoder) readEmptyFile(path string, hasher *digest.MD5) error {
	if err := d.expectSentinel(format.EndData, "empty-file data", path); err != nil {
		return err
	}
	if err := d.verifyDigest(hasher, path); err != nil {
		return err
	}
	fh, err := d.sink.CreateFile(path)
	if err != nil {
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}
	d.res.Extracted = append(d.res.Extracted, path)
	return nil
}

// readTree buffers the serialized tree region, decrypting it first
// when a key is present. The digest always covers the plaintext tree
// bytes.
func (d *decoder) readTree(path string, key []byte, hasher *digest.MD5) (*huffman.Model, error) {
	region, err := d.scanRegion(format.EndTree, "tree", path)
	if err != nil {
		return nil, err
	}

	plain := region
	if key != nil {
		if len(region) < 1+aes128.BlockSize {
			return nil, &format.FormatError{Detail: fmt.Sprintf("encrypted tree of %q too short", path)}
		}
		pad := int(region[len(region)-1])
		cipher := region[:len(region)-1]
		if pad >= aes128.BlockSize || len(cipher)%aes128.BlockSize != 0 {
			return nil, &format.FormatError{Detail: fmt.Sprintf("bad encrypted tree framing for %q", path)}
		}
		plain = aes128.DecryptECB(key, cipher)
		plain = plain[:len(plain)-pad]
	}
	hasher.Update(plain)

	model, err := huffman.Deserialize(plain)
	if err != nil {
		return nil, &format.FormatError{Detail: fmt.Sprintf("tree of %q: %v", path, err)}
	}
	if model.Codec() != d.codec {
		return nil, &format.FormatError{Detail: fmt.Sprintf("tree codec of %q disagrees with archive header", path)}
	}
	return model, nil
}

// readData streams the bit-packed payload through the Huffman
// decoder into the sink. The end-of-data sentinel terminates the
// region; the byte before it is the pad count, and the partial code
// byte (if any) precedes that. While the sentinel is not yet in the
// buffer, everything but the last 5 bytes is known payload.
func (d *decoder) readData(path string, model *huffman.Model, hasher *digest.MD5) error {
	fh, err := d.sink.CreateFile(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	// Retains the pad-count byte plus a possibly straddling sentinel.
	const tail = format.SentinelSize + 1

	bits := &bitio.String{}
	for {
		if k := bytes.Index(d.buf, format.EndData); k >= 0 {
			if k == 0 {
				return &format.FormatError{Detail: fmt.Sprintf("missing pad count for %q", path)}
			}
			// A pad count above 7 means the payload region is corrupt
			// (or a sentinel false-positive landed here); either way
			// the entry cannot verify.
			count := int(d.buf[k-1])
			if count > 7 {
				return &format.IntegrityError{Path: path}
			}
			bits.AppendBytes(d.buf[:k-1])
			d.buf = d.buf[k+format.SentinelSize:]

			syms, _, err := model.Decode(bits, count)
			if err != nil {
				return &format.IntegrityError{Path: path}
			}
			return d.emit(fh, hasher, syms)
		}

		if len(d.buf) > tail {
			bits.AppendBytes(d.buf[:len(d.buf)-tail])
			d.buf = append(d.buf[:0:0], d.buf[len(d.buf)-tail:]...)

			syms, rest, err := model.Decode(bits, -1)
			if err != nil {
				return &format.IntegrityError{Path: path}
			}
			bits = rest
			if err := d.emit(fh, hasher, syms); err != nil {
				return err
			}
		}

		if err := d.fill(); err != nil {
			if err == io.EOF {
				return &format.TruncationError{Path: path, Phase: "data"}
			}
			return err
		}
	}
}

// emit re-encodes decoded symbols to bytes, folds them into the
// digest, and writes them to the sink file.
func (d *decoder) emit(fh io.Writer, hasher *digest.MD5, syms []rune) error {
	if len(syms) == 0 {
		return nil
	}
	out := make([]byte, 0, len(syms))
	if d.codec == format.CodecBinary {
		for _, r := range syms {
			out = append(out, byte(r))
		}
	} else {
		for _, r := range syms {
			out = utf8.AppendRune(out, r)
		}
	}
	hasher.Update(out)
	_, err := fh.Write(out)
	return err
}
