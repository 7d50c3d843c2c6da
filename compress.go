package huffarc

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/scigolib/huffarc/internal/writer"
)

// CompressOptions tune Compress. The zero value compresses in binary
// mode with defaults.
type CompressOptions struct {
	// Codec selects the symbol alphabet (binary by default).
	Codec Codec
	// BlockSize is the source read granularity.
	BlockSize int
	// Passwords resolves per-file 16-byte keys; nil disables
	// encryption.
	Passwords PasswordLookup
	// Progress receives updates; nil disables reporting.
	Progress Progress
	// Excludes are doublestar patterns pruned from the walk, in
	// addition to DefaultExcludes.
	Excludes []string
}

// CompressResult reports what Compress produced.
type CompressResult struct {
	// ArchivePath is the created archive file.
	ArchivePath string
	// InputBytes is the total size of the archived sources.
	InputBytes int64
	// ArchiveBytes is the size of the finished archive.
	ArchiveBytes int64
	// Entries is the number of records written.
	Entries int
}

// Ratio returns the space saving as a fraction of the input size, or
// zero for empty input.
func (r *CompressResult) Ratio() float64 {
	if r.InputBytes == 0 {
		return 0
	}
	return float64(r.InputBytes-r.ArchiveBytes) / float64(r.InputBytes)
}

// Compress archives the file or directory tree at inputPath into
// <outDir>/<base>.huff. A pre-existing archive at that path or a
// missing input is refused with InputError. On any later failure the
// partially written archive is left as-is for the caller to discard.
func Compress(inputPath, outDir string, opts *CompressOptions) (*CompressResult, error) {
	if opts == nil {
		opts = &CompressOptions{}
	}

	entries, err := Enumerate(inputPath, opts.Excludes)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o777); err != nil {
		return nil, err
	}
	base := filepath.Base(filepath.Clean(inputPath))
	base = strings.TrimSuffix(base, ArchiveExt)
	archivePath := filepath.Join(outDir, base+ArchiveExt)

	f, err := writer.CreateArchiveFile(archivePath)
	if err != nil {
		if os.IsExist(err) {
			return nil, &InputError{Path: archivePath, Reason: "archive already exists"}
		}
		return nil, err
	}
	defer f.Close()

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	if opts.Progress != nil {
		opts.Progress.Reset(total)
	}

	bw := bufio.NewWriter(f)
	wopts := &writer.Options{
		BlockSize: opts.BlockSize,
		Passwords: opts.Passwords,
	}
	if opts.Progress != nil {
		wopts.Progress = opts.Progress
	}
	arch, err := writer.NewArchive(bw, opts.Codec, wopts)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := arch.WriteEntry(e); err != nil {
			return nil, err
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &CompressResult{
		ArchivePath:  archivePath,
		InputBytes:   total,
		ArchiveBytes: fi.Size(),
		Entries:      len(entries),
	}, nil
}
