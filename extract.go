package huffarc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/scigolib/huffarc/internal/reader"
)

// ExtractOptions tune Extract. The zero value extracts with defaults
// and skips every encrypted entry.
type ExtractOptions struct {
	// BlockSize is the archive read granularity.
	BlockSize int
	// Prompt supplies keys for encrypted entries; nil skips them.
	Prompt PasswordPrompt
	// Progress receives updates; nil disables reporting.
	Progress Progress
}

// ExtractResult reports what Extract materialized.
type ExtractResult struct {
	// OutputDir is the directory the archive was unpacked into.
	OutputDir string
	// Extracted lists materialized entry paths in archive order.
	Extracted []string
	// Skipped lists encrypted entries passed over after failed
	// authentication.
	Skipped []string
}

// Extract unpacks the archive at archivePath into
// <outDir>/<archive base name>/. Authentication failures skip the
// affected entries and are reported in the result; any other archive
// error aborts.
func Extract(archivePath, outDir string, opts *ExtractOptions) (*ExtractResult, error) {
	if opts == nil {
		opts = &ExtractOptions{}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &InputError{Path: archivePath, Reason: "no such archive"}
		}
		return nil, err
	}
	defer f.Close()

	if opts.Progress != nil {
		if fi, err := f.Stat(); err == nil {
			opts.Progress.Reset(fi.Size())
		}
	}

	base := strings.TrimSuffix(filepath.Base(archivePath), ArchiveExt)
	root := filepath.Join(outDir, base)
	if err := os.MkdirAll(root, 0o777); err != nil {
		return nil, err
	}

	ropts := &reader.Options{
		BlockSize: opts.BlockSize,
		Prompt:    opts.Prompt,
	}
	if opts.Progress != nil {
		ropts.Progress = opts.Progress
	}

	res, err := reader.ReadArchive(bufio.NewReader(f), DirSink(root), ropts)
	out := &ExtractResult{OutputDir: root}
	if res != nil {
		out.Extracted = res.Extracted
		out.Skipped = res.Skipped
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// DirSink returns a Sink that materializes entries under root,
// creating parent directories as needed. Entry paths that are not
// local to root (absolute, or escaping via "..") are rejected.
func DirSink(root string) Sink {
	return &dirSink{root: root}
}

type dirSink struct {
	root string
}

func (s *dirSink) resolve(rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("unsafe entry path %q", rel)
	}
	return filepath.Join(s.root, rel), nil
}

func (s *dirSink) CreateDir(rel string) error {
	path, err := s.resolve(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0o777)
}

func (s *dirSink) CreateFile(rel string) (io.WriteCloser, error) {
	path, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, err
	}
	return os.Create(path)
}
