package huffarc

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes is applied by Enumerate in addition to any
// caller-supplied patterns.
var DefaultExcludes = []string{"**/.DS_Store"}

// Enumerate walks root and yields the entries to archive, in
// deterministic walk order: regular files and directories with no
// children. Exclude patterns are doublestar globs matched against
// the relative slash path; an excluded directory is pruned whole.
//
// A root that is itself a regular file yields a single entry named
// after its base name.
func Enumerate(root string, excludes []string) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &InputError{Path: root, Reason: "no such file or directory"}
		}
		return nil, err
	}

	patterns := make([]string, 0, len(DefaultExcludes)+len(excludes))
	patterns = append(patterns, DefaultExcludes...)
	patterns = append(patterns, excludes...)
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("bad exclude pattern %q", p)
		}
	}

	if !info.IsDir() {
		return []Entry{fileEntry(root, filepath.Base(filepath.Clean(root)), info.Size())}, nil
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if excluded(patterns, rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			children, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			if len(children) == 0 {
				entries = append(entries, Entry{Path: rel, Kind: KindEmptyDir})
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, fileEntry(path, rel, fi.Size()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func excluded(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func fileEntry(path, rel string, size int64) Entry {
	return Entry{
		Path: rel,
		Kind: KindFile,
		Size: size,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}
