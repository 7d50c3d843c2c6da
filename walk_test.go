package huffarc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnumerate_FilesAndEmptyDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o777))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vacant"), 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "one.txt"), []byte("1"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "two.txt"), []byte("22"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("333"), 0o666))

	entries, err := Enumerate(root, nil)
	require.NoError(t, err)

	got := make(map[string]EntryKind, len(entries))
	for _, e := range entries {
		got[e.Path] = e.Kind
	}
	require.Equal(t, map[string]EntryKind{
		"a/one.txt":   KindFile,
		"a/b/two.txt": KindFile,
		"top.txt":     KindFile,
		"vacant":      KindEmptyDir,
	}, got)
}

func TestEnumerate_ExcludePatternsPrune(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep", "x.js"), []byte("x"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.js"), []byte("k"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.log"), []byte("s"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".DS_Store"), []byte("junk"), 0o666))

	entries, err := Enumerate(root, []string{"node_modules", "**/*.log"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "keep.js", entries[0].Path)
}

func TestEnumerate_BadPattern(t *testing.T) {
	root := t.TempDir()
	_, err := Enumerate(root, []string{"[unclosed"})
	require.Error(t, err)
}

func TestEnumerate_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lone.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o666))

	entries, err := Enumerate(path, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "lone.bin", entries[0].Path)
	require.Equal(t, KindFile, entries[0].Kind)
	require.Equal(t, int64(3), entries[0].Size)

	rc, err := entries[0].Open()
	require.NoError(t, err)
	defer rc.Close()
}

func TestEnumerate_Missing(t *testing.T) {
	_, err := Enumerate(filepath.Join(t.TempDir(), "ghost"), nil)
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}
