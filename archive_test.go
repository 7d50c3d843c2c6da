package huffarc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/huffarc/internal/digest"
)

// writeTree lays out a small source tree with a nested file, an
// empty file, an empty directory, and junk that should be excluded.
func writeTree(t *testing.T, root string) map[string][]byte {
	t.Helper()
	files := map[string][]byte{
		"readme.txt":         []byte("huffarc end to end test fixture\n"),
		"data/blob.bin":      {0x00, 0x01, 0x02, 0xFF, 0xFE, 0x00, 0x03, 0x7F, 0x80, 0x00},
		"data/deep/song.txt": []byte("la la la la la la"),
		"empty.dat":          nil,
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o777))
		require.NoError(t, os.WriteFile(path, content, 0o666))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "hollow"), 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", ".DS_Store"), []byte("junk"), 0o666))
	return files
}

func TestCompressExtract_RoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "project")
	require.NoError(t, os.MkdirAll(src, 0o777))
	files := writeTree(t, src)

	outDir := t.TempDir()
	res, err := Compress(src, outDir, nil)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outDir, "project.huff"), res.ArchivePath)
	// 4 files + 1 empty dir; .DS_Store is excluded by default.
	require.Equal(t, 5, res.Entries)

	extractDir := t.TempDir()
	xres, err := Extract(res.ArchivePath, extractDir, nil)
	require.NoError(t, err)
	require.Empty(t, xres.Skipped)
	require.Equal(t, filepath.Join(extractDir, "project"), xres.OutputDir)

	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(xres.OutputDir, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		if want == nil {
			want = []byte{}
		}
		require.Equal(t, want, got, rel)
	}

	fi, err := os.Stat(filepath.Join(xres.OutputDir, "hollow"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	_, err = os.Stat(filepath.Join(xres.OutputDir, "data", ".DS_Store"))
	require.True(t, os.IsNotExist(err))
}

func TestCompress_SingleFileInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "single.txt")
	require.NoError(t, os.WriteFile(src, []byte("aaabbc"), 0o666))

	outDir := t.TempDir()
	res, err := Compress(src, outDir, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Entries)

	info, err := Probe(res.ArchivePath)
	require.NoError(t, err)
	require.Equal(t, uint8(2), info.Version)
	require.Equal(t, CodecBinary, info.Codec)

	extractDir := t.TempDir()
	xres, err := Extract(res.ArchivePath, extractDir, nil)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(xres.OutputDir, "single.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("aaabbc"), got)
}

func TestCompress_RefusesExistingArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o666))

	outDir := t.TempDir()
	_, err := Compress(src, outDir, nil)
	require.NoError(t, err)

	_, err = Compress(src, outDir, nil)
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestCompress_MissingInput(t *testing.T) {
	_, err := Compress(filepath.Join(t.TempDir(), "nope"), t.TempDir(), nil)
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestExtract_MissingArchive(t *testing.T) {
	_, err := Extract(filepath.Join(t.TempDir(), "nope.huff"), t.TempDir(), nil)
	var ierr *InputError
	require.ErrorAs(t, err, &ierr)
}

func TestCompressExtract_UTF8Codec(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "текст.txt")
	text := "дерево Хаффмана сжимает текст → компактно\n"
	require.NoError(t, os.WriteFile(src, []byte(text), 0o666))

	res, err := Compress(src, t.TempDir(), &CompressOptions{Codec: CodecUTF8})
	require.NoError(t, err)

	info, err := Probe(res.ArchivePath)
	require.NoError(t, err)
	require.Equal(t, CodecUTF8, info.Codec)

	xres, err := Extract(res.ArchivePath, t.TempDir(), nil)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(xres.OutputDir, "текст.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte(text), got)
}

func TestCompressExtract_EncryptedEntry(t *testing.T) {
	src := filepath.Join(t.TempDir(), "vault")
	require.NoError(t, os.MkdirAll(src, 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(src, "open.txt"), []byte("public"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(src, "secret.txt"), []byte("classified"), 0o666))

	sum := digest.Sum([]byte("pw"))
	key := sum[:]
	res, err := Compress(src, t.TempDir(), &CompressOptions{
		Passwords: func(rel string) []byte {
			if rel == "secret.txt" {
				return key
			}
			return nil
		},
	})
	require.NoError(t, err)

	// Without a prompt the protected entry is skipped, the rest
	// extracts.
	xres, err := Extract(res.ArchivePath, t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"secret.txt"}, xres.Skipped)
	_, err = os.Stat(filepath.Join(xres.OutputDir, "secret.txt"))
	require.True(t, os.IsNotExist(err))
	got, err := os.ReadFile(filepath.Join(xres.OutputDir, "open.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("public"), got)

	// With the right password everything extracts.
	xres, err = Extract(res.ArchivePath, t.TempDir(), &ExtractOptions{
		Prompt: func(path string, attempt int) []byte { return key },
	})
	require.NoError(t, err)
	require.Empty(t, xres.Skipped)
	got, err = os.ReadFile(filepath.Join(xres.OutputDir, "secret.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("classified"), got)
}

func TestExtract_TruncatedArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("about to be cut short, repeatedly"), 0o666))

	res, err := Compress(src, t.TempDir(), nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(res.ArchivePath)
	require.NoError(t, err)
	cut := filepath.Join(t.TempDir(), "cut.huff")
	require.NoError(t, os.WriteFile(cut, raw[:len(raw)-10], 0o666))

	_, err = Extract(cut, t.TempDir(), nil)
	var terr *TruncationError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, "in.txt", terr.Path)
}

func TestProbe_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.huff")
	require.NoError(t, os.WriteFile(path, []byte("this is not an archive at all, not even close"), 0o666))

	_, err := Probe(path)
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
}

func TestDirSink_RejectsUnsafePaths(t *testing.T) {
	sink := DirSink(t.TempDir())
	_, err := sink.CreateFile("../evil.txt")
	require.Error(t, err)
	_, err = sink.CreateFile("/abs/evil.txt")
	require.Error(t, err)
	require.Error(t, sink.CreateDir("a/../../evil"))
}
