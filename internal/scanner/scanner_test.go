package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Scanner, opts *Options) map[string]*FileInfo {
	t.Helper()
	results, err := s.Scan(context.Background(), opts)
	require.NoError(t, err)

	files := make(map[string]*FileInfo)
	for r := range results {
		require.NoError(t, r.Err)
		files[r.File.RelPath] = r.File
	}
	return files
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_DiscoversSourceFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def f():\n    pass\n")
	writeFile(t, root, "src/b.js", "function g() {}\n")
	writeFile(t, root, "README.md", "# hi\n")

	s, err := New()
	require.NoError(t, err)
	files := collect(t, s, &Options{RootDir: root})

	require.Len(t, files, 3)
	assert.Equal(t, "python", files["a.py"].Language)
	assert.Equal(t, "javascript", files["src/b.js"].Language)
	assert.Equal(t, "markdown", files["README.md"].Language)
	assert.Equal(t, int64(len("def f():\n    pass\n")), files["a.py"].Size)
}

func TestScan_HonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "node_modules/\n")
	writeFile(t, root, "b.js", "x\n")
	writeFile(t, root, "node_modules/x.js", "x\n")

	s, err := New()
	require.NoError(t, err)
	files := collect(t, s, &Options{RootDir: root})

	assert.Contains(t, files, "b.js")
	assert.NotContains(t, files, "node_modules/x.js")
}

func TestScan_SkipsUnknownExtensionsAndOversize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data.bin2", "whatever")
	writeFile(t, root, "big.go", string(make([]byte, 0))) // placeholder, rewritten below
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.go"), big, 0o644))
	writeFile(t, root, "ok.go", "package ok\n")

	s, err := New()
	require.NoError(t, err)
	files := collect(t, s, &Options{RootDir: root, MaxFileSize: 1024})

	assert.NotContains(t, files, "data.bin2", "unknown extension")
	assert.NotContains(t, files, "big.go", "over size limit")
	assert.Contains(t, files, "ok.go")
}

func TestScan_ExtensionWhitelist(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.py", "pass\n")

	s, err := New()
	require.NoError(t, err)
	files := collect(t, s, &Options{RootDir: root, Extensions: []string{".go"}})

	assert.Contains(t, files, "a.go")
	assert.NotContains(t, files, "b.py")
}

func TestScan_SkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.go"), []byte{'p', 0, 1, 2, 'x'}, 0o644))
	writeFile(t, root, "text.go", "package text\n")

	s, err := New()
	require.NoError(t, err)
	files := collect(t, s, &Options{RootDir: root})

	assert.NotContains(t, files, "blob.go")
	assert.Contains(t, files, "text.go")
}

func TestScan_DoesNotFollowSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, outside, "secret.go", "package secret\n")
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.go"), filepath.Join(root, "link.go")))
	writeFile(t, root, "real.go", "package real\n")

	s, err := New()
	require.NoError(t, err)
	files := collect(t, s, &Options{RootDir: root})

	assert.NotContains(t, files, "link.go")
	assert.Contains(t, files, "real.go")
}

func TestScan_ContextCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("pkg", "file"+string(rune('a'+i%26))+".go"), "package pkg\n")
	}

	s, err := New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := s.Scan(ctx, &Options{RootDir: root})
	require.NoError(t, err)
	count := 0
	for range results {
		count++
	}
	assert.Less(t, count, 50, "cancelled scan should stop early")
}

func TestInvalidateIgnoreRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.tmp.go", "package x\n")

	s, err := New()
	require.NoError(t, err)
	files := collect(t, s, &Options{RootDir: root})
	assert.Contains(t, files, "keep.tmp.go")

	// New gitignore takes effect only after invalidation.
	writeFile(t, root, ".gitignore", "*.tmp.go\n")
	files = collect(t, s, &Options{RootDir: root})
	assert.Contains(t, files, "keep.tmp.go", "cached resolver still in effect")

	s.InvalidateIgnoreRules(root)
	files = collect(t, s, &Options{RootDir: root})
	assert.NotContains(t, files, "keep.tmp.go")
}

func TestIsBinaryContent(t *testing.T) {
	assert.False(t, IsBinaryContent([]byte("plain text\nwith lines\n")))
	assert.False(t, IsBinaryContent(nil))
	assert.True(t, IsBinaryContent([]byte{0x7f, 'E', 'L', 'F', 0, 0, 1}))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "go", DetectLanguage("cmd/main.go"))
	assert.Equal(t, "typescript", DetectLanguage("src/app.TSX"))
	assert.Equal(t, "", DetectLanguage("archive.tar.gz"))
}
