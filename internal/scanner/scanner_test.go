package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, content, 0o644))
}

func newTestScanner(root string, exclude ...string) *Scanner {
	return New(root, Options{
		MaxFileSize:     1 << 20,
		ExcludePatterns: append([]string{".git", "node_modules"}, exclude...),
	})
}

func TestScanFindsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", []byte("package main\n"))
	writeFile(t, root, "internal/util.py", []byte("def util(): pass\n"))
	writeFile(t, root, "README.md", []byte("# readme\n"))
	writeFile(t, root, "image.png", []byte{0x89, 0x50})
	writeFile(t, root, "Makefile", []byte("all:\n"))

	paths, err := newTestScanner(root).Scan(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "internal/util.py", "README.md"}, paths)
}

func TestScanSkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", []byte("package a\n"))
	writeFile(t, root, ".git/config.yaml", []byte("x: 1\n"))
	writeFile(t, root, "node_modules/dep/index.js", []byte("module.exports = {}\n"))
	writeFile(t, root, "gen/out.go", []byte("package gen\n"))

	paths, err := newTestScanner(root, "gen").Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, paths)
}

func TestScanSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", []byte("package small\n"))
	writeFile(t, root, "big.go", make([]byte, 2048))

	s := New(root, Options{MaxFileSize: 1024})
	paths, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"small.go"}, paths)
}

func TestScanIgnoresSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.go", []byte("package real\n"))
	require.NoError(t, os.Symlink(
		filepath.Join(root, "real.go"),
		filepath.Join(root, "link.go")))

	paths, err := newTestScanner(root).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"real.go"}, paths)
}

func TestScanHonorsContextCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", []byte("package a\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner(root).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexable(t *testing.T) {
	s := newTestScanner(t.TempDir())

	assert.True(t, s.Indexable("cmd/main.go"))
	assert.True(t, s.Indexable("SRC.GO"))
	assert.False(t, s.Indexable("binary.exe"))
	assert.False(t, s.Indexable("noext"))
	assert.False(t, s.Indexable(".git/hooks/pre-commit.sh"))
}

func TestMatchesExcludeGlobs(t *testing.T) {
	s := New(t.TempDir(), Options{
		MaxFileSize:     1 << 20,
		ExcludePatterns: []string{"*.generated.go", "docs"},
	})

	assert.False(t, s.Indexable("api.generated.go"))
	assert.False(t, s.Indexable("docs/guide.md"))
	assert.True(t, s.Indexable("api.go"))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "go", DetectLanguage("a/b/c.go"))
	assert.Equal(t, "typescript", DetectLanguage("web/app.tsx"))
	assert.Equal(t, "yaml", DetectLanguage("ci.yml"))
	assert.Empty(t, DetectLanguage("bin.exe"))
}

func TestIsBinary(t *testing.T) {
	assert.True(t, IsBinary([]byte{'E', 'L', 'F', 0x00, 0x01}))
	assert.False(t, IsBinary([]byte("plain text\nwith lines\n")))
	assert.False(t, IsBinary(nil))
}

func TestReadIndexable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.go", []byte("package ok\n"))
	writeFile(t, root, "bin.go", []byte{'x', 0x00, 'y'})

	content, ok := ReadIndexable(root, "ok.go")
	require.True(t, ok)
	assert.Equal(t, "package ok\n", string(content))

	_, ok = ReadIndexable(root, "bin.go")
	assert.False(t, ok)

	_, ok = ReadIndexable(root, "missing.go")
	assert.False(t, ok)
}
