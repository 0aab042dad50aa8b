// Package scanner discovers indexable files in a workspace.
//
// Discovery applies exclusion rules (ignored directories, size ceiling,
// binary content) before any expensive work so that oversized or binary
// files never reach hashing or embedding.
package scanner

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// binarySniffLen is how many leading bytes are inspected for binary content.
const binarySniffLen = 8192

// supportedExtensions maps indexable file extensions to language names.
var supportedExtensions = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".json":  "json",
}

// Options configures a Scanner.
type Options struct {
	// MaxFileSize is the size ceiling in bytes; larger files are excluded.
	MaxFileSize int64

	// ExcludePatterns are path patterns to skip. A pattern matches when it
	// equals a path segment or when it glob-matches the relative path.
	ExcludePatterns []string
}

// Scanner walks a workspace root and reports indexable files.
type Scanner struct {
	root string
	opts Options
}

// New creates a scanner for the given absolute workspace root.
func New(root string, opts Options) *Scanner {
	return &Scanner{root: root, opts: opts}
}

// Root returns the workspace root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the workspace and returns workspace-relative slash-separated
// paths of every indexable file. Symlinks are never followed.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: log and keep walking the rest.
			slog.Debug("scan skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if s.matchesExclude(rel) {
				return fs.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !s.Indexable(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > s.opts.MaxFileSize {
			return nil
		}

		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return paths, nil
}

// Indexable reports whether a workspace-relative path passes the cheap
// rules: supported extension and not under an excluded pattern. Size and
// binary checks need a stat/read and are applied separately.
func (s *Scanner) Indexable(rel string) bool {
	if _, ok := supportedExtensions[strings.ToLower(filepath.Ext(rel))]; !ok {
		return false
	}
	return !s.matchesExclude(rel)
}

// ExceedsSizeLimit reports whether size is over the configured ceiling.
func (s *Scanner) ExceedsSizeLimit(size int64) bool {
	return size > s.opts.MaxFileSize
}

// matchesExclude checks rel (and each of its segments) against the
// configured exclusion patterns.
func (s *Scanner) matchesExclude(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, pattern := range s.opts.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		for _, seg := range segments {
			if seg == pattern {
				return true
			}
			if ok, _ := filepath.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// DetectLanguage returns the language name for a path, or "" when the
// extension is not supported.
func DetectLanguage(path string) string {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsBinary sniffs leading content bytes for NUL bytes and reports whether
// the file should be treated as binary.
func IsBinary(content []byte) bool {
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	return bytes.IndexByte(sniff, 0) != -1
}

// Read reads a file below root without the binary filter, preserving the
// underlying error so callers can tell a vanished file from an unreadable
// one.
func Read(root, rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
}

// ReadIndexable reads a file below root, returning its content or
// (nil, false) when the file is binary or unreadable.
func ReadIndexable(root, rel string) ([]byte, bool) {
	content, err := Read(root, rel)
	if err != nil {
		return nil, false
	}
	if IsBinary(content) {
		return nil, false
	}
	return content, true
}
