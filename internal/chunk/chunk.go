// Package chunk splits file content into embedding-sized pieces.
//
// Splitting is deterministic: the same content with the same options always
// yields the same chunks, so point IDs derived from (path, chunk index) stay
// stable across runs. Cut points prefer top-level declaration boundaries from
// a tree-sitter parse, then blank lines, then a hard cutoff.
package chunk

import (
	"context"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Chunk is one embedding-sized piece of a file.
type Chunk struct {
	// Index is the 0-based position of this chunk within its file.
	// Point IDs are derived from (path, Index).
	Index int

	// Content is the chunk text.
	Content string

	// StartLine is the 1-indexed first line of the chunk in the file.
	StartLine int

	// EndLine is the 1-indexed last line, inclusive.
	EndLine int
}

// Options bounds chunk size and overlap.
type Options struct {
	// MaxChars is the per-chunk character budget. A single line longer than
	// the budget is kept whole; lines are never split mid-line.
	MaxChars int

	// OverlapChars is roughly how many trailing characters of one chunk are
	// repeated at the start of the next, rounded to whole lines.
	OverlapChars int
}

// DefaultOptions returns the standard chunking options.
func DefaultOptions() Options {
	return Options{MaxChars: 2000, OverlapChars: 200}
}

// Splitter splits file content into chunks. Safe for concurrent use; the
// underlying tree-sitter parser is single-threaded and guarded internally.
type Splitter struct {
	opts     Options
	registry *LanguageRegistry

	mu     sync.Mutex
	parser *sitter.Parser
}

// NewSplitter creates a splitter with the shared language registry.
func NewSplitter(opts Options) *Splitter {
	if opts.MaxChars <= 0 {
		opts = DefaultOptions()
	}
	return &Splitter{
		opts:     opts,
		registry: DefaultRegistry(),
		parser:   sitter.NewParser(),
	}
}

// Close releases parser resources.
func (s *Splitter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parser != nil {
		s.parser.Close()
		s.parser = nil
	}
}

// Split splits content into chunks. Empty or whitespace-only content yields
// zero chunks; content within the budget yields exactly one chunk spanning
// the whole file.
func (s *Splitter) Split(ctx context.Context, content []byte, language string) []Chunk {
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	// A trailing newline produces one empty final element; drop it so line
	// ranges match what an editor shows.
	if n := len(lines); n > 1 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	if len(text) <= s.opts.MaxChars {
		return []Chunk{{
			Index:     0,
			Content:   strings.Join(lines, "\n"),
			StartLine: 1,
			EndLine:   len(lines),
		}}
	}

	declLines := s.declarationLines(ctx, content, language)

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := s.advance(lines, start, declLines)

		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Content:   strings.Join(lines[start:end], "\n"),
			StartLine: start + 1,
			EndLine:   end,
		})

		if end >= len(lines) {
			break
		}
		start = s.overlapStart(lines, start, end)
	}
	return chunks
}

// advance returns the exclusive end index of the chunk starting at start,
// preferring declaration boundaries, then blank lines, then a hard cutoff.
func (s *Splitter) advance(lines []string, start int, declLines map[int]bool) int {
	budget := s.opts.MaxChars
	used := 0
	lastDecl := -1
	lastBlank := -1

	for i := start; i < len(lines); i++ {
		cost := len(lines[i]) + 1
		if used+cost > budget && i > start {
			// Over budget: cut at the best boundary seen strictly
			// after start so the walk always makes progress.
			if lastDecl > start {
				return lastDecl
			}
			if lastBlank > start {
				return lastBlank
			}
			return i
		}
		used += cost

		if declLines[i] {
			lastDecl = i
		}
		if strings.TrimSpace(lines[i]) == "" {
			// Cut after the blank line so it trails the earlier chunk.
			lastBlank = i + 1
		}
	}
	return len(lines)
}

// overlapStart returns the start index of the next chunk, walking back from
// end by up to OverlapChars worth of whole lines. Always past the previous
// start so chunking terminates.
func (s *Splitter) overlapStart(lines []string, prevStart, end int) int {
	carried := 0
	start := end
	for start > prevStart+1 {
		cost := len(lines[start-1]) + 1
		if carried+cost > s.opts.OverlapChars {
			break
		}
		carried += cost
		start--
	}
	return start
}

// declarationLines parses content and returns the 0-based start lines of
// top-level declarations. Unsupported languages and parse failures return
// nil; splitting then relies on blank lines alone.
func (s *Splitter) declarationLines(ctx context.Context, content []byte, language string) map[int]bool {
	lang, ok := s.registry.Get(language)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parser == nil {
		return nil
	}

	s.parser.SetLanguage(lang)
	tree, err := s.parser.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	decls := make(map[int]bool, int(root.NamedChildCount()))
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		decls[int(child.StartPoint().Row)] = true
	}
	return decls
}
