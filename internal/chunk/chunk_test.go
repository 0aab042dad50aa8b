package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package sample

import "fmt"

func Alpha() {
	fmt.Println("alpha")
}

func Beta() {
	fmt.Println("beta")
}

func Gamma() {
	fmt.Println("gamma")
}
`

func newTestSplitter(t *testing.T, opts Options) *Splitter {
	t.Helper()
	s := NewSplitter(opts)
	t.Cleanup(s.Close)
	return s
}

func TestSplitEmptyContent(t *testing.T) {
	s := newTestSplitter(t, DefaultOptions())

	assert.Nil(t, s.Split(context.Background(), nil, "go"))
	assert.Nil(t, s.Split(context.Background(), []byte("   \n\t\n"), "go"))
}

func TestSplitSmallFileSingleChunk(t *testing.T) {
	s := newTestSplitter(t, DefaultOptions())

	chunks := s.Split(context.Background(), []byte(goSource), "go")

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 15, chunks[0].EndLine)
	assert.Contains(t, chunks[0].Content, "func Gamma()")
}

func TestSplitRespectsBudget(t *testing.T) {
	s := newTestSplitter(t, Options{MaxChars: 80, OverlapChars: 0})

	chunks := s.Split(context.Background(), []byte(goSource), "go")

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		// Budget may only be exceeded by an atomic single line.
		if strings.Count(c.Content, "\n") > 0 {
			assert.LessOrEqual(t, len(c.Content), 80+1)
		}
	}
}

func TestSplitCutsAtDeclarationBoundaries(t *testing.T) {
	s := newTestSplitter(t, Options{MaxChars: 80, OverlapChars: 0})

	chunks := s.Split(context.Background(), []byte(goSource), "go")
	require.Greater(t, len(chunks), 1)

	// Non-initial chunks should begin at a declaration, not mid-function.
	for _, c := range chunks[1:] {
		first := strings.TrimSpace(strings.SplitN(c.Content, "\n", 2)[0])
		if first == "" {
			continue
		}
		assert.NotEqual(t, "}", first, "chunk starts mid-declaration: %q", first)
	}
}

func TestSplitDeterministic(t *testing.T) {
	s := newTestSplitter(t, Options{MaxChars: 100, OverlapChars: 20})

	a := s.Split(context.Background(), []byte(goSource), "go")
	b := s.Split(context.Background(), []byte(goSource), "go")

	assert.Equal(t, a, b)
}

func TestSplitIndexesSequential(t *testing.T) {
	s := newTestSplitter(t, Options{MaxChars: 60, OverlapChars: 0})

	chunks := s.Split(context.Background(), []byte(goSource), "go")
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplitLineRangesCoverFile(t *testing.T) {
	s := newTestSplitter(t, Options{MaxChars: 60, OverlapChars: 0})

	chunks := s.Split(context.Background(), []byte(goSource), "go")
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 15, chunks[len(chunks)-1].EndLine)

	// With zero overlap, ranges are contiguous.
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndLine+1, chunks[i].StartLine)
	}
}

func TestSplitOverlapRepeatsTrailingLines(t *testing.T) {
	s := newTestSplitter(t, Options{MaxChars: 80, OverlapChars: 40})

	chunks := s.Split(context.Background(), []byte(goSource), "go")
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].StartLine, chunks[i-1].EndLine+1)
	}
}

func TestSplitUnknownLanguageFallsBackToBlankLines(t *testing.T) {
	text := strings.Repeat("line of prose here\n", 4) + "\n" +
		strings.Repeat("second paragraph text\n", 4)
	s := newTestSplitter(t, Options{MaxChars: 90, OverlapChars: 0})

	chunks := s.Split(context.Background(), []byte(text), "rust")

	require.Greater(t, len(chunks), 1)
	// The cut lands after the blank separator line.
	assert.NotEqual(t, 1, chunks[1].StartLine)
}

func TestSplitOversizedSingleLine(t *testing.T) {
	long := strings.Repeat("x", 500)
	s := newTestSplitter(t, Options{MaxChars: 100, OverlapChars: 0})

	chunks := s.Split(context.Background(), []byte("short\n"+long+"\nshort\n"), "text")

	require.NotEmpty(t, chunks)
	var found bool
	for _, c := range chunks {
		if strings.Contains(c.Content, long) {
			found = true
		}
	}
	assert.True(t, found, "oversized line must be kept whole")
}

func TestSplitPythonDeclarations(t *testing.T) {
	py := `import os

def alpha():
    return 1

def beta():
    return 2

def gamma():
    return 3
`
	s := newTestSplitter(t, Options{MaxChars: 60, OverlapChars: 0})

	chunks := s.Split(context.Background(), []byte(py), "python")
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks[1:] {
		first := strings.TrimSpace(strings.SplitN(c.Content, "\n", 2)[0])
		if first == "" {
			continue
		}
		assert.False(t, strings.HasPrefix(first, "return"),
			"chunk starts inside a function body: %q", first)
	}
}
