package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quarrylabs/quarry/internal/search"
)

func TestStatusDropsIconOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("indexed 3 files")
	assert.Equal(t, "indexed 3 files\n", buf.String())
}

func TestStatusf(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Statusf("", "indexed %d files", 7)
	assert.Equal(t, "indexed 7 files\n", buf.String())
}

func TestKVAlignment(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.KV("backend", "embedded")
	assert.Contains(t, buf.String(), "backend:")
	assert.Contains(t, buf.String(), "embedded")
}

func TestResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Results(nil)
	assert.Equal(t, "no results\n", buf.String())
}

func TestResultsFormat(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Results([]search.Result{
		{
			Path:       "internal/auth/login.go",
			StartLine:  10,
			EndLine:    12,
			Snippet:    "func Login() {\n}",
			Score:      0.912,
			Confidence: search.ConfidenceSemantic,
		},
		{
			Path:       "pkg/render/html.go",
			StartLine:  1,
			EndLine:    2,
			Snippet:    "func Render() {}",
			Score:      0.4,
			Confidence: search.ConfidenceLexical,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "1. internal/auth/login.go:10-12 (0.912)")
	assert.Contains(t, out, "   func Login() {")
	assert.Contains(t, out, "2. pkg/render/html.go:1-2 (0.400) [lexical]")
}
