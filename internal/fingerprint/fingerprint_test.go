package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(path, hash string) *FileRecord {
	return &FileRecord{
		Path:        path,
		ContentHash: hash,
		SizeBytes:   int64(len(hash)),
		ChunkCount:  1,
		IndexedAt:   time.Now(),
	}
}

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("package main"))
	b := Hash([]byte("package main"))
	c := Hash([]byte("package main\n"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestHashEmptyContent(t *testing.T) {
	// SHA-256 of the empty string, a fixed well-known digest.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Hash(nil))
}

func TestComputeAllNew(t *testing.T) {
	current := map[string]string{
		"main.go":      Hash([]byte("a")),
		"pkg/util.go":  Hash([]byte("b")),
		"docs/note.md": Hash([]byte("c")),
	}

	d := Compute(nil, current)

	assert.Equal(t, []string{"docs/note.md", "main.go", "pkg/util.go"}, d.Added)
	assert.Empty(t, d.Modified)
	assert.Empty(t, d.Removed)
	assert.Empty(t, d.Unchanged)
	assert.Equal(t, 3, d.Total())
}

func TestComputeModifiedAndUnchanged(t *testing.T) {
	oldHash := Hash([]byte("old"))
	newHash := Hash([]byte("new"))
	sameHash := Hash([]byte("same"))

	prior := map[string]*FileRecord{
		"a.go": record("a.go", oldHash),
		"b.go": record("b.go", sameHash),
	}
	current := map[string]string{
		"a.go": newHash,
		"b.go": sameHash,
	}

	d := Compute(prior, current)

	assert.Equal(t, []string{"a.go"}, d.Modified)
	assert.Equal(t, []string{"b.go"}, d.Unchanged)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
}

func TestComputeRemoved(t *testing.T) {
	prior := map[string]*FileRecord{
		"gone.go": record("gone.go", Hash([]byte("x"))),
		"kept.go": record("kept.go", Hash([]byte("y"))),
	}
	current := map[string]string{
		"kept.go": Hash([]byte("y")),
	}

	d := Compute(prior, current)

	assert.Equal(t, []string{"gone.go"}, d.Removed)
	assert.Equal(t, []string{"kept.go"}, d.Unchanged)
	assert.Equal(t, 1, d.Total())
}

func TestComputeTouchedFileIsUnchanged(t *testing.T) {
	// Identity is content-based: same bytes mean no work even if the
	// file was rewritten in place.
	h := Hash([]byte("identical content"))
	prior := map[string]*FileRecord{"f.go": record("f.go", h)}

	d := Compute(prior, map[string]string{"f.go": h})

	require.Empty(t, d.Modified)
	assert.Equal(t, []string{"f.go"}, d.Unchanged)
	assert.Zero(t, d.Total())
}

func TestComputeEmptyWorkspace(t *testing.T) {
	prior := map[string]*FileRecord{
		"a.go": record("a.go", Hash([]byte("a"))),
		"b.go": record("b.go", Hash([]byte("b"))),
	}

	d := Compute(prior, nil)

	assert.Equal(t, []string{"a.go", "b.go"}, d.Removed)
	assert.Equal(t, 2, d.Total())
}

func TestComputeSortedOutput(t *testing.T) {
	current := map[string]string{
		"z.go": "1", "m.go": "2", "a.go": "3",
	}

	d := Compute(nil, current)

	assert.Equal(t, []string{"a.go", "m.go", "z.go"}, d.Added)
}
