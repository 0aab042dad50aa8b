// Package store persists and searches chunk vectors.
//
// Two backends implement the same interface: an in-process HNSW graph for
// zero-configuration use, and a remote Qdrant instance over its REST API.
// Point IDs are deterministic UUIDs derived from (path, chunk index), so
// re-indexing the same content overwrites in place instead of duplicating.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// pointNamespace seeds deterministic point UUIDs. Fixed forever; changing it
// would orphan every existing point.
var pointNamespace = uuid.MustParse("8f2b9c4e-1d3a-4b5f-9e7c-6a0d2f8b4c1e")

// Payload is the metadata stored with every vector point.
type Payload struct {
	// Path is the workspace-relative file path.
	Path string `json:"path"`

	// StartLine and EndLine bound the chunk, 1-indexed inclusive.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// Dirs holds every ancestor directory prefix of Path ("a", "a/b", ...)
	// so directory-scoped search is a keyword match instead of a scan.
	Dirs []string `json:"dirs"`

	// Snippet is the chunk text, returned with search results.
	Snippet string `json:"snippet"`
}

// Point is one chunk vector plus its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Result is one search hit.
type Result struct {
	ID      string
	Score   float32
	Payload Payload
}

// VectorStore persists chunk vectors and answers nearest-neighbor queries.
type VectorStore interface {
	// EnsureCollection creates the collection for the given dimension, or
	// verifies an existing one matches. A dimension conflict returns a
	// schema-mismatch error and is never reconciled silently.
	EnsureCollection(ctx context.Context, dimensions int) error

	// Upsert inserts or replaces points by ID.
	Upsert(ctx context.Context, points []Point) error

	// DeletePoints removes points by ID. Unknown IDs are ignored.
	DeletePoints(ctx context.Context, ids []string) error

	// DeleteByPath removes every point whose payload path matches.
	DeleteByPath(ctx context.Context, path string) error

	// Search returns up to topK nearest points. A non-empty dirPrefix
	// restricts results to paths under that directory.
	Search(ctx context.Context, vector []float32, topK int, dirPrefix string) ([]Result, error)

	// Count returns the number of stored points.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// PointID returns the deterministic UUID for a chunk of a file.
func PointID(path string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s#%d", path, chunkIndex))).String()
}

// PointIDs returns the IDs for chunk indices [from, to) of a path. Used to
// drop stale points when a re-index produces fewer chunks.
func PointIDs(path string, from, to int) []string {
	if to <= from {
		return nil
	}
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, PointID(path, i))
	}
	return ids
}

// DirPrefixes returns every ancestor directory of a slash-separated path,
// shortest first. A bare filename has none.
func DirPrefixes(path string) []string {
	var prefixes []string
	for i, r := range path {
		if r == '/' {
			prefixes = append(prefixes, path[:i])
		}
	}
	return prefixes
}

// underDir reports whether path lies under the directory prefix.
func underDir(path, dirPrefix string) bool {
	if dirPrefix == "" {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(dirPrefix, "/")+"/")
}
