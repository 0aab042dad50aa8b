// Package fingerprint computes content-based file identity and change sets.
//
// Identity is the SHA-256 of the raw bytes, never the mtime, so touching a
// file without modifying it is a no-op and repeated runs are idempotent.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// FileRecord tracks one indexed file. Owned exclusively by the index
// coordinator; persisted in the manifest across restarts.
type FileRecord struct {
	// Path is the workspace-relative, slash-separated file path.
	Path string

	// ContentHash is the SHA-256 hex digest of the raw file bytes.
	ContentHash string

	// SizeBytes is the file size at index time.
	SizeBytes int64

	// ChunkCount is how many chunks the file produced at index time.
	// Needed to delete stale points when a re-index yields fewer chunks.
	ChunkCount int

	// IndexedAt is when the file was last successfully indexed.
	IndexedAt time.Time
}

// Hash returns the SHA-256 hex digest of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Diff is the change set between a prior record set and the current
// workspace contents.
type Diff struct {
	// Added paths have no prior FileRecord.
	Added []string
	// Modified paths have a prior record with a different content hash.
	Modified []string
	// Removed paths have a prior record but are absent from the workspace
	// (deleted, or newly excluded by a rule).
	Removed []string
	// Unchanged paths have a prior record with an identical hash.
	// They cost no further I/O and no embedding calls.
	Unchanged []string
}

// Total returns the number of paths needing work (added + modified + removed).
func (d Diff) Total() int {
	return len(d.Added) + len(d.Modified) + len(d.Removed)
}

// Compute diffs current workspace hashes against prior records.
// current maps path to content hash for every currently indexable file.
// Output slices are sorted for deterministic processing order.
func Compute(prior map[string]*FileRecord, current map[string]string) Diff {
	var d Diff

	for path, hash := range current {
		rec, ok := prior[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case rec.ContentHash != hash:
			d.Modified = append(d.Modified, path)
		default:
			d.Unchanged = append(d.Unchanged, path)
		}
	}

	for path := range prior {
		if _, ok := current[path]; !ok {
			d.Removed = append(d.Removed, path)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Removed)
	sort.Strings(d.Unchanged)
	return d
}
