// Package lexical maintains a keyword index over chunks as the search
// fallback: when the embedding provider is down, queries degrade to BM25
// keyword matching here instead of failing.
package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// Document is one chunk entered into the keyword index. ID matches the
// chunk's vector point ID so both indexes stay aligned.
type Document struct {
	ID        string
	Path      string
	StartLine int
	EndLine   int
	Content   string
}

// Result is one keyword search hit.
type Result struct {
	ID        string
	Score     float64
	Path      string
	StartLine int
	EndLine   int
	Snippet   string
}

// Index is a bleve-backed keyword index over chunks.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// New opens or creates a keyword index at path. An empty path creates an
// in-memory index.
func New(path string) (*Index, error) {
	indexMapping := createIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	return &Index{index: idx, path: path}, nil
}

// createIndexMapping indexes content with the standard analyzer and path as
// a single keyword token so exact-path and prefix queries work.
func createIndexMapping() *mapping.IndexMappingImpl {
	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = true
	docMapping.AddFieldMappingsAt("content", contentField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	docMapping.AddFieldMappingsAt("path", pathField)

	lineField := bleve.NewNumericFieldMapping()
	lineField.Store = true
	docMapping.AddFieldMappingsAt("start_line", lineField)
	docMapping.AddFieldMappingsAt("end_line", lineField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Add indexes documents in one batch, replacing existing IDs.
func (x *Index) Add(_ context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := x.index.NewBatch()
	for _, doc := range docs {
		fields := map[string]any{
			"path":       doc.Path,
			"content":    doc.Content,
			"start_line": doc.StartLine,
			"end_line":   doc.EndLine,
		}
		if err := batch.Index(doc.ID, fields); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute index batch: %w", err)
	}
	return nil
}

// Delete removes documents by ID.
func (x *Index) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := x.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute delete batch: %w", err)
	}
	return nil
}

// DeleteByPath removes every document for a file.
func (x *Index) DeleteByPath(ctx context.Context, path string) error {
	x.mu.RLock()
	if x.closed {
		x.mu.RUnlock()
		return fmt.Errorf("keyword index is closed")
	}

	termQuery := bleve.NewTermQuery(path)
	termQuery.SetField("path")
	req := bleve.NewSearchRequest(termQuery)
	req.Size = 10000

	result, err := x.index.SearchInContext(ctx, req)
	x.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to find documents for %s: %w", path, err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return x.Delete(ctx, ids)
}

// Search returns up to limit keyword matches, optionally scoped to a
// directory prefix. An empty query returns no results.
func (x *Index) Search(ctx context.Context, queryStr string, limit int, dirPrefix string) ([]Result, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, qerrors.New(qerrors.ErrCodeSearchFailed, "keyword index is closed", nil)
	}
	if strings.TrimSpace(queryStr) == "" || limit <= 0 {
		return []Result{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	var searchQuery = bleve.NewConjunctionQuery(matchQuery)
	if dirPrefix != "" {
		prefixQuery := bleve.NewPrefixQuery(strings.TrimSuffix(dirPrefix, "/") + "/")
		prefixQuery.SetField("path")
		searchQuery.AddQuery(prefixQuery)
	}

	req := bleve.NewSearchRequest(searchQuery)
	req.Size = limit
	req.Fields = []string{"path", "content", "start_line", "end_line"}

	result, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeSearchFailed, "keyword search failed", err)
	}

	results := make([]Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, Result{
			ID:        hit.ID,
			Score:     hit.Score,
			Path:      fieldString(hit.Fields["path"]),
			StartLine: fieldInt(hit.Fields["start_line"]),
			EndLine:   fieldInt(hit.Fields["end_line"]),
			Snippet:   fieldString(hit.Fields["content"]),
		})
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (x *Index) Count() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0, fmt.Errorf("keyword index is closed")
	}
	return x.index.DocCount()
}

// Close releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	return x.index.Close()
}

func fieldString(v any) string {
	s, _ := v.(string)
	return s
}

func fieldInt(v any) int {
	f, _ := v.(float64)
	return int(f)
}
