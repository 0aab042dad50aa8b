// Package search answers queries against the index: embed the query, find
// nearest chunks, and rank snippets. When the embedding provider or the
// vector backend is down, queries degrade to keyword matching over the
// local lexical index instead of failing.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/lexical"
	"github.com/quarrylabs/quarry/internal/store"
)

// Confidence tags how a result was produced.
const (
	// ConfidenceSemantic marks results from vector similarity.
	ConfidenceSemantic = "semantic"
	// ConfidenceLexical marks degraded keyword-fallback results.
	ConfidenceLexical = "lexical"
)

// DefaultTopK is the result count when the caller passes zero.
const DefaultTopK = 10

// MaxTopK caps the result count.
const MaxTopK = 100

// Result is one ranked snippet.
type Result struct {
	Path       string  `json:"path"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
}

// Service runs queries against the vector store with lexical fallback.
type Service struct {
	embedder embed.Embedder
	store    store.VectorStore
	lexical  *lexical.Index
}

// NewService creates a search service over the given indexes.
func NewService(embedder embed.Embedder, vectors store.VectorStore, lex *lexical.Index) *Service {
	return &Service{embedder: embedder, store: vectors, lexical: lex}
}

// Search returns up to topK ranked snippets for a query, optionally scoped
// to a directory prefix. Ties break by score, then shorter path, then
// lower start line.
func (s *Service) Search(ctx context.Context, query string, topK int, dirPrefix string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, qerrors.New(qerrors.ErrCodeInvalidQuery, "query must not be empty", nil)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	dirPrefix = strings.Trim(strings.TrimSpace(dirPrefix), "/")

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if qerrors.IsEmbeddingUnavailable(err) {
			slog.Warn("embedding provider unavailable, serving lexical results",
				slog.String("error", err.Error()))
			return s.searchLexical(ctx, query, topK, dirPrefix)
		}
		return nil, qerrors.New(qerrors.ErrCodeSearchFailed, "failed to embed query", err)
	}

	hits, err := s.store.Search(ctx, vector, topK, dirPrefix)
	if err != nil {
		if qerrors.IsBackendUnavailable(err) {
			slog.Warn("vector backend unavailable, serving lexical results",
				slog.String("error", err.Error()))
			return s.searchLexical(ctx, query, topK, dirPrefix)
		}
		return nil, qerrors.New(qerrors.ErrCodeSearchFailed, "vector search failed", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Path:       hit.Payload.Path,
			StartLine:  hit.Payload.StartLine,
			EndLine:    hit.Payload.EndLine,
			Snippet:    hit.Payload.Snippet,
			Score:      float64(hit.Score),
			Confidence: ConfidenceSemantic,
		})
	}
	rank(results)
	return results, nil
}

// searchLexical serves the keyword fallback, tagged low-confidence.
func (s *Service) searchLexical(ctx context.Context, query string, topK int, dirPrefix string) ([]Result, error) {
	hits, err := s.lexical.Search(ctx, query, topK, dirPrefix)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Path:       hit.Path,
			StartLine:  hit.StartLine,
			EndLine:    hit.EndLine,
			Snippet:    hit.Snippet,
			Score:      hit.Score,
			Confidence: ConfidenceLexical,
		})
	}
	rank(results)
	return results, nil
}

// rank sorts results by score descending, then shorter path, then lower
// start line, so equal-score orderings are deterministic.
func rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if len(results[i].Path) != len(results[j].Path) {
			return len(results[i].Path) < len(results[j].Path)
		}
		if results[i].Path != results[j].Path {
			return results[i].Path < results[j].Path
		}
		return results[i].StartLine < results[j].StartLine
	})
}
