package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// QdrantConfig configures the remote Qdrant backend.
type QdrantConfig struct {
	// URL is the Qdrant REST endpoint, e.g. http://127.0.0.1:6333.
	URL string

	// APIKey is sent as the api-key header when non-empty.
	APIKey string

	// Collection is the vector collection name.
	Collection string

	// Retry bounds retries for transient failures. Zero value uses defaults.
	Retry qerrors.RetryConfig
}

// QdrantStore is the VectorStore backed by a Qdrant instance over REST.
// Transient failures are retried with backoff; exhausted retries surface as
// backend-unavailable so the coordinator pauses instead of crashing.
type QdrantStore struct {
	client *http.Client
	config QdrantConfig
}

var _ VectorStore = (*QdrantStore)(nil)

// NewQdrantStore creates a Qdrant-backed store. The endpoint is not probed
// here; EnsureCollection performs the first round trip.
func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = qerrors.DefaultRetryConfig()
	}
	return &QdrantStore{
		client: &http.Client{Timeout: 30 * time.Second},
		config: cfg,
	}
}

// qdrant REST request/response shapes, limited to the fields used here.

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors qdrantVectorParams `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
		PointsCount int `json:"points_count"`
	} `json:"result"`
}

type qdrantPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

type qdrantMatch struct {
	Value string `json:"value"`
}

type qdrantCondition struct {
	Key   string      `json:"key"`
	Match qdrantMatch `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantSearchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      string  `json:"id"`
		Score   float32 `json:"score"`
		Payload Payload `json:"payload"`
	} `json:"result"`
}

type qdrantCountResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

// EnsureCollection creates the collection with cosine distance, or verifies
// an existing collection's dimension. A dimension conflict is fatal for the
// collection: vectors are never truncated or padded to fit.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	return s.retry(ctx, func() error {
		status, body, err := s.do(ctx, http.MethodGet, "/collections/"+s.config.Collection, nil)
		if err != nil {
			return s.unreachable(err)
		}

		switch {
		case status == http.StatusNotFound:
			return s.createCollection(ctx, dimensions)
		case status == http.StatusOK:
			var info qdrantCollectionInfo
			if err := json.Unmarshal(body, &info); err != nil {
				return qerrors.New(qerrors.ErrCodeBackendTransient,
					"failed to decode collection info", err)
			}
			existing := info.Result.Config.Params.Vectors.Size
			if existing != 0 && existing != dimensions {
				return qerrors.New(qerrors.ErrCodeSchemaMismatch,
					fmt.Sprintf("collection %q holds %d-dimensional vectors, embedder produces %d",
						s.config.Collection, existing, dimensions), nil)
			}
			return nil
		default:
			return s.unexpectedStatus(status, body)
		}
	})
}

func (s *QdrantStore) createCollection(ctx context.Context, dimensions int) error {
	reqBody := map[string]any{
		"vectors": qdrantVectorParams{Size: dimensions, Distance: "Cosine"},
	}
	status, body, err := s.do(ctx, http.MethodPut, "/collections/"+s.config.Collection, reqBody)
	if err != nil {
		return s.unreachable(err)
	}
	if status != http.StatusOK {
		return s.unexpectedStatus(status, body)
	}
	return nil
}

// Upsert inserts or replaces points by ID.
func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qPoints := make([]qdrantPoint, len(points))
	for i, p := range points {
		qPoints[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}

	return s.retry(ctx, func() error {
		status, body, err := s.do(ctx, http.MethodPut,
			"/collections/"+s.config.Collection+"/points?wait=true",
			map[string]any{"points": qPoints})
		if err != nil {
			return s.unreachable(err)
		}
		if status != http.StatusOK {
			return s.unexpectedStatus(status, body)
		}
		return nil
	})
}

// DeletePoints removes points by ID.
func (s *QdrantStore) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return s.retry(ctx, func() error {
		status, body, err := s.do(ctx, http.MethodPost,
			"/collections/"+s.config.Collection+"/points/delete?wait=true",
			map[string]any{"points": ids})
		if err != nil {
			return s.unreachable(err)
		}
		if status != http.StatusOK {
			return s.unexpectedStatus(status, body)
		}
		return nil
	})
}

// DeleteByPath removes every point whose payload path matches, server-side.
func (s *QdrantStore) DeleteByPath(ctx context.Context, path string) error {
	filter := qdrantFilter{
		Must: []qdrantCondition{{Key: "path", Match: qdrantMatch{Value: path}}},
	}

	return s.retry(ctx, func() error {
		status, body, err := s.do(ctx, http.MethodPost,
			"/collections/"+s.config.Collection+"/points/delete?wait=true",
			map[string]any{"filter": filter})
		if err != nil {
			return s.unreachable(err)
		}
		if status != http.StatusOK {
			return s.unexpectedStatus(status, body)
		}
		return nil
	})
}

// DeleteCollection drops the collection entirely. A missing collection is
// not an error; the next EnsureCollection recreates it with whatever
// dimension the embedder then produces.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	return s.retry(ctx, func() error {
		status, body, err := s.do(ctx, http.MethodDelete, "/collections/"+s.config.Collection, nil)
		if err != nil {
			return s.unreachable(err)
		}
		if status != http.StatusOK && status != http.StatusNotFound {
			return s.unexpectedStatus(status, body)
		}
		return nil
	})
}

// Search returns up to topK nearest points, optionally scoped to a directory
// via the indexed dirs payload field.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, dirPrefix string) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	req := qdrantSearchRequest{Vector: vector, Limit: topK, WithPayload: true}
	if dirPrefix != "" {
		req.Filter = &qdrantFilter{
			Must: []qdrantCondition{{Key: "dirs", Match: qdrantMatch{Value: dirPrefix}}},
		}
	}

	results, err := qerrors.RetryWithResult(ctx, s.config.Retry, func() ([]Result, error) {
		status, body, err := s.do(ctx, http.MethodPost,
			"/collections/"+s.config.Collection+"/points/search", req)
		if err != nil {
			return nil, s.unreachable(err)
		}
		if status != http.StatusOK {
			return nil, s.unexpectedStatus(status, body)
		}

		var resp qdrantSearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, qerrors.New(qerrors.ErrCodeBackendTransient,
				"failed to decode search response", err)
		}

		results := make([]Result, len(resp.Result))
		for i, hit := range resp.Result {
			results[i] = Result{ID: hit.ID, Score: hit.Score, Payload: hit.Payload}
		}
		sortResults(results)
		return results, nil
	})
	return results, escalateTransient(err)
}

// Count returns the exact number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	count, err := qerrors.RetryWithResult(ctx, s.config.Retry, func() (int, error) {
		status, body, err := s.do(ctx, http.MethodPost,
			"/collections/"+s.config.Collection+"/points/count",
			map[string]any{"exact": true})
		if err != nil {
			return 0, s.unreachable(err)
		}
		if status != http.StatusOK {
			return 0, s.unexpectedStatus(status, body)
		}

		var resp qdrantCountResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return 0, qerrors.New(qerrors.ErrCodeBackendTransient,
				"failed to decode count response", err)
		}
		return resp.Result.Count, nil
	})
	return count, escalateTransient(err)
}

// Ping reports whether the endpoint answers at all.
func (s *QdrantStore) Ping(ctx context.Context) bool {
	status, _, err := s.do(ctx, http.MethodGet, "/collections", nil)
	return err == nil && status == http.StatusOK
}

// Close releases idle connections.
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do performs one REST call and returns status plus body.
func (s *QdrantStore) do(ctx context.Context, method, path string, reqBody any) (int, []byte, error) {
	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.URL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.config.APIKey != "" {
		req.Header.Set("api-key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// unreachable wraps a transport error as retryable; the retry loop escalates
// it to backend-unavailable once attempts are exhausted.
func (s *QdrantStore) unreachable(err error) error {
	return qerrors.New(qerrors.ErrCodeBackendTransient,
		fmt.Sprintf("cannot reach vector store at %s", s.config.URL), err)
}

// unexpectedStatus classifies HTTP failures: server errors are transient,
// everything else is a hard failure.
func (s *QdrantStore) unexpectedStatus(status int, body []byte) error {
	msg := fmt.Sprintf("vector store returned status %d: %s", status, truncate(string(body), 200))
	if status >= 500 {
		return qerrors.New(qerrors.ErrCodeBackendTransient, msg, nil)
	}
	return qerrors.New(qerrors.ErrCodeBackendUnavailable, msg, nil)
}

// retry runs fn with backoff and escalates exhausted transient failures.
func (s *QdrantStore) retry(ctx context.Context, fn func() error) error {
	return escalateTransient(qerrors.Retry(ctx, s.config.Retry, fn))
}

// escalateTransient promotes an exhausted-retry transient error to
// backend-unavailable so callers pause indexing instead of retrying forever.
func escalateTransient(err error) error {
	if err == nil {
		return nil
	}
	if qerrors.GetCode(err) == qerrors.ErrCodeBackendTransient {
		return qerrors.New(qerrors.ErrCodeBackendUnavailable,
			"vector store unreachable after retries", err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
