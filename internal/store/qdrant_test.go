package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// qdrantStub is a minimal in-memory Qdrant REST double covering the
// endpoints the store uses.
type qdrantStub struct {
	mu     sync.Mutex
	dims   int
	exists bool
	points map[string]qdrantPoint
}

func newQdrantStub(t *testing.T) (*qdrantStub, *httptest.Server) {
	t.Helper()
	stub := &qdrantStub{points: make(map[string]qdrantPoint)}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /collections/{name}", func(w http.ResponseWriter, _ *http.Request) {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		if !stub.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"config": map[string]any{
					"params": map[string]any{
						"vectors": map[string]any{"size": stub.dims, "distance": "Cosine"},
					},
				},
				"points_count": len(stub.points),
			},
		})
	})

	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Vectors qdrantVectorParams `json:"vectors"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		stub.mu.Lock()
		stub.exists = true
		stub.dims = req.Vectors.Size
		stub.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
	})

	mux.HandleFunc("DELETE /collections/{name}", func(w http.ResponseWriter, _ *http.Request) {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		if !stub.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		stub.exists = false
		stub.dims = 0
		stub.points = make(map[string]qdrantPoint)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
	})

	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Points []qdrantPoint `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		stub.mu.Lock()
		for _, p := range req.Points {
			stub.points[p.ID] = p
		}
		stub.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
	})

	mux.HandleFunc("POST /collections/{name}/points/delete", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Points []string      `json:"points"`
			Filter *qdrantFilter `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		stub.mu.Lock()
		for _, id := range req.Points {
			delete(stub.points, id)
		}
		if req.Filter != nil {
			for _, cond := range req.Filter.Must {
				for id, p := range stub.points {
					if cond.Key == "path" && p.Payload.Path == cond.Match.Value {
						delete(stub.points, id)
					}
				}
			}
		}
		stub.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true})
	})

	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		var req qdrantSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		stub.mu.Lock()
		var hits []map[string]any
		for id, p := range stub.points {
			if req.Filter != nil {
				matched := false
				for _, dir := range p.Payload.Dirs {
					if dir == req.Filter.Must[0].Match.Value {
						matched = true
					}
				}
				if !matched {
					continue
				}
			}
			var dot float32
			for i := range req.Vector {
				if i < len(p.Vector) {
					dot += req.Vector[i] * p.Vector[i]
				}
			}
			hits = append(hits, map[string]any{"id": id, "score": dot, "payload": p.Payload})
		}
		stub.mu.Unlock()

		if len(hits) > req.Limit {
			hits = hits[:req.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	})

	mux.HandleFunc("POST /collections/{name}/points/count", func(w http.ResponseWriter, _ *http.Request) {
		stub.mu.Lock()
		n := len(stub.points)
		stub.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]int{"count": n}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return stub, srv
}

func newTestQdrantStore(url string) *QdrantStore {
	return NewQdrantStore(QdrantConfig{
		URL:        url,
		Collection: "quarry-test",
		Retry: qerrors.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	})
}

func TestQdrantEnsureCollectionCreates(t *testing.T) {
	stub, srv := newQdrantStub(t)
	s := newTestQdrantStore(srv.URL)
	defer s.Close()

	require.NoError(t, s.EnsureCollection(context.Background(), 4))
	assert.True(t, stub.exists)
	assert.Equal(t, 4, stub.dims)

	// Idempotent on matching dimensions.
	require.NoError(t, s.EnsureCollection(context.Background(), 4))
}

func TestQdrantEnsureCollectionSchemaMismatch(t *testing.T) {
	_, srv := newQdrantStub(t)
	s := newTestQdrantStore(srv.URL)
	defer s.Close()

	require.NoError(t, s.EnsureCollection(context.Background(), 4))

	err := s.EnsureCollection(context.Background(), 8)
	require.Error(t, err)
	assert.True(t, qerrors.IsSchemaMismatch(err))
	assert.True(t, qerrors.IsFatal(err))
}

func TestQdrantUpsertSearchRoundTrip(t *testing.T) {
	_, srv := newQdrantStub(t)
	s := newTestQdrantStore(srv.URL)
	defer s.Close()

	require.NoError(t, s.EnsureCollection(context.Background(), 3))
	require.NoError(t, s.Upsert(context.Background(), []Point{
		testPoint("internal/a.go", 0, []float32{1, 0, 0}),
		testPoint("pkg/b.go", 0, []float32{0, 1, 0}),
	}))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 5, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "internal/a.go", results[0].Payload.Path)
}

func TestQdrantSearchDirFilter(t *testing.T) {
	_, srv := newQdrantStub(t)
	s := newTestQdrantStore(srv.URL)
	defer s.Close()

	require.NoError(t, s.EnsureCollection(context.Background(), 3))
	require.NoError(t, s.Upsert(context.Background(), []Point{
		testPoint("internal/a.go", 0, []float32{1, 0, 0}),
		testPoint("pkg/b.go", 0, []float32{0.9, 0, 0}),
	}))

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 5, "pkg")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pkg/b.go", results[0].Payload.Path)
}

func TestQdrantDeleteByPath(t *testing.T) {
	stub, srv := newQdrantStub(t)
	s := newTestQdrantStore(srv.URL)
	defer s.Close()

	require.NoError(t, s.EnsureCollection(context.Background(), 3))
	require.NoError(t, s.Upsert(context.Background(), []Point{
		testPoint("a.go", 0, []float32{1, 0, 0}),
		testPoint("a.go", 1, []float32{0, 1, 0}),
		testPoint("b.go", 0, []float32{0, 0, 1}),
	}))

	require.NoError(t, s.DeleteByPath(context.Background(), "a.go"))

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Len(t, stub.points, 1)
}

func TestQdrantDeleteStalePointIDs(t *testing.T) {
	stub, srv := newQdrantStub(t)
	s := newTestQdrantStore(srv.URL)
	defer s.Close()

	require.NoError(t, s.EnsureCollection(context.Background(), 3))
	require.NoError(t, s.Upsert(context.Background(), []Point{
		testPoint("a.go", 0, []float32{1, 0, 0}),
		testPoint("a.go", 1, []float32{0, 1, 0}),
		testPoint("a.go", 2, []float32{0, 0, 1}),
	}))

	// File shrank from 3 chunks to 1: drop indices [1, 3).
	require.NoError(t, s.DeletePoints(context.Background(), PointIDs("a.go", 1, 3)))

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Len(t, stub.points, 1)
}

func TestQdrantDeleteCollection(t *testing.T) {
	stub, srv := newQdrantStub(t)
	s := newTestQdrantStore(srv.URL)
	defer s.Close()

	require.NoError(t, s.EnsureCollection(context.Background(), 3))
	require.NoError(t, s.Upsert(context.Background(), []Point{
		testPoint("a.go", 0, []float32{1, 0, 0}),
	}))

	require.NoError(t, s.DeleteCollection(context.Background()))
	assert.False(t, stub.exists)

	// Deleting an absent collection is not an error, and a new dimension
	// binds afterwards.
	require.NoError(t, s.DeleteCollection(context.Background()))
	require.NoError(t, s.EnsureCollection(context.Background(), 8))
	assert.Equal(t, 8, stub.dims)
}

func TestQdrantUnreachableEscalates(t *testing.T) {
	s := newTestQdrantStore("http://127.0.0.1:1")
	defer s.Close()

	err := s.EnsureCollection(context.Background(), 4)
	require.Error(t, err)
	assert.True(t, qerrors.IsBackendUnavailable(err))
	assert.False(t, s.Ping(context.Background()))
}
