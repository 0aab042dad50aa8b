package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// newOllamaStub serves /api/tags and /api/embed with fixed 4-dim embeddings.
func newOllamaStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "nomic-embed-text:latest"}},
		})
	})

	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		count := 1
		if texts, ok := req.Input.([]any); ok {
			count = len(texts)
		}
		embeddings := make([][]float64, count)
		for i := range embeddings {
			embeddings[i] = []float64{1, 0, 0, 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedderResolvesModel(t *testing.T) {
	srv := newOllamaStub(t)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 4, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedderEmbed(t *testing.T) {
	srv := newOllamaStub(t)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, vec)
}

func TestOllamaEmbedderBatchPreservesOrderAndZeroesEmpty(t *testing.T) {
	srv := newOllamaStub(t)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer e.Close()

	results, err := e.EmbedBatch(context.Background(), []string{"a", "   ", "b"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []float32{1, 0, 0, 0}, results[0])
	assert.Equal(t, []float32{0, 0, 0, 0}, results[1])
	assert.Equal(t, []float32{1, 0, 0, 0}, results[2])
}

func TestOllamaEmbedderUnreachableHost(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		// Closed port; connection is refused immediately.
		Host:  "http://127.0.0.1:1",
		Model: "nomic-embed-text",
	})
	require.Error(t, err)
	assert.True(t, qerrors.IsEmbeddingUnavailable(err))
}

func TestOllamaEmbedderUnknownModel(t *testing.T) {
	srv := newOllamaStub(t)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Model: "missing-model",
	})
	require.Error(t, err)
	assert.True(t, qerrors.IsEmbeddingUnavailable(err))
}

func TestOllamaEmbedderClosedRejectsCalls(t *testing.T) {
	srv := newOllamaStub(t)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "text")
	assert.True(t, qerrors.IsEmbeddingUnavailable(err))
	assert.False(t, e.Available(context.Background()))
}
