// Package embed generates vector embeddings for chunk and query text.
//
// Provider failures surface as the embedding-unavailable error class so
// callers can degrade to lexical search instead of failing the request.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is texts per embedding request.
	DefaultBatchSize = 32

	// DefaultDimensions applies when the provider does not report one.
	DefaultDimensions = 768

	// StaticDimensions is the dimension of the local static embedder.
	StaticDimensions = 256

	// DefaultWarmTimeout is the per-request timeout once the model is loaded.
	DefaultWarmTimeout = 60 * time.Second

	// DefaultColdTimeout covers the first request, when the provider may
	// still be loading the model.
	DefaultColdTimeout = 180 * time.Second

	// modelUnloadThreshold is how long the provider keeps a model warm.
	modelUnloadThreshold = 5 * time.Minute
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder can serve requests right now.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors pass through.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
