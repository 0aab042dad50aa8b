package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarrylabs/quarry/internal/config"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// NewFromConfig builds the configured embedder, wrapped with caching.
//
// An Ollama endpoint that is unreachable or missing the model at startup is
// not fatal: the embedder is constructed degraded (Available reports false,
// embed calls fail with embedding-unavailable) so the engine can open and
// serve lexical search while indexing waits for the provider.
func NewFromConfig(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch cfg.Provider {
	case config.ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	case config.ProviderOllama:
		ollamaCfg := OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		}
		e, err := NewOllamaEmbedder(ctx, ollamaCfg)
		if qerrors.IsEmbeddingUnavailable(err) {
			slog.Warn("embedding provider unavailable, starting degraded",
				slog.String("host", ollamaCfg.Host),
				slog.String("error", err.Error()))
			ollamaCfg.SkipHealthCheck = true
			e, err = NewOllamaEmbedder(ctx, ollamaCfg)
		}
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
