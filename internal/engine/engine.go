// Package engine is the composition root: it wires config, manifest,
// embedder, vector store, keyword index, coordinator, and watcher into one
// lifecycle, and owns shutdown ordering.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/quarrylabs/quarry/internal/chunk"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/fingerprint"
	"github.com/quarrylabs/quarry/internal/index"
	"github.com/quarrylabs/quarry/internal/lexical"
	"github.com/quarrylabs/quarry/internal/lifecycle"
	"github.com/quarrylabs/quarry/internal/manifest"
	"github.com/quarrylabs/quarry/internal/scanner"
	"github.com/quarrylabs/quarry/internal/search"
	"github.com/quarrylabs/quarry/internal/store"
	"github.com/quarrylabs/quarry/internal/watcher"
)

// File names under the engine data directory.
const (
	vectorsFileName = "vectors.hnsw"
	keywordDirName  = "keyword.bleve"
)

// resumeProbeInterval is how often a paused engine probes the backend.
const resumeProbeInterval = 5 * time.Second

// Status is a snapshot of engine health for the status command and the
// index_status tool.
type Status struct {
	Root             string `json:"root"`
	Backend          string `json:"backend"`
	IndexingEnabled  bool   `json:"indexing_enabled"`
	EmbedModel       string `json:"embed_model"`
	EmbedDimensions  int    `json:"embed_dimensions"`
	EmbedAvailable   bool   `json:"embed_available"`
	BackendReachable bool   `json:"backend_reachable"`
	Files            int    `json:"files"`
	Points           int    `json:"points"`
	Indexed          int    `json:"indexed"`
	Pending          int    `json:"pending"`
	Failed           int    `json:"failed"`
	Paused           bool   `json:"paused"`
}

// Engine owns every component of a running index for one workspace.
type Engine struct {
	cfg     *config.Config
	root    string
	dataDir string

	manifest   *manifest.Store
	embedder   embed.Embedder
	vectors    store.VectorStore
	embedded   *store.EmbeddedStore
	qdrant     *store.QdrantStore
	supervisor *lifecycle.QdrantSupervisor
	keyword    *lexical.Index
	splitter   *chunk.Splitter
	coord      *index.Coordinator
	searcher   *search.Service
}

// Open builds an engine for the workspace rooted at root. The caller must
// Close it; a second engine on the same workspace fails on the data-dir
// lock.
func Open(ctx context.Context, root string) (*Engine, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, err
	}

	dataDir := config.DataDir(absRoot)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	e := &Engine{cfg: cfg, root: absRoot, dataDir: dataDir}
	if err := e.wire(ctx); err != nil {
		e.closePartial()
		return nil, err
	}
	return e, nil
}

// wire constructs components in dependency order.
func (e *Engine) wire(ctx context.Context) error {
	var err error

	e.manifest, err = manifest.Open(e.dataDir)
	if err != nil {
		return err
	}

	e.embedder, err = embed.NewFromConfig(ctx, e.cfg.Embeddings)
	if err != nil {
		return err
	}

	if err := e.openBackend(ctx); err != nil {
		return err
	}

	e.keyword, err = lexical.New(filepath.Join(e.dataDir, keywordDirName))
	if err != nil {
		return err
	}

	e.splitter = chunk.NewSplitter(chunk.Options{
		MaxChars:     e.cfg.Indexing.ChunkMaxChars,
		OverlapChars: e.cfg.Indexing.ChunkOverlapChars,
	})

	e.coord = index.New(index.Config{
		Root: e.root,
		Scanner: scanner.New(e.root, scanner.Options{
			MaxFileSize:     e.cfg.Indexing.MaxFileSize,
			ExcludePatterns: e.cfg.ExcludePatterns(),
		}),
		Splitter:   e.splitter,
		Embedder:   e.embedder,
		Store:      e.vectors,
		Lexical:    e.keyword,
		Manifest:   e.manifest,
		Workers:    e.cfg.Indexing.Workers,
		MaxRetries: e.cfg.Indexing.MaxRetries,
	})

	e.searcher = search.NewService(e.embedder, e.vectors, e.keyword)
	return nil
}

// openBackend selects the vector store: in-process HNSW persisted under
// the data directory, or a remote Qdrant endpoint, optionally supervised.
func (e *Engine) openBackend(ctx context.Context) error {
	switch e.cfg.Backend.Kind {
	case config.BackendQdrant:
		if e.cfg.Backend.Supervise {
			e.supervisor = lifecycle.NewQdrantSupervisor(
				e.cfg.Backend.BinaryPath,
				e.cfg.Backend.URL,
				filepath.Join(e.dataDir, "qdrant"),
			)
			if err := e.supervisor.EnsureReady(ctx); err != nil {
				return qerrors.New(qerrors.ErrCodeBackendUnavailable,
					"failed to start supervised qdrant", err)
			}
		}
		e.qdrant = store.NewQdrantStore(store.QdrantConfig{
			URL:        e.cfg.Backend.URL,
			APIKey:     e.cfg.Backend.APIKey,
			Collection: e.cfg.Backend.Collection,
			Retry:      qerrors.DefaultRetryConfig(),
		})
		e.vectors = e.qdrant

	default:
		e.embedded = store.NewEmbeddedStore()
		if err := e.embedded.Load(filepath.Join(e.dataDir, vectorsFileName)); err != nil {
			return err
		}
		e.vectors = e.embedded
	}
	return nil
}

// Index runs one reconciliation pass and returns the change set. A
// persisted embedding identity that conflicts with the configured embedder
// is fatal here; clear and re-index to change models. An unavailable
// embedding provider defers the pass entirely so the schema never binds to
// speculative dimensions.
func (e *Engine) Index(ctx context.Context) (fingerprint.Diff, error) {
	if !e.cfg.Indexing.Enabled {
		slog.Info("indexing disabled by configuration")
		return fingerprint.Diff{}, nil
	}
	if !e.embedder.Available(ctx) {
		return fingerprint.Diff{}, qerrors.New(qerrors.ErrCodeEmbeddingUnavailable,
			"embedding provider unavailable, indexing deferred", nil)
	}

	if err := e.coord.EnsureSchema(ctx); err != nil {
		return fingerprint.Diff{}, err
	}

	diff, err := e.coord.FullScan(ctx)
	if err != nil {
		return diff, err
	}
	return diff, e.persist()
}

// Watch reconciles once, then follows file events until ctx is cancelled.
// An unavailable embedder or backend defers the initial reconciliation
// instead of failing; the probe loop retries it once the dependency
// answers, so the engine keeps serving degraded search in the meantime.
func (e *Engine) Watch(ctx context.Context) error {
	if !e.cfg.Indexing.Enabled {
		slog.Info("indexing disabled by configuration, not watching")
		<-ctx.Done()
		return nil
	}

	scanned := false
	if _, err := e.Index(ctx); err != nil {
		if !qerrors.IsEmbeddingUnavailable(err) && !qerrors.IsBackendUnavailable(err) {
			return err
		}
		slog.Warn("initial index deferred, serving degraded",
			slog.String("error", err.Error()))
	} else {
		scanned = true
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow:  e.cfg.Indexing.DebounceWindow,
		ExcludePatterns: e.cfg.ExcludePatterns(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx, e.root); err != nil {
		return err
	}
	slog.Info("watching", slog.String("root", e.root))

	probe := time.NewTicker(resumeProbeInterval)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			e.coord.HandleEvents(ctx, batch)
			if err := e.persist(); err != nil {
				slog.Warn("failed to persist index", slog.String("error", err.Error()))
			}

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))

		case <-probe.C:
			if !e.ready(ctx) {
				continue
			}
			if !scanned {
				if _, err := e.Index(ctx); err != nil {
					slog.Warn("deferred index attempt failed",
						slog.String("error", err.Error()))
					continue
				}
				scanned = true
				slog.Info("deferred initial index completed")
			}
			if e.coord.Paused() {
				slog.Info("dependencies reachable again, resuming indexing")
				e.coord.Resume(ctx)
			}
		}
	}
}

// ready reports whether both the vector backend and the embedding provider
// answer.
func (e *Engine) ready(ctx context.Context) bool {
	return e.backendReachable(ctx) && e.embedder.Available(ctx)
}

// Search answers a query with ranked snippets.
func (e *Engine) Search(ctx context.Context, query string, topK int, dirPrefix string) ([]search.Result, error) {
	return e.searcher.Search(ctx, query, topK, dirPrefix)
}

// Status reports engine health.
func (e *Engine) Status(ctx context.Context) Status {
	cs := e.coord.Status()

	files, err := e.manifest.Count()
	if err != nil {
		slog.Warn("failed to count manifest records", slog.String("error", err.Error()))
	}
	points, err := e.vectors.Count(ctx)
	if err != nil {
		points = 0
	}

	return Status{
		Root:             e.root,
		Backend:          e.cfg.Backend.Kind,
		IndexingEnabled:  e.cfg.Indexing.Enabled,
		EmbedModel:       e.embedder.ModelName(),
		EmbedDimensions:  e.embedder.Dimensions(),
		EmbedAvailable:   e.embedder.Available(ctx),
		BackendReachable: e.backendReachable(ctx),
		Files:            files,
		Points:           points,
		Indexed:          cs.Indexed,
		Pending:          cs.Pending,
		Failed:           cs.Failed,
		Paused:           cs.Paused,
	}
}

// Clear removes every indexed point, keyword document, and manifest record.
// The vector collection is dropped outright, not emptied, so the persisted
// embedding identity is forgotten and the next index run may use a
// different model or dimension.
func (e *Engine) Clear(ctx context.Context) error {
	if e.embedded != nil {
		if err := e.embedded.Reset(); err != nil {
			return err
		}
	} else if e.qdrant != nil {
		if err := e.qdrant.DeleteCollection(ctx); err != nil {
			return err
		}
	}

	records, err := e.manifest.LoadRecords()
	if err != nil {
		return err
	}
	for path := range records {
		if err := e.keyword.DeleteByPath(ctx, path); err != nil {
			return err
		}
	}
	if err := e.manifest.Clear(); err != nil {
		return err
	}
	e.coord.Forget()
	return e.persist()
}

// backendReachable reports whether the vector store answers.
func (e *Engine) backendReachable(ctx context.Context) bool {
	if e.qdrant != nil {
		return e.qdrant.Ping(ctx)
	}
	return true
}

// persist flushes the embedded store to disk. Remote backends persist on
// their own.
func (e *Engine) persist() error {
	if e.embedded == nil {
		return nil
	}
	return e.embedded.Save(filepath.Join(e.dataDir, vectorsFileName))
}

// Close shuts components down in reverse dependency order: persist the
// embedded store, release the indexes and the manifest lock, and stop a
// supervised backend process last.
func (e *Engine) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(e.persist())
	if e.splitter != nil {
		e.splitter.Close()
	}
	if e.keyword != nil {
		record(e.keyword.Close())
	}
	if e.vectors != nil {
		record(e.vectors.Close())
	}
	if e.embedder != nil {
		record(e.embedder.Close())
	}
	if e.manifest != nil {
		record(e.manifest.Close())
	}
	if e.supervisor != nil {
		record(e.supervisor.Stop())
	}
	return firstErr
}

// closePartial releases whatever wire managed to construct.
func (e *Engine) closePartial() {
	_ = e.Close()
}

// Config returns the loaded configuration, read-only.
func (e *Engine) Config() *config.Config {
	return e.cfg
}
