// Package index coordinates incremental index updates: it turns file events
// and startup scans into chunk/embed/upsert work, serialized per path and
// bounded by a worker pool.
package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/quarry/internal/chunk"
	"github.com/quarrylabs/quarry/internal/embed"
	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/fingerprint"
	"github.com/quarrylabs/quarry/internal/lexical"
	"github.com/quarrylabs/quarry/internal/manifest"
	"github.com/quarrylabs/quarry/internal/scanner"
	"github.com/quarrylabs/quarry/internal/store"
	"github.com/quarrylabs/quarry/internal/watcher"
)

// State is the indexing lifecycle of one path.
type State int

const (
	// StateUnindexed means the path has never been indexed.
	StateUnindexed State = iota
	// StatePending means the path is queued for indexing.
	StatePending
	// StateIndexing means an index pass is in flight.
	StateIndexing
	// StateIndexed means the index reflects the path's current content.
	StateIndexed
	// StateFailed means indexing gave up after bounded retries.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateIndexing:
		return "indexing"
	case StateIndexed:
		return "indexed"
	case StateFailed:
		return "failed"
	default:
		return "unindexed"
	}
}

// pathState tracks one path under the coordinator mutex. The dirty flag
// records an event that arrived while a pass was in flight; it buys the
// at-most-one-in-flight guarantee without dropping changes.
type pathState struct {
	state   State
	dirty   bool
	retries int
}

// Config wires a Coordinator's collaborators.
type Config struct {
	// Root is the absolute workspace root.
	Root string

	// Scanner applies exclusion rules and reads indexable files.
	Scanner *scanner.Scanner

	// Splitter chunks file content.
	Splitter *chunk.Splitter

	// Embedder turns chunk text into vectors.
	Embedder embed.Embedder

	// Store holds vectors and answers similarity queries.
	Store store.VectorStore

	// Lexical is the keyword fallback index, maintained in lockstep.
	Lexical *lexical.Index

	// Manifest persists FileRecords and engine state.
	Manifest *manifest.Store

	// Workers bounds concurrent per-file index passes.
	Workers int

	// MaxRetries bounds per-file attempts before marking Failed.
	MaxRetries int
}

// Status is a point-in-time snapshot of coordinator progress.
type Status struct {
	Indexed  int
	Pending  int
	Indexing int
	Failed   int
	Paused   bool
}

// Coordinator owns the per-path state machine and the indexing pipeline.
type Coordinator struct {
	cfg Config

	mu     sync.Mutex
	paths  map[string]*pathState
	paused bool
}

// New creates a coordinator. Workers and MaxRetries fall back to sane
// minimums when zero.
func New(cfg Config) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Coordinator{
		cfg:   cfg,
		paths: make(map[string]*pathState),
	}
}

// EnsureSchema verifies the persisted embedding identity against the
// configured embedder and creates the vector collection. A model or
// dimension change against an existing index is fatal for the collection;
// the operator clears and re-indexes.
func (c *Coordinator) EnsureSchema(ctx context.Context) error {
	model := c.cfg.Embedder.ModelName()
	dims := c.cfg.Embedder.Dimensions()

	prevModel, err := c.cfg.Manifest.GetState(manifest.StateEmbedModel)
	if err != nil {
		return err
	}
	prevDims, err := c.cfg.Manifest.GetState(manifest.StateEmbedDimensions)
	if err != nil {
		return err
	}

	if prevModel != "" && (prevModel != model || prevDims != strconv.Itoa(dims)) {
		return qerrors.New(qerrors.ErrCodeSchemaMismatch,
			"indexed with model "+prevModel+" ("+prevDims+" dims), configured model is "+
				model+" ("+strconv.Itoa(dims)+" dims); run clear and re-index", nil)
	}

	if err := c.cfg.Store.EnsureCollection(ctx, dims); err != nil {
		return err
	}

	if err := c.cfg.Manifest.SetState(manifest.StateEmbedModel, model); err != nil {
		return err
	}
	return c.cfg.Manifest.SetState(manifest.StateEmbedDimensions, strconv.Itoa(dims))
}

// FullScan reconciles the index with the workspace: hash every indexable
// file, diff against the manifest, remove what disappeared, and index what
// changed. Unchanged files cost one read and no embedding calls.
func (c *Coordinator) FullScan(ctx context.Context) (fingerprint.Diff, error) {
	paths, err := c.cfg.Scanner.Scan(ctx)
	if err != nil {
		return fingerprint.Diff{}, err
	}

	current := make(map[string]string, len(paths))
	for _, path := range paths {
		content, ok := scanner.ReadIndexable(c.cfg.Root, path)
		if !ok {
			continue
		}
		current[path] = fingerprint.Hash(content)
	}

	prior, err := c.cfg.Manifest.LoadRecords()
	if err != nil {
		return fingerprint.Diff{}, err
	}

	diff := fingerprint.Compute(prior, current)
	slog.Info("full_scan_diff",
		slog.Int("added", len(diff.Added)),
		slog.Int("modified", len(diff.Modified)),
		slog.Int("removed", len(diff.Removed)),
		slog.Int("unchanged", len(diff.Unchanged)))

	for _, path := range diff.Removed {
		if err := c.removePath(ctx, path); err != nil {
			slog.Warn("failed to remove stale path",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}

	c.mu.Lock()
	for _, path := range diff.Unchanged {
		c.ensureLocked(path).state = StateIndexed
	}
	c.mu.Unlock()

	work := make([]string, 0, len(diff.Added)+len(diff.Modified))
	work = append(work, diff.Added...)
	work = append(work, diff.Modified...)
	c.process(ctx, work)

	return diff, nil
}

// HandleEvents applies one debounced watcher batch. Deletes apply
// immediately; creates and modifies go through the worker pool. While
// paused, paths queue as Pending and wait for Resume.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) {
	var work []string
	for _, event := range events {
		if event.IsDir {
			continue
		}

		switch event.Operation {
		case watcher.OpDelete:
			c.removeTree(ctx, event.Path)
		case watcher.OpCreate, watcher.OpModify:
			if !c.cfg.Scanner.Indexable(event.Path) {
				continue
			}
			work = append(work, event.Path)
		}
	}

	if len(work) == 0 {
		return
	}

	c.mu.Lock()
	paused := c.paused
	if paused {
		for _, path := range work {
			st := c.ensureLocked(path)
			if st.state != StateIndexing {
				st.state = StatePending
			} else {
				st.dirty = true
			}
		}
	}
	c.mu.Unlock()

	if paused {
		return
	}
	c.process(ctx, work)
}

// Resume clears the paused flag and retries every Pending and Failed path.
// Call it once the backend answers again.
func (c *Coordinator) Resume(ctx context.Context) {
	c.mu.Lock()
	c.paused = false
	var work []string
	for path, st := range c.paths {
		if st.state == StatePending || st.state == StateFailed {
			st.retries = 0
			work = append(work, path)
		}
	}
	c.mu.Unlock()

	c.process(ctx, work)
}

// Status reports progress counts.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{Paused: c.paused}
	for _, st := range c.paths {
		switch st.state {
		case StateIndexed:
			s.Indexed++
		case StatePending:
			s.Pending++
		case StateIndexing:
			s.Indexing++
		case StateFailed:
			s.Failed++
		}
	}
	return s
}

// Forget drops every in-memory path state. Called after the index is
// cleared so status counts do not report paths that no longer exist in
// the store.
func (c *Coordinator) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = make(map[string]*pathState)
	c.paused = false
}

// Paused reports whether indexing is paused on backend unavailability.
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// process runs the indexing pipeline over paths with bounded concurrency.
func (c *Coordinator) process(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}

	c.mu.Lock()
	for _, path := range paths {
		st := c.ensureLocked(path)
		if st.state != StateIndexing {
			st.state = StatePending
		} else {
			st.dirty = true
		}
	}
	c.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for _, path := range paths {
		g.Go(func() error {
			c.work(ctx, path)
			return nil
		})
	}
	_ = g.Wait()
}

// retryBackoffStep is multiplied by the attempt count between failed index
// passes of the same path.
const retryBackoffStep = 250 * time.Millisecond

// work claims a path and runs index passes until it is clean. A claim
// fails when another worker holds the path; the dirty flag set during
// claiming guarantees that worker runs a follow-up pass.
func (c *Coordinator) work(ctx context.Context, path string) {
	for {
		if !c.claim(path) {
			return
		}

		err := c.indexOne(ctx, path)

		rerun, delay := c.release(path, err)
		if !rerun {
			return
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// claim transitions a path to Indexing, or sets the dirty flag when a
// pass is already in flight.
func (c *Coordinator) claim(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.ensureLocked(path)
	if st.state == StateIndexing {
		st.dirty = true
		return false
	}
	if c.paused {
		st.state = StatePending
		return false
	}
	st.state = StateIndexing
	return true
}

// release records the outcome of one pass and reports whether the worker
// should run another, and after what delay. A dirty path reruns
// immediately; a failed attempt backs off proportionally to its retry
// count.
func (c *Coordinator) release(path string, err error) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.ensureLocked(path)

	if err == nil {
		if st.dirty {
			st.dirty = false
			st.state = StatePending
			return true, 0
		}
		st.state = StateIndexed
		st.retries = 0
		return false, 0
	}

	switch {
	case qerrors.IsBackendUnavailable(err):
		// The store is down. Keep last-known-good points, hold the path
		// Pending, and stop hammering until Resume.
		c.paused = true
		st.state = StatePending
		slog.Warn("indexing paused, backend unavailable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false, 0

	case qerrors.IsEmbeddingUnavailable(err):
		// Same treatment for the embedding provider: nothing about this
		// path is wrong, so it waits Pending until the provider answers.
		c.paused = true
		st.state = StatePending
		slog.Warn("indexing paused, embedding provider unavailable",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false, 0

	case errors.Is(err, qerrors.ErrChunkingFailed):
		st.state = StateFailed
		slog.Warn("skipping file, content could not be read",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false, 0

	default:
		st.retries++
		if st.retries >= c.cfg.MaxRetries {
			st.state = StateFailed
			slog.Warn("file failed after retries",
				slog.String("path", path),
				slog.Int("retries", st.retries),
				slog.String("error", err.Error()))
			return false, 0
		}
		st.state = StatePending
		slog.Debug("file index attempt failed, will retry",
			slog.String("path", path),
			slog.Int("attempt", st.retries),
			slog.String("error", err.Error()))
		return true, time.Duration(st.retries) * retryBackoffStep
	}
}

// indexOne runs the read, hash, chunk, embed, upsert pipeline for one
// path. A file that vanished or became excluded gets removed; a file that
// exists but cannot be read keeps its last-known-good points and is
// marked failed.
func (c *Coordinator) indexOne(ctx context.Context, path string) error {
	content, err := scanner.Read(c.cfg.Root, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.removePath(ctx, path)
		}
		return qerrors.Wrap(qerrors.ErrCodeChunkingFailed, err)
	}
	if scanner.IsBinary(content) || c.cfg.Scanner.ExceedsSizeLimit(int64(len(content))) {
		return c.removePath(ctx, path)
	}

	hash := fingerprint.Hash(content)

	prior, err := c.cfg.Manifest.LoadRecords()
	if err != nil {
		return err
	}
	oldCount := 0
	if rec, found := prior[path]; found {
		if rec.ContentHash == hash {
			// Touched but unchanged: no embeds, no upserts.
			return nil
		}
		oldCount = rec.ChunkCount
	}

	chunks := c.cfg.Splitter.Split(ctx, content, scanner.DetectLanguage(path))

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}

		vectors, err := c.cfg.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}

		points := make([]store.Point, len(chunks))
		docs := make([]lexical.Document, len(chunks))
		dirs := store.DirPrefixes(path)
		for i, ch := range chunks {
			id := store.PointID(path, ch.Index)
			points[i] = store.Point{
				ID:     id,
				Vector: vectors[i],
				Payload: store.Payload{
					Path:      path,
					StartLine: ch.StartLine,
					EndLine:   ch.EndLine,
					Dirs:      dirs,
					Snippet:   ch.Content,
				},
			}
			docs[i] = lexical.Document{
				ID:        id,
				Path:      path,
				StartLine: ch.StartLine,
				EndLine:   ch.EndLine,
				Content:   ch.Content,
			}
		}

		if err := c.cfg.Store.Upsert(ctx, points); err != nil {
			return err
		}
		if err := c.cfg.Lexical.Add(ctx, docs); err != nil {
			return qerrors.New(qerrors.ErrCodeIndexFailed, "keyword index update failed", err)
		}
	}

	// A shrinking chunk layout leaves stale points past the new count.
	if oldCount > len(chunks) {
		stale := store.PointIDs(path, len(chunks), oldCount)
		if err := c.cfg.Store.DeletePoints(ctx, stale); err != nil {
			return err
		}
		if err := c.cfg.Lexical.Delete(ctx, stale); err != nil {
			return qerrors.New(qerrors.ErrCodeIndexFailed, "stale keyword delete failed", err)
		}
	}

	return c.cfg.Manifest.PutRecord(&fingerprint.FileRecord{
		Path:        path,
		ContentHash: hash,
		SizeBytes:   int64(len(content)),
		ChunkCount:  len(chunks),
		IndexedAt:   time.Now().UTC(),
	})
}

// removeTree removes a deleted path and, when the manifest shows indexed
// files beneath it, those files too. A directory renamed or moved out of
// the workspace produces one delete event for the directory itself; the
// files it carried get no events of their own.
func (c *Coordinator) removeTree(ctx context.Context, path string) {
	records, err := c.cfg.Manifest.LoadRecords()
	if err != nil {
		slog.Warn("failed to load manifest for delete",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	prefix := path + "/"
	for rec := range records {
		if rec != path && !strings.HasPrefix(rec, prefix) {
			continue
		}
		if err := c.removePath(ctx, rec); err != nil {
			slog.Warn("failed to remove deleted path",
				slog.String("path", rec),
				slog.String("error", err.Error()))
		}
	}
}

// removePath deletes every trace of a path: vector points, keyword
// documents, the manifest record, and the in-memory state entry.
func (c *Coordinator) removePath(ctx context.Context, path string) error {
	if err := c.cfg.Store.DeleteByPath(ctx, path); err != nil {
		return err
	}
	if err := c.cfg.Lexical.DeleteByPath(ctx, path); err != nil {
		return qerrors.New(qerrors.ErrCodeIndexFailed, "keyword delete failed", err)
	}
	if err := c.cfg.Manifest.DeleteRecord(path); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.paths, path)
	c.mu.Unlock()
	return nil
}

// ensureLocked returns the state entry for path, creating it if needed.
// Callers must hold c.mu.
func (c *Coordinator) ensureLocked(path string) *pathState {
	st, ok := c.paths[path]
	if !ok {
		st = &pathState{state: StateUnindexed}
		c.paths[path] = st
	}
	return st
}
