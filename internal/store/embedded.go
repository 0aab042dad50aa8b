package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// EmbeddedStore is the in-process VectorStore built on a pure Go HNSW graph.
// It needs no external service and can persist itself to a single file pair
// under the data directory.
type EmbeddedStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	// String ID to graph key mappings. Deletion is lazy: mappings are
	// dropped but nodes stay in the graph, because removing the last
	// node corrupts it. Orphans are filtered out of search results.
	idMap    map[string]uint64
	keyMap   map[uint64]string
	payloads map[string]Payload
	nextKey  uint64

	closed bool
}

// embeddedMetadata is the gob-persisted sidecar for the graph file.
type embeddedMetadata struct {
	IDMap    map[string]uint64
	Payloads map[string]Payload
	NextKey  uint64
	Dims     int
}

var _ VectorStore = (*EmbeddedStore)(nil)

// NewEmbeddedStore creates an empty in-process store.
func NewEmbeddedStore() *EmbeddedStore {
	return &EmbeddedStore{
		graph:    newGraph(),
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		payloads: make(map[string]Payload),
	}
}

func newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return graph
}

// EnsureCollection fixes the vector dimension. A second call with a
// different dimension is a schema mismatch.
func (s *EmbeddedStore) EnsureCollection(_ context.Context, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.New(qerrors.ErrCodeBackendUnavailable, "store is closed", nil)
	}
	if dimensions <= 0 {
		return fmt.Errorf("invalid dimensions %d", dimensions)
	}
	if s.dims != 0 && s.dims != dimensions {
		return qerrors.New(qerrors.ErrCodeSchemaMismatch,
			fmt.Sprintf("store holds %d-dimensional vectors, embedder produces %d", s.dims, dimensions), nil)
	}
	s.dims = dimensions
	return nil
}

// Upsert inserts or replaces points by ID.
func (s *EmbeddedStore) Upsert(_ context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.New(qerrors.ErrCodeBackendUnavailable, "store is closed", nil)
	}

	for _, p := range points {
		if s.dims != 0 && len(p.Vector) != s.dims {
			return qerrors.New(qerrors.ErrCodeSchemaMismatch,
				fmt.Sprintf("vector for %s has %d dimensions, store expects %d",
					p.Payload.Path, len(p.Vector), s.dims), nil)
		}
	}

	for _, p := range points {
		if existingKey, exists := s.idMap[p.ID]; exists {
			delete(s.keyMap, existingKey)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[p.ID] = key
		s.keyMap[key] = p.ID
		s.payloads[p.ID] = p.Payload
	}
	return nil
}

// DeletePoints removes points by ID, lazily.
func (s *EmbeddedStore) DeletePoints(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.New(qerrors.ErrCodeBackendUnavailable, "store is closed", nil)
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.payloads, id)
		}
	}
	return nil
}

// DeleteByPath removes every point whose payload path matches.
func (s *EmbeddedStore) DeleteByPath(ctx context.Context, path string) error {
	s.mu.RLock()
	var ids []string
	for id, payload := range s.payloads {
		if payload.Path == path {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	return s.DeletePoints(ctx, ids)
}

// Search returns up to topK nearest points, optionally scoped to a directory.
func (s *EmbeddedStore) Search(_ context.Context, vector []float32, topK int, dirPrefix string) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, qerrors.New(qerrors.ErrCodeBackendUnavailable, "store is closed", nil)
	}
	if topK <= 0 || s.graph.Len() == 0 || len(s.idMap) == 0 {
		return []Result{}, nil
	}
	if s.dims != 0 && len(vector) != s.dims {
		return nil, qerrors.New(qerrors.ErrCodeSchemaMismatch,
			fmt.Sprintf("query vector has %d dimensions, store expects %d", len(vector), s.dims), nil)
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeInPlace(query)

	// Oversample to survive orphan and directory filtering, growing the
	// candidate set until topK survive or the graph is exhausted.
	k := topK
	for {
		candidates := min(k*4, s.graph.Len())
		nodes := s.graph.Search(query, candidates)

		results := make([]Result, 0, topK)
		for _, node := range nodes {
			id, exists := s.keyMap[node.Key]
			if !exists {
				continue
			}
			payload := s.payloads[id]
			if !underDir(payload.Path, dirPrefix) {
				continue
			}

			distance := s.graph.Distance(query, node.Value)
			results = append(results, Result{
				ID:      id,
				Score:   1.0 - distance/2.0,
				Payload: payload,
			})
			if len(results) == topK {
				sortResults(results)
				return results, nil
			}
		}

		if candidates >= s.graph.Len() {
			sortResults(results)
			return results, nil
		}
		k *= 4
	}
}

// Reset drops every point and the dimension binding, leaving a fresh
// collection. Used by clear so the next index run may change models.
func (s *EmbeddedStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.New(qerrors.ErrCodeBackendUnavailable, "store is closed", nil)
	}

	s.graph = newGraph()
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.payloads = make(map[string]Payload)
	s.nextKey = 0
	s.dims = 0
	return nil
}

// Count returns the number of live points.
func (s *EmbeddedStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, qerrors.New(qerrors.ErrCodeBackendUnavailable, "store is closed", nil)
	}
	return len(s.idMap), nil
}

// Save persists the graph and metadata atomically (temp file plus rename).
func (s *EmbeddedStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *EmbeddedStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}

	meta := embeddedMetadata{
		IDMap:    s.idMap,
		Payloads: s.payloads,
		NextKey:  s.nextKey,
		Dims:     s.dims,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores a previously saved store. A missing file pair is not an
// error; the store stays empty.
func (s *EmbeddedStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta embeddedMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.idMap = meta.IDMap
	s.payloads = meta.Payloads
	s.nextKey = meta.NextKey
	s.dims = meta.Dims
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph.
func (s *EmbeddedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// sortResults orders hits by score descending, then path, then start line.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Payload.Path != results[j].Payload.Path {
			return results[i].Payload.Path < results[j].Payload.Path
		}
		return results[i].Payload.StartLine < results[j].Payload.StartLine
	})
}

// normalizeInPlace scales a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
