// Package manifest persists indexed-file records so restarts resume from a
// diff instead of a full re-embed.
//
// Storage is a single SQLite database under the engine data directory,
// guarded by a cross-process file lock so two engines never index the same
// workspace concurrently.
package manifest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	qerrors "github.com/quarrylabs/quarry/internal/errors"
	"github.com/quarrylabs/quarry/internal/fingerprint"
)

// FileName is the manifest database file under the data directory.
const FileName = "manifest.db"

// LockFileName guards the data directory against concurrent engines.
const LockFileName = ".engine.lock"

// State keys recorded alongside file records. Mismatches against the running
// configuration mean the stored vectors are unusable and a re-index is needed.
const (
	StateEmbedModel      = "embed_model"
	StateEmbedDimensions = "embed_dimensions"
)

// Store is the persistent manifest. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open acquires the data-directory lock and opens the manifest database,
// creating both as needed. A held lock means another engine owns this
// workspace and Open fails rather than blocking.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, qerrors.New(qerrors.ErrCodeManifestIO, "failed to create data directory", err)
	}

	lock := flock.New(filepath.Join(dataDir, LockFileName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeManifestIO, "failed to acquire data directory lock", err)
	}
	if !acquired {
		return nil, qerrors.New(qerrors.ErrCodeManifestIO,
			"data directory is locked by another engine instance", nil).
			WithDetail("lock_path", lock.Path())
	}

	path := filepath.Join(dataDir, FileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, qerrors.New(qerrors.ErrCodeManifestIO, "failed to open manifest database", err)
	}

	// Single writer; SQLite serializes writes anyway and this avoids
	// busy-lock churn under the worker pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, qerrors.New(qerrors.ErrCodeManifestIO, "failed to set pragma", err)
		}
	}

	s := &Store{db: db, lock: lock, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, qerrors.New(qerrors.ErrCodeManifestIO, "failed to initialize manifest schema", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path         TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		size_bytes   INTEGER NOT NULL,
		chunk_count  INTEGER NOT NULL,
		indexed_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the manifest database path.
func (s *Store) Path() string {
	return s.path
}

// LoadRecords returns all persisted file records keyed by path.
func (s *Store) LoadRecords() (map[string]*fingerprint.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT path, content_hash, size_bytes, chunk_count, indexed_at FROM files`)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeManifestIO, "failed to load file records", err)
	}
	defer rows.Close()

	records := make(map[string]*fingerprint.FileRecord)
	for rows.Next() {
		var rec fingerprint.FileRecord
		var indexedAt int64
		if err := rows.Scan(&rec.Path, &rec.ContentHash, &rec.SizeBytes,
			&rec.ChunkCount, &indexedAt); err != nil {
			return nil, qerrors.New(qerrors.ErrCodeManifestIO, "failed to scan file record", err)
		}
		rec.IndexedAt = time.Unix(indexedAt, 0).UTC()
		records[rec.Path] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.New(qerrors.ErrCodeManifestIO, "failed to iterate file records", err)
	}
	return records, nil
}

// PutRecord inserts or replaces the record for a path.
func (s *Store) PutRecord(rec *fingerprint.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO files (path, content_hash, size_bytes, chunk_count, indexed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size_bytes   = excluded.size_bytes,
			chunk_count  = excluded.chunk_count,
			indexed_at   = excluded.indexed_at`,
		rec.Path, rec.ContentHash, rec.SizeBytes, rec.ChunkCount, rec.IndexedAt.Unix())
	if err != nil {
		return qerrors.New(qerrors.ErrCodeManifestIO, fmt.Sprintf("failed to persist record for %s", rec.Path), err)
	}
	return nil
}

// DeleteRecord removes the record for a path. Missing paths are a no-op.
func (s *Store) DeleteRecord(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		return qerrors.New(qerrors.ErrCodeManifestIO, fmt.Sprintf("failed to delete record for %s", path), err)
	}
	return nil
}

// GetState returns the value for a state key, or "" when unset.
func (s *Store) GetState(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", qerrors.New(qerrors.ErrCodeManifestIO, "failed to read state", err)
	}
	return value, nil
}

// SetState inserts or replaces a state key.
func (s *Store) SetState(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return qerrors.New(qerrors.ErrCodeManifestIO, "failed to write state", err)
	}
	return nil
}

// Clear drops all file records and state. Used by full re-index.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM files`); err != nil {
		return qerrors.New(qerrors.ErrCodeManifestIO, "failed to clear file records", err)
	}
	if _, err := s.db.Exec(`DELETE FROM state`); err != nil {
		return qerrors.New(qerrors.ErrCodeManifestIO, "failed to clear state", err)
	}
	return nil
}

// Count returns the number of persisted file records.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, qerrors.New(qerrors.ErrCodeManifestIO, "failed to count file records", err)
	}
	return n, nil
}

// Close closes the database and releases the data-directory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			firstErr = err
		}
		s.db = nil
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.lock = nil
	}
	return firstErr
}
