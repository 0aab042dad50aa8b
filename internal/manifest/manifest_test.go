package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/fingerprint"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesDatabase(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPutAndLoadRecords(t *testing.T) {
	s := openTestStore(t)

	rec := &fingerprint.FileRecord{
		Path:        "internal/engine/engine.go",
		ContentHash: fingerprint.Hash([]byte("package engine")),
		SizeBytes:   14,
		ChunkCount:  2,
		IndexedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.PutRecord(rec))

	records, err := s.LoadRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[rec.Path]
	require.NotNil(t, got)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.Equal(t, rec.ChunkCount, got.ChunkCount)
	assert.True(t, rec.IndexedAt.Equal(got.IndexedAt))
}

func TestPutRecordUpsert(t *testing.T) {
	s := openTestStore(t)

	rec := &fingerprint.FileRecord{
		Path:        "a.go",
		ContentHash: "h1",
		ChunkCount:  3,
		IndexedAt:   time.Now(),
	}
	require.NoError(t, s.PutRecord(rec))

	rec.ContentHash = "h2"
	rec.ChunkCount = 1
	require.NoError(t, s.PutRecord(rec))

	records, err := s.LoadRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "h2", records["a.go"].ContentHash)
	assert.Equal(t, 1, records["a.go"].ChunkCount)
}

func TestDeleteRecord(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutRecord(&fingerprint.FileRecord{
		Path: "gone.go", ContentHash: "h", IndexedAt: time.Now(),
	}))
	require.NoError(t, s.DeleteRecord("gone.go"))

	records, err := s.LoadRecords()
	require.NoError(t, err)
	assert.Empty(t, records)

	// Deleting an absent path is a no-op.
	assert.NoError(t, s.DeleteRecord("never-existed.go"))
}

func TestStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	v, err := s.GetState(StateEmbedModel)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(StateEmbedModel, "nomic-embed-text"))
	require.NoError(t, s.SetState(StateEmbedDimensions, "768"))

	v, err = s.GetState(StateEmbedModel)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", v)

	require.NoError(t, s.SetState(StateEmbedModel, "other-model"))
	v, err = s.GetState(StateEmbedModel)
	require.NoError(t, err)
	assert.Equal(t, "other-model", v)
}

func TestClear(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutRecord(&fingerprint.FileRecord{
		Path: "a.go", ContentHash: "h", IndexedAt: time.Now(),
	}))
	require.NoError(t, s.SetState(StateEmbedModel, "m"))

	require.NoError(t, s.Clear())

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	v, err := s.GetState(StateEmbedModel)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestLockRejectsSecondEngine(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestRecordsSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.PutRecord(&fingerprint.FileRecord{
		Path: "persist.go", ContentHash: "h", ChunkCount: 5, IndexedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	records, err := s2.LoadRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 5, records["persist.go"].ChunkCount)
}
