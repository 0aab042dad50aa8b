package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBinaryExplicitPath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "qdrant")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	s := NewQdrantSupervisor(bin, "http://127.0.0.1:6333", "")
	path, err := s.FindBinary()
	require.NoError(t, err)
	assert.Equal(t, bin, path)
}

func TestFindBinaryMissingExplicitPath(t *testing.T) {
	s := NewQdrantSupervisor("/nonexistent/qdrant", "http://127.0.0.1:6333", "")
	_, err := s.FindBinary()
	assert.Error(t, err)
}

func TestFindBinaryNotOnPath(t *testing.T) {
	s := NewQdrantSupervisor("", "http://127.0.0.1:6333", "")
	s.lookPath = func(string) (string, error) {
		return "", errors.New("not found")
	}

	_, err := s.FindBinary()
	assert.Error(t, err)
}

func TestIsRunningAgainstStub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewQdrantSupervisor("", srv.URL, "")
	assert.True(t, s.IsRunning(context.Background()))

	down := NewQdrantSupervisor("", "http://127.0.0.1:1", "")
	assert.False(t, down.IsRunning(context.Background()))
}

func TestStartSkipsWhenAlreadyRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// No binary anywhere, but Start succeeds because the endpoint answers.
	s := NewQdrantSupervisor("/nonexistent/qdrant", srv.URL, "")
	require.NoError(t, s.Start(context.Background()))
	assert.Zero(t, s.Pid())
}

func TestWaitForReadyTimesOut(t *testing.T) {
	s := NewQdrantSupervisor("", "http://127.0.0.1:1", "")

	start := time.Now()
	err := s.WaitForReady(context.Background(), 300*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	s := NewQdrantSupervisor("", "http://127.0.0.1:6333", "")
	assert.NoError(t, s.Stop())
}

func TestPortExtraction(t *testing.T) {
	assert.Equal(t, "7777",
		NewQdrantSupervisor("", "http://127.0.0.1:7777", "").port())
	assert.Equal(t, "6333",
		NewQdrantSupervisor("", "http://qdrant.internal", "").port())
}
