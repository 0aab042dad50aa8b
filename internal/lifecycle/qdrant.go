// Package lifecycle supervises the optional local Qdrant process for
// zero-config use of the remote backend: find the binary, start it with the
// configured port and storage path, wait for ready, stop it on shutdown.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	// StartupTimeout is how long to wait for Qdrant to answer after launch.
	StartupTimeout = 30 * time.Second

	// readyPollInterval is the initial polling interval for WaitForReady.
	readyPollInterval = 100 * time.Millisecond

	// maxReadyPollInterval caps the exponential backoff between polls.
	maxReadyPollInterval = 2 * time.Second

	// stopGracePeriod is how long a terminated process gets before kill.
	stopGracePeriod = 5 * time.Second
)

// QdrantSupervisor starts and stops a local qdrant process. The engine only
// uses it when the backend is configured for supervision; a managed remote
// instance never goes through here.
type QdrantSupervisor struct {
	binaryPath  string
	url         string
	storagePath string
	client      *http.Client

	// Overridable for tests.
	lookPath func(file string) (string, error)

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewQdrantSupervisor creates a supervisor for the given endpoint URL.
// binaryPath empty means look up "qdrant" on PATH. storagePath sets where
// the process keeps its data, typically under the engine data directory.
func NewQdrantSupervisor(binaryPath, endpointURL, storagePath string) *QdrantSupervisor {
	return &QdrantSupervisor{
		binaryPath:  binaryPath,
		url:         endpointURL,
		storagePath: storagePath,
		client:      &http.Client{Timeout: 2 * time.Second},
		lookPath:    exec.LookPath,
	}
}

// FindBinary resolves the qdrant binary path.
func (s *QdrantSupervisor) FindBinary() (string, error) {
	if s.binaryPath != "" {
		if _, err := os.Stat(s.binaryPath); err != nil {
			return "", fmt.Errorf("qdrant binary not found at %s: %w", s.binaryPath, err)
		}
		return s.binaryPath, nil
	}

	path, err := s.lookPath("qdrant")
	if err != nil {
		return "", fmt.Errorf("qdrant binary not found on PATH: %w", err)
	}
	return path, nil
}

// IsRunning reports whether the endpoint answers.
func (s *QdrantSupervisor) IsRunning(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/collections", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Start launches the qdrant process unless the endpoint already answers.
// Configuration goes through QDRANT__* environment variables, the process's
// native override mechanism.
func (s *QdrantSupervisor) Start(ctx context.Context) error {
	if s.IsRunning(ctx) {
		return nil
	}

	binary, err := s.FindBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}

	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(),
		"QDRANT__SERVICE__HTTP_PORT="+s.port(),
	)
	if s.storagePath != "" {
		cmd.Env = append(cmd.Env, "QDRANT__STORAGE__STORAGE_PATH="+s.storagePath)
	}
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start qdrant: %w", err)
	}
	s.cmd = cmd

	slog.Info("qdrant_started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("url", s.url))
	return nil
}

// port extracts the port from the endpoint URL, defaulting to 6333.
func (s *QdrantSupervisor) port() string {
	if u, err := url.Parse(s.url); err == nil && u.Port() != "" {
		return u.Port()
	}
	return "6333"
}

// WaitForReady polls the endpoint with backoff until it answers or the
// timeout elapses.
func (s *QdrantSupervisor) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		timeout = StartupTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := readyPollInterval
	for {
		if s.IsRunning(ctx) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for qdrant at %s: %w", s.url, ctx.Err())
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxReadyPollInterval {
			interval = maxReadyPollInterval
		}
	}
}

// EnsureReady starts the process if needed and waits until it answers.
func (s *QdrantSupervisor) EnsureReady(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.WaitForReady(ctx, StartupTimeout)
}

// Stop terminates the supervised process, escalating to kill after the
// grace period. Stopping a supervisor that never started is a no-op.
func (s *QdrantSupervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	pid := s.cmd.Process.Pid
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		// Already gone.
		s.cmd = nil
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-done:
		slog.Info("qdrant_stopped", slog.Int("pid", pid))
	case <-time.After(stopGracePeriod):
		_ = s.cmd.Process.Kill()
		<-done
		slog.Warn("qdrant_killed_after_grace_period", slog.Int("pid", pid))
	}

	s.cmd = nil
	return nil
}

// Pid returns the supervised process PID, or 0 when not running.
func (s *QdrantSupervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}
