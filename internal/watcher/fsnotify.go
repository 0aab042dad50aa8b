package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FsWatcher implements Watcher on top of fsnotify. Directories are watched
// recursively; directories created while watching are added on the fly.
type FsWatcher struct {
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}
	rootPath  string
	opts      Options
	wg        sync.WaitGroup
	mu        sync.Mutex
	stopped   bool
}

var _ Watcher = (*FsWatcher)(nil)

// New creates a watcher with the given options.
func New(opts Options) (*FsWatcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FsWatcher{
		fs:        fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}, nil
}

// Start registers watches for every directory under path and begins
// emitting events. It returns once the initial watches are in place.
func (w *FsWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	w.rootPath = absPath

	if err := w.addRecursive(absPath); err != nil {
		return fmt.Errorf("failed to register watches: %w", err)
	}

	w.wg.Add(2)
	go w.forwardDebounced(ctx)
	go w.run(ctx)

	// Stop on context cancellation so the output channels close even when
	// the caller never calls Stop itself.
	go func() {
		select {
		case <-ctx.Done():
			_ = w.Stop()
		case <-w.stopCh:
		}
	}()
	return nil
}

// run pumps raw fsnotify events into the debouncer until stopped.
func (w *FsWatcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// handleEvent converts one fsnotify event, filters it, and queues it.
func (w *FsWatcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)
	if relPath == "." || relPath == "" {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.shouldIgnore(relPath) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			w.addSubtree(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		// A rename away looks like a delete; the create at the new name
		// arrives as its own event.
		op = OpDelete
	default:
		// Chmod and friends are noise for indexing.
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      relPath,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// addSubtree registers watches for a directory that appeared after Start and
// synthesizes create events for the files already inside it. A directory
// moved into the workspace arrives as a single create event; without the
// walk, the files it carries would stay invisible until the next full scan.
func (w *FsWatcher) addSubtree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, relErr := filepath.Rel(w.rootPath, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.shouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			_ = w.fs.Add(path)
			return nil
		}
		w.debouncer.Add(FileEvent{
			Path:      rel,
			Operation: OpCreate,
			Timestamp: time.Now(),
		})
		return nil
	})
}

// forwardDebounced moves debounced batches to the output channel.
func (w *FsWatcher) forwardDebounced(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			w.emitEvents(events)
		}
	}
}

// addRecursive registers watches for root and every non-excluded directory
// below it.
func (w *FsWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable subtrees.
		}
		if !d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if relPath == "." {
			return w.fs.Add(path)
		}
		if w.shouldIgnore(relPath) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// shouldIgnore checks rel (and each of its segments) against the configured
// exclusion patterns.
func (w *FsWatcher) shouldIgnore(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, pattern := range w.opts.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		for _, seg := range segments {
			if seg == pattern {
				return true
			}
			if ok, _ := filepath.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// emitEvents sends a batch to the output channel, blocking until the
// consumer takes it or the watcher stops. Deliveries never drop.
func (w *FsWatcher) emitEvents(events []FileEvent) {
	select {
	case w.events <- events:
	case <-w.stopCh:
	}
}

// emitError sends an error without blocking.
func (w *FsWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	case <-w.stopCh:
	default:
	}
}

// Stop releases watches and closes the event channels. The channels close
// only after both pump goroutines have exited, so no send can race the
// close.
func (w *FsWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	w.debouncer.Stop()
	_ = w.fs.Close()

	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of batched file events.
func (w *FsWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel of errors.
func (w *FsWatcher) Errors() <-chan error {
	return w.errors
}
