// Package watcher observes a workspace for file changes and emits batched,
// debounced events for the index coordinator. Rapid successive writes to the
// same file coalesce into a single event so the indexer never thrashes.
package watcher

import (
	"context"
	"time"
)

// Operation describes what happened to a file.
type Operation int

const (
	// OpCreate indicates a new file or directory appeared.
	OpCreate Operation = iota
	// OpModify indicates file content changed.
	OpModify
	// OpDelete indicates a file or directory was removed or renamed away.
	OpDelete
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is one observed change. Path is workspace-relative and
// slash-separated, matching the paths the scanner and manifest use.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher observes a directory tree and emits debounced event batches.
type Watcher interface {
	// Start begins watching the tree rooted at path. It returns once the
	// initial watches are registered; events flow until Stop.
	Start(ctx context.Context, path string) error

	// Stop releases watches and closes the event channels. Safe to call
	// more than once.
	Stop() error

	// Events returns batched debounced file events.
	Events() <-chan []FileEvent

	// Errors returns watcher errors that did not stop the watcher.
	Errors() <-chan error
}

// Options configures a watcher.
type Options struct {
	// DebounceWindow is how long to coalesce events before emitting a batch.
	DebounceWindow time.Duration

	// EventBufferSize is the capacity of the outgoing event channel.
	EventBufferSize int

	// ExcludePatterns are path patterns never watched or reported, in the
	// same form the scanner uses (segment names or glob patterns).
	ExcludePatterns []string
}

// DefaultOptions returns sensible watcher defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  300 * time.Millisecond,
		EventBufferSize: 1000,
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = def.EventBufferSize
	}
	return o
}
