// Package watcher delivers normalized file system events for a directory tree.
//
// Two backends implement the same Watcher interface: an fsnotify-based one
// that reacts to native OS notifications, and a polling one that diffs
// periodic snapshots of the tree for file systems where native notifications
// are unavailable (network mounts, some container volumes).
//
// Example usage:
//
//	w, err := watcher.New(watcher.Config{}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Start(ctx, "/media/src"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range w.Events() {
//	    fmt.Printf("%s %s\n", event.Op, event.Path)
//	}
package watcher

import (
	"context"
	"time"
)

// Op describes a normalized file operation.
type Op uint32

// File operation types.
const (
	OpCreated  Op = iota + 1 // Path appeared
	OpModified               // Content changed
	OpMoved                  // Path appeared as the destination of a move
	OpDeleted                // Path disappeared (deleted or moved away)
)

// String returns a human-readable operation name.
func (op Op) String() string {
	switch op {
	case OpCreated:
		return "CREATED"
	case OpModified:
		return "MODIFIED"
	case OpMoved:
		return "MOVED"
	case OpDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Event represents a file system event.
type Event struct {
	// Path is the absolute path the event refers to.
	Path string

	// Op is the normalized operation.
	Op Op

	// IsDir reports whether Path is (or was) a directory.
	IsDir bool

	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Watcher provides recursive file system monitoring of one root.
type Watcher interface {
	// Start begins watching root and every directory below it.
	//
	// Start returns once the subscription is established; events are
	// delivered from a background goroutine until ctx is cancelled or
	// Stop is called.
	Start(ctx context.Context, root string) error

	// Stop ends the subscription and waits for the background goroutine
	// to exit.
	Stop() error

	// Events returns the channel for receiving file system events.
	// The channel is closed by Close.
	Events() <-chan Event

	// Errors returns the channel for receiving non-fatal watcher errors.
	// The channel is closed by Close.
	Errors() <-chan error

	// Close stops the watcher if needed and releases resources.
	Close() error
}

// Config contains watcher configuration.
type Config struct {
	// CompatibilityMode selects the polling backend instead of fsnotify.
	CompatibilityMode bool

	// PollInterval is the snapshot interval of the polling backend.
	// Default: 10s.
	PollInterval time.Duration

	// EventBuffer is the capacity of the events channel.
	// Default: 256.
	EventBuffer int

	// CircuitBreakerThreshold is the number of consecutive backend errors
	// after which the watcher reports ErrCircuitBreakerOpen.
	// Default: 5.
	CircuitBreakerThreshold int
}

// withDefaults fills zero fields with their defaults.
func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 256
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	return c
}
