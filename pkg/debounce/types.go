// Package debounce suppresses repeated notifications for the same path.
//
// Watchers often report one logical change several times (an editor that
// touches a file twice on save, a create followed by a write). The Debouncer
// lets the first notification for a path through and drops any further
// notification of the same kind for that path arriving within the window.
// A removal followed by a reappearance (or the reverse) is never dropped:
// the file's presence changed, so the mirror has to follow.
//
// Example usage:
//
//	d := debounce.New(debounce.Config{Window: time.Second},
//	    debounce.NewMemoryStore(), logger.Default())
//	if d.ShouldProcess(path, debounce.KindPresent, time.Now()) {
//	    // reconcile path
//	}
package debounce

import "time"

// Kind is the class of a notification as far as suppression is concerned.
type Kind uint8

const (
	// KindPresent covers creations, moves and modifications.
	KindPresent Kind = iota

	// KindRemoved covers deletions.
	KindRemoved
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPresent:
		return "present"
	case KindRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Record is the last processed notification for a path.
type Record struct {
	At   time.Time
	Kind Kind
}

// Store persists the last processed notification per path.
type Store interface {
	// Get returns the record for path.
	// The boolean is false when no record exists.
	Get(path string) (Record, bool, error)

	// Set stores rec as the record for path.
	Set(path string, rec Record) error

	// DeleteBefore removes every record older than cutoff and returns
	// how many were removed.
	DeleteBefore(cutoff time.Time) (int, error)

	// Len returns the number of records.
	Len() int

	// Close releases resources held by the store.
	Close() error
}

// Config contains debouncer configuration.
type Config struct {
	// Window is the suppression window for repeated notifications.
	// Default: 1s.
	Window time.Duration

	// Retention is how long a record is kept after its last event.
	// Default: 60 * Window.
	Retention time.Duration

	// SweepInterval is how often expired records are evicted by Run.
	// Default: 30s.
	SweepInterval time.Duration
}
