// Package monitor dispatches watcher events to the reconciler.
//
// Each file event passes the debouncer and, if not a recent duplicate, is
// routed to the reconciler entry point for its kind. The debounce check and
// the reconciliation run as one critical section per path, so two events for
// the same path never interleave.
package monitor

import "github.com/0xmhha/media-mirror/pkg/reconciler"

// Config holds the dispatcher configuration.
type Config struct {
	// SourceRoot is the directory handed to the watcher.
	SourceRoot string

	// LockShards is the number of path-hashed locks. 1 serializes all
	// events behind one lock. Must be a power of two.
	// Default: 1.
	LockShards int
}

// Reconciler is the part of the reconciler the dispatcher drives.
type Reconciler interface {
	OnCreatedOrMoved(path string) reconciler.Outcome
	OnMoved(path string) reconciler.Outcome
	OnModified(path string) reconciler.Outcome
	OnDeleted(path string) reconciler.Outcome
}

// Stats is a snapshot of the dispatcher counters.
type Stats struct {
	// Received counts every event read from the watcher, directories included.
	Received int64

	// Suppressed counts file events dropped as debounce duplicates.
	Suppressed int64

	// Dispatched counts file events handed to the reconciler.
	Dispatched int64

	// Failed counts reconciliations that reported OutcomeFailed.
	Failed int64
}
