// Package reconciler applies mirroring actions to the destination tree.
//
// One entry point exists per notification kind. Every entry point is
// idempotent and never returns an error: filesystem failures are logged with
// the offending path and reported as OutcomeFailed, so a single bad file can
// never stop the watch loop.
//
// Example usage:
//
//	r := reconciler.New(reconciler.Config{}, mapper, pol, logger.Default())
//	r.OnCreatedOrMoved("/media/src/show/ep1.mkv") // OutcomeLinked
//	r.OnModified("/media/src/show/ep1.nfo")       // OutcomeOverwritten
//	r.OnDeleted("/media/src/show/ep1.mkv")        // OutcomeRemoved
package reconciler

import "time"

// Outcome reports what a reconciliation call did to the destination.
type Outcome int

// Reconciliation outcomes.
const (
	OutcomeSkipped     Outcome = iota // Nothing to do (already present, already absent, source gone)
	OutcomeIgnored                    // Extension not mirrored
	OutcomeLinked                     // Symlink created
	OutcomeCopied                     // New copy written
	OutcomeOverwritten                // Existing copy replaced
	OutcomeRemoved                    // Mirror entry removed
	OutcomeFailed                     // Filesystem error, logged
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeLinked:
		return "linked"
	case OutcomeCopied:
		return "copied"
	case OutcomeOverwritten:
		return "overwritten"
	case OutcomeRemoved:
		return "removed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config contains reconciler configuration.
type Config struct {
	// MaxRetries is the number of extra attempts for transient I/O errors.
	// Zero or negative disables retrying.
	MaxRetries int

	// RetryDelay is the initial delay between attempts, grown exponentially.
	// Default: 200ms.
	RetryDelay time.Duration
}
