package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/0xmhha/media-mirror/pkg/logger"
)

// Debouncer decides whether a notification should be processed.
type Debouncer struct {
	config Config
	store  Store
	logger logger.Logger

	// mu makes check-and-update atomic per call.
	mu sync.Mutex
}

// New creates a Debouncer backed by store.
func New(cfg Config, store Store, log logger.Logger) *Debouncer {
	if cfg.Window == 0 {
		cfg.Window = time.Second
	}
	if cfg.Retention == 0 {
		cfg.Retention = 60 * cfg.Window
	}
	if cfg.Retention < cfg.Window {
		cfg.Retention = cfg.Window
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}

	return &Debouncer{
		config: cfg,
		store:  store,
		logger: log,
	}
}

// Window returns the suppression window.
func (d *Debouncer) Window() time.Duration {
	return d.config.Window
}

// ShouldProcess reports whether a notification of kind for path at now
// should be processed. Only a notification of the same kind as the last
// processed one is suppressed. A suppressed call leaves the record
// untouched, so a steady stream of notifications is let through once per
// window.
//
// Store failures let the notification through: reconciling twice is
// harmless, missing a change is not.
func (d *Debouncer) ShouldProcess(path string, kind Kind, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, found, err := d.store.Get(path)
	if err != nil {
		d.logger.Warn("debounce record lookup failed", "path", path, "error", err)
	} else if found && last.Kind == kind {
		if elapsed := now.Sub(last.At); elapsed >= 0 && elapsed < d.config.Window {
			d.logger.Debug("duplicate notification suppressed",
				"path", path,
				"kind", kind,
				"since_last", elapsed)
			return false
		}
	}

	if err := d.store.Set(path, Record{At: now, Kind: kind}); err != nil {
		d.logger.Warn("debounce record update failed", "path", path, "error", err)
	}
	return true
}

// Sweep evicts records whose last event is older than the retention.
func (d *Debouncer) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed, err := d.store.DeleteBefore(now.Add(-d.config.Retention))
	if err != nil {
		d.logger.Warn("debounce sweep failed", "error", err)
		return removed
	}
	if removed > 0 {
		d.logger.Debug("debounce records evicted",
			"removed", removed,
			"remaining", d.store.Len())
	}
	return removed
}

// Run sweeps periodically until ctx is cancelled.
func (d *Debouncer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.Sweep(now)
		}
	}
}
