package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/0xmhha/media-mirror/pkg/logger"
)

// fileState is what the poller remembers about one path.
type fileState struct {
	size    int64
	modTime time.Time
	isDir   bool
}

// pollWatcher implements Watcher by diffing periodic snapshots.
type pollWatcher struct {
	*core
	root     string
	snapshot map[string]fileState
}

// NewPoll creates a polling watcher.
func NewPoll(cfg Config, log logger.Logger) Watcher {
	cfg = cfg.withDefaults()

	log.Info("file watcher created",
		"backend", "poll",
		"interval", cfg.PollInterval)

	return &pollWatcher{
		core: newCore(cfg, log),
	}
}

// Start implements Watcher.Start.
func (w *pollWatcher) Start(ctx context.Context, root string) error {
	if err := w.begin(); err != nil {
		return err
	}

	root, err := validateRoot(root)
	if err != nil {
		w.abort()
		return err
	}

	snap, err := takeSnapshot(root)
	if err != nil {
		w.abort()
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}
	w.root = root
	w.snapshot = snap

	w.logger.Info("watcher started",
		"root", root,
		"entries", len(snap))

	go w.loop(ctx)
	return nil
}

// Close implements Watcher.Close.
func (w *pollWatcher) Close() error {
	if w.shutdown() {
		w.logger.Info("watcher closed")
	}
	return nil
}

func (w *pollWatcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("event processing stopped", "reason", "context cancelled")
			return

		case <-w.stopChan:
			w.logger.Info("event processing stopped", "reason", "stop signal")
			return

		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll takes a snapshot and emits the differences to the previous one.
func (w *pollWatcher) poll(ctx context.Context) {
	next, err := takeSnapshot(w.root)
	if err != nil {
		w.handleError(err)
		return
	}
	w.recordSuccess()

	for _, ev := range diffSnapshots(w.snapshot, next, time.Now()) {
		w.emit(ctx, ev)
	}
	w.snapshot = next
}

// takeSnapshot records every entry below root, excluding root itself.
func takeSnapshot(root string) (map[string]fileState, error) {
	snap := make(map[string]fileState)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			// Entries that vanish mid-walk are settled by the next poll.
			return nil
		}
		if p == root {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		snap[p] = fileState{
			size:    info.Size(),
			modTime: info.ModTime(),
			isDir:   d.IsDir(),
		}
		return nil
	})

	return snap, err
}

// diffSnapshots turns two snapshots into events: deletions first, then
// creations, then modifications, each sorted by path.
func diffSnapshots(prev, next map[string]fileState, now time.Time) []Event {
	var deleted, created, modified []Event

	for p, old := range prev {
		if _, ok := next[p]; !ok {
			deleted = append(deleted, Event{Path: p, Op: OpDeleted, IsDir: old.isDir, Timestamp: now})
		}
	}

	for p, cur := range next {
		old, ok := prev[p]
		switch {
		case !ok:
			created = append(created, Event{Path: p, Op: OpCreated, IsDir: cur.isDir, Timestamp: now})
		case old.isDir != cur.isDir:
			// Replaced by an entry of the other kind.
			deleted = append(deleted, Event{Path: p, Op: OpDeleted, IsDir: old.isDir, Timestamp: now})
			created = append(created, Event{Path: p, Op: OpCreated, IsDir: cur.isDir, Timestamp: now})
		case !cur.isDir && (old.size != cur.size || !old.modTime.Equal(cur.modTime)):
			modified = append(modified, Event{Path: p, Op: OpModified, Timestamp: now})
		}
	}

	for _, group := range [][]Event{deleted, created, modified} {
		sort.Slice(group, func(i, j int) bool { return group[i].Path < group[j].Path })
	}

	events := make([]Event, 0, len(deleted)+len(created)+len(modified))
	events = append(events, deleted...)
	events = append(events, created...)
	return append(events, modified...)
}
