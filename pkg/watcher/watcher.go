package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/media-mirror/pkg/logger"
)

// moveWindow is how soon after a rename a create is reported as a move.
const moveWindow = 50 * time.Millisecond

// New creates the backend selected by cfg.CompatibilityMode.
func New(cfg Config, log logger.Logger) (Watcher, error) {
	if cfg.CompatibilityMode {
		return NewPoll(cfg, log), nil
	}
	return NewNotify(cfg, log)
}

// core holds the lifecycle state shared by both backends.
type core struct {
	logger logger.Logger
	config Config

	events chan Event
	errors chan error

	mu       sync.Mutex
	running  bool
	closed   bool
	stopChan chan struct{}
	done     chan struct{}

	// Circuit breaker state.
	failureCount int
}

func newCore(cfg Config, log logger.Logger) *core {
	return &core{
		logger:   log,
		config:   cfg,
		events:   make(chan Event, cfg.EventBuffer),
		errors:   make(chan error, 10),
		stopChan: make(chan struct{}),
	}
}

// begin marks the watcher running. It fails if closed or already running.
func (c *core) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrWatcherClosed
	}
	if c.running {
		return ErrAlreadyStarted
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.done = make(chan struct{})
	return nil
}

// abort undoes begin when Start fails before the loop is launched.
func (c *core) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	close(c.done)
}

// Events implements Watcher.Events.
func (c *core) Events() <-chan Event {
	return c.events
}

// Errors implements Watcher.Errors.
func (c *core) Errors() <-chan error {
	return c.errors
}

// Stop implements Watcher.Stop.
func (c *core) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrWatcherClosed
	}
	if !c.running {
		c.mu.Unlock()
		return ErrNotStarted
	}
	close(c.stopChan)
	c.running = false
	done := c.done
	c.mu.Unlock()

	<-done
	c.logger.Info("watcher stopped")
	return nil
}

// shutdown stops the loop if running, waits for it and closes the channels.
// It reports false when the watcher was already closed.
func (c *core) shutdown() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	if c.running {
		close(c.stopChan)
		c.running = false
	}
	done := c.done
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	close(c.events)
	close(c.errors)
	return true
}

// emit delivers ev unless the watcher is stopping.
func (c *core) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-c.stopChan:
	case <-ctx.Done():
	}
}

// recordSuccess resets the circuit breaker.
func (c *core) recordSuccess() {
	c.mu.Lock()
	c.failureCount = 0
	c.mu.Unlock()
}

// handleError reports err, opening the circuit breaker after too many
// consecutive failures.
func (c *core) handleError(err error) {
	c.mu.Lock()
	c.failureCount++
	count := c.failureCount
	c.mu.Unlock()

	c.logger.Error("watcher backend error",
		"error", err,
		"failure_count", count)

	if count >= c.config.CircuitBreakerThreshold {
		c.logger.Error("circuit breaker opened",
			"threshold", c.config.CircuitBreakerThreshold)
		err = ErrCircuitBreakerOpen
	}

	select {
	case c.errors <- err:
	default:
		c.logger.Warn("error channel full, dropping error")
	}
}

// notifyWatcher implements Watcher using fsnotify.
type notifyWatcher struct {
	*core
	fsw *fsnotify.Watcher

	// Directories currently watched; only touched by the event loop after Start.
	dirs map[string]struct{}

	lastRename time.Time
}

// NewNotify creates an fsnotify-backed watcher.
func NewNotify(cfg Config, log logger.Logger) (Watcher, error) {
	cfg = cfg.withDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &notifyWatcher{
		core: newCore(cfg, log),
		fsw:  fsw,
		dirs: make(map[string]struct{}),
	}

	log.Info("file watcher created", "backend", "fsnotify")
	return w, nil
}

// Start implements Watcher.Start.
func (w *notifyWatcher) Start(ctx context.Context, root string) error {
	if err := w.begin(); err != nil {
		return err
	}

	root, err := validateRoot(root)
	if err != nil {
		w.abort()
		return err
	}

	if err := w.addRecursive(root); err != nil {
		w.abort()
		return fmt.Errorf("failed to add path %s: %w", root, err)
	}

	w.logger.Info("watcher started",
		"root", root,
		"directories", len(w.dirs))

	go w.processEvents(ctx)
	return nil
}

// Close implements Watcher.Close.
func (w *notifyWatcher) Close() error {
	if !w.shutdown() {
		return nil
	}

	if err := w.fsw.Close(); err != nil {
		w.logger.Error("failed to close fsnotify watcher", "error", err)
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info("watcher closed")
	return nil
}

// processEvents handles events from fsnotify.
func (w *notifyWatcher) processEvents(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("event processing stopped", "reason", "context cancelled")
			return

		case <-w.stopChan:
			w.logger.Info("event processing stopped", "reason", "stop signal")
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				w.logger.Warn("fsnotify events channel closed")
				return
			}
			w.recordSuccess()
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.logger.Warn("fsnotify errors channel closed")
				return
			}
			w.handleError(err)
		}
	}
}

// handleEvent normalizes one fsnotify event.
//
// fsnotify reports the two halves of a move separately: Rename for the old
// name and Create for the new one. The old name is reported as deleted and
// a create closely following a rename as moved.
func (w *notifyWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	now := time.Now()
	path := event.Name

	switch {
	case event.Has(fsnotify.Create):
		op := OpCreated
		if now.Sub(w.lastRename) < moveWindow {
			op = OpMoved
		}

		info, err := os.Lstat(path)
		if err != nil {
			// Gone again before we looked.
			w.logger.Debug("created path vanished", "path", path, "error", err)
			return
		}
		if info.IsDir() {
			w.emit(ctx, Event{Path: path, Op: op, IsDir: true, Timestamp: now})
			w.adoptDirectory(ctx, path)
			return
		}
		w.emit(ctx, Event{Path: path, Op: op, Timestamp: now})

	case event.Has(fsnotify.Write):
		w.emit(ctx, Event{Path: path, Op: OpModified, IsDir: w.isDir(path), Timestamp: now})

	case event.Has(fsnotify.Remove):
		isDir := w.forgetDirectory(path)
		w.emit(ctx, Event{Path: path, Op: OpDeleted, IsDir: isDir, Timestamp: now})

	case event.Has(fsnotify.Rename):
		w.lastRename = now
		isDir := w.forgetDirectory(path)
		w.emit(ctx, Event{Path: path, Op: OpDeleted, IsDir: isDir, Timestamp: now})

	default:
		// Chmod carries no content change.
	}
}

// adoptDirectory watches a directory that appeared after Start and reports
// the files already inside it, which were moved or copied in together with
// the directory and produce no events of their own.
func (w *notifyWatcher) adoptDirectory(ctx context.Context, dir string) {
	if err := w.addRecursive(dir); err != nil {
		w.logger.Warn("failed to watch new directory", "path", dir, "error", err)
	}

	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error { // nolint:errcheck
		if err != nil || p == dir {
			return nil
		}
		w.emit(ctx, Event{Path: p, Op: OpCreated, IsDir: d.IsDir(), Timestamp: time.Now()})
		return nil
	})
}

// addRecursive adds a path and all subdirectories to the watcher.
func (w *notifyWatcher) addRecursive(root string) error {
	if err := w.fsw.Add(root); err != nil {
		return fmt.Errorf("failed to add path: %w", err)
	}
	w.dirs[root] = struct{}{}
	w.logger.Debug("added watch path", "path", root)

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("error walking path",
				"path", p,
				"error", err)
			return nil // Skip but continue walking.
		}

		if !d.IsDir() || p == root {
			return nil
		}

		if addErr := w.fsw.Add(p); addErr != nil {
			w.logger.Warn("failed to add subdirectory",
				"path", p,
				"error", addErr)
			return nil // Skip but continue walking.
		}
		w.dirs[p] = struct{}{}

		w.logger.Debug("added watch subdirectory", "path", p)
		return nil
	})
}

// forgetDirectory drops dir and everything below it from the watch set.
// It reports whether dir was a watched directory.
func (w *notifyWatcher) forgetDirectory(dir string) bool {
	if _, ok := w.dirs[dir]; !ok {
		return false
	}

	prefix := dir + string(filepath.Separator)
	for p := range w.dirs {
		if p == dir || len(p) > len(prefix) && p[:len(prefix)] == prefix {
			delete(w.dirs, p)
			// The kernel drops watches of removed directories itself;
			// renamed ones must be removed explicitly.
			_ = w.fsw.Remove(p) // nolint:errcheck
		}
	}
	return true
}

func (w *notifyWatcher) isDir(path string) bool {
	_, ok := w.dirs[path]
	return ok
}

// validateRoot returns the absolute form of root if it is an existing directory.
func validateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPath, abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, abs)
	}
	return abs, nil
}
