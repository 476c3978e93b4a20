package monitor

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/0xmhha/media-mirror/pkg/debounce"
	"github.com/0xmhha/media-mirror/pkg/logger"
	"github.com/0xmhha/media-mirror/pkg/reconciler"
	"github.com/0xmhha/media-mirror/pkg/watcher"
)

// Dispatcher connects a watcher to the debouncer and the reconciler.
type Dispatcher struct {
	config     Config
	logger     logger.Logger
	watcher    watcher.Watcher
	debouncer  *debounce.Debouncer
	reconciler Reconciler

	locks []sync.Mutex
	now   func() time.Time

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	received   atomic.Int64
	suppressed atomic.Int64
	dispatched atomic.Int64
	failed     atomic.Int64
}

// New creates a dispatcher.
//
// Parameters:
//   - cfg: Dispatcher configuration
//   - w: Watcher delivering source tree events
//   - d: Debouncer filtering duplicate events
//   - r: Reconciler applying the mirror actions
//   - log: Logger instance
//
// Returns:
//   - Configured Dispatcher
//   - Error if LockShards is not a power of two
func New(cfg Config, w watcher.Watcher, d *debounce.Debouncer, r Reconciler, log logger.Logger) (*Dispatcher, error) {
	if cfg.LockShards == 0 {
		cfg.LockShards = 1
	}
	if cfg.LockShards < 0 || cfg.LockShards&(cfg.LockShards-1) != 0 {
		return nil, fmt.Errorf("%w: lock_shards %d is not a power of two", ErrInvalidConfig, cfg.LockShards)
	}

	m := &Dispatcher{
		config:     cfg,
		logger:     log,
		watcher:    w,
		debouncer:  d,
		reconciler: r,
		locks:      make([]sync.Mutex, cfg.LockShards),
		now:        time.Now,
	}

	log.Info("dispatcher created",
		"source", cfg.SourceRoot,
		"lock_shards", cfg.LockShards)

	return m, nil
}

// Start starts the watcher on the source root and begins dispatching its
// events in the background. It returns once the watcher is running.
func (m *Dispatcher) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrDispatcherRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := m.watcher.Start(ctx, m.config.SourceRoot); err != nil {
		cancel()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	m.running = true
	m.ctx = ctx
	m.cancel = cancel

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.processEvents(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.debouncer.Run(ctx)
	}()

	m.logger.Info("dispatcher started", "source", m.config.SourceRoot)
	return nil
}

// Stop stops the watcher subscription and the background goroutines.
// An event being reconciled is allowed to finish; use Wait to join.
func (m *Dispatcher) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrDispatcherNotRunning
	}
	m.running = false

	if err := m.watcher.Stop(); err != nil {
		m.logger.Warn("failed to stop watcher", "error", err)
	}
	m.cancel()

	m.logger.Info("dispatcher stopped")
	return nil
}

// Go runs fn in the background alongside the event loop. fn receives the
// dispatcher's context, which is cancelled by Stop, and is joined by Wait.
func (m *Dispatcher) Go(fn func(ctx context.Context)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrDispatcherNotRunning
	}

	ctx := m.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(ctx)
	}()
	return nil
}

// Wait blocks until the background goroutines, including those started
// with Go, have exited.
func (m *Dispatcher) Wait() {
	m.wg.Wait()
}

// Stats returns the current counters.
func (m *Dispatcher) Stats() Stats {
	return Stats{
		Received:   m.received.Load(),
		Suppressed: m.suppressed.Load(),
		Dispatched: m.dispatched.Load(),
		Failed:     m.failed.Load(),
	}
}

// processEvents handles events and errors from the watcher until the
// context is cancelled or the watcher closes its channels.
func (m *Dispatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-m.watcher.Events():
			if !ok {
				m.logger.Info("watcher events channel closed")
				return
			}
			m.received.Add(1)
			m.Dispatch(event)

		case err, ok := <-m.watcher.Errors():
			if !ok {
				m.logger.Info("watcher errors channel closed")
				return
			}
			m.logger.Error("watcher error", "error", err)
		}
	}
}

// Dispatch handles one event synchronously. Directory events and debounce
// duplicates are dropped with OutcomeSkipped.
func (m *Dispatcher) Dispatch(event watcher.Event) reconciler.Outcome {
	if event.IsDir {
		m.logger.Debug("directory event dropped",
			"path", event.Path,
			"op", event.Op)
		return reconciler.OutcomeSkipped
	}

	lock := m.lockFor(event.Path)
	lock.Lock()
	defer lock.Unlock()

	log := m.logger.With("event_id", uuid.NewString())

	if !m.debouncer.ShouldProcess(event.Path, kindOf(event.Op), m.now()) {
		m.suppressed.Add(1)
		log.Debug("duplicate event suppressed",
			"path", event.Path,
			"op", event.Op)
		return reconciler.OutcomeSkipped
	}

	log.Info("file event",
		"path", event.Path,
		"op", event.Op)

	var outcome reconciler.Outcome
	switch event.Op {
	case watcher.OpCreated:
		outcome = m.reconciler.OnCreatedOrMoved(event.Path)
	case watcher.OpMoved:
		outcome = m.reconciler.OnMoved(event.Path)
	case watcher.OpModified:
		outcome = m.reconciler.OnModified(event.Path)
	case watcher.OpDeleted:
		outcome = m.reconciler.OnDeleted(event.Path)
	default:
		log.Warn("unknown event op", "path", event.Path, "op", event.Op)
		return reconciler.OutcomeSkipped
	}

	m.dispatched.Add(1)
	if outcome == reconciler.OutcomeFailed {
		m.failed.Add(1)
	}

	log.Debug("event reconciled",
		"path", event.Path,
		"outcome", outcome)
	return outcome
}

// kindOf maps an event op to its debounce kind.
func kindOf(op watcher.Op) debounce.Kind {
	if op == watcher.OpDeleted {
		return debounce.KindRemoved
	}
	return debounce.KindPresent
}

// lockFor returns the lock guarding path.
func (m *Dispatcher) lockFor(path string) *sync.Mutex {
	if len(m.locks) == 1 {
		return &m.locks[0]
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(path)) // nolint:errcheck
	return &m.locks[h.Sum32()&uint32(len(m.locks)-1)]
}
