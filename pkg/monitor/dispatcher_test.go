package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/media-mirror/pkg/debounce"
	"github.com/0xmhha/media-mirror/pkg/logger"
	"github.com/0xmhha/media-mirror/pkg/pathmap"
	"github.com/0xmhha/media-mirror/pkg/policy"
	"github.com/0xmhha/media-mirror/pkg/reconciler"
	"github.com/0xmhha/media-mirror/pkg/watcher"
)

// mockWatcher implements the watcher.Watcher interface for testing.
type mockWatcher struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	root     string
	events   chan watcher.Event
	errors   chan error
	startErr error
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{
		events: make(chan watcher.Event, 10),
		errors: make(chan error, 10),
	}
}

func (m *mockWatcher) Start(ctx context.Context, root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	m.root = root
	return nil
}

func (m *mockWatcher) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockWatcher) Close() error {
	close(m.events)
	close(m.errors)
	return nil
}

func (m *mockWatcher) Events() <-chan watcher.Event {
	return m.events
}

func (m *mockWatcher) Errors() <-chan error {
	return m.errors
}

func (m *mockWatcher) Root() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

func (m *mockWatcher) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// mockReconciler records the calls it receives.
type mockReconciler struct {
	mu      sync.Mutex
	calls   []string
	outcome reconciler.Outcome
}

func (m *mockReconciler) record(kind, path string) reconciler.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, kind+" "+path)
	return m.outcome
}

func (m *mockReconciler) OnCreatedOrMoved(path string) reconciler.Outcome {
	return m.record("create", path)
}

func (m *mockReconciler) OnMoved(path string) reconciler.Outcome {
	return m.record("move", path)
}

func (m *mockReconciler) OnModified(path string) reconciler.Outcome {
	return m.record("modify", path)
}

func (m *mockReconciler) OnDeleted(path string) reconciler.Outcome {
	return m.record("delete", path)
}

func (m *mockReconciler) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.calls...)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newDispatcher(t *testing.T, cfg Config, w watcher.Watcher, r Reconciler) (*Dispatcher, *fakeClock) {
	t.Helper()

	d := debounce.New(debounce.Config{Window: time.Second}, debounce.NewMemoryStore(), logger.Noop())
	m, err := New(cfg, w, d, r, logger.Noop())
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	return m, clock
}

func TestNewRejectsLockShards(t *testing.T) {
	d := debounce.New(debounce.Config{}, debounce.NewMemoryStore(), logger.Noop())

	for _, shards := range []int{3, -2, 12} {
		_, err := New(Config{LockShards: shards}, newMockWatcher(), d, &mockReconciler{}, logger.Noop())
		assert.ErrorIs(t, err, ErrInvalidConfig, "shards=%d", shards)
	}

	m, err := New(Config{}, newMockWatcher(), d, &mockReconciler{}, logger.Noop())
	require.NoError(t, err)
	assert.Len(t, m.locks, 1)
}

func TestDispatchRoutesByOp(t *testing.T) {
	rec := &mockReconciler{outcome: reconciler.OutcomeLinked}
	m, _ := newDispatcher(t, Config{}, newMockWatcher(), rec)

	m.Dispatch(watcher.Event{Path: "/src/a.mkv", Op: watcher.OpCreated})
	m.Dispatch(watcher.Event{Path: "/src/b.mkv", Op: watcher.OpMoved})
	m.Dispatch(watcher.Event{Path: "/src/c.nfo", Op: watcher.OpModified})
	m.Dispatch(watcher.Event{Path: "/src/d.mkv", Op: watcher.OpDeleted})

	assert.Equal(t, []string{
		"create /src/a.mkv",
		"move /src/b.mkv",
		"modify /src/c.nfo",
		"delete /src/d.mkv",
	}, rec.Calls())
	assert.Equal(t, int64(4), m.Stats().Dispatched)
}

func TestDispatchDropsDirectories(t *testing.T) {
	rec := &mockReconciler{}
	m, _ := newDispatcher(t, Config{}, newMockWatcher(), rec)

	outcome := m.Dispatch(watcher.Event{Path: "/src/show", Op: watcher.OpCreated, IsDir: true})

	assert.Equal(t, reconciler.OutcomeSkipped, outcome)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, int64(0), m.Stats().Dispatched)
}

func TestDispatchUnknownOpSkipped(t *testing.T) {
	rec := &mockReconciler{}
	m, _ := newDispatcher(t, Config{}, newMockWatcher(), rec)

	assert.Equal(t, reconciler.OutcomeSkipped, m.Dispatch(watcher.Event{Path: "/src/a.mkv", Op: watcher.Op(99)}))
	assert.Empty(t, rec.Calls())
}

func TestDispatchSuppressesDuplicates(t *testing.T) {
	rec := &mockReconciler{outcome: reconciler.OutcomeCopied}
	m, clock := newDispatcher(t, Config{}, newMockWatcher(), rec)

	ev := watcher.Event{Path: "/src/show/ep1.nfo", Op: watcher.OpModified}
	assert.Equal(t, reconciler.OutcomeCopied, m.Dispatch(ev))

	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, reconciler.OutcomeSkipped, m.Dispatch(ev))

	clock.Advance(time.Second)
	assert.Equal(t, reconciler.OutcomeCopied, m.Dispatch(ev))

	assert.Len(t, rec.Calls(), 2)
	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Suppressed)
	assert.Equal(t, int64(2), stats.Dispatched)
}

func TestDispatchPresenceChangeNotSuppressed(t *testing.T) {
	rec := &mockReconciler{outcome: reconciler.OutcomeCopied}
	m, clock := newDispatcher(t, Config{}, newMockWatcher(), rec)

	m.Dispatch(watcher.Event{Path: "/src/a.nfo", Op: watcher.OpCreated})
	clock.Advance(10 * time.Millisecond)
	m.Dispatch(watcher.Event{Path: "/src/a.nfo", Op: watcher.OpDeleted})
	clock.Advance(10 * time.Millisecond)
	m.Dispatch(watcher.Event{Path: "/src/a.nfo", Op: watcher.OpMoved})
	clock.Advance(10 * time.Millisecond)
	m.Dispatch(watcher.Event{Path: "/src/a.nfo", Op: watcher.OpModified})

	assert.Equal(t, []string{
		"create /src/a.nfo",
		"delete /src/a.nfo",
		"move /src/a.nfo",
	}, rec.Calls())
	assert.Equal(t, int64(1), m.Stats().Suppressed)
}

func TestDispatchCountsFailures(t *testing.T) {
	rec := &mockReconciler{outcome: reconciler.OutcomeFailed}
	m, _ := newDispatcher(t, Config{}, newMockWatcher(), rec)

	m.Dispatch(watcher.Event{Path: "/src/a.mkv", Op: watcher.OpCreated})

	assert.Equal(t, int64(1), m.Stats().Failed)
}

func TestDispatchConcurrentDuplicatesReconcileOnce(t *testing.T) {
	for _, shards := range []int{1, 8} {
		rec := &mockReconciler{outcome: reconciler.OutcomeLinked}
		m, _ := newDispatcher(t, Config{LockShards: shards}, newMockWatcher(), rec)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Dispatch(watcher.Event{Path: "/src/show/ep1.mkv", Op: watcher.OpCreated})
			}()
		}
		wg.Wait()

		assert.Len(t, rec.Calls(), 1, "shards=%d", shards)
		assert.Equal(t, int64(15), m.Stats().Suppressed, "shards=%d", shards)
	}
}

func TestLockForStable(t *testing.T) {
	m, _ := newDispatcher(t, Config{LockShards: 16}, newMockWatcher(), &mockReconciler{})

	assert.Same(t, m.lockFor("/src/a.mkv"), m.lockFor("/src/a.mkv"))
}

func TestStartStop(t *testing.T) {
	w := newMockWatcher()
	rec := &mockReconciler{outcome: reconciler.OutcomeLinked}
	m, _ := newDispatcher(t, Config{SourceRoot: "/media/src"}, w, rec)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, "/media/src", w.Root())
	assert.ErrorIs(t, m.Start(context.Background()), ErrDispatcherRunning)

	w.events <- watcher.Event{Path: "/media/src/ep1.mkv", Op: watcher.OpCreated}
	w.errors <- errors.New("backend hiccup")

	assert.Eventually(t, func() bool {
		return len(rec.Calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop())
	m.Wait()

	assert.True(t, w.Stopped())
	assert.Equal(t, int64(1), m.Stats().Received)
	assert.ErrorIs(t, m.Stop(), ErrDispatcherNotRunning)
}

func TestGoJoinedByWait(t *testing.T) {
	m, _ := newDispatcher(t, Config{}, newMockWatcher(), &mockReconciler{})

	assert.ErrorIs(t, m.Go(func(context.Context) {}), ErrDispatcherNotRunning)

	require.NoError(t, m.Start(context.Background()))

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, m.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}))
	<-started

	require.NoError(t, m.Stop())
	m.Wait()

	assert.True(t, finished.Load())
}

func TestStartWatcherError(t *testing.T) {
	w := newMockWatcher()
	w.startErr = watcher.ErrInvalidPath
	m, _ := newDispatcher(t, Config{SourceRoot: "/missing"}, w, &mockReconciler{})

	err := m.Start(context.Background())
	assert.ErrorIs(t, err, watcher.ErrInvalidPath)
	assert.ErrorIs(t, m.Stop(), ErrDispatcherNotRunning)
}

func TestWatcherClosedEndsLoop(t *testing.T) {
	w := newMockWatcher()
	m, _ := newDispatcher(t, Config{}, w, &mockReconciler{})

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, w.Close())

	// The debounce sweep still runs until Stop.
	require.NoError(t, m.Stop())
	m.Wait()
}

// newMirror returns source and destination roots and a reconciler
// mirroring .mkv files as links and .nfo files as copies.
func newMirror(t *testing.T) (src, dst string, rec *reconciler.Reconciler) {
	t.Helper()

	base := t.TempDir()
	src = filepath.Join(base, "src")
	dst = filepath.Join(base, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "show"), 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))

	mapper, err := pathmap.New(src, dst)
	require.NoError(t, err)
	pol, err := policy.New([]string{".mkv", ".mp4"}, []string{".nfo"})
	require.NoError(t, err)
	return src, dst, reconciler.New(reconciler.Config{}, mapper, pol, logger.Noop())
}

func readMirror(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// TestMirrorScenario follows a show being added to the library: the video
// is linked, its metadata copied, and an edit to the metadata propagated.
func TestMirrorScenario(t *testing.T) {
	src, dst, rec := newMirror(t)
	m, clock := newDispatcher(t, Config{SourceRoot: src}, newMockWatcher(), rec)

	video := filepath.Join(src, "show", "ep1.mkv")
	require.NoError(t, os.WriteFile(video, []byte("video"), 0o644))
	assert.Equal(t, reconciler.OutcomeLinked, m.Dispatch(watcher.Event{Path: video, Op: watcher.OpCreated}))

	target, err := os.Readlink(filepath.Join(dst, "show", "ep1.mkv"))
	require.NoError(t, err)
	assert.Equal(t, video, target)

	meta := filepath.Join(src, "show", "ep1.nfo")
	require.NoError(t, os.WriteFile(meta, []byte("<title>One</title>"), 0o644))
	assert.Equal(t, reconciler.OutcomeCopied, m.Dispatch(watcher.Event{Path: meta, Op: watcher.OpCreated}))

	// The write that follows the create is the same logical change.
	assert.Equal(t, reconciler.OutcomeSkipped, m.Dispatch(watcher.Event{Path: meta, Op: watcher.OpModified}))

	clock.Advance(5 * time.Second)
	require.NoError(t, os.WriteFile(meta, []byte("<title>Pilot</title>"), 0o644))
	assert.Equal(t, reconciler.OutcomeOverwritten, m.Dispatch(watcher.Event{Path: meta, Op: watcher.OpModified}))

	assert.Equal(t, "<title>Pilot</title>", readMirror(t, filepath.Join(dst, "show", "ep1.nfo")))

	info, err := os.Lstat(filepath.Join(dst, "show", "ep1.nfo"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

// TestMirrorDeleteThenRecreate covers a save that moves the old file away
// and puts the new one in place within the debounce window.
func TestMirrorDeleteThenRecreate(t *testing.T) {
	src, dst, rec := newMirror(t)
	m, clock := newDispatcher(t, Config{SourceRoot: src}, newMockWatcher(), rec)

	meta := filepath.Join(src, "show", "ep1.nfo")
	mirror := filepath.Join(dst, "show", "ep1.nfo")
	require.NoError(t, os.WriteFile(meta, []byte("old"), 0o644))
	require.Equal(t, reconciler.OutcomeCopied, m.Dispatch(watcher.Event{Path: meta, Op: watcher.OpCreated}))

	clock.Advance(5 * time.Second)
	require.NoError(t, os.Remove(meta))
	assert.Equal(t, reconciler.OutcomeRemoved, m.Dispatch(watcher.Event{Path: meta, Op: watcher.OpDeleted}))

	clock.Advance(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(meta, []byte("new"), 0o644))
	assert.Equal(t, reconciler.OutcomeCopied, m.Dispatch(watcher.Event{Path: meta, Op: watcher.OpMoved}))

	assert.Equal(t, "new", readMirror(t, mirror))
}

// TestMirrorRenameOverCopy covers a metadata editor writing a temporary
// file and renaming it over the existing one.
func TestMirrorRenameOverCopy(t *testing.T) {
	src, dst, rec := newMirror(t)
	m, clock := newDispatcher(t, Config{SourceRoot: src}, newMockWatcher(), rec)

	meta := filepath.Join(src, "show", "ep1.nfo")
	mirror := filepath.Join(dst, "show", "ep1.nfo")
	require.NoError(t, os.WriteFile(meta, []byte("old"), 0o644))
	require.Equal(t, reconciler.OutcomeCopied, m.Dispatch(watcher.Event{Path: meta, Op: watcher.OpCreated}))

	clock.Advance(5 * time.Second)
	tmp := filepath.Join(src, "show", ".ep1.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0o644))
	require.NoError(t, os.Rename(tmp, meta))

	assert.Equal(t, reconciler.OutcomeSkipped, m.Dispatch(watcher.Event{Path: tmp, Op: watcher.OpDeleted}))
	assert.Equal(t, reconciler.OutcomeOverwritten, m.Dispatch(watcher.Event{Path: meta, Op: watcher.OpMoved}))

	assert.Equal(t, "new", readMirror(t, mirror))
}
