package debounce

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/media-mirror/pkg/logger"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestShouldProcessSuppressesWithinWindow(t *testing.T) {
	d := New(Config{Window: time.Second}, NewMemoryStore(), logger.Noop())

	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
	assert.False(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(500*time.Millisecond)))
	assert.False(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(999*time.Millisecond)))
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(time.Second)))
}

func TestShouldProcessSuppressedCallDoesNotExtendWindow(t *testing.T) {
	d := New(Config{Window: time.Second}, NewMemoryStore(), logger.Noop())

	require.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
	require.False(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(900*time.Millisecond)))

	// Measured from the last processed event, not the suppressed one.
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(1100*time.Millisecond)))
}

func TestShouldProcessPathsIndependent(t *testing.T) {
	d := New(Config{}, NewMemoryStore(), logger.Noop())

	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
	assert.True(t, d.ShouldProcess("/src/b.nfo", KindPresent, epoch))
	assert.False(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
}

func TestShouldProcessKindChangeNotSuppressed(t *testing.T) {
	d := New(Config{Window: time.Second}, NewMemoryStore(), logger.Noop())

	// An editor saving by rename: the file goes away and comes straight back.
	require.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindRemoved, epoch.Add(10*time.Millisecond)))
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(20*time.Millisecond)))

	// Repeats of the reappearance are still duplicates.
	assert.False(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(30*time.Millisecond)))
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindRemoved, epoch.Add(40*time.Millisecond)))
	assert.False(t, d.ShouldProcess("/src/a.nfo", KindRemoved, epoch.Add(50*time.Millisecond)))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "present", KindPresent.String())
	assert.Equal(t, "removed", KindRemoved.String())
	assert.Equal(t, "unknown", Kind(9).String())
}

func TestShouldProcessClockWentBackwards(t *testing.T) {
	d := New(Config{Window: time.Second}, NewMemoryStore(), logger.Noop())

	require.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(-time.Minute)))
}

func TestShouldProcessConcurrentSamePath(t *testing.T) {
	d := New(Config{Window: time.Minute}, NewMemoryStore(), logger.Noop())

	var (
		passed atomic.Int32
		wg     sync.WaitGroup
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.ShouldProcess("/src/show/ep1.nfo", KindPresent, epoch) {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), passed.Load())
}

func TestDefaults(t *testing.T) {
	d := New(Config{}, NewMemoryStore(), logger.Noop())

	assert.Equal(t, time.Second, d.Window())
	assert.Equal(t, time.Minute, d.config.Retention)
	assert.Equal(t, 30*time.Second, d.config.SweepInterval)
}

func TestSweepEvictsExpired(t *testing.T) {
	store := NewMemoryStore()
	d := New(Config{Window: time.Second, Retention: 10 * time.Second}, store, logger.Noop())

	d.ShouldProcess("/src/old.nfo", KindPresent, epoch)
	d.ShouldProcess("/src/new.nfo", KindPresent, epoch.Add(8*time.Second))
	require.Equal(t, 2, store.Len())

	assert.Equal(t, 1, d.Sweep(epoch.Add(15*time.Second)))
	assert.Equal(t, 1, store.Len())

	_, found, err := store.Get("/src/new.nfo")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	d := New(Config{
		Window:        time.Millisecond,
		Retention:     time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}, store, logger.Noop())

	d.ShouldProcess("/src/a.nfo", KindPresent, time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStoreFailureLetsEventThrough(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	d := New(Config{}, store, logger.Noop())
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
}

func TestBoltStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "debounce.db")

	store, err := OpenBoltStore(dbPath, 0)
	require.NoError(t, err)

	_, found, err := store.Get("/src/a.nfo")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set("/src/a.nfo", Record{At: epoch}))
	require.NoError(t, store.Set("/src/b.nfo", Record{At: epoch.Add(time.Hour), Kind: KindRemoved}))
	assert.Equal(t, 2, store.Len())

	got, found, err := store.Get("/src/a.nfo")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, epoch.Equal(got.At))
	assert.Equal(t, KindPresent, got.Kind)

	removed, err := store.DeleteBefore(epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.NoError(t, store.Close())

	// Records survive reopening.
	reopened, err := OpenBoltStore(dbPath, 0)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, reopened.Close())
	}()

	assert.Equal(t, 1, reopened.Len())
	got, found, err = reopened.Get("/src/b.nfo")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, epoch.Add(time.Hour).Equal(got.At))
	assert.Equal(t, KindRemoved, got.Kind)
}

func TestBoltStoreBacksDebouncer(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "debounce.db"), 0)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, store.Close())
	}()

	d := New(Config{Window: time.Second}, store, logger.Noop())
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch))
	assert.False(t, d.ShouldProcess("/src/a.nfo", KindPresent, epoch.Add(10*time.Millisecond)))
	assert.True(t, d.ShouldProcess("/src/a.nfo", KindRemoved, epoch.Add(20*time.Millisecond)))
}
