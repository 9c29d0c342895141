package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/miner/engine"
	"github.com/atomicobject/fsminer/pkg/miner/provider"
	"github.com/atomicobject/fsminer/pkg/store/sqlite"
	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestPolicy(store miner.Store) *miner.Policy {
	return &miner.Policy{
		FSMTime:    provider.StatModTime,
		StoreMTime: store.MTime,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// TestColdCrawlS1 mirrors §8 scenario S1: two files under one root, both
// extracted depth-first, name-sorted, with a single finished(...) signal.
func TestColdCrawlS1(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0o644))

	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	store := newTestStore(t)
	var ctl *engine.Controller
	var order []string
	extractor := func(u uri.URI, b *miner.Builder, cancel *miner.CancelToken) bool {
		order = append(order, u.Name())
		b.SetFileName(u.Name())
		b.SetIsDirectory(false)
		b.SetLastModified(time.Now())
		b.SetParent(u.Parent())
		ctl.NotifyFile(context.Background(), u, nil)
		return true
	}
	ctl = engine.New(p, newTestPolicy(store), store, 1, extractor)

	finished := make(chan miner.Stats, 1)
	ctl.OnFinished = func(elapsed time.Duration, stats miner.Stats) { finished <- stats }

	ctl.AddRoot(miner.Root{URI: uri.New(root), Recurse: true})
	ctl.Start(context.Background())

	select {
	case stats := <-finished:
		assert.Equal(t, 2, stats.FilesFound)
		assert.Equal(t, 1, stats.DirsFound)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finished")
	}
	require.Len(t, order, 2)
	assert.Equal(t, []string{"a.txt", "b.txt"}, order)
	ctl.Stop()
}

// TestIncrementalUpdateS2 mirrors §8 scenario S2: a file already up to date
// in the store is never re-extracted.
func TestIncrementalUpdateS2(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	store := newTestStore(t)
	mtime, err := provider.StatModTime(uri.New(path))
	require.NoError(t, err)
	u := uri.New(path)
	b := miner.NewBuilder(u)
	b.SetFileName(u.Name())
	b.SetLastModified(mtime)
	b.SetParent(u.Parent())
	require.NoError(t, store.BatchUpdate(context.Background(), b.BatchText()))

	var ctl *engine.Controller
	calls := 0
	extractor := func(u uri.URI, b *miner.Builder, cancel *miner.CancelToken) bool {
		calls++
		ctl.NotifyFile(context.Background(), u, nil)
		return true
	}
	ctl = engine.New(p, newTestPolicy(store), store, 1, extractor)

	finished := make(chan miner.Stats, 1)
	ctl.OnFinished = func(elapsed time.Duration, stats miner.Stats) { finished <- stats }
	ctl.AddRoot(miner.Root{URI: uri.New(root), Recurse: true})
	ctl.Start(context.Background())

	select {
	case stats := <-finished:
		assert.Equal(t, 0, stats.FilesFound)
		assert.Equal(t, 1, stats.FilesIgnored)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finished")
	}
	assert.Equal(t, 0, calls)
	ctl.Stop()
}

// TestMoveRewritesStoreWithoutReExtractionS3 mirrors §8 scenario S3: a known
// directory move rewrites the store transactionally with no extractor call.
func TestMoveRewritesStoreWithoutReExtractionS3(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mtime := time.Now()

	dir := uri.New("/data/sub")
	file := uri.New("/data/sub/b.txt")
	bd := miner.NewBuilder(dir)
	bd.SetFileName(dir.Name())
	bd.SetIsDirectory(true)
	bd.SetLastModified(mtime)
	require.NoError(t, store.BatchUpdate(ctx, bd.BatchText()))
	bf := miner.NewBuilder(file)
	bf.SetFileName(file.Name())
	bf.SetLastModified(mtime)
	bf.SetParent(dir)
	require.NoError(t, store.BatchUpdate(ctx, bf.BatchText()))

	calls := 0
	extractor := func(u uri.URI, b *miner.Builder, cancel *miner.CancelToken) bool {
		calls++
		return false
	}
	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	ctl := engine.New(p, newTestPolicy(store), store, 1, extractor)
	ctl.StatExists = func(u uri.URI) bool { return true }
	ctl.Start(ctx)

	to := uri.New("/data/sub2")
	ctl.Queues.PushMoved(dir, to)

	waitFor(t, time.Second, func() bool {
		known, _ := store.Known(ctx, to)
		return known
	})

	known, err := store.Known(ctx, dir)
	require.NoError(t, err)
	assert.False(t, known)
	descendants, err := store.Descendants(ctx, to)
	require.NoError(t, err)
	require.Len(t, descendants, 1)
	assert.Equal(t, uri.New("/data/sub2/b.txt"), descendants[0])
	assert.Equal(t, 0, calls)
	ctl.Stop()
}

// TestDeleteDuringExtractionS4 mirrors §8 scenario S4: a deletion arriving
// while an extraction is in flight trips that extraction's cancel token,
// and the store ends without the URI once the deletion drains.
func TestDeleteDuringExtractionS4(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	u := uri.New(path)

	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	store := newTestStore(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	notified := make(chan struct{})
	var cancelled bool
	var ctl *engine.Controller
	// The extractor accepts and completes asynchronously, so the dispatch
	// loop stays free to drain the deletion while the extraction is in flight.
	extractor := func(uu uri.URI, b *miner.Builder, cancel *miner.CancelToken) bool {
		close(entered)
		go func() {
			<-release
			cancelled = cancel.Cancelled()
			ctl.NotifyFile(context.Background(), uu, &miner.ErrCancelled{URI: string(uu)})
			close(notified)
		}()
		return true
	}
	ctl = engine.New(p, newTestPolicy(store), store, 1, extractor)
	ctl.Start(context.Background())
	ctl.Queues.PushUpdated(u)

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("extractor never invoked")
	}

	ctl.Queues.PushDeleted(u)
	time.Sleep(50 * time.Millisecond) // let the delete branch observe the in-flight entry
	close(release)
	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("extractor never notified")
	}

	waitFor(t, time.Second, func() bool {
		known, _ := store.Known(context.Background(), u)
		return !known
	})
	assert.True(t, cancelled)
	ctl.Stop()
}

// TestPoolLimitNeverExceeded is invariant 1 from §8: |InFlight| <= pool_limit
// under a burst of synthetic creates.
func TestPoolLimitNeverExceeded(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, uri.New(root).Name()+string(rune('a'+i))+".txt"), []byte("x"), 0o644))
	}
	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	store := newTestStore(t)
	var ctl *engine.Controller
	maxSeen := 0
	extractor := func(u uri.URI, b *miner.Builder, cancel *miner.CancelToken) bool {
		if n := ctl.Pool.Len(); n > maxSeen {
			maxSeen = n
		}
		b.SetFileName(u.Name())
		ctl.NotifyFile(context.Background(), u, nil)
		return true
	}
	ctl = engine.New(p, newTestPolicy(store), store, 2, extractor)
	finished := make(chan miner.Stats, 1)
	ctl.OnFinished = func(elapsed time.Duration, stats miner.Stats) { finished <- stats }
	ctl.AddRoot(miner.Root{URI: uri.New(root), Recurse: true})
	ctl.Start(context.Background())

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for finished")
	}
	assert.LessOrEqual(t, maxSeen, 2)
	ctl.Stop()
}

// TestRemoveRootCancelsInFlightAndPurgesQueue mirrors §8 invariant 5 / S6: no
// further extraction starts under a removed root, and queued entries for it
// are purged.
func TestRemoveRootCancelsInFlightAndPurgesQueue(t *testing.T) {
	root := t.TempDir()
	p, err := provider.NewLocal()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	store := newTestStore(t)
	var ctl *engine.Controller
	entered := make(chan uri.URI, 1)
	release := make(chan struct{})
	cancelled := make(chan bool, 1)
	extractor := func(u uri.URI, b *miner.Builder, cancel *miner.CancelToken) bool {
		entered <- u
		<-release
		cancelled <- cancel.Cancelled()
		ctl.NotifyFile(context.Background(), u, &miner.ErrCancelled{URI: string(u)})
		return true
	}
	ctl = engine.New(p, newTestPolicy(store), store, 1, extractor)
	ctl.Start(context.Background())

	rootURI := uri.New(root)
	inFlightURI := uri.Join(rootURI, "inflight.txt")
	queuedURI := uri.Join(rootURI, "queued.txt")
	ctl.Queues.PushCreated(inFlightURI)

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("extractor never invoked")
	}
	ctl.Queues.PushCreated(queuedURI)

	ctl.RemoveRoot(rootURI)
	close(release)
	select {
	case c := <-cancelled:
		assert.True(t, c)
	case <-time.After(time.Second):
		t.Fatal("in-flight extraction never completed")
	}

	waitFor(t, time.Second, func() bool { return ctl.Queues.Pending() == 0 })
	assert.True(t, ctl.Pool.Len() == 0 || ctl.Pool.Len() == 1)
	ctl.Stop()
}
