// Package engine implements the MinerFS controller from §4.7: the state
// machine that owns the queues, the pool, the crawler, and every configured
// root, and drives them with the throttle-paced queue handler.
//
// It lives in its own package, not pkg/miner, because the crawler already
// imports pkg/miner (for Policy, Root, PendingItem) -- a controller type
// living inside pkg/miner and holding a *crawler.Crawler would close an
// import cycle. Composing one level up is the idiomatic way out.
package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/miner/crawler"
	"github.com/atomicobject/fsminer/pkg/miner/monitor"
	"github.com/atomicobject/fsminer/pkg/miner/provider"
	"github.com/atomicobject/fsminer/pkg/uri"
)

// MaxInterval is the queue handler's slowest cadence, reached at throttle=1.0.
const MaxInterval = 10 * time.Millisecond

const (
	backoffBase = 100 * time.Millisecond
	backoffCap  = 10 * time.Second
)

// Controller is the MinerFS state machine. It owns the queues, the pool, the
// monitor-backed provider, and the crawler, and drives them to completion.
type Controller struct {
	Provider  provider.DataProvider
	Policy    *miner.Policy
	Queues    *miner.Queues
	Pool      *miner.Pool
	Store     miner.Store
	Crawler   *crawler.Crawler

	// StatExists reports whether a path still exists on disk, consulted by
	// the move algorithm's "did the destination vanish" check. Overridable
	// for tests.
	StatExists func(u uri.URI) bool

	// IsLocked reports whether a path is locked/temporary and should be
	// skipped and requeued, per §4.2/§4.6 step 2. Defaults to
	// monitor.IsLockedPath.
	IsLocked func(u uri.URI) bool

	// OnFinished is invoked once per crawl-to-idle transition, with the
	// elapsed wall time and this crawl's stats.
	OnFinished func(elapsed time.Duration, stats miner.Stats)

	// OnProgress is invoked at most once per wall-second from the dispatch
	// loop, once a crawl has found items, with the (items_total-items_pending)/items_total ratio from §4.7.
	OnProgress func(progress float64)

	mu          sync.Mutex
	phase       miner.Phase
	pausedPhase miner.Phase
	throttle    float64

	pendingRoots []miner.Root
	roots        []miner.Root

	crawlStarted  time.Time
	crawlStats    miner.Stats
	lifetimeStats miner.Stats
	itemsTotal    int
	lastProgress  time.Time
	lastProgressV float64

	loopStarted bool
	wake        chan struct{}
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// New returns a Controller ready to have roots added via AddRoot.
func New(p provider.DataProvider, policy *miner.Policy, store miner.Store, poolLimit int, extractor miner.ExtractorFunc) *Controller {
	pool := miner.NewPool(poolLimit, extractor, store)
	c := &Controller{
		Provider: p,
		Policy:   policy,
		Queues:   miner.NewQueues(),
		Pool:     pool,
		Store:    store,
		Crawler:  crawler.New(p, policy),
		phase:    miner.NotStarted,
		throttle: 0,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	c.StatExists = func(u uri.URI) bool {
		_, err := os.Stat(u.Path())
		return err == nil
	}
	c.IsLocked = func(u uri.URI) bool { return monitor.IsLockedPath(u.Path()) }
	pool.OnDrained = c.signalWake
	c.Crawler.MonitorDirectory = func(u uri.URI) bool { return policy.ShouldMonitor(u) }
	return c
}

func (c *Controller) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Phase reports the controller's current top-level state.
func (c *Controller) Phase() miner.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Stats returns this crawl's counters and the lifetime rollup.
func (c *Controller) Stats() (crawl, lifetime miner.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crawlStats, c.lifetimeStats
}

// SetThrottle clamps and installs a new throttle, re-pacing the queue
// handler without dropping any queued work.
func (c *Controller) SetThrottle(t float64) {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	c.mu.Lock()
	c.throttle = t
	c.mu.Unlock()
	c.signalWake()
}

// Start transitions NotStarted -> Crawling and begins working through any
// roots already added. It is a no-op if already started.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.loopStarted {
		c.mu.Unlock()
		return
	}
	c.loopStarted = true
	if c.phase == miner.NotStarted {
		c.phase = miner.Crawling
	}
	c.mu.Unlock()

	go c.forwardEvents()
	go c.runLoop(ctx)
	c.signalWake()
}

// Pause suspends dispatch and the crawler at any phase, remembering the
// phase to resume into.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.phase == miner.Paused {
		c.mu.Unlock()
		return
	}
	c.pausedPhase = c.phase
	c.phase = miner.Paused
	c.mu.Unlock()
	c.Crawler.Pause()
}

// Resume releases a paused controller back into its prior phase.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.phase != miner.Paused {
		c.mu.Unlock()
		return
	}
	c.phase = c.pausedPhase
	c.mu.Unlock()
	c.Crawler.Resume()
	c.signalWake()
}

// Stop cancels the in-flight extractions and purges the queued entries under
// every configured root, stops the crawler, and moves the controller to
// Idle. In-flight or queued entries outside all configured roots are left
// as they are.
func (c *Controller) Stop() {
	c.Crawler.Stop()
	for _, r := range c.allRootURIs() {
		c.Pool.CancelByPrefix(r)
		c.Queues.RemoveByRoot(r)
	}
	c.mu.Lock()
	c.phase = miner.Idle
	c.pendingRoots = nil
	c.roots = nil
	c.mu.Unlock()
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}

func (c *Controller) allRootURIs() []uri.URI {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uri.URI, 0, len(c.roots))
	for _, r := range c.roots {
		out = append(out, r.URI)
	}
	return out
}

// AddRoot registers a new root. If the controller is idle or draining, this
// moves it back to Crawling and the root is crawled on the next tick; before
// Start, the root is crawled once Start runs; if a crawl is already
// underway, the root is queued behind the one in progress.
func (c *Controller) AddRoot(root miner.Root) {
	c.mu.Lock()
	c.roots = append(c.roots, root)
	c.pendingRoots = append(c.pendingRoots, root)
	wasIdleOrDone := c.phase == miner.Idle || c.phase == miner.Draining
	if c.phase == miner.NotStarted {
		c.phase = miner.Crawling
	} else if wasIdleOrDone {
		c.phase = miner.Crawling
	}
	c.mu.Unlock()
	if root.Flags.Monitor {
		_ = c.Provider.MonitorAdd(root.URI)
	}
	c.signalWake()
}

// RemoveRoot purges every queue entry and in-flight extraction under root,
// drops the monitor, and forgets the root. Invariant 5 from §8: no further
// extraction starts for any URI with this prefix after this call returns.
func (c *Controller) RemoveRoot(root uri.URI) {
	c.Pool.CancelByPrefix(root)
	c.Queues.RemoveByRoot(root)
	_ = c.Provider.MonitorRemove(root, true, false)

	c.mu.Lock()
	kept := c.roots[:0:0]
	for _, r := range c.roots {
		if !r.URI.HasPrefix(root) {
			kept = append(kept, r)
		}
	}
	c.roots = kept
	pendingKept := c.pendingRoots[:0:0]
	for _, r := range c.pendingRoots {
		if !r.URI.HasPrefix(root) {
			pendingKept = append(pendingKept, r)
		}
	}
	c.pendingRoots = pendingKept
	c.mu.Unlock()
	c.signalWake()
}

// forwardEvents drains the provider's event channel into the work queues,
// applying the monitor-move discovery rule from §4.2/§9: an unmonitored
// source is treated as discovery of the destination rather than a move.
func (c *Controller) forwardEvents() {
	for {
		select {
		case <-c.stopCh:
			return
		case e, ok := <-c.Provider.Events():
			if !ok {
				return
			}
			c.handleProviderEvent(e)
			c.signalWake()
		}
	}
}

func (c *Controller) handleProviderEvent(e provider.Event) {
	switch e.Kind {
	case provider.ItemCreated:
		c.Queues.PushCreated(e.URI)
	case provider.ItemUpdated, provider.ItemAttributeUpdated:
		c.Queues.PushUpdated(e.URI)
	case provider.ItemDeleted:
		c.Pool.Cancel(e.URI)
		c.Queues.PushDeleted(e.URI)
	case provider.ItemMoved:
		if !e.IsSourceMonitored {
			if e.IsDirectory {
				c.AddRoot(miner.Root{URI: e.To, Recurse: true, Flags: miner.RootFlags{Monitor: true}})
			} else {
				c.Queues.PushCreated(e.To)
			}
			return
		}
		c.Queues.PushMoved(e.From, e.To)
	}
}

// runLoop is the single dispatch loop: on each wake (either the throttle
// timer or an external signal) it drains as much as the pool and drain
// priority allow, then re-arms per §4.7's throttle rule.
func (c *Controller) runLoop(ctx context.Context) {
	defer close(c.doneCh)
	c.crawlNextRoot(ctx)
	for {
		delay := c.nextDelay()
		timer := time.NewTimer(delay)
		select {
		case <-c.stopCh:
			timer.Stop()
			return
		case <-c.wake:
			timer.Stop()
		case <-timer.C:
		}
		if c.Phase() == miner.Paused {
			continue
		}
		c.tick(ctx)
	}
}

func (c *Controller) nextDelay() time.Duration {
	c.mu.Lock()
	t := c.throttle
	c.mu.Unlock()
	if t <= 0 {
		return 0
	}
	return time.Duration(float64(MaxInterval) * t)
}

// crawlNextRoot pops the next pending root (if any) and runs the crawler
// over it synchronously on this goroutine, then folds its items into the
// queues and stats. When no roots remain, the controller moves to Draining.
func (c *Controller) crawlNextRoot(ctx context.Context) {
	c.mu.Lock()
	if len(c.pendingRoots) == 0 {
		if c.phase == miner.Crawling {
			c.phase = miner.Draining
		}
		c.mu.Unlock()
		c.signalWake()
		return
	}
	root := c.pendingRoots[0]
	c.pendingRoots = c.pendingRoots[1:]
	c.crawlStarted = time.Now()
	c.crawlStats = miner.Stats{}
	c.lastProgressV = 0
	c.lastProgress = time.Time{}
	c.mu.Unlock()

	if root.Flags.Monitor {
		_ = c.Provider.MonitorAdd(root.URI)
	}

	res, err := c.Crawler.Start(ctx, root)
	if err != nil {
		log.Printf("miner: error: crawl of %s aborted: %v", root.URI, err)
	}
	for _, it := range res.Items {
		if it.IsDirectory {
			// Directories carry no content for the extractor to read; the
			// crawler already decided they changed, so commit the minimal
			// record directly instead of queueing a dispatch.
			c.commitDirectory(ctx, it.URI)
			continue
		}
		c.Queues.PushCreated(it.URI)
	}

	c.mu.Lock()
	c.crawlStats.FilesFound += res.FilesFound
	c.crawlStats.FilesIgnored += res.FilesIgnored
	c.crawlStats.DirsFound += res.DirsFound
	c.crawlStats.DirsIgnored += res.DirsIgnored
	c.itemsTotal += res.FilesFound + res.DirsFound
	c.mu.Unlock()

	if len(c.pendingRootsSnapshot()) == 0 {
		c.mu.Lock()
		c.phase = miner.Draining
		c.mu.Unlock()
	}
	c.signalWake()
}

func (c *Controller) pendingRootsSnapshot() []miner.Root {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingRoots
}

// tick runs one dispatch pass: drain D unconditionally, then C and U gated
// on pool admission, then M once C and U are empty, per §4.5/§4.6's strict
// drain priority.
func (c *Controller) tick(ctx context.Context) {
	for {
		if c.Phase() == miner.Paused {
			return
		}
		if it, ok := c.Queues.PopDeleted(); ok {
			c.handleDeleted(ctx, it)
			continue
		}
		if c.Queues.LenCreated() > 0 {
			if !c.Pool.CanAdmit() {
				break
			}
			it, _ := c.Queues.PopCreated()
			if c.dispatchOrRequeue(it) {
				break
			}
			continue
		}
		if c.Queues.LenUpdated() > 0 {
			if !c.Pool.CanAdmit() {
				break
			}
			it, _ := c.Queues.PopUpdated()
			if c.dispatchOrRequeue(it) {
				break
			}
			continue
		}
		if it, ok := c.Queues.PopMoved(); ok {
			c.handleMove(ctx, it)
			continue
		}
		break
	}
	c.maybeAdvanceOrCrawl(ctx)
	c.reportProgress()
}

// dispatchOrRequeue applies the locked-file skip from §4.6 step 2. It
// returns true if the item was requeued and the tick should yield.
func (c *Controller) dispatchOrRequeue(it miner.PendingItem) bool {
	if c.IsLocked(it.URI) {
		c.Queues.RequeueTail(it)
		return true
	}
	c.Pool.Dispatch(it.URI, it)
	return false
}

// commitDirectory writes the minimal stat-only record for a directory the
// crawler flagged as changed, bypassing the extractor entirely: a directory
// has no content to read, only a fileName/mtime/parent to persist.
func (c *Controller) commitDirectory(ctx context.Context, u uri.URI) {
	mtime, err := c.Policy.FSMTime(u)
	if err != nil {
		log.Printf("miner: warning: stat failed for directory %s: %v", u, err)
		return
	}
	b := miner.NewBuilder(u)
	b.SetFileName(u.Name())
	b.SetIsDirectory(true)
	b.SetLastModified(mtime)
	b.SetParent(u.Parent())
	if err := c.Store.BatchUpdate(ctx, b.BatchText()); err != nil {
		log.Printf("miner: critical: store batch update failed for directory %s: %v", u, err)
	}
}

// handleDeleted applies §4.6/S4: a deletion has no content left to extract,
// so it goes straight to the store rather than through the extractor.
func (c *Controller) handleDeleted(ctx context.Context, it miner.PendingItem) {
	c.Pool.Cancel(it.URI)
	if err := c.Store.Remove(ctx, it.URI); err != nil {
		log.Printf("miner: critical: store remove failed for %s: %v", it.URI, err)
	}
}

// handleMove implements the move algorithm from §4.7.
func (c *Controller) handleMove(ctx context.Context, it miner.PendingItem) {
	known, err := c.Store.Known(ctx, it.From)
	if err != nil {
		log.Printf("miner: critical: store known-check failed for %s: %v", it.From, err)
		return
	}
	if !known {
		// Store step 1: fall through to Created(to) semantics.
		c.Queues.PushCreated(it.To)
		return
	}
	if !c.StatExists(it.To) {
		// Store step 2: destination vanished, fall through to Deleted(from).
		c.Queues.PushDeleted(it.From)
		return
	}
	// Store step 3: Store.Rename performs the fileName rewrite and the
	// recursive descendant URI rewrite transactionally in one call, so
	// there is no separate outstanding-lookup counter to drive to zero
	// here -- the await below is that synchronization point.
	if err := c.Store.Rename(ctx, it.From, it.To); err != nil {
		log.Printf("miner: critical: store rename failed for %s -> %s: %v", it.From, it.To, err)
	}
	// A watched directory that moved must have its watch transferred too,
	// or the moved subtree silently stops being monitored.
	if c.Provider.IsMonitored(it.From) {
		if err := c.Provider.MonitorMove(it.From, it.To); err != nil {
			log.Printf("miner: warning: monitor transfer failed for %s -> %s: %v", it.From, it.To, err)
		}
	}
}

// maybeAdvanceOrCrawl moves Crawling->Draining->Idle once all work for the
// current root (and the queues/pool) has drained, or starts the next
// pending root.
func (c *Controller) maybeAdvanceOrCrawl(ctx context.Context) {
	c.mu.Lock()
	phase := c.phase
	hasPending := len(c.pendingRoots) > 0
	c.mu.Unlock()

	if phase == miner.Crawling && hasPending {
		c.crawlNextRoot(ctx)
		return
	}
	if phase != miner.Draining {
		return
	}
	if !c.Queues.Empty() || c.Pool.Len() > 0 {
		return
	}
	c.mu.Lock()
	elapsed := time.Since(c.crawlStarted)
	stats := c.crawlStats
	c.lifetimeStats.Add(stats)
	c.phase = miner.Idle
	c.itemsTotal = 0
	c.mu.Unlock()

	if c.OnFinished != nil {
		c.OnFinished(elapsed, stats)
	}
}

// reportProgress emits (items_total-items_pending)/items_total at most once
// per wall-second, per §4.7's closing paragraph.
func (c *Controller) reportProgress() {
	if c.OnProgress == nil {
		return
	}
	c.mu.Lock()
	total := c.itemsTotal
	last := c.lastProgress
	c.mu.Unlock()
	if total == 0 {
		return
	}
	if time.Since(last) < time.Second {
		return
	}
	pending := c.Queues.Pending()
	progress := float64(total-pending) / float64(total)
	if progress < 0 {
		progress = 0
	}
	c.mu.Lock()
	if progress < c.lastProgressV {
		progress = c.lastProgressV
	}
	c.lastProgressV = progress
	c.lastProgress = time.Now()
	c.mu.Unlock()
	c.OnProgress(progress)
}

// NotifyFile forwards an extractor completion to the pool, and on a
// transient-IO retry signal re-queues the item with exponential backoff per
// §7 (100ms base, 10s cap, 5 tries).
func (c *Controller) NotifyFile(ctx context.Context, u uri.URI, err error) {
	retry := c.Pool.Notify(ctx, u, err)
	if retry == nil {
		return
	}
	delay := backoffBase << uint(retry.Attempt-1)
	if delay > backoffCap {
		delay = backoffCap
	}
	time.AfterFunc(delay, func() {
		c.Queues.RequeueTail(retry.Item)
		c.signalWake()
	})
}
