// Package crawler implements the depth-bounded directory walk from §4.3:
// a recursive traversal over a DataProvider that honors per-file/per-dir
// filter callbacks and emits a stream of discovered files/directories plus
// terminal statistics.
package crawler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/miner/provider"
	"github.com/atomicobject/fsminer/pkg/uri"
)

// Result is what Start returns on completion: the finished(...) signal from
// §4.3, carrying the discovered-item queue by value (Go has no ownership
// transfer to enforce "the Crawler keeps no reference after emission", but
// Crawler never retains Items after Start returns).
type Result struct {
	Items           []miner.PendingItem
	WasInterrupted  bool
	DirsFound       int
	DirsIgnored     int
	FilesFound      int
	FilesIgnored    int
}

// Crawler walks one root at a time over a DataProvider.
type Crawler struct {
	Provider provider.DataProvider
	Policy   *miner.Policy

	// MonitorDirectory is consulted per directory; when it returns true the
	// Crawler installs a watch via Provider.MonitorAdd before descending.
	MonitorDirectory func(u uri.URI) bool

	paused  atomic.Bool
	resume  chan struct{}
	stopped atomic.Bool
	mu      sync.Mutex
}

// New returns a Crawler ready to walk roots over p using policy for the
// should_check / should_change_index predicates.
func New(p provider.DataProvider, policy *miner.Policy) *Crawler {
	return &Crawler{Provider: p, Policy: policy, resume: make(chan struct{})}
}

// Pause suspends the walk before its next directory descent.
func (c *Crawler) Pause() { c.paused.Store(true) }

// Resume releases a paused walk.
func (c *Crawler) Resume() {
	if c.paused.CompareAndSwap(true, false) {
		c.mu.Lock()
		close(c.resume)
		c.resume = make(chan struct{})
		c.mu.Unlock()
	}
}

// Stop aborts the current walk; Start returns with WasInterrupted=true.
func (c *Crawler) Stop() { c.stopped.Store(true) }

func (c *Crawler) waitIfPaused(ctx context.Context) bool {
	for c.paused.Load() {
		c.mu.Lock()
		ch := c.resume
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Start walks root depth-first, children sorted byte-wise by name (via the
// Provider's Enumerator ordering), and returns the terminal Result. A
// crawler failure on this root aborts only this root (§7): Start returns
// whatever was discovered so far with WasInterrupted=true.
func (c *Crawler) Start(ctx context.Context, root miner.Root) (Result, error) {
	c.stopped.Store(false)
	res := Result{}
	frame := &miner.CrawlFrame{RootURI: root.URI, CurrentDir: root.URI, Recurse: root.Recurse, IgnoreMark: true}
	err := c.walk(ctx, frame, &res)
	if err != nil || c.stopped.Load() {
		res.WasInterrupted = true
	}
	return res, err
}

// walk enumerates one directory level and recurses into subdirectories,
// threading position and recursion state through a miner.CrawlFrame.
// frame.IgnoreMark is true only for the root's first entry, resolving the
// open question in §9: check-directory-contents is consulted for
// descendants only, never for a root's own first directory.
func (c *Crawler) walk(ctx context.Context, frame *miner.CrawlFrame, res *Result) error {
	if c.stopped.Load() {
		return nil
	}
	if !c.waitIfPaused(ctx) {
		return ctx.Err()
	}

	dir := frame.CurrentDir
	enum, err := c.Provider.Begin(ctx, dir, nil, provider.FlagRecurse)
	if err != nil {
		return err
	}
	defer c.Provider.End(enum)

	var children []provider.FileInfo
	for {
		fi, ok, nerr := enum.Next()
		if nerr != nil {
			return nerr
		}
		if !ok {
			break
		}
		children = append(children, fi)
	}

	childURIs := make([]uri.URI, len(children))
	for i, fi := range children {
		childURIs[i] = fi.URI
	}
	if !frame.IgnoreMark && !c.Policy.CheckDirectoryContents(dir, childURIs) {
		res.DirsIgnored++
		return nil
	}

	var subdirs []provider.FileInfo
	for _, fi := range children {
		if c.stopped.Load() {
			return nil
		}
		if fi.IsDirectory {
			if err := c.visitDir(ctx, fi, res); err != nil {
				return err
			}
			if frame.Recurse {
				subdirs = append(subdirs, fi)
			}
			continue
		}
		c.visitFile(ctx, fi, res)
	}

	for _, d := range subdirs {
		if c.stopped.Load() {
			return nil
		}
		childFrame := &miner.CrawlFrame{RootURI: frame.RootURI, CurrentDir: d.URI, Recurse: frame.Recurse, IgnoreMark: false}
		if err := c.walk(ctx, childFrame, res); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) visitDir(ctx context.Context, fi provider.FileInfo, res *Result) error {
	if !c.Policy.ShouldCheck(fi.URI, true) {
		res.DirsIgnored++
		return nil
	}
	changeIndex, err := c.Policy.ShouldChangeIndex(ctx, fi.URI)
	if err != nil {
		return err
	}
	res.DirsFound++
	if changeIndex {
		res.Items = append(res.Items, miner.PendingItem{Kind: miner.Created, URI: fi.URI, IsDirectory: true})
	}
	// else: ignore_mark per §4.4 -- still walked (by the caller's recursion),
	// just not re-enqueued.
	if c.MonitorDirectory != nil && c.MonitorDirectory(fi.URI) {
		_ = c.Provider.MonitorAdd(fi.URI)
	}
	return nil
}

func (c *Crawler) visitFile(ctx context.Context, fi provider.FileInfo, res *Result) {
	if !c.Policy.ShouldCheck(fi.URI, false) {
		res.FilesIgnored++
		return
	}
	changeIndex, err := c.Policy.ShouldChangeIndex(ctx, fi.URI)
	if err != nil || !changeIndex {
		res.FilesIgnored++
		return
	}
	res.FilesFound++
	res.Items = append(res.Items, miner.PendingItem{Kind: miner.Created, URI: fi.URI})
}
