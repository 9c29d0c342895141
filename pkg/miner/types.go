// Package miner implements the mining subsystem: work queues, the
// processing pool, the indexing policy, and the controller state machine
// that ties crawling, monitoring, and store updates together.
package miner

import (
	"time"

	"github.com/atomicobject/fsminer/pkg/uri"
)

// Kind identifies which of the four work queues a PendingItem belongs to.
type Kind int

const (
	Created Kind = iota
	Updated
	Deleted
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// PendingItem is a value held in one of the four work queues.
type PendingItem struct {
	Kind        Kind
	URI         uri.URI
	From        uri.URI // Moved only
	To          uri.URI // Moved only
	IsDirectory bool    // set by the crawler; directories bypass the extractor
	tries       int     // transient-IO retry count, managed by the pool
}

// RootFlags enumerates the monitoring/checking behavior requested for a Root.
type RootFlags struct {
	Monitor      bool
	CheckMTime   bool
	IgnoreHidden bool
}

// Root is a configured starting point for crawling and monitoring.
type Root struct {
	URI     uri.URI
	Recurse bool
	Flags   RootFlags
}

// CancelToken is a one-way flag checked by cooperative tasks to abort early.
type CancelToken struct {
	done chan struct{}
}

// NewCancelToken returns a token that has not yet been tripped.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel trips the token. Safe to call more than once.
func (c *CancelToken) Cancel() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// Cancelled reports whether the token has been tripped.
func (c *CancelToken) Cancelled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token is tripped.
func (c *CancelToken) Done() <-chan struct{} { return c.done }

// InFlight is an extraction that has been accepted but not yet notified
// complete.
type InFlight struct {
	ID        string // correlates Dispatch/Notify log lines across the async extractor callback
	URI       uri.URI
	Item      PendingItem
	Token     *CancelToken
	Builder   *Builder
	StartedAt time.Time
}

// CrawlFrame is transient state threaded through a single crawler run.
type CrawlFrame struct {
	RootURI    uri.URI
	CurrentDir uri.URI
	Recurse    bool
	IgnoreMark bool
}

// Stats holds monotonic counters, both for the current crawl and rolled up
// across the miner's lifetime.
type Stats struct {
	FilesFound   int
	FilesIgnored int
	DirsFound    int
	DirsIgnored  int
}

// Add accumulates b's counters into s.
func (s *Stats) Add(b Stats) {
	s.FilesFound += b.FilesFound
	s.FilesIgnored += b.FilesIgnored
	s.DirsFound += b.DirsFound
	s.DirsIgnored += b.DirsIgnored
}

// Phase is the controller's top-level state.
type Phase int

const (
	NotStarted Phase = iota
	Crawling
	Draining
	Idle
	Paused
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case Crawling:
		return "crawling"
	case Draining:
		return "draining"
	case Idle:
		return "idle"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}
