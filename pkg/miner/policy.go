package miner

import (
	"context"
	"time"

	"github.com/atomicobject/fsminer/pkg/uri"
)

// Predicate is a single filter hook. Multiple predicates of the same kind
// are combined with OR, reproducing the source's BOOLEAN__OBJECT signal
// accumulator without the signal machinery.
type Predicate func(u uri.URI) bool

// ContentsPredicate is consulted once a directory's full child list is
// known, per §4.3's check-directory-contents hook. Only consulted for
// descendants, never for the first entry into a root (see design notes).
type ContentsPredicate func(parent uri.URI, children []uri.URI) bool

// MTimeLookup answers "what mtime does the store have for this URI", used
// by should_change_index. ok is false when the store has no record.
type MTimeLookup func(ctx context.Context, u uri.URI) (mtime time.Time, ok bool, err error)

// StatLookup answers the filesystem's current mtime for a URI.
type StatLookup func(u uri.URI) (mtime time.Time, err error)

// Policy implements the stateless predicate set consulted by the
// controller and crawler: should_check, should_change_index, and
// should_process = should_check AND should_change_index.
type Policy struct {
	FileChecks      []Predicate
	DirChecks       []Predicate
	MonitorChecks   []Predicate
	ContentsChecks  []ContentsPredicate
	StoreMTime      MTimeLookup
	FSMTime         StatLookup
}

// ShouldCheck ORs the registered per-file or per-directory predicates. An
// empty predicate list means "accept everything" (default-true), matching
// the source's default when no filter has been installed.
func (p *Policy) ShouldCheck(u uri.URI, isDir bool) bool {
	preds := p.FileChecks
	if isDir {
		preds = p.DirChecks
	}
	if len(preds) == 0 {
		return true
	}
	for _, fn := range preds {
		if fn(u) {
			return true
		}
	}
	return false
}

// ShouldMonitor ORs the registered monitor predicates the same way.
func (p *Policy) ShouldMonitor(u uri.URI) bool {
	if len(p.MonitorChecks) == 0 {
		return true
	}
	for _, fn := range p.MonitorChecks {
		if fn(u) {
			return true
		}
	}
	return false
}

// CheckDirectoryContents ORs the registered contents predicates. Called by
// the crawler only for descendant directories, never for a root's first
// entry (an explicit resolution of an ambiguity in the source).
func (p *Policy) CheckDirectoryContents(parent uri.URI, children []uri.URI) bool {
	if len(p.ContentsChecks) == 0 {
		return true
	}
	for _, fn := range p.ContentsChecks {
		if fn(parent, children) {
			return true
		}
	}
	return false
}

// ShouldChangeIndex compares the filesystem's current mtime (rounded to
// seconds UTC) against the store's recorded mtime. It returns false only
// when the store has an exact match; a missing record means true.
func (p *Policy) ShouldChangeIndex(ctx context.Context, u uri.URI) (bool, error) {
	fsTime, err := p.FSMTime(u)
	if err != nil {
		return false, err
	}
	storeTime, ok, err := p.StoreMTime(ctx, u)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return !fsTime.Truncate(time.Second).UTC().Equal(storeTime.Truncate(time.Second).UTC()), nil
}

// ShouldProcess is should_check AND should_change_index.
func (p *Policy) ShouldProcess(ctx context.Context, u uri.URI, isDir bool) (bool, error) {
	if !p.ShouldCheck(u, isDir) {
		return false, nil
	}
	return p.ShouldChangeIndex(ctx, u)
}
