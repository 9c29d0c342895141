package miner

import (
	"sync"

	"github.com/atomicobject/fsminer/pkg/uri"
)

// fifo is a simple ordered slice-backed queue keyed by URI for O(1)
// membership checks and O(n) removal (queue depths in this domain are small
// relative to the crawl, and removal is rare relative to push/pop).
type fifo struct {
	order []uri.URI
	items map[uri.URI]PendingItem
}

func newFifo() *fifo {
	return &fifo{items: make(map[uri.URI]PendingItem)}
}

func (f *fifo) push(key uri.URI, it PendingItem) {
	if _, ok := f.items[key]; !ok {
		f.order = append(f.order, key)
	}
	f.items[key] = it
}

func (f *fifo) remove(key uri.URI) (PendingItem, bool) {
	it, ok := f.items[key]
	if !ok {
		return PendingItem{}, false
	}
	delete(f.items, key)
	for i, k := range f.order {
		if k == key {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return it, true
}

func (f *fifo) has(key uri.URI) bool {
	_, ok := f.items[key]
	return ok
}

func (f *fifo) pop() (PendingItem, bool) {
	if len(f.order) == 0 {
		return PendingItem{}, false
	}
	key := f.order[0]
	f.order = f.order[1:]
	it := f.items[key]
	delete(f.items, key)
	return it, true
}

func (f *fifo) pushTail(key uri.URI, it PendingItem) {
	delete(f.items, key)
	for i, k := range f.order {
		if k == key {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	f.push(key, it)
}

func (f *fifo) len() int { return len(f.order) }

// removeByPrefix removes every entry whose key (or, for Moved, from/to) has
// the given URI as a prefix, returning how many were removed.
func (f *fifo) removeByPrefix(root uri.URI) int {
	removed := 0
	kept := f.order[:0:0]
	for _, k := range f.order {
		it := f.items[k]
		match := k.HasPrefix(root)
		if it.Kind == Moved {
			match = it.From.HasPrefix(root) || it.To.HasPrefix(root)
		}
		if match {
			delete(f.items, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	f.order = kept
	return removed
}

// Queues holds the four ordered work queues D, C, U, M and implements the
// dedup-on-enqueue table from the component design.
type Queues struct {
	mu sync.Mutex
	d  *fifo
	c  *fifo
	u  *fifo
	m  *fifo
}

// NewQueues returns an empty set of work queues.
func NewQueues() *Queues {
	return &Queues{d: newFifo(), c: newFifo(), u: newFifo(), m: newFifo()}
}

// PushCreated applies the Created(u) dedup rule: if u is queued in Updated,
// remove it there first (Created wins).
func (q *Queues) PushCreated(u uri.URI) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.u.remove(u)
	q.c.push(u, PendingItem{Kind: Created, URI: u})
}

// PushUpdated applies the Updated(u) dedup rule: a no-op if u is already
// queued in Created or Updated.
func (q *Queues) PushUpdated(u uri.URI) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.c.has(u) || q.u.has(u) {
		return
	}
	q.u.push(u, PendingItem{Kind: Updated, URI: u})
}

// PushDeleted applies the Deleted(u) dedup rule: remove any Created/Updated
// entry for u, then push to D.
func (q *Queues) PushDeleted(u uri.URI) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.c.remove(u)
	q.u.remove(u)
	q.d.push(u, PendingItem{Kind: Deleted, URI: u})
}

// PushMoved pushes a single Moved entry keyed by the destination URI, and
// purges any D/C/U entry for either endpoint.
func (q *Queues) PushMoved(from, to uri.URI) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, u := range []uri.URI{from, to} {
		q.d.remove(u)
		q.c.remove(u)
		q.u.remove(u)
	}
	q.m.push(to, PendingItem{Kind: Moved, From: from, To: to})
}

// RequeueTail re-pushes an item to the tail of its own kind's queue, used
// for the lock-skip yield and the transient-IO backoff retry.
func (q *Queues) RequeueTail(it PendingItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch it.Kind {
	case Created:
		q.c.pushTail(it.URI, it)
	case Updated:
		q.u.pushTail(it.URI, it)
	case Deleted:
		q.d.pushTail(it.URI, it)
	case Moved:
		q.m.pushTail(it.To, it)
	}
}

// Next pops the next item honoring strict drain priority D -> C -> U -> M.
func (q *Queues) Next() (PendingItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it, ok := q.d.pop(); ok {
		return it, true
	}
	if it, ok := q.c.pop(); ok {
		return it, true
	}
	if it, ok := q.u.pop(); ok {
		return it, true
	}
	if it, ok := q.m.pop(); ok {
		return it, true
	}
	return PendingItem{}, false
}

// Empty reports whether all four queues are empty.
func (q *Queues) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.d.len() == 0 && q.c.len() == 0 && q.u.len() == 0 && q.m.len() == 0
}

// Pending returns the total number of queued items across all four queues.
func (q *Queues) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.d.len() + q.c.len() + q.u.len() + q.m.len()
}

// PopDeleted pops the next Deleted item, if any, bypassing drain priority.
// The controller drains D unconditionally ahead of everything else.
func (q *Queues) PopDeleted() (PendingItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.d.pop()
}

// PopCreated pops the next Created item, if any.
func (q *Queues) PopCreated() (PendingItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.c.pop()
}

// PopUpdated pops the next Updated item, if any.
func (q *Queues) PopUpdated() (PendingItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.u.pop()
}

// PopMoved pops the next Moved item, if any.
func (q *Queues) PopMoved() (PendingItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.m.pop()
}

// LenCreated reports how many items are queued in C.
func (q *Queues) LenCreated() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.c.len()
}

// LenUpdated reports how many items are queued in U.
func (q *Queues) LenUpdated() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.u.len()
}

// RemoveByRoot purges every entry equal to or prefixed by root, across all
// four queues, returning the total removed.
func (q *Queues) RemoveByRoot(root uri.URI) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.d.removeByPrefix(root)
	n += q.c.removeByPrefix(root)
	n += q.u.removeByPrefix(root)
	n += q.m.removeByPrefix(root)
	return n
}
