package miner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/google/uuid"
)

// ExtractorFunc is the extractor callback contract from §6:
// process_file(uri, builder, cancel) -> bool. Returning true accepts the
// item; the caller is then obliged to invoke Notify exactly once. Returning
// false declines synchronously and owes no Notify call.
type ExtractorFunc func(uri uri.URI, builder *Builder, cancel *CancelToken) bool

// Pool is the bounded set of in-flight extractions. Admission is checked
// strictly before insertion: |InFlight| < Limit must hold before a new item
// is dispatched (the resolved Open Question in §9).
type Pool struct {
	mu      sync.Mutex
	inFlight map[uri.URI]*InFlight
	Limit   int

	Extractor ExtractorFunc
	Store     Store
	Stats     *Stats
	statsMu   sync.Mutex

	// OnDrained is invoked every time a slot frees up, so the controller
	// can re-arm the queue handler per §4.6's closing sentence.
	OnDrained func()
}

// NewPool returns a pool with the given concurrency ceiling.
func NewPool(limit int, extractor ExtractorFunc, store Store) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{
		inFlight:  make(map[uri.URI]*InFlight),
		Limit:     limit,
		Extractor: extractor,
		Store:     store,
		Stats:     &Stats{},
	}
}

// Len returns the current number of in-flight extractions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// CanAdmit reports whether another item may be dispatched right now.
func (p *Pool) CanAdmit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight) < p.Limit
}

// Dispatch runs dispatch steps 3-5 of §4.6 for a single accepted item. The
// caller (the controller) is responsible for admission control (CanAdmit)
// and for the lock-skip/requeue behavior in step 2. key is the map key used
// by Notify/Cancel (item.URI for Created/Updated/Deleted, item.To for Moved).
func (p *Pool) Dispatch(key uri.URI, item PendingItem) {
	p.mu.Lock()
	if len(p.inFlight) >= p.Limit {
		p.mu.Unlock()
		log.Printf("miner: programming error, dispatch called while pool full for %s", key)
		return
	}
	id := uuid.NewString()
	token := NewCancelToken()
	builder := NewBuilder(key)
	entry := &InFlight{ID: id, URI: key, Item: item, Token: token, Builder: builder, StartedAt: time.Now()}
	p.inFlight[key] = entry
	p.mu.Unlock()

	log.Printf("miner: [%s] dispatching %s", id, key)
	accepted := p.Extractor(key, builder, token)
	if !accepted {
		p.mu.Lock()
		delete(p.inFlight, key)
		p.mu.Unlock()
		log.Printf("miner: [%s] declined synchronously for %s", id, key)
		if p.OnDrained != nil {
			p.OnDrained()
		}
	}
	// If accepted, completion arrives later via Notify, correlated by id.
}

// Retry describes a transient failure the controller should re-queue with
// backoff, per §7's IOError{transient} handling.
type Retry struct {
	Item    PendingItem
	Attempt int
}

// Notify implements dispatch step 6: the host calls this exactly once per
// accepted item, with err nil on success. When the error is a transient IO
// error within its retry budget, Notify returns a non-nil *Retry for the
// controller to re-queue with backoff instead of dropping the item.
func (p *Pool) Notify(ctx context.Context, u uri.URI, err error) *Retry {
	p.mu.Lock()
	entry, ok := p.inFlight[u]
	if !ok {
		p.mu.Unlock()
		log.Printf("miner: critical: notify_file without a matching accepted item for %s", u)
		return nil
	}
	delete(p.inFlight, u)
	p.mu.Unlock()

	defer func() {
		if p.OnDrained != nil {
			p.OnDrained()
		}
	}()

	if err != nil {
		return p.handleError(entry, err)
	}

	if commitErr := p.Store.BatchUpdate(ctx, entry.Builder.BatchText()); commitErr != nil {
		log.Printf("miner: [%s] critical: store batch update failed for %s: %v", entry.ID, u, commitErr)
		p.bumpIgnored(u)
		return nil
	}
	log.Printf("miner: [%s] notified ok for %s", entry.ID, u)
	return nil
}

const maxTransientRetries = 5

func (p *Pool) handleError(entry *InFlight, err error) *Retry {
	u := entry.URI
	id := entry.ID
	switch e := err.(type) {
	case *ErrNotFound:
		log.Printf("miner: [%s] info: not found, dropping %s", id, e.URI)
	case *ErrCancelled:
		// silent
	case *ErrIOTransient:
		attempt := entry.Item.tries + 1
		if attempt <= maxTransientRetries {
			item := entry.Item
			item.tries = attempt
			log.Printf("miner: [%s] warning: transient io error for %s (attempt %d): %v", id, u, attempt, e.Err)
			return &Retry{Item: item, Attempt: attempt}
		}
		log.Printf("miner: [%s] error: permanent io error for %s after %d attempts: %v", id, u, attempt-1, e.Err)
		p.bumpIgnored(u)
	case *ErrIOPermanent:
		log.Printf("miner: [%s] error: permanent io error for %s: %v", id, e.URI, e.Err)
		p.bumpIgnored(u)
	case *ErrStore:
		log.Printf("miner: [%s] critical: store error for %s: %v", id, e.URI, e.Err)
	case *ErrProgramming:
		log.Printf("miner: [%s] critical: programming error (%s) for %s", id, e.Kind, e.URI)
	default:
		log.Printf("miner: [%s] critical: unclassified error for %s: %v", id, u, err)
	}
	return nil
}

func (p *Pool) bumpIgnored(u uri.URI) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.Stats.FilesIgnored++
}

// Cancel trips the cancel token for u, if currently in flight.
func (p *Pool) Cancel(u uri.URI) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.inFlight[u]; ok {
		entry.Token.Cancel()
	}
}

// CancelByPrefix trips every in-flight cancel token whose URI is prefixed by
// root, per the remove_root contract in §4.5/§8 invariant 5.
func (p *Pool) CancelByPrefix(root uri.URI) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for u, entry := range p.inFlight {
		if u.HasPrefix(root) {
			entry.Token.Cancel()
		}
	}
}
