package miner

import (
	"context"

	"github.com/atomicobject/fsminer/pkg/uri"
)

// ReadOnlyStore wraps a Store and turns every write into a no-op, backing
// the `disable_indexing` option from §6: the engine still crawls, monitors,
// and answers should_change_index from whatever the store already holds,
// but never writes a change back to it.
type ReadOnlyStore struct {
	Store
}

// BatchUpdate is a no-op under disable_indexing.
func (ReadOnlyStore) BatchUpdate(ctx context.Context, record string) error { return nil }

// Remove is a no-op under disable_indexing.
func (ReadOnlyStore) Remove(ctx context.Context, u uri.URI) error { return nil }

// Rename is a no-op under disable_indexing.
func (ReadOnlyStore) Rename(ctx context.Context, from, to uri.URI) error { return nil }
