package miner

import (
	"context"
	"time"

	"github.com/atomicobject/fsminer/pkg/uri"
)

// Row is one record returned by Store.Query.
type Row struct {
	URI          uri.URI
	FileName     string
	LastModified time.Time
	IsDirectory  bool
	ParentURI    uri.URI
}

// Store is the external metadata store sink contract from §6. The core
// issues only one in-flight BatchUpdate at a time per URI; across URIs the
// store may parallelize.
type Store interface {
	// BatchUpdate applies record, an opaque update scoped to uri (produced
	// by Builder.BatchText). The update is idempotent: applying it twice
	// has the same effect as applying it once.
	BatchUpdate(ctx context.Context, record string) error

	// MTime answers the store's recorded last-modified time for u, used by
	// ShouldChangeIndex. ok is false when the store has no record.
	MTime(ctx context.Context, u uri.URI) (mtime time.Time, ok bool, err error)

	// Known reports whether the store has any record for u at all,
	// consulted by the move algorithm's "store does not know from" check.
	Known(ctx context.Context, u uri.URI) (bool, error)

	// Descendants returns every URI the store has recorded with parentURI
	// under root (recursively), used by the move algorithm's recursive URI
	// rewrite.
	Descendants(ctx context.Context, root uri.URI) ([]uri.URI, error)

	// Remove deletes the graph for u and every descendant URI.
	Remove(ctx context.Context, u uri.URI) error

	// Rename rewrites from's URI (and every descendant's URI) to to,
	// applying the suffix-preserving scheme from §4.7 step 3.
	Rename(ctx context.Context, from, to uri.URI) error

	Close() error
}
