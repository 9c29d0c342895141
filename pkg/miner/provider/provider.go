// Package provider implements the DataProvider capability from §4.1: a
// polymorphic enumeration + monitor interface over a root. This package
// ships one implementation, Local, over the real filesystem.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/atomicobject/fsminer/pkg/uri"
)

// Flags is the enumerated flag set from §4.1.
type Flags uint8

const (
	FlagMonitor Flags = 1 << iota
	FlagRecurse
	FlagNoStat
	FlagPriorityHigh
)

// Has reports whether f includes bit.
func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// FileInfo is a single entry yielded lazily by an Enumerator.
type FileInfo struct {
	URI         uri.URI
	IsDirectory bool
	ModTime     time.Time
	Size        int64
}

// ErrNotSupported is returned by operations a DataProvider implementation
// does not offer (e.g. monitoring on a read-only virtual FS).
var ErrNotSupported = errors.New("provider: operation not supported")

// Enumerator yields FileInfo lazily. It is finite and not restartable: once
// Next returns ok=false, the Enumerator is exhausted and must not be reused.
type Enumerator interface {
	Next() (FileInfo, bool, error)
}

// DataProvider is the abstract enumeration + monitor interface over a root
// from §4.1. Implementations may be synchronous or lazy.
type DataProvider interface {
	// Begin starts enumerating root's immediate children under the given
	// flags. attributes is a caller hint (e.g. which stat fields matter)
	// and is advisory only.
	Begin(ctx context.Context, root uri.URI, attributes []string, flags Flags) (Enumerator, error)

	// End releases resources held by an Enumerator obtained from Begin.
	End(e Enumerator) error

	// MonitorAdd installs a watch on dir. Idempotent.
	MonitorAdd(dir uri.URI) error

	// MonitorRemove releases the watch on dir.
	MonitorRemove(dir uri.URI, recursive, childrenOnly bool) error

	// MonitorMove transfers a watch registration from one path to another,
	// used when the controller already knows a directory moved.
	MonitorMove(from, to uri.URI) error

	// IsMonitored reports whether path currently has a watch installed.
	IsMonitored(path uri.URI) bool

	// MonitorCount returns the number of directories currently watched.
	MonitorCount() int

	// Events returns the channel of change notifications. Implementations
	// close it once Close has been called.
	Events() <-chan Event

	// Close releases all resources, including any watches.
	Close() error
}

// EventKind distinguishes the five DataProvider signals from §4.1.
type EventKind int

const (
	ItemCreated EventKind = iota
	ItemUpdated
	ItemAttributeUpdated
	ItemDeleted
	ItemMoved
)

// Event is a single DataProvider signal. From/To are populated only for
// ItemMoved; URI is populated for every other kind.
type Event struct {
	Kind              EventKind
	URI               uri.URI
	From              uri.URI
	To                uri.URI
	IsDirectory       bool
	IsSourceMonitored bool
}

// IOErrorKind distinguishes transient from permanent I/O failures per §7.
type IOErrorKind int

const (
	IOTransient IOErrorKind = iota
	IOPermanent
)

// IOError reports a filesystem failure surfaced by a DataProvider. The core
// never retries these on the provider's behalf (§4.1's closing sentence);
// retry policy lives in the pool (§7).
type IOError struct {
	Kind IOErrorKind
	Path string
	Err  error
}

func (e *IOError) Error() string { return "provider: io error: " + e.Path + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }
