package provider

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/atomicobject/fsminer/pkg/miner/monitor"
	"github.com/atomicobject/fsminer/pkg/uri"
)

// Local is the DataProvider implementation over the real filesystem,
// grounded on the teacher's pkg/cache/service.go crawl-then-watch split:
// Begin enumerates with os.ReadDir the way the teacher's initialCrawl walks
// with filepath.WalkDir, and the monitor half is delegated to
// pkg/miner/monitor, itself grounded on the same file's fsnotify watcher.
type Local struct {
	mon    *monitor.Monitor
	events chan Event
	done   chan struct{}
}

// NewLocal constructs a Local provider with its own Monitor.
func NewLocal() (*Local, error) {
	m, err := monitor.New(nil)
	if err != nil {
		return nil, err
	}
	l := &Local{mon: m, events: make(chan Event, 256), done: make(chan struct{})}
	go l.relay()
	return l, nil
}

func (l *Local) relay() {
	defer close(l.events)
	for {
		select {
		case <-l.done:
			return
		case e, ok := <-l.mon.Events():
			if !ok {
				return
			}
			l.events <- translate(e)
		}
	}
}

func translate(e monitor.Event) Event {
	out := Event{
		URI:               e.URI,
		From:              e.From,
		To:                e.To,
		IsDirectory:       e.IsDirectory,
		IsSourceMonitored: e.IsSourceMonitored,
	}
	switch e.Kind {
	case monitor.Created:
		out.Kind = ItemCreated
	case monitor.Updated:
		out.Kind = ItemUpdated
	case monitor.Deleted:
		out.Kind = ItemDeleted
	case monitor.Moved:
		out.Kind = ItemMoved
	}
	return out
}

// dirEnumerator is a synchronous, finite, non-restartable Enumerator over
// one directory's immediate children, sorted byte-wise by name so the
// crawler's depth-first output is deterministic (§4.3).
type dirEnumerator struct {
	parent  uri.URI
	entries []os.DirEntry
	idx     int
}

func (e *dirEnumerator) Next() (FileInfo, bool, error) {
	for e.idx < len(e.entries) {
		ent := e.entries[e.idx]
		e.idx++
		info, err := ent.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue // disappeared between readdir and stat; §7 NotFound
			}
			return FileInfo{}, false, &IOError{Kind: IOTransient, Path: ent.Name(), Err: err}
		}
		return FileInfo{
			URI:         uri.Join(e.parent, ent.Name()),
			IsDirectory: ent.IsDir(),
			ModTime:     info.ModTime(),
			Size:        info.Size(),
		}, true, nil
	}
	return FileInfo{}, false, nil
}

// Begin implements DataProvider.Begin by reading root's immediate children.
// Recursion across an entire tree is the Crawler's job (§4.3); Begin only
// ever enumerates one directory level, matching the source's begin/end
// pairing around a single Enumerator.
func (l *Local) Begin(ctx context.Context, root uri.URI, attributes []string, flags Flags) (Enumerator, error) {
	entries, err := os.ReadDir(root.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &IOError{Kind: IOPermanent, Path: root.Path(), Err: err}
		}
		if os.IsPermission(err) {
			return nil, &IOError{Kind: IOTransient, Path: root.Path(), Err: err}
		}
		return nil, &IOError{Kind: IOPermanent, Path: root.Path(), Err: err}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return &dirEnumerator{parent: root, entries: entries}, nil
}

// End is a no-op for Local: dirEnumerator holds no OS resource beyond the
// already-materialized slice from os.ReadDir.
func (l *Local) End(e Enumerator) error { return nil }

func (l *Local) MonitorAdd(dir uri.URI) error { return l.mon.Add(dir) }

func (l *Local) MonitorRemove(dir uri.URI, recursive, childrenOnly bool) error {
	if childrenOnly {
		return nil
	}
	return l.mon.Remove(dir)
}

func (l *Local) MonitorMove(from, to uri.URI) error {
	if !l.mon.IsMonitored(from) {
		return nil
	}
	if err := l.mon.Remove(from); err != nil {
		return err
	}
	return l.mon.Add(to)
}

func (l *Local) IsMonitored(path uri.URI) bool { return l.mon.IsMonitored(path) }
func (l *Local) MonitorCount() int             { return l.mon.Count() }
func (l *Local) Events() <-chan Event          { return l.events }

func (l *Local) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return l.mon.Close()
}

var _ io.Closer = (*Local)(nil)

// StatModTime is the StatLookup the IndexingPolicy uses to read the
// filesystem's current mtime directly (§4.4), independent of any open
// Enumerator.
func StatModTime(u uri.URI) (time.Time, error) {
	fi, err := os.Stat(u.Path())
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

