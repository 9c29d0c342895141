// Package monitor implements the live filesystem watch layer from §4.2:
// coalesced item-{created,updated,deleted,moved} events over a set of
// watched directories, grounded on the teacher's fsnotify-backed cache
// watcher (pkg/cache/service.go in the teacher tree).
package monitor

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/fsnotify/fsnotify"
)

// QuietWindow is the burst-coalescing interval from §4.2: multiple writes
// to the same file within this window collapse to one item-updated, and a
// created+updated pair collapses to item-created.
const QuietWindow = 2 * time.Second

// moveWindow bounds how long a bare "removed" half of a rename waits for a
// matching "created" half before it is reported as a plain deletion. fsnotify
// does not expose the kernel's rename cookie, so pairing is a best-effort
// heuristic on arrival order and timing, not a guarantee (see DESIGN.md).
const moveWindow = 250 * time.Millisecond

// EventKind mirrors provider.EventKind without importing the provider
// package (monitor has no dependency on provider; provider depends on
// monitor instead, to avoid a cycle).
type EventKind int

const (
	Created EventKind = iota
	Updated
	Deleted
	Moved
)

// Event is a single coalesced, de-bounced filesystem change notification.
type Event struct {
	Kind              EventKind
	URI               uri.URI
	From              uri.URI // Moved only
	To                uri.URI // Moved only
	IsDirectory       bool
	IsSourceMonitored bool // Moved only: was From a watched path?
}

// Watcher abstracts the raw OS notification source, exactly the seam the
// teacher cuts in pkg/cache/service.go so tests can inject a fake.
type Watcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsNotifyWatcher struct {
	*fsnotify.Watcher
}

func (f *fsNotifyWatcher) Events() <-chan fsnotify.Event { return f.Watcher.Events }
func (f *fsNotifyWatcher) Errors() <-chan error           { return f.Watcher.Errors }

// lockedPatterns are the locked/temporary file markers from §4.2 skipped at
// emission time.
var lockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.part$`),
	regexp.MustCompile(`\.crdownload$`),
	regexp.MustCompile(`^\.#`),
}

// IsLockedPath reports whether path matches one of the locked/temporary
// file markers from §4.2.
func IsLockedPath(path string) bool {
	base := filepath.Base(path)
	for _, re := range lockedPatterns {
		if re.MatchString(base) {
			return true
		}
	}
	return false
}

// IsDirFunc stats a path to decide whether an event concerns a directory.
// Injectable so tests don't need real directories on disk.
type IsDirFunc func(path string) (isDir bool, exists bool)

// IsLockedFunc reports whether path is currently held open/locked by
// another process, the is_locked() hook from §4.2. Defaults to "never
// locked" since that check is platform-specific and out of scope here.
type IsLockedFunc func(path string) bool

// Monitor owns a directory_uri -> watch mapping and emits coalesced events
// per §4.2.
type Monitor struct {
	watcher        Watcher
	watcherFactory func() (Watcher, error)

	mu      sync.Mutex
	watched map[string]struct{}

	events chan Event

	IsDir    IsDirFunc
	IsLocked IsLockedFunc

	// pending tracks the most recent event per path within the quiet
	// window, for coalescing.
	pendingMu sync.Mutex
	pending   map[string]*pendingEntry

	// pendingRemoves holds unmatched Rename/Remove halves waiting to be
	// paired with a Create within moveWindow.
	removeMu       sync.Mutex
	pendingRemoves []pendingRemove

	closeOnce sync.Once
	done      chan struct{}
}

type pendingEntry struct {
	kind  EventKind
	timer *time.Timer
}

type pendingRemove struct {
	path string
	at   time.Time
}

// New constructs a Monitor. If factory is nil, a real fsnotify.Watcher is
// used.
func New(factory func() (Watcher, error)) (*Monitor, error) {
	if factory == nil {
		factory = func() (Watcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}
			return &fsNotifyWatcher{Watcher: w}, nil
		}
	}
	w, err := factory()
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		watcher:        w,
		watcherFactory: factory,
		watched:        make(map[string]struct{}),
		events:         make(chan Event, 256),
		pending:        make(map[string]*pendingEntry),
		IsDir:          defaultIsDir,
		IsLocked:       func(string) bool { return false },
		done:           make(chan struct{}),
	}
	go m.loop()
	return m, nil
}

// Events returns the channel of coalesced, de-duplicated notifications.
func (m *Monitor) Events() <-chan Event { return m.events }

// Add installs a watch on dir. Idempotent.
func (m *Monitor) Add(dir uri.URI) error {
	path := dir.Path()
	m.mu.Lock()
	if _, ok := m.watched[path]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	if err := m.watcher.Add(path); err != nil {
		return err
	}
	m.mu.Lock()
	m.watched[path] = struct{}{}
	m.mu.Unlock()
	return nil
}

// Remove releases the watch on dir.
func (m *Monitor) Remove(dir uri.URI) error {
	path := dir.Path()
	m.mu.Lock()
	_, ok := m.watched[path]
	delete(m.watched, path)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.watcher.Remove(path)
}

// IsMonitored reports whether path currently has a watch installed.
func (m *Monitor) IsMonitored(path uri.URI) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watched[path.Path()]
	return ok
}

// Count returns the number of directories currently watched.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watched)
}

// Close stops the watch loop and releases the underlying watcher.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		err = m.watcher.Close()
	})
	return err
}

func (m *Monitor) loop() {
	for {
		select {
		case <-m.done:
			return
		case evt, ok := <-m.watcher.Events():
			if !ok {
				return
			}
			m.handleRaw(evt)
		case _, ok := <-m.watcher.Errors():
			if !ok {
				return
			}
			// Watcher errors are dropped here: nothing is emitted on Events
			// for them and no rescan is triggered.
		}
	}
}

func (m *Monitor) handleRaw(evt fsnotify.Event) {
	if IsLockedPath(evt.Name) || m.IsLocked(evt.Name) {
		return
	}
	switch {
	case evt.Op&fsnotify.Create == fsnotify.Create:
		if matched := m.tryPairMove(evt.Name); matched {
			return
		}
		m.coalesce(evt.Name, Created)
	case evt.Op&fsnotify.Write == fsnotify.Write:
		m.coalesce(evt.Name, Updated)
	case evt.Op&fsnotify.Remove == fsnotify.Remove:
		m.recordPendingRemove(evt.Name)
		m.coalesce(evt.Name, Deleted)
	case evt.Op&fsnotify.Rename == fsnotify.Rename:
		m.recordPendingRemove(evt.Name)
		m.coalesce(evt.Name, Deleted)
	}
}

// recordPendingRemove notes a Rename/Remove half so a subsequent Create can
// be paired with it as a move within moveWindow.
func (m *Monitor) recordPendingRemove(path string) {
	m.removeMu.Lock()
	m.pendingRemoves = append(m.pendingRemoves, pendingRemove{path: path, at: time.Now()})
	m.removeMu.Unlock()
}

// tryPairMove looks for an unmatched Rename/Remove within moveWindow and,
// if found, emits a single Moved event instead of a bare Created.
func (m *Monitor) tryPairMove(newPath string) bool {
	m.removeMu.Lock()
	defer m.removeMu.Unlock()
	now := time.Now()
	for i, pr := range m.pendingRemoves {
		if now.Sub(pr.at) > moveWindow {
			continue
		}
		if pr.path == newPath {
			continue
		}
		m.pendingRemoves = append(m.pendingRemoves[:i], m.pendingRemoves[i+1:]...)
		isDir, _ := m.IsDir(newPath)
		wasWatched := m.IsMonitored(uri.New(filepath.Dir(pr.path)))
		m.cancelPending(pr.path)
		m.emit(Event{
			Kind:              Moved,
			From:              uri.New(pr.path),
			To:                uri.New(newPath),
			IsDirectory:       isDir,
			IsSourceMonitored: wasWatched,
		})
		return true
	}
	return false
}

// coalesce applies the quiet-window burst merge from §4.2: a create+update
// pair within the window collapses to Created; repeated updates collapse to
// one Updated, emitted once the window elapses quietly.
func (m *Monitor) coalesce(path string, kind EventKind) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	if entry, ok := m.pending[path]; ok {
		entry.timer.Stop()
		if entry.kind == Created {
			kind = Created // Created always wins within the window.
		}
		entry.kind = kind
		entry.timer = time.AfterFunc(QuietWindow, func() { m.flush(path) })
		return
	}
	entry := &pendingEntry{kind: kind}
	entry.timer = time.AfterFunc(QuietWindow, func() { m.flush(path) })
	m.pending[path] = entry
}

func (m *Monitor) flush(path string) {
	m.pendingMu.Lock()
	entry, ok := m.pending[path]
	if !ok {
		m.pendingMu.Unlock()
		return
	}
	delete(m.pending, path)
	m.pendingMu.Unlock()

	isDir, exists := m.IsDir(path)
	if entry.kind == Deleted && !exists {
		isDir = false
	}
	m.emit(Event{Kind: entry.kind, URI: uri.New(path), IsDirectory: isDir})
}

func (m *Monitor) cancelPending(path string) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if entry, ok := m.pending[path]; ok {
		entry.timer.Stop()
		delete(m.pending, path)
	}
}

func (m *Monitor) emit(e Event) {
	select {
	case m.events <- e:
	case <-m.done:
	}
}

func defaultIsDir(path string) (bool, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, false
	}
	return fi.IsDir(), true
}
