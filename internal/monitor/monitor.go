// Package monitor implements C6: a background filesystem watcher built
// on fsnotify, with per-directory watch registration and a dedicated
// watch-loop goroutine.
package monitor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/diskviz/treemap/pkg/log"
)

var logger = log.For("monitor")

// Kind classifies a filesystem change.
type Kind int

const (
	Created Kind = iota
	Deleted
	Touched
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "Created"
	case Deleted:
		return "Deleted"
	case Touched:
		return "Touched"
	case Renamed:
		return "Renamed"
	default:
		return "Unknown"
	}
}

// FileEvent is one filesystem change, relative to the watched root.
// OldRelativePath is only set for Kind == Renamed, and only when the
// platform let the monitor pair the old name with the new one; an
// empty OldRelativePath on a Renamed event means only the new name is
// known.
type FileEvent struct {
	RelativePath    string
	OldRelativePath string
	Kind            Kind
	Timestamp       time.Time
}

// Callback receives every event the monitor's watch loop produces. It
// runs on the monitor's own goroutine; a slow callback delays draining
// further events, so callers that need to do real work should hand
// off to their own queue (see internal/reconcile).
type Callback func(FileEvent)

// ErrAlreadyActive is returned by Start when the monitor is already
// watching a root.
var ErrAlreadyActive = errors.New("monitor: already active")

// renameGraceWindow bounds how long the monitor waits for a Rename
// event's paired Create (the new name) before giving up and reporting
// the old path as simply Deleted.
const renameGraceWindow = 100 * time.Millisecond

// Monitor owns at most one fsnotify.Watcher and the goroutine draining
// it. The zero value is ready to use.
type Monitor struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	active  bool
}

// Start registers root and every directory beneath it (inotify/kqueue
// offer no recursive watch, so this walks the tree once up front) and
// begins delivering events to cb on a dedicated goroutine. Directories
// created after Start are picked up best-effort: a Create event for a
// directory adds a watch for it too, but a burst of nested mkdirs
// faster than the watch loop can keep up with may still leave a gap,
// per spec.md §4.6's "best-effort" note.
func (m *Monitor) Start(root string, cb Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return ErrAlreadyActive
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // transient I/O error enumerating: skip, best effort
		}
		if d.IsDir() {
			if werr := w.Add(path); werr != nil {
				logger.Warnf("watch %q: %s", path, werr)
			}
		}
		return nil
	})
	if walkErr != nil {
		w.Close()
		return walkErr
	}

	m.watcher = w
	m.done = make(chan struct{})
	m.active = true

	go m.watchLoop(w, root, cb, m.done)
	return nil
}

// Stop signals the watch loop to exit and blocks until it has joined.
// Stopping an inactive monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	w := m.watcher
	done := m.done
	m.active = false
	m.mu.Unlock()

	w.Close()
	<-done
}

func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

type pendingRename struct {
	oldName string
	at      time.Time
}

func (m *Monitor) watchLoop(w *fsnotify.Watcher, root string, cb Callback, done chan struct{}) {
	defer close(done)

	var pending *pendingRename
	emitDeleted := func(name string) {
		if rel, err := filepath.Rel(root, name); err == nil {
			logger.Infof("%s %s", Deleted, rel)
			cb(FileEvent{RelativePath: rel, Kind: Deleted, Timestamp: time.Now()})
		}
	}

	for {
		var timeout <-chan time.Time
		if pending != nil {
			if remaining := renameGraceWindow - time.Since(pending.at); remaining > 0 {
				timeout = time.After(remaining)
			} else {
				emitDeleted(pending.oldName)
				pending = nil
			}
		}

		select {
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Errorf("watch error: %s", err)

		case <-timeout:
			emitDeleted(pending.oldName)
			pending = nil

		case e, ok := <-w.Events:
			if !ok {
				return
			}

			if pending != nil && e.Op&fsnotify.Create != 0 {
				m.completeRename(w, root, pending.oldName, e.Name, cb)
				pending = nil
				continue
			}
			if pending != nil {
				emitDeleted(pending.oldName)
				pending = nil
			}

			if e.Op&fsnotify.Rename != 0 {
				pending = &pendingRename{oldName: e.Name, at: time.Now()}
				continue
			}

			m.handleEvent(w, root, e, cb)
		}
	}
}

func (m *Monitor) completeRename(w *fsnotify.Watcher, root, oldName, newName string, cb Callback) {
	rel, err := filepath.Rel(root, newName)
	if err != nil {
		return
	}
	oldRel, err := filepath.Rel(root, oldName)
	if err != nil {
		oldRel = ""
	}

	if info, statErr := os.Lstat(newName); statErr == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
		if werr := w.Add(newName); werr != nil {
			logger.Warnf("watch %q: %s", newName, werr)
		}
	}

	logger.Infof("%s %s -> %s", Renamed, oldRel, rel)
	cb(FileEvent{RelativePath: rel, OldRelativePath: oldRel, Kind: Renamed, Timestamp: time.Now()})
}

func (m *Monitor) handleEvent(w *fsnotify.Watcher, root string, e fsnotify.Event, cb Callback) {
	rel, err := filepath.Rel(root, e.Name)
	if err != nil {
		return
	}

	var kind Kind
	switch {
	case e.Op&fsnotify.Create != 0:
		kind = Created
		if info, statErr := os.Lstat(e.Name); statErr == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
			if werr := w.Add(e.Name); werr != nil {
				logger.Warnf("watch %q: %s", e.Name, werr)
			}
		}

	case e.Op&fsnotify.Remove != 0:
		kind = Deleted

	case e.Op&(fsnotify.Write|fsnotify.Chmod) != 0:
		kind = Touched

	default:
		return
	}

	logger.Infof("%s %s", kind, rel)
	cb(FileEvent{RelativePath: rel, Kind: kind, Timestamp: time.Now()})
}
