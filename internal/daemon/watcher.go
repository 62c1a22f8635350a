package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openmined/dotsync/internal/queue"
	"github.com/rjeczalik/notify"
)

const rawEventBufferSize = 256

var ErrWatchDirNotExist = errors.New("watch directory does not exist")

// EventKind classifies a filesystem change.
type EventKind int

const (
	EventCreated EventKind = iota
	EventModified
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ChangeEvent is a single observed change below the watched root.
type ChangeEvent struct {
	Path       string
	Kind       EventKind
	ObservedAt time.Time
}

// FilterCallback returns true if the path should be ignored
type FilterCallback func(path string) bool

// FileWatcher reports changes below root, following symlinked directories.
// Paths are reported under root even when the change happened in a
// symlink target.
type FileWatcher struct {
	root      string
	rawEvents chan notify.EventInfo
	events    chan ChangeEvent

	// real directory -> path it is reachable by below root, longest first
	mounts []mount

	filter   FilterCallback
	filterMu sync.RWMutex

	// unbounded so the notify backend never waits on the consumer
	queue *queue.Queue[ChangeEvent]

	done chan struct{}
	wg   sync.WaitGroup
}

type mount struct {
	real    string
	logical string
}

func NewFileWatcher(root string) *FileWatcher {
	return &FileWatcher{
		root:  root,
		queue: queue.New[ChangeEvent](),
		done:  make(chan struct{}),
	}
}

// FilterPaths sets a callback that drops events before they are queued.
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.filterMu.Lock()
	defer fw.filterMu.Unlock()
	fw.filter = callback
}

func (fw *FileWatcher) ignored(path string) bool {
	fw.filterMu.RLock()
	defer fw.filterMu.RUnlock()
	return fw.filter != nil && fw.filter(path)
}

// Events is closed after Stop.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Start begins watching. A missing or unreadable root is returned as
// ErrWatchDirNotExist.
func (fw *FileWatcher) Start(ctx context.Context) error {
	info, err := os.Stat(fw.root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrWatchDirNotExist, fw.root)
	}
	if _, err := os.ReadDir(fw.root); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWatchDirNotExist, fw.root, err)
	}

	realRoot, err := filepath.EvalSymlinks(fw.root)
	if err != nil {
		return fmt.Errorf("resolve watch dir: %w", err)
	}

	fw.rawEvents = make(chan notify.EventInfo, rawEventBufferSize)
	fw.events = make(chan ChangeEvent)

	if err := fw.watch(realRoot, fw.root); err != nil {
		return fmt.Errorf("watch %s: %w", fw.root, err)
	}
	fw.watchLinks(realRoot, fw.root, map[string]bool{realRoot: true})

	slog.Info("file watcher start", "dir", fw.root, "symlinks", len(fw.mounts)-1)

	fw.wg.Add(2)
	go fw.filterEvents(ctx)
	go fw.forwardEvents(ctx)

	return nil
}

func (fw *FileWatcher) watch(real, logical string) error {
	if err := notify.Watch(filepath.Join(real, "..."), fw.rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}
	fw.mounts = append(fw.mounts, mount{real: real, logical: logical})
	sort.SliceStable(fw.mounts, func(i, j int) bool {
		return len(fw.mounts[i].real) > len(fw.mounts[j].real)
	})
	return nil
}

// watchLinks walks realDir and adds a recursive watch for every symlink that
// resolves to a directory outside the trees already watched.
func (fw *FileWatcher) watchLinks(realDir, logicalDir string, visited map[string]bool) {
	_ = filepath.WalkDir(realDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, _ := filepath.Rel(realDir, path)
		logical := filepath.Join(logicalDir, rel)
		if path != realDir && fw.ignored(logical) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			slog.Debug("file watcher dangling symlink", "path", logical)
			return nil
		}
		if info, err := os.Stat(target); err != nil || !info.IsDir() {
			return nil
		}
		if visited[target] || fw.covered(target) {
			return nil
		}
		if fw.encloses(target) {
			slog.Warn("file watcher skipping symlink to an enclosing directory", "path", logical, "target", target)
			return nil
		}
		visited[target] = true

		if err := fw.watch(target, logical); err != nil {
			slog.Warn("file watcher failed to watch symlink target", "path", logical, "target", target, "error", err)
			return nil
		}
		slog.Debug("file watcher following symlink", "path", logical, "target", target)
		fw.watchLinks(target, logical, visited)
		return nil
	})
}

// covered reports whether real is already inside a watched tree.
func (fw *FileWatcher) covered(real string) bool {
	for _, m := range fw.mounts {
		if real == m.real || strings.HasPrefix(real, m.real+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// encloses reports whether dir contains a watched tree. Watching it would
// pull in everything around that tree.
func (fw *FileWatcher) encloses(dir string) bool {
	prefix := dir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	for _, m := range fw.mounts {
		if m.real == dir || strings.HasPrefix(m.real, prefix) {
			return true
		}
	}
	return false
}

// logicalPath maps a path reported by notify back below root.
func (fw *FileWatcher) logicalPath(real string) string {
	for _, m := range fw.mounts {
		if real == m.real {
			return m.logical
		}
		if strings.HasPrefix(real, m.real+string(filepath.Separator)) {
			return filepath.Join(m.logical, strings.TrimPrefix(real, m.real+string(filepath.Separator)))
		}
	}
	return real
}

func (fw *FileWatcher) Stop() {
	slog.Info("file watcher stopping")

	select {
	case <-fw.done:
		return
	default:
		close(fw.done)
	}

	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()

	slog.Info("file watcher stopped")
}

func eventKind(e notify.Event) EventKind {
	switch {
	case e&notify.Create != 0:
		return EventCreated
	case e&(notify.Remove|notify.Rename) != 0:
		return EventDeleted
	default:
		return EventModified
	}
}

// filterEvents drains notify without ever blocking on the consumer.
func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case ei, ok := <-fw.rawEvents:
			if !ok {
				return
			}

			path := fw.logicalPath(ei.Path())
			if path == fw.root || fw.ignored(path) {
				continue
			}

			kind := eventKind(ei.Event())
			if kind != EventDeleted {
				// directories are not commit material, their files report on their own
				if info, err := os.Lstat(ei.Path()); err == nil && info.IsDir() {
					continue
				}
			}

			fw.queue.Enqueue(ChangeEvent{Path: path, Kind: kind, ObservedAt: time.Now()})
		}
	}
}

// forwardEvents moves queued events to the Events channel in order.
func (fw *FileWatcher) forwardEvents(ctx context.Context) {
	defer func() {
		close(fw.events)
		fw.wg.Done()
	}()

	for {
		ev, ok := fw.queue.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-fw.done:
				return
			case <-fw.queue.Ready():
				continue
			}
		}

		select {
		case fw.events <- ev:
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		}
	}
}
