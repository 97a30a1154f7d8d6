package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

// TierInvalidator drops in-memory cache entries of a file.
// *database.Database satisfies it.
type TierInvalidator interface {
	InvalidateFile(path string)
}

// ArtifactInvalidator drops thumbnail artifacts of a file.
// *thumbnail.ArtifactCache satisfies it.
type ArtifactInvalidator interface {
	Invalidate(ctx context.Context, path string)
}

// Watcher invalidates cached state for files changed on disk.
type Watcher struct {
	fsw       *fsnotify.Watcher
	tiers     TierInvalidator
	artifacts ArtifactInvalidator

	mu      sync.Mutex
	watched map[string]bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	// OnEvent, if set, is called after an event has been handled.
	OnEvent func(fsnotify.Event)
}

// New creates a watcher. Either invalidator may be nil.
func New(tiers TierInvalidator, artifacts ArtifactInvalidator) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, err
	}
	return &Watcher{
		fsw:       fsw,
		tiers:     tiers,
		artifacts: artifacts,
		watched:   make(map[string]bool),
	}, nil
}

// Add watches folder and every non-hidden folder below it and returns the
// number of folders added.
func (w *Watcher) Add(folder string) (int, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, errors.New("watch: not a directory: " + root)
	}

	added := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("failed to walk %s for watcher: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if w.addDir(path) {
			added++
		}
		return nil
	})
	logging.Debug("Watching %d folders under %s", added, root)
	return added, err
}

func (w *Watcher) addDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watched[path] {
		return false
	}
	if err := w.fsw.Add(path); err != nil {
		logging.Warn("failed to add path to watcher %s: %v", path, err)
		metrics.WatcherErrors.Inc()
		return false
	}
	w.watched[path] = true
	metrics.WatchedDirectories.Set(float64(len(w.watched)))
	return true
}

func (w *Watcher) forgetDir(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watched[path] {
		delete(w.watched, path)
		metrics.WatchedDirectories.Set(float64(len(w.watched)))
	}
}

// WatchedCount returns the number of watched folders.
func (w *Watcher) WatchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Start processes events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				w.handle(ctx, event)
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				logging.Error("Watcher error: %v", err)
				metrics.WatcherErrors.Inc()
			}
		}
	}()
}

// Stop ends event processing and releases the watcher.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func eventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}

// isHidden reports whether the entry itself is a dot file or folder. Hidden
// folders are never added, so their contents produce no events; the rest of
// the path is not checked, which lets a root live under e.g. ~/.local.
func isHidden(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if isHidden(event.Name) {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	switch {
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.forgetDir(event.Name)
		w.invalidateTiers(event.Name)
		if w.artifacts != nil {
			w.artifacts.Invalidate(ctx, event.Name)
		}
		logging.Debug("Invalidated cached state of %s (%s)", event.Name, eventType(event.Op))

	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if _, err := w.Add(event.Name); err != nil {
				logging.Warn("failed to add new directory to watcher %s: %v", event.Name, err)
			}
			break
		}
		w.invalidateTiers(event.Name)

	case event.Op.Has(fsnotify.Write):
		w.invalidateTiers(event.Name)
	}

	if w.OnEvent != nil {
		w.OnEvent(event)
	}
}

func (w *Watcher) invalidateTiers(path string) {
	if w.tiers != nil {
		w.tiers.InvalidateFile(path)
	}
}
