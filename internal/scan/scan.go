package scan

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/mediatypes"
	"batch-renamer/internal/workers"
)

// Config configures a Walker.
type Config struct {
	// Workers is the number of stat workers (0 = sized for I/O)
	Workers int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
	// Recursive descends into subfolders; otherwise only root's direct
	// children are listed
	Recursive bool
	// Kinds limits results to these media kinds; empty means every file
	Kinds []mediatypes.Kind
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
}

// DefaultConfig returns a recursive walk of every non-hidden file.
func DefaultConfig() Config {
	return Config{
		Workers:       3,
		SkipHidden:    true,
		Recursive:     true,
		ChannelBuffer: 1000,
	}
}

// File is one listed file.
type File struct {
	Path    string
	Name    string
	Folder  string
	Size    int64
	ModTime time.Time
	Kind    mediatypes.Kind
}

// Stats counts the outcome of a walk.
type Stats struct {
	Files   int64
	Folders int64
	Skipped int64
	Errors  int64
}

type job struct {
	path  string
	entry fs.DirEntry
}

// Walker lists files under a root folder.
type Walker struct {
	root   string
	config Config
	kinds  map[mediatypes.Kind]bool

	files   atomic.Int64
	folders atomic.Int64
	skipped atomic.Int64
	errors  atomic.Int64
}

// NewWalker creates a walker for root.
func NewWalker(root string, config Config) *Walker {
	if config.ChannelBuffer <= 0 {
		config.ChannelBuffer = 1000
	}
	config.Workers = workers.ForIO(config.Workers, 16)

	var kinds map[mediatypes.Kind]bool
	if len(config.Kinds) > 0 {
		kinds = make(map[mediatypes.Kind]bool, len(config.Kinds))
		for _, k := range config.Kinds {
			kinds[k] = true
		}
	}
	return &Walker{root: filepath.Clean(root), config: config, kinds: kinds}
}

// Walk lists matching files sorted by path. An error is returned only when
// root itself cannot be read or ctx is cancelled; unreadable entries below
// it are counted and skipped.
func (w *Walker) Walk(ctx context.Context) ([]File, error) {
	start := time.Now()
	w.files.Store(0)
	w.folders.Store(0)
	w.skipped.Store(0)
	w.errors.Store(0)

	jobs := make(chan job, w.config.ChannelBuffer)
	results := make(chan File, w.config.ChannelBuffer)

	var wg sync.WaitGroup
	for i := 0; i < w.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if f, ok := w.process(j); ok {
					results <- f
				}
			}
		}()
	}

	var files []File
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for f := range results {
			files = append(files, f)
		}
	}()

	err := w.enqueue(ctx, jobs)
	close(jobs)
	wg.Wait()
	close(results)
	<-collected

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Path, b.Path) })

	logging.Debug("Scan of %s complete: %d files, %d folders in %v (skipped: %d, errors: %d)",
		w.root, w.files.Load(), w.folders.Load(), time.Since(start), w.skipped.Load(), w.errors.Load())

	if err == nil {
		err = ctx.Err()
	}
	return files, err
}

func (w *Walker) enqueue(ctx context.Context, jobs chan<- job) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}

		if err != nil {
			if path == w.root {
				return err
			}
			w.errors.Add(1)
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}

		if path == w.root {
			return nil
		}

		if w.config.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			w.skipped.Add(1)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			w.folders.Add(1)
			if !w.config.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case jobs <- job{path: path, entry: d}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
}

func (w *Walker) process(j job) (File, bool) {
	kind := mediatypes.KindOf(j.path)
	if w.kinds != nil && !w.kinds[kind] {
		w.skipped.Add(1)
		return File{}, false
	}

	info, err := j.entry.Info()
	if err != nil {
		w.errors.Add(1)
		logging.Debug("Error getting info for %s: %v", j.path, err)
		return File{}, false
	}
	if !info.Mode().IsRegular() {
		w.skipped.Add(1)
		return File{}, false
	}

	w.files.Add(1)
	return File{
		Path:    j.path,
		Name:    info.Name(),
		Folder:  filepath.Dir(j.path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Kind:    kind,
	}, true
}

// Stats returns the counters of the last walk.
func (w *Walker) Stats() Stats {
	return Stats{
		Files:   w.files.Load(),
		Folders: w.folders.Load(),
		Skipped: w.skipped.Load(),
		Errors:  w.errors.Load(),
	}
}

// Paths returns the paths of files in order.
func Paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
