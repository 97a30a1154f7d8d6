package extract

import (
	"context"
	"sync"
	"time"

	"batch-renamer/internal/database"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/tasks"
	"batch-renamer/internal/workers"
)

const maxWorkers = 16

// Store is the part of the database the loader needs.
type Store interface {
	GetFileMetadata(ctx context.Context, path string, kind database.MetadataKind) (database.MetadataRecord, bool)
	StoreFileMetadata(ctx context.Context, path string, kind database.MetadataKind, data map[string]any, modified bool) error
	ResolveOrCreate(ctx context.Context, path string) (int64, error)
	PutStructuredBatch(ctx context.Context, pathID int64, values map[string]string) int
}

// Summary totals a Loader run.
type Summary struct {
	Extracted int
	Cached    int
	Failed    int
	Duration  time.Duration
}

// Loader extracts and stores metadata for batches of files.
type Loader struct {
	store      Store
	extractors []Extractor
	workers    int
}

// NewLoader creates a loader. A nil extractors slice uses
// DefaultExtractors; workerCount <= 0 sizes the pool for I/O.
func NewLoader(store Store, extractors []Extractor, workerCount int) *Loader {
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	return &Loader{
		store:      store,
		extractors: extractors,
		workers:    workers.ForIO(workerCount, maxWorkers),
	}
}

// Load returns the metadata of one file, extracting and storing it when no
// stored record satisfies kind.
func (l *Loader) Load(ctx context.Context, path string, kind database.MetadataKind) (map[string]any, bool, error) {
	if rec, ok := l.store.GetFileMetadata(ctx, path, kind); ok {
		return rec.Data, true, nil
	}

	data, err := Extract(ctx, path, kind == database.MetadataExtended, l.extractors)
	if err != nil {
		return nil, false, err
	}

	if err := l.store.StoreFileMetadata(ctx, path, kind, data, false); err != nil {
		logging.Debug("Metadata of %s not stored: %v", path, err)
		return data, false, nil
	}

	if values := Structured(data); len(values) > 0 {
		if id, err := l.store.ResolveOrCreate(ctx, path); err == nil {
			l.store.PutStructuredBatch(ctx, id, values)
		}
	}
	return data, false, nil
}

// Run loads metadata for paths. Events follow the same shape as the hash
// producer: Started, then Completed (the metadata map) or Failed per file,
// and Progress with task ID "metadata". events may be nil.
func (l *Loader) Run(ctx context.Context, paths []string, kind database.MetadataKind, events chan<- tasks.Event) Summary {
	start := time.Now()
	total := len(paths)

	var (
		mu       sync.Mutex
		summary  Summary
		finished int
	)

	workers.Run(ctx, l.workers, paths, func(ctx context.Context, path string) {
		tasks.Send(ctx, events, tasks.Started(path))
		data, cached, err := l.Load(ctx, path, kind)

		mu.Lock()
		switch {
		case err != nil:
			summary.Failed++
		case cached:
			summary.Cached++
		default:
			summary.Extracted++
		}
		finished++
		done := finished
		mu.Unlock()

		if err != nil {
			logging.Warn("Metadata extraction failed for %s: %v", path, err)
			tasks.Send(ctx, events, tasks.Failed(path, err))
		} else {
			tasks.Send(ctx, events, tasks.Completed(path, data))
		}
		tasks.TrySend(events, tasks.Progress("metadata", done, total))
	})

	summary.Duration = time.Since(start)
	logging.Info("Loaded metadata for %d files (%d extracted, %d cached, %d failed) in %v",
		total, summary.Extracted, summary.Cached, summary.Failed, summary.Duration)
	return summary
}
