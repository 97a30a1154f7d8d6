package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"batch-renamer/internal/database"
	"batch-renamer/internal/filesystem"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/metrics"
	"batch-renamer/internal/tasks"
	"batch-renamer/internal/workers"

	"github.com/cespare/xxhash/v2"
)

// maxWorkers caps the automatic worker count; hashing is disk bound well
// before it is CPU bound.
const maxWorkers = 8

// ParseAlgorithm returns the canonical algorithm name, or an error when it
// is not supported.
func ParseAlgorithm(s string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", database.AlgorithmCRC32:
		return database.AlgorithmCRC32, nil
	case database.AlgorithmXXH64, "XXHASH":
		return database.AlgorithmXXH64, nil
	case database.AlgorithmSHA256, "SHA-256":
		return database.AlgorithmSHA256, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", s)
	}
}

func newHasher(algorithm string) hash.Hash {
	switch algorithm {
	case database.AlgorithmXXH64:
		return xxhash.New()
	case database.AlgorithmSHA256:
		return sha256.New()
	default:
		return crc32.NewIEEE()
	}
}

// ctxReader stops a copy when ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// HashFile returns the hex digest of path and the number of bytes read.
func HashFile(ctx context.Context, path, algorithm string) (string, int64, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	h := newHasher(algorithm)
	n, err := io.Copy(h, ctxReader{ctx: ctx, r: f})
	if err != nil {
		return "", n, fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Store is the part of the database the producer needs.
type Store interface {
	GetHash(ctx context.Context, path, algorithm string) (database.HashRecord, bool)
	StoreHashAt(ctx context.Context, path, algorithm, value string, sizeAtHash int64, mtime time.Time) error
}

// current reports whether rec still describes the file. Records without a
// modification time never count as current.
func current(rec database.HashRecord, facts filesystem.FileFacts) bool {
	return rec.FileSizeAtHash == facts.Size &&
		rec.FileMtimeAtHash != 0 &&
		rec.FileMtimeAtHash == facts.ModTime.UnixNano()
}

// Result is the outcome for one file. It is the Result of the file's
// Completed event.
type Result struct {
	Path   string
	Value  string
	Size   int64
	Cached bool
}

// Summary totals a Run.
type Summary struct {
	Hashed   int
	Cached   int
	Failed   int
	Bytes    int64
	Duration time.Duration
}

// Producer hashes batches of files on a worker pool.
type Producer struct {
	store     Store
	algorithm string
	workers   int
	// Force rehashes files even when the stored hash is current.
	Force bool
}

// NewProducer creates a producer. workers <= 0 sizes the pool from the CPU
// count.
func NewProducer(store Store, algorithm string, workerCount int) (*Producer, error) {
	algo, err := ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	return &Producer{
		store:     store,
		algorithm: algo,
		workers:   workers.ForCPU(workerCount, maxWorkers),
	}, nil
}

// Algorithm returns the canonical algorithm name.
func (p *Producer) Algorithm() string {
	return p.algorithm
}

// Run hashes paths and stores the results. Each file produces a Started
// event and then a Completed (Result) or Failed event on events, with the
// file path as task ID; a Progress event with task ID "hash" follows every
// finished file. events may be nil. A failing file never stops the batch.
func (p *Producer) Run(ctx context.Context, paths []string, events chan<- tasks.Event) Summary {
	start := time.Now()
	total := len(paths)

	var (
		mu       sync.Mutex
		summary  Summary
		finished atomic.Int64
	)

	workers.Run(ctx, p.workers, paths, func(ctx context.Context, path string) {
		tasks.Send(ctx, events, tasks.Started(path))

		res, err := p.hashOne(ctx, path)

		mu.Lock()
		switch {
		case err != nil:
			summary.Failed++
		case res.Cached:
			summary.Cached++
		default:
			summary.Hashed++
			summary.Bytes += res.Size
		}
		mu.Unlock()

		if err != nil {
			tasks.Send(ctx, events, tasks.Failed(path, err))
		} else {
			tasks.Send(ctx, events, tasks.Completed(path, res))
		}
		done := finished.Add(1)
		tasks.TrySend(events, tasks.Progress("hash", int(done), total))
	})

	summary.Duration = time.Since(start)
	logging.Info("Hashed %d files (%d cached, %d failed, %d bytes) with %s in %v",
		summary.Hashed, summary.Cached, summary.Failed, summary.Bytes, p.algorithm, summary.Duration)
	return summary
}

func (p *Producer) hashOne(ctx context.Context, path string) (Result, error) {
	facts, ok := filesystem.Facts(path)
	if !ok || facts.IsDir {
		metrics.HashFilesTotal.WithLabelValues(p.algorithm, "failed").Inc()
		return Result{}, fmt.Errorf("hash %s: file not found", path)
	}

	if !p.Force {
		if rec, ok := p.store.GetHash(ctx, path, p.algorithm); ok && current(rec, facts) {
			metrics.HashFilesTotal.WithLabelValues(p.algorithm, "cached").Inc()
			return Result{Path: path, Value: rec.Value, Size: facts.Size, Cached: true}, nil
		}
	}

	value, n, err := HashFile(ctx, path, p.algorithm)
	metrics.HashBytesTotal.WithLabelValues(p.algorithm).Add(float64(n))
	if err != nil {
		metrics.HashFilesTotal.WithLabelValues(p.algorithm, "failed").Inc()
		logging.Warn("Failed to hash %s: %v", path, err)
		return Result{}, err
	}

	if err := p.store.StoreHashAt(ctx, path, p.algorithm, value, n, facts.ModTime); err != nil {
		// The hash is still valid for the caller; it just is not remembered.
		logging.Debug("Hash of %s not stored: %v", path, err)
	}
	metrics.HashFilesTotal.WithLabelValues(p.algorithm, "hashed").Inc()
	return Result{Path: path, Value: value, Size: n}, nil
}
