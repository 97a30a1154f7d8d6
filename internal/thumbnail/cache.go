package thumbnail

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"batch-renamer/internal/cache"
	"batch-renamer/internal/database"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/metrics"

	"github.com/disintegration/imaging"
)

const (
	artifactExt = ".jpg"
	tempExt     = ".tmp"

	// DefaultMemoryCapacity is the number of decoded thumbnails kept in memory.
	DefaultMemoryCapacity = 500

	// orphanGrace protects files written after the index snapshot in Cleanup
	// was taken.
	orphanGrace = 10 * time.Minute

	jpegQuality = 85
)

// Level identifies which layer served a hit.
type Level string

const (
	LevelMemory Level = "memory"
	LevelDisk   Level = "disk"
)

// Index is the durable side of the artifact cache. *database.Database
// satisfies it.
type Index interface {
	GetThumbnail(ctx context.Context, path string, mtime int64) (database.ThumbnailEntry, bool)
	PutThumbnail(ctx context.Context, entry database.ThumbnailEntry) ([]string, error)
	InvalidateThumbnails(ctx context.Context, path string) ([]string, error)
	ThumbnailCacheFilenames(ctx context.Context) (map[string]struct{}, error)
}

// CacheStats is a snapshot of artifact cache activity.
type CacheStats struct {
	MemoryHits    int64 `json:"memoryHits"`
	DiskHits      int64 `json:"diskHits"`
	Misses        int64 `json:"misses"`
	MemoryEntries int   `json:"memoryEntries"`
	DiskFiles     int64 `json:"diskFiles"`
	DiskBytes     int64 `json:"diskBytes"`
}

// ArtifactCache stores generated thumbnails in a memory LRU backed by a
// directory of JPEG files named by fingerprint. An artifact is written to
// disk before its index row so a crash leaves at worst an orphan file.
type ArtifactCache struct {
	dir   string
	index Index
	mem   *cache.LRU[string, image.Image]

	memoryHits atomic.Int64
	diskHits   atomic.Int64
	misses     atomic.Int64
}

// NewArtifactCache creates the cache directory if needed.
func NewArtifactCache(dir string, index Index, memoryCapacity int) (*ArtifactCache, error) {
	if memoryCapacity <= 0 {
		memoryCapacity = DefaultMemoryCapacity
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail cache directory: %w", err)
	}
	return &ArtifactCache{
		dir:   dir,
		index: index,
		mem:   cache.NewLRU[string, image.Image](memoryCapacity, nil),
	}, nil
}

// Dir returns the on-disk cache directory.
func (c *ArtifactCache) Dir() string {
	return c.dir
}

// Fingerprint identifies one version of a file. Any change to path, mtime or
// size yields a different fingerprint.
func Fingerprint(path string, mtime time.Time, size int64) string {
	sum := md5.Sum([]byte(path + "|" + strconv.FormatInt(mtime.UnixNano(), 10) + "|" + strconv.FormatInt(size, 10)))
	return hex.EncodeToString(sum[:])
}

func memKey(path, fingerprint string) string {
	return cache.Key(path, fingerprint)
}

func normalize(path string) string {
	if norm, err := database.NormalizePath(path); err == nil {
		return norm
	}
	return path
}

// Get returns the cached thumbnail for this version of path.
func (c *ArtifactCache) Get(ctx context.Context, path string, mtime time.Time, size int64) (image.Image, Level, bool) {
	path = normalize(path)
	fp := Fingerprint(path, mtime, size)

	if img, ok := c.mem.Get(memKey(path, fp)); ok {
		c.memoryHits.Add(1)
		metrics.ThumbnailCacheHits.WithLabelValues(string(LevelMemory)).Inc()
		return img, LevelMemory, true
	}

	filename := fp + artifactExt
	img, err := imaging.Open(filepath.Join(c.dir, filename))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Debug("Unreadable cached thumbnail %s: %v", filename, err)
		}
		c.misses.Add(1)
		metrics.ThumbnailCacheMisses.Inc()
		return nil, "", false
	}

	// A file without an index row is left over from an interrupted Put.
	if c.index != nil {
		if _, ok := c.index.GetThumbnail(ctx, path, mtime.UnixNano()); !ok {
			c.record(ctx, path, mtime, size, filename, nil)
		}
	}

	c.mem.Add(memKey(path, fp), img)
	c.diskHits.Add(1)
	metrics.ThumbnailCacheHits.WithLabelValues(string(LevelDisk)).Inc()
	return img, LevelDisk, true
}

// Put writes art to disk, then memory, then the index. Artifacts recorded
// for older versions of the same file are removed.
func (c *ArtifactCache) Put(ctx context.Context, path string, mtime time.Time, size int64, art Artifact) error {
	if art.Image == nil {
		return errors.New("thumbnail artifact has no image")
	}
	path = normalize(path)
	fp := Fingerprint(path, mtime, size)
	filename := fp + artifactExt

	if err := c.writeFile(filename, art.Image); err != nil {
		return err
	}
	c.mem.Add(memKey(path, fp), art.Image)

	return c.record(ctx, path, mtime, size, filename, art.VideoFrameTime)
}

func (c *ArtifactCache) record(ctx context.Context, path string, mtime time.Time, size int64, filename string, frameTime *float64) error {
	if c.index == nil {
		return nil
	}
	stale, err := c.index.PutThumbnail(ctx, database.ThumbnailEntry{
		FilePath:       path,
		FileMtime:      mtime.UnixNano(),
		FileSize:       size,
		CacheFilename:  filename,
		VideoFrameTime: frameTime,
	})
	if err != nil {
		if errors.Is(err, database.ErrStoreUnavailable) {
			logging.Debug("Thumbnail index unavailable, %s left unindexed", filename)
			return nil
		}
		return fmt.Errorf("failed to index thumbnail for %s: %w", path, err)
	}
	c.removeArtifacts(path, stale, filename)
	return nil
}

func (c *ArtifactCache) writeFile(filename string, img image.Image) error {
	tmp, err := os.CreateTemp(c.dir, strings.TrimSuffix(filename, artifactExt)+"-*"+tempExt)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, filename)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move thumbnail into cache: %w", err)
	}
	return nil
}

// removeArtifacts deletes the given files and their memory entries, except
// keep.
func (c *ArtifactCache) removeArtifacts(path string, filenames []string, keep string) {
	for _, name := range filenames {
		if name == keep || name == "" || name != filepath.Base(name) {
			continue
		}
		c.mem.Remove(memKey(path, strings.TrimSuffix(name, artifactExt)))
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to remove stale thumbnail %s: %v", name, err)
		}
	}
}

// Invalidate drops every artifact of path from memory, disk and the index.
func (c *ArtifactCache) Invalidate(ctx context.Context, path string) {
	path = normalize(path)
	c.mem.RemoveFunc(func(key string) bool {
		return strings.HasPrefix(key, path+"\x00")
	})
	if c.index == nil {
		return
	}
	filenames, err := c.index.InvalidateThumbnails(ctx, path)
	if err != nil {
		if !errors.Is(err, database.ErrStoreUnavailable) {
			logging.Warn("Failed to invalidate thumbnails for %s: %v", path, err)
		}
		return
	}
	c.removeArtifacts(path, filenames, "")
}

// Cleanup removes artifact files that no index row references and temp
// files left by interrupted writes. Files younger than the grace period are
// kept. It returns the number of files removed and the bytes freed.
func (c *ArtifactCache) Cleanup(ctx context.Context) (int, int64, error) {
	if c.index == nil {
		return 0, 0, nil
	}
	referenced, err := c.index.ThumbnailCacheFilenames(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list indexed thumbnails: %w", err)
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read thumbnail cache directory: %w", err)
	}

	cutoff := time.Now().Add(-orphanGrace)
	removed := 0
	var freed int64
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, freed, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		isArtifact := strings.HasSuffix(name, artifactExt)
		if !isArtifact && !strings.HasSuffix(name, tempExt) {
			continue
		}
		if _, ok := referenced[name]; ok && isArtifact {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
			logging.Warn("Failed to remove orphaned thumbnail %s: %v", name, err)
			continue
		}
		removed++
		freed += info.Size()
	}

	if removed > 0 {
		logging.Info("Thumbnail cleanup removed %d orphaned files", removed)
	}
	return removed, freed, nil
}

// Clear empties the memory layer. Disk artifacts stay.
func (c *ArtifactCache) Clear() {
	c.mem.Purge()
}

// Stats returns hit counters and the on-disk footprint.
func (c *ArtifactCache) Stats() CacheStats {
	files, bytes := c.diskUsage()
	return CacheStats{
		MemoryHits:    c.memoryHits.Load(),
		DiskHits:      c.diskHits.Load(),
		Misses:        c.misses.Load(),
		MemoryEntries: c.mem.Len(),
		DiskFiles:     files,
		DiskBytes:     bytes,
	}
}

// GetStats implements metrics.StatsProvider.
func (c *ArtifactCache) GetStats() metrics.Stats {
	files, bytes := c.diskUsage()
	return metrics.Stats{ThumbnailCount: files, ThumbnailBytes: bytes}
}

func (c *ArtifactCache) diskUsage() (int64, int64) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, 0
	}
	var files, bytes int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), artifactExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files++
		bytes += info.Size()
	}
	return files, bytes
}
