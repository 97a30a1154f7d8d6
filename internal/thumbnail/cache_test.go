package thumbnail

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"batch-renamer/internal/database"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	return imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
}

// memIndex is an in-memory Index that records whether the artifact file
// already existed when its row was written.
type memIndex struct {
	mu          sync.Mutex
	dir         string
	rows        map[string]database.ThumbnailEntry
	fileOnIndex map[string]bool
	unavailable bool
}

func newMemIndex(dir string) *memIndex {
	return &memIndex{dir: dir, rows: map[string]database.ThumbnailEntry{}, fileOnIndex: map[string]bool{}}
}

func (m *memIndex) GetThumbnail(_ context.Context, path string, mtime int64) (database.ThumbnailEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[path]
	if !ok || e.FileMtime != mtime {
		return database.ThumbnailEntry{}, false
	}
	return e, true
}

func (m *memIndex) PutThumbnail(_ context.Context, e database.ThumbnailEntry) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, database.ErrStoreUnavailable
	}
	_, err := os.Stat(filepath.Join(m.dir, e.CacheFilename))
	m.fileOnIndex[e.CacheFilename] = err == nil

	var stale []string
	if old, ok := m.rows[e.FilePath]; ok && old.FileMtime != e.FileMtime {
		stale = append(stale, old.CacheFilename)
	}
	m.rows[e.FilePath] = e
	return stale, nil
}

func (m *memIndex) InvalidateThumbnails(_ context.Context, path string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[path]
	if !ok {
		return nil, nil
	}
	delete(m.rows, path)
	return []string{e.CacheFilename}, nil
}

func (m *memIndex) ThumbnailCacheFilenames(context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.rows))
	for _, e := range m.rows {
		out[e.CacheFilename] = struct{}{}
	}
	return out, nil
}

func newTestCache(t *testing.T) (*ArtifactCache, *memIndex) {
	t.Helper()
	dir := t.TempDir()
	idx := newMemIndex(dir)
	c, err := NewArtifactCache(dir, idx, 10)
	require.NoError(t, err)
	return c, idx
}

func TestFingerprint(t *testing.T) {
	mtime := time.Unix(1700000000, 0)

	fp := Fingerprint("/media/a.jpg", mtime, 100)
	assert.Len(t, fp, 32)
	assert.Equal(t, fp, Fingerprint("/media/a.jpg", mtime, 100))

	assert.NotEqual(t, fp, Fingerprint("/media/b.jpg", mtime, 100), "path change")
	assert.NotEqual(t, fp, Fingerprint("/media/a.jpg", mtime.Add(time.Second), 100), "mtime change")
	assert.NotEqual(t, fp, Fingerprint("/media/a.jpg", mtime.Add(time.Nanosecond), 100), "sub-second mtime change")
	assert.NotEqual(t, fp, Fingerprint("/media/a.jpg", mtime, 101), "size change")
}

func TestArtifactCachePutGet(t *testing.T) {
	c, idx := newTestCache(t)
	ctx := context.Background()
	mtime := time.Unix(1700000000, 0)

	_, _, ok := c.Get(ctx, "/media/a.jpg", mtime, 10)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "/media/a.jpg", mtime, 10, Artifact{Image: testImage(64, 48)}))

	img, level, ok := c.Get(ctx, "/media/a.jpg", mtime, 10)
	require.True(t, ok)
	assert.Equal(t, LevelMemory, level)
	assert.Equal(t, 64, img.Bounds().Dx())

	filename := Fingerprint("/media/a.jpg", mtime, 10) + ".jpg"
	assert.FileExists(t, filepath.Join(c.Dir(), filename))
	assert.True(t, idx.fileOnIndex[filename], "artifact must be on disk before its index row")

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.MemoryHits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 1, stats.DiskFiles)
	assert.Positive(t, stats.DiskBytes)
}

func TestArtifactCacheDiskHitAfterClear(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	mtime := time.Unix(1700000000, 0)

	require.NoError(t, c.Put(ctx, "/media/a.jpg", mtime, 10, Artifact{Image: testImage(32, 32)}))
	c.Clear()

	img, level, ok := c.Get(ctx, "/media/a.jpg", mtime, 10)
	require.True(t, ok)
	assert.Equal(t, LevelDisk, level)
	assert.Equal(t, 32, img.Bounds().Dx())

	_, level, ok = c.Get(ctx, "/media/a.jpg", mtime, 10)
	require.True(t, ok)
	assert.Equal(t, LevelMemory, level, "disk hit repopulates memory")
}

func TestArtifactCacheStaleVersion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	t1 := time.Unix(1700000000, 0)
	t2 := t1.Add(time.Second)

	require.NoError(t, c.Put(ctx, "/media/a.jpg", t1, 10, Artifact{Image: testImage(16, 16)}))
	oldFile := filepath.Join(c.Dir(), Fingerprint("/media/a.jpg", t1, 10)+".jpg")
	require.FileExists(t, oldFile)

	_, _, ok := c.Get(ctx, "/media/a.jpg", t2, 10)
	assert.False(t, ok, "a newer mtime must never be served the old artifact")

	require.NoError(t, c.Put(ctx, "/media/a.jpg", t2, 10, Artifact{Image: testImage(16, 16)}))
	assert.NoFileExists(t, oldFile, "superseded artifact is removed")

	_, _, ok = c.Get(ctx, "/media/a.jpg", t1, 10)
	assert.False(t, ok)
	_, _, ok = c.Get(ctx, "/media/a.jpg", t2, 10)
	assert.True(t, ok)
}

func TestArtifactCacheInvalidate(t *testing.T) {
	c, idx := newTestCache(t)
	ctx := context.Background()
	mtime := time.Unix(1700000000, 0)

	require.NoError(t, c.Put(ctx, "/media/a.jpg", mtime, 10, Artifact{Image: testImage(16, 16)}))
	require.NoError(t, c.Put(ctx, "/media/b.jpg", mtime, 10, Artifact{Image: testImage(16, 16)}))

	c.Invalidate(ctx, "/media/a.jpg")

	_, _, ok := c.Get(ctx, "/media/a.jpg", mtime, 10)
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(c.Dir(), Fingerprint("/media/a.jpg", mtime, 10)+".jpg"))
	assert.NotContains(t, idx.rows, "/media/a.jpg")

	_, _, ok = c.Get(ctx, "/media/b.jpg", mtime, 10)
	assert.True(t, ok, "other files are untouched")
}

func TestArtifactCacheIndexUnavailable(t *testing.T) {
	c, idx := newTestCache(t)
	idx.unavailable = true
	mtime := time.Unix(1700000000, 0)

	err := c.Put(context.Background(), "/media/a.jpg", mtime, 10, Artifact{Image: testImage(16, 16)})
	assert.NoError(t, err, "an unavailable index is not a Put failure")
	assert.FileExists(t, filepath.Join(c.Dir(), Fingerprint("/media/a.jpg", mtime, 10)+".jpg"))
}

func TestArtifactCachePutRejectsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	err := c.Put(context.Background(), "/media/a.jpg", time.Now(), 1, Artifact{})
	assert.Error(t, err)
}

func TestArtifactCacheCleanup(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	mtime := time.Unix(1700000000, 0)

	require.NoError(t, c.Put(ctx, "/media/kept.jpg", mtime, 10, Artifact{Image: testImage(16, 16)}))
	kept := filepath.Join(c.Dir(), Fingerprint("/media/kept.jpg", mtime, 10)+".jpg")

	orphan := filepath.Join(c.Dir(), "0123456789abcdef0123456789abcdef.jpg")
	fresh := filepath.Join(c.Dir(), "fedcba9876543210fedcba9876543210.jpg")
	temp := filepath.Join(c.Dir(), "abc-123.tmp")
	unrelated := filepath.Join(c.Dir(), "README.txt")
	for _, p := range []string{orphan, fresh, temp, unrelated} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	old := time.Now().Add(-time.Hour)
	for _, p := range []string{kept, orphan, temp, unrelated} {
		require.NoError(t, os.Chtimes(p, old, old))
	}

	removed, freed, err := c.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.EqualValues(t, 2, freed)

	assert.FileExists(t, kept)
	assert.FileExists(t, fresh, "files inside the grace period are kept")
	assert.FileExists(t, unrelated)
	assert.NoFileExists(t, orphan)
	assert.NoFileExists(t, temp)
}

func TestArtifactCacheWithDatabaseIndex(t *testing.T) {
	ctx := context.Background()
	db, _, err := database.New(ctx, filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := NewArtifactCache(t.TempDir(), db, 10)
	require.NoError(t, err)

	mediaDir := t.TempDir()
	path := filepath.Join(mediaDir, "a.jpg")
	t1 := time.Unix(1700000000, 0)
	t2 := t1.Add(time.Second)

	frame := 1.0
	require.NoError(t, c.Put(ctx, path, t1, 10, Artifact{Image: testImage(16, 16), VideoFrameTime: &frame}))

	entry, ok := db.GetThumbnail(ctx, path, t1.UnixNano())
	require.True(t, ok)
	assert.Equal(t, mediaDir, entry.FolderPath)
	require.NotNil(t, entry.VideoFrameTime)
	assert.InDelta(t, 1.0, *entry.VideoFrameTime, 0.0001)

	require.NoError(t, c.Put(ctx, path, t2, 10, Artifact{Image: testImage(16, 16)}))
	_, ok = db.GetThumbnail(ctx, path, t1.UnixNano())
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(c.Dir(), entry.CacheFilename))

	c.Invalidate(ctx, path)
	_, ok = db.GetThumbnail(ctx, path, t2.UnixNano())
	assert.False(t, ok)
}
