package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-renamer/internal/database"
	"batch-renamer/internal/mediatypes"
	"batch-renamer/internal/tasks"
)

// writeTestConfig writes a config file whose store lives under a temp dir.
func writeTestConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database_dir: %s\ncache_dir: %s\n",
		filepath.Join(dir, "db"), filepath.Join(dir, "cache"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath, filepath.Join(dir, "db", "batch-renamer.db")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func openTestDB(t *testing.T, path string) *database.Database {
	t.Helper()
	db, _, err := database.New(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestParseRenameMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renames.tsv")
	content := "# batch\n/a/one.jpg\t/a/1.jpg\n\n  /a/two.jpg\t /a/2.jpg \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	pairs, err := parseRenameMap(path)
	require.NoError(t, err)
	assert.Equal(t, []renamePair{
		{From: "/a/one.jpg", To: "/a/1.jpg"},
		{From: "/a/two.jpg", To: "/a/2.jpg"},
	}, pairs)
}

func TestParseRenameMapRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renames.tsv")
	require.NoError(t, os.WriteFile(path, []byte("/a/one.jpg /a/1.jpg\n"), 0o644))

	_, err := parseRenameMap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":1:")
}

func TestDrainEventsCollectsFailures(t *testing.T) {
	events := make(chan tasks.Event, 4)
	events <- tasks.Event{TaskID: "/a", Kind: tasks.KindStarted}
	events <- tasks.Event{TaskID: "hash", Kind: tasks.KindProgress, Current: 1, Total: 2}
	events <- tasks.Event{TaskID: "/b", Kind: tasks.KindFailed, Err: errors.New("boom")}
	events <- tasks.Event{TaskID: "/a", Kind: tasks.KindCompleted}
	close(events)

	failures := drainEvents(events, nil, "hash")
	require.Len(t, failures, 1)
	assert.Equal(t, "/b", failures[0].TaskID)
}

func TestCollectPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.jpg", "b.mp4", "notes.txt", "sub/c.png"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	t.Run("all files recursively", func(t *testing.T) {
		paths, err := collectPaths(context.Background(), []string{dir}, true)
		require.NoError(t, err)
		assert.Len(t, paths, 4)
	})

	t.Run("kinds filter", func(t *testing.T) {
		paths, err := collectPaths(context.Background(), []string{dir}, true, mediatypes.Image)
		require.NoError(t, err)
		sort.Strings(paths)
		assert.Equal(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "sub", "c.png")}, paths)
	})

	t.Run("non-recursive", func(t *testing.T) {
		paths, err := collectPaths(context.Background(), []string{dir}, false)
		require.NoError(t, err)
		assert.Len(t, paths, 3)
	})

	t.Run("plain file", func(t *testing.T) {
		paths, err := collectPaths(context.Background(), []string{filepath.Join(dir, "notes.txt")}, true)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, paths)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := collectPaths(context.Background(), []string{filepath.Join(dir, "missing")}, true)
		assert.Error(t, err)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestHashCommandFindsDuplicates(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t)
	media := t.TempDir()
	for _, name := range []string{"one.jpg", "two.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(media, name), []byte("same bytes"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(media, "other.jpg"), []byte("different"), 0o644))

	require.NoError(t, execute(t, "--config", cfgPath, "--quiet", "hash", media))

	db := openTestDB(t, dbPath)
	groups, err := db.FindDuplicates(context.Background(), database.AlgorithmCRC32)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{filepath.Join(media, "one.jpg"), filepath.Join(media, "two.jpg")}, groups[0].Paths)
}

func TestRenameCommandMovesFileAndRecords(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t)
	media := t.TempDir()
	oldPath := filepath.Join(media, "old.jpg")
	newPath := filepath.Join(media, "new.jpg")
	require.NoError(t, os.WriteFile(oldPath, []byte("content"), 0o644))

	db := openTestDB(t, dbPath)
	require.NoError(t, db.StoreHash(context.Background(), oldPath, database.AlgorithmCRC32, "deadbeef", 7))
	require.NoError(t, db.Close())

	require.NoError(t, execute(t, "--config", cfgPath, "--quiet", "rename", "--move", oldPath, newPath))
	renameMove = false

	_, err := os.Stat(newPath)
	require.NoError(t, err)

	db = openTestDB(t, dbPath)
	rec, ok := db.GetHash(context.Background(), newPath, database.AlgorithmCRC32)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", rec.Value)
	_, ok = db.GetHash(context.Background(), oldPath, database.AlgorithmCRC32)
	assert.False(t, ok)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, execute(t, "config", "init", path))
	assert.FileExists(t, path)
	assert.Error(t, execute(t, "config", "init", path))
}
