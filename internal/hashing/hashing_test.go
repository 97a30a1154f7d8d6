package hashing

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"batch-renamer/internal/database"
	"batch-renamer/internal/tasks"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", database.AlgorithmCRC32, false},
		{"crc32", database.AlgorithmCRC32, false},
		{"xxh64", database.AlgorithmXXH64, false},
		{"xxhash", database.AlgorithmXXH64, false},
		{"SHA256", database.AlgorithmSHA256, false},
		{"sha-256", database.AlgorithmSHA256, false},
		{"md5", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAlgorithm(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHashFileKnownValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		algorithm string
		want      string
	}{
		{database.AlgorithmCRC32, "0d4a1185"},
		{database.AlgorithmXXH64, "45ab6734b21e6968"},
		{database.AlgorithmSHA256, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			got, n, err := HashFile(context.Background(), path, tt.algorithm)
			if err != nil {
				t.Fatal(err)
			}
			if n != 11 {
				t.Errorf("bytes read = %d, want 11", n)
			}
			if got != tt.want {
				t.Errorf("HashFile(%s) = %s, want %s", tt.algorithm, got, tt.want)
			}
		})
	}
}

func TestHashFileCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, make([]byte, 1024), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := HashFile(ctx, path, database.AlgorithmCRC32); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// memStore is an in-memory Store.
type memStore struct {
	mu     sync.Mutex
	hashes map[string]database.HashRecord
	writes int
}

func newMemStore() *memStore {
	return &memStore{hashes: map[string]database.HashRecord{}}
}

func (m *memStore) GetHash(_ context.Context, path, algorithm string) (database.HashRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.hashes[path+"|"+algorithm]
	return rec, ok
}

func (m *memStore) StoreHashAt(_ context.Context, path, algorithm, value string, size int64, mtime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.hashes[path+"|"+algorithm] = database.HashRecord{
		Algorithm:       algorithm,
		Value:           value,
		FileSizeAtHash:  size,
		FileMtimeAtHash: mtime.UnixNano(),
	}
	return nil
}

func writeFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, "file"+string(rune('a'+i))+".bin")
		if err := os.WriteFile(paths[i], []byte(paths[i]), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func TestProducerRun(t *testing.T) {
	store := newMemStore()
	p, err := NewProducer(store, "crc32", 3)
	if err != nil {
		t.Fatal(err)
	}

	paths := writeFiles(t, 5)
	paths = append(paths, filepath.Join(t.TempDir(), "missing.bin"))

	events := make(chan tasks.Event, 100)
	summary := p.Run(context.Background(), paths, events)
	close(events)

	if summary.Hashed != 5 || summary.Failed != 1 || summary.Cached != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Bytes == 0 {
		t.Error("expected bytes to be counted")
	}

	counts := map[tasks.Kind]int{}
	lastProgress := 0
	for ev := range events {
		counts[ev.Kind]++
		if ev.Kind == tasks.KindProgress {
			if ev.Total != 6 {
				t.Errorf("progress total = %d, want 6", ev.Total)
			}
			lastProgress = max(lastProgress, ev.Current)
		}
		if ev.Kind == tasks.KindCompleted {
			if _, ok := ev.Result.(Result); !ok {
				t.Errorf("completed result has type %T", ev.Result)
			}
		}
	}
	if counts[tasks.KindStarted] != 6 || counts[tasks.KindCompleted] != 5 || counts[tasks.KindFailed] != 1 {
		t.Errorf("unexpected event counts %v", counts)
	}
	if lastProgress != 6 {
		t.Errorf("last progress = %d, want 6", lastProgress)
	}
}

func TestProducerSkipsCurrentHashes(t *testing.T) {
	store := newMemStore()
	p, err := NewProducer(store, "sha256", 2)
	if err != nil {
		t.Fatal(err)
	}
	paths := writeFiles(t, 3)

	p.Run(context.Background(), paths, nil)
	if store.writes != 3 {
		t.Fatalf("writes = %d, want 3", store.writes)
	}

	summary := p.Run(context.Background(), paths, nil)
	if summary.Cached != 3 || summary.Hashed != 0 {
		t.Errorf("second run should be fully cached, got %+v", summary)
	}

	// Growing a file makes its stored hash stale
	if err := os.WriteFile(paths[0], []byte("much longer content than before"), 0o644); err != nil {
		t.Fatal(err)
	}
	summary = p.Run(context.Background(), paths, nil)
	if summary.Hashed != 1 || summary.Cached != 2 {
		t.Errorf("expected one rehash, got %+v", summary)
	}

	// Same size, newer modification time
	before, err := os.Stat(paths[1])
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths[1], bytes.Repeat([]byte("B"), int(before.Size())), 0o644); err != nil {
		t.Fatal(err)
	}
	later := before.ModTime().Add(2 * time.Second)
	if err := os.Chtimes(paths[1], later, later); err != nil {
		t.Fatal(err)
	}
	summary = p.Run(context.Background(), paths, nil)
	if summary.Hashed != 1 || summary.Cached != 2 {
		t.Errorf("a same-size rewrite should be rehashed, got %+v", summary)
	}

	p.Force = true
	summary = p.Run(context.Background(), paths, nil)
	if summary.Hashed != 3 {
		t.Errorf("Force should rehash everything, got %+v", summary)
	}
}

func TestProducerWithDatabase(t *testing.T) {
	ctx := context.Background()
	db, _, err := database.New(ctx, filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	p, err := NewProducer(db, "xxh64", 0)
	if err != nil {
		t.Fatal(err)
	}
	paths := writeFiles(t, 4)
	p.Run(ctx, paths, nil)

	for _, path := range paths {
		rec, ok := db.GetHash(ctx, path, "XXH64")
		if !ok {
			t.Fatalf("no hash stored for %s", path)
		}
		want, _, _ := HashFile(ctx, path, "XXH64")
		if rec.Value != want {
			t.Errorf("stored %s, want %s", rec.Value, want)
		}
	}

	db.ClearCaches()
	if summary := p.Run(ctx, paths, nil); summary.Cached != 4 {
		t.Errorf("hashes should survive a tier clear, got %+v", summary)
	}

	info, err := os.Stat(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths[0], bytes.Repeat([]byte("Z"), int(info.Size())), 0o644); err != nil {
		t.Fatal(err)
	}
	later := info.ModTime().Add(2 * time.Second)
	if err := os.Chtimes(paths[0], later, later); err != nil {
		t.Fatal(err)
	}
	db.InvalidateFile(paths[0])

	summary := p.Run(ctx, paths, nil)
	if summary.Hashed != 1 || summary.Cached != 3 {
		t.Errorf("same-size rewrite should be rehashed from the durable row, got %+v", summary)
	}
	rec, _ := db.GetHash(ctx, paths[0], "XXH64")
	want, _, _ := HashFile(ctx, paths[0], "XXH64")
	if rec.Value != want || rec.FileMtimeAtHash != later.UnixNano() {
		t.Errorf("stored %+v, want value %s at mtime %d", rec, want, later.UnixNano())
	}
}
