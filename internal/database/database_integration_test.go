package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// setupTestDB creates a test database. An optional Options value can be passed
// to control database behavior (e.g. mmap). When omitted, nil is used.
func setupTestDB(t testing.TB, opts ...*Options) (db *Database, dbPath string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath = filepath.Join(tmpDir, "test.db")

	var dbOpts *Options
	if len(opts) > 0 {
		dbOpts = opts[0]
	}

	db, _, err := New(context.Background(), dbPath, dbOpts)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db, dbPath
}

func countRows(t *testing.T, db *Database, table string) int64 {
	t.Helper()
	var n int64
	if err := db.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestNewDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, info, err := New(context.Background(), dbPath, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := db.db.PingContext(context.Background()); err != nil {
		t.Errorf("Database ping failed: %v", err)
	}
	if info.SchemaVersion != currentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", info.SchemaVersion, currentSchemaVersion)
	}
	if info.Recovered {
		t.Error("fresh database should not report recovery")
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
}

func TestNewDatabaseInfoDiagnostics(t *testing.T) {
	tests := []struct {
		name               string
		opts               *Options
		expectSIGBUS       bool
		expectStandardMode bool
	}{
		{name: "nil options", opts: nil, expectStandardMode: true},
		{name: "mmap enabled", opts: &Options{MmapDisabled: false}, expectStandardMode: true},
		{name: "mmap disabled", opts: &Options{MmapDisabled: true}, expectSIGBUS: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "diag.db")

			db, info, err := New(context.Background(), dbPath, tt.opts)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			defer db.Close()

			if info.SQLiteVersion == "" || info.SQLiteVersion == "unknown" {
				t.Error("SQLiteVersion should be populated")
			}

			hasSIGBUS := strings.Contains(info.MmapStatus, "SIGBUS protection active")
			if hasSIGBUS != tt.expectSIGBUS {
				t.Errorf("SIGBUS protection in status: got %v, want %v (status: %s)", hasSIGBUS, tt.expectSIGBUS, info.MmapStatus)
			}
			hasStandard := strings.Contains(info.MmapStatus, "standard mode")
			if hasStandard != tt.expectStandardMode {
				t.Errorf("Standard mode in status: got %v, want %v (status: %s)", hasStandard, tt.expectStandardMode, info.MmapStatus)
			}
		})
	}
}

func TestMmapDisabledOnAllConnections(t *testing.T) {
	db, _ := setupTestDB(t, &Options{MmapDisabled: true})
	ctx := context.Background()

	const numConns = 6
	conns := make([]*sql.Conn, 0, numConns)
	for i := 0; i < numConns; i++ {
		conn, err := db.db.Conn(ctx)
		if err != nil {
			t.Fatalf("Failed to get connection %d: %v", i, err)
		}
		conns = append(conns, conn)
	}
	defer func() {
		for _, conn := range conns {
			conn.Close()
		}
	}()

	for i, conn := range conns {
		var mmapSize int64
		if err := conn.QueryRowContext(ctx, "PRAGMA mmap_size").Scan(&mmapSize); err != nil {
			t.Fatalf("Failed to read mmap_size on connection %d: %v", i, err)
		}
		if mmapSize != 0 {
			t.Errorf("Connection %d has mmap_size=%d, want 0", i, mmapSize)
		}
	}
}

func TestDatabaseClose(t *testing.T) {
	db, _ := setupTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	// Idempotent
	if err := db.Close(); err != nil {
		t.Errorf("Second Close() failed: %v", err)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if err := db.StoreHash(ctx, "/photos/a.jpg", AlgorithmCRC32, "AAAA", 10); err != nil {
		t.Fatalf("StoreHash() before close: %v", err)
	}
	db.ClearCaches()
	db.Close()

	err := db.StoreHash(ctx, "/photos/b.jpg", AlgorithmCRC32, "BBBB", 10)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("StoreHash() after close error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := db.ResolveOrCreate(ctx, "/photos/c.jpg"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("ResolveOrCreate() after close error = %v, want ErrStoreUnavailable", err)
	}
	if err := db.SetState(ctx, "k", "v"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("SetState() after close error = %v, want ErrStoreUnavailable", err)
	}
	if err := db.Transaction(ctx, func(*sql.Tx) error { return nil }); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Transaction() after close error = %v, want ErrStoreUnavailable", err)
	}

	// Reads degrade to misses
	if _, ok := db.GetHash(ctx, "/photos/a.jpg", AlgorithmCRC32); ok {
		t.Error("GetHash() after close should miss")
	}
	if _, ok, _ := db.Resolve(ctx, "/photos/a.jpg"); ok {
		t.Error("Resolve() after close should miss")
	}
	if got := db.StateString(ctx, "k", "default"); got != "default" {
		t.Errorf("StateString() after close = %q, want default", got)
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO session_state (key, value, value_type) VALUES ('a', '1', 'int')"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Transaction() error = %v, want %v", err, sentinel)
	}
	if n := countRows(t, db, "session_state"); n != 0 {
		t.Errorf("session_state has %d rows after rollback, want 0", n)
	}

	// The write lock was released
	if err := db.SetState(ctx, "b", 2); err != nil {
		t.Errorf("SetState() after rollback: %v", err)
	}
}

func TestTransactionRollbackOnPanic(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("Transaction() should re-panic")
			}
		}()
		_ = db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO session_state (key, value, value_type) VALUES ('a', '1', 'int')"); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	if n := countRows(t, db, "session_state"); n != 0 {
		t.Errorf("session_state has %d rows after panic, want 0", n)
	}
	if err := db.SetState(ctx, "b", 2); err != nil {
		t.Errorf("SetState() after panic: %v", err)
	}
}

func TestTransactionCommit(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.ExecContext(ctx, "INSERT INTO session_state (key, value, value_type) VALUES (?, '1', 'int')", fmt.Sprintf("k%d", i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction() error = %v", err)
	}
	if n := countRows(t, db, "session_state"); n != 3 {
		t.Errorf("session_state has %d rows, want 3", n)
	}
}

func TestCorruptDatabaseRecovery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	garbage := []byte(strings.Repeat("this is definitely not a sqlite file ", 200))
	if err := os.WriteFile(dbPath, garbage, 0o600); err != nil {
		t.Fatal(err)
	}

	db, info, err := New(context.Background(), dbPath, nil)
	if err != nil {
		t.Fatalf("New() on corrupt file failed: %v", err)
	}
	defer db.Close()

	if !info.Recovered {
		t.Fatal("OpenInfo.Recovered should be set")
	}
	if !strings.HasPrefix(info.BackupPath, dbPath+".corrupt-") {
		t.Errorf("BackupPath = %q, want %s.corrupt-*", info.BackupPath, dbPath)
	}
	backup, err := os.ReadFile(info.BackupPath)
	if err != nil {
		t.Fatalf("backup not readable: %v", err)
	}
	if string(backup) != string(garbage) {
		t.Error("backup should hold the original bytes")
	}

	// The fresh store is fully usable
	ctx := context.Background()
	if err := db.StoreHash(ctx, "/x/y.jpg", AlgorithmSHA256, "abc", 1); err != nil {
		t.Fatalf("StoreHash() on recovered store: %v", err)
	}
	if err := db.CheckIntegrity(ctx); err != nil {
		t.Errorf("CheckIntegrity() on recovered store: %v", err)
	}
}

func TestMigrateFromOlderSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	ctx := context.Background()

	raw, err := open(ctx, dbPath, Options{})
	if err != nil {
		t.Fatalf("open() failed: %v", err)
	}
	old := &Database{db: raw, dbPath: dbPath, fields: make(map[string]MetadataField)}
	version, err := old.migrate(ctx, 3)
	if err != nil || version != 3 {
		t.Fatalf("migrate(3) = %d, %v", version, err)
	}
	if _, err := raw.ExecContext(ctx,
		"INSERT INTO file_paths (normalized_path, filename) VALUES ('/old/file.jpg', 'file.jpg')"); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	db, info, err := New(ctx, dbPath, nil)
	if err != nil {
		t.Fatalf("New() on v3 store failed: %v", err)
	}
	defer db.Close()

	if info.SchemaVersion != currentSchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", info.SchemaVersion, currentSchemaVersion)
	}
	id, ok, err := db.Resolve(ctx, "/old/file.jpg")
	if err != nil || !ok || id == 0 {
		t.Fatalf("existing record lost across migration: id=%d ok=%v err=%v", id, ok, err)
	}
	if got := db.GetColorTag(ctx, "/old/file.jpg"); got != ColorNone {
		t.Errorf("color tag after migration = %q, want %q", got, ColorNone)
	}
	if n := countRows(t, db, "thumbnail_cache"); n != 0 {
		t.Errorf("thumbnail_cache should exist and be empty, has %d rows", n)
	}
}

func TestNewRejectsNewerSchema(t *testing.T) {
	db, dbPath := setupTestDB(t)
	if _, err := db.db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion+10); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, _, err := New(context.Background(), dbPath, nil); err == nil {
		t.Fatal("New() should refuse a schema newer than the build")
	}
}

func TestReopenPreservesData(t *testing.T) {
	db, dbPath := setupTestDB(t)
	ctx := context.Background()

	if err := db.StoreHash(ctx, "/keep/me.jpg", AlgorithmXXH64, "0123456789abcdef", 42); err != nil {
		t.Fatal(err)
	}
	db.Close()

	reopened, info, err := New(ctx, dbPath, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if info.Recovered {
		t.Error("healthy store should not be recovered on reopen")
	}
	rec, ok := reopened.GetHash(ctx, "/keep/me.jpg", AlgorithmXXH64)
	if !ok || rec.Value != "0123456789abcdef" || rec.FileSizeAtHash != 42 {
		t.Errorf("GetHash() after reopen = %+v, %v", rec, ok)
	}
}

func TestSummary(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	for _, p := range []string{"/s/a.jpg", "/s/b.jpg"} {
		if _, err := db.ResolveOrCreate(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.SetState(ctx, "last_folder", "/s"); err != nil {
		t.Fatal(err)
	}

	s, err := db.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if s.Records["file_paths"] != 2 || s.Records["session_state"] != 1 {
		t.Errorf("Summary().Records = %v", s.Records)
	}
	if s.SchemaVersion != currentSchemaVersion {
		t.Errorf("Summary().SchemaVersion = %d", s.SchemaVersion)
	}
	if s.FileSizes["main"] == 0 {
		t.Error("Summary().FileSizes[main] should be non-zero")
	}

	stats := db.GetStats()
	if stats.Records["file_paths"] != 2 {
		t.Errorf("GetStats().Records = %v", stats.Records)
	}
}

func TestVacuum(t *testing.T) {
	db, _ := setupTestDB(t)
	if err := db.Vacuum(context.Background()); err != nil {
		t.Errorf("Vacuum() error = %v", err)
	}
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				p := fmt.Sprintf("/c/%d/%d.jpg", w, i)
				if err := db.StoreHash(ctx, p, AlgorithmCRC32, fmt.Sprintf("%08X", w*100+i), int64(i)); err != nil {
					errs <- err
					return
				}
				if _, ok := db.GetHash(ctx, p, AlgorithmCRC32); !ok {
					errs <- fmt.Errorf("hash for %s missing right after store", p)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if n := countRows(t, db, "file_hashes"); n != 80 {
		t.Errorf("file_hashes has %d rows, want 80", n)
	}
}
