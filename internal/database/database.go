package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	"batch-renamer/internal/cache"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

const (
	driverName       = "sqlite3_batchrenamer"
	driverNameNoMmap = "sqlite3_batchrenamer_nommap"
)

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{})
	// mmap over network filesystems turns I/O errors into SIGBUS.
	sql.Register(driverNameNoMmap, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec("PRAGMA mmap_size = 0", nil)
			return err
		},
	})
}

// Options controls how the store is opened. A nil *Options uses defaults.
type Options struct {
	// MmapDisabled turns off SQLite memory-mapped I/O (for NFS-backed files).
	MmapDisabled bool

	// HashCacheSize and MetadataCacheSize bound the in-memory tiers.
	HashCacheSize     int
	MetadataCacheSize int
}

// Default tier capacities
const (
	DefaultHashCacheSize     = 2000
	DefaultMetadataCacheSize = 2000
)

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.HashCacheSize <= 0 {
		out.HashCacheSize = DefaultHashCacheSize
	}
	if out.MetadataCacheSize <= 0 {
		out.MetadataCacheSize = DefaultMetadataCacheSize
	}
	return out
}

// OpenInfo describes what New found and did, for startup logging.
type OpenInfo struct {
	SQLiteVersion string
	MmapStatus    string
	SchemaVersion int
	// Recovered is set when the existing file failed its integrity probe and
	// was moved aside to BackupPath.
	Recovered  bool
	BackupPath string
}

// Database is the single owner of the durable store. It composes the path
// registry, hash and metadata stores, session state and thumbnail index, and
// serializes every write through one lock.
type Database struct {
	db     *sql.DB
	dbPath string

	// writeMu serializes writers; readers run concurrently under WAL.
	writeMu sync.Mutex
	closed  atomic.Bool

	hashTier *cache.Tiered[HashRecord]
	metaTier *cache.Tiered[MetadataRecord]

	fieldsMu sync.RWMutex
	fields   map[string]MetadataField
}

// New opens (creating if needed) the store at dbPath, recovers from a corrupt
// file, and migrates the schema to the current version. The parent directory
// must exist.
//
// Only migration failures and connection failures that persist after one
// retry are returned as errors.
func New(ctx context.Context, dbPath string, opts *Options) (*Database, OpenInfo, error) {
	o := opts.withDefaults()
	var info OpenInfo

	logging.Info("Database path: %s", dbPath)
	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	db, err := openWithRetry(ctx, dbPath, o)
	var probeErr error
	switch {
	case err != nil && isCorruptErr(err):
		probeErr = err
	case err != nil:
		return nil, info, err
	default:
		if probeErr = checkIntegrity(ctx, db); probeErr != nil {
			if closeErr := db.Close(); closeErr != nil {
				logging.Error("failed to close corrupt database: %v", closeErr)
			}
		}
	}

	if probeErr != nil {
		logging.Warn("%v: %s: %v", ErrCorruptDurableStore, dbPath, probeErr)

		backup, err := backupCorrupt(dbPath)
		if err != nil {
			return nil, info, fmt.Errorf("failed to move corrupt database aside: %w", err)
		}
		logging.Warn("Corrupt database moved to %s, creating a fresh store", backup)
		metrics.DBRecoveriesTotal.Inc()
		info.Recovered = true
		info.BackupPath = backup

		db, err = openWithRetry(ctx, dbPath, o)
		if err != nil {
			return nil, info, err
		}
	}

	d := &Database{
		db:     db,
		dbPath: dbPath,
		fields: make(map[string]MetadataField),
	}

	version, err := d.migrate(ctx, currentSchemaVersion)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after migration failure: %v", closeErr)
		}
		return nil, info, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	info.SchemaVersion = version

	if err := d.EnsureDefaultTaxonomy(ctx); err != nil {
		logging.Warn("Failed to seed metadata taxonomy: %v", err)
	}

	d.hashTier = cache.NewTiered[HashRecord]("hash", o.HashCacheSize, hashBackend{d})
	d.metaTier = cache.NewTiered[MetadataRecord]("metadata", o.MetadataCacheSize, metadataBackend{d})

	info.SQLiteVersion = d.sqliteVersion(ctx)
	if o.MmapDisabled {
		info.MmapStatus = "disabled (SIGBUS protection active)"
	} else {
		info.MmapStatus = "enabled (standard mode)"
	}

	logging.Info("Database initialized successfully at %s (schema v%d)", dbPath, version)
	return d, info, nil
}

func connString(dbPath string) string {
	// busy_timeout absorbs short lock contention between pooled connections
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_cache_size=10000&_temp_store=MEMORY", dbPath)
}

func openWithRetry(ctx context.Context, dbPath string, o Options) (*sql.DB, error) {
	db, err := open(ctx, dbPath, o)
	if err == nil {
		return db, nil
	}
	if isCorruptErr(err) {
		return nil, err
	}
	logging.Warn("Database open failed, retrying once: %v", err)

	select {
	case <-time.After(250 * time.Millisecond):
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to connect to database: %w", ctx.Err())
	}

	db, err = open(ctx, dbPath, o)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func open(ctx context.Context, dbPath string, o Options) (*sql.DB, error) {
	driver := driverName
	if o.MmapDisabled {
		driver = driverNameNoMmap
	}

	db, err := sql.Open(driver, connString(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, err
	}

	// One *sql.DB per process. Pooled connections let readers proceed
	// while a writer holds writeMu.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// checkIntegrity runs PRAGMA quick_check and returns an error when the file
// is not a healthy database.
func checkIntegrity(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var result string
	err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result)
	if err != nil {
		if isCorruptErr(err) {
			return err
		}
		// Anything else (locked, I/O) is not evidence of corruption.
		logging.Warn("Integrity probe could not run: %v", err)
		return nil
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	return nil
}

// backupCorrupt renames the database and its WAL/SHM side files to
// <name>.corrupt-<timestamp> and returns the main backup path.
func backupCorrupt(dbPath string) (string, error) {
	suffix := ".corrupt-" + time.Now().Format("20060102-150405")
	backup := dbPath + suffix

	if err := os.Rename(dbPath, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	for _, side := range []string{"-wal", "-shm"} {
		if err := os.Rename(dbPath+side, dbPath+side+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to move %s aside: %v", dbPath+side, err)
		}
	}
	return backup, nil
}

func (d *Database) sqliteVersion(ctx context.Context) string {
	var version string
	if err := d.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return "unknown"
	}
	return version
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Close marks the store closed, waits for the writer in progress, and closes
// the connection pool. Operations racing Close observe ErrStoreUnavailable.
func (d *Database) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.db.Close()
}

// lockWrite takes the write-serialization lock, recording the wait.
func (d *Database) lockWrite() func() {
	start := time.Now()
	d.writeMu.Lock()
	metrics.DBWriteLockWait.Observe(time.Since(start).Seconds())
	return d.writeMu.Unlock
}

// exec runs one write statement under the write lock.
func (d *Database) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	if d.closed.Load() {
		metrics.DBUnavailableTotal.WithLabelValues(op).Inc()
		return nil, ErrStoreUnavailable
	}

	start := time.Now()
	var err error
	defer func() { recordQuery(op, start, err) }()

	unlock := d.lockWrite()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

// readable reports whether reads may proceed, counting refusals.
func (d *Database) readable(op string) bool {
	if d.closed.Load() {
		metrics.DBUnavailableTotal.WithLabelValues(op).Inc()
		return false
	}
	return true
}

// Transaction runs fn inside one write transaction holding the write lock.
// The transaction commits when fn returns nil and rolls back when fn returns
// an error or panics; the lock is released on every path.
func (d *Database) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	if d.closed.Load() {
		metrics.DBUnavailableTotal.WithLabelValues("transaction").Inc()
		return ErrStoreUnavailable
	}

	unlock := d.lockWrite()
	defer unlock()

	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
		return classify("commit", err)
	}
	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(time.Since(start).Seconds())
	return nil
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	if d.closed.Load() {
		return ErrStoreUnavailable
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	unlock := d.lockWrite()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return classify("vacuum", err)
}

// CheckIntegrity runs the integrity probe against the open store.
func (d *Database) CheckIntegrity(ctx context.Context) error {
	if !d.readable("integrity") {
		return ErrStoreUnavailable
	}
	if err := checkIntegrity(ctx, d.db); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptDurableStore, err)
	}
	return nil
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

var countedTables = []string{
	"file_paths", "file_hashes", "file_metadata", "file_metadata_structured",
	"thumbnail_cache", "thumbnail_order", "session_state",
}

// Summary returns row counts, file sizes and the schema version.
func (d *Database) Summary(ctx context.Context) (Summary, error) {
	s := Summary{
		Path:      d.dbPath,
		Records:   make(map[string]int64, len(countedTables)),
		FileSizes: d.fileSizes(),
	}
	if !d.readable("summary") {
		return s, ErrStoreUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	for _, table := range countedTables {
		var n int64
		// table names come from the fixed list above
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return s, classify("summary", err)
		}
		s.Records[table] = n
	}

	version, err := schemaVersion(ctx, d.db)
	if err != nil {
		return s, classify("summary", err)
	}
	s.SchemaVersion = version
	return s, nil
}

func (d *Database) fileSizes() map[string]int64 {
	sizes := make(map[string]int64, 3)
	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		if info, err := os.Stat(d.dbPath + suffix); err == nil {
			sizes[label] = info.Size()
		} else {
			sizes[label] = 0
		}
	}
	return sizes
}

// GetStats implements metrics.StatsProvider.
func (d *Database) GetStats() metrics.Stats {
	d.UpdateDBMetrics()
	summary, err := d.Summary(context.Background())
	if err != nil {
		logging.Debug("stats collection skipped: %v", err)
		return metrics.Stats{DBFileSizes: summary.FileSizes}
	}
	return metrics.Stats{Records: summary.Records, DBFileSizes: summary.FileSizes}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only (mode %v), writes will fail", p, info.Mode())
			if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", p, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", p)
			}
		}
	}
	return nil
}
