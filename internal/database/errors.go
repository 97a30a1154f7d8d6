package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"batch-renamer/internal/metrics"
)

var (
	// ErrInvalidPath is returned for empty paths or paths containing control bytes.
	ErrInvalidPath = errors.New("invalid path")

	// ErrStoreUnavailable means the store is closing, closed or locked.
	// Callers treat it as a cache miss.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCorruptDurableStore marks a database file that failed its integrity probe.
	ErrCorruptDurableStore = errors.New("corrupt durable store")

	// ErrUnknownField is logged when a structured metadata value names an
	// unregistered field.
	ErrUnknownField = errors.New("unknown metadata field")

	// ErrNotFound is returned by lookups that need a record to exist.
	ErrNotFound = errors.New("not found")
)

// IsUnavailable reports whether err means the store could not be reached
// rather than that the operation itself was wrong.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// classify wraps driver errors that signal shutdown or contention in
// ErrStoreUnavailable and counts them.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if isUnavailableErr(err) {
		metrics.DBUnavailableTotal.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailableErr(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	// database/sql does not export this one
	return strings.Contains(err.Error(), "sql: database is closed")
}

// isCorruptErr reports driver errors that mean the file is not a usable database.
func isCorruptErr(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrCorrupt || sqliteErr.Code == sqlite3.ErrNotADB
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "database disk image is malformed")
}
