package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel is the severity of a message.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelTags = [...]string{"[DEBUG] ", "[INFO] ", "[WARN] ", "[ERROR] "}

var (
	level     atomic.Int32
	levelInit sync.Once

	fileMu sync.Mutex
	file   *lumberjack.Logger
)

// ParseLevel converts a level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// envLevel reads DEBUG (any truthy value) and then LOG_LEVEL.
func envLevel() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

func ensureLevel() {
	levelInit.Do(func() { level.Store(int32(envLevel())) })
}

// SetLevel overrides the level picked up from the environment.
// An empty string leaves the current level unchanged.
func SetLevel(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	ensureLevel()
	level.Store(int32(ParseLevel(name)))
}

// GetLevel returns the current log level.
func GetLevel() LogLevel {
	ensureLevel()
	return LogLevel(level.Load())
}

// IsDebugEnabled reports whether debug messages are written.
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// SetOutputFile mirrors log output to a size-rotated file in addition to
// stderr. An empty path restores stderr-only output.
func SetOutputFile(path string, maxSizeMB, maxBackups, maxAgeDays int) {
	fileMu.Lock()
	defer fileMu.Unlock()

	if file != nil {
		if err := file.Close(); err != nil {
			log.Printf("%sfailed to close log file: %v", levelTags[LevelWarn], err)
		}
		file = nil
	}
	if path == "" {
		log.SetOutput(os.Stderr)
		return
	}

	file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, file))
}

// Close flushes and closes the rotating log file, if any.
func Close() {
	SetOutputFile("", 0, 0, 0)
}

func logf(l LogLevel, format string, args []any) {
	if GetLevel() <= l {
		log.Printf(levelTags[l]+format, args...)
	}
}

// Debug logs at debug level (DEBUG=1 or LOG_LEVEL=debug).
func Debug(format string, args ...any) { logf(LevelDebug, format, args) }

// Info logs at info level.
func Info(format string, args ...any) { logf(LevelInfo, format, args) }

// Warn logs at warn level.
func Warn(format string, args ...any) { logf(LevelWarn, format, args) }

// Error logs at error level.
func Error(format string, args ...any) { logf(LevelError, format, args) }

// Fatal logs regardless of level and exits with status 1.
func Fatal(format string, args ...any) {
	log.Fatalf("[FATAL] "+format, args...)
}

func (l LogLevel) String() string {
	if l >= LevelDebug && int(l) < len(levelTags) {
		return strings.ToLower(strings.Trim(levelTags[l], "[] "))
	}
	return fmt.Sprintf("unknown(%d)", int32(l))
}
