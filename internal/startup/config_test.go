package startup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "port: \"8080\"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/database", cfg.DatabaseDir)
	assert.Equal(t, filepath.Join("/database", "batch-renamer.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join("/cache", "thumbnails"), cfg.ThumbnailDir)
	assert.Equal(t, 2000, cfg.Cache.HashCapacity)
	assert.Equal(t, 2000, cfg.Cache.MetadataCapacity)
	assert.Equal(t, 500, cfg.Thumbnails.MemoryCapacity)
	assert.Equal(t, 256, cfg.Thumbnails.Size)
	assert.Equal(t, 5*time.Second, cfg.Thumbnails.ShutdownTimeout)
	assert.Equal(t, "CRC32", cfg.Hashing.Algorithm)
	assert.True(t, cfg.Thumbnails.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
database_dir: `+dir+`/db
cache_dir: `+dir+`/cache
port: "9000"
cache:
  hash_capacity: 10
thumbnails:
  size: 128
  workers: 2
  shutdown_timeout: 2s
hashing:
  algorithm: sha256
log:
  level: WARNING
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "db"), cfg.DatabaseDir)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 10, cfg.Cache.HashCapacity)
	assert.Equal(t, 2000, cfg.Cache.MetadataCapacity, "unset keys keep defaults")
	assert.Equal(t, 128, cfg.Thumbnails.Size)
	assert.Equal(t, 2, cfg.Thumbnails.Workers)
	assert.Equal(t, 2*time.Second, cfg.Thumbnails.ShutdownTimeout)
	assert.Equal(t, "SHA256", cfg.Hashing.Algorithm)
	assert.Equal(t, "warning", cfg.Log.Level)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "thumbnails:\n  workers: 2\n")
	t.Setenv("BATCHRENAMER_THUMBNAILS_WORKERS", "6")
	t.Setenv("BATCHRENAMER_HASHING_ALGORITHM", "xxh64")
	t.Setenv("BATCHRENAMER_THUMBNAILS_SHUTDOWN_TIMEOUT", "750ms")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Thumbnails.Workers)
	assert.Equal(t, "XXH64", cfg.Hashing.Algorithm)
	assert.Equal(t, 750*time.Millisecond, cfg.Thumbnails.ShutdownTimeout)
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "port: \"7070\"\n")
	t.Setenv("BATCHRENAMER_CONFIG", path)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)

	// An explicit path wins over the variable
	other := writeConfig(t, "port: \"7171\"\n")
	cfg, err = LoadConfig(other)
	require.NoError(t, err)
	assert.Equal(t, "7171", cfg.Port)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "size too small", body: "thumbnails:\n  size: 8\n", wantErr: "Config.Thumbnails.Size"},
		{name: "unknown algorithm", body: "hashing:\n  algorithm: md5\n", wantErr: "Config.Hashing.Algorithm"},
		{name: "zero capacity", body: "cache:\n  hash_capacity: 0\n", wantErr: "Config.Cache.HashCapacity"},
		{name: "port not numeric", body: "port: http\n", wantErr: "Config.Port"},
		{name: "bad log level", body: "log:\n  level: verbose\n", wantErr: "Config.Log.Level"},
		{name: "media equals cache", body: "media_dir: /srv\ncache_dir: /srv\n", wantErr: "media_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "thumbnails: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	// Refuses to overwrite without force
	require.Error(t, WriteDefaultConfig(path, false))
	require.NoError(t, WriteDefaultConfig(path, true))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Thumbnails, cfg.Thumbnails)
	assert.Equal(t, def.Cache, cfg.Cache)
	assert.Equal(t, def.Hashing, cfg.Hashing)
	assert.Equal(t, def.Metrics, cfg.Metrics)
}
