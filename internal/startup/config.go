package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every configuration environment variable, for example
// BATCHRENAMER_THUMBNAILS_WORKERS=4.
const EnvPrefix = "BATCHRENAMER"

// configPathKey names the config file when no path is given
// (BATCHRENAMER_CONFIG).
const configPathKey = "config"

// Config holds all application configuration.
type Config struct {
	DatabaseDir string `mapstructure:"database_dir" yaml:"database_dir" validate:"required"`
	CacheDir    string `mapstructure:"cache_dir" yaml:"cache_dir" validate:"required"`
	// MediaDir is the folder watched for external changes. Empty disables
	// the watcher regardless of Watch.Enabled.
	MediaDir string `mapstructure:"media_dir" yaml:"media_dir"`
	Port     string `mapstructure:"port" yaml:"port" validate:"required,numeric"`

	Log        LogConfig       `mapstructure:"log" yaml:"log"`
	Database   DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Cache      CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Thumbnails ThumbnailConfig `mapstructure:"thumbnails" yaml:"thumbnails"`
	Hashing    HashingConfig   `mapstructure:"hashing" yaml:"hashing"`
	Memory     MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	Watch      WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Metrics    MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	// Derived paths
	DatabasePath string `mapstructure:"-" yaml:"-"`
	ThumbnailDir string `mapstructure:"-" yaml:"-"`
}

// LogConfig controls log level and optional file output.
type LogConfig struct {
	// Level overrides LOG_LEVEL when set
	Level      string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
}

// DatabaseConfig tunes the SQLite store.
type DatabaseConfig struct {
	// MmapDisabled turns off memory-mapped I/O, required on NFS
	MmapDisabled bool `mapstructure:"mmap_disabled" yaml:"mmap_disabled"`
}

// CacheConfig bounds the in-memory tiers.
type CacheConfig struct {
	HashCapacity     int `mapstructure:"hash_capacity" yaml:"hash_capacity" validate:"gte=1"`
	MetadataCapacity int `mapstructure:"metadata_capacity" yaml:"metadata_capacity" validate:"gte=1"`
}

// ThumbnailConfig configures the artifact cache and pipeline.
type ThumbnailConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	MemoryCapacity  int           `mapstructure:"memory_capacity" yaml:"memory_capacity" validate:"gte=1"`
	Size            int           `mapstructure:"size" yaml:"size" validate:"gte=16,lte=2048"`
	Workers         int           `mapstructure:"workers" yaml:"workers" validate:"gte=0,lte=64"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval" validate:"gte=0"`
	UseVips         bool          `mapstructure:"use_vips" yaml:"use_vips"`
}

// HashingConfig configures the hash producer.
type HashingConfig struct {
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm" validate:"oneof=CRC32 XXH64 SHA256"`
	Workers   int    `mapstructure:"workers" yaml:"workers" validate:"gte=0,lte=64"`
}

// MemoryConfig configures the Go memory limit and pressure monitor.
type MemoryConfig struct {
	// LimitBytes is the container memory limit; 0 leaves GOMEMLIMIT alone
	LimitBytes int64   `mapstructure:"limit_bytes" yaml:"limit_bytes" validate:"gte=0"`
	Ratio      float64 `mapstructure:"ratio" yaml:"ratio" validate:"gt=0,lte=1"`
}

// WatchConfig enables filesystem watching of MediaDir.
type WatchConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MetricsConfig controls the /metrics endpoint and stats polling.
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		DatabaseDir: "/database",
		CacheDir:    "/cache",
		Port:        "8080",
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Cache: CacheConfig{
			HashCapacity:     2000,
			MetadataCapacity: 2000,
		},
		Thumbnails: ThumbnailConfig{
			Enabled:         true,
			MemoryCapacity:  500,
			Size:            256,
			ShutdownTimeout: 5 * time.Second,
			CleanupInterval: 6 * time.Hour,
			UseVips:         true,
		},
		Hashing: HashingConfig{
			Algorithm: "CRC32",
		},
		Memory: MemoryConfig{
			Ratio: 0.85,
		},
		Watch: WatchConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Interval: time.Minute,
		},
	}
}

// setDefaults registers every key with viper so environment variables are
// picked up by Unmarshal even when no config file mentions them.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	defaults := map[string]any{
		"database_dir":                d.DatabaseDir,
		"cache_dir":                   d.CacheDir,
		"media_dir":                   d.MediaDir,
		"port":                        d.Port,
		"log.level":                   d.Log.Level,
		"log.file":                    d.Log.File,
		"log.max_size_mb":             d.Log.MaxSizeMB,
		"log.max_backups":             d.Log.MaxBackups,
		"log.max_age_days":            d.Log.MaxAgeDays,
		"database.mmap_disabled":      d.Database.MmapDisabled,
		"cache.hash_capacity":         d.Cache.HashCapacity,
		"cache.metadata_capacity":     d.Cache.MetadataCapacity,
		"thumbnails.enabled":          d.Thumbnails.Enabled,
		"thumbnails.memory_capacity":  d.Thumbnails.MemoryCapacity,
		"thumbnails.size":             d.Thumbnails.Size,
		"thumbnails.workers":          d.Thumbnails.Workers,
		"thumbnails.shutdown_timeout": d.Thumbnails.ShutdownTimeout,
		"thumbnails.cleanup_interval": d.Thumbnails.CleanupInterval,
		"thumbnails.use_vips":         d.Thumbnails.UseVips,
		"hashing.algorithm":           d.Hashing.Algorithm,
		"hashing.workers":             d.Hashing.Workers,
		"memory.limit_bytes":          d.Memory.LimitBytes,
		"memory.ratio":                d.Memory.Ratio,
		"watch.enabled":               d.Watch.Enabled,
		"metrics.enabled":             d.Metrics.Enabled,
		"metrics.interval":            d.Metrics.Interval,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

var validate = validator.New()

// LoadConfig reads configuration from the YAML file at path (optional; an
// empty path falls back to BATCHRENAMER_CONFIG and then searches the working
// directory and /etc/batch-renamer for config.yaml), .env files and BATCHRENAMER_* environment variables, in
// increasing order of precedence, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		loadDotEnv("")
		if err := v.BindEnv(configPathKey); err != nil {
			return nil, err
		}
		path = v.GetString(configPathKey)
	}
	loadDotEnv(path)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/batch-renamer")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func loadDotEnv(configPath string) {
	for _, envFile := range []string{".env", ".env.local"} {
		// Missing files are fine
		_ = godotenv.Load(envFile)
	}
	if configPath != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env"))
	}
}

func (c *Config) normalize() error {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Hashing.Algorithm = strings.ToUpper(strings.TrimSpace(c.Hashing.Algorithm))
	if c.Hashing.Algorithm == "" {
		c.Hashing.Algorithm = "CRC32"
	}

	for _, dir := range []*string{&c.DatabaseDir, &c.CacheDir, &c.MediaDir} {
		if *dir == "" {
			continue
		}
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("failed to resolve directory path %s: %w", *dir, err)
		}
		*dir = abs
	}

	c.DatabasePath = filepath.Join(c.DatabaseDir, "batch-renamer.db")
	c.ThumbnailDir = filepath.Join(c.CacheDir, "thumbnails")
	return nil
}

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if cfg.Watch.Enabled && cfg.MediaDir != "" && cfg.MediaDir == cfg.CacheDir {
		return errors.New("media_dir: must differ from cache_dir")
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// WriteDefaultConfig writes the default configuration as YAML to path. It
// refuses to overwrite an existing file unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	header := []byte("# batch-renamer cache configuration\n# Every key can be overridden with " + EnvPrefix + "_<SECTION>_<KEY>.\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
