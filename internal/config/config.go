// Package config loads importer configuration from the environment, an
// optional YAML file and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Network    NetworkConfig    `yaml:"network"`
	Source     SourceConfig     `yaml:"source"`
	Storage    StorageConfig    `yaml:"storage"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Perf       PerfConfig       `yaml:"perf"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Build      BuildConfig      `yaml:"build"`
}

type NetworkConfig struct {
	Name string `yaml:"name"` // "mainnet" | "testnet" | "previewnet" | other
}

type SourceConfig struct {
	Mode      string `yaml:"mode"` // "local" | "gcs" | "s3"
	LocalPath string `yaml:"local_path"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Format    string `yaml:"format"` // "record" | "block" | ""
}

type StorageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Backend  string `yaml:"backend"` // "local" | "gcs" | "s3"
	LocalDir string `yaml:"local_dir"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type PerfConfig struct {
	Workers    int `yaml:"workers"`
	QueueSize  int `yaml:"queue_size"`
	MaxRetries int `yaml:"max_retries"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Format string `yaml:"format"` // "json" | "text"
	Level  string `yaml:"level"`
}

type BuildConfig struct {
	// ErrataFile replaces the embedded errata table when set.
	ErrataFile string `yaml:"errata_file"`
	// StrictParents fails a file when a declared parent cannot be linked.
	StrictParents bool `yaml:"strict_parents"`
}

// Load reads the environment and overlays the YAML file named by
// CONFIG_FILE, if any.
func Load() (Config, error) {
	cfg := FromEnv()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// MustLoad is Load that exits the process on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

// FromEnv builds a configuration from environment variables and defaults.
func FromEnv() Config {
	return Config{
		Network: NetworkConfig{
			Name: getenvDefault("NETWORK", "mainnet"),
		},
		Source: SourceConfig{
			Mode:      getenvDefault("SOURCE_MODE", "local"),
			LocalPath: getenvDefault("SOURCE_PATH", "./streams"),
			Bucket:    os.Getenv("SOURCE_BUCKET"),
			Prefix:    os.Getenv("SOURCE_PREFIX"),
			Endpoint:  os.Getenv("SOURCE_ENDPOINT"),
			Region:    os.Getenv("SOURCE_REGION"),
			Format:    os.Getenv("SOURCE_FORMAT"),
		},
		Storage: StorageConfig{
			Enabled:  os.Getenv("STORAGE_ENABLED") == "true",
			Backend:  getenvDefault("STORAGE_BACKEND", "local"),
			LocalDir: getenvDefault("LOCAL_DIR", "./data"),
			Bucket:   os.Getenv("STORAGE_BUCKET"),
			Prefix:   getenvDefault("STORAGE_PREFIX", "transactions/"),
			Endpoint: os.Getenv("STORAGE_ENDPOINT"),
			Region:   os.Getenv("STORAGE_REGION"),
		},
		Catalog: CatalogConfig{
			PostgresDSN: os.Getenv("CATALOG_DSN"),
		},
		Checkpoint: CheckpointConfig{
			Enabled: os.Getenv("CHECKPOINT_ENABLED") != "false",
			Dir:     getenvDefault("CHECKPOINT_DIR", "./checkpoints"),
		},
		Perf: PerfConfig{
			Workers:    parseInt(getenvDefault("WORKERS", "4")),
			QueueSize:  parseInt(getenvDefault("QUEUE_SIZE", "16")),
			MaxRetries: parseInt(getenvDefault("MAX_RETRIES", "3")),
		},
		Metrics: MetricsConfig{
			Enabled: os.Getenv("METRICS_ENABLED") == "true",
			Address: getenvDefault("METRICS_ADDRESS", ":9090"),
		},
		Logging: LoggingConfig{
			Format: getenvDefault("LOG_FORMAT", "text"),
			Level:  getenvDefault("LOG_LEVEL", "info"),
		},
		Build: BuildConfig{
			ErrataFile:    os.Getenv("ERRATA_FILE"),
			StrictParents: os.Getenv("STRICT_PARENTS") == "true",
		},
	}
}

// MergeFile overlays the YAML document at path. Keys absent from the file
// keep their current values.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// AddFlags registers command-line overrides. Flag defaults are the current
// values, so flags left unset keep whatever the environment and file set.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Network.Name, "network", c.Network.Name, "network name recorded with every file")
	fs.StringVar(&c.Source.Mode, "source", c.Source.Mode, "source mode: local, gcs or s3")
	fs.StringVar(&c.Source.LocalPath, "source-path", c.Source.LocalPath, "local directory holding stream files")
	fs.StringVar(&c.Source.Bucket, "source-bucket", c.Source.Bucket, "bucket holding stream files")
	fs.StringVar(&c.Source.Prefix, "source-prefix", c.Source.Prefix, "object prefix inside the source bucket")
	fs.StringVar(&c.Source.Format, "format", c.Source.Format, "stream file format: record, block or any")
	fs.BoolVar(&c.Storage.Enabled, "archive", c.Storage.Enabled, "write parquet tables for accepted files")
	fs.StringVar(&c.Storage.Backend, "storage", c.Storage.Backend, "archive backend: local, gcs or s3")
	fs.StringVar(&c.Storage.LocalDir, "storage-dir", c.Storage.LocalDir, "local archive directory")
	fs.StringVar(&c.Storage.Bucket, "storage-bucket", c.Storage.Bucket, "archive bucket")
	fs.StringVar(&c.Catalog.PostgresDSN, "catalog-dsn", c.Catalog.PostgresDSN, "postgres DSN of the catalog (in-memory when empty)")
	fs.BoolVar(&c.Checkpoint.Enabled, "checkpoint", c.Checkpoint.Enabled, "persist a checkpoint after every accepted file")
	fs.StringVar(&c.Checkpoint.Dir, "checkpoint-dir", c.Checkpoint.Dir, "checkpoint directory")
	fs.IntVarP(&c.Perf.Workers, "workers", "w", c.Perf.Workers, "concurrent file decoders")
	fs.IntVar(&c.Perf.QueueSize, "queue-size", c.Perf.QueueSize, "files buffered between stages")
	fs.IntVar(&c.Perf.MaxRetries, "max-retries", c.Perf.MaxRetries, "attempts for storage and catalog writes")
	fs.BoolVar(&c.Metrics.Enabled, "metrics", c.Metrics.Enabled, "serve prometheus metrics")
	fs.StringVar(&c.Metrics.Address, "metrics-address", c.Metrics.Address, "metrics listen address")
	fs.StringVar(&c.Logging.Format, "log-format", c.Logging.Format, "log format: json or text")
	fs.StringVar(&c.Logging.Level, "log-level", c.Logging.Level, "log level")
	fs.StringVar(&c.Build.ErrataFile, "errata", c.Build.ErrataFile, "YAML errata table replacing the embedded one")
	fs.BoolVar(&c.Build.StrictParents, "strict-parents", c.Build.StrictParents, "fail files with unresolved parent links")
}

// Validate checks option values that would otherwise fail deep inside a
// component.
func (c Config) Validate() error {
	switch c.Source.Mode {
	case "local", "gcs", "s3":
	default:
		return fmt.Errorf("source mode %q: want local, gcs or s3", c.Source.Mode)
	}
	switch c.Source.Format {
	case "", "any", "record", "block":
	default:
		return fmt.Errorf("source format %q: want record or block", c.Source.Format)
	}
	if c.Storage.Enabled {
		switch c.Storage.Backend {
		case "local", "gcs", "s3":
		default:
			return fmt.Errorf("storage backend %q: want local, gcs or s3", c.Storage.Backend)
		}
	}
	if c.Perf.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Perf.Workers)
	}
	if c.Network.Name == "" {
		return fmt.Errorf("network name required")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func parseInt(v string) int {
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return parsed
}
