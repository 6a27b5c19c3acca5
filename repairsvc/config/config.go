// Package config loads service configuration from file or environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the service. Values are read by viper
// from a config file or environment variables.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Store     StoreConfig     `mapstructure:"store"`
	FoldX     FoldXConfig     `mapstructure:"foldx"`
	Prep      PrepConfig      `mapstructure:"prep"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServiceConfig stores HTTP server and workspace settings.
type ServiceConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WorkspaceRoot   string        `mapstructure:"workspace_root"`
}

// StoreConfig stores artifact store connection details.
type StoreConfig struct {
	Mode          string            `mapstructure:"mode"`           // "http" or "libsql"
	BaseURL       string            `mapstructure:"base_url"`       // remote store endpoint
	Token         string            `mapstructure:"token"`          // bearer token for the remote store
	Timeout       time.Duration     `mapstructure:"timeout"`        // per-call timeout on store requests
	DefaultPolicy string            `mapstructure:"default_policy"` // policy URN applied when the request names none
	LibSQL        LibSQLStoreConfig `mapstructure:"libsql"`
}

// LibSQLStoreConfig stores embedded store settings (local/dev mode).
type LibSQLStoreConfig struct {
	Path         string `mapstructure:"path"`          // database file
	BlobDir      string `mapstructure:"blob_dir"`      // artifact payload directory
	InboxDir     string `mapstructure:"inbox_dir"`     // watched import directory, empty disables the watcher
	InboxWorkers int    `mapstructure:"inbox_workers"` // concurrent inbox imports
}

// FoldXConfig stores external repair binary settings.
type FoldXConfig struct {
	Binary string `mapstructure:"binary"` // path to the FoldX executable
}

// PrepConfig stores preprocessing settings.
type PrepConfig struct {
	SingleChain bool `mapstructure:"single_chain"` // truncate at the first terminator record
}

// CacheConfig stores the in-process aspect cache settings.
type CacheConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	TTL                time.Duration `mapstructure:"ttl"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
}

// TelemetryConfig stores logging and progress reporting settings.
type TelemetryConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	Pretty         bool   `mapstructure:"pretty"`
	EnableProgress bool   `mapstructure:"enable_progress"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pdb-repair")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.read_timeout", "30s")
	v.SetDefault("service.write_timeout", "10m")
	v.SetDefault("service.shutdown_timeout", "10s")
	v.SetDefault("service.workspace_root", filepath.Join(os.TempDir(), "pdb-repair"))

	v.SetDefault("store.mode", "http")
	v.SetDefault("store.base_url", "http://localhost:8088")
	v.SetDefault("store.token", "")
	v.SetDefault("store.timeout", "60s")
	v.SetDefault("store.default_policy", "")
	v.SetDefault("store.libsql.path", filepath.Join(os.TempDir(), "pdb-repair", "store.db"))
	v.SetDefault("store.libsql.blob_dir", filepath.Join(os.TempDir(), "pdb-repair", "blobs"))
	v.SetDefault("store.libsql.inbox_dir", "")
	v.SetDefault("store.libsql.inbox_workers", 4)

	v.SetDefault("foldx.binary", "foldx_20251231")

	v.SetDefault("prep.single_chain", true)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.capacity", 10000)
	v.SetDefault("cache.num_shards", 64)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.eviction_percentage", 10)

	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.pretty", false)
	v.SetDefault("telemetry.enable_progress", true)

	v.SetEnvPrefix("PDBREPAIR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment are enough.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration invariants the service depends on.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port %d is out of range", c.Service.Port)
	}
	if c.Service.WorkspaceRoot == "" {
		return fmt.Errorf("service.workspace_root must not be empty")
	}
	switch c.Store.Mode {
	case "http":
		if c.Store.BaseURL == "" {
			return fmt.Errorf("store.base_url must be set in http mode")
		}
	case "libsql":
		if c.Store.LibSQL.Path == "" {
			return fmt.Errorf("store.libsql.path must be set in libsql mode")
		}
	default:
		return fmt.Errorf("store.mode %q is not one of http, libsql", c.Store.Mode)
	}
	if c.FoldX.Binary == "" {
		return fmt.Errorf("foldx.binary must not be empty")
	}
	if c.Cache.Enabled {
		if c.Cache.Capacity <= 0 || c.Cache.NumShards <= 0 {
			return fmt.Errorf("cache.capacity and cache.num_shards must be positive")
		}
		if c.Cache.EvictionPercentage < 1 || c.Cache.EvictionPercentage > 100 {
			return fmt.Errorf("cache.eviction_percentage must be between 1 and 100")
		}
	}
	return nil
}
