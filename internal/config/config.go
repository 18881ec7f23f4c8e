// Package config provides configuration management for the Tribuna storage
// server. Configuration can be loaded from YAML files and environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
)

// Config represents the complete application configuration. It is built once
// at process start and passed by reference into every component constructor;
// nothing reads the environment after startup.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Upload      UploadConfig      `mapstructure:"upload"`
	Download    DownloadConfig    `mapstructure:"download"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the file-record database settings.
// Supports both PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// SQLite settings (used when Driver is "sqlite")
	Path        string `mapstructure:"path"`
	JournalMode string `mapstructure:"journal_mode"`
	BusyTimeout int    `mapstructure:"busy_timeout"`
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsEmbedded returns true if using an embedded database (SQLite).
func (c DatabaseConfig) IsEmbedded() bool {
	return c.Driver == "sqlite"
}

// RedisConfig holds Redis connection settings. Redis backs the distributed
// lock used to single-flight diagnostic scans across instances.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds object storage settings: the provider connection plus
// the logical namespace roots the path codec works with.
type StorageConfig struct {
	// Backend selects the storage backend: "s3" or "memory".
	Backend string `mapstructure:"backend"`

	// PrivateDir is the private root directory in "/bucket/prefix" form.
	// Every "/objects/<id>" logical path maps under it.
	PrivateDir string `mapstructure:"private_dir"`

	// PublicSearchPaths is the ordered list of public roots probed when
	// resolving "/public-objects/<id>" paths. First match wins.
	PublicSearchPaths []string `mapstructure:"public_search_paths"`

	S3 S3StorageConfig `mapstructure:"s3"`
}

// S3StorageConfig holds S3 backend settings.
type S3StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// UploadConfig holds signed-upload settings.
type UploadConfig struct {
	// URLTTL bounds how long an issued upload URL stays valid. Long enough
	// for large client uploads, short enough to bound credential exposure.
	URLTTL time.Duration `mapstructure:"url_ttl"`
}

// DownloadConfig holds download streaming settings.
type DownloadConfig struct {
	// CacheTTL is the max-age sent in Cache-Control headers. Intentionally
	// short: ACL policy and content are allowed to change.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// AuthConfig holds identity and admin authentication settings.
type AuthConfig struct {
	// AdminTokenHash is the bcrypt hash of the admin API token protecting
	// the diagnostics endpoints. Empty disables them.
	AdminTokenHash string `mapstructure:"admin_token_hash"`

	// AdminIDs lists identities matched by the admin_only ACL group.
	AdminIDs []string `mapstructure:"admin_ids"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DiagnosticsConfig holds reconciliation scan settings.
type DiagnosticsConfig struct {
	// Enabled determines if the periodic scan runs.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to run the scan.
	Interval time.Duration `mapstructure:"interval"`

	// LockTTL is how long the scan lock is held before expiring.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values. They are prefixed
// with TRIBUNA_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TRIBUNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tribuna")
	}

	// Config file not found is acceptable - defaults and env vars suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tribuna")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "tribuna")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	// SQLite defaults
	v.SetDefault("database.path", "./data/tribuna.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Storage defaults
	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.private_dir", "")
	v.SetDefault("storage.public_search_paths", []string{})
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)

	// Upload defaults: 15 minutes, a contract callers must not assume is longer.
	v.SetDefault("upload.url_ttl", 15*time.Minute)

	// Download defaults: 5 minutes, kept short because policy and content change.
	v.SetDefault("download.cache_ttl", 5*time.Minute)

	// Auth defaults
	v.SetDefault("auth.admin_token_hash", "")
	v.SetDefault("auth.admin_ids", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Diagnostics defaults
	v.SetDefault("diagnostics.enabled", false)
	v.SetDefault("diagnostics.interval", 6*time.Hour)
	v.SetDefault("diagnostics.lock_ttl", 30*time.Minute)
}

// Validate checks the configuration for required values and valid ranges.
// The storage roots are hard requirements: without them no logical path can
// resolve, so the process fails fast with a descriptive error.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.NewConfigError("server.port", "must be between 1 and 65535")
	}

	validDrivers := map[string]bool{"postgres": true, "sqlite": true}
	if !validDrivers[c.Database.Driver] {
		return domain.NewConfigError("database.driver", "must be 'postgres' or 'sqlite'")
	}
	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			return domain.NewConfigError("database.host", "required for postgres driver")
		}
		if c.Database.User == "" {
			return domain.NewConfigError("database.user", "required for postgres driver")
		}
		if c.Database.Database == "" {
			return domain.NewConfigError("database.database", "required for postgres driver")
		}
	} else if c.Database.Path == "" {
		return domain.NewConfigError("database.path", "required for sqlite driver")
	}

	switch c.Storage.Backend {
	case "s3", "memory":
	default:
		return domain.NewConfigError("storage.backend", "must be 's3' or 'memory'")
	}

	if c.Storage.PrivateDir == "" {
		return domain.NewConfigError("storage.private_dir",
			"not set: create a bucket and set the private object directory (e.g. /my-bucket/.private)")
	}
	if !strings.HasPrefix(c.Storage.PrivateDir, "/") {
		return domain.NewConfigError("storage.private_dir", "must start with '/'")
	}

	if len(c.PublicSearchPaths()) == 0 {
		return domain.NewConfigError("storage.public_search_paths",
			"not set: provide at least one public search path (e.g. /my-bucket/public)")
	}

	if c.Upload.URLTTL <= 0 {
		return domain.NewConfigError("upload.url_ttl", "must be positive")
	}
	if c.Download.CacheTTL < 0 {
		return domain.NewConfigError("download.cache_ttl", "must not be negative")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return domain.NewConfigError("logging.level",
			"must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// PublicSearchPaths returns the configured public roots, trimmed,
// deduplicated and with order preserved.
func (c *Config) PublicSearchPaths() []string {
	seen := make(map[string]struct{}, len(c.Storage.PublicSearchPaths))
	paths := make([]string, 0, len(c.Storage.PublicSearchPaths))
	for _, p := range c.Storage.PublicSearchPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	return paths
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
