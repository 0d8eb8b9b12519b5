// Package daemon manages the Whispie server lifecycle and configuration.
package daemon

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// Config holds all daemon configuration.
type Config struct {
	API         APIConfig         `toml:"api"`
	Storage     StorageConfig     `toml:"storage"`
	Cache       CacheConfig       `toml:"cache"`
	Progression ProgressionConfig `toml:"progression"`
	Logging     LoggingConfig     `toml:"logging"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// JWTSecret enables bearer auth on /api/users routes when set.
	JWTSecret string `toml:"jwt_secret"`
}

// StorageConfig selects and configures the profile store.
type StorageConfig struct {
	Driver      string `toml:"driver"` // sqlite | postgres
	PostgresURL string `toml:"postgres_url"`
	MaxConns    int32  `toml:"max_conns"`
}

// CacheConfig configures the optional Redis snapshot cache.
type CacheConfig struct {
	RedisAddr     string        `toml:"redis_addr"` // empty disables the cache
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	TTL           time.Duration `toml:"ttl"`
}

// ProgressionConfig controls session processing.
type ProgressionConfig struct {
	Timezone           string `toml:"timezone"`
	CatalogFile        string `toml:"catalog_file"` // empty seeds the built-in catalog
	MaxCommitRetries   int    `toml:"max_commit_retries"`
	AutoCreateProfiles bool   `toml:"auto_create_profiles"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text | json | logfmt
	File   string `toml:"file"`   // empty logs to stderr
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool          `toml:"prometheus"`
	HealthInterval time.Duration `toml:"health_interval"`
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8420,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Driver:   DriverSQLite,
			MaxConns: 10,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Progression: ProgressionConfig{
			Timezone:           "UTC",
			MaxCommitRetries:   3,
			AutoCreateProfiles: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: 30 * time.Second,
		},
	}
}

// LoadConfig reads $WHISPIE_HOME/config.toml, falling back to defaults, and
// applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path. A missing file yields defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WHISPIE_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("WHISPIE_DATABASE_URL"); v != "" {
		cfg.Storage.Driver = DriverPostgres
		cfg.Storage.PostgresURL = v
	}
	if v := os.Getenv("WHISPIE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
}

// Validate checks values that would otherwise fail late at startup.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("config: storage.postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("config: api.port %d out of range", c.API.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	return nil
}

// Location resolves progression.timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Progression.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Progression.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: progression.timezone: %w", err)
	}
	return loc, nil
}

// Addr returns the API listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// SaveConfig writes the config to $WHISPIE_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(WhispieHome(), "config.toml")
}

// WhispieHome returns the Whispie data directory.
func WhispieHome() string {
	if env := os.Getenv("WHISPIE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".whispie")
}

// ─── Logging ────────────────────────────────────────────────────────────────

// NewLogger builds the root logger from the logging section. The returned
// closer releases the log file, if any.
func NewLogger(cfg LoggingConfig, stderr io.Writer) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}

	var w io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "whispie",
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter(cfg.Format),
	})
	return logger, closer, nil
}

func formatter(name string) log.Formatter {
	switch strings.ToLower(name) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	}
	return log.TextFormatter
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
