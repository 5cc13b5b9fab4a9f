// Package config loads service configuration from an optional YAML file with
// TENANTGATE_* environment overrides on top. Values a file does not set fall
// back to development-friendly defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	// Listen is the HTTP bind address.
	Listen string `yaml:"listen"`

	// RedisAddr, RedisPassword and RedisDB locate the counter store.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// DatabaseDSN locates the configuration database: postgres:// selects
	// Postgres, anything else is a SQLite path.
	DatabaseDSN string `yaml:"database_dsn"`

	// FailOpen admits traffic when the counter store is unreachable instead
	// of answering 503. Off by default: an outage then fails closed.
	FailOpen bool `yaml:"fail_open"`

	// AdminToken guards the tenant administration endpoints. Empty leaves
	// them open (development only).
	AdminToken string `yaml:"admin_token"`

	// StoreTimeout caps each counter-store round trip.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// ResolverCacheTTL bounds quota-config staleness when caching is on.
	// Zero disables the cache and every check reads the database.
	ResolverCacheTTL time.Duration `yaml:"resolver_cache_ttl"`

	// MetricsBuffer sizes the async check-metric sink.
	MetricsBuffer int `yaml:"metrics_buffer"`

	// MetricsRetentionDays bounds how long check metrics are kept.
	MetricsRetentionDays int `yaml:"metrics_retention_days"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		Listen:               ":8080",
		RedisAddr:            "localhost:6379",
		DatabaseDSN:          "tenantgate.db",
		StoreTimeout:         5 * time.Second,
		ResolverCacheTTL:     0,
		MetricsBuffer:        1024,
		MetricsRetentionDays: 30,
		LogLevel:             "info",
	}
}

// Load builds a Config from defaults, the YAML file at path (optional, ""
// skips it), and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Listen, "TENANTGATE_LISTEN")
	setString(&c.RedisAddr, "TENANTGATE_REDIS_ADDR")
	setString(&c.RedisPassword, "TENANTGATE_REDIS_PASSWORD")
	setString(&c.DatabaseDSN, "TENANTGATE_DATABASE_DSN")
	setString(&c.AdminToken, "TENANTGATE_ADMIN_TOKEN")
	setString(&c.LogLevel, "TENANTGATE_LOG_LEVEL")

	if err := setInt(&c.RedisDB, "TENANTGATE_REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&c.MetricsBuffer, "TENANTGATE_METRICS_BUFFER"); err != nil {
		return err
	}
	if err := setInt(&c.MetricsRetentionDays, "TENANTGATE_METRICS_RETENTION_DAYS"); err != nil {
		return err
	}
	if err := setBool(&c.FailOpen, "TENANTGATE_FAIL_OPEN"); err != nil {
		return err
	}
	if err := setDuration(&c.StoreTimeout, "TENANTGATE_STORE_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.ResolverCacheTTL, "TENANTGATE_RESOLVER_CACHE_TTL")
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
