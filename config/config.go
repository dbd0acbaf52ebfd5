// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/nodecfg/core/capability"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "nodecfg.yaml"

// Config is the root configuration structure.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Devices  DevicesConfig  `yaml:"devices"`
	Compile  CompileConfig  `yaml:"compile"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"cache"`
}

// DatabaseConfig configures the node store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// DevicesConfig lists device descriptor files and directories loaded in
// addition to the bundled descriptors.
type DevicesConfig struct {
	Paths []string `yaml:"paths"`
}

// CompileConfig configures compilation.
type CompileConfig struct {
	Workers    int    `yaml:"workers"`    // fleet worker pool size
	Regulatory string `yaml:"regulatory"` // regulatory domain, empty allows every channel
}

// SecretsConfig configures hashing of secret config values.
type SecretsConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CacheConfig configures the compiled artifact cache.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv creates configuration from defaults and environment
// variables.
//
// Environment variables:
//
//	NODECFG_DATABASE_DRIVER    - sqlite or memory (default: sqlite)
//	NODECFG_DATABASE_DSN       - Database path (default: nodecfg.db)
//	NODECFG_DEVICES_PATHS      - Extra descriptor paths, comma separated
//	NODECFG_COMPILE_WORKERS    - Fleet worker pool size (default: 4)
//	NODECFG_COMPILE_REGULATORY - Regulatory domain: ETSI, FCC, JP
//	NODECFG_BCRYPT_COST        - Bcrypt cost for secrets (default: 10)
//	NODECFG_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	NODECFG_LOG_FORMAT         - Log format: json or console (default: console)
//	NODECFG_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
//	NODECFG_SERVER_HOST        - Server host (default: 127.0.0.1)
//	NODECFG_SERVER_PORT        - Server port (default: 8480)
//	NODECFG_CACHE_ENABLED      - Cache compiled artifacts (default: true)
//	NODECFG_CACHE_TTL          - Artifact cache TTL (default: 10m)
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to
// environment variables otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
		Cache:   CacheConfig{Enabled: true},
	}
	setDefaults(cfg)
	return cfg
}

// applyEnvOverrides applies NODECFG_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Database configuration
	if v := os.Getenv("NODECFG_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("NODECFG_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("NODECFG_DEVICES_PATHS"); v != "" {
		cfg.Devices.Paths = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Devices.Paths = append(cfg.Devices.Paths, p)
			}
		}
	}

	// Compile configuration
	if v := os.Getenv("NODECFG_COMPILE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Compile.Workers = n
		}
	}
	if v := os.Getenv("NODECFG_COMPILE_REGULATORY"); v != "" {
		cfg.Compile.Regulatory = v
	}

	if v := os.Getenv("NODECFG_BCRYPT_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Secrets.BcryptCost = n
		}
	}

	// Logging configuration
	if v := os.Getenv("NODECFG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NODECFG_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("NODECFG_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("NODECFG_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// Server configuration
	if v := os.Getenv("NODECFG_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("NODECFG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Cache configuration
	if v := os.Getenv("NODECFG_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("NODECFG_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "nodecfg.db"
	}

	if cfg.Compile.Workers == 0 {
		cfg.Compile.Workers = 4
	}
	if cfg.Secrets.BcryptCost == 0 {
		cfg.Secrets.BcryptCost = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8480
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = 30 * time.Minute
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	if cfg.Compile.Workers < 1 {
		return fmt.Errorf("compile.workers must be positive, got %d", cfg.Compile.Workers)
	}
	if _, err := capability.Regulatory(cfg.Compile.Regulatory); err != nil {
		return fmt.Errorf("compile.regulatory: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	return nil
}
