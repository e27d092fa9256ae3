// Package config loads designer.yaml, the configuration file of the
// profiledesigner command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cesmii/profiledesigner/registry"
)

// FileNames are the names looked up in a directory, in order.
var FileNames = []string{"designer.yaml", "designer.yml"}

// ErrNotFound is returned when no configuration file exists.
var ErrNotFound = errors.New("config: no designer.yaml found")

// ErrInvalid is returned when a configuration file cannot be parsed or
// holds an unsupported value.
var ErrInvalid = errors.New("config: invalid")

// Cache backend types.
const (
	CacheFile   = "file"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// Config represents a designer.yaml file. Every section is optional.
type Config struct {
	Log      *LogConfig       `yaml:"log,omitempty"`
	Cache    *CacheConfig     `yaml:"cache,omitempty"`
	Store    *StoreConfig     `yaml:"store,omitempty"`
	Registry *registry.Config `yaml:"registry,omitempty"`
	Import   *ImportConfig    `yaml:"import,omitempty"`
	Serve    *ServeConfig     `yaml:"serve,omitempty"`

	// path is the file the configuration was read from.
	path string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level,omitempty"`

	// Format is text or json. Default: text.
	Format string `yaml:"format,omitempty"`
}

// CacheConfig selects and configures the NodeSet cache backend.
type CacheConfig struct {
	// Type is file, sqlite or redis. Default: file.
	Type string `yaml:"type,omitempty"`

	Dir        string `yaml:"dir,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
	RedisURL   string `yaml:"redis_url,omitempty"`
	KeyPrefix  string `yaml:"key_prefix,omitempty"`
}

// StoreConfig locates the profile item database.
type StoreConfig struct {
	// Path is the SQLite file. Empty keeps items in memory.
	Path string `yaml:"path,omitempty"`
}

// ImportConfig holds import defaults.
type ImportConfig struct {
	Tenant                string `yaml:"tenant,omitempty"`
	FailOnAlreadyImported bool   `yaml:"fail_on_already_imported,omitempty"`

	// GlobalModelRule is a CEL expression over uri and version promoting
	// models to the global cache scope.
	GlobalModelRule string `yaml:"global_model_rule,omitempty"`
}

// ServeConfig configures the health server.
type ServeConfig struct {
	Port int `yaml:"port,omitempty"`

	// CheckInterval is a Go duration string. Default: 15s.
	CheckInterval string `yaml:"check_interval,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{}
}

// Load reads a configuration file. If path is a directory, designer.yaml
// or designer.yml inside it is read.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range FileNames {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("%w in %s", ErrNotFound, path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalid, configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	cfg.path = configPath
	return cfg, nil
}

// LoadFromDir searches for designer.yaml starting from dir and walking up
// to parent directories until found or the root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	for {
		cfg, err := Load(absDir)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			return nil, fmt.Errorf("%w in %s or parent directories", ErrNotFound, dir)
		}
		absDir = parent
	}
}

// Path returns the file the configuration was read from, or "".
func (c *Config) Path() string {
	return c.path
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch c.CacheType() {
	case CacheFile, CacheSQLite, CacheRedis:
	default:
		return fmt.Errorf("%w: unknown cache type %q", ErrInvalid, c.Cache.Type)
	}
	switch c.LogFormat() {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	if c.Serve != nil && c.Serve.CheckInterval != "" {
		if _, err := time.ParseDuration(c.Serve.CheckInterval); err != nil {
			return fmt.Errorf("%w: serve.check_interval: %w", ErrInvalid, err)
		}
	}
	return nil
}

// LogLevel returns the configured level, info by default.
func (c *Config) LogLevel() slog.Level {
	if c.Log == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogFormat returns text or json.
func (c *Config) LogFormat() string {
	if c.Log == nil || c.Log.Format == "" {
		return "text"
	}
	return strings.ToLower(c.Log.Format)
}

// CacheType returns the cache backend type, file by default.
func (c *Config) CacheType() string {
	if c.Cache == nil || c.Cache.Type == "" {
		return CacheFile
	}
	return strings.ToLower(c.Cache.Type)
}

// CacheDir returns the file cache directory. Relative paths are resolved
// against the directory of the configuration file.
func (c *Config) CacheDir() string {
	if c.Cache == nil || c.Cache.Dir == "" {
		return c.resolve("cache")
	}
	return c.resolve(c.Cache.Dir)
}

// CacheSQLitePath returns the SQLite cache file.
func (c *Config) CacheSQLitePath() string {
	if c.Cache == nil || c.Cache.SQLitePath == "" {
		return c.resolve("cache.db")
	}
	return c.resolve(c.Cache.SQLitePath)
}

// RedisURL returns the Redis connection string.
func (c *Config) RedisURL() string {
	if c.Cache == nil || c.Cache.RedisURL == "" {
		return "redis://localhost:6379"
	}
	return c.Cache.RedisURL
}

// KeyPrefix returns the Redis key prefix.
func (c *Config) KeyPrefix() string {
	if c.Cache == nil || c.Cache.KeyPrefix == "" {
		return "nodeset"
	}
	return c.Cache.KeyPrefix
}

// StorePath returns the profile database file, or "" for an in-memory store.
func (c *Config) StorePath() string {
	if c.Store == nil || c.Store.Path == "" {
		return ""
	}
	return c.resolve(c.Store.Path)
}

// RegistryEnabled reports whether registry endpoints are configured.
func (c *Config) RegistryEnabled() bool {
	return c.Registry != nil && len(c.Registry.Endpoints) > 0
}

// Tenant returns the default import tenant.
func (c *Config) Tenant() string {
	if c.Import == nil {
		return ""
	}
	return c.Import.Tenant
}

// FailOnAlreadyImported returns the default for rejecting re-imports.
func (c *Config) FailOnAlreadyImported() bool {
	return c.Import != nil && c.Import.FailOnAlreadyImported
}

// GlobalModelRule returns the CEL promotion rule, or "".
func (c *Config) GlobalModelRule() string {
	if c.Import == nil {
		return ""
	}
	return c.Import.GlobalModelRule
}

// ServePort returns the health server port, 50051 by default.
func (c *Config) ServePort() int {
	if c.Serve == nil || c.Serve.Port <= 0 {
		return 50051
	}
	return c.Serve.Port
}

// CheckInterval returns the health check interval, 15s by default.
func (c *Config) CheckInterval() time.Duration {
	if c.Serve == nil || c.Serve.CheckInterval == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(c.Serve.CheckInterval)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}
