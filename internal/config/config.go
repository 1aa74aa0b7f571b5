// Package config loads gamedb settings from config.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/magiconair/properties"
	"github.com/mmcdole/gamedb/internal/domain"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned by Validate when no RAWG key is configured
var ErrMissingAPIKey = errors.New("RAWG API key is not set")

// Config holds all application configuration
type Config struct {
	RAWG    RAWGConfig    `mapstructure:"rawg"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RAWGConfig holds API client settings
type RAWGConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	PageSize          int           `mapstructure:"page_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // <= 0 disables limiting
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// CacheConfig selects and tunes the result cache
type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // memory, bolt or sqlite
	Path    string        `mapstructure:"path"`    // directory for file backends
	MaxAge  time.Duration `mapstructure:"max_age"` // rows older than this are pruned at startup
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Paths locates the files configuration is read from
type Paths struct {
	// ConfigDir holds config.yaml
	ConfigDir string
	// LegacyKeyFile is a Java-style properties file with a rawg.api.key entry
	LegacyKeyFile string
}

// DefaultPaths returns the per-OS configuration locations
func DefaultPaths() Paths {
	home, _ := os.UserHomeDir()
	return Paths{
		ConfigDir:     defaultConfigPath(),
		LegacyKeyFile: filepath.Join(home, ".gamedb", "api.properties"),
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RAWG: RAWGConfig{
			BaseURL:           "https://api.rawg.io/api",
			PageSize:          domain.DefaultPageSize,
			RequestsPerSecond: 4,
			Burst:             4,
			Timeout:           30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "bolt",
			Path:    defaultCachePath(),
			MaxAge:  24 * time.Hour,
		},
		Logging: LoggingConfig{
			File:       defaultLogPath(),
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("rawg.api_key", cfg.RAWG.APIKey)
	v.SetDefault("rawg.base_url", cfg.RAWG.BaseURL)
	v.SetDefault("rawg.page_size", cfg.RAWG.PageSize)
	v.SetDefault("rawg.requests_per_second", cfg.RAWG.RequestsPerSecond)
	v.SetDefault("rawg.burst", cfg.RAWG.Burst)
	v.SetDefault("rawg.timeout", cfg.RAWG.Timeout)

	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.path", cfg.Cache.Path)
	v.SetDefault("cache.max_age", cfg.Cache.MaxAge)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", cfg.Logging.MaxAgeDays)
}

// Load loads configuration from the default locations and environment
func Load() (*Config, error) {
	return LoadFrom(DefaultPaths())
}

// LoadFrom loads configuration using the given file locations.
// Precedence: environment, config.yaml, legacy key file (key only), defaults.
func LoadFrom(paths Paths) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if paths.ConfigDir != "" {
		v.AddConfigPath(paths.ConfigDir)
	}
	v.AddConfigPath(".")

	// GAMEDB_RAWG_PAGE_SIZE overrides rawg.page_size, etc.
	v.SetEnvPrefix("GAMEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("rawg.api_key", "GAMEDB_RAWG_API_KEY", "RAWG_API_KEY"); err != nil {
		return nil, fmt.Errorf("error binding env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.RAWG.APIKey == "" && paths.LegacyKeyFile != "" {
		key, err := readLegacyKey(paths.LegacyKeyFile)
		if err != nil {
			return nil, err
		}
		cfg.RAWG.APIKey = key
	}

	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	return cfg, nil
}

// readLegacyKey reads rawg.api.key from a properties file, if it exists
func readLegacyKey(path string) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", path, err)
	}
	return strings.TrimSpace(p.GetString("rawg.api.key", "")), nil
}

// SaveAPIKey stores key in the default config.yaml
func SaveAPIKey(key string) error {
	return SaveAPIKeyTo(defaultConfigPath(), key)
}

// SaveAPIKeyTo updates just the API key in dir/config.yaml, keeping any
// other settings already in the file
func SaveAPIKeyTo(dir, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrMissingAPIKey
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(dir, "config.yaml")
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.Set("rawg.api_key", key)
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	// The file holds a credential
	if err := os.Chmod(configFile, 0600); err != nil {
		return fmt.Errorf("failed to restrict config file: %w", err)
	}
	return nil
}

// Validate reports settings the application cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RAWG.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.RAWG.PageSize < 1 || c.RAWG.PageSize > 40 {
		return fmt.Errorf("rawg.page_size must be between 1 and 40, got %d", c.RAWG.PageSize)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "", "memory", "bolt", "sqlite":
	default:
		return fmt.Errorf("cache.backend: %w: %q", domain.ErrUnknownBackend, c.Cache.Backend)
	}
	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("cache.max_age must not be negative")
	}
	return nil
}

// IsConfigured returns true if an API key is set
func (c *Config) IsConfigured() bool {
	return c.RAWG.APIKey != ""
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "gamedb")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "gamedb")
	}
}

// defaultCachePath returns the default cache directory for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "gamedb", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "gamedb", "cache")
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "gamedb", "gamedb.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "gamedb", "gamedb.log")
	}
}
