// Package config loads lexsync settings from a config file, the
// environment and an optional .env file.
//
// Precedence, highest first: LEXSYNC_* environment variables, the config
// file (lexsync.toml or lexsync.yaml in $XDG_CONFIG_HOME/lexsync or the
// working directory), built-in defaults. Nested keys map to variables by
// replacing dots with underscores, e.g. LEXSYNC_SYNC_DEBOUNCE.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/futurelex/lexsync/internal/reconcile"
	"github.com/futurelex/lexsync/internal/session"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEXSYNC"

// Remote backends.
const (
	BackendMemory  = "memory"
	BackendSurreal = "surreal"
)

// Config holds all settings.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	UserID    string          `mapstructure:"user_id"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Session   SessionConfig   `mapstructure:"session"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Vocab     VocabConfig     `mapstructure:"vocab"`
}

// RemoteConfig selects and addresses the remote store.
type RemoteConfig struct {
	Backend   string        `mapstructure:"backend"`
	URL       string        `mapstructure:"url"`
	Namespace string        `mapstructure:"namespace"`
	Database  string        `mapstructure:"database"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	ListDelay time.Duration `mapstructure:"list_delay"`
}

// SyncConfig tunes the reconcile engines.
type SyncConfig struct {
	Debounce        time.Duration `mapstructure:"debounce"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	Jitter          float64       `mapstructure:"jitter"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// SessionConfig holds study session settings.
type SessionConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// LogConfig controls log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DashboardConfig configures the live dashboard.
type DashboardConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// VocabConfig points at a corpus file. An empty Path uses the built-in
// corpus.
type VocabConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// Default returns sensible defaults.
func Default() *Config {
	engine := reconcile.DefaultConfig()
	return &Config{
		DataDir: defaultDataDir(),
		Remote: RemoteConfig{
			Backend:   BackendMemory,
			Namespace: "lexsync",
			Database:  "lexsync",
		},
		Sync: SyncConfig{
			Debounce:        engine.Debounce,
			CacheTTL:        engine.TTL,
			MaxAttempts:     engine.MaxAttempts,
			BackoffBase:     engine.Backoff.Base,
			BackoffMax:      engine.Backoff.Max,
			Jitter:          engine.Backoff.Jitter,
			RefreshInterval: time.Minute,
		},
		Session: SessionConfig{PoolSize: 100},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{Host: "127.0.0.1", Port: 8080},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "lexsync")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "lexsync")
	}
	return ".lexsync"
}

func configDirs() []string {
	var dirs []string
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "lexsync"))
	}
	return append(dirs, ".")
}

// LoadDotEnv loads variables from path into the environment. A missing
// file is not an error. Variables already set are kept.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration. When path is empty the standard
// locations are searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lexsync")
		for _, dir := range configDirs() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key, which also makes each one visible to
// AutomaticEnv during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("user_id", d.UserID)

	v.SetDefault("remote.backend", d.Remote.Backend)
	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.namespace", d.Remote.Namespace)
	v.SetDefault("remote.database", d.Remote.Database)
	v.SetDefault("remote.username", d.Remote.Username)
	v.SetDefault("remote.password", d.Remote.Password)
	v.SetDefault("remote.list_delay", d.Remote.ListDelay)

	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("sync.cache_ttl", d.Sync.CacheTTL)
	v.SetDefault("sync.max_attempts", d.Sync.MaxAttempts)
	v.SetDefault("sync.backoff_base", d.Sync.BackoffBase)
	v.SetDefault("sync.backoff_max", d.Sync.BackoffMax)
	v.SetDefault("sync.jitter", d.Sync.Jitter)
	v.SetDefault("sync.refresh_interval", d.Sync.RefreshInterval)

	v.SetDefault("session.pool_size", d.Session.PoolSize)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)

	v.SetDefault("vocab.path", d.Vocab.Path)
	v.SetDefault("vocab.watch", d.Vocab.Watch)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case BackendMemory:
	case BackendSurreal:
		if c.Remote.URL == "" {
			return fmt.Errorf("remote.url is required for the %s backend", BackendSurreal)
		}
	default:
		return fmt.Errorf("unknown remote.backend %q (want %s or %s)", c.Remote.Backend, BackendMemory, BackendSurreal)
	}
	if c.Sync.Debounce < 0 || c.Sync.CacheTTL < 0 || c.Sync.RefreshInterval < 0 {
		return fmt.Errorf("sync durations must not be negative")
	}
	if c.Sync.Jitter < 0 || c.Sync.Jitter >= 1 {
		return fmt.Errorf("sync.jitter must be in [0, 1), got %v", c.Sync.Jitter)
	}
	if c.Session.PoolSize < 0 {
		return fmt.Errorf("session.pool_size must not be negative")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

// CachePath is the SQLite cache location.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// Engine returns the reconcile engine settings.
func (c *Config) Engine(logger *log.Logger) reconcile.Config {
	def := reconcile.DefaultBackoff()
	return reconcile.Config{
		Debounce:    c.Sync.Debounce,
		TTL:         c.Sync.CacheTTL,
		MaxAttempts: c.Sync.MaxAttempts,
		Backoff: reconcile.Backoff{
			Base:       c.Sync.BackoffBase,
			Max:        c.Sync.BackoffMax,
			Multiplier: def.Multiplier,
			Jitter:     c.Sync.Jitter,
		},
		Logger: logger,
	}
}

// SessionConfig returns the session settings.
func (c *Config) SessionConfig(logger *log.Logger) *session.Config {
	return &session.Config{
		Engine:          c.Engine(logger),
		PoolSize:        c.Session.PoolSize,
		RefreshInterval: c.Sync.RefreshInterval,
		Logger:          logger,
	}
}

// LogWriter returns the log destination: a rotating file when log.file is
// set, stderr otherwise.
func (c *Config) LogWriter() io.Writer {
	if c.Log.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
	}
}

// NewLogger creates a logger with a bracketed prefix, e.g. "[sync] ".
func (c *Config) NewLogger(component string) *log.Logger {
	return log.New(c.LogWriter(), "["+component+"] ", log.LstdFlags)
}
