package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Session backends accepted by SessionConfig.Backend.
const (
	SessionBackendSQLite  = "sqlite"
	SessionBackendKeyring = "keyring"
	SessionBackendMemory  = "memory"
)

// ScopeNew asks ResolveScope for a fresh, unshared session scope.
const ScopeNew = "new"

// APIConfig describes how to reach the marketplace backend.
type APIConfig struct {
	// BaseURL is the root URL of the backend (e.g., http://127.0.0.1:8000).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single HTTP round trip.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// MaxRetries is how many times an idempotent GET is retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// SessionConfig controls where the auth token and user snapshot live.
type SessionConfig struct {
	// Backend is one of "sqlite", "keyring" or "memory".
	Backend string `mapstructure:"backend" yaml:"backend"`

	// DBPath is the SQLite file used by the sqlite backend.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// Scope partitions stored sessions. Processes sharing a scope share
	// the login; an empty value derives one from the terminal session.
	Scope string `mapstructure:"scope" yaml:"scope"`

	// MaxIdleHours is how long an untouched scope survives before it is pruned.
	MaxIdleHours int `mapstructure:"max_idle_hours" yaml:"max_idle_hours"`
}

// NotificationsConfig holds notification refresh settings.
type NotificationsConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	FetchTimeoutSec int `mapstructure:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
	Mouse bool   `mapstructure:"mouse" yaml:"mouse"`
}

// LogConfig controls the file logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Session       SessionConfig       `mapstructure:"session" yaml:"session"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Display       DisplayConfig       `mapstructure:"display" yaml:"display"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
}

// APITimeout returns the HTTP timeout as a duration.
func (c *AppConfig) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// PollInterval returns the notification refresh interval.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Notifications.PollIntervalSec) * time.Second
}

// FetchTimeout returns the upper bound on a single notification fetch.
func (c *AppConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Notifications.FetchTimeoutSec) * time.Second
}

// configDir returns ~/.config/bhconnect, or "." when the home directory
// cannot be determined.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "bhconnect")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/bhconnect/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://127.0.0.1:8000",
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Session: SessionConfig{
			Backend:      SessionBackendSQLite,
			DBPath:       filepath.Join(dir, "session.db"),
			MaxIdleHours: 24,
		},
		Notifications: NotificationsConfig{
			PollIntervalSec: 60,
			FetchTimeoutSec: 30,
		},
		Display: DisplayConfig{
			Theme: "default",
			Mouse: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Path:   filepath.Join(dir, "bhconnect.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first and BHCONNECT_*
// environment variables override file values. If the file does not exist,
// defaults (plus environment overrides) are returned.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BHCONNECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values and so
	// AutomaticEnv knows which keys exist.
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("api.max_retries", def.API.MaxRetries)
	v.SetDefault("session.backend", def.Session.Backend)
	v.SetDefault("session.db_path", def.Session.DBPath)
	v.SetDefault("session.scope", "")
	v.SetDefault("session.max_idle_hours", def.Session.MaxIdleHours)
	v.SetDefault("notifications.poll_interval_sec", def.Notifications.PollIntervalSec)
	v.SetDefault("notifications.fetch_timeout_sec", def.Notifications.FetchTimeoutSec)
	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("display.mouse", def.Display.Mouse)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.path", def.Log.Path)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// normalize replaces non-positive durations with defaults and rejects
// unknown session backends.
func (c *AppConfig) normalize() error {
	def := defaultAppConfig()

	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = def.API.TimeoutSec
	}
	if c.API.MaxRetries < 0 {
		c.API.MaxRetries = 0
	}
	if c.Notifications.PollIntervalSec <= 0 {
		c.Notifications.PollIntervalSec = def.Notifications.PollIntervalSec
	}
	if c.Notifications.FetchTimeoutSec <= 0 {
		c.Notifications.FetchTimeoutSec = def.Notifications.FetchTimeoutSec
	}
	if c.Session.MaxIdleHours <= 0 {
		c.Session.MaxIdleHours = def.Session.MaxIdleHours
	}

	switch c.Session.Backend {
	case SessionBackendSQLite, SessionBackendKeyring, SessionBackendMemory:
	case "":
		c.Session.Backend = def.Session.Backend
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	return nil
}

// ResolveScope returns the session scope to use. An explicit scope wins;
// "new" yields a random scope nobody else shares; otherwise the scope is
// derived from the terminal session so every process started from the same
// shell sees the same login.
func (c *AppConfig) ResolveScope() string {
	switch c.Session.Scope {
	case "":
		if id := os.Getenv("TERM_SESSION_ID"); id != "" {
			return "term-" + id
		}
		return fmt.Sprintf("ppid-%d", os.Getppid())
	case ScopeNew:
		return uuid.New().String()
	default:
		return c.Session.Scope
	}
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("session", cfg.Session)
	v.Set("notifications", cfg.Notifications)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
