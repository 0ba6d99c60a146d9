// Package config loads scout settings from scout.yaml, FANSCOUT_* environment
// variables and built-in defaults, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Remote store drivers.
const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
)

// EnvPrefix is prepended to every environment override, e.g. FANSCOUT_USER_ID.
const EnvPrefix = "FANSCOUT"

// Config is the resolved configuration.
type Config struct {
	CacheDir string
	UserID   string

	Remote    RemoteConfig
	Ledger    LedgerConfig
	Daemon    DaemonConfig
	Dashboard DashboardConfig
	Log       LogConfig

	// File is the config file that was read, empty if none was found
	File string
}

type RemoteConfig struct {
	Driver string
	// DSN is a file path for sqlite and a libsql:// URL for libsql
	DSN string
}

type LedgerConfig struct {
	MaxAttempts int
}

type DaemonConfig struct {
	Interval time.Duration
	Debounce time.Duration
}

type DashboardConfig struct {
	Port int
}

type LogConfig struct {
	// File enables rotating file output; empty logs to stderr
	File      string
	MaxSizeMB int
}

// Dir returns the default configuration directory, $HOME/.fanscout.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fanscout"
	}
	return filepath.Join(home, ".fanscout")
}

func setDefaults(v *viper.Viper) {
	dir := Dir()
	v.SetDefault("cache.dir", filepath.Join(dir, "cache"))
	v.SetDefault("user.id", "")
	v.SetDefault("remote.driver", DriverSQLite)
	v.SetDefault("remote.dsn", filepath.Join(dir, "remote.db"))
	v.SetDefault("ledger.max_attempts", 5)
	v.SetDefault("daemon.interval", "5m")
	v.SetDefault("daemon.debounce", "500ms")
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
}

// Load reads the configuration. If path is empty, scout.yaml is searched for
// in the working directory and then in Dir(); a missing file is not an error.
// An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		CacheDir: v.GetString("cache.dir"),
		UserID:   v.GetString("user.id"),
		Remote: RemoteConfig{
			Driver: strings.ToLower(v.GetString("remote.driver")),
			DSN:    v.GetString("remote.dsn"),
		},
		Ledger: LedgerConfig{
			MaxAttempts: v.GetInt("ledger.max_attempts"),
		},
		Daemon: DaemonConfig{
			Interval: v.GetDuration("daemon.interval"),
			Debounce: v.GetDuration("daemon.debounce"),
		},
		Dashboard: DashboardConfig{
			Port: v.GetInt("dashboard.port"),
		},
		Log: LogConfig{
			File:      v.GetString("log.file"),
			MaxSizeMB: v.GetInt("log.max_size_mb"),
		},
		File: v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Remote.Driver {
	case DriverSQLite, DriverLibSQL:
	default:
		return fmt.Errorf("invalid remote.driver %q (want %s or %s)", c.Remote.Driver, DriverSQLite, DriverLibSQL)
	}
	if c.Remote.DSN == "" {
		return fmt.Errorf("remote.dsn is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Ledger.MaxAttempts <= 0 {
		return fmt.Errorf("ledger.max_attempts must be positive, got %d", c.Ledger.MaxAttempts)
	}
	if c.Daemon.Interval <= 0 {
		return fmt.Errorf("daemon.interval must be positive, got %v", c.Daemon.Interval)
	}
	if c.Daemon.Debounce <= 0 {
		return fmt.Errorf("daemon.debounce must be positive, got %v", c.Daemon.Debounce)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}
