// Package config loads client settings from an optional YAML file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	appName   = "care-support"
	envPrefix = "CARE_SUPPORT"

	// KeyConfigFile holds an explicit config file path, usually bound to --config
	KeyConfigFile = "config"

	KeyBaseURL       = "api.base_url"
	KeyTimeout       = "api.timeout"
	KeyStorageDriver = "storage.driver"
	KeyStoragePath   = "storage.path"
	KeyStorageDSN    = "storage.dsn"
	KeyLogFile       = "log.file"
	KeyLogLevel      = "log.level"
	KeyMinuteStep    = "ui.minute_step"
)

// Storage drivers for the token store
const (
	DriverFile     = "file"
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

type Config struct {
	Dir     string
	API     APIConfig
	Storage StorageConfig
	Log     LogConfig
	UI      UIConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type StorageConfig struct {
	Driver string
	Path   string
	DSN    string
}

type LogConfig struct {
	File  string
	Level string
}

type UIConfig struct {
	MinuteStep int
}

// Dir returns the per-user configuration directory
func Dir() (string, error) {
	home := os.Getenv("XDG_CONFIG_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		home = filepath.Join(userHome, ".config")
	}
	return filepath.Join(home, appName), nil
}

// NewViper returns a viper instance with defaults and environment lookup set up.
// Callers bind their flags onto it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBaseURL, "http://localhost:8000/api")
	v.SetDefault(KeyTimeout, 15*time.Second)
	v.SetDefault(KeyStorageDriver, DriverFile)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMinuteStep, 10)
	return v
}

// Load reads the config file, if any, and returns the validated settings
func Load(v *viper.Viper) (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	explicit := v.GetString(KeyConfigFile)
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigFile(filepath.Join(dir, "config.yaml"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing || explicit != "" {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Config{
		Dir: dir,
		API: APIConfig{
			BaseURL: strings.TrimRight(v.GetString(KeyBaseURL), "/"),
			Timeout: v.GetDuration(KeyTimeout),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(v.GetString(KeyStorageDriver)),
			Path:   v.GetString(KeyStoragePath),
			DSN:    v.GetString(KeyStorageDSN),
		},
		Log: LogConfig{
			File:  v.GetString(KeyLogFile),
			Level: v.GetString(KeyLogLevel),
		},
		UI: UIConfig{
			MinuteStep: v.GetInt(KeyMinuteStep),
		},
	}

	if cfg.Storage.Path == "" {
		switch cfg.Storage.Driver {
		case DriverFile:
			cfg.Storage.Path = filepath.Join(dir, "token.json")
		case DriverDuckDB:
			cfg.Storage.Path = filepath.Join(dir, "token.duckdb")
		}
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(dir, appName+".log")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%s must not be empty", KeyBaseURL)
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", KeyBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http or https URL, got %q", KeyBaseURL, c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%s must be > 0", KeyTimeout)
	}

	switch c.Storage.Driver {
	case DriverFile, DriverDuckDB:
		if c.Storage.Path == "" {
			return fmt.Errorf("%s must not be empty", KeyStoragePath)
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%s is required for the postgres driver", KeyStorageDSN)
		}
	default:
		return fmt.Errorf("%s must be one of file, duckdb, postgres, got %q", KeyStorageDriver, c.Storage.Driver)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("%s is invalid: %w", KeyLogLevel, err)
	}

	if c.UI.MinuteStep <= 0 || c.UI.MinuteStep > 60 || 60%c.UI.MinuteStep != 0 {
		return fmt.Errorf("%s must divide 60, got %d", KeyMinuteStep, c.UI.MinuteStep)
	}
	return nil
}
