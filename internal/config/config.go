// Package config loads brochurectl configuration from file,
// environment, and defaults.
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

// Config is the resolved configuration for a brochurectl process.
type Config struct {
	// Server endpoints.
	ServerURL   string `mapstructure:"server_url"`
	PresenceURL string `mapstructure:"presence_url"`

	// Identity.
	UserID      string `mapstructure:"user_id"`
	DeviceID    string `mapstructure:"device_id"`
	DeviceLabel string `mapstructure:"device_label"`
	Token       string `mapstructure:"token"`

	// DataDir holds brochure documents, the saved-item list, and the
	// sync journal.
	DataDir string `mapstructure:"data_dir"`

	// Sync cadence.
	IdleDelay             time.Duration `mapstructure:"idle_delay"`
	ForegroundMinInterval time.Duration `mapstructure:"foreground_min_interval"`
	BackstopInterval      time.Duration `mapstructure:"backstop_interval"`
	StalenessThreshold    time.Duration `mapstructure:"staleness_threshold"`
	Parallelism           int           `mapstructure:"parallelism"`

	// Logging.
	LogFile    string `mapstructure:"log_file"`
	LogMaxSize int    `mapstructure:"log_max_size_mb"`
	LogBackups int    `mapstructure:"log_backups"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".brochuresync"
	}
	return filepath.Join(home, ".brochuresync")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "https://sync.repkit.example.com")
	v.SetDefault("presence_url", "wss://sync.repkit.example.com/ws")
	v.SetDefault("device_label", hostnameLabel())
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("idle_delay", 30*time.Second)
	v.SetDefault("foreground_min_interval", 30*time.Second)
	v.SetDefault("backstop_interval", 10*time.Minute)
	v.SetDefault("staleness_threshold", 5*time.Second)
	v.SetDefault("parallelism", 4)

	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_backups", 3)
}

func hostnameLabel() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown device"
	}
	return name
}

// Load reads configuration from the given file (optional), the
// environment (BROCHURESYNC_* variables), and built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("brochuresync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDataDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No config file is fine; defaults and env cover it.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.StalenessThreshold < 0 {
		return fmt.Errorf("staleness_threshold must not be negative")
	}
	return nil
}

// DocumentsDir is where brochure documents live under DataDir.
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.DataDir, "documents")
}

// JournalPath is the sync journal database file under DataDir.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}
