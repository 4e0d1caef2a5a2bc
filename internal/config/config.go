package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// BackendConfig holds connection settings for the task backend.
type BackendConfig struct {
	// BaseURL is the root URL of the REST API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// RealtimeURL is the websocket endpoint for the event channel.
	RealtimeURL string `mapstructure:"realtime_url" yaml:"realtime_url"`
}

// MonitorConfig holds deadline-monitor tuning.
type MonitorConfig struct {
	// SweepIntervalSec is how often (in seconds) the deadline sweep runs.
	SweepIntervalSec int `mapstructure:"sweep_interval_sec" yaml:"sweep_interval_sec"`

	// SubmitBufferSec is how long before the deadline a task already
	// counts as due, tolerating clock skew between client and backend.
	SubmitBufferSec int `mapstructure:"submit_buffer_sec" yaml:"submit_buffer_sec"`
}

// RealtimeConfig holds reconnect policy for the event channel.
type RealtimeConfig struct {
	ReconnectAttempts int `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelayMs  int `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
}

// NotificationConfig holds retention settings for the notification store.
type NotificationConfig struct {
	// MaxRetained caps how many notification records are kept.
	MaxRetained int `mapstructure:"max_retained" yaml:"max_retained"`
}

// LoggingConfig holds logger construction settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level agent configuration.
type AppConfig struct {
	Backend       BackendConfig      `mapstructure:"backend" yaml:"backend"`
	Monitor       MonitorConfig      `mapstructure:"monitor" yaml:"monitor"`
	Realtime      RealtimeConfig     `mapstructure:"realtime" yaml:"realtime"`
	Notifications NotificationConfig `mapstructure:"notifications" yaml:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging" yaml:"logging"`

	// DBPath is the sqlite file backing the notification store.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// SweepInterval returns the sweep interval as a duration.
func (c MonitorConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// SubmitBuffer returns the submit buffer as a duration.
func (c MonitorConfig) SubmitBuffer() time.Duration {
	return time.Duration(c.SubmitBufferSec) * time.Second
}

// ReconnectDelay returns the delay between reconnect attempts.
func (c RealtimeConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

// DefaultConfigDir returns the agent's configuration directory,
// ~/.config/pharmtask.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "pharmtask")
}

// DefaultConfigPath returns the default path for the configuration file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// defaultAppConfig returns the built-in defaults.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			BaseURL:     "http://localhost:4000/api",
			RealtimeURL: "ws://localhost:4000/events",
		},
		Monitor: MonitorConfig{
			SweepIntervalSec: 60,
			SubmitBufferSec:  10,
		},
		Realtime: RealtimeConfig{
			ReconnectAttempts: 5,
			ReconnectDelayMs:  1000,
		},
		Notifications: NotificationConfig{
			MaxRetained: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		DBPath: filepath.Join(DefaultConfigDir(), "agent.db"),
	}
}

// Load reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	def := defaultAppConfig()
	v.SetDefault("backend.base_url", def.Backend.BaseURL)
	v.SetDefault("backend.realtime_url", def.Backend.RealtimeURL)
	v.SetDefault("monitor.sweep_interval_sec", def.Monitor.SweepIntervalSec)
	v.SetDefault("monitor.submit_buffer_sec", def.Monitor.SubmitBufferSec)
	v.SetDefault("realtime.reconnect_attempts", def.Realtime.ReconnectAttempts)
	v.SetDefault("realtime.reconnect_delay_ms", def.Realtime.ReconnectDelayMs)
	v.SetDefault("notifications.max_retained", def.Notifications.MaxRetained)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("db_path", def.DBPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file at path, creating parent
// directories if needed.
func Save(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", cfg.Backend)
	v.Set("monitor", cfg.Monitor)
	v.Set("realtime", cfg.Realtime)
	v.Set("notifications", cfg.Notifications)
	v.Set("logging", cfg.Logging)
	v.Set("db_path", cfg.DBPath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
