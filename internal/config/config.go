// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the global tauri-wd configuration
type Config struct {
	// tauri-wd home directory
	Home string `yaml:"-"`

	// Server settings for the public WebDriver endpoint
	Server ServerConfig `yaml:"server"`

	// App holds settings for launching the target application
	App AppConfig `yaml:"app"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// AppConfig holds settings for the spawned application process
type AppConfig struct {
	// LaunchTimeout is how long to wait for the agent port
	// announcement on the app's stdout, in seconds
	LaunchTimeout int `yaml:"launch_timeout"`

	// KillGrace is how long to wait between SIGTERM and SIGKILL
	// when tearing a session down, in seconds
	KillGrace int `yaml:"kill_grace"`

	// Env holds extra environment variables for the child process,
	// as KEY=VALUE strings
	Env []string `yaml:"env"`
}

// WDHome returns the tauri-wd home directory
func WDHome() string {
	if home := os.Getenv("TAURI_WD_HOME"); home != "" {
		return home
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".tauri-wd")
}

// Load loads the configuration from file or returns defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(WDHome(), "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Home = WDHome()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Home = WDHome()

	return cfg, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch c.Server.LogLevel {
	case "error", "warn", "info", "debug", "trace":
	default:
		errs = append(errs, "server.log_level must be one of error, warn, info, debug, trace")
	}
	if c.App.LaunchTimeout < 1 {
		errs = append(errs, "app.launch_timeout must be at least 1 second")
	}
	if c.App.KillGrace < 0 {
		errs = append(errs, "app.kill_grace must not be negative")
	}
	for _, kv := range c.App.Env {
		if !strings.Contains(kv, "=") {
			errs = append(errs, fmt.Sprintf("app.env entry %q is not KEY=VALUE", kv))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
