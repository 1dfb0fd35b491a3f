// Package userconfig provides user-level configuration for parley.
// This configuration is stored in ~/.config/parley/config.yaml and contains
// user preferences like the privacy opt-out flag.
package userconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/parley-im/parley-core/pkg/paths"
)

// CurrentVersion is the current version of the user config format
const CurrentVersion = "v1"

// Settings represents global user settings
type Settings struct {
	// TelemetryOptOut suppresses all telemetry network activity when set.
	TelemetryOptOut bool `yaml:"telemetry_opt_out,omitempty"`
	// CollectURL overrides the default telemetry collection base URL.
	CollectURL string `yaml:"collect_url,omitempty"`
}

// Config represents the user-level parley configuration
type Config struct {
	// mu protects concurrent access to the Settings pointer. Config
	// methods may be called from parallel tests or goroutines.
	mu sync.Mutex

	// Version is the config format version
	Version string `yaml:"version,omitempty"`
	// Account is the default account JID used by the debug CLI
	Account string `yaml:"account,omitempty"`
	// Settings contains global user settings
	Settings *Settings `yaml:"settings,omitempty"`
}

// Path returns the path to the config file
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "config.yaml")
}

// Load loads the user configuration from the config file. A missing file is
// not an error and yields an empty config.
func Load() (*Config, error) {
	return loadFrom(Path())
}

func loadFrom(configPath string) (*Config, error) {
	config := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	return c.saveTo(Path())
}

func (c *Config) saveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Ensure version is always set to current version when saving
	c.Version = CurrentVersion

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// GetSettings returns the global settings, or an empty Settings if not set.
//
// This method is safe for concurrent use.
func (c *Config) GetSettings() *Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Settings == nil {
		return &Settings{}
	}
	return c.Settings
}

// SetTelemetryOptOut sets the privacy opt-out flag.
//
// This method is safe for concurrent use.
func (c *Config) SetTelemetryOptOut(optOut bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Settings == nil {
		c.Settings = &Settings{}
	}
	c.Settings.TelemetryOptOut = optOut
}
