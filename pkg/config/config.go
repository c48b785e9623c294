// Package config provides user-level configuration for panini, stored
// in ~/.config/panini/config.yaml: the store root, grammar cache
// bound, and logging preferences.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/paninifs/engine/pkg/paths"
)

// CurrentVersion is the current version of the config format.
const CurrentVersion = "v1"

// Config is the user-level panini configuration.
type Config struct {
	Version string `yaml:"version"`
	// StoreRoot overrides the content-addressed store location.
	StoreRoot string `yaml:"store_root,omitempty"`
	// GrammarCacheSize bounds the compiled-grammar LRU cache.
	GrammarCacheSize int `yaml:"grammar_cache_size,omitempty"`
	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level,omitempty"`
	// LogFile receives rotated structured logs when set.
	LogFile string `yaml:"log_file,omitempty"`
}

func defaultConfig() *Config {
	return &Config{Version: CurrentVersion}
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "config.yaml")
}

// Load reads the user config, returning defaults when the file does
// not exist. Environment overrides apply after the file.
func Load() (*Config, error) {
	return loadFrom(Path())
}

func loadFrom(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %q: %w", path, err)
		}
	}

	if root := os.Getenv("PANINI_STORE_ROOT"); root != "" {
		cfg.StoreRoot = root
	}
	if cfg.StoreRoot == "" {
		cfg.StoreRoot = paths.GetStoreRoot()
	}
	return cfg, nil
}

// Save writes the config atomically, creating the directory on first
// use.
func Save(cfg *Config) error {
	return saveTo(Path(), cfg)
}

func saveTo(path string, cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
