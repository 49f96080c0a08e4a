// ABOUTME: Configuration management with storage backend selection
// ABOUTME: JSON config file in the XDG config directory with sane defaults

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config stores lessonstore configuration. Zero values mean "use the
// default"; the getters apply them.
type Config struct {
	// Backend selects the storage engine: "badger", "sqlite", or empty for
	// auto (badger with transparent sqlite fallback).
	Backend string `json:"backend,omitempty"`

	// DataDir is the root directory for local storage. Badger opens a
	// directory here, the sqlite fallback lives next to it, and downloaded
	// media goes under media/. Supports ~ expansion.
	// Defaults to ~/.local/share/lessonstore.
	DataDir string `json:"data_dir,omitempty"`

	// APIBaseURL is the remote content site, without the wp-json suffix.
	APIBaseURL string `json:"api_base_url,omitempty"`

	// Cache budgets. Zero means the built-in default.
	CacheMaxBytes   int64 `json:"cache_max_bytes,omitempty"`
	CacheMaxItems   int   `json:"cache_max_items,omitempty"`
	OfflineMaxBytes int64 `json:"offline_max_bytes,omitempty"`
	OfflineMaxItems int   `json:"offline_max_items,omitempty"`

	// SweepMinutes sets the expired-entry sweep interval in minutes.
	SweepMinutes int `json:"sweep_minutes,omitempty"`

	// DisableDownloads turns off the blob capability even when the
	// filesystem is available, forcing streaming-only records.
	DisableDownloads bool `json:"disable_downloads,omitempty"`
}

// GetBackend returns the configured backend, empty meaning auto-select.
func (c *Config) GetBackend() string {
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetAPIBaseURL returns the configured content site URL.
func (c *Config) GetAPIBaseURL() string {
	if c.APIBaseURL == "" {
		return DefaultAPIBaseURL
	}
	return strings.TrimRight(c.APIBaseURL, "/")
}

// GetSweepInterval returns the expired-entry sweep interval.
func (c *Config) GetSweepInterval() time.Duration {
	if c.SweepMinutes <= 0 {
		return DefaultSweepMinutes * time.Minute
	}
	return time.Duration(c.SweepMinutes) * time.Minute
}

// MediaDir returns the directory for downloaded media blobs.
func (c *Config) MediaDir() string {
	return filepath.Join(c.GetDataDir(), "media")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "lessonstore", "config.json")
}

// Load reads config from disk. A missing file yields defaults, saved back so
// the user has a file to edit.
func Load() (*Config, error) {
	path := GetConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			if saveErr := cfg.Save(); saveErr != nil {
				fmt.Fprintf(os.Stderr, "warning: could not save default config: %v\n", saveErr)
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

// atomicWrite writes data to path via a temp file and rename so a crash
// mid-write never leaves a truncated config.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPerms); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// defaultDataDir returns the standard XDG data directory for lessonstore.
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "lessonstore")
}
