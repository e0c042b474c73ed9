package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// WatchDirs are the inbound directories scanned for new packages.
	WatchDirs []string `toml:"watch_dirs"`
	// WorkDir holds application-owned safe copies and the database.
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Intake contains dispatch layer tuning.
type Intake struct {
	Workers       int  `toml:"workers"`
	QueueCapacity int  `toml:"queue_capacity"`
	Recursive     bool `toml:"recursive"`
	// SettleDelayMS is how long a path must stay quiet before it is
	// considered fully written.
	SettleDelayMS int `toml:"settle_delay_ms"`
}

// Guard contains filesystem locking configuration.
type Guard struct {
	// Group is the application group packages are chgrp'd to while locked.
	// Empty skips the ownership change (permission bits are still stripped).
	Group string `toml:"group"`
}

// Editorial contains the editorial system API connection settings.
type Editorial struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Notifier contains outbound event notification settings.
type Notifier struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Reporting contains the shared secret for the framed report stream.
type Reporting struct {
	Secret string `toml:"secret"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for hopper.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Intake    Intake    `toml:"intake"`
	Guard     Guard     `toml:"guard"`
	Editorial Editorial `toml:"editorial"`
	Notifier  Notifier  `toml:"notifier"`
	Reporting Reporting `toml:"reporting"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hopper/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolvedPath, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories hopper needs to run.
func (c *Config) EnsureDirectories() error {
	dirs := append([]string{c.Paths.WorkDir, c.Paths.LogDir}, c.Paths.WatchDirs...)
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the work directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.WorkDir, "hopper.db")
}

// LockFilePath returns the single-instance daemon lock location.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.WorkDir, "hopperd.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
