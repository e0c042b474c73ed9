package config

import (
	"fmt"
	"strings"
)

// Default returns the baseline configuration before any file is applied.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDirs: []string{"~/hopper/inbox"},
			WorkDir:   "~/hopper/work",
			LogDir:    "~/hopper/logs",
		},
		Intake: Intake{
			Workers:       1,
			QueueCapacity: 64,
			Recursive:     false,
			SettleDelayMS: 500,
		},
		Editorial: Editorial{
			RequestTimeout: 10,
		},
		Notifier: Notifier{
			Enabled:        false,
			RequestTimeout: 10,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c *Config) normalize() error {
	for i, dir := range c.Paths.WatchDirs {
		expanded, err := expandPath(dir)
		if err != nil {
			return err
		}
		c.Paths.WatchDirs[i] = expanded
	}
	for _, field := range []*string{&c.Paths.WorkDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Editorial.BaseURL = strings.TrimRight(strings.TrimSpace(c.Editorial.BaseURL), "/")
	c.Notifier.BaseURL = strings.TrimRight(strings.TrimSpace(c.Notifier.BaseURL), "/")
	c.Guard.Group = strings.TrimSpace(c.Guard.Group)

	if c.Intake.Workers <= 0 {
		c.Intake.Workers = 1
	}
	if c.Intake.QueueCapacity <= 0 {
		c.Intake.QueueCapacity = 64
	}
	if c.Intake.SettleDelayMS <= 0 {
		c.Intake.SettleDelayMS = 500
	}
	if c.Editorial.RequestTimeout <= 0 {
		c.Editorial.RequestTimeout = 10
	}
	if c.Notifier.RequestTimeout <= 0 {
		c.Notifier.RequestTimeout = 10
	}
	return nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if len(c.Paths.WatchDirs) == 0 {
		return fmt.Errorf("config: paths.watch_dirs must list at least one directory")
	}
	for _, dir := range c.Paths.WatchDirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("config: paths.watch_dirs contains an empty entry")
		}
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return fmt.Errorf("config: paths.work_dir is required")
	}
	if c.Notifier.Enabled && c.Notifier.BaseURL == "" {
		return fmt.Errorf("config: notifier.base_url is required when notifier.enabled")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: logging.format must be console or json")
	}
	return nil
}
