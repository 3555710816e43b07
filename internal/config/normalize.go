package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeFirmware(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBus()
	c.normalizeRescan()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeFirmware() error {
	if strings.TrimSpace(c.Firmware.Dirs) == "" {
		if value, ok := os.LookupEnv(envFirmwareDirs); ok {
			c.Firmware.Dirs = value
		}
	}
	var dirs []string
	for _, dir := range strings.Split(c.Firmware.Dirs, ":") {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("firmware.dirs: %w", err)
		}
		dirs = append(dirs, expanded)
	}
	c.Firmware.Dirs = strings.Join(dirs, ":")

	defaults := c.Firmware.DefaultDirs[:0]
	for _, dir := range c.Firmware.DefaultDirs {
		if dir = strings.TrimSpace(dir); dir != "" {
			defaults = append(defaults, dir)
		}
	}
	c.Firmware.DefaultDirs = defaults
	c.Firmware.Release = strings.TrimSpace(c.Firmware.Release)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Sysfs.Root) == "" {
		c.Sysfs.Root = defaultSysfsRoot
	}
	if c.Sysfs.Root, err = expandPath(strings.TrimSpace(c.Sysfs.Root)); err != nil {
		return fmt.Errorf("sysfs.root: %w", err)
	}
	if strings.TrimSpace(c.Daemon.LockFile) == "" {
		c.Daemon.LockFile = defaultLockFile
	}
	if c.Daemon.LockFile, err = expandPath(strings.TrimSpace(c.Daemon.LockFile)); err != nil {
		return fmt.Errorf("daemon.lock_file: %w", err)
	}
	if c.Metrics.Textfile, err = expandPath(strings.TrimSpace(c.Metrics.Textfile)); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	return nil
}

func (c *Config) normalizeBus() {
	c.Bus.Source = strings.ToLower(strings.TrimSpace(c.Bus.Source))
	if c.Bus.Source == "" {
		c.Bus.Source = defaultBusSource
	}
}

func (c *Config) normalizeRescan() {
	c.Rescan.Schedule = strings.TrimSpace(c.Rescan.Schedule)
	if c.Rescan.DebounceMS <= 0 {
		c.Rescan.DebounceMS = defaultRescanDebounceMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
