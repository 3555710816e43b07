package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/robfig/cron/v3"
)

const maxRescanDebounceMS = 60_000

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSysfs(); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	if err := c.validateRescan(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSysfs() error {
	if !filepath.IsAbs(c.Sysfs.Root) {
		return fmt.Errorf("sysfs.root must be absolute, got %q", c.Sysfs.Root)
	}
	return nil
}

func (c *Config) validateBus() error {
	switch c.Bus.Source {
	case BusSourceUdev, BusSourceKernel:
		return nil
	default:
		return fmt.Errorf("bus.source must be %q or %q, got %q", BusSourceUdev, BusSourceKernel, c.Bus.Source)
	}
}

func (c *Config) validateRescan() error {
	if c.Rescan.DebounceMS > maxRescanDebounceMS {
		return fmt.Errorf("rescan.debounce_ms must be at most %d", maxRescanDebounceMS)
	}
	if c.Rescan.Schedule != "" {
		if _, err := cron.ParseStandard(c.Rescan.Schedule); err != nil {
			return fmt.Errorf("rescan.schedule: %w", err)
		}
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
	}
	if c.Metrics.Textfile != "" && filepath.Ext(c.Metrics.Textfile) != ".prom" {
		return errors.New("metrics.textfile must end in .prom for the node exporter textfile collector")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console, or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
