package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.toml
var sampleConfig string

// Firmware controls where firmware images are looked up and how missing
// images are handled.
type Firmware struct {
	// Dirs is a colon-separated list searched before DefaultDirs.
	Dirs        string   `toml:"dirs" yaml:"dirs"`
	DefaultDirs []string `toml:"default_dirs" yaml:"default_dirs"`
	// Release overrides the uname -r subdirectory name. Empty means the
	// running kernel's release.
	Release    string `toml:"release" yaml:"release"`
	Tentative  bool   `toml:"tentative" yaml:"tentative"`
	Compressed bool   `toml:"compressed" yaml:"compressed"`
}

// Sysfs locates the sysfs mount.
type Sysfs struct {
	Root string `toml:"root" yaml:"root"`
}

// Bus selects the netlink multicast group events are read from.
type Bus struct {
	Source string `toml:"source" yaml:"source"`
}

// Rescan configures the triggers that re-run enumeration in tentative mode.
type Rescan struct {
	Watch      bool   `toml:"watch" yaml:"watch"`
	DebounceMS int    `toml:"debounce_ms" yaml:"debounce_ms"`
	Schedule   string `toml:"schedule" yaml:"schedule"`
}

// Metrics configures Prometheus exposition.
type Metrics struct {
	Listen   string `toml:"listen" yaml:"listen"`
	Textfile string `toml:"textfile" yaml:"textfile"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" yaml:"format"`
	Level  string `toml:"level" yaml:"level"`
}

// Daemon holds process-level settings.
type Daemon struct {
	LockFile string `toml:"lock_file" yaml:"lock_file"`
}

// Config encapsulates all configuration values for firmwared.
//
// Configuration sections by subsystem:
//   - Firmware: search directories, release override, tentative mode
//   - Sysfs: sysfs mount point
//   - Bus: udev or kernel netlink group
//   - Rescan: directory watch and cron schedule for deferred requests
//   - Metrics: Prometheus listener and textfile output
//   - Logging: log format and level
//   - Daemon: single-instance lock file
type Config struct {
	Firmware Firmware `toml:"firmware" yaml:"firmware"`
	Sysfs    Sysfs    `toml:"sysfs" yaml:"sysfs"`
	Bus      Bus      `toml:"bus" yaml:"bus"`
	Rescan   Rescan   `toml:"rescan" yaml:"rescan"`
	Metrics  Metrics  `toml:"metrics" yaml:"metrics"`
	Logging  Logging  `toml:"logging" yaml:"logging"`
	Daemon   Daemon   `toml:"daemon" yaml:"daemon"`
}

// DefaultConfigPath returns the system-wide configuration file location.
func DefaultConfigPath() string {
	return defaultConfigPath
}

// Load locates, parses, and validates a configuration file. A missing file
// yields the defaults. The returned config is normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := decode(resolvedPath, data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates c. Callers that change fields after Load
// (for example from command-line flags) run it again.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		if env, ok := os.LookupEnv(envConfigPath); ok && strings.TrimSpace(env) != "" {
			path = env
		} else {
			path = defaultConfigPath
		}
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// SearchDirs returns the firmware search directories in lookup order: the
// colon-separated override first, then the defaults, without duplicates.
func (c *Config) SearchDirs() []string {
	var dirs []string
	seen := make(map[string]struct{})
	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	for _, dir := range strings.Split(c.Firmware.Dirs, ":") {
		add(dir)
	}
	for _, dir := range c.Firmware.DefaultDirs {
		add(dir)
	}
	return dirs
}

// RescanEnabled reports whether any rescan trigger should run. Rescans only
// matter when requests can be left pending.
func (c *Config) RescanEnabled() bool {
	return c.Firmware.Tentative && (c.Rescan.Watch || c.Rescan.Schedule != "")
}

// Marshal renders c as TOML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
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
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
// An existing file is never overwritten.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("config already exists at %s", path)
		}
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := file.WriteString(sampleConfig); err != nil {
		_ = file.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return file.Close()
}
