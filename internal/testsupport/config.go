package testsupport

import (
	"path/filepath"
	"testing"

	"firmwared/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose paths all live below a per-test temp
// directory: one firmware directory with no defaults, a lock file, and the
// sysfs root of sysfs when it is non-nil.
func NewConfig(t testing.TB, sysfs *Sysfs, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Firmware.Dirs = filepath.Join(base, "firmware")
	cfgVal.Firmware.DefaultDirs = nil
	cfgVal.Firmware.Release = "1.0-test"
	cfgVal.Daemon.LockFile = filepath.Join(base, "firmwared.lock")
	cfgVal.Rescan.Watch = false
	cfgVal.Logging.Format = "json"
	if sysfs != nil {
		cfgVal.Sysfs.Root = sysfs.Root
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.Finalize(); err != nil {
		t.Fatalf("finalize test config: %v", err)
	}
	return builder.cfg
}

// WithTentative enables tentative mode on the test config.
func WithTentative() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Firmware.Tentative = true
	}
}

// WithCompressed enables the zstd fallback.
func WithCompressed() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Firmware.Compressed = true
	}
}

// WithWatch enables the directory watch rescan trigger with a short debounce.
func WithWatch() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rescan.Watch = true
		b.cfg.Rescan.DebounceMS = 20
	}
}

// FirmwareDir returns the first firmware directory of cfg.
func FirmwareDir(cfg *config.Config) string {
	return cfg.SearchDirs()[0]
}
