package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"firmwared/internal/config"
	"firmwared/internal/firmware"
	"firmwared/internal/logging"
	"firmwared/internal/metrics"
	"firmwared/internal/reactor"
	"firmwared/internal/uevent"
)

// Bus delivers firmware requests from the device event bus. Receive must not
// block; it reports uevent.ErrDrained once nothing is queued.
type Bus interface {
	Fd() int
	Receive() (*uevent.Request, error)
	Close() error
}

// Options configures a Manager.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Collector
	// Bus replaces the netlink subscription when set. The Manager takes
	// ownership and closes it, including when New fails.
	Bus Bus
	// LoaderOptions are passed to firmware.NewLoader.
	LoaderOptions []firmware.LoaderOption
}

// Manager owns every resource of the daemon and runs the event loop.
type Manager struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Collector
	tentative bool

	search  *firmware.SearchPath
	sysfs   *os.File
	bus     Bus
	signals *signalRelay
	rescan  *rescanner
	reactor *reactor.Reactor
	loader  *firmware.Loader

	// closers run in reverse order on Close.
	closers   []func() error
	closeOnce sync.Once
	closeErr  error
	running   atomic.Bool
}

// New acquires the search path, sysfs root, bus subscription, signal relay,
// rescan triggers and reactor, in that order. An injected Bus is owned before
// any of them. On failure everything already acquired is released.
func New(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, errors.New("manager: nil config")
	}
	cfg := opts.Config
	m := &Manager{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(opts.Logger, "manager"),
		metrics:   opts.Metrics,
		tentative: cfg.Firmware.Tentative,
		loader:    firmware.NewLoader(opts.Logger, opts.LoaderOptions...),
	}
	if err := m.open(opts); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) open(opts Options) error {
	// An injected bus is owned from the start.
	if opts.Bus != nil {
		m.bus = opts.Bus
		m.push(m.bus.Close)
	}

	release := m.cfg.Firmware.Release
	if release == "" {
		var err error
		if release, err = firmware.KernelRelease(); err != nil {
			return err
		}
	}

	m.search = firmware.OpenSearchPath(m.cfg.SearchDirs(), release,
		firmware.WithCompressed(m.cfg.Firmware.Compressed),
		firmware.WithSearchLogger(m.logger),
	)
	m.push(m.search.Close)
	if m.search.Len() == 0 {
		logging.WarnWithContext(m.logger, "no firmware directory could be opened", "search_path_empty",
			logging.Strings("dirs", m.cfg.SearchDirs()),
			logging.String(logging.FieldErrorHint, "check firmware.dirs and --dirs"),
			logging.String(logging.FieldImpact, "every request will be cancelled or deferred"),
		)
	}

	sysfs, err := firmware.OpenDir(m.cfg.Sysfs.Root)
	if err != nil {
		return fmt.Errorf("open sysfs root: %w", err)
	}
	m.sysfs = sysfs
	m.push(sysfs.Close)

	if m.bus == nil {
		bus, err := uevent.Connect(m.cfg.Bus.Source, opts.Logger)
		if err != nil {
			return err
		}
		m.bus = bus
		m.push(bus.Close)
		m.logger.Debug("subscribed to device events",
			logging.String("source", bus.Source()),
		)
	}

	signals, err := newSignalRelay(unix.SIGTERM, unix.SIGINT)
	if err != nil {
		return fmt.Errorf("install signal relay: %w", err)
	}
	m.signals = signals
	m.push(signals.Close)

	if m.cfg.RescanEnabled() {
		rescan, err := newRescanner(m.cfg, m.search.Dirs(), m.logger)
		if err != nil {
			return fmt.Errorf("start rescan triggers: %w", err)
		}
		m.rescan = rescan
		m.push(rescan.Close)
	}

	r, err := reactor.New()
	if err != nil {
		return err
	}
	m.reactor = r
	m.push(r.Close)

	if err := r.Register(m.bus.Fd(), m.handleBus); err != nil {
		return fmt.Errorf("register bus: %w", err)
	}
	if err := r.Register(m.signals.Fd(), m.handleSignal); err != nil {
		return fmt.Errorf("register signals: %w", err)
	}
	if m.rescan != nil {
		if err := r.Register(m.rescan.Fd(), m.handleRescan); err != nil {
			return fmt.Errorf("register rescan: %w", err)
		}
	}
	return nil
}

func (m *Manager) push(fn func() error) {
	m.closers = append(m.closers, fn)
}

// SearchDirs lists the firmware directories that were opened, in lookup order.
func (m *Manager) SearchDirs() []string { return m.search.Dirs() }

// Running reports whether the event loop is active.
func (m *Manager) Running() bool {
	if m == nil {
		return false
	}
	return m.running.Load()
}

// Close releases resources in reverse acquisition order. It is safe to call
// more than once and on a partially constructed Manager.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.closeOnce.Do(func() {
		var errs []error
		for i := len(m.closers) - 1; i >= 0; i-- {
			if err := m.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		m.closers = nil
		m.closeErr = errors.Join(errs...)
	})
	return m.closeErr
}
