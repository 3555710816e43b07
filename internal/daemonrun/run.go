package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"firmwared/internal/config"
	"firmwared/internal/logging"
	"firmwared/internal/manager"
	"firmwared/internal/metrics"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("firmwared is already running")

// Options configures daemon process runtime behavior.
type Options struct {
	Development bool
	// Logger replaces the logger built from the configuration.
	Logger *slog.Logger
	// Bus replaces the netlink subscription.
	Bus manager.Bus
}

// Run starts the firmware loader and blocks until it stops. A clean shutdown
// (signal or ctx cancellation) returns nil.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionID := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			Development: opts.Development,
			SessionID:   sessionID,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	} else {
		logger = logger.With(logging.String(logging.FieldSessionID, sessionID))
	}

	lock, err := acquireLock(cfg.Daemon.LockFile)
	if err != nil {
		logging.ErrorWithContext(logger, "cannot acquire instance lock", "lock_failed",
			logging.Error(err),
			logging.String("lock_file", cfg.Daemon.LockFile),
			logging.String(logging.FieldErrorHint, "stop the other firmwared instance or change daemon.lock_file"),
		)
		return err
	}
	defer func() { _ = lock.Unlock() }()

	logConfigSnapshot(logger, cfg)

	collector := metrics.NewCollector(nil)
	mgr, err := manager.New(manager.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: collector,
		Bus:     opts.Bus,
	})
	if err != nil {
		logging.ErrorWithContext(logger, "firmware loader failed to start", "manager_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check sysfs.root and netlink permissions (CAP_NET_ADMIN is not required, root usually is)"),
		)
		return fmt.Errorf("create manager: %w", err)
	}
	defer mgr.Close()

	if cfg.Metrics.Listen != "" {
		server, err := collector.Serve(cfg.Metrics.Listen, mgr.Running, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	runErr := mgr.Run(signalCtx)
	if runErr != nil {
		logging.ErrorWithContext(logger, "firmware loader stopped with error", "manager_failed",
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "a supervisor should restart the daemon"),
		)
	}

	if cfg.Metrics.Textfile != "" {
		if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logging.WarnWithContext(logger, "metrics textfile not written", "metrics_textfile_failed",
				logging.Error(err),
				logging.String("path", cfg.Metrics.Textfile),
				logging.String(logging.FieldImpact, "node exporter shows stale firmwared metrics"),
			)
		}
	}
	return runErr
}

func acquireLock(path string) (*flock.Flock, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock held on %s)", ErrAlreadyRunning, path)
	}
	return lock, nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.Strings("search_dirs", cfg.SearchDirs()),
		logging.String("release_override", cfg.Firmware.Release),
		logging.Bool("tentative", cfg.Firmware.Tentative),
		logging.Bool("compressed", cfg.Firmware.Compressed),
		logging.String("sysfs_root", cfg.Sysfs.Root),
		logging.String("bus_source", cfg.Bus.Source),
		logging.Bool("rescan", cfg.RescanEnabled()),
		logging.String("metrics_listen", cfg.Metrics.Listen),
	)
}
