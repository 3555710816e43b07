package manager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"firmwared/internal/config"
	"firmwared/internal/logging"
	"firmwared/internal/reactor"
)

// Rescan trigger records.
const (
	triggerWatch    uint32 = 1
	triggerSchedule uint32 = 2
)

func triggerName(rec uint32) string {
	switch rec {
	case triggerWatch:
		return "watch"
	case triggerSchedule:
		return "schedule"
	default:
		return "unknown"
	}
}

// rescanner posts a record to its Wakeup whenever deferred requests might
// now be servable: a file appeared in a search directory (debounced) or the
// cron schedule fired.
type rescanner struct {
	wakeup   *reactor.Wakeup
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	cron     *cron.Cron
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	stop chan struct{}
	done chan struct{}
}

func newRescanner(cfg *config.Config, dirs []string, logger *slog.Logger) (*rescanner, error) {
	wakeup, err := reactor.NewWakeup()
	if err != nil {
		return nil, err
	}
	r := &rescanner{
		wakeup:   wakeup,
		logger:   logging.NewComponentLogger(logger, "rescan"),
		debounce: time.Duration(cfg.Rescan.DebounceMS) * time.Millisecond,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.Rescan.Watch {
		r.startWatch(dirs)
	}
	if r.watcher == nil {
		close(r.done)
	}

	if cfg.Rescan.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Rescan.Schedule, func() {
			_ = r.wakeup.Notify(triggerSchedule)
		}); err != nil {
			_ = r.Close()
			return nil, err
		}
		c.Start()
		r.cron = c
		r.logger.Info("scheduled rescans enabled",
			logging.String(logging.FieldEventType, "rescan_schedule_started"),
			logging.String("schedule", cfg.Rescan.Schedule),
		)
	}
	return r, nil
}

func (r *rescanner) startWatch(dirs []string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WarnWithContext(r.logger, "directory watch unavailable", "rescan_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_instances"),
			logging.String(logging.FieldImpact, "deferred requests wait for the next event or scheduled rescan"),
		)
		return
	}
	watched := 0
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logging.WarnWithContext(r.logger, "cannot watch firmware directory", "rescan_watch_failed",
				logging.String("dir", dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "new files in this directory do not trigger a rescan"),
			)
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = watcher.Close()
		return
	}
	r.watcher = watcher
	go r.watchLoop()
	r.logger.Info("watching firmware directories",
		logging.String(logging.FieldEventType, "rescan_watch_started"),
		logging.Strings("dirs", watcher.WatchList()),
		logging.Duration("debounce", r.debounce),
	)
}

func (r *rescanner) watchLoop() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			r.logger.Debug("firmware directory changed",
				logging.String("path", event.Name),
				logging.String("op", event.Op.String()),
			)
			r.trigger()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(r.logger, "directory watch error", "rescan_watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "a change may have been missed"),
			)
			r.trigger()
		}
	}
}

// trigger restarts the debounce timer so a burst of changes yields one rescan.
func (r *rescanner) trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.timer == nil {
		r.timer = time.AfterFunc(r.debounce, func() {
			_ = r.wakeup.Notify(triggerWatch)
		})
		return
	}
	r.timer.Reset(r.debounce)
}

// Fd returns the descriptor to register with the reactor.
func (r *rescanner) Fd() int { return r.wakeup.Fd() }

// Pending drains the Wakeup and returns the distinct triggers seen.
func (r *rescanner) Pending() ([]string, error) {
	seen := make(map[uint32]bool)
	var triggers []string
	for {
		rec, err := r.wakeup.Read()
		if errors.Is(err, reactor.ErrEmpty) {
			return triggers, nil
		}
		if err != nil {
			return triggers, err
		}
		if !seen[rec] {
			seen[rec] = true
			triggers = append(triggers, triggerName(rec))
		}
	}
}

func (r *rescanner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()

	close(r.stop)
	var errs []error
	if r.watcher != nil {
		errs = append(errs, r.watcher.Close())
	}
	<-r.done
	if r.cron != nil {
		ctx := r.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}
	errs = append(errs, r.wakeup.Close())
	return errors.Join(errs...)
}
