package manager

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"firmwared/internal/firmware"
	"firmwared/internal/logging"
	"firmwared/internal/reactor"
	"firmwared/internal/uevent"
)

// Run serves requests that are already pending, then waits for new ones
// until SIGTERM, SIGINT, or ctx cancellation (all clean exits, nil error) or
// until a fatal error.
func (m *Manager) Run(ctx context.Context) error {
	if m.reactor == nil {
		return errors.New("manager: not initialized")
	}
	m.signals.watch(ctx)

	m.logger.Info("firmware loader started",
		logging.String(logging.FieldEventType, "manager_started"),
		logging.Strings("search_dirs", m.search.Dirs()),
		logging.String("release", m.search.Release()),
		logging.Bool("tentative", m.tentative),
		logging.Bool("rescan", m.rescan != nil),
	)

	if err := m.Scan(uevent.OriginEnumerate); err != nil {
		return err
	}

	m.running.Store(true)
	defer m.running.Store(false)
	if err := m.reactor.Run(); err != nil {
		return err
	}
	m.logger.Info("firmware loader stopped",
		logging.String(logging.FieldEventType, "manager_stopped"),
	)
	return nil
}

// Scan enumerates every pending request under sysfs and dispatches each.
func (m *Manager) Scan(origin string) error {
	requests, err := uevent.Enumerate(m.cfg.Sysfs.Root, origin)
	if err != nil {
		return fmt.Errorf("enumerate firmware requests: %w", err)
	}
	deferred := 0
	for _, req := range requests {
		outcome, err := m.Dispatch(req)
		if err != nil {
			return err
		}
		if outcome == firmware.OutcomeDeferred {
			deferred++
		}
	}
	m.metrics.SetDeferred(deferred)
	if len(requests) > 0 {
		m.logger.Debug("enumeration complete",
			logging.String("origin", origin),
			logging.Int("requests", len(requests)),
			logging.Int("deferred", deferred),
		)
	}
	return nil
}

func (m *Manager) handleBus() error {
	for {
		req, err := m.bus.Receive()
		switch {
		case errors.Is(err, uevent.ErrDrained):
			return nil
		case errors.Is(err, uevent.ErrOverrun):
			m.metrics.ObserveOverrun()
			m.metrics.ObserveRescan("overrun")
			logging.WarnWithContext(m.logger, "device events were dropped", "bus_overrun",
				logging.String(logging.FieldErrorHint, "the daemon fell behind the kernel"),
				logging.String(logging.FieldImpact, "rescanning sysfs for missed requests"),
			)
			if err := m.Scan(uevent.OriginRescan); err != nil {
				return err
			}
			continue
		case errors.Is(err, uevent.ErrMalformed):
			logging.WarnWithContext(m.logger, "ignoring malformed device event", "bus_malformed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "event skipped"),
			)
			continue
		case err != nil:
			return fmt.Errorf("receive device event: %w", err)
		}
		if req == nil {
			continue
		}
		if _, err := m.Dispatch(*req); err != nil {
			return err
		}
	}
}

func (m *Manager) handleSignal() error {
	sig, ok, err := m.signals.Next()
	if err != nil {
		return fmt.Errorf("read signal: %w", err)
	}
	if !ok {
		return nil
	}
	switch sig {
	case unix.SIGTERM, unix.SIGINT:
		m.logger.Info("shutdown requested",
			logging.String(logging.FieldEventType, "shutdown_signal"),
			logging.String("signal", unix.SignalName(sig)),
		)
		return reactor.ErrStop
	default:
		m.logger.Debug("ignoring signal", logging.String("signal", unix.SignalName(sig)))
		return nil
	}
}

func (m *Manager) handleRescan() error {
	triggers, err := m.rescan.Pending()
	if err != nil {
		return fmt.Errorf("read rescan trigger: %w", err)
	}
	if len(triggers) == 0 {
		return nil
	}
	for _, trigger := range triggers {
		m.metrics.ObserveRescan(trigger)
	}
	m.logger.Debug("rescanning pending requests", logging.Strings("triggers", triggers))
	return m.Scan(uevent.OriginRescan)
}
