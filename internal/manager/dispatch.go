package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"firmwared/internal/firmware"
	"firmwared/internal/logging"
	"firmwared/internal/uevent"
)

// Dispatch serves one request: it opens the device directory, resolves the
// firmware name and then loads, cancels, or defers. A vanished device and a
// missing file are not errors. Any returned error is fatal to the daemon.
func (m *Manager) Dispatch(req uevent.Request) (firmware.Outcome, error) {
	start := time.Now()
	m.metrics.ObserveRequest(req.Origin)

	outcome, size, err := m.dispatch(req)
	m.metrics.ObserveOutcome(outcome.String(), size, time.Since(start))
	m.report(req, outcome, size, time.Since(start), err)
	if err != nil {
		return outcome, fmt.Errorf("serve %s for %s: %w", displayName(req.Firmware), req.DevPath, err)
	}
	return outcome, nil
}

func (m *Manager) dispatch(req uevent.Request) (firmware.Outcome, int64, error) {
	device, err := firmware.OpenDevice(m.sysfs, req.DevPath)
	if err != nil {
		if firmware.IsNoSuchEntity(err) {
			return firmware.OutcomeVanished, 0, nil
		}
		return firmware.OutcomeFailed, 0, err
	}
	defer device.Close()

	source, err := m.search.Resolve(req.Firmware)
	if err != nil {
		if firmware.KindOf(err) != firmware.KindNotFound {
			return firmware.OutcomeFailed, 0, err
		}
		if m.tentative {
			return firmware.OutcomeDeferred, 0, nil
		}
		outcome, err := m.loader.CancelLoad(device)
		return outcome, 0, err
	}
	defer source.Close()

	var size int64
	if info, err := source.Stat(); err == nil {
		size = info.Size()
	}
	outcome, err := m.loader.BeginLoad(device, source, m.tentative)
	return outcome, size, err
}

func (m *Manager) report(req uevent.Request, outcome firmware.Outcome, size int64, elapsed time.Duration, err error) {
	attrs := []logging.Attr{
		logging.String(logging.FieldDevice, req.DevPath),
		logging.String(logging.FieldFirmware, req.Firmware),
		logging.String(logging.FieldOutcome, outcome.String()),
		logging.String("origin", req.Origin),
		logging.Duration("elapsed", elapsed),
	}
	if err != nil {
		attrs = append(attrs,
			logging.Error(err),
			logging.String("error_kind", firmware.KindOf(err).String()),
		)
		logging.ErrorWithContext(m.logger, "firmware request failed", "firmware_failed", attrs...)
		return
	}

	var level slog.Level
	switch outcome {
	case firmware.OutcomeCommitted:
		attrs = append(attrs, logging.Int64("bytes", size))
		level = slog.LevelInfo
	case firmware.OutcomeCancelled, firmware.OutcomeDeferred:
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "firmware_"+outcome.String()))
	m.logger.Log(context.Background(), level, "firmware request "+outcome.String(), logging.Args(attrs...)...)
}

func displayName(name string) string {
	if name == "" {
		return "<unnamed firmware>"
	}
	return name
}
