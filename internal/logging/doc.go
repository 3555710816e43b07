// Package logging assembles structured slog loggers and formatting helpers used
// across firmwared.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes WarnWithContext and ErrorWithContext so every
// operator-facing warning carries an event type, a hint, and its impact. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
