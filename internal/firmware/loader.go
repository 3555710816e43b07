package firmware

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"firmwared/internal/logging"
)

// Outcome describes how a single load or cancel attempt ended.
type Outcome int

const (
	// OutcomeFailed means the attempt failed without touching the kernel
	// handshake, or after an abort could not be delivered.
	OutcomeFailed Outcome = iota
	// OutcomeCommitted means the image was transferred and committed.
	OutcomeCommitted
	// OutcomeDeferred means a tentative attempt failed before the transfer
	// started and the request was left pending for a later attempt.
	OutcomeDeferred
	// OutcomeVanished means the device disappeared; nothing to do.
	OutcomeVanished
	// OutcomeAborted means a transfer failed and the kernel was told to abort.
	OutcomeAborted
	// OutcomeCancelled means the request was explicitly cancelled because no
	// firmware file exists for it.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeVanished:
		return "vanished"
	case OutcomeAborted:
		return "aborted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Values written to the kernel's loading control file.
const (
	stateCommit = 0
	stateBegin  = 1
	stateAbort  = -1
)

// maxChunk is the largest count passed to a single sendfile call.
const maxChunk = 0x7ffff000

// maxRetries bounds consecutive EINTR/EAGAIN results without progress.
const maxRetries = 16

// CopyFunc copies up to count bytes from src to dst starting at *offset and
// advances *offset by the number of bytes copied. unix.Sendfile satisfies it.
type CopyFunc func(dst, src int, offset *int64, count int) (int, error)

// Loader drives the kernel firmware loading handshake for one device at a
// time. It holds no per-request state.
type Loader struct {
	logger *slog.Logger
	copy   CopyFunc
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithCopyFunc replaces the byte copier (sendfile by default).
func WithCopyFunc(fn CopyFunc) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.copy = fn
		}
	}
}

// NewLoader constructs a Loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		logger: logging.NewComponentLogger(logger, "loader"),
		copy:   unix.Sendfile,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type loadSession struct {
	loading *os.File
	data    *os.File
	started bool
}

func (s *loadSession) close() {
	if s.data != nil {
		_ = s.data.Close()
	}
	if s.loading != nil {
		_ = s.loading.Close()
	}
}

// BeginLoad feeds source to the device whose sysfs directory is open as
// device. The source file is not closed.
//
// A vanished device is reported as OutcomeVanished with a nil error. In
// tentative mode a failure before the begin marker has been written leaves
// the request pending and yields OutcomeDeferred with a nil error. Any other
// failure writes the abort marker when the loading file is open and returns
// the original error.
func (l *Loader) BeginLoad(device, source *os.File, tentative bool) (Outcome, error) {
	var s loadSession
	defer s.close()

	err := l.load(&s, device, source)
	if err == nil {
		return OutcomeCommitted, nil
	}
	if IsNoSuchEntity(err) {
		l.logger.Debug("device vanished during load",
			logging.String(logging.FieldDevice, device.Name()),
			logging.Error(err),
		)
		return OutcomeVanished, nil
	}
	if tentative && !s.started {
		l.logger.Debug("load deferred",
			logging.String(logging.FieldDevice, device.Name()),
			logging.String("reason", KindOf(err).String()),
		)
		return OutcomeDeferred, nil
	}
	if KindOf(err) == KindEmptySource || s.loading == nil {
		return OutcomeFailed, err
	}
	if werr := writeState(s.loading, stateAbort); werr != nil {
		logging.WarnWithContext(l.logger, "abort marker not delivered", "firmware_abort_failed",
			logging.String(logging.FieldDevice, device.Name()),
			logging.Error(werr),
			logging.String(logging.FieldImpact, "kernel request may stay pending until its timeout"),
		)
	}
	return OutcomeAborted, err
}

func (l *Loader) load(s *loadSession, device, source *os.File) error {
	loading, err := openControl(device, "loading")
	if err != nil {
		return err
	}
	s.loading = loading

	data, err := openControl(device, "data")
	if err != nil {
		return err
	}
	s.data = data

	info, err := source.Stat()
	if err != nil {
		return newError("stat", source.Name(), err)
	}
	size := info.Size()
	if size == 0 {
		return &Error{Kind: KindEmptySource, Op: "load", Path: source.Name()}
	}

	if err := writeState(loading, stateBegin); err != nil {
		return newError("write", loading.Name(), err)
	}
	s.started = true

	if err := l.transfer(data, source, size); err != nil {
		return err
	}

	if err := writeState(loading, stateCommit); err != nil {
		logging.WarnWithContext(l.logger, "commit marker not delivered", "firmware_commit_failed",
			logging.String(logging.FieldDevice, device.Name()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "kernel decides the final state of the request"),
		)
	}
	l.logger.Debug("firmware transferred",
		logging.String(logging.FieldDevice, device.Name()),
		logging.String("source", source.Name()),
		logging.Int64("bytes", size),
	)
	return nil
}

// transfer copies size bytes, carrying the source offset across calls.
func (l *Loader) transfer(data, source *os.File, size int64) error {
	dst, src := int(data.Fd()), int(source.Fd())
	var offset int64
	retries := 0
	for offset < size {
		count := size - offset
		if count > maxChunk {
			count = maxChunk
		}
		n, err := l.copy(dst, src, &offset, int(count))
		if err != nil {
			if (errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)) && retries < maxRetries {
				retries++
				continue
			}
			return newError("sendfile", data.Name(), err)
		}
		retries = 0
		if n == 0 {
			return &Error{Kind: KindIOFailure, Op: "sendfile", Path: source.Name(), Err: io.ErrUnexpectedEOF}
		}
	}
	return nil
}

// CancelLoad tells the kernel that no firmware will be provided for device.
func (l *Loader) CancelLoad(device *os.File) (Outcome, error) {
	loading, err := openControl(device, "loading")
	if err != nil {
		if IsNoSuchEntity(err) {
			return OutcomeVanished, nil
		}
		return OutcomeFailed, err
	}
	defer loading.Close()

	if err := writeState(loading, stateAbort); err != nil {
		werr := newError("write", loading.Name(), err)
		if IsNoSuchEntity(werr) {
			return OutcomeVanished, nil
		}
		return OutcomeFailed, werr
	}
	return OutcomeCancelled, nil
}

func writeState(f *os.File, state int) error {
	_, err := fmt.Fprintf(f, "%d\n", state)
	return err
}
