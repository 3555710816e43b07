package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const recordSize = 4

// ErrEmpty is returned by Read when no record is pending.
var ErrEmpty = errors.New("reactor: wakeup empty")

// Wakeup is a non-blocking pipe of fixed-size records. Any goroutine may
// Notify; only the reactor goroutine reads. Records up to PIPE_BUF are written
// atomically, so concurrent producers never interleave.
type Wakeup struct {
	mu     sync.RWMutex
	rfd    int
	wfd    int
	closed bool
}

// NewWakeup creates the pipe.
func NewWakeup() (*Wakeup, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("pipe2: %w", err)
	}
	return &Wakeup{rfd: fds[0], wfd: fds[1]}, nil
}

// Fd returns the read end for reactor registration.
func (w *Wakeup) Fd() int { return w.rfd }

// Notify queues one record. A full pipe drops the record: the reader is
// already guaranteed to wake up.
func (w *Wakeup) Notify(record uint32) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil
	}
	var buf [recordSize]byte
	binary.NativeEndian.PutUint32(buf[:], record)
	for {
		_, err := unix.Write(w.wfd, buf[:])
		switch {
		case err == nil, errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			return fmt.Errorf("wakeup write: %w", err)
		}
	}
}

// Read returns the next record or ErrEmpty.
func (w *Wakeup) Read() (uint32, error) {
	var buf [recordSize]byte
	for {
		n, err := unix.Read(w.rfd, buf[:])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrEmpty
		case err != nil:
			return 0, fmt.Errorf("wakeup read: %w", err)
		case n != recordSize:
			return 0, fmt.Errorf("wakeup read: short record of %d bytes", n)
		}
		return binary.NativeEndian.Uint32(buf[:]), nil
	}
}

// Close closes both ends. Later Notify calls are no-ops.
func (w *Wakeup) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(unix.Close(w.wfd), unix.Close(w.rfd))
}
