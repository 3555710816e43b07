package uevent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"

	"firmwared/internal/logging"
)

var (
	// ErrDrained means the socket has no more queued messages.
	ErrDrained = errors.New("uevent: bus drained")
	// ErrOverrun means the kernel dropped messages because the socket
	// buffer was full. Requests may have been missed.
	ErrOverrun = errors.New("uevent: receive buffer overrun")
	// ErrMalformed wraps messages that could not be parsed.
	ErrMalformed = errors.New("uevent: malformed message")
)

// Bus sources.
const (
	SourceUdev   = "udev"
	SourceKernel = "kernel"
)

// Bus is a non-blocking netlink subscription to device events.
type Bus struct {
	conn    *netlink.UEventConn
	matcher netlink.Matcher
	logger  *slog.Logger
	source  string
}

// Connect subscribes to the udev (post-processing) or kernel uevent group.
func Connect(source string, logger *slog.Logger) (*Bus, error) {
	mode := netlink.UdevEvent
	switch source {
	case SourceUdev, "":
		source = SourceUdev
	case SourceKernel:
		mode = netlink.KernelEvent
	default:
		return nil, fmt.Errorf("uevent: unknown bus source %q", source)
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(mode); err != nil {
		return nil, fmt.Errorf("connect netlink %s group: %w", source, err)
	}
	if err := unix.SetNonblock(conn.Fd, true); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set netlink socket non-blocking: %w", err)
	}

	bus := &Bus{
		conn:    conn,
		matcher: Matcher(),
		logger:  logging.NewComponentLogger(logger, "uevent-bus"),
		source:  source,
	}
	bus.logger.Debug("netlink subscription ready",
		logging.String(logging.FieldEventType, "bus_connected"),
		logging.String("source", source),
	)
	return bus, nil
}

// Fd returns the socket for reactor registration.
func (b *Bus) Fd() int { return b.conn.Fd }

// Source reports the subscribed group.
func (b *Bus) Source() string { return b.source }

// Receive reads one message. It returns a nil Request for events that are not
// firmware add/move requests, ErrDrained once the socket is empty, ErrOverrun
// after the kernel dropped messages, and an error wrapping ErrMalformed for
// unparsable input. Any other error is a socket failure.
func (b *Bus) Receive() (*Request, error) {
	for {
		ev, err := b.conn.ReadUEvent()
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return nil, classify(err)
		}
		if ev == nil || !b.matcher.Evaluate(*ev) {
			return nil, nil
		}
		req := FromEvent(*ev, OriginBus)
		return &req, nil
	}
}

// Close releases the socket.
func (b *Bus) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func classify(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch errno {
	case unix.EAGAIN:
		return ErrDrained
	case unix.ENOBUFS:
		return ErrOverrun
	default:
		return fmt.Errorf("netlink receive: %w", err)
	}
}
