package reactor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrStop ends Run without an error when returned by a handler.
var ErrStop = errors.New("reactor: stop")

// Handler services a readable source. It runs on the goroutine that called
// Run and must drain enough of the source to clear readiness.
type Handler func() error

const maxEvents = 8

// Reactor waits for readiness on a small, fixed set of file descriptors and
// invokes their handlers one at a time, in registration order.
type Reactor struct {
	epfd     int
	handlers map[int32]Handler
	order    []int32
}

// New creates an empty reactor.
func New() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Reactor{epfd: epfd, handlers: make(map[int32]Handler)}, nil
}

// Register adds fd to the wait set. Registration happens before Run; the set
// is not changed afterwards.
func (r *Reactor) Register(fd int, handler Handler) error {
	if r.epfd < 0 {
		return errors.New("reactor: closed")
	}
	if handler == nil {
		return fmt.Errorf("reactor: nil handler for fd %d", fd)
	}
	if _, ok := r.handlers[int32(fd)]; ok {
		return fmt.Errorf("reactor: fd %d already registered", fd)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	r.handlers[int32(fd)] = handler
	r.order = append(r.order, int32(fd))
	return nil
}

// Len returns the number of registered sources.
func (r *Reactor) Len() int { return len(r.order) }

// Run blocks until a handler returns an error. ErrStop yields nil; any other
// error is returned unchanged.
func (r *Reactor) Run() error {
	if r.epfd < 0 {
		return errors.New("reactor: closed")
	}
	events := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}
		ready := make(map[int32]bool, n)
		for i := 0; i < n; i++ {
			ready[events[i].Fd] = true
		}
		for _, fd := range r.order {
			if !ready[fd] {
				continue
			}
			if err := r.handlers[fd](); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
	}
}

// Close releases the epoll instance. Registered descriptors stay open; their
// owners close them.
func (r *Reactor) Close() error {
	if r.epfd < 0 {
		return nil
	}
	err := unix.Close(r.epfd)
	r.epfd = -1
	return err
}
