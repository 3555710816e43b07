package manager

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"firmwared/internal/reactor"
)

// signalRelay forwards process signals, and context cancellation as SIGTERM,
// into a Wakeup the reactor can wait on.
type signalRelay struct {
	wakeup *reactor.Wakeup
	ch     chan os.Signal
	stop   chan struct{}
	done   chan struct{}
}

func newSignalRelay(signals ...os.Signal) (*signalRelay, error) {
	wakeup, err := reactor.NewWakeup()
	if err != nil {
		return nil, err
	}
	r := &signalRelay{
		wakeup: wakeup,
		ch:     make(chan os.Signal, 4),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	signal.Notify(r.ch, signals...)
	go r.loop()
	return r, nil
}

func (r *signalRelay) loop() {
	defer close(r.done)
	for {
		select {
		case sig := <-r.ch:
			if s, ok := sig.(syscall.Signal); ok {
				_ = r.wakeup.Notify(uint32(s))
			}
		case <-r.stop:
			return
		}
	}
}

// watch relays ctx cancellation as SIGTERM until the relay is closed.
func (r *signalRelay) watch(ctx context.Context) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = r.wakeup.Notify(uint32(unix.SIGTERM))
		case <-r.stop:
		}
	}()
}

// Fd returns the descriptor to register with the reactor.
func (r *signalRelay) Fd() int { return r.wakeup.Fd() }

// Next returns the next pending signal, or ok=false when none is queued.
func (r *signalRelay) Next() (unix.Signal, bool, error) {
	rec, err := r.wakeup.Read()
	if errors.Is(err, reactor.ErrEmpty) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return unix.Signal(rec), true, nil
}

func (r *signalRelay) Close() error {
	signal.Stop(r.ch)
	close(r.stop)
	<-r.done
	return r.wakeup.Close()
}
