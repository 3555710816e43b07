package firmware

import (
	"errors"
	"strings"

	"golang.org/x/sys/unix"
)

// Kind classifies firmware errors so callers can tell expected outcomes from
// failures that must stop the daemon.
type Kind int

const (
	// KindIOFailure is any OS failure not covered by a more specific kind.
	KindIOFailure Kind = iota
	// KindNotFound means no search directory holds the requested file.
	KindNotFound
	// KindEmptySource means the firmware file has zero length.
	KindEmptySource
	// KindNoSuchEntity means the device or one of its control files vanished.
	KindNoSuchEntity
	// KindInterrupted means a system call was interrupted by a signal.
	KindInterrupted
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindEmptySource:
		return "empty_source"
	case KindNoSuchEntity:
		return "no_such_entity"
	case KindInterrupted:
		return "interrupted"
	default:
		return "io_failure"
	}
}

var (
	ErrNotFound     = errors.New("firmware not found")
	ErrEmptySource  = errors.New("firmware file is empty")
	ErrNoSuchEntity = errors.New("device no longer exists")
)

// Error describes a failed firmware operation. It unwraps to the underlying
// cause so errors.Is(err, unix.EIO) and friends keep working.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("firmware: ")
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteByte(' ')
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	switch {
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind == KindNotFound:
		b.WriteString(ErrNotFound.Error())
	case e.Kind == KindEmptySource:
		b.WriteString(ErrEmptySource.Error())
	case e.Kind == KindNoSuchEntity:
		b.WriteString(ErrNoSuchEntity.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrEmptySource:
		return e.Kind == KindEmptySource
	case ErrNoSuchEntity:
		return e.Kind == KindNoSuchEntity
	}
	return false
}

// ErrorKind reports the classification as a string for log fields.
func (e *Error) ErrorKind() string { return e.Kind.String() }

// Errno returns the originating OS error code, or 0 when there is none.
func (e *Error) Errno() unix.Errno {
	var errno unix.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

// KindOf returns the classification of err. Errors that did not originate in
// this package are reported as KindIOFailure.
func KindOf(err error) Kind {
	var fwErr *Error
	if errors.As(err, &fwErr) {
		return fwErr.Kind
	}
	return KindIOFailure
}

// IsNoSuchEntity reports whether err means the device went away.
func IsNoSuchEntity(err error) bool {
	return err != nil && KindOf(err) == KindNoSuchEntity
}

func newError(op, path string, err error) *Error {
	kind := KindIOFailure
	switch {
	case errors.Is(err, unix.ENOENT):
		kind = KindNoSuchEntity
	case errors.Is(err, unix.EINTR):
		kind = KindInterrupted
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
