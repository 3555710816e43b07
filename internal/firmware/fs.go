package firmware

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const dirFlags = unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC | unix.O_PATH

// KernelRelease returns the running kernel's release string (uname -r).
func KernelRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}
	return unix.ByteSliceToString(uts.Release[:]), nil
}

// OpenDir opens path as a directory handle usable as an openat base.
func OpenDir(path string) (*os.File, error) {
	return openDirAt(unix.AT_FDCWD, path, path)
}

// OpenDevice opens the sysfs directory of devpath (for example
// "/devices/virtual/misc/test_firmware/firmware/x.bin") beneath root.
// A device that no longer exists yields a KindNoSuchEntity error.
func OpenDevice(root *os.File, devpath string) (*os.File, error) {
	rel := strings.TrimPrefix(filepath.Clean("/"+devpath), "/")
	display := filepath.Join(root.Name(), rel)
	if rel == "" {
		return nil, &Error{Kind: KindNoSuchEntity, Op: "open device", Path: display}
	}
	return openDirAt(int(root.Fd()), rel, display)
}

func openDirAt(dirfd int, name, display string) (*os.File, error) {
	fd, err := unix.Openat(dirfd, name, dirFlags, 0)
	if err != nil {
		return nil, newError("open", display, err)
	}
	return os.NewFile(uintptr(fd), display), nil
}

// openRegularAt opens name beneath dirfd for reading. Anything that is not a
// regular file is rejected with ok=false.
func openRegularAt(dirfd int, name, display string) (f *os.File, ok bool) {
	fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, false
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil || st.Mode&unix.S_IFMT != unix.S_IFREG {
		_ = unix.Close(fd)
		return nil, false
	}
	return os.NewFile(uintptr(fd), display), true
}

func openControl(device *os.File, name string) (*os.File, error) {
	display := filepath.Join(device.Name(), name)
	fd, err := unix.Openat(int(device.Fd()), name, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, newError("open", display, err)
	}
	return os.NewFile(uintptr(fd), display), nil
}
