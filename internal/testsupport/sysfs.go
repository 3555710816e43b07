package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Sysfs is a fake sysfs tree holding firmware request devices. Control files
// are plain files, so every write the daemon makes can be read back.
type Sysfs struct {
	t    testing.TB
	Root string
}

// NewSysfs creates an empty tree with the class/firmware directory and its
// global timeout attribute.
func NewSysfs(t testing.TB) *Sysfs {
	t.Helper()

	root := filepath.Join(t.TempDir(), "sys")
	class := filepath.Join(root, "class", "firmware")
	if err := os.MkdirAll(class, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", class, err)
	}
	WriteBytes(t, filepath.Join(class, "timeout"), []byte("60\n"))
	return &Sysfs{t: t, Root: root}
}

// DevPath returns the conventional device path of a test_firmware request.
func DevPath(name string) string {
	return "/devices/virtual/misc/test_firmware/" + strings.ReplaceAll(name, "/", "!")
}

// AddRequest creates a pending request for firmware at devpath and links it
// into class/firmware. It returns the device directory.
func (s *Sysfs) AddRequest(devpath, firmware string) string {
	s.t.Helper()

	dir := s.DeviceDir(devpath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.t.Fatalf("mkdir %s: %v", dir, err)
	}
	WriteBytes(s.t, filepath.Join(dir, "loading"), nil)
	WriteBytes(s.t, filepath.Join(dir, "data"), nil)
	WriteBytes(s.t, filepath.Join(dir, "uevent"), []byte("FIRMWARE="+firmware+"\nTIMEOUT=60\nASYNC=1\n"))

	link := filepath.Join(s.Root, "class", "firmware", filepath.Base(dir))
	target, err := filepath.Rel(filepath.Dir(link), dir)
	if err != nil {
		s.t.Fatalf("relative link for %s: %v", dir, err)
	}
	if err := os.Symlink(target, link); err != nil {
		s.t.Fatalf("symlink %s: %v", link, err)
	}
	return dir
}

// Remove deletes the request device, as the kernel does on timeout.
func (s *Sysfs) Remove(devpath string) {
	s.t.Helper()

	dir := s.DeviceDir(devpath)
	_ = os.Remove(filepath.Join(s.Root, "class", "firmware", filepath.Base(dir)))
	if err := os.RemoveAll(dir); err != nil {
		s.t.Fatalf("remove %s: %v", dir, err)
	}
}

// DeviceDir maps a device path onto the fake tree.
func (s *Sysfs) DeviceDir(devpath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(strings.TrimPrefix(devpath, "/")))
}

// Loading returns everything written to the request's loading file.
func (s *Sysfs) Loading(devpath string) string {
	s.t.Helper()
	return string(ReadFile(s.t, filepath.Join(s.DeviceDir(devpath), "loading")))
}

// Data returns the bytes delivered to the request's data file.
func (s *Sysfs) Data(devpath string) []byte {
	s.t.Helper()
	return ReadFile(s.t, filepath.Join(s.DeviceDir(devpath), "data"))
}
