package firmware

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"firmwared/internal/testsupport"
)

const testDevPath = "/devices/virtual/misc/test_firmware/x.bin"

type loadFixture struct {
	sysfs  *testsupport.Sysfs
	device *os.File
	source *os.File
	data   []byte
}

func newLoadFixture(t *testing.T, size int64) *loadFixture {
	t.Helper()

	sysfs := testsupport.NewSysfs(t)
	sysfs.AddRequest(testDevPath, "x.bin")

	root, err := OpenDir(sysfs.Root)
	if err != nil {
		t.Fatalf("open sysfs root: %v", err)
	}
	t.Cleanup(func() { _ = root.Close() })

	device, err := OpenDevice(root, testDevPath)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	t.Cleanup(func() { _ = device.Close() })

	srcPath := filepath.Join(t.TempDir(), "x.bin")
	data := testsupport.WriteFile(t, srcPath, size)
	source, err := os.Open(srcPath)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	t.Cleanup(func() { _ = source.Close() })

	return &loadFixture{sysfs: sysfs, device: device, source: source, data: data}
}

// preadCopy copies at most limit bytes per call through pread/write.
func preadCopy(limit int, calls *int) CopyFunc {
	return func(dst, src int, offset *int64, count int) (int, error) {
		*calls++
		if count > limit {
			count = limit
		}
		buf := make([]byte, count)
		n, err := unix.Pread(src, buf, *offset)
		if err != nil {
			return 0, err
		}
		if _, err := unix.Write(dst, buf[:n]); err != nil {
			return 0, err
		}
		*offset += int64(n)
		return n, nil
	}
}

func TestBeginLoadCommits(t *testing.T) {
	for _, tentative := range []bool{false, true} {
		f := newLoadFixture(t, 5000)
		loader := NewLoader(nil)

		outcome, err := loader.BeginLoad(f.device, f.source, tentative)
		if err != nil {
			t.Fatalf("tentative=%v: BeginLoad: %v", tentative, err)
		}
		if outcome != OutcomeCommitted {
			t.Fatalf("tentative=%v: outcome = %s, want committed", tentative, outcome)
		}
		if got := f.sysfs.Loading(testDevPath); got != "1\n0\n" {
			t.Fatalf("loading = %q, want %q", got, "1\n0\n")
		}
		if got := f.sysfs.Data(testDevPath); !bytes.Equal(got, f.data) {
			t.Fatalf("data mismatch: got %d bytes, want %d", len(got), len(f.data))
		}
	}
}

func TestBeginLoadCarriesOffsetAcrossShortCopies(t *testing.T) {
	f := newLoadFixture(t, 1000)
	calls := 0
	loader := NewLoader(nil, WithCopyFunc(preadCopy(64, &calls)))

	outcome, err := loader.BeginLoad(f.device, f.source, false)
	if err != nil || outcome != OutcomeCommitted {
		t.Fatalf("BeginLoad = %s, %v", outcome, err)
	}
	if calls != 16 {
		t.Fatalf("copy calls = %d, want 16", calls)
	}
	if got := f.sysfs.Data(testDevPath); !bytes.Equal(got, f.data) {
		t.Fatal("data was not delivered in order")
	}
}

func TestBeginLoadRetriesInterruptedCopy(t *testing.T) {
	f := newLoadFixture(t, 128)
	calls := 0
	inner := preadCopy(1<<20, &calls)
	interrupted := 0
	loader := NewLoader(nil, WithCopyFunc(func(dst, src int, offset *int64, count int) (int, error) {
		if interrupted < 2 {
			interrupted++
			if interrupted == 1 {
				return 0, unix.EINTR
			}
			return 0, unix.EAGAIN
		}
		return inner(dst, src, offset, count)
	}))

	outcome, err := loader.BeginLoad(f.device, f.source, false)
	if err != nil || outcome != OutcomeCommitted {
		t.Fatalf("BeginLoad = %s, %v", outcome, err)
	}
	if got := f.sysfs.Loading(testDevPath); got != "1\n0\n" {
		t.Fatalf("loading = %q", got)
	}
}

func TestBeginLoadGivesUpOnEndlessRetry(t *testing.T) {
	f := newLoadFixture(t, 64)
	calls := 0
	loader := NewLoader(nil, WithCopyFunc(func(int, int, *int64, int) (int, error) {
		calls++
		return 0, unix.EAGAIN
	}))

	outcome, err := loader.BeginLoad(f.device, f.source, false)
	if outcome != OutcomeAborted || !errors.Is(err, unix.EAGAIN) {
		t.Fatalf("BeginLoad = %s, %v", outcome, err)
	}
	if calls != maxRetries+1 {
		t.Fatalf("copy calls = %d, want %d", calls, maxRetries+1)
	}
	if got := f.sysfs.Loading(testDevPath); got != "1\n-1\n" {
		t.Fatalf("loading = %q", got)
	}
}

func TestBeginLoadAbortsAfterStart(t *testing.T) {
	for _, tentative := range []bool{false, true} {
		f := newLoadFixture(t, 256)
		loader := NewLoader(nil, WithCopyFunc(func(int, int, *int64, int) (int, error) {
			return 0, unix.EIO
		}))

		outcome, err := loader.BeginLoad(f.device, f.source, tentative)
		if outcome != OutcomeAborted {
			t.Fatalf("tentative=%v: outcome = %s, want aborted", tentative, outcome)
		}
		if !errors.Is(err, unix.EIO) {
			t.Fatalf("tentative=%v: err = %v, want EIO", tentative, err)
		}
		var fwErr *Error
		if !errors.As(err, &fwErr) || fwErr.Errno() != unix.EIO {
			t.Fatalf("expected *Error carrying EIO, got %#v", err)
		}
		if got := f.sysfs.Loading(testDevPath); got != "1\n-1\n" {
			t.Fatalf("loading = %q, want begin then a single abort", got)
		}
	}
}

func TestBeginLoadZeroProgressIsFailure(t *testing.T) {
	f := newLoadFixture(t, 32)
	loader := NewLoader(nil, WithCopyFunc(func(int, int, *int64, int) (int, error) {
		return 0, nil
	}))

	outcome, err := loader.BeginLoad(f.device, f.source, false)
	if outcome != OutcomeAborted || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("BeginLoad = %s, %v", outcome, err)
	}
}

func TestBeginLoadFailureBeforeStart(t *testing.T) {
	setup := func(t *testing.T) *loadFixture {
		f := newLoadFixture(t, 64)
		dataPath := filepath.Join(f.sysfs.DeviceDir(testDevPath), "data")
		if err := os.Remove(dataPath); err != nil {
			t.Fatal(err)
		}
		if err := os.Mkdir(dataPath, 0o755); err != nil {
			t.Fatal(err)
		}
		return f
	}

	t.Run("strict mode aborts", func(t *testing.T) {
		f := setup(t)
		outcome, err := NewLoader(nil).BeginLoad(f.device, f.source, false)
		if outcome != OutcomeAborted {
			t.Fatalf("outcome = %s, want aborted", outcome)
		}
		if !errors.Is(err, unix.EISDIR) {
			t.Fatalf("err = %v, want EISDIR", err)
		}
		if got := f.sysfs.Loading(testDevPath); got != "-1\n" {
			t.Fatalf("loading = %q, want abort only", got)
		}
	})

	t.Run("tentative mode defers", func(t *testing.T) {
		f := setup(t)
		outcome, err := NewLoader(nil).BeginLoad(f.device, f.source, true)
		if err != nil || outcome != OutcomeDeferred {
			t.Fatalf("BeginLoad = %s, %v", outcome, err)
		}
		if got := f.sysfs.Loading(testDevPath); got != "" {
			t.Fatalf("loading = %q, want untouched", got)
		}
	})
}

func TestBeginLoadEmptySource(t *testing.T) {
	t.Run("strict mode reports without writing", func(t *testing.T) {
		f := newLoadFixture(t, 0)
		outcome, err := NewLoader(nil).BeginLoad(f.device, f.source, false)
		if outcome != OutcomeFailed || !errors.Is(err, ErrEmptySource) {
			t.Fatalf("BeginLoad = %s, %v", outcome, err)
		}
		if got := f.sysfs.Loading(testDevPath); got != "" {
			t.Fatalf("loading = %q, want untouched", got)
		}
	})

	t.Run("tentative mode defers", func(t *testing.T) {
		f := newLoadFixture(t, 0)
		outcome, err := NewLoader(nil).BeginLoad(f.device, f.source, true)
		if err != nil || outcome != OutcomeDeferred {
			t.Fatalf("BeginLoad = %s, %v", outcome, err)
		}
		if got := f.sysfs.Loading(testDevPath); got != "" {
			t.Fatalf("loading = %q, want untouched", got)
		}
	})
}

func TestBeginLoadVanishedDevice(t *testing.T) {
	for _, tentative := range []bool{false, true} {
		f := newLoadFixture(t, 16)
		if err := os.Remove(filepath.Join(f.sysfs.DeviceDir(testDevPath), "loading")); err != nil {
			t.Fatal(err)
		}
		outcome, err := NewLoader(nil).BeginLoad(f.device, f.source, tentative)
		if err != nil || outcome != OutcomeVanished {
			t.Fatalf("tentative=%v: BeginLoad = %s, %v", tentative, outcome, err)
		}
	}
}

func TestCancelLoad(t *testing.T) {
	t.Run("writes abort", func(t *testing.T) {
		f := newLoadFixture(t, 1)
		outcome, err := NewLoader(nil).CancelLoad(f.device)
		if err != nil || outcome != OutcomeCancelled {
			t.Fatalf("CancelLoad = %s, %v", outcome, err)
		}
		if got := f.sysfs.Loading(testDevPath); got != "-1\n" {
			t.Fatalf("loading = %q", got)
		}
	})

	t.Run("vanished device is success", func(t *testing.T) {
		f := newLoadFixture(t, 1)
		if err := os.Remove(filepath.Join(f.sysfs.DeviceDir(testDevPath), "loading")); err != nil {
			t.Fatal(err)
		}
		outcome, err := NewLoader(nil).CancelLoad(f.device)
		if err != nil || outcome != OutcomeVanished {
			t.Fatalf("CancelLoad = %s, %v", outcome, err)
		}
	})
}

func TestOpenDeviceStaysBelowRoot(t *testing.T) {
	sysfs := testsupport.NewSysfs(t)
	sysfs.AddRequest(testDevPath, "x.bin")
	root, err := OpenDir(sysfs.Root)
	if err != nil {
		t.Fatal(err)
	}
	defer root.Close()

	dev, err := OpenDevice(root, "/../../devices/virtual/misc/test_firmware/x.bin")
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	_ = dev.Close()

	if _, err := OpenDevice(root, "/devices/missing"); !IsNoSuchEntity(err) {
		t.Fatalf("missing device err = %v, want no such entity", err)
	}
	if _, err := OpenDevice(root, "/"); !IsNoSuchEntity(err) {
		t.Fatalf("empty devpath err = %v, want no such entity", err)
	}
}
