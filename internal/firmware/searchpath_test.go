package firmware

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"firmwared/internal/testsupport"
)

func readAll(t *testing.T, f *os.File) []byte {
	t.Helper()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek %s: %v", f.Name(), err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read %s: %v", f.Name(), err)
	}
	return data
}

func TestResolvePrefersReleaseSubdirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "fw")
	testsupport.WriteBytes(t, filepath.Join(base, "x.bin"), []byte("generic"))
	testsupport.WriteBytes(t, filepath.Join(base, "1.0-test", "x.bin"), []byte("release"))

	sp := OpenSearchPath([]string{base}, "1.0-test")
	defer sp.Close()

	f, err := sp.Resolve("x.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer f.Close()
	if want := filepath.Join(base, "1.0-test", "x.bin"); f.Name() != want {
		t.Fatalf("resolved %s, want %s", f.Name(), want)
	}
	if got := readAll(t, f); string(got) != "release" {
		t.Fatalf("content = %q", got)
	}
}

func TestResolveOrder(t *testing.T) {
	tmp := t.TempDir()
	first := filepath.Join(tmp, "first")
	second := filepath.Join(tmp, "second")
	missing := filepath.Join(tmp, "missing")
	testsupport.WriteBytes(t, filepath.Join(first, "a.bin"), []byte("first"))
	testsupport.WriteBytes(t, filepath.Join(second, "a.bin"), []byte("second"))
	testsupport.WriteBytes(t, filepath.Join(second, "b.bin"), []byte("only-second"))
	testsupport.WriteBytes(t, filepath.Join(second, "6.1", "a.bin"), []byte("second-release"))

	sp := OpenSearchPath([]string{missing, first, second}, "6.1")
	defer sp.Close()

	if sp.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (missing directory skipped)", sp.Len())
	}
	wantDirs := []string{first, filepath.Join(second, "6.1"), second}
	if got := sp.Dirs(); len(got) != len(wantDirs) {
		t.Fatalf("Dirs = %v, want %v", got, wantDirs)
	} else {
		for i := range got {
			if got[i] != wantDirs[i] {
				t.Fatalf("Dirs = %v, want %v", got, wantDirs)
			}
		}
	}

	cases := map[string]string{
		"a.bin": "first",
		"b.bin": "only-second",
	}
	for name, want := range cases {
		f, err := sp.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", name, err)
		}
		if got := readAll(t, f); string(got) != want {
			t.Fatalf("Resolve(%s) content = %q, want %q", name, got, want)
		}
		_ = f.Close()
	}
}

func TestResolveIgnoresNonRegularFiles(t *testing.T) {
	tmp := t.TempDir()
	first := filepath.Join(tmp, "first")
	second := filepath.Join(tmp, "second")
	if err := os.MkdirAll(filepath.Join(first, "x.bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteBytes(t, filepath.Join(second, "x.bin"), []byte("file"))

	sp := OpenSearchPath([]string{first, second}, "")
	defer sp.Close()

	f, err := sp.Resolve("x.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer f.Close()
	if f.Name() != filepath.Join(second, "x.bin") {
		t.Fatalf("resolved %s", f.Name())
	}
}

func TestResolveNotFound(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteBytes(t, filepath.Join(dir, "vendor", "fw.bin"), []byte("nested"))
	testsupport.WriteBytes(t, filepath.Join(filepath.Dir(dir), "outside.bin"), []byte("x"))

	sp := OpenSearchPath([]string{dir}, "")
	defer sp.Close()

	for _, name := range []string{"", "absent.bin", "/etc/passwd", "../outside.bin", "vendor/../../outside.bin"} {
		_, err := sp.Resolve(name)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Resolve(%q) err = %v, want not found", name, err)
		}
		if KindOf(err) != KindNotFound {
			t.Fatalf("Resolve(%q) kind = %s", name, KindOf(err))
		}
	}

	f, err := sp.Resolve("vendor/fw.bin")
	if err != nil {
		t.Fatalf("nested name: %v", err)
	}
	_ = f.Close()
}

func TestResolveWithNoDirectories(t *testing.T) {
	sp := OpenSearchPath(nil, "6.1")
	defer sp.Close()
	if _, err := sp.Resolve("x.bin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveCompressed(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	payload := testsupport.Pattern(4096)
	compressed := enc.EncodeAll(payload, nil)
	_ = enc.Close()

	dir := t.TempDir()
	testsupport.WriteBytes(t, filepath.Join(dir, "z.bin.zst"), compressed)
	testsupport.WriteBytes(t, filepath.Join(dir, "p.bin"), []byte("plain"))
	testsupport.WriteBytes(t, filepath.Join(dir, "p.bin.zst"), compressed)
	testsupport.WriteBytes(t, filepath.Join(dir, "bad.bin.zst"), []byte("not zstd at all"))

	t.Run("disabled", func(t *testing.T) {
		sp := OpenSearchPath([]string{dir}, "")
		defer sp.Close()
		if _, err := sp.Resolve("z.bin"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		sp := OpenSearchPath([]string{dir}, "", WithCompressed(true))
		defer sp.Close()

		f, err := sp.Resolve("z.bin")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() != int64(len(payload)) {
			t.Fatalf("size = %d, want %d", info.Size(), len(payload))
		}
		if got := readAll(t, f); !bytes.Equal(got, payload) {
			t.Fatal("decompressed content mismatch")
		}

		plain, err := sp.Resolve("p.bin")
		if err != nil {
			t.Fatal(err)
		}
		defer plain.Close()
		if got := readAll(t, plain); string(got) != "plain" {
			t.Fatalf("plain file should win, got %q", got)
		}

		if _, err := sp.Resolve("bad.bin"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("corrupt archive err = %v, want not found", err)
		}
	})
}

func TestCompressedSourceLoads(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	payload := testsupport.Pattern(70000)
	dir := t.TempDir()
	testsupport.WriteBytes(t, filepath.Join(dir, "x.bin.zst"), enc.EncodeAll(payload, nil))
	_ = enc.Close()

	sp := OpenSearchPath([]string{dir}, "", WithCompressed(true))
	defer sp.Close()
	src, err := sp.Resolve("x.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	f := newLoadFixture(t, 1)
	outcome, err := NewLoader(nil).BeginLoad(f.device, src, false)
	if err != nil || outcome != OutcomeCommitted {
		t.Fatalf("BeginLoad = %s, %v", outcome, err)
	}
	if got := f.sysfs.Data(testDevPath); !bytes.Equal(got, payload) {
		t.Fatal("decompressed firmware not delivered intact")
	}
}

func TestKernelRelease(t *testing.T) {
	release, err := KernelRelease()
	if err != nil {
		t.Fatalf("KernelRelease: %v", err)
	}
	if release == "" {
		t.Fatal("empty kernel release")
	}
}
