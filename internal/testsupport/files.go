package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern and returns the bytes written. A size <= 0 creates
// an empty file.
func WriteFile(t testing.TB, path string, size int64) []byte {
	t.Helper()

	content := Pattern(size)
	WriteBytes(t, path, content)
	return content
}

// WriteBytes writes content to path, creating parent directories.
func WriteBytes(t testing.TB, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Pattern returns size bytes of a repeating, position-dependent pattern so
// misplaced offsets show up in comparisons.
func Pattern(size int64) []byte {
	if size <= 0 {
		return []byte{}
	}
	var buf bytes.Buffer
	buf.Grow(int(size))
	for i := int64(0); i < size; i++ {
		buf.WriteByte(byte(i%251) + 1)
	}
	return buf.Bytes()
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
