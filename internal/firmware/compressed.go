package firmware

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"
)

const (
	zstdSuffix = ".zst"
	// maxDecodedMemory caps the decoder window; firmware images are small.
	maxDecodedMemory = 512 << 20
)

// decompressZstd inflates src into an anonymous memory file so the loader
// can treat it like any other firmware source. src is always closed.
func decompressZstd(src *os.File, name string) (*os.File, error) {
	defer src.Close()

	dec, err := zstd.NewReader(src,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxDecodedMemory),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	fd, err := unix.MemfdCreate("firmware:"+filepath.Base(name), unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	out := os.NewFile(uintptr(fd), src.Name())
	if _, err := io.Copy(out, dec); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("decompress %s: %w", src.Name(), err)
	}
	return out, nil
}
