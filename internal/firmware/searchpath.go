package firmware

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"firmwared/internal/logging"
)

// SearchPath is an ordered set of firmware directories, each optionally
// paired with a per-kernel-release subdirectory. Directories that cannot be
// opened are skipped when the path is built.
type SearchPath struct {
	release    string
	compressed bool
	logger     *slog.Logger
	entries    []searchEntry
}

type searchEntry struct {
	path    string
	base    *os.File
	release *os.File
}

// SearchOption customizes a SearchPath.
type SearchOption func(*SearchPath)

// WithCompressed enables the zstd fallback: when no plain file matches,
// NAME.zst is looked up in the same order and decompressed into memory.
func WithCompressed(enabled bool) SearchOption {
	return func(sp *SearchPath) { sp.compressed = enabled }
}

// WithSearchLogger sets the logger used to report skipped directories.
func WithSearchLogger(logger *slog.Logger) SearchOption {
	return func(sp *SearchPath) {
		if logger != nil {
			sp.logger = logger
		}
	}
}

// OpenSearchPath opens every directory in dirs, in order, together with its
// release subdirectory. Missing directories are not an error.
func OpenSearchPath(dirs []string, release string, opts ...SearchOption) *SearchPath {
	sp := &SearchPath{release: release, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(sp)
	}
	for _, dir := range dirs {
		base, err := OpenDir(dir)
		if err != nil {
			sp.logger.Debug("firmware directory unavailable",
				logging.String("dir", dir),
				logging.Error(err),
			)
			continue
		}
		entry := searchEntry{path: dir, base: base}
		if release != "" {
			if rel, err := openDirAt(int(base.Fd()), release, filepath.Join(dir, release)); err == nil {
				entry.release = rel
			}
		}
		sp.entries = append(sp.entries, entry)
	}
	return sp
}

// Release returns the kernel release used for subdirectory lookup.
func (sp *SearchPath) Release() string { return sp.release }

// Len returns the number of base directories that were opened.
func (sp *SearchPath) Len() int { return len(sp.entries) }

// Dirs lists the opened directories in lookup order, release subdirectory
// first for each base.
func (sp *SearchPath) Dirs() []string {
	out := make([]string, 0, len(sp.entries)*2)
	for _, e := range sp.entries {
		if e.release != nil {
			out = append(out, e.release.Name())
		}
		out = append(out, e.path)
	}
	return out
}

// Resolve finds the first regular file called name. For each directory the
// release subdirectory is tried before the base. The returned file is open
// for reading and owned by the caller.
func (sp *SearchPath) Resolve(name string) (*os.File, error) {
	if !validName(name) {
		return nil, &Error{Kind: KindNotFound, Op: "resolve", Path: name}
	}
	if f, ok := sp.lookup(name); ok {
		return f, nil
	}
	if sp.compressed {
		if f, ok := sp.lookup(name + zstdSuffix); ok {
			out, err := decompressZstd(f, name)
			if err == nil {
				return out, nil
			}
			logging.WarnWithContext(sp.logger, "compressed firmware unusable", "firmware_decompress_failed",
				logging.String(logging.FieldFirmware, name),
				logging.String("path", f.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "reinstall the firmware package"),
				logging.String(logging.FieldImpact, "request treated as not found"),
			)
		}
	}
	return nil, &Error{Kind: KindNotFound, Op: "resolve", Path: name}
}

func (sp *SearchPath) lookup(name string) (*os.File, bool) {
	for _, e := range sp.entries {
		if e.release != nil {
			if f, ok := openRegularAt(int(e.release.Fd()), name, filepath.Join(e.release.Name(), name)); ok {
				return f, true
			}
		}
		if f, ok := openRegularAt(int(e.base.Fd()), name, filepath.Join(e.path, name)); ok {
			return f, true
		}
	}
	return nil, false
}

// Close releases every directory handle. It is safe to call more than once.
func (sp *SearchPath) Close() error {
	for _, e := range sp.entries {
		if e.release != nil {
			_ = e.release.Close()
		}
		_ = e.base.Close()
	}
	sp.entries = nil
	return nil
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
