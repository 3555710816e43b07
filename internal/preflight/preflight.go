package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"firmwared/internal/config"
	"firmwared/internal/logging"
	"firmwared/internal/uevent"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Optional failures degrade the daemon without stopping it.
	Optional bool
	Detail   string
}

// Failed reports whether any required check did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}

// RunAll executes the checks that matter for cfg. The bus check opens a real
// netlink socket and is skipped when connect is false.
func RunAll(cfg *config.Config, connect bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckSysfs(cfg.Sysfs.Root)}

	dirs := cfg.SearchDirs()
	if len(dirs) == 0 {
		results = append(results, Result{Name: "Search path", Detail: "no directories configured"})
	}
	for _, dir := range dirs {
		res := CheckDirectoryAccess("Firmware directory", dir)
		res.Optional = true
		results = append(results, res)
	}

	if connect {
		results = append(results, CheckBus(cfg.Bus.Source))
	}
	results = append(results, CheckLockDirectory(cfg.Daemon.LockFile))
	return results
}

// CheckSysfs verifies that root exposes the firmware class used by the
// user-space fallback.
func CheckSysfs(root string) Result {
	const name = "Firmware class"
	class := filepath.Join(root, "class", "firmware")
	info, err := os.Stat(class)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist; kernel lacks the user-space fallback)", class)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", class, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", class)}
	}
	detail := class
	if data, err := os.ReadFile(filepath.Join(class, "timeout")); err == nil {
		detail = fmt.Sprintf("%s (fallback timeout %ss)", class, strings.TrimSpace(string(data)))
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and can be listed
// and read.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read ok)", path)}
}

// CheckBus opens and closes a subscription on the configured netlink group.
func CheckBus(source string) Result {
	const name = "Device bus"
	bus, err := uevent.Connect(source, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s group (error: %v)", source, err)}
	}
	_ = bus.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s group subscription ok", source)}
}

// CheckLockDirectory verifies that the instance lock can be created. The
// daemon creates missing parents, so the nearest existing ancestor must be a
// writable directory.
func CheckLockDirectory(lockFile string) Result {
	const name = "Lock file"
	dir := filepath.Dir(lockFile)
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s is not a directory)", lockFile, dir)}
			}
			break
		}
		parent := filepath.Dir(dir)
		if !errors.Is(err, os.ErrNotExist) || parent == dir {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat %s: %v)", lockFile, dir, err)}
		}
		dir = parent
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: directory %s not writable: %v)", lockFile, dir, err)}
	}
	return Result{Name: name, Passed: true, Detail: lockFile}
}
