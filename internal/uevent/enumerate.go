package uevent

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pilebones/go-udev/netlink"
)

// Enumerate lists the firmware requests currently pending under
// <sysfsRoot>/class/firmware. Entries that disappear while being read are
// skipped. A missing class directory yields no requests.
func Enumerate(sysfsRoot, origin string) ([]Request, error) {
	root, err := filepath.EvalSymlinks(sysfsRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve sysfs root: %w", err)
	}
	classDir := filepath.Join(root, "class", "firmware")
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", classDir, err)
	}

	matcher := Matcher()
	var requests []Request
	for _, entry := range entries {
		if entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		ev, err := readDevice(root, filepath.Join(classDir, entry.Name()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if !matcher.Evaluate(ev) {
			continue
		}
		requests = append(requests, FromEvent(ev, origin))
	}
	return requests, nil
}

func readDevice(root, link string) (netlink.UEvent, error) {
	dir, err := filepath.EvalSymlinks(link)
	if err != nil {
		return netlink.UEvent{}, err
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return netlink.UEvent{}, fmt.Errorf("firmware device %s lies outside %s", dir, root)
	}
	devpath := "/" + filepath.ToSlash(rel)

	file, err := os.Open(filepath.Join(dir, "uevent"))
	if err != nil {
		return netlink.UEvent{}, err
	}
	defer file.Close()

	env, err := ParseAttributes(file)
	if err != nil {
		return netlink.UEvent{}, fmt.Errorf("read %s/uevent: %w", dir, err)
	}
	env["ACTION"] = string(netlink.ADD)
	env["DEVPATH"] = devpath
	env["SUBSYSTEM"] = "firmware"

	return netlink.UEvent{Action: netlink.ADD, KObj: devpath, Env: env}, nil
}

// ParseAttributes reads KEY=VALUE lines as found in a sysfs uevent file.
// Lines without '=' are ignored.
func ParseAttributes(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env, scanner.Err()
}
