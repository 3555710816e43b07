package manager

import (
	"log/slog"

	"firmwared/internal/config"
	"firmwared/internal/firmware"
	"firmwared/internal/uevent"
)

// Resolution is what a firmware name maps to under the current search path.
type Resolution struct {
	Name string
	// Path is the resolved file, empty when nothing matched.
	Path string
	Size int64
}

// PendingRequest pairs an outstanding request with its resolution.
type PendingRequest struct {
	Request    uevent.Request
	Resolution Resolution
}

// Inspector answers read-only questions about the search path without
// touching any request.
type Inspector struct {
	cfg    *config.Config
	search *firmware.SearchPath
}

// NewInspector opens the search path described by cfg.
func NewInspector(cfg *config.Config, logger *slog.Logger) (*Inspector, error) {
	release := cfg.Firmware.Release
	if release == "" {
		var err error
		if release, err = firmware.KernelRelease(); err != nil {
			return nil, err
		}
	}
	search := firmware.OpenSearchPath(cfg.SearchDirs(), release,
		firmware.WithCompressed(cfg.Firmware.Compressed),
		firmware.WithSearchLogger(logger),
	)
	return &Inspector{cfg: cfg, search: search}, nil
}

// Release returns the kernel release used for subdirectory lookup.
func (i *Inspector) Release() string { return i.search.Release() }

// SearchDirs lists the opened directories in lookup order.
func (i *Inspector) SearchDirs() []string { return i.search.Dirs() }

// Resolve reports where name would be loaded from.
func (i *Inspector) Resolve(name string) (Resolution, error) {
	res := Resolution{Name: name}
	f, err := i.search.Resolve(name)
	if err != nil {
		if firmware.KindOf(err) == firmware.KindNotFound {
			return res, nil
		}
		return res, err
	}
	defer f.Close()
	res.Path = f.Name()
	if info, err := f.Stat(); err == nil {
		res.Size = info.Size()
	}
	return res, nil
}

// Pending lists outstanding requests under sysfs with their resolutions.
func (i *Inspector) Pending() ([]PendingRequest, error) {
	requests, err := uevent.Enumerate(i.cfg.Sysfs.Root, uevent.OriginEnumerate)
	if err != nil {
		return nil, err
	}
	out := make([]PendingRequest, 0, len(requests))
	for _, req := range requests {
		res, err := i.Resolve(req.Firmware)
		if err != nil {
			return nil, err
		}
		out = append(out, PendingRequest{Request: req, Resolution: res})
	}
	return out, nil
}

// Close releases the search path.
func (i *Inspector) Close() error { return i.search.Close() }
