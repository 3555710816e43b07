// Package config loads, normalizes, and validates firmwared configuration.
//
// Settings come from /etc/firmwared/config.toml (or the file named by
// FIRMWARED_CONFIG or --config). TOML is the default format; files ending in
// .yaml or .yml are read as YAML. A missing file is not an error and yields
// the defaults, so a bare `firmwared` behaves like the kernel's own loader:
// /usr/lib/firmware then /lib/firmware, each with a uname -r subdirectory.
//
// Command-line flags are applied on top of the loaded values; call Finalize
// afterwards so the merged result is normalized and validated again.
package config
