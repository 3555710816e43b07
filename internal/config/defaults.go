package config

const (
	defaultConfigPath = "/etc/firmwared/config.toml"
	envConfigPath     = "FIRMWARED_CONFIG"
	envFirmwareDirs   = "FIRMWARED_DIRS"

	defaultSysfsRoot        = "/sys"
	defaultBusSource        = BusSourceUdev
	defaultRescanDebounceMS = 500
	defaultLogFormat        = "auto"
	defaultLogLevel         = "info"
	defaultLockFile         = "/run/firmwared.lock"
)

// Netlink groups accepted by bus.source.
const (
	BusSourceUdev   = "udev"
	BusSourceKernel = "kernel"
)

// defaultFirmwareDirs mirrors the kernel's built-in firmware search path.
var defaultFirmwareDirs = []string{"/usr/lib/firmware", "/lib/firmware"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Firmware: Firmware{
			DefaultDirs: append([]string(nil), defaultFirmwareDirs...),
		},
		Sysfs: Sysfs{
			Root: defaultSysfsRoot,
		},
		Bus: Bus{
			Source: defaultBusSource,
		},
		Rescan: Rescan{
			Watch:      true,
			DebounceMS: defaultRescanDebounceMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Daemon: Daemon{
			LockFile: defaultLockFile,
		},
	}
}
