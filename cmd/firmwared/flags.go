package main

import (
	"github.com/spf13/pflag"

	"firmwared/internal/config"
)

// configOverrides holds command-line values that replace configuration file
// settings. Only flags the user actually set are applied.
type configOverrides struct {
	tentative bool
	dirs      string
	logLevel  string
	logFormat string
}

func (o *configOverrides) bind(fs *pflag.FlagSet) {
	fs.BoolVarP(&o.tentative, "tentative", "t", false, "Leave requests for missing firmware pending instead of cancelling them")
	fs.StringVarP(&o.dirs, "dirs", "d", "", "Colon-separated firmware directories searched before the defaults")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "", "Log format (auto, console, json)")
}

// apply copies every changed flag onto cfg and re-validates it.
func (o *configOverrides) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("tentative") {
		cfg.Firmware.Tentative = o.tentative
	}
	if fs.Changed("dirs") {
		cfg.Firmware.Dirs = o.dirs
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}
	return cfg.Finalize()
}
