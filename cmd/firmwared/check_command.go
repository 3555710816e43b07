package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"firmwared/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipBus bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify sysfs, search directories, bus access and the lock file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			results := preflight.RunAll(cfg, !skipBus)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderCheckTitle(colorize))
			if ctx.configPath != "" {
				fmt.Fprintln(out, renderSetting("Config", ctx.configPath, colorize))
			}
			fmt.Fprintln(out, renderSetting("Tentative mode", yesNo(cfg.Firmware.Tentative), colorize))
			for _, result := range results {
				fmt.Fprintln(out, renderResult(result, colorize))
			}

			if preflight.Failed(results) {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipBus, "skip-bus", false, "Do not open a netlink subscription")
	return cmd
}
