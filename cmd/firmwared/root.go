package main

import (
	"github.com/spf13/cobra"

	"firmwared/internal/daemonrun"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var development bool
	overrides := &configOverrides{}

	ctx := newCommandContext(&configFlag, overrides)

	rootCmd := &cobra.Command{
		Use:   "firmwared",
		Short: "Serve kernel firmware requests from the firmware search path",
		Long: "firmwared answers the kernel's user-space firmware fallback: it copies each\n" +
			"requested image from the search path into sysfs, or cancels the request when\n" +
			"no image exists. In tentative mode missing images are left pending and served\n" +
			"once they appear.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{Development: development})
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	overrides.bind(flags)
	rootCmd.Flags().BoolVar(&development, "development", false, "Include source locations in every log line")

	rootCmd.AddCommand(newRequestsCommand(ctx))
	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))

	return rootCmd
}
