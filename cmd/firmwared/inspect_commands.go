package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firmwared/internal/config"
	"firmwared/internal/logging"
	"firmwared/internal/manager"
)

func openInspector(cfg *config.Config) (*manager.Inspector, error) {
	logger, err := logging.New(logging.Options{
		Level:  "warn",
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	inspector, err := manager.NewInspector(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open search path: %w", err)
	}
	return inspector, nil
}

func writeSearchPath(out io.Writer, inspector *manager.Inspector) {
	fmt.Fprintf(out, "Kernel release: %s\n", inspector.Release())
	dirs := inspector.SearchDirs()
	if len(dirs) == 0 {
		fmt.Fprintln(out, "Search path: (no readable directories)")
		return
	}
	fmt.Fprintln(out, "Search path:")
	for _, dir := range dirs {
		fmt.Fprintf(out, "  %s\n", dir)
	}
}

func newRequestsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requests",
		Short: "List outstanding firmware requests and what each would load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			inspector, err := openInspector(cfg)
			if err != nil {
				return err
			}
			defer inspector.Close()

			pending, err := inspector.Pending()
			if err != nil {
				return fmt.Errorf("enumerate requests: %w", err)
			}

			out := cmd.OutOrStdout()
			writeSearchPath(out, inspector)
			fmt.Fprintf(out, "Tentative mode: %s\n\n", yesNo(cfg.Firmware.Tentative))
			if len(pending) == 0 {
				fmt.Fprintln(out, "No outstanding firmware requests")
				return nil
			}

			fmt.Fprintln(out, renderRequestsTable(pending, shouldColorize(out)))
			return nil
		},
	}
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve NAME...",
		Short: "Show which file each firmware name resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			inspector, err := openInspector(cfg)
			if err != nil {
				return err
			}
			defer inspector.Close()

			results := make([]manager.Resolution, 0, len(args))
			var missing []string
			for _, name := range args {
				res, err := inspector.Resolve(name)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", name, err)
				}
				if res.Path == "" {
					missing = append(missing, name)
				}
				results = append(results, res)
			}

			out := cmd.OutOrStdout()
			writeSearchPath(out, inspector)
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderResolveTable(results, shouldColorize(out)))
			if len(missing) > 0 {
				return fmt.Errorf("not found in search path: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
