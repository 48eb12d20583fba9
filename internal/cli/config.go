package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/prefork/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			return config.Encode(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a prefork configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.path()
			if _, err := config.Load(path); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", path)
			return nil
		},
	}
	return cmd
}
