package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/prefork/internal/supervisor"
)

var cpuCount = supervisor.CPUCount

func newWorkersCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Print how many worker processes serve would start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			cpus := cpuCount()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cpus: %d\n", cpus)
			if cfg.Supervisor.Workers > 0 {
				fmt.Fprintf(out, "workers: %d (configured)\n", cfg.Supervisor.Workers)
				return nil
			}
			fmt.Fprintf(out, "workers: %d\n", supervisor.WorkerCount(cpus))
			return nil
		},
	}
	return cmd
}
