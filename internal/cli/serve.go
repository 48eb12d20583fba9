package cli

import (
	stdcontext "context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Paintersrp/prefork/internal/config"
	"github.com/Paintersrp/prefork/internal/routes"
	"github.com/Paintersrp/prefork/internal/server"
	"github.com/Paintersrp/prefork/internal/supervisor"
)

var executable = os.Executable

func newServeCmd(ctx *context) *cobra.Command {
	var (
		address string
		port    int
		workers int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the supervisor and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("address") {
				cfg.Server.Address = address
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("workers") {
				cfg.Supervisor.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			opts, err := supervisorOptions(cfg, ctx.path(), log)
			if err != nil {
				return err
			}
			sup, err := supervisor.New(server.Config{
				Address:  cfg.Server.Address,
				Port:     uint16(cfg.Server.Port),
				Handlers: routes.Default(),
			}, opts...)
			if err != nil {
				return err
			}

			return runSupervisor(cmd, sup, log)
		},
	}
	cmd.Flags().StringVar(&address, "address", config.DefaultAddress, "address to bind")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "port to bind")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of worker processes (0 sizes from CPU count)")
	return cmd
}

func runSupervisor(cmd *cobra.Command, sup *supervisor.Supervisor, log *zap.Logger) error {
	runCtx, cancel := stdcontext.WithCancel(cmd.Context())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, supervisor.ShutdownSignals...)
	defer signal.Stop(sigs)
	stopped := supervisor.StopOnSignal(runCtx, sup, sigs, log)

	if err := sup.Start(runCtx); err != nil {
		return err
	}
	url := "http://" + net.JoinHostPort(sup.Address(), strconv.Itoa(int(sup.Port())))
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (press Ctrl+C to stop)\n", url)

	waitErr := sup.Wait(runCtx)
	if runCtx.Err() != nil {
		return sup.Stop(stdcontext.Background())
	}
	cancel()
	if stopErr, ok := <-stopped; ok && stopErr != nil {
		return stopErr
	}
	return waitErr
}

// supervisorOptions maps the configuration onto supervisor options. Workers
// are launched as "<self> worker --file <config>" with the resolved logging
// settings exported so they log like the supervisor.
func supervisorOptions(cfg *config.Config, configPath string, log *zap.Logger) ([]supervisor.Option, error) {
	exe, err := executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	spec := cfg.Supervisor
	return []supervisor.Option{
		supervisor.WithLogger(log),
		supervisor.WithWorkers(spec.Workers),
		supervisor.WithStartTimeout(spec.StartTimeout.Duration),
		supervisor.WithReadyInterval(spec.ReadyInterval.Duration),
		supervisor.WithJoinTimeout(spec.JoinTimeout.Duration),
		supervisor.WithChildTimeout(spec.ChildTimeout.Duration),
		supervisor.WithKillAfterTimeout(spec.KillEnabled()),
		supervisor.WithMaxRestarts(spec.RestartLimit()),
		supervisor.WithWorkerCommand(exe, "worker", "--file", configPath),
		supervisor.WithWorkerEnv(
			config.EnvLogLevel+"="+cfg.Logging.Level,
			config.EnvLogFormat+"="+cfg.Logging.Format,
		),
	}, nil
}
