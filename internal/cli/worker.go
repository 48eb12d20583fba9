package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Paintersrp/prefork/internal/metrics"
	"github.com/Paintersrp/prefork/internal/routes"
	"github.com/Paintersrp/prefork/internal/worker"
)

func newWorkerCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run a worker process (launched by serve)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !worker.Requested() {
				return worker.ErrNotWorker
			}
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			log, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return worker.Run(runCtx, worker.Config{
				Handlers:          routes.Default(),
				ReadHeaderTimeout: cfg.Worker.ReadHeaderTimeout.Duration,
				ShutdownTimeout:   cfg.Worker.ShutdownTimeout.Duration,
				Middleware:        metrics.InstrumentHandler,
				Logger:            log.With(zap.String("component", "worker")),
			})
		},
	}
	return cmd
}
