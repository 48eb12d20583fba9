package supervisor

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/Paintersrp/prefork/internal/logging"
	"github.com/Paintersrp/prefork/internal/server"
)

// ShutdownSignals lists the OS signals that should stop a running server.
// signals_unix.go appends SIGTERM on unix platforms.
var ShutdownSignals = []os.Signal{os.Interrupt}

// StopOnSignal stops h after the first value received on sigs. The blocking
// shutdown runs on the returned goroutine, never in signal context. The
// returned channel yields Stop's result and is closed afterwards; it is closed
// without a value if ctx ends or sigs is closed first.
func StopOnSignal(ctx context.Context, h server.Handle, sigs <-chan os.Signal, log *zap.Logger) <-chan error {
	log = logging.OrNop(log)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			log.Info("received shutdown signal", zap.Stringer("signal", sig))
			done <- h.Stop(context.Background())
		}
	}()
	return done
}
