// Package worker implements the child-process half of the prefork model: it
// adopts the listener inherited from the supervisor, serves the registered
// handlers and reports readiness back over a pipe.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Paintersrp/prefork/internal/logging"
	"github.com/Paintersrp/prefork/internal/server"
)

// Environment exchanged between supervisor and worker.
const (
	EnvWorker   = "PREFORK_WORKER"
	EnvListenFD = "PREFORK_LISTEN_FD"
	EnvReadyFD  = "PREFORK_READY_FD"
	EnvRunID    = "PREFORK_RUN_ID"
	EnvIndex    = "PREFORK_WORKER_INDEX"
)

// Descriptor numbers of the files passed through exec.Cmd.ExtraFiles.
const (
	ListenFD = 3
	ReadyFD  = 4
)

// ReadyMessage is written to the readiness pipe once the worker accepts
// connections.
const ReadyMessage = "READY\n"

const parentPollInterval = time.Second

// ErrNotWorker is returned when the process was not launched by a supervisor.
var ErrNotWorker = errors.New("process was not started as a prefork worker")

// Identity describes a worker as assigned by its supervisor.
type Identity struct {
	RunID string
	Index int
	Pid   int
}

// Config controls a worker process.
type Config struct {
	Handlers          []server.HandlerRegistration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	// Middleware, when set, wraps the mux built from Handlers.
	Middleware func(http.Handler) http.Handler
	Logger     *zap.Logger
}

// Requested reports whether the current process was launched as a worker.
func Requested() bool {
	return os.Getenv(EnvWorker) == "1"
}

// Env returns the environment entries that mark a process as worker index of
// run runID.
func Env(runID string, index int) []string {
	return []string{
		EnvWorker + "=1",
		EnvListenFD + "=" + strconv.Itoa(ListenFD),
		EnvReadyFD + "=" + strconv.Itoa(ReadyFD),
		EnvRunID + "=" + runID,
		EnvIndex + "=" + strconv.Itoa(index),
	}
}

// CurrentIdentity reads the identity assigned by the supervisor.
func CurrentIdentity() (Identity, error) {
	if !Requested() {
		return Identity{}, ErrNotWorker
	}
	id := Identity{RunID: os.Getenv(EnvRunID), Pid: os.Getpid()}
	if value := os.Getenv(EnvIndex); value != "" {
		index, err := strconv.Atoi(value)
		if err != nil {
			return Identity{}, fmt.Errorf("parse %s: %w", EnvIndex, err)
		}
		id.Index = index
	}
	return id, nil
}

// Run serves cfg.Handlers on the inherited listener until ctx is cancelled or
// the supervisor disappears.
func Run(ctx context.Context, cfg Config) error {
	id, err := CurrentIdentity()
	if err != nil {
		return err
	}
	log := logging.OrNop(cfg.Logger).With(
		zap.String("run_id", id.RunID),
		zap.Int("worker", id.Index),
		zap.Int("pid", id.Pid),
	)

	ln, err := inheritListener()
	if err != nil {
		return err
	}
	defer ln.Close()

	ready, err := inheritFile(EnvReadyFD, "prefork-ready")
	if err != nil {
		return err
	}

	var handler http.Handler = server.NewMux(cfg.Handlers)
	if cfg.Middleware != nil {
		handler = cfg.Middleware(handler)
	}
	srv, err := newHTTPServer(httpConfig{
		Listener:          ln,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchParent(runCtx, cancel, os.Getppid(), log)

	err = srv.Run(runCtx, func() {
		log.Info("worker serving", zap.String("addr", srv.Addr()))
		if ready == nil {
			return
		}
		if _, werr := ready.WriteString(ReadyMessage); werr != nil {
			log.Warn("notify supervisor", zap.Error(werr))
		}
		_ = ready.Close()
	})
	if err != nil {
		log.Error("worker stopped with error", zap.Error(err))
		return err
	}
	log.Info("worker stopped")
	return nil
}

// Main runs the worker until SIGINT or SIGTERM and returns a process exit
// code.
func Main(cfg Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "prefork worker: %v\n", err)
		return 1
	}
	return 0
}

func inheritListener() (net.Listener, error) {
	f, err := inheritFile(EnvListenFD, "prefork-listener")
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%s is not set", EnvListenFD)
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("adopt inherited listener: %w", err)
	}
	return ln, nil
}

// inheritFile wraps the descriptor named by env. An unset variable yields a
// nil file.
func inheritFile(env, name string) (*os.File, error) {
	value := os.Getenv(env)
	if value == "" {
		return nil, nil
	}
	fd, err := strconv.Atoi(value)
	if err != nil || fd < 3 {
		return nil, fmt.Errorf("invalid %s %q", env, value)
	}
	f := os.NewFile(uintptr(fd), name)
	if f == nil {
		return nil, fmt.Errorf("descriptor %d from %s is not open", fd, env)
	}
	return f, nil
}

// watchParent cancels the worker once it has been re-parented, which happens
// when the supervisor exits without stopping its workers.
func watchParent(ctx context.Context, cancel context.CancelFunc, ppid int, log *zap.Logger) {
	ticker := time.NewTicker(parentPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if os.Getppid() != ppid {
				log.Warn("supervisor exited, shutting down", zap.Int("ppid", ppid))
				cancel()
				return
			}
		}
	}
}
