package supervisor

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	defaultStartTimeout  = 30 * time.Second
	defaultReadyInterval = 500 * time.Millisecond
	defaultJoinTimeout   = 5 * time.Second
	defaultChildTimeout  = 5 * time.Second
	defaultMaxRestarts   = 100
)

type options struct {
	logger           *zap.Logger
	workers          int
	cpuCount         func() int
	startTimeout     time.Duration
	readyInterval    time.Duration
	joinTimeout      time.Duration
	childTimeout     time.Duration
	killAfterTimeout bool
	maxRestarts      int
	workerPath       string
	workerArgs       []string
	workerEnv        []string
	stdout           io.Writer
	stderr           io.Writer
}

func defaultOptions() options {
	return options{
		cpuCount:         CPUCount,
		startTimeout:     defaultStartTimeout,
		readyInterval:    defaultReadyInterval,
		joinTimeout:      defaultJoinTimeout,
		childTimeout:     defaultChildTimeout,
		killAfterTimeout: true,
		maxRestarts:      defaultMaxRestarts,
		stdout:           os.Stdout,
		stderr:           os.Stderr,
	}
}

// Option customises a Supervisor.
type Option func(*options)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWorkers fixes the worker count. Values below one restore CPU-based
// sizing.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithCPUCount overrides how the host CPU count is discovered.
func WithCPUCount(fn func() int) Option {
	return func(o *options) {
		if fn != nil {
			o.cpuCount = fn
		}
	}
}

// WithStartTimeout bounds how long Start waits for readiness. Zero waits
// until the caller's context ends.
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) {
		o.startTimeout = d
	}
}

// WithReadyInterval sets the interval between port probes during Start.
func WithReadyInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readyInterval = d
		}
	}
}

// WithJoinTimeout bounds how long Stop waits for the control goroutine.
func WithJoinTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.joinTimeout = d
		}
	}
}

// WithChildTimeout bounds how long Stop waits for each descendant to exit
// after SIGTERM. Descendants are waited on concurrently.
func WithChildTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.childTimeout = d
		}
	}
}

// WithKillAfterTimeout controls whether descendants that outlive the child
// timeout receive SIGKILL.
func WithKillAfterTimeout(kill bool) Option {
	return func(o *options) {
		o.killAfterTimeout = kill
	}
}

// WithMaxRestarts caps how many crashed workers are replaced during one
// serving cycle.
func WithMaxRestarts(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRestarts = n
		}
	}
}

// WithWorkerCommand sets the executable and arguments used to launch workers.
// By default the current executable is re-run without arguments.
func WithWorkerCommand(path string, args ...string) Option {
	return func(o *options) {
		o.workerPath = path
		o.workerArgs = append([]string(nil), args...)
	}
}

// WithWorkerEnv adds KEY=VALUE entries to every worker's environment.
func WithWorkerEnv(env ...string) Option {
	return func(o *options) {
		o.workerEnv = append(o.workerEnv, env...)
	}
}

// WithWorkerOutput redirects worker stdout and stderr. Nil writers discard.
func WithWorkerOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}
