package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Paintersrp/prefork/internal/logging"
	"github.com/Paintersrp/prefork/internal/metrics"
	"github.com/Paintersrp/prefork/internal/procutil"
	"github.com/Paintersrp/prefork/internal/server"
)

var (
	// ErrStartTimeout is returned by Start when readiness is not confirmed
	// within the start timeout.
	ErrStartTimeout = errors.New("server did not become ready in time")
	// ErrStopped reports that the serving cycle ended before it became ready.
	ErrStopped = errors.New("server stopped")
	// ErrStopping is returned by Start while a previous cycle is shutting down.
	ErrStopping = errors.New("server is stopping")
	// ErrWorkerExited reports a worker that exited before signalling readiness.
	ErrWorkerExited = errors.New("worker exited before becoming ready")
	// ErrTooManyRestarts reports that crashed workers exhausted the restart limit.
	ErrTooManyRestarts = errors.New("too many worker restarts")
	// ErrChildrenRemain is returned by Stop when descendants outlived the grace
	// period.
	ErrChildrenRemain = errors.New("child processes still running")
)

// Supervisor is a server.Handle that serves from a pool of worker processes.
type Supervisor struct {
	cfg  server.Config
	opts options
	log  *zap.Logger

	mu    sync.Mutex
	state State
	cur   *cycle

	stopMu  sync.Mutex
	serving atomic.Bool
}

var _ server.Handle = (*Supervisor)(nil)

// cycle is one Start..Stop run. A fresh cycle is created on every Start so a
// stopped supervisor can be started again.
type cycle struct {
	runID  string
	ctx    context.Context
	cancel context.CancelFunc

	readyOnce sync.Once
	ready     chan struct{}
	readyErr  error

	done chan struct{}

	// stopped closes once the stop path has finished. failure holds the error
	// that ended the cycle without a requested stop.
	stopped chan struct{}
	failure error
}

func newCycle() *cycle {
	ctx, cancel := context.WithCancel(context.Background())
	return &cycle{
		runID:   uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// resolve records the outcome of startup. Only the first call has effect.
func (c *cycle) resolve(err error) {
	c.readyOnce.Do(func() {
		c.readyErr = err
		close(c.ready)
	})
}

// New validates cfg and returns a stopped Supervisor.
func New(cfg server.Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.workerPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker executable: %w", err)
		}
		o.workerPath = exe
	}
	log := logging.OrNop(o.logger).With(
		zap.String("address", cfg.Address),
		zap.Uint16("port", cfg.Port),
	)
	return &Supervisor{cfg: cfg.Clone(), opts: o, log: log}, nil
}

func (s *Supervisor) Address() string { return s.cfg.Address }

func (s *Supervisor) Port() uint16 { return s.cfg.Port }

func (s *Supervisor) Handlers() []server.HandlerRegistration {
	return s.cfg.Clone().Handlers
}

// Serving reports whether the most recent Start confirmed readiness and no stop
// has begun since.
func (s *Supervisor) Serving() bool {
	return s.serving.Load()
}

// State returns the current lifecycle phase.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the worker pool and blocks until every worker reported ready
// and the port accepts connections. On failure everything started so far is
// torn down before the error is returned.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStarting, StateServing:
		state := s.state
		s.mu.Unlock()
		s.log.Info("http server already running", zap.Stringer("state", state))
		return nil
	case StateStopping:
		s.mu.Unlock()
		return ErrStopping
	}
	c := newCycle()
	s.cur = c
	s.state = StateStarting
	s.mu.Unlock()

	log := s.log.With(zap.String("run_id", c.runID))
	log.Info("starting http server")
	began := time.Now()
	go s.control(c, log)

	err := s.awaitReady(ctx, c)
	if err == nil {
		s.mu.Lock()
		if s.cur == c && s.state == StateStarting {
			s.state = StateServing
			s.serving.Store(true)
		} else {
			err = ErrStopped
		}
		s.mu.Unlock()
	}
	if err == nil {
		elapsed := time.Since(began)
		metrics.SetServing(true)
		metrics.ObserveStartLatency(elapsed)
		log.Info("http server serving", zap.Duration("elapsed", elapsed))
		return nil
	}

	if stopErr := s.stopCycle(context.Background(), c); stopErr != nil {
		log.Warn("cleanup after failed start", zap.Error(stopErr))
	}
	return fmt.Errorf("start http server: %w", err)
}

func (s *Supervisor) awaitReady(ctx context.Context, c *cycle) error {
	var timeout <-chan time.Time
	if s.opts.startTimeout > 0 {
		timer := time.NewTimer(s.opts.startTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-c.ready:
		return c.readyErr
	case <-timeout:
		return fmt.Errorf("%w after %s", ErrStartTimeout, s.opts.startTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the current cycle and terminates every descendant process. The
// ctx deadline caps both the control join and the per-process grace period.
// Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cur
	s.mu.Unlock()
	if c == nil {
		s.serving.Store(false)
		return nil
	}
	return s.stopCycle(ctx, c)
}

// Wait blocks until the running cycle has stopped or ctx ends. It returns the
// failure that ended the cycle, or nil after a requested stop. Waiting on a
// stopped supervisor returns immediately.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	c := s.cur
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.stopped:
		return c.failure
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) stopCycle(ctx context.Context, c *cycle) error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	if s.cur != c {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.serving.Store(false)
	s.mu.Unlock()

	log := s.log.With(zap.String("run_id", c.runID))
	log.Info("stopping http server")
	c.cancel()

	if !waitClosed(ctx, c.done, s.opts.joinTimeout) {
		log.Warn("control routine did not exit in time", zap.Duration("timeout", s.opts.joinTimeout))
	}
	err := s.reap(ctx, log)

	s.mu.Lock()
	s.cur = nil
	s.state = StateStopped
	s.mu.Unlock()
	metrics.SetServing(false)
	metrics.ResetWorkers()

	if err != nil {
		log.Error("http server stopped with leftovers", zap.Error(err))
	} else {
		log.Info("http server stopped")
	}
	close(c.stopped)
	return err
}

// reap terminates every descendant of the current process.
func (s *Supervisor) reap(ctx context.Context, log *zap.Logger) error {
	procs, err := procutil.Descendants(ctx, os.Getpid())
	if err != nil {
		return fmt.Errorf("enumerate child processes: %w", err)
	}
	if len(procs) == 0 {
		return nil
	}
	log.Debug("terminating child processes", zap.Int32s("pids", procutil.Pids(procs)))

	results := procutil.TerminateAll(ctx, procs, s.opts.childTimeout, s.opts.killAfterTimeout)
	var remaining []int32
	for _, res := range results {
		metrics.ObserveChildTermination(res.Outcome)
		fields := []zap.Field{zap.Int32("pid", res.Pid), zap.String("result", res.Outcome)}
		if res.Err != nil {
			fields = append(fields, zap.Error(res.Err))
		}
		switch {
		case res.Survived():
			remaining = append(remaining, res.Pid)
			log.Error("child process did not exit", fields...)
		case res.Outcome == procutil.OutcomeKilled:
			log.Warn("child process killed after grace period", fields...)
		default:
			log.Debug("child process exited", fields...)
		}
	}
	if len(remaining) > 0 {
		return fmt.Errorf("%w: pids %v", ErrChildrenRemain, remaining)
	}
	return nil
}

// waitClosed waits for ch to close, at most timeout and never past ctx.
func waitClosed(ctx context.Context, ch <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
