package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"go.uber.org/zap"

	"github.com/Paintersrp/prefork/internal/metrics"
	"github.com/Paintersrp/prefork/internal/probe"
	"github.com/Paintersrp/prefork/internal/procutil"
	"github.com/Paintersrp/prefork/internal/worker"
)

// control owns the listener and the worker pool for one cycle. It runs until
// the cycle is cancelled or the pool fails; an unexpected end triggers a stop.
func (s *Supervisor) control(c *cycle, log *zap.Logger) {
	// Pdeathsig is delivered when the spawning thread exits, so workers are
	// always started from one locked thread that is returned to the runtime.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	err := s.serve(c, log)
	if c.ctx.Err() != nil {
		c.resolve(ErrStopped)
		log.Debug("control routine finished")
		return
	}
	if err != nil {
		log.Error("http server failed", zap.Error(err))
		c.failure = err
		c.resolve(err)
	} else {
		log.Info("all workers exited")
		c.resolve(ErrStopped)
	}
	go func() {
		if err := s.stopCycle(context.Background(), c); err != nil {
			log.Warn("stop after failure", zap.Error(err))
		}
	}()
}

func (s *Supervisor) serve(c *cycle, log *zap.Logger) error {
	addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(int(s.cfg.Port)))
	var lc net.ListenConfig
	ln, err := lc.Listen(c.ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("bind listener %s: %w", addr, err)
	}
	defer ln.Close()

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("bind listener %s: unexpected listener type %T", addr, ln)
	}
	lnFile, err := tcpLn.File()
	if err != nil {
		return fmt.Errorf("export listener %s: %w", addr, err)
	}
	defer lnFile.Close()

	if err := c.ctx.Err(); err != nil {
		return err
	}

	n := s.opts.workers
	if n < 1 {
		n = WorkerCount(s.opts.cpuCount())
	}
	pool := &workerPool{
		opts:     &s.opts,
		runID:    c.runID,
		ctx:      c.ctx,
		listener: lnFile,
		log:      log,
		workers:  make(map[int]*workerProc, n),
		exits:    make(chan workerExit),
	}
	for i := 0; i < n; i++ {
		if err := pool.spawn(i); err != nil {
			return err
		}
	}
	log.Info("workers launched", zap.Int("workers", n), zap.String("listen", addr))

	if err := pool.awaitReady(c.ctx); err != nil {
		return err
	}
	target := probe.DialAddress(s.cfg.Address, int(s.cfg.Port))
	if err := probe.WaitReady(c.ctx, probe.NewTCP(target), s.opts.readyInterval); err != nil {
		return fmt.Errorf("wait for %s: %w", target, err)
	}
	c.resolve(nil)

	return pool.supervise(c.ctx)
}

type workerProc struct {
	index int
	cmd   *exec.Cmd
	ready chan struct{}
}

func (w *workerProc) pid() int {
	return w.cmd.Process.Pid
}

type workerExit struct {
	proc *workerProc
	err  error
}

type workerPool struct {
	opts     *options
	runID    string
	ctx      context.Context
	listener *os.File
	log      *zap.Logger

	workers  map[int]*workerProc
	exits    chan workerExit
	restarts int
}

// spawn launches worker index with the shared listener on fd 3 and the write
// end of its readiness pipe on fd 4.
func (p *workerPool) spawn(index int) error {
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create readiness pipe: %w", err)
	}

	cmd := exec.Command(p.opts.workerPath, p.opts.workerArgs...)
	cmd.Env = append(os.Environ(), p.opts.workerEnv...)
	cmd.Env = append(cmd.Env, worker.Env(p.runID, index)...)
	cmd.ExtraFiles = []*os.File{p.listener, w}
	cmd.Stdout = p.opts.stdout
	cmd.Stderr = p.opts.stderr
	cmd.SysProcAttr = procutil.SysProcAttr()

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return fmt.Errorf("start worker %d: %w", index, err)
	}
	w.Close()

	proc := &workerProc{index: index, cmd: cmd, ready: make(chan struct{})}
	p.workers[index] = proc
	metrics.AddWorkers(1)
	p.log.Debug("worker started", zap.Int("worker", index), zap.Int("pid", proc.pid()))

	go watchReady(r, proc.ready)
	go p.wait(proc)
	return nil
}

func watchReady(r *os.File, ready chan<- struct{}) {
	defer r.Close()
	buf := make([]byte, len(worker.ReadyMessage))
	if _, err := io.ReadFull(r, buf); err != nil {
		return
	}
	if string(buf) == worker.ReadyMessage {
		close(ready)
	}
}

func (p *workerPool) wait(proc *workerProc) {
	err := proc.cmd.Wait()
	select {
	case p.exits <- workerExit{proc: proc, err: err}:
	case <-p.ctx.Done():
	}
}

func (p *workerPool) forget(ev workerExit) {
	if p.workers[ev.proc.index] == ev.proc {
		delete(p.workers, ev.proc.index)
	}
	metrics.AddWorkers(-1)
}

// awaitReady blocks until every worker has written its readiness message. Any
// exit in the meantime fails startup.
func (p *workerPool) awaitReady(ctx context.Context) error {
	for _, proc := range p.workers {
		select {
		case <-proc.ready:
		case ev := <-p.exits:
			p.forget(ev)
			return fmt.Errorf("%w: worker %d (pid %d): %s", ErrWorkerExited, ev.proc.index, ev.proc.pid(), describeExit(ev.err))
		case <-ctx.Done():
			return ErrStopped
		}
	}
	p.log.Debug("all workers ready", zap.Int("workers", len(p.workers)))
	return nil
}

// supervise replaces workers that crash until ctx ends, the restart budget is
// spent or every worker has exited cleanly.
func (p *workerPool) supervise(ctx context.Context) error {
	for len(p.workers) > 0 {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.exits:
			p.forget(ev)
			if ctx.Err() != nil {
				return nil
			}
			fields := []zap.Field{
				zap.Int("worker", ev.proc.index),
				zap.Int("pid", ev.proc.pid()),
				zap.String("exit", describeExit(ev.err)),
			}
			if ev.err == nil {
				p.log.Info("worker exited", fields...)
				continue
			}
			if p.restarts >= p.opts.maxRestarts {
				return fmt.Errorf("%w: limit %d reached, worker %d %s", ErrTooManyRestarts, p.opts.maxRestarts, ev.proc.index, describeExit(ev.err))
			}
			p.restarts++
			metrics.IncrementWorkerRestart()
			p.log.Warn("worker exited unexpectedly, restarting", append(fields, zap.Int("restarts", p.restarts))...)
			if err := p.spawn(ev.proc.index); err != nil {
				return err
			}
		}
	}
	return nil
}

func describeExit(err error) string {
	if err == nil {
		return "exit status 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ProcessState.String()
	}
	return err.Error()
}
