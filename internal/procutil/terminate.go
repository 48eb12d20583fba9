package procutil

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Outcomes reported in Result.Outcome.
const (
	OutcomeTerminated = "terminated"
	OutcomeKilled     = "killed"
	OutcomeTimeout    = "timeout"
	OutcomeGone       = "gone"
)

const pollInterval = 25 * time.Millisecond

// Result describes how a single process left during TerminateAll.
type Result struct {
	Pid     int32
	Outcome string
	Err     error
}

// Survived reports whether the process was still running when TerminateAll
// gave up on it.
func (r Result) Survived() bool {
	return r.Outcome == OutcomeTimeout
}

// TerminateAll asks every process to exit and waits for all of them
// concurrently. Processes still running after timeout are killed when kill is
// set; otherwise they are reported with OutcomeTimeout. Results follow the
// order of procs.
func TerminateAll(ctx context.Context, procs []*process.Process, timeout time.Duration, kill bool) []Result {
	results := make([]Result, len(procs))
	var wg sync.WaitGroup
	for i, p := range procs {
		wg.Add(1)
		go func(i int, p *process.Process) {
			defer wg.Done()
			results[i] = terminate(ctx, p, timeout, kill)
		}(i, p)
	}
	wg.Wait()
	return results
}

func terminate(ctx context.Context, p *process.Process, timeout time.Duration, kill bool) Result {
	res := Result{Pid: p.Pid}
	if exited(ctx, p) {
		res.Outcome = OutcomeGone
		return res
	}

	if err := signalTerm(ctx, p); err != nil {
		if exited(ctx, p) {
			res.Outcome = OutcomeGone
			return res
		}
		res.Err = err
	}
	if waitExit(ctx, p, timeout) {
		res.Outcome = OutcomeTerminated
		return res
	}
	if !kill {
		res.Outcome = OutcomeTimeout
		return res
	}

	if err := signalKill(ctx, p); err != nil && !exited(ctx, p) {
		res.Err = err
		res.Outcome = OutcomeTimeout
		return res
	}
	if waitExit(ctx, p, timeout) {
		res.Outcome = OutcomeKilled
		return res
	}
	res.Outcome = OutcomeTimeout
	return res
}

// waitExit polls until p exits, timeout elapses or ctx ends.
func waitExit(ctx context.Context, p *process.Process, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if exited(ctx, p) {
			return true
		}
		select {
		case <-ctx.Done():
			return exited(context.Background(), p)
		case <-timer.C:
			return exited(ctx, p)
		case <-ticker.C:
		}
	}
}
