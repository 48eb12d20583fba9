//go:build unix

package procutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// SignalGroup delivers sig to the process group led by pid. A group that no
// longer exists is not an error.
func SignalGroup(pid int, sig unix.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", pid, err)
	}
	return nil
}

func signalTerm(ctx context.Context, p *process.Process) error {
	if leadsGroup(int(p.Pid)) {
		return SignalGroup(int(p.Pid), unix.SIGTERM)
	}
	return p.TerminateWithContext(ctx)
}

func signalKill(ctx context.Context, p *process.Process) error {
	if leadsGroup(int(p.Pid)) {
		return SignalGroup(int(p.Pid), unix.SIGKILL)
	}
	return p.KillWithContext(ctx)
}

// leadsGroup reports whether pid is the leader of its own process group, in
// which case signalling the group also reaches re-parented daemons it spawned.
func leadsGroup(pid int) bool {
	pgid, err := unix.Getpgid(pid)
	return err == nil && pgid == pid
}
