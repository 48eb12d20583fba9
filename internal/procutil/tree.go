package procutil

import (
	"context"
	"fmt"
	"slices"

	"github.com/shirou/gopsutil/v3/process"
)

// Descendants returns every live descendant of pid, parents before children.
// Zombies and processes that vanish during the walk are skipped. A process
// without children yields an empty slice.
func Descendants(ctx context.Context, pid int) ([]*process.Process, error) {
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("inspect process %d: %w", pid, err)
	}
	index, err := childIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("list children of %d: %w", pid, err)
	}

	var (
		out   []*process.Process
		seen  = map[int32]struct{}{root.Pid: {}}
		queue = []int32{root.Pid}
	)
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range index[parent] {
			if _, dup := seen[child.Pid]; dup {
				continue
			}
			seen[child.Pid] = struct{}{}
			if exited(ctx, child) {
				continue
			}
			out = append(out, child)
			queue = append(queue, child.Pid)
		}
	}
	return out, nil
}

// childIndex maps each parent pid to its children from one pass over the
// process table.
func childIndex(ctx context.Context) (map[int32][]*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[int32][]*process.Process)
	for _, p := range procs {
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			continue
		}
		index[ppid] = append(index[ppid], p)
	}
	return index, nil
}

// Pids extracts the process ids of procs.
func Pids(procs []*process.Process) []int32 {
	pids := make([]int32, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.Pid)
	}
	return pids
}

// exited reports whether p is gone or only lingers as a zombie.
func exited(ctx context.Context, p *process.Process) bool {
	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return true
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		return false
	}
	return slices.Contains(status, process.Zombie)
}
