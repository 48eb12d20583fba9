//go:build !unix

package procutil

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

func signalTerm(ctx context.Context, p *process.Process) error {
	return p.TerminateWithContext(ctx)
}

func signalKill(ctx context.Context, p *process.Process) error {
	return p.KillWithContext(ctx)
}
