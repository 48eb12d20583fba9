package supervisor

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// WorkerCount sizes the worker pool for a host with cpus logical CPUs, leaving
// headroom for the supervisor and the operating system on larger hosts.
func WorkerCount(cpus int) int {
	switch {
	case cpus <= 2:
		return 1
	case cpus <= 8:
		return cpus - 1
	case cpus <= 16:
		return cpus - 2
	default:
		return cpus - 4
	}
}

// CPUCount returns the number of logical CPUs, falling back to the Go
// runtime's view when the host cannot be inspected.
func CPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}
