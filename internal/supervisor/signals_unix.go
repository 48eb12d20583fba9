//go:build unix

package supervisor

import "syscall"

func init() {
	ShutdownSignals = append(ShutdownSignals, syscall.SIGTERM)
}
