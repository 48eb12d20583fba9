//go:build linux

package procutil

import "syscall"

// SysProcAttr places a worker in its own process group and asks the kernel to
// send it SIGTERM if the supervisor dies first.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
