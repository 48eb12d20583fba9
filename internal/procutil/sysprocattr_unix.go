//go:build unix && !linux

package procutil

import "syscall"

// SysProcAttr places a worker in its own process group.
func SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
