//go:build !unix

package procutil

import "syscall"

// SysProcAttr returns nil; process groups are not configured on this platform.
func SysProcAttr() *syscall.SysProcAttr {
	return nil
}
