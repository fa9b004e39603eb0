//go:build !windows

package procscan

import (
	"syscall"
)

// Terminate sends SIGTERM to the process
func Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// TerminateGroup sends SIGTERM to the whole process group. Only valid for
// group leaders, e.g. children launched in their own session.
func TerminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// Kill sends SIGKILL to the process
func Kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
