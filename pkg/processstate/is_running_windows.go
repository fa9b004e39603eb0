//go:build windows

package processstate

import (
	"fmt"
	"syscall"
)

const (
	// Exit code Windows reports for a process that has not finished
	stillActive = 259

	// Narrowest access right that still allows an exit-code query
	processQueryLimitedInformation = 0x1000
)

// IsProcessRunning reports whether a process with the given pid exists. A
// handle that cannot be opened means there is no such process, or one this
// user cannot even query; supervision treats both as not running.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid pid: %d", pid)
	}

	handle, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		return false, nil
	}
	defer syscall.CloseHandle(handle)

	// A finished process keeps a queryable handle until the last reference
	// drops, so the exit code is what distinguishes live from dead
	var exitCode uint32
	if err := syscall.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false, err
	}
	return exitCode == stillActive, nil
}
