//go:build windows

package procscan

import (
	"os"
)

// Terminate requests process termination. Windows has no SIGTERM
// equivalent for non-console processes, so this is already forceful.
func Terminate(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}

// TerminateGroup terminates the process; group semantics are a Unix concept
func TerminateGroup(pid int) error {
	return Terminate(pid)
}

// Kill forcefully terminates the process
func Kill(pid int) error {
	return Terminate(pid)
}
