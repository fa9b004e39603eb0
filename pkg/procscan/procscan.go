package procscan

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deploy-tools/depman-go/pkg/errors"
	"github.com/deploy-tools/depman-go/pkg/logging"
	"github.com/deploy-tools/depman-go/pkg/processstate"
)

// ProcessEntry is one row of the running-process table
type ProcessEntry struct {
	PID     int
	Command string
}

// FindPIDs returns the pids of all running processes whose command line
// contains pattern. The calling process itself is never included.
func FindPIDs(pattern string) ([]int, error) {
	if pattern == "" {
		return nil, errors.NewValidationError("process pattern cannot be empty", nil)
	}

	entries, err := listProcesses()
	if err != nil {
		return nil, errors.NewProcessError("failed to list running processes", err)
	}

	selfPID := os.Getpid()

	var pids []int
	for _, entry := range entries {
		if entry.PID == selfPID {
			continue
		}
		if strings.Contains(entry.Command, pattern) {
			pids = append(pids, entry.PID)
		}
	}
	return pids, nil
}

// TerminateAndWait sends a graceful termination signal to pid and waits up
// to grace for the process to exit. It returns true if the process is gone.
func TerminateAndWait(pid int, grace time.Duration, logger logging.Logger) bool {
	if err := Terminate(pid); err != nil {
		logger.Debugf("Termination signal failed, pid: %d, error: %v", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		running, _ := processstate.IsProcessRunning(pid)
		if !running {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	running, _ := processstate.IsProcessRunning(pid)
	return !running
}

// KillByPattern terminates every process matching pattern: graceful signal
// first, forceful kill for the survivors after grace expires.
func KillByPattern(pattern string, grace time.Duration, logger logging.Logger) error {
	pids, err := FindPIDs(pattern)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		logger.Debugf("No processes match pattern, pattern: %s", pattern)
		return nil
	}

	collection := errors.NewErrorCollection()
	for _, pid := range pids {
		logger.Infof("Terminating process by pattern, pattern: %s, pid: %d", pattern, pid)
		if TerminateAndWait(pid, grace, logger) {
			logger.Infof("Process terminated gracefully, pid: %d", pid)
			continue
		}

		logger.Warnf("Process did not exit within %v, force killing, pid: %d", grace, pid)
		if err := Kill(pid); err != nil {
			collection.Add(errors.NewStopError(
				fmt.Sprintf("failed to force kill process %d", pid), err).WithContext("pattern", pattern))
			continue
		}
		logger.Infof("Process force killed, pid: %d", pid)
	}
	return collection.ToError()
}
