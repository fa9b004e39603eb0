package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/deploy-tools/depman-go/pkg/errors"
	"github.com/deploy-tools/depman-go/pkg/logging"
	"github.com/deploy-tools/depman-go/pkg/processstate"
)

// RunLock serializes deployments: overlapping runs would race each other
// on ports and pid records, so only one supervisor may hold the lock file
// at a time. The lock records the holder's pid so a lock left behind by a
// crashed run can be reclaimed.
type RunLock struct {
	path   string
	held   bool
	logger logging.Logger
}

func NewRunLock(path string, logger logging.Logger) *RunLock {
	return &RunLock{
		path:   path,
		logger: logger,
	}
}

// Acquire takes the lock or fails with a conflict error naming the holder.
// A stale lock, one whose recorded pid is no longer alive, is reclaimed
// automatically.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errors.NewIOError("failed to create lock directory", err).WithContext("path", l.path)
	}

	if err := l.tryCreate(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return errors.NewIOError("failed to create lock file", err).WithContext("path", l.path)
	}

	holder := l.holderPID()
	if holder > 0 {
		if running, _ := processstate.IsProcessRunning(holder); running {
			return errors.NewConflictError("another deployment is already in progress", nil).
				WithContext("lock_file", l.path).
				WithContext("holder_pid", holder)
		}
	}

	// Holder is gone or the file is corrupt; reclaim it
	l.logger.Warnf("Reclaiming stale lock, path: %s, stale_pid: %d", l.path, holder)
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove stale lock file", err).WithContext("path", l.path)
	}

	if err := l.tryCreate(); err != nil {
		if os.IsExist(err) {
			return errors.NewConflictError("another deployment grabbed the lock first", nil).
				WithContext("lock_file", l.path)
		}
		return errors.NewIOError("failed to create lock file", err).WithContext("path", l.path)
	}
	return nil
}

// Release removes the lock file. Releasing a lock that was never acquired
// is a no-op.
func (l *RunLock) Release() {
	if !l.held {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Warnf("Failed to remove lock file, path: %s, error: %v", l.path, err)
		return
	}
	l.held = false
	l.logger.Debugf("Run lock released, path: %s", l.path)
}

func (l *RunLock) tryCreate() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		os.Remove(l.path)
		return err
	}

	l.held = true
	l.logger.Debugf("Run lock acquired, path: %s", l.path)
	return nil
}

func (l *RunLock) holderPID() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
