package registry

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

// Registry persists the mapping from logical service name to OS process id.
// Each service gets one plain-text record file containing the decimal pid;
// absence of the file means "not running". Records are weak references: the
// registry never owns the process, it only remembers where to find it.
type Registry struct {
	dir    string
	logger logging.Logger
}

// NewRegistry creates a registry rooted at dir. The directory is created on
// first write, not here.
func NewRegistry(dir string, logger logging.Logger) *Registry {
	return &Registry{
		dir:    dir,
		logger: logger,
	}
}

// RecordPath returns the record file path for the given service
func (r *Registry) RecordPath(service string) string {
	return filepath.Join(r.dir, service+".pid")
}

// Record persists the pid for the given service, overwriting any previous
// record. The write is atomic: a temp file is renamed over the record, so a
// reader never observes a partial pid.
func (r *Registry) Record(service string, pid int) error {
	if service == "" {
		return errors.NewValidationError("service name cannot be empty", nil)
	}
	if pid <= 0 {
		return errors.NewValidationError("invalid pid", nil).WithContext("service", service).WithContext("pid", pid)
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return errors.NewIOError("failed to create registry directory", err).WithContext("directory", r.dir)
	}

	recordPath := r.RecordPath(service)
	tmpPath := recordPath + ".tmp"

	content := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		return errors.NewIOError("failed to write record file", err).WithContext("record_file", recordPath)
	}
	if err := os.Rename(tmpPath, recordPath); err != nil {
		os.Remove(tmpPath)
		return errors.NewIOError("failed to replace record file", err).WithContext("record_file", recordPath)
	}

	r.logger.Infof("Record written, service: %s, pid: %d, path: %s", service, pid, recordPath)
	return nil
}

// Lookup returns the recorded pid for the given service. A missing,
// unreadable, or corrupt record reports absence, never an error.
func (r *Registry) Lookup(service string) (int, bool) {
	content, err := os.ReadFile(r.RecordPath(service))
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warnf("Record unreadable, treating as absent, service: %s, error: %v", service, err)
		}
		return 0, false
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		r.logger.Warnf("Record corrupt, treating as absent, service: %s, content: %q", service, pidStr)
		return 0, false
	}

	return pid, true
}

// LookupLive returns the recorded pid only if the OS confirms the process
// is still running. Stale records are cleared as a side effect.
func (r *Registry) LookupLive(service string) (int, bool) {
	pid, ok := r.Lookup(service)
	if !ok {
		return 0, false
	}

	running, _ := processstate.IsProcessRunning(pid)
	if !running {
		r.logger.Infof("Record is stale, clearing, service: %s, pid: %d", service, pid)
		if err := r.Clear(service); err != nil {
			r.logger.Warnf("Failed to clear stale record, service: %s, error: %v", service, err)
		}
		return 0, false
	}

	return pid, true
}

// Clear removes the record for the given service. A missing record is not
// an error.
func (r *Registry) Clear(service string) error {
	if err := os.Remove(r.RecordPath(service)); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove record file", err).WithContext("service", service)
	}
	r.logger.Debugf("Record cleared, service: %s", service)
	return nil
}
