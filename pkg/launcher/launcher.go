package launcher

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/deploy-tools/depman-go/pkg/errors"
	"github.com/deploy-tools/depman-go/pkg/logging"
	"github.com/deploy-tools/depman-go/pkg/processstate"
	"github.com/deploy-tools/depman-go/pkg/procscan"
	"github.com/deploy-tools/depman-go/pkg/registry"
)

const (
	// DefaultSettleDelay is how long a freshly launched process gets to
	// crash before it is declared alive
	DefaultSettleDelay = 2 * time.Second

	// LogTailLines is how much of the service log is attached to launch
	// failure diagnostics
	LogTailLines = 20
)

// LaunchConfig describes how to start one service
type LaunchConfig struct {
	Service          string        `yaml:"service"`
	Command          string        `yaml:"command"`
	Args             []string      `yaml:"args,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	LogFile          string        `yaml:"log_file"`
	ProcessPattern   string        `yaml:"process_pattern,omitempty"`
	SettleDelay      time.Duration `yaml:"settle_delay,omitempty"`
}

// Record is the non-owning reference to a launched service process. The OS
// process group is the sole owner; the record exists for observation and
// signaling only.
type Record struct {
	Service   string
	PID       int
	Adopted   bool // pid was resolved by pattern match after the original forked away
	StartedAt time.Time
}

// Launcher starts services as fully detached background processes
type Launcher struct {
	registry *registry.Registry
	logger   logging.Logger
}

func NewLauncher(reg *registry.Registry, logger logging.Logger) *Launcher {
	return &Launcher{
		registry: reg,
		logger:   logger,
	}
}

// Start launches the service described by config, detached from the current
// session, with output appended to the service log. It confirms the process
// stayed alive through the settle interval, adopting a pattern-matched pid
// if the launched process re-execed, then persists the resolved pid.
// Launch failures are terminal here: retry policy belongs to the caller.
func (l *Launcher) Start(ctx context.Context, config LaunchConfig) (*Record, error) {
	if err := validateLaunchConfig(config); err != nil {
		return nil, err
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = DefaultSettleDelay
	}

	l.logger.Infof("Launching service, service: %s, command: %s, args: %v, detach: %s",
		config.Service, config.Command, config.Args, detachStrategy())

	logFile, err := openLogSink(config.LogFile)
	if err != nil {
		return nil, errors.NewIOError("failed to open service log sink", err).
			WithContext("service", config.Service).WithContext("log_file", config.LogFile)
	}
	defer logFile.Close()

	// Empty input source so the child never blocks on an inherited stdin
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, errors.NewIOError("failed to open null input", err).WithContext("service", config.Service)
	}
	defer devNull.Close()

	// Deliberately not exec.CommandContext: cancelling the orchestrator
	// must never terminate an already-started service
	cmd := exec.Command(config.Command, config.Args...)
	cmd.Dir = config.WorkingDirectory
	cmd.Stdin = devNull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if len(config.Environment) > 0 {
		cmd.Env = append(os.Environ(), config.Environment...)
	}

	// Platform-specific detachment is handled in detach_unix.go / detach_windows.go
	configureDetachment(cmd)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewLaunchError("failed to start service process", err).
			WithContext("service", config.Service).WithContext("command", config.Command)
	}

	pid := cmd.Process.Pid
	l.logger.Infof("Service process started, service: %s, pid: %d", config.Service, pid)

	// Reap the child if it exits while we are still around; ownership of
	// the running process stays with the OS
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	died := false
	select {
	case <-done:
		died = true
	case <-time.After(config.SettleDelay):
	case <-ctx.Done():
		// The service stays up; only the confirmation is abandoned
		return nil, errors.NewCancelledError("launch confirmation cancelled", ctx.Err()).
			WithContext("service", config.Service).WithContext("pid", pid)
	}

	if !died {
		if running, _ := processstate.IsProcessRunning(pid); running {
			return l.finishLaunch(config, pid, false)
		}
		died = true
	}

	// The original pid is gone. The launch command may have forked or
	// re-execed, so search for a live process matching the service pattern
	// before declaring failure.
	if config.ProcessPattern != "" {
		if adoptedPID, ok := l.findByPattern(config.ProcessPattern); ok {
			l.logger.Infof("Original pid exited, adopted pattern match, service: %s, pid: %d -> %d",
				config.Service, pid, adoptedPID)
			return l.finishLaunch(config, adoptedPID, true)
		}
	}

	tail := TailFile(config.LogFile, LogTailLines)
	l.logger.Errorf("Service did not stay alive, service: %s, pid: %d, log tail:\n%s", config.Service, pid, tail)

	return nil, errors.NewLaunchError("service process did not stay alive", nil).
		WithContext("service", config.Service).
		WithContext("pid", pid).
		WithContext("log_file", config.LogFile).
		WithContext("log_tail", tail)
}

func (l *Launcher) finishLaunch(config LaunchConfig, pid int, adopted bool) (*Record, error) {
	if err := l.registry.Record(config.Service, pid); err != nil {
		return nil, errors.NewLaunchError("service started but pid could not be recorded", err).
			WithContext("service", config.Service).WithContext("pid", pid)
	}

	l.logger.Infof("Service launched successfully, service: %s, pid: %d, adopted: %t", config.Service, pid, adopted)

	return &Record{
		Service:   config.Service,
		PID:       pid,
		Adopted:   adopted,
		StartedAt: time.Now(),
	}, nil
}

func (l *Launcher) findByPattern(pattern string) (int, bool) {
	pids, err := procscan.FindPIDs(pattern)
	if err != nil {
		l.logger.Warnf("Pattern search failed, pattern: %s, error: %v", pattern, err)
		return 0, false
	}
	for _, pid := range pids {
		if running, _ := processstate.IsProcessRunning(pid); running {
			return pid, true
		}
	}
	return 0, false
}

func validateLaunchConfig(config LaunchConfig) error {
	if config.Service == "" {
		return errors.NewValidationError("service name cannot be empty", nil)
	}
	if config.Command == "" {
		return errors.NewValidationError("launch command cannot be empty", nil).WithContext("service", config.Service)
	}
	if config.LogFile == "" {
		return errors.NewValidationError("log file path cannot be empty", nil).WithContext("service", config.Service)
	}
	return nil
}

func openLogSink(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
