// Package supervisor sequences service deployments: stop what is running,
// wait for its ports to come free, start everything detached, wait for
// readiness, then verify health. The sequence is strictly ordered and
// fail-fast with no rollback; rollback is a future extension point.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deploy-tools/depman-go/pkg/errors"
	"github.com/deploy-tools/depman-go/pkg/health"
	"github.com/deploy-tools/depman-go/pkg/launcher"
	"github.com/deploy-tools/depman-go/pkg/logging"
	"github.com/deploy-tools/depman-go/pkg/poll"
	"github.com/deploy-tools/depman-go/pkg/portprobe"
	"github.com/deploy-tools/depman-go/pkg/processstate"
	"github.com/deploy-tools/depman-go/pkg/procscan"
	"github.com/deploy-tools/depman-go/pkg/readiness"
	"github.com/deploy-tools/depman-go/pkg/registry"
)

// Step identifies one stage of an orchestration run.
type Step string

const (
	StepStop        Step = "stop"
	StepPortRelease Step = "port-release"
	StepStart       Step = "start"
	StepReadiness   Step = "readiness"
	StepHealth      Step = "health-check"
)

// StepStatus is the recorded outcome of one step.
type StepStatus string

const (
	StepStatusPassed   StepStatus = "passed"
	StepStatusDegraded StepStatus = "degraded"
	StepStatusSkipped  StepStatus = "skipped"
	StepStatusFailed   StepStatus = "failed"
)

// StepResult records one step of a run for the deployment log.
type StepResult struct {
	Step       Step
	Status     StepStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Details    string
}

// DeploymentOutcome aggregates an entire run. Steps are in execution
// order; a fail-fast run records only the steps that actually ran.
type DeploymentOutcome struct {
	Steps     []StepResult
	Success   bool
	Err       error
	Endpoints map[string]string
}

// ServiceStatus is one row of the operator status snapshot.
type ServiceStatus struct {
	Service   string
	PID       int
	Running   bool
	Port      int
	PortBound bool
	Endpoint  string
}

// Orchestrator drives the deployment state machine over a fixed set of
// configured services.
type Orchestrator struct {
	config   *Config
	registry *registry.Registry
	probe    *portprobe.Probe
	launcher *launcher.Launcher
	poller   *readiness.Poller
	checker  *health.Checker
	lock     *RunLock
	logger   logging.Logger
}

func NewOrchestrator(config *Config, logger logging.Logger) *Orchestrator {
	reg := registry.NewRegistry(config.Supervisor.RegistryDir, logger)
	probe := portprobe.NewProbe(logger)
	return &Orchestrator{
		config:   config,
		registry: reg,
		probe:    probe,
		launcher: launcher.NewLauncher(reg, logger),
		poller:   readiness.NewPoller(logger),
		checker:  health.NewChecker(probe, logger),
		lock:     NewRunLock(config.Supervisor.LockFile, logger),
		logger:   logger,
	}
}

// Deploy runs the full sequence for every configured service.
func (o *Orchestrator) Deploy(ctx context.Context) (*DeploymentOutcome, error) {
	return o.run(ctx, o.config.Services, true)
}

// Start runs stop-release-start-ready-health for the named services only,
// or all services when names is empty.
func (o *Orchestrator) Start(ctx context.Context, names []string) (*DeploymentOutcome, error) {
	services, err := o.selectServices(names)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, services, true)
}

// Stop gracefully stops the named services (or all) and confirms their
// ports came free.
func (o *Orchestrator) Stop(ctx context.Context, names []string) (*DeploymentOutcome, error) {
	services, err := o.selectServices(names)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, services, false)
}

// run executes the state machine. Stop-only runs halt after port release.
func (o *Orchestrator) run(ctx context.Context, services []ServiceConfig, full bool) (*DeploymentOutcome, error) {
	if err := o.lock.Acquire(); err != nil {
		return nil, err
	}
	defer o.lock.Release()

	outcome := &DeploymentOutcome{Endpoints: make(map[string]string)}

	steps := []struct {
		step Step
		fn   func(context.Context, []ServiceConfig) (StepStatus, string, error)
	}{
		{StepStop, o.stopServices},
		{StepPortRelease, o.awaitPortRelease},
	}
	if full {
		steps = append(steps, []struct {
			step Step
			fn   func(context.Context, []ServiceConfig) (StepStatus, string, error)
		}{
			{StepStart, o.startServices},
			{StepReadiness, o.awaitReadiness},
			{StepHealth, o.runHealthChecks},
		}...)
	}

	for _, entry := range steps {
		result := StepResult{Step: entry.step, StartedAt: time.Now()}
		o.logger.Infof("State transition, step: %s, at: %s", entry.step, result.StartedAt.Format(time.RFC3339))

		status, details, err := entry.fn(ctx, services)
		result.Status = status
		result.Details = details
		result.FinishedAt = time.Now()
		outcome.Steps = append(outcome.Steps, result)

		if err != nil {
			o.logger.Errorf("Deployment failed, step: %s, error: %v", entry.step, err)
			outcome.Err = err
			return outcome, err
		}
		o.logger.Infof("Step complete, step: %s, status: %s, elapsed: %v",
			entry.step, status, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	}

	outcome.Success = true
	if full {
		for _, service := range services {
			outcome.Endpoints[service.Name] = o.endpoint(service)
		}
	}
	o.logger.Infof("Deployment complete, services: %d", len(services))
	return outcome, nil
}

// stopServices signals recorded pids and falls back to pattern kill when
// the graceful path does not take effect. A service with no record is
// nothing to stop, which is success.
func (o *Orchestrator) stopServices(ctx context.Context, services []ServiceConfig) (StepStatus, string, error) {
	status := StepStatusPassed
	var notes []string

	for _, service := range services {
		pid, ok := o.registry.LookupLive(service.Name)
		if !ok {
			o.logger.Infof("No live record, nothing to stop, service: %s", service.Name)
			continue
		}

		o.logger.Infof("Stopping service, service: %s, pid: %d", service.Name, pid)
		// Launched services lead their own session, so a group signal
		// reaches any grandchildren (worker subprocesses) as well
		procscan.TerminateGroup(pid)
		stopped := procscan.TerminateAndWait(pid, o.config.Supervisor.StopGraceTimeout, o.logger)
		if !stopped {
			// Graceful stop did not take effect; forced kill by pattern
			o.logger.Warnf("Graceful stop failed, falling back to pattern kill, service: %s, pattern: %s",
				service.Name, service.ProcessPattern)
			if err := procscan.KillByPattern(service.ProcessPattern, o.config.Supervisor.StopGraceTimeout, o.logger); err != nil {
				return StepStatusFailed, fmt.Sprintf("service %s would not stop", service.Name),
					errors.NewStopError("forced kill failed", err).WithContext("service", service.Name)
			}
			status = StepStatusDegraded
			notes = append(notes, fmt.Sprintf("%s required forced kill", service.Name))
		}
		o.registry.Clear(service.Name)
	}

	return status, strings.Join(notes, "; "), nil
}

// awaitPortRelease waits for every managed port to come free, degrading
// to forceful cleanup on timeout. It fails only when even forceful
// cleanup leaves a port bound, since starting over an occupied port
// would be a silent race.
func (o *Orchestrator) awaitPortRelease(ctx context.Context, services []ServiceConfig) (StepStatus, string, error) {
	status := StepStatusPassed
	var notes []string

	for _, service := range services {
		released := poll.Until(ctx, o.config.Supervisor.PortReleaseTimeout, time.Second, func() bool {
			return !o.probe.IsBound(service.Port)
		})
		if released {
			continue
		}

		o.logger.Warnf("Port not released in time, forcing cleanup, service: %s, port: %d",
			service.Name, service.Port)
		pidHint, _ := o.registry.Lookup(service.Name)
		if err := o.probe.ForceRelease(ctx, service.Port, pidHint, o.config.Supervisor.StopGraceTimeout); err != nil {
			return StepStatusFailed, fmt.Sprintf("port %d could not be freed", service.Port),
				errors.NewStopError("port release failed even after forceful cleanup", err).
					WithContext("service", service.Name).
					WithContext("port", service.Port)
		}
		status = StepStatusDegraded
		notes = append(notes, fmt.Sprintf("port %d force released", service.Port))
	}

	return status, strings.Join(notes, "; "), nil
}

// startServices launches every service detached. Any launch failure is
// fatal to the run; there is no partial-success state.
func (o *Orchestrator) startServices(ctx context.Context, services []ServiceConfig) (StepStatus, string, error) {
	var started []string

	for _, service := range services {
		record, err := o.launcher.Start(ctx, launcher.LaunchConfig{
			Service:          service.Name,
			Command:          service.Command,
			Args:             service.Args,
			WorkingDirectory: service.WorkingDirectory,
			Environment:      service.Environment,
			LogFile:          service.LogFile,
			ProcessPattern:   service.ProcessPattern,
			SettleDelay:      service.SettleDelay,
		})
		if err != nil {
			return StepStatusFailed, fmt.Sprintf("launch of %s failed", service.Name), err
		}
		started = append(started, fmt.Sprintf("%s=%d", service.Name, record.PID))
	}

	return StepStatusPassed, strings.Join(started, " "), nil
}

// awaitReadiness polls all services under one shared deadline. Pids stay
// recorded on failure so the operator can inspect the started but never
// ready process.
func (o *Orchestrator) awaitReadiness(ctx context.Context, services []ServiceConfig) (StepStatus, string, error) {
	targets := make([]readiness.Target, 0, len(services))
	for _, service := range services {
		targets = append(targets, readiness.Target{
			Service: service.Name,
			URL:     service.ReadinessURL,
			Port:    service.Port,
		})
	}

	results, err := o.poller.AwaitReady(ctx, targets,
		o.config.Supervisor.ReadinessTimeout, o.config.Supervisor.ReadinessInterval)
	if err != nil {
		var laggards []string
		for i, result := range results {
			if !result.Ready {
				laggards = append(laggards, fmt.Sprintf("%s: %s (log: %s)",
					result.Service, result.Message, services[i].LogFile))
			}
		}
		return StepStatusFailed, strings.Join(laggards, "; "), err
	}

	return StepStatusPassed, "", nil
}

// runHealthChecks runs the post-readiness battery, or records a skip when
// the stage is declared unavailable.
func (o *Orchestrator) runHealthChecks(ctx context.Context, services []ServiceConfig) (StepStatus, string, error) {
	if o.config.Supervisor.SkipHealthCheck {
		o.logger.Warnf("Health check stage declared unavailable, skipping")
		return StepStatusSkipped, "health check stage declared unavailable", nil
	}

	var failures []string
	for _, service := range services {
		pid, _ := o.registry.Lookup(service.Name)
		results := o.checker.Check(ctx, health.CheckConfig{
			Service:        service.Name,
			PID:            pid,
			ProcessPattern: service.ProcessPattern,
			Port:           service.Port,
			URL:            service.HealthURL,
			HTTPAttempts:   o.config.Supervisor.HealthAttempts,
			RetryDelay:     o.config.Supervisor.HealthRetryDelay,
		})
		for _, result := range results {
			if !result.Passed {
				failures = append(failures, fmt.Sprintf("%s/%s: %s (log tail: %s)",
					result.Service, result.Kind, result.Details,
					launcher.TailFile(service.LogFile, launcher.LogTailLines)))
			}
		}
	}

	if len(failures) > 0 {
		details := strings.Join(failures, "; ")
		return StepStatusFailed, details,
			errors.NewProcessError("health check battery failed", nil).WithContext("failures", failures)
	}
	return StepStatusPassed, "", nil
}

// HealthCheck runs only the verification battery against the current
// state, without touching any process.
func (o *Orchestrator) HealthCheck(ctx context.Context) ([]health.Result, error) {
	var all []health.Result
	for _, service := range o.config.Services {
		pid, _ := o.registry.LookupLive(service.Name)
		all = append(all, o.checker.Check(ctx, health.CheckConfig{
			Service:        service.Name,
			PID:            pid,
			ProcessPattern: service.ProcessPattern,
			Port:           service.Port,
			URL:            service.HealthURL,
			HTTPAttempts:   o.config.Supervisor.HealthAttempts,
			RetryDelay:     o.config.Supervisor.HealthRetryDelay,
		})...)
	}

	if !health.Healthy(all) {
		return all, errors.NewProcessError("one or more health checks failed", nil)
	}
	return all, nil
}

// Status reports the registry, liveness, and port state of every service
// without mutating anything.
func (o *Orchestrator) Status(ctx context.Context) []ServiceStatus {
	statuses := make([]ServiceStatus, 0, len(o.config.Services))
	for _, service := range o.config.Services {
		entry := ServiceStatus{
			Service:  service.Name,
			Port:     service.Port,
			Endpoint: o.endpoint(service),
		}
		if pid, ok := o.registry.Lookup(service.Name); ok {
			entry.PID = pid
			running, _ := processstate.IsProcessRunning(pid)
			entry.Running = running
		}
		entry.PortBound = o.probe.IsBound(service.Port)
		statuses = append(statuses, entry)
	}
	return statuses
}

func (o *Orchestrator) selectServices(names []string) ([]ServiceConfig, error) {
	if len(names) == 0 {
		return o.config.Services, nil
	}

	byName := make(map[string]ServiceConfig, len(o.config.Services))
	for _, service := range o.config.Services {
		byName[service.Name] = service
	}

	selected := make([]ServiceConfig, 0, len(names))
	for _, name := range names {
		service, ok := byName[name]
		if !ok {
			return nil, errors.NewNotFoundError(
				fmt.Sprintf("unknown service: %s", name), nil).
				WithContext("known_services", serviceNames(o.config.Services))
		}
		selected = append(selected, service)
	}
	return selected, nil
}

func (o *Orchestrator) endpoint(service ServiceConfig) string {
	if service.HealthURL != "" {
		return service.HealthURL
	}
	if service.ReadinessURL != "" {
		return service.ReadinessURL
	}
	return fmt.Sprintf("tcp://localhost:%d", service.Port)
}

func serviceNames(services []ServiceConfig) []string {
	names := make([]string, 0, len(services))
	for _, service := range services {
		names = append(names, service.Name)
	}
	return names
}
