// Package health runs post-deployment verification batteries against
// services that already passed readiness. Checks diagnose, they never
// mutate: a failing check is reported, not acted on.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deploy-tools/depman-go/pkg/logging"
	"github.com/deploy-tools/depman-go/pkg/poll"
	"github.com/deploy-tools/depman-go/pkg/portprobe"
	"github.com/deploy-tools/depman-go/pkg/processstate"
	"github.com/deploy-tools/depman-go/pkg/procscan"
)

type CheckKind string

const (
	CheckKindProcessAlive  CheckKind = "process-alive"
	CheckKindPortListening CheckKind = "port-listening"
	CheckKindHTTPReachable CheckKind = "http-reachable"
)

const (
	DefaultHTTPAttempts = 3
	DefaultRetryDelay   = 5 * time.Second

	httpTimeout = 5 * time.Second
)

// CheckConfig describes the battery to run for one service. Zero-valued
// fields disable the corresponding check.
type CheckConfig struct {
	Service        string
	PID            int
	ProcessPattern string
	Port           int
	URL            string
	HTTPAttempts   int
	RetryDelay     time.Duration
}

// Result is the outcome of one check within a battery.
type Result struct {
	Service string
	Kind    CheckKind
	Passed  bool
	Details string
}

// Checker runs health check batteries.
type Checker struct {
	probe  *portprobe.Probe
	client *http.Client
	logger logging.Logger
}

func NewChecker(probe *portprobe.Probe, logger logging.Logger) *Checker {
	return &Checker{
		probe:  probe,
		client: &http.Client{Timeout: httpTimeout},
		logger: logger,
	}
}

// Check runs the full battery for one service and returns every result,
// failing checks included. It never returns early: a dead process still
// gets its port and HTTP checks reported so the operator sees the whole
// picture.
func (c *Checker) Check(ctx context.Context, config CheckConfig) []Result {
	c.logger.Infof("Running health check battery, service: %s", config.Service)

	var results []Result

	// HTTP first: its bounded retries absorb startup jitter before the
	// cheaper port and process checks run
	if config.URL != "" {
		results = append(results, c.checkHTTP(ctx, config))
	}
	if config.Port > 0 {
		results = append(results, c.checkPort(config))
	}
	if config.PID > 0 || config.ProcessPattern != "" {
		results = append(results, c.checkProcess(config))
	}

	for _, result := range results {
		if result.Passed {
			c.logger.Infof("Health check passed, service: %s, kind: %s, details: %s",
				result.Service, result.Kind, result.Details)
		} else {
			c.logger.Warnf("Health check failed, service: %s, kind: %s, details: %s",
				result.Service, result.Kind, result.Details)
		}
	}

	return results
}

// Healthy reports whether every result in a battery passed.
func Healthy(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

func (c *Checker) checkProcess(config CheckConfig) Result {
	result := Result{Service: config.Service, Kind: CheckKindProcessAlive}

	if config.PID > 0 {
		running, err := processstate.IsProcessRunning(config.PID)
		if err != nil {
			result.Details = fmt.Sprintf("liveness check failed for pid %d: %v", config.PID, err)
			return result
		}
		if running {
			result.Passed = true
			result.Details = fmt.Sprintf("process is running, pid: %d", config.PID)
		} else {
			result.Details = fmt.Sprintf("process not running, pid: %d", config.PID)
		}
		return result
	}

	// No recorded pid; fall back to a pattern scan
	pids, err := procscan.FindPIDs(config.ProcessPattern)
	if err != nil {
		result.Details = fmt.Sprintf("process scan failed: %v", err)
		return result
	}
	if len(pids) > 0 {
		result.Passed = true
		result.Details = fmt.Sprintf("found %d process(es) matching pattern %q", len(pids), config.ProcessPattern)
	} else {
		result.Details = fmt.Sprintf("no process matches pattern %q", config.ProcessPattern)
	}
	return result
}

func (c *Checker) checkPort(config CheckConfig) Result {
	result := Result{Service: config.Service, Kind: CheckKindPortListening}
	if c.probe.IsBound(config.Port) {
		result.Passed = true
		result.Details = fmt.Sprintf("port %d is accepting connections", config.Port)
	} else {
		result.Details = fmt.Sprintf("nothing is listening on port %d", config.Port)
	}
	return result
}

func (c *Checker) checkHTTP(ctx context.Context, config CheckConfig) Result {
	result := Result{Service: config.Service, Kind: CheckKindHTTPReachable}

	attempts := config.HTTPAttempts
	if attempts <= 0 {
		attempts = DefaultHTTPAttempts
	}
	delay := config.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var lastErr string
	passed := poll.Retry(ctx, attempts, delay, func() bool {
		ok, message := c.requestOnce(ctx, config.URL)
		if !ok {
			lastErr = message
			c.logger.Debugf("HTTP health attempt failed, service: %s, url: %s, error: %s",
				config.Service, config.URL, message)
		}
		return ok
	})

	if passed {
		result.Passed = true
		result.Details = fmt.Sprintf("endpoint %s responded with success", config.URL)
	} else {
		result.Details = fmt.Sprintf("endpoint %s unreachable after %d attempt(s): %s", config.URL, attempts, lastErr)
	}
	return result
}

func (c *Checker) requestOnce(ctx context.Context, url string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Sprintf("invalid health URL: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, ""
	}
	return false, fmt.Sprintf("unexpected status: %d %s", resp.StatusCode, resp.Status)
}
