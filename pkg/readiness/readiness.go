// Package readiness waits for freshly started services to begin serving.
// All targets share one deadline: a deployment is ready when every service
// answers, and late services consume the budget the fast ones left over.
package readiness

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/deploy-tools/depman-go/pkg/errors"
	"github.com/deploy-tools/depman-go/pkg/logging"
	"github.com/deploy-tools/depman-go/pkg/poll"
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultInterval = 1 * time.Second

	attemptTimeout = 5 * time.Second
)

// Target describes one readiness probe. URL takes precedence; a target
// with no URL falls back to a TCP dial against Port.
type Target struct {
	Service string
	URL     string
	Port    int
}

// Result reports the outcome of waiting on a single target.
type Result struct {
	Service string
	Ready   bool
	Elapsed time.Duration
	Message string
}

// Poller polls service endpoints until they respond or a shared deadline
// expires.
type Poller struct {
	client *http.Client
	logger logging.Logger
}

func NewPoller(logger logging.Logger) *Poller {
	return &Poller{
		client: &http.Client{Timeout: attemptTimeout},
		logger: logger,
	}
}

// AwaitReady polls all targets concurrently under one shared deadline.
// It returns per-target results and a timeout error if any target never
// became ready. Results are ordered the same as targets.
func (p *Poller) AwaitReady(ctx context.Context, targets []Target, timeout, interval time.Duration) ([]Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.logger.Infof("Waiting for services to become ready, targets: %d, timeout: %v", len(targets), timeout)

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			results[i] = p.awaitOne(ctx, target, timeout, interval)
		}(i, target)
	}
	wg.Wait()

	var notReady []string
	for _, result := range results {
		if !result.Ready {
			notReady = append(notReady, result.Service)
		}
	}
	if len(notReady) > 0 {
		return results, errors.NewTimeoutError("services did not become ready", nil).
			WithContext("services", notReady).
			WithContext("timeout", timeout.String())
	}

	p.logger.Infof("All services ready, targets: %d", len(targets))
	return results, nil
}

func (p *Poller) awaitOne(ctx context.Context, target Target, timeout, interval time.Duration) Result {
	started := time.Now()

	var lastErr string
	ready := poll.Until(ctx, timeout, interval, func() bool {
		ok, message := p.probe(ctx, target)
		if !ok {
			lastErr = message
		}
		return ok
	})

	elapsed := time.Since(started)
	if ready {
		p.logger.Infof("Service ready, service: %s, elapsed: %v", target.Service, elapsed.Round(time.Millisecond))
		return Result{Service: target.Service, Ready: true, Elapsed: elapsed, Message: "ready"}
	}

	p.logger.Warnf("Service not ready before deadline, service: %s, elapsed: %v, last_error: %s",
		target.Service, elapsed.Round(time.Millisecond), lastErr)
	return Result{Service: target.Service, Ready: false, Elapsed: elapsed, Message: lastErr}
}

// probe makes one readiness attempt. HTTP targets need a 2xx response;
// TCP targets only need an accepted connection.
func (p *Poller) probe(ctx context.Context, target Target) (bool, string) {
	if target.URL != "" {
		return p.probeHTTP(ctx, target.URL)
	}
	return p.probeTCP(target.Port)
}

func (p *Poller) probeHTTP(ctx context.Context, url string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Sprintf("invalid readiness URL: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, ""
	}
	return false, fmt.Sprintf("unexpected status: %d %s", resp.StatusCode, resp.Status)
}

func (p *Poller) probeTCP(port int) (bool, string) {
	address := net.JoinHostPort("localhost", fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", address, attemptTimeout)
	if err != nil {
		return false, fmt.Sprintf("dial failed: %v", err)
	}
	conn.Close()
	return true, ""
}
