package portprobe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/deploy-tools/depman-go/pkg/errors"
	"github.com/deploy-tools/depman-go/pkg/logging"
	"github.com/deploy-tools/depman-go/pkg/poll"
	"github.com/deploy-tools/depman-go/pkg/procscan"
)

const dialTimeout = 1 * time.Second

// Probe inspects and forcibly frees local TCP ports
type Probe struct {
	logger logging.Logger
}

func NewProbe(logger logging.Logger) *Probe {
	return &Probe{
		logger: logger,
	}
}

// IsBound reports whether something is accepting connections on the port
func (p *Probe) IsBound(port int) bool {
	address := net.JoinHostPort("localhost", fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Occupants returns the pids of processes listening on the port. An empty
// result means no occupant could be identified, which also covers platforms
// where the lookup tooling is unavailable.
func (p *Probe) Occupants(port int) []int {
	pids, err := listeningPIDs(port)
	if err != nil {
		p.logger.Debugf("Occupant lookup failed, port: %d, error: %v", port, err)
		return nil
	}
	return pids
}

// ForceRelease frees the port. The registry-recorded pid (pidHint, 0 if
// unknown) gets a graceful termination signal first; whatever still holds
// the port after grace is forcefully killed. A port that is already free is
// success, not an error.
func (p *Probe) ForceRelease(ctx context.Context, port int, pidHint int, grace time.Duration) error {
	if !p.IsBound(port) {
		p.logger.Debugf("Port already free, port: %d", port)
		return nil
	}

	if pidHint > 0 {
		p.logger.Infof("Releasing port gracefully, port: %d, pid: %d", port, pidHint)
		if procscan.TerminateAndWait(pidHint, grace, p.logger) && !p.IsBound(port) {
			p.logger.Infof("Port released gracefully, port: %d", port)
			return nil
		}
	} else {
		// No recorded owner; give current occupants the same grace window
		released := poll.Until(ctx, grace, 500*time.Millisecond, func() bool {
			return !p.IsBound(port)
		})
		if released {
			return nil
		}
	}

	occupants := p.Occupants(port)
	if len(occupants) == 0 {
		if !p.IsBound(port) {
			return nil
		}
		return errors.NewStopError("port is bound but no occupant pid could be identified", nil).WithContext("port", port)
	}

	for _, pid := range occupants {
		p.logger.Warnf("Force killing port occupant, port: %d, pid: %d", port, pid)
		if err := procscan.Kill(pid); err != nil {
			p.logger.Warnf("Failed to kill occupant, port: %d, pid: %d, error: %v", port, pid, err)
		}
	}

	// The OS needs a moment to tear the listener down
	released := poll.Until(ctx, 5*time.Second, 200*time.Millisecond, func() bool {
		return !p.IsBound(port)
	})
	if !released {
		return errors.NewStopError("port still bound after force release", nil).WithContext("port", port)
	}

	p.logger.Infof("Port force released, port: %d", port)
	return nil
}
