//go:build !windows

package procscan

import (
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploy-tools/depman-go/pkg/processstate"
)

// ProcScanMockLogger is a simple mock implementation of Logger for testing
type ProcScanMockLogger struct{}

func (m *ProcScanMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *ProcScanMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ProcScanMockLogger) Infof(format string, args ...interface{})                {}
func (m *ProcScanMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ProcScanMockLogger) Errorf(format string, args ...interface{})               {}

func startSleeper(t *testing.T, tag string) *exec.Cmd {
	t.Helper()
	// The shell must stay resident: its command line carries the tag, and
	// an exec'd sleep would show up in the process table without it
	cmd := exec.Command("sh", "-c", fmt.Sprintf("while :; do sleep 1; done # %s", tag))
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
	})
	return cmd
}

func uniqueTag(t *testing.T) string {
	return fmt.Sprintf("procscan-test-%d-%d", os.Getpid(), time.Now().UnixNano())
}

func TestFindPIDs_EmptyPattern(t *testing.T) {
	pids, err := FindPIDs("")
	assert.Error(t, err)
	assert.Nil(t, pids)
}

func TestFindPIDs_NoMatch(t *testing.T) {
	pids, err := FindPIDs("no-such-process-pattern-whatsoever")
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestFindPIDs_MatchesLaunchedProcess(t *testing.T) {
	tag := uniqueTag(t)
	startSleeper(t, tag)

	// ps may need a moment to show the new process
	var pids []int
	var err error
	for i := 0; i < 10; i++ {
		pids, err = FindPIDs(tag)
		require.NoError(t, err)
		if len(pids) > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	assert.NotEmpty(t, pids)
}

func TestFindPIDs_ExcludesSelf(t *testing.T) {
	// Every test binary command line contains "procscan.test"
	pids, err := FindPIDs("procscan.test")
	require.NoError(t, err)
	assert.NotContains(t, pids, os.Getpid())
}

func TestKillByPattern_TerminatesMatches(t *testing.T) {
	tag := uniqueTag(t)
	cmd := startSleeper(t, tag)
	pid := cmd.Process.Pid

	// Reap the child once it is signalled, so liveness checks see it gone
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	err := KillByPattern(tag, 2*time.Second, &ProcScanMockLogger{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("process %d still alive after KillByPattern", pid)
	}

	running, _ := processstate.IsProcessRunning(pid)
	assert.False(t, running)
}

func TestKillByPattern_NoMatchIsSuccess(t *testing.T) {
	err := KillByPattern("no-such-process-pattern-whatsoever", time.Second, &ProcScanMockLogger{})
	assert.NoError(t, err)
}
