package processstate

import (
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsProcessRunning_Self(t *testing.T) {
	running, err := IsProcessRunning(os.Getpid())
	require.NoError(t, err)
	assert.True(t, running)
}

func TestIsProcessRunning_InvalidPID(t *testing.T) {
	running, err := IsProcessRunning(0)
	assert.Error(t, err)
	assert.False(t, running)

	running, err = IsProcessRunning(-5)
	assert.Error(t, err)
	assert.False(t, running)
}

func TestIsProcessRunning_ExitedProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test helper relies on a Unix shell")
	}

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	// Reaped child, pid no longer refers to a live process
	time.Sleep(50 * time.Millisecond)
	running, _ := IsProcessRunning(pid)
	assert.False(t, running)
}
