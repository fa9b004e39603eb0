//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// configureDetachment places the child in a brand-new session. The child
// becomes session and process-group leader with no controlling terminal, so
// it survives termination of the launching process and its session. This is
// the primary detachment strategy wherever the OS offers the new-session
// primitive; the Windows build uses creation flags instead.
func configureDetachment(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

func detachStrategy() string {
	return "setsid"
}
