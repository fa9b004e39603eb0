//go:build windows

package launcher

import (
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200
const detachedProcess = 0x00000008

// configureDetachment detaches the child from the launching console.
// Windows has no session primitive; DETACHED_PROCESS plus a new process
// group keeps the child alive when the launching console closes.
func configureDetachment(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup | detachedProcess,
	}
}

func detachStrategy() string {
	return "detached-process"
}
