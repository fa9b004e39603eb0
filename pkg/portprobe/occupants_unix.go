//go:build !windows

package portprobe

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// listeningPIDs finds the pids listening on a TCP port via lsof. A non-zero
// exit with empty output means "no occupants", not an error.
func listeningPIDs(port int) ([]int, error) {
	output, err := exec.Command("lsof", "-t", "-i", fmt.Sprintf("tcp:%d", port), "-sTCP:LISTEN").Output()
	if err != nil {
		if len(output) == 0 {
			if _, ok := err.(*exec.ExitError); ok {
				return nil, nil
			}
		}
		return nil, err
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
