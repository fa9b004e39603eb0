//go:build windows

package portprobe

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// listeningPIDs finds the pids listening on a TCP port by parsing netstat
func listeningPIDs(port int) ([]int, error) {
	output, err := exec.Command("netstat", "-ano", "-p", "tcp").Output()
	if err != nil {
		return nil, err
	}

	suffix := fmt.Sprintf(":%d", port)

	seen := make(map[int]bool)
	var pids []int
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		// Proto Local-Address Foreign-Address State PID
		if len(fields) < 5 || fields[3] != "LISTENING" {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids, nil
}
