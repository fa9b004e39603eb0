//go:build !windows

package procscan

import (
	"os/exec"
	"strconv"
	"strings"
)

// listProcesses enumerates running processes via ps. The -e/-o format is
// compatible with both Linux and Darwin; "command" keeps the full command
// line instead of the truncated comm field.
func listProcesses() ([]ProcessEntry, error) {
	output, err := exec.Command("ps", "-e", "-o", "pid,command").Output()
	if err != nil {
		return nil, err
	}

	var entries []ProcessEntry
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "PID") {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		entries = append(entries, ProcessEntry{
			PID:     pid,
			Command: strings.TrimSpace(fields[1]),
		})
	}
	return entries, nil
}
