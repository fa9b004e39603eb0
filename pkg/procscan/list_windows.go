//go:build windows

package procscan

import (
	"encoding/csv"
	"os/exec"
	"strconv"
	"strings"
)

// listProcesses enumerates running processes via tasklist. Only the image
// name is available for matching, not the full command line.
func listProcesses() ([]ProcessEntry, error) {
	output, err := exec.Command("tasklist", "/fo", "csv", "/nh").Output()
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(string(output)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var entries []ProcessEntry
	for _, record := range records {
		if len(record) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			continue
		}
		entries = append(entries, ProcessEntry{
			PID:     pid,
			Command: strings.TrimSpace(record[0]),
		})
	}
	return entries, nil
}
