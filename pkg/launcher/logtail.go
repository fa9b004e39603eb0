package launcher

import (
	"os"
	"strings"
)

// TailFile returns the last n lines of the file as one string. It is a
// diagnostic helper: every failure mode reports an empty string rather
// than an error.
func TailFile(path string, n int) string {
	if n <= 0 {
		return ""
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	text := strings.TrimRight(string(content), "\n")
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
