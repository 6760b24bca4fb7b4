package dockersource

import "strings"

// OutputLines converts byte output from a log fetch or an exec into a slice
// of lines with line terminators removed. Empty output yields no lines.
func OutputLines(output []byte) []string {
	s := string(output)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
