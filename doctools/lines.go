package doctools

import (
	"fmt"
	"strings"
)

// splitLines splits content into lines. Empty content has no lines.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// numbered renders lines[start-1:end] with 1-based line numbers.
func numbered(lines []string, start, end int) string {
	var b strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&b, "%d: %s\n", i, lines[i-1])
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// lineRange validates a 1-based inclusive range against n lines. A zero
// end means the same as start.
func lineRange(start, end, n int) (int, int, error) {
	if end == 0 {
		end = start
	}
	if start < 1 || start > n {
		return 0, 0, fmt.Errorf("start_line %d out of range (document has %d lines)", start, n)
	}
	if end < start || end > n {
		return 0, 0, fmt.Errorf("end_line %d out of range (start %d, document has %d lines)", end, start, n)
	}
	return start, end, nil
}

func insertAt(lines []string, before int, added []string) []string {
	out := make([]string, 0, len(lines)+len(added))
	out = append(out, lines[:before-1]...)
	out = append(out, added...)
	return append(out, lines[before-1:]...)
}

func replaceRange(lines []string, start, end int, replacement []string) []string {
	out := make([]string, 0, len(lines)-(end-start+1)+len(replacement))
	out = append(out, lines[:start-1]...)
	out = append(out, replacement...)
	return append(out, lines[end:]...)
}
