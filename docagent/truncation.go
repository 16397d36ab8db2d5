package docagent

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultToolCharLimits bounds how much of each tool's output is placed in
// the history sent to the model.
var DefaultToolCharLimits = map[string]int{
	"read_lines":            20000,
	"search_keyword":        8000,
	"semantic_search":       8000,
	"get_document_metadata": 4000,
	"insert_lines":          2000,
	"edit_lines":            2000,
	"delete_lines":          2000,
}

// DefaultTruncationModes are the per-tool truncation modes.
var DefaultTruncationModes = map[string]TruncationMode{
	"read_lines":   TruncateHeadTail,
	"insert_lines": TruncateTail,
	"edit_lines":   TruncateTail,
	"delete_lines": TruncateTail,
}

// DefaultToolLineLimits caps line-oriented output before the character
// limit applies.
var DefaultToolLineLimits = map[string]int{
	"read_lines":     400,
	"search_keyword": 200,
}

const defaultToolCharLimit = 10000

// headCut returns the largest index <= n that starts a rune.
func headCut(s string, n int) int {
	for n > 0 && n < len(s) && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// tailCut returns the smallest index >= n that starts a rune.
func tailCut(s string, n int) int {
	for n < len(s) && !utf8.RuneStart(s[n]) {
		n++
	}
	return n
}

// TruncateOutput applies character-based truncation to output. Cuts fall
// on rune boundaries.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	switch mode {
	case TruncateTail:
		start := tailCut(output, len(output)-maxChars)
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", start) +
			output[start:]
	default:
		head := headCut(output, maxChars/2)
		tail := tailCut(output, len(output)-maxChars/2)
		return output[:head] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
				"Re-run the tool with a narrower line range to see them.]\n\n", tail-head) +
			output[tail:]
	}
}

// TruncateLines applies line-based truncation using head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput truncates a tool's output for the history: first to
// the tool's line limit, then to its character limit from limits (falling
// back to DefaultToolCharLimits) using the tool's mode.
func TruncateToolOutput(output, toolName string, limits map[string]int) string {
	if maxLines, ok := DefaultToolLineLimits[toolName]; ok {
		output = TruncateLines(output, maxLines)
	}
	maxChars, ok := limits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = defaultToolCharLimit
		}
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	return TruncateOutput(output, maxChars, mode)
}

// clip shortens s to at most n characters, marking the cut.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:headCut(s, n)] + "…"
}
