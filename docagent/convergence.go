package docagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const statusCheckSystemPrompt = `You review the progress of a document-editing agent.
Answer with exactly two lines:
line 1: DONE if the goal has been achieved in the document, otherwise CONTINUE
line 2: one sentence explaining why.
Do not add anything else.`

// Verdict is the parsed answer of a status check.
type Verdict struct {
	Done   bool   `json:"done"`
	Reason string `json:"reason"`
}

func (v Verdict) String() string {
	if v.Done {
		return "DONE"
	}
	return "CONTINUE"
}

// ConvergenceChecker asks the model a narrow DONE/CONTINUE question about
// the session's progress.
type ConvergenceChecker struct {
	chat   ChatService
	logger *slog.Logger
}

// NewConvergenceChecker creates a checker over chat.
func NewConvergenceChecker(chat ChatService, logger *slog.Logger) *ConvergenceChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConvergenceChecker{chat: chat, logger: logger}
}

// CheckStatus returns the model's verdict. A transport failure is returned
// wrapped in ErrConvergenceCheck; the caller applies its FallbackPolicy.
func (c *ConvergenceChecker) CheckStatus(ctx context.Context, goal, summary, recentText string) (Verdict, error) {
	text, err := c.chat.CompleteText(ctx, statusCheckSystemPrompt, buildStatusPrompt(goal, summary, recentText))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrConvergenceCheck, err)
	}
	v := parseVerdict(text)
	c.logger.Debug("status check", "verdict", v.String(), "reason", v.Reason)
	return v, nil
}

func buildStatusPrompt(goal, summary, recentText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	if summary != "" {
		fmt.Fprintf(&b, "Progress so far:\n%s\n\n", summary)
	}
	if recentText != "" {
		fmt.Fprintf(&b, "Most recent assistant message:\n%s\n\n", recentText)
	}
	b.WriteString("Is the goal achieved? Answer DONE or CONTINUE on the first line and the reason on the second.")
	return b.String()
}

// parseVerdict reads the first non-empty line as the verdict and the next
// non-empty line as the reason. Anything unrecognized is CONTINUE.
func parseVerdict(text string) Verdict {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == 2 {
			break
		}
	}
	if len(lines) == 0 {
		return Verdict{}
	}

	word := strings.ToUpper(stripLabel(lines[0], "verdict:"))
	v := Verdict{Done: strings.HasPrefix(word, "DONE")}
	if len(lines) > 1 {
		v.Reason = stripLabel(lines[1], "reason:")
	}
	return v
}

const emphasis = "*_`#:. "

// stripLabel removes markdown emphasis and a leading label, so
// "**Verdict:** DONE" yields "DONE".
func stripLabel(line, label string) string {
	line = strings.TrimLeft(line, emphasis)
	if strings.HasPrefix(strings.ToLower(line), label) {
		line = line[len(label):]
	}
	return strings.TrimRight(strings.TrimLeft(line, emphasis), "*_` ")
}
