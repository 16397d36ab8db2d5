package docagent

import (
	"fmt"
	"strings"
)

const baseSystemPrompt = `You are a document editing agent. You change a line-addressed
document only by calling the tools provided. Line numbers are 1-based.

- Read or search before you edit so your line numbers are current.
- Make one focused change per tool call.
- Do not describe an edit you intend to make; call the tool instead.
- When the goal is fully achieved, reply with a short summary and no tool calls.`

const (
	correctionRepeat = "You have sent the same response several times. Stop describing " +
		"what you will do and call a tool now, or try a different approach."
	correctionNarration = "You described an edit without performing it. Call the appropriate " +
		"tool to make the change instead of narrating it."
	correctionImage = "The search results include images. Do not describe them in prose; " +
		"if they belong in the document, insert the image reference with a tool call, otherwise continue with the next edit."
)

func planStepInstruction(index int, step string) string {
	return fmt.Sprintf("Perform plan step %d: %s", index+1, step)
}

func initialUserTurn(goal, snapshot string) string {
	lines := 0
	if snapshot != "" {
		lines = strings.Count(snapshot, "\n") + 1
	}
	return fmt.Sprintf("Goal: %s\n\nThe document currently has %d lines.", goal, lines)
}

// buildSystemPrompt combines the base prompt with the enhanced context:
// the goal restated, the tool catalog, a running summary and the plan.
func buildSystemPrompt(s *sessionState, tools []ToolDefinition) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)

	fmt.Fprintf(&b, "\n\n# Goal\n%s\n", s.req.Goal)

	if len(tools) > 0 {
		b.WriteString("\n# Tools\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}

	fmt.Fprintf(&b, "\n# Progress\nIteration %d of %d. Confirmed document changes: %d.\n",
		s.iteration, s.maxIter, s.changes)

	if len(s.plan) > 0 {
		b.WriteString("\n# Plan\n")
		for i, step := range s.plan {
			marker := " "
			if i < s.planCursor {
				marker = "x"
			}
			fmt.Fprintf(&b, "[%s] %d. %s\n", marker, i+1, step)
		}
	}
	return b.String()
}

// buildContextSummary renders the compact summary used by status checks:
// the goal, the change count, the last few turns and recent tool outputs.
func buildContextSummary(s *sessionState, cfg LoopConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", s.req.Goal)
	fmt.Fprintf(&b, "Iteration: %d\nConfirmed changes: %d\n", s.iteration, s.changes)

	start := len(s.history) - cfg.SummaryMessages
	if start < 0 {
		start = 0
	}
	if start < len(s.history) {
		b.WriteString("\nRecent history:\n")
	}
	for _, turn := range s.history[start:] {
		switch turn.Kind {
		case TurnToolResults:
			for _, r := range turn.ToolResults {
				fmt.Fprintf(&b, "[tool] %s\n", clip(r.Content, cfg.SummaryCharLimit))
			}
		case TurnAssistant:
			text := turn.Content
			for _, tc := range turn.ToolCalls {
				text += fmt.Sprintf(" <call %s>", tc.Name)
			}
			fmt.Fprintf(&b, "[assistant] %s\n", clip(text, cfg.SummaryCharLimit))
		default:
			fmt.Fprintf(&b, "[%s] %s\n", turn.Kind, clip(turn.Content, cfg.SummaryCharLimit))
		}
	}
	return b.String()
}

// formatToolResults renders the user turn that follows a tool iteration.
// Outputs travel in the tool-results turn; this one only reports status.
func formatToolResults(records []ToolCallRecord) string {
	var b strings.Builder
	b.WriteString("Tool results:\n")
	for i, r := range records {
		status := "ok"
		switch {
		case !r.Outcome.Succeeded:
			status = "failed: " + clip(r.Outcome.ResultText, failureClip)
		case r.Mutating && r.Confirmed:
			status = "ok, document changed"
		case r.Mutating:
			status = "ok, document unchanged"
		}
		fmt.Fprintf(&b, "%d. %s (%d attempt(s)): %s\n", i+1, r.Call.Name, r.Outcome.AttemptsUsed, status)
	}
	b.WriteString("\nContinue with the goal. Reply without tool calls once it is achieved.")
	return b.String()
}

const failureClip = 200

func describeToolStep(records []ToolCallRecord) string {
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Call.Name
	}
	return "Called " + strings.Join(names, ", ")
}

func aggregateResults(records []ToolCallRecord) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.Outcome.ResultText
	}
	return strings.Join(parts, "\n---\n")
}
