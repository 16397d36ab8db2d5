package docagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const planSystemPrompt = `You plan edits to a document. Reply with a short ordered plan
as a JSON array of strings, one concrete edit per entry. No commentary.`

// PlanBuilder asks the model once for an ordered list of edit steps.
type PlanBuilder struct {
	chat   ChatService
	logger *slog.Logger
}

// NewPlanBuilder creates a PlanBuilder over chat.
func NewPlanBuilder(chat ChatService, logger *slog.Logger) *PlanBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanBuilder{chat: chat, logger: logger}
}

// BuildPlan returns the model's plan, or nil when the call fails or the
// reply cannot be parsed. A nil plan means no plan is available.
func (p *PlanBuilder) BuildPlan(ctx context.Context, goal, analysis string) []string {
	prompt := fmt.Sprintf("Goal: %s\n\nCurrent analysis:\n%s\n\nList the steps.", goal, analysis)
	text, err := p.chat.CompleteText(ctx, planSystemPrompt, prompt)
	if err != nil {
		p.logger.Debug("plan request failed", "error", err)
		return nil
	}
	steps := parsePlan(text)
	p.logger.Debug("plan built", "steps", len(steps))
	return steps
}

// parsePlan tries parsePlanJSON and then parsePlanList.
func parsePlan(text string) []string {
	if steps, ok := parsePlanJSON(text); ok && len(steps) > 0 {
		return steps
	}
	return parsePlanList(text)
}

// parsePlanJSON accepts an array of strings, an array of objects with an
// "action" field, or an object with a "steps" array of either.
func parsePlanJSON(text string) ([]string, bool) {
	start := strings.IndexAny(text, "[{")
	if start == -1 {
		return nil, false
	}

	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err != nil {
		return nil, false
	}

	var items []json.RawMessage
	if text[start] == '{' {
		var obj struct {
			Steps []json.RawMessage `json:"steps"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil || obj.Steps == nil {
			return nil, false
		}
		items = obj.Steps
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}

	steps := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				steps = append(steps, s)
			}
			continue
		}
		var obj struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, false
		}
		if a := strings.TrimSpace(obj.Action); a != "" {
			steps = append(steps, a)
		}
	}
	return steps, true
}

// parsePlanList extracts lines that start with "N." or "-".
func parsePlanList(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		var rest string
		switch {
		case strings.HasPrefix(line, "-"):
			rest = line[1:]
		default:
			i := 0
			for i < len(line) && line[i] >= '0' && line[i] <= '9' {
				i++
			}
			if i == 0 || i >= len(line) || line[i] != '.' {
				continue
			}
			rest = line[i+1:]
		}
		if rest = strings.TrimSpace(rest); rest != "" {
			steps = append(steps, rest)
		}
	}
	return steps
}
