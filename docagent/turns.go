package docagent

import (
	"time"

	"github.com/martinemde/docagent/unifiedllm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
	// TurnCorrection is an instruction injected by the loop, such as the
	// repetition or narration corrections.
	TurnCorrection TurnKind = "correction"
)

// Turn is a single entry in the session history.
type Turn struct {
	Kind        TurnKind                    `json:"kind"`
	Timestamp   time.Time                   `json:"timestamp"`
	Content     string                      `json:"content,omitempty"`
	ToolCalls   []unifiedllm.ToolCall       `json:"tool_calls,omitempty"`
	ToolResults []unifiedllm.ToolResultData `json:"tool_results,omitempty"`
}

// NewUserTurn creates a Turn wrapping user input.
func NewUserTurn(content string) Turn {
	return Turn{Kind: TurnUser, Timestamp: time.Now(), Content: content}
}

// NewAssistantTurn creates a Turn wrapping a model response.
func NewAssistantTurn(content string, toolCalls []unifiedllm.ToolCall) Turn {
	return Turn{Kind: TurnAssistant, Timestamp: time.Now(), Content: content, ToolCalls: toolCalls}
}

// NewToolResultsTurn creates a Turn wrapping tool results.
func NewToolResultsTurn(results []unifiedllm.ToolResultData) Turn {
	return Turn{Kind: TurnToolResults, Timestamp: time.Now(), ToolResults: results}
}

// NewCorrectionTurn creates a Turn wrapping a corrective instruction.
func NewCorrectionTurn(content string) Turn {
	return Turn{Kind: TurnCorrection, Timestamp: time.Now(), Content: content}
}

// ConvertHistoryToMessages converts the turn-based history into LLM messages.
func ConvertHistoryToMessages(history []Turn) []unifiedllm.Message {
	messages := make([]unifiedllm.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Kind {
		case TurnUser:
			messages = append(messages, unifiedllm.UserMessage(turn.Content))
		case TurnAssistant:
			msg := unifiedllm.AssistantMessage(turn.Content)
			for _, tc := range turn.ToolCalls {
				msg.Content = append(msg.Content, unifiedllm.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
			}
			messages = append(messages, msg)
		case TurnToolResults:
			for _, r := range turn.ToolResults {
				messages = append(messages, unifiedllm.ToolResultMessage(r.ToolCallID, r.Content, r.IsError))
			}
		case TurnCorrection:
			// Sent as user messages so the model treats them as instructions.
			messages = append(messages, unifiedllm.UserMessage(turn.Content))
		}
	}
	return messages
}
