package docagent

import (
	"context"
	"fmt"

	"github.com/martinemde/docagent/unifiedllm"
)

// ChatRequest is one primary generation call: the system prompt, the
// session history and the tool catalog offered to the model.
type ChatRequest struct {
	System   string
	Messages []unifiedllm.Message
	Tools    []unifiedllm.ToolDefinition
}

// ChatResponse is the model's reply. ToolCalls is empty when the model
// answered in free text.
type ChatResponse struct {
	ID        string
	Text      string
	ToolCalls []unifiedllm.ToolCall
	Usage     unifiedllm.Usage
}

// ChatService is the LLM collaborator used by the Agent.
type ChatService interface {
	// Complete runs a generation that may return tool calls.
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// CompleteText runs a plain-text generation without tools. It is used
	// for status checks and planning.
	CompleteText(ctx context.Context, system, user string) (string, error)
}

// LLMChat implements ChatService over a unifiedllm.Client.
type LLMChat struct {
	client      *unifiedllm.Client
	model       string
	temperature *float64
	maxTokens   *int
	retry       unifiedllm.RetryPolicy
}

// ChatOption configures an LLMChat.
type ChatOption func(*LLMChat)

// WithChatModel sets the model name sent with each request.
func WithChatModel(model string) ChatOption {
	return func(c *LLMChat) { c.model = model }
}

// WithChatTemperature sets the sampling temperature.
func WithChatTemperature(t float64) ChatOption {
	return func(c *LLMChat) { c.temperature = &t }
}

// WithChatMaxTokens caps the response length.
func WithChatMaxTokens(n int) ChatOption {
	return func(c *LLMChat) { c.maxTokens = &n }
}

// WithChatRetry replaces the retry policy for transient model errors.
func WithChatRetry(p unifiedllm.RetryPolicy) ChatOption {
	return func(c *LLMChat) { c.retry = p }
}

// NewLLMChat creates a ChatService backed by client.
func NewLLMChat(client *unifiedllm.Client, opts ...ChatOption) *LLMChat {
	c := &LLMChat{
		client: client,
		retry:  unifiedllm.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the request with the tool catalog and returns the reply.
func (c *LLMChat) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]unifiedllm.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, unifiedllm.SystemMessage(req.System))
	}
	messages = append(messages, req.Messages...)

	ureq := c.request(messages)
	if len(req.Tools) > 0 {
		ureq.ToolDefs = req.Tools
		ureq.ToolChoice = &unifiedllm.ToolChoice{Mode: "auto"}
	}

	resp, err := c.complete(ctx, ureq)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		ID:        resp.ID,
		Text:      resp.Text(),
		ToolCalls: resp.ToolCallsFromResponse(),
		Usage:     resp.Usage,
	}, nil
}

// CompleteText sends a system and user prompt without tools.
func (c *LLMChat) CompleteText(ctx context.Context, system, user string) (string, error) {
	var messages []unifiedllm.Message
	if system != "" {
		messages = append(messages, unifiedllm.SystemMessage(system))
	}
	messages = append(messages, unifiedllm.UserMessage(user))

	resp, err := c.complete(ctx, c.request(messages))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func (c *LLMChat) request(messages []unifiedllm.Message) unifiedllm.Request {
	return unifiedllm.Request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}

func (c *LLMChat) complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	resp, err := unifiedllm.Retry(ctx, c.retry, func(ctx context.Context) (*unifiedllm.Response, error) {
		return c.client.Complete(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}
	return resp, nil
}
