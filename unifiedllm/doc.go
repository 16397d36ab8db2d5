// Package unifiedllm is the model transport used by the document agent.
// It wraps the gollm library (github.com/teilomillet/gollm) behind a
// small Client.
//
// A Client sends each Request to one Adapter through its Middleware
// chain; GollmAdapter is the production Adapter. Failures come back as
// *Error values classified by ErrorKind, and Retry re-sends retryable
// ones on a RetryPolicy schedule, honoring a provider's Retry-After.
//
//	adapter, err := unifiedllm.NewGollmAdapter("openai", unifiedllm.WithModel("gpt-4o-mini"))
//	if err != nil {
//	    return err
//	}
//	client := unifiedllm.NewClient(adapter)
//
//	resp, err := client.Complete(ctx, unifiedllm.Request{
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//
// gollm returns plain text. GollmAdapter recovers tool calls from an
// embedded {"tool_calls": [{"name": ..., "arguments": {...}}]} object or a
// bare [{"name": ...}] array and exposes them through
// Response.ToolCallsFromResponse.
package unifiedllm
