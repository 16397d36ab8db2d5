package docagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/martinemde/docagent/unifiedllm"
)

const testDoc = "doc-1"

func testRequest(goal string) Request {
	return Request{Goal: goal, DocumentID: testDoc, Identity: Identity{UserID: "user-1"}}
}

func testConfig() LoopConfig {
	cfg := DefaultLoopConfig()
	cfg.ToolBackoff.BaseDelay = time.Millisecond
	cfg.ToolBackoff.MaxDelay = time.Millisecond
	return cfg
}

func TestProcessRequestConfirmedChangeContinues(t *testing.T) {
	store := newFakeStore(testDoc, "# Report\nBody text")
	reg := NewToolRegistry()
	register(reg, "insert_lines", appendTool(store))

	chat := &scriptedChat{
		next: sequence(
			toolReply(call("c1", "insert_lines", map[string]any{"text": "## Conclusion"})),
			textReply("The conclusion section has been added."),
		),
		text: verdicts("DONE\nThe document has a conclusion.", "[]"),
	}
	listener := &recordingListener{}

	agent := NewAgent(chat, store, reg, WithLoopConfig(testConfig()))
	result := agent.ProcessRequest(context.Background(), testRequest("add a conclusion section"), listener)

	if result.ConfirmedChanges != 1 {
		t.Fatalf("expected 1 confirmed change, got %d", result.ConfirmedChanges)
	}
	if result.Iterations != 2 {
		t.Errorf("expected loop to continue to iteration 2, stopped at %d", result.Iterations)
	}
	if result.Status != StatusConverged || !result.Complete {
		t.Errorf("expected converged complete result, got %s complete=%v", result.Status, result.Complete)
	}
	if len(listener.changes) != 1 || listener.changes[0].Count != 1 {
		t.Errorf("expected one document change notification, got %+v", listener.changes)
	}
	if !strings.Contains(store.content(testDoc), "## Conclusion") {
		t.Error("expected document to contain the conclusion")
	}
}

func TestProcessRequestUnchangedEditNotCounted(t *testing.T) {
	store := newFakeStore(testDoc, "line one\nline two")
	reg := NewToolRegistry()
	register(reg, "edit_lines", staticTool("Edited line 2 successfully."))

	chat := &scriptedChat{
		next: sequence(
			toolReply(call("c1", "edit_lines", map[string]any{"start_line": 2, "content": "new"})),
			textReply("Finished editing."),
		),
		text: verdicts("DONE\nok", "[]"),
	}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("rewrite line two"), nil)

	if result.ConfirmedChanges != 0 {
		t.Fatalf("expected no confirmed changes, got %d", result.ConfirmedChanges)
	}
	rec := result.Steps[0].ToolCalls[0]
	if rec.Confirmed {
		t.Error("expected record to be unconfirmed")
	}
	if !rec.Outcome.Succeeded {
		t.Error("unconfirmed edit should still be a successful tool call")
	}
	if !strings.Contains(rec.Outcome.ResultText, "WARNING") {
		t.Errorf("expected warning annotation, got %q", rec.Outcome.ResultText)
	}
}

func TestProcessRequestRepetitionInjectsCorrection(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	register(reg, "insert_lines", appendTool(store))

	narration := textReply("I will now add a conclusion section to the document.")
	chat := &scriptedChat{
		next: sequence(
			narration, narration, narration,
			toolReply(call("c1", "insert_lines", map[string]any{"text": "## Conclusion"})),
			textReply("Added the conclusion."),
		),
		text: verdicts("CONTINUE\nnot yet", "no plan"),
	}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("add a conclusion section"), nil)

	if got := hasStep(result.Steps, "Repeated response"); got != 1 {
		t.Fatalf("expected exactly one repetition correction, got %d", got)
	}
	for _, s := range result.Steps {
		if strings.HasPrefix(s.Description, "Repeated response") && s.Iteration != 3 {
			t.Errorf("expected repetition correction at iteration 3, got %d", s.Iteration)
		}
	}
	if result.Iterations < 4 {
		t.Errorf("repetition alone must not end the session; stopped at %d", result.Iterations)
	}
	if result.Status != StatusConverged || result.ConfirmedChanges != 1 {
		t.Errorf("unexpected result: %s with %d changes", result.Status, result.ConfirmedChanges)
	}
}

func TestProcessRequestCancellationStopsBatch(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	register(reg, "read_lines", func(context.Context, map[string]any) (string, error) {
		cancel()
		return "1: text", nil
	})
	var inserted atomic.Int32
	register(reg, "insert_lines", func(context.Context, map[string]any) (string, error) {
		inserted.Add(1)
		return "inserted", nil
	})

	chat := &scriptedChat{
		next: sequence(toolReply(
			call("c1", "read_lines", map[string]any{"start_line": 1}),
			call("c2", "insert_lines", map[string]any{"text": "x"}),
		)),
	}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(ctx, testRequest("edit"), nil)

	if result.Status != StatusCancelled || !result.Complete {
		t.Fatalf("expected cancelled complete result, got %s complete=%v", result.Status, result.Complete)
	}
	if !strings.Contains(result.FinalMessage, "Stopped by caller") {
		t.Errorf("unexpected final message %q", result.FinalMessage)
	}
	if inserted.Load() != 0 {
		t.Error("no tool may run after cancellation")
	}
	if chat.primaryCalls() != 1 {
		t.Errorf("expected a single model call, got %d", chat.primaryCalls())
	}
}

func TestProcessRequestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chat := &scriptedChat{next: sequence(textReply("hi"))}

	result := NewAgent(chat, newFakeStore(testDoc, "x"), NewToolRegistry()).
		ProcessRequest(ctx, testRequest("edit"), nil)

	if result.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Status)
	}
	if chat.primaryCalls() != 0 {
		t.Error("model must not be called after cancellation")
	}
}

func TestProcessRequestStall(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	register(reg, "search_keyword", staticTool("No matches found."))

	chat := &scriptedChat{
		next: func(n int) (*ChatResponse, error) {
			return toolReply(call(fmt.Sprintf("c%d", n), "search_keyword", map[string]any{"query": fmt.Sprintf("term %d", n)})), nil
		},
	}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("find things"), nil)

	if result.Status != StatusStalled || !result.Complete {
		t.Fatalf("expected stalled complete result, got %s complete=%v", result.Status, result.Complete)
	}
	if result.Iterations != 6 {
		t.Errorf("expected stall at iteration 6, got %d", result.Iterations)
	}
	if !strings.Contains(result.FinalMessage, "stuck") {
		t.Errorf("unexpected final message %q", result.FinalMessage)
	}
}

func TestProcessRequestFallbackStopsAtCheckpoint(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	var n atomic.Int32
	register(reg, "read_lines", func(context.Context, map[string]any) (string, error) {
		return fmt.Sprintf("line %d", n.Add(1)), nil
	})

	chat := &scriptedChat{
		next: func(i int) (*ChatResponse, error) {
			return toolReply(call("c", "read_lines", map[string]any{"start_line": i})), nil
		},
		text: func(string, string) (string, error) { return "", errors.New("status service down") },
	}
	listener := &recordingListener{}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("edit"), listener)

	if result.Iterations != 5 {
		t.Fatalf("expected fallback stop at iteration 5, got %d", result.Iterations)
	}
	if result.Status != StatusConverged || !result.Complete {
		t.Errorf("expected converged complete result, got %s", result.Status)
	}
	if chat.primaryCalls() != 4 {
		t.Errorf("expected 4 model calls before the stop, got %d", chat.primaryCalls())
	}
	if len(listener.checks) != 1 || !listener.checks[0].FallbackStop || listener.checks[0].Err == nil {
		t.Errorf("expected one failed status check with fallback stop, got %+v", listener.checks)
	}
}

func TestProcessRequestCancelDuringStatusCheck(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	var n atomic.Int32
	register(reg, "read_lines", func(context.Context, map[string]any) (string, error) {
		return fmt.Sprintf("line %d", n.Add(1)), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chat := &scriptedChat{
		next: func(i int) (*ChatResponse, error) {
			return toolReply(call("c", "read_lines", map[string]any{"start_line": i})), nil
		},
		text: func(string, string) (string, error) {
			cancel()
			return "", context.Canceled
		},
	}
	listener := &recordingListener{}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(ctx, testRequest("edit"), listener)

	if result.Status != StatusCancelled || !result.Complete {
		t.Fatalf("status = %s complete = %t: %s", result.Status, result.Complete, result.FinalMessage)
	}
	if !strings.Contains(result.FinalMessage, "Stopped by caller") {
		t.Errorf("final message = %q", result.FinalMessage)
	}
	if result.Iterations != 5 || chat.primaryCalls() != 4 {
		t.Errorf("iterations = %d, model calls = %d", result.Iterations, chat.primaryCalls())
	}
	if len(listener.checks) != 1 || listener.checks[0].FallbackStop {
		t.Errorf("checks = %+v, want one check without a fallback stop", listener.checks)
	}
}

func TestProcessRequestBoundsToolOutputInHistory(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	register(reg, "read_lines", staticTool(strings.Repeat("a", 50000)))

	chat := &scriptedChat{
		next: sequence(
			toolReply(call("c1", "read_lines", map[string]any{"start_line": 1})),
			textReply("Finished reading."),
		),
	}

	NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("summarize"), nil)

	if len(chat.requests) < 2 {
		t.Fatalf("expected a second model call, got %d", len(chat.requests))
	}
	total := 0
	for _, msg := range chat.requests[1].Messages {
		for _, part := range msg.Content {
			total += len(part.Text)
			if part.ToolResult != nil {
				total += len(part.ToolResult.Content)
			}
		}
	}
	limit := DefaultToolCharLimits["read_lines"]
	if total > limit+2000 {
		t.Errorf("history carries %d characters of message text, want about %d", total, limit)
	}
}

func TestProcessRequestChangeStop(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	register(reg, "insert_lines", appendTool(store))

	chat := &scriptedChat{
		next: func(i int) (*ChatResponse, error) {
			return toolReply(call("c", "insert_lines", map[string]any{"text": fmt.Sprintf("para %d", i)})), nil
		},
	}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("expand"), nil)

	if result.ConfirmedChanges != 3 || result.Iterations != 3 {
		t.Fatalf("expected stop after 3 changes at iteration 3, got %d changes at %d", result.ConfirmedChanges, result.Iterations)
	}
	if result.Status != StatusConverged {
		t.Errorf("expected converged, got %s", result.Status)
	}
}

func TestProcessRequestExhausted(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	var n atomic.Int32
	register(reg, "read_lines", func(context.Context, map[string]any) (string, error) {
		return fmt.Sprintf("line %d", n.Add(1)), nil
	})

	chat := &scriptedChat{
		next: func(i int) (*ChatResponse, error) {
			return toolReply(call("c", "read_lines", map[string]any{"start_line": i})), nil
		},
	}
	cfg := testConfig()
	cfg.MaxIterations = 3

	result := NewAgent(chat, store, reg, WithLoopConfig(cfg)).
		ProcessRequest(context.Background(), testRequest("edit"), nil)

	if result.Status != StatusExhausted || !result.Complete {
		t.Fatalf("expected exhausted complete result, got %s", result.Status)
	}
	if result.Iterations != 3 {
		t.Errorf("iterations must not exceed the maximum, got %d", result.Iterations)
	}
	if !strings.Contains(result.FinalMessage, "Max iterations reached") {
		t.Errorf("unexpected final message %q", result.FinalMessage)
	}
}

func TestProcessRequestModelFailure(t *testing.T) {
	chat := &scriptedChat{
		next: func(int) (*ChatResponse, error) { return nil, errors.New("upstream unavailable") },
	}

	result := NewAgent(chat, newFakeStore(testDoc, "x"), NewToolRegistry()).
		ProcessRequest(context.Background(), testRequest("edit"), nil)

	if result.Status != StatusFailed || result.Complete {
		t.Fatalf("expected failed incomplete result, got %s complete=%v", result.Status, result.Complete)
	}
	var merr *ModelCallError
	if !errors.As(result.Err, &merr) || merr.Iteration != 1 {
		t.Errorf("expected ModelCallError at iteration 1, got %v", result.Err)
	}
	if result.FinalMessage == "" {
		t.Error("failed result must describe the failure")
	}
}

func TestProcessRequestDocumentReadFailure(t *testing.T) {
	chat := &scriptedChat{next: sequence(textReply("hi"))}
	result := NewAgent(chat, newFakeStore("other", "x"), NewToolRegistry()).
		ProcessRequest(context.Background(), testRequest("edit"), nil)

	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !errors.Is(result.Err, errNoDocument) {
		t.Errorf("expected wrapped store error, got %v", result.Err)
	}
}

func TestProcessRequestInjectsTrustedArgs(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	var seen map[string]any
	var untrusted map[string]any
	register(reg, "read_lines", func(_ context.Context, args map[string]any) (string, error) {
		seen = args
		return "1: text", nil
	})
	register(reg, "word_count", func(_ context.Context, args map[string]any) (string, error) {
		untrusted = args
		return "1 word", nil
	})

	chat := &scriptedChat{
		next: sequence(
			toolReply(
				call("c1", "read_lines", map[string]any{"document_id": "someone-else", "user_id": "mallory"}),
				call("c2", "word_count", map[string]any{}),
			),
			textReply("The document has one line."),
		),
		text: verdicts("DONE\nanswered", "[]"),
	}

	NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("count"), nil)

	if seen["document_id"] != testDoc || seen["user_id"] != "user-1" {
		t.Errorf("trusted args not enforced: %v", seen)
	}
	if _, ok := untrusted["document_id"]; ok {
		t.Errorf("tools outside the allow-list must not receive trusted args: %v", untrusted)
	}
}

func TestProcessRequestNarrationCorrection(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	register(reg, "insert_lines", appendTool(store))

	chat := &scriptedChat{
		next: sequence(
			textReply("I'm going to insert a summary at the top."),
			toolReply(call("c1", "insert_lines", map[string]any{"text": "Summary"})),
			textReply("Summary inserted."),
		),
		text: verdicts("CONTINUE\nnot yet", "not a plan"),
	}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("add summary"), nil)

	if hasStep(result.Steps, "Reply narrated") != 1 {
		t.Fatalf("expected one narration correction, steps: %+v", result.Steps)
	}
	if result.ConfirmedChanges != 1 || result.FinalMessage != "Summary inserted." {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestProcessRequestImageCorrection(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	register(reg, "semantic_search", staticTool("Line 4: Sales grew.\n![Sales chart](charts/sales.png)"))

	chat := &scriptedChat{
		next: sequence(
			toolReply(call("c1", "semantic_search", map[string]any{"query": "sales"})),
			textReply("The image shows sales grew in every quarter."),
			textReply("Nothing else to change."),
		),
		text: verdicts("CONTINUE\nnot yet", "none"),
	}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("describe sales"), nil)

	if hasStep(result.Steps, "Reply described search images") != 1 {
		t.Fatalf("expected one image correction, steps: %+v", result.Steps)
	}
	if result.FinalMessage != "Nothing else to change." {
		t.Errorf("unexpected final message %q", result.FinalMessage)
	}
}

func TestProcessRequestPlanAnnounced(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	register(reg, "insert_lines", appendTool(store))

	chat := &scriptedChat{
		next: sequence(
			textReply("The document lacks an introduction and a conclusion."),
			toolReply(call("c1", "insert_lines", map[string]any{"text": "Intro"})),
			textReply("Both sections are in place."),
		),
		text: verdicts("CONTINUE\nmore to do", `["Add an introduction", "Add a conclusion"]`),
	}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("structure the document"), nil)

	announced := false
	for _, s := range result.Steps {
		if strings.HasPrefix(s.Description, "Built a 2-step plan") {
			announced = true
			if s.ResultText != "Perform plan step 1: Add an introduction" {
				t.Errorf("unexpected plan instruction %q", s.ResultText)
			}
		}
	}
	if !announced {
		t.Fatalf("expected plan announcement, steps: %+v", result.Steps)
	}
	if result.Status != StatusConverged || result.FinalMessage != "Both sections are in place." {
		t.Errorf("unexpected result %s %q", result.Status, result.FinalMessage)
	}
}

func TestProcessRequestStepsDense(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	reg := NewToolRegistry()
	register(reg, "insert_lines", appendTool(store))

	chat := &scriptedChat{
		next: sequence(
			textReply("I will now insert the heading."),
			toolReply(call("c1", "insert_lines", map[string]any{"text": "# Title"})),
			textReply("Heading added."),
		),
		text: verdicts("DONE\nheading present", "[]"),
	}
	listener := &recordingListener{}

	result := NewAgent(chat, store, reg, WithLoopConfig(testConfig())).
		ProcessRequest(context.Background(), testRequest("add heading"), listener)

	for i, s := range result.Steps {
		if s.Number != i+1 {
			t.Fatalf("step %d has number %d", i, s.Number)
		}
	}
	if len(listener.steps) != len(result.Steps) {
		t.Errorf("listener saw %d steps, result has %d", len(listener.steps), len(result.Steps))
	}
}

func TestProcessRequestListenerPanicIgnored(t *testing.T) {
	store := newFakeStore(testDoc, "text")
	chat := &scriptedChat{
		next: sequence(textReply("Nothing to do.")),
		text: verdicts("DONE\nnothing needed", "[]"),
	}
	listener := ListenerFuncs{
		Step:        func(Step) { panic("boom") },
		StatusCheck: func(StatusCheck) { panic("boom") },
	}

	result := NewAgent(chat, store, NewToolRegistry()).
		ProcessRequest(context.Background(), testRequest("noop"), listener)

	if result.Status != StatusConverged || result.FinalMessage != "Nothing to do." {
		t.Fatalf("listener panic changed the outcome: %+v", result)
	}
}

func TestResponseSignalIgnoresCallIDs(t *testing.T) {
	a := &ChatResponse{ToolCalls: []unifiedllm.ToolCall{{ID: "call_1", Name: "read_lines", Arguments: json.RawMessage(`{"start_line":1}`)}}}
	b := &ChatResponse{ToolCalls: []unifiedllm.ToolCall{{ID: "call_2", Name: "read_lines", Arguments: json.RawMessage(`{"start_line":1}`)}}}
	c := &ChatResponse{ToolCalls: []unifiedllm.ToolCall{{ID: "call_3", Name: "read_lines", Arguments: json.RawMessage(`{"start_line":9}`)}}}

	if responseSignal(a) != responseSignal(b) {
		t.Error("signals differ only by call ID but do not match")
	}
	if responseSignal(a) == responseSignal(c) {
		t.Error("different arguments produced the same signal")
	}
	if got := responseSignal(&ChatResponse{Text: "hello"}); got != "hello" {
		t.Errorf("text-only signal = %q", got)
	}
}
