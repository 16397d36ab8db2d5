package docagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/martinemde/docagent/unifiedllm"
)

var errNoDocument = errors.New("document not found")

type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]string
	readErr error
	reads   int
}

func newFakeStore(docID, content string) *fakeStore {
	return &fakeStore{docs: map[string]string{docID: content}}
}

func (s *fakeStore) ReadContent(_ context.Context, documentID, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return "", s.readErr
	}
	content, ok := s.docs[documentID]
	if !ok {
		return "", errNoDocument
	}
	return content, nil
}

func (s *fakeStore) WriteContent(_ context.Context, documentID, _ string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[documentID] = content
	return nil
}

func (s *fakeStore) content(docID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[docID]
}

// scriptedChat returns replies from next for primary calls and from text
// for plain-text calls.
type scriptedChat struct {
	mu        sync.Mutex
	next      func(call int) (*ChatResponse, error)
	text      func(system, user string) (string, error)
	calls     int
	textCalls int
	requests  []ChatRequest
}

func (c *scriptedChat) Complete(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.calls++
	n := c.calls
	c.mu.Unlock()
	return c.next(n)
}

func (c *scriptedChat) CompleteText(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	c.textCalls++
	c.mu.Unlock()
	if c.text == nil {
		return "CONTINUE\nstill working", nil
	}
	return c.text(system, user)
}

func (c *scriptedChat) primaryCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// sequence replays replies in order, repeating the last one.
func sequence(replies ...*ChatResponse) func(int) (*ChatResponse, error) {
	return func(call int) (*ChatResponse, error) {
		i := call - 1
		if i >= len(replies) {
			i = len(replies) - 1
		}
		return replies[i], nil
	}
}

func textReply(text string) *ChatResponse {
	return &ChatResponse{ID: "resp", Text: text}
}

func toolReply(calls ...unifiedllm.ToolCall) *ChatResponse {
	return &ChatResponse{ID: "resp", ToolCalls: calls}
}

func call(id, name string, args map[string]any) unifiedllm.ToolCall {
	raw, _ := json.Marshal(args)
	return unifiedllm.ToolCall{ID: id, Name: name, Arguments: raw}
}

// verdicts answers status checks with verdict and plan requests with plan.
func verdicts(verdict, plan string) func(system, user string) (string, error) {
	return func(system, _ string) (string, error) {
		if system == planSystemPrompt {
			return plan, nil
		}
		return verdict, nil
	}
}

// appendTool appends args["text"] to the document.
func appendTool(store *fakeStore) ToolExecutor {
	return func(ctx context.Context, args map[string]any) (string, error) {
		docID, _ := GetStringArg(args, "document_id")
		text, _ := GetStringArg(args, "text")
		current, err := store.ReadContent(ctx, docID, "")
		if err != nil {
			return "", err
		}
		if err := store.WriteContent(ctx, docID, "", current+"\n"+text); err != nil {
			return "", err
		}
		return fmt.Sprintf("Inserted %q", text), nil
	}
}

func staticTool(text string) ToolExecutor {
	return func(context.Context, map[string]any) (string, error) { return text, nil }
}

func register(reg *ToolRegistry, name string, exec ToolExecutor) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{Name: name, Description: name, Parameters: map[string]any{"type": "object"}},
		Executor:   exec,
	})
}

type recordingListener struct {
	mu      sync.Mutex
	steps   []Step
	changes []DocumentChange
	checks  []StatusCheck
}

func (l *recordingListener) OnStep(step Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
}

func (l *recordingListener) OnDocumentChange(change DocumentChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, change)
}

func (l *recordingListener) OnStatusCheck(check StatusCheck) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks = append(l.checks, check)
}

func hasStep(steps []Step, prefix string) int {
	n := 0
	for _, s := range steps {
		if strings.HasPrefix(s.Description, prefix) {
			n++
		}
	}
	return n
}
