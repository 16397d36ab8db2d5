package doctools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/martinemde/docagent/docagent"
	"github.com/martinemde/docagent/docstore"
	"github.com/martinemde/docagent/unifiedllm"
)

// editThenFinish edits the title on its first turn and reports on its second.
type editThenFinish struct {
	turns int
}

func (c *editThenFinish) Complete(_ context.Context, _ docagent.ChatRequest) (*docagent.ChatResponse, error) {
	c.turns++
	if c.turns == 1 {
		return &docagent.ChatResponse{ToolCalls: []unifiedllm.ToolCall{{
			ID:   "call_1",
			Name: "edit_lines",
			// document_id and user_id are supplied by the agent.
			Arguments: json.RawMessage(`{"document_id":"other","start_line":1,"content":"# Quarterly Report"}`),
		}}}, nil
	}
	return &docagent.ChatResponse{Text: "Renamed the report title."}, nil
}

func (c *editThenFinish) CompleteText(context.Context, string, string) (string, error) {
	return "DONE\nReason: the title was renamed", nil
}

func TestAgentEditsThroughDocumentTools(t *testing.T) {
	reg, store := setup(t)
	chat := &editThenFinish{}
	agent := docagent.NewAgent(chat, store, reg,
		docagent.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	var changes []docagent.DocumentChange
	result := agent.ProcessRequest(context.Background(), docagent.Request{
		Goal:       "Rename the report to Quarterly Report",
		DocumentID: "doc-1",
		Identity:   docagent.Identity{UserID: "alice"},
	}, docagent.ListenerFuncs{
		DocumentChange: func(c docagent.DocumentChange) { changes = append(changes, c) },
	})

	if result.Status != docagent.StatusConverged || !result.Complete {
		t.Fatalf("status = %s complete = %t: %s", result.Status, result.Complete, result.FinalMessage)
	}
	if result.ConfirmedChanges != 1 || len(changes) != 1 || changes[0].ToolName != "edit_lines" {
		t.Errorf("changes = %d, events = %+v", result.ConfirmedChanges, changes)
	}
	if got := content(t, store); !strings.HasPrefix(got, "# Quarterly Report\n") {
		t.Errorf("document = %q", got)
	}
	if _, err := store.ReadContent(context.Background(), "other", "alice"); err != docstore.ErrNotFound {
		t.Errorf("model-supplied document_id was used: %v", err)
	}
}
