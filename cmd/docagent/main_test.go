package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/martinemde/docagent/config"
	"github.com/martinemde/docagent/docagent"
	"github.com/martinemde/docagent/docstore"
)

func TestNewLogger(t *testing.T) {
	cfg := config.Default()

	var buf bytes.Buffer
	logger, err := newLogger(&buf, cfg, &globalFlags{logLevel: "trace", logFormat: "json"})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Log(context.Background(), config.LevelTrace, "payload")
	if !strings.Contains(buf.String(), `"level":"TRACE"`) {
		t.Errorf("trace line = %s", buf.String())
	}

	if _, err := newLogger(&buf, cfg, &globalFlags{logFormat: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := newLogger(&buf, cfg, &globalFlags{logLevel: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(&globalFlags{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("driver = %q, want default sqlite", cfg.Store.Driver)
	}

	if _, err := loadConfig(&globalFlags{configPath: "/nonexistent/docagent.yaml"}); err == nil {
		t.Error("expected error for a named config that does not exist")
	}
}

func TestPrintResult(t *testing.T) {
	result := docagent.Result{
		SessionID:        "s1",
		FinalMessage:     "Added a summary.",
		Complete:         true,
		Status:           docagent.StatusConverged,
		Iterations:       4,
		ConfirmedChanges: 1,
	}

	var text bytes.Buffer
	if err := printResult(&text, result, formatText); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Added a summary.", "Status:    converged", "confirmed changes: 1"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("missing %q in:\n%s", want, text.String())
		}
	}

	result.Err = errors.New("boom")
	var js bytes.Buffer
	if err := printResult(&js, result, formatJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["error"] != "boom" || decoded["status"] != "converged" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestPrintDocument(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	doc, err := store.Create(ctx, docstore.Document{OwnerID: "alice", Content: "one\ntwo"})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printDocument(ctx, &buf, store, doc.ID, "alice", false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "   1  one\n   2  two\n" {
		t.Errorf("numbered output = %q", buf.String())
	}

	if err := printDocument(ctx, &buf, store, doc.ID, "bob", false); !errors.Is(err, docstore.ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	l := progressPrinter(&buf)
	l.OnStep(docagent.Step{Number: 2, Description: "Called read_lines"})
	l.OnDocumentChange(docagent.DocumentChange{ToolName: "edit_lines", Count: 1})
	l.OnStatusCheck(docagent.StatusCheck{Err: errors.New("offline")})

	out := buf.String()
	for _, want := range []string{"[2] Called read_lines", "document changed by edit_lines (change 1)", "status check failed: offline"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestSessionListenerKeepsEventStreamClean(t *testing.T) {
	var stdout, stderr bytes.Buffer
	listener, wait := sessionListener("s1", &stdout, &stderr, true)
	listener.OnStep(docagent.Step{Number: 1, Description: "Called read_lines"})
	listener.OnDocumentChange(docagent.DocumentChange{ToolName: "edit_lines", Count: 1})
	wait()

	if stderr.Len() != 0 {
		t.Errorf("events mode wrote to stderr: %q", stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 event lines, got %q", stdout.String())
	}
	for _, line := range lines {
		var ev docagent.SessionEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line is not JSON: %q: %v", line, err)
		}
		if ev.SessionID != "s1" {
			t.Errorf("session = %q", ev.SessionID)
		}
	}

	var line bytes.Buffer
	if err := printResult(&line, docagent.Result{Status: docagent.StatusConverged}, formatJSONLine); err != nil {
		t.Fatal(err)
	}
	if strings.Count(line.String(), "\n") != 1 {
		t.Errorf("result is not a single JSON line: %q", line.String())
	}

	stdout.Reset()
	listener, wait = sessionListener("s2", &stdout, &stderr, false)
	listener.OnStep(docagent.Step{Number: 1, Description: "Called read_lines"})
	wait()
	if stdout.Len() != 0 || !strings.Contains(stderr.String(), "[1] Called read_lines") {
		t.Errorf("progress mode: stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}
