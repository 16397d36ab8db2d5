package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/martinemde/docagent/config"
	"github.com/martinemde/docagent/docagent"
	"github.com/martinemde/docagent/docstore"
	"github.com/martinemde/docagent/doctools"
	"github.com/martinemde/docagent/unifiedllm"
)

type runFlags struct {
	documentID string
	user       string
	goal       string
	file       string
	events     bool
	jsonOutput bool
	show       bool
}

func runCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Work on a document until the goal is met",
		Long: `Run the agent against a stored document. The goal may be given with
--goal or as positional arguments. Use --file to store a new document
first and run against it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rf.goal == "" {
				rf.goal = strings.Join(args, " ")
			}
			if strings.TrimSpace(rf.goal) == "" {
				return fmt.Errorf("a goal is required")
			}
			if rf.documentID == "" && rf.file == "" {
				return fmt.Errorf("one of --doc or --file is required")
			}

			cfg, logger, store, err := setup(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAgent(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, logger, store, rf)
		},
	}
	cmd.Flags().StringVar(&rf.documentID, "doc", "", "document ID to edit")
	cmd.Flags().StringVar(&rf.user, "user", defaultUser(), "user the agent acts for")
	cmd.Flags().StringVar(&rf.goal, "goal", "", "what the document should become")
	cmd.Flags().StringVar(&rf.file, "file", "", "store this file as a new document and edit it")
	cmd.Flags().BoolVar(&rf.events, "events", false, "stream session events, then the result, as JSON lines on stdout")
	cmd.Flags().BoolVar(&rf.jsonOutput, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&rf.show, "show", false, "print the document after the run")
	cmd.MarkFlagsMutuallyExclusive("events", "show")
	cmd.MarkFlagsMutuallyExclusive("events", "json")
	return cmd
}

func runAgent(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, logger *slog.Logger, store docstore.Store, rf *runFlags) error {
	if rf.file != "" {
		id, err := seedDocument(ctx, store, rf.file, rf.user)
		if err != nil {
			return err
		}
		rf.documentID = id
		logger.Info("document created", "document_id", id, "file", rf.file)
	}

	chat, err := newChat(cfg, logger)
	if err != nil {
		return err
	}

	registry := docagent.NewToolRegistry()
	doctools.Register(registry, store)

	agent := docagent.NewAgent(chat, store, registry,
		docagent.WithLoopConfig(cfg.LoopConfig()),
		docagent.WithLogger(logger),
		docagent.WithNarrationClassifier(docagent.NewKeywordClassifier(cfg.Agent.NarrationMarkers...)),
	)

	lc := agent.Config()
	logger.Info("agent ready",
		"tools", registry.Count(),
		"max_iterations", lc.MaxIterations,
		"status_check_interval", lc.StatusCheckInterval,
		"planning", lc.EnablePlanning,
	)

	sessionID := uuid.New().String()
	listener, wait := sessionListener(sessionID, stdout, stderr, rf.events)

	result := agent.ProcessRequest(ctx, docagent.Request{
		Goal:       rf.goal,
		DocumentID: rf.documentID,
		Identity:   docagent.Identity{UserID: rf.user},
		SessionID:  sessionID,
	}, listener)
	wait()

	format := formatText
	switch {
	case rf.events:
		format = formatJSONLine
	case rf.jsonOutput:
		format = formatJSON
	}
	if err := printResult(stdout, result, format); err != nil {
		return err
	}
	if rf.show {
		fmt.Fprintln(stdout)
		if err := printDocument(ctx, stdout, store, rf.documentID, rf.user, false); err != nil {
			return err
		}
	}
	if result.Status == docagent.StatusFailed {
		return fmt.Errorf("session failed: %w", result.Err)
	}
	return nil
}

func seedDocument(ctx context.Context, store docstore.Store, path, user string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	doc, err := store.Create(ctx, docstore.Document{
		OwnerID: user,
		Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content: string(data),
	})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", path, err)
	}
	return doc.ID, nil
}

func newChat(cfg *config.Config, logger *slog.Logger) (*docagent.LLMChat, error) {
	model := cfg.LLM.Model
	if model == "" {
		model = unifiedllm.DefaultModel(cfg.LLM.Provider)
	}

	adapterOpts := []unifiedllm.GollmAdapterOption{
		unifiedllm.WithModel(model),
		unifiedllm.WithMaxTokens(cfg.LLM.MaxTokens),
		unifiedllm.WithTemperature(cfg.LLM.Temperature),
	}
	if cfg.LLM.APIKey != "" {
		adapterOpts = append(adapterOpts, unifiedllm.WithAPIKey(cfg.LLM.APIKey))
	}
	adapter, err := unifiedllm.NewGollmAdapter(cfg.LLM.Provider, adapterOpts...)
	if err != nil {
		return nil, err
	}

	client := unifiedllm.NewClient(adapter, requestLogger(logger))

	retry := unifiedllm.DefaultRetryPolicy()
	retry.MaxRetries = cfg.LLM.MaxRetries
	retry.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying model call", "attempt", attempt, "delay", delay, "error", err)
	}

	return docagent.NewLLMChat(client,
		docagent.WithChatModel(model),
		docagent.WithChatTemperature(cfg.LLM.Temperature),
		docagent.WithChatMaxTokens(cfg.LLM.MaxTokens),
		docagent.WithChatRetry(retry),
	), nil
}

// requestLogger logs every model call, and at trace level the full
// request and response.
func requestLogger(logger *slog.Logger) unifiedllm.Middleware {
	return func(ctx context.Context, req unifiedllm.Request, next func(context.Context, unifiedllm.Request) (*unifiedllm.Response, error)) (*unifiedllm.Response, error) {
		start := time.Now()
		if logger.Enabled(ctx, config.LevelTrace) {
			if payload, err := json.Marshal(req); err == nil {
				logger.Log(ctx, config.LevelTrace, "model request", "payload", string(payload))
			}
		}

		resp, err := next(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			logger.Debug("model call failed", "model", req.Model, "elapsed", elapsed, "error", err)
			return nil, err
		}

		logger.Debug("model call",
			"model", resp.Model,
			"messages", len(req.Messages),
			"tools", len(req.ToolDefs),
			"finish", resp.FinishReason.Reason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"elapsed", elapsed,
		)
		if logger.Enabled(ctx, config.LevelTrace) {
			logger.Log(ctx, config.LevelTrace, "model response", "text", resp.Text())
		}
		return resp, nil
	}
}

// sessionListener prints human-readable progress to stderr, or, with
// events set, a JSON-lines event stream to stdout and nothing else. The
// returned func closes the stream and waits for it to drain.
func sessionListener(sessionID string, stdout, stderr io.Writer, events bool) (docagent.Listener, func()) {
	if !events {
		return progressPrinter(stderr), func() {}
	}
	w := stdout
	emitter := docagent.NewEventEmitter(sessionID, 0)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		enc := json.NewEncoder(w)
		for ev := range emitter.Events() {
			_ = enc.Encode(ev)
		}
	}()
	return emitter, func() {
		emitter.Close()
		wg.Wait()
	}
}

// progressPrinter writes one line per step and per confirmed change.
func progressPrinter(w io.Writer) docagent.Listener {
	return docagent.ListenerFuncs{
		Step: func(step docagent.Step) {
			fmt.Fprintf(w, "[%d] %s\n", step.Number, step.Description)
		},
		DocumentChange: func(change docagent.DocumentChange) {
			fmt.Fprintf(w, "    document changed by %s (change %d)\n", change.ToolName, change.Count)
		},
		StatusCheck: func(check docagent.StatusCheck) {
			switch {
			case check.Err != nil:
				fmt.Fprintf(w, "    status check failed: %s\n", check.Err)
			default:
				fmt.Fprintf(w, "    status check: %s\n", check.Verdict)
			}
		},
	}
}

type resultJSON struct {
	docagent.Result
	Error string `json:"error,omitempty"`
}

type resultFormat int

const (
	formatText resultFormat = iota
	formatJSON
	formatJSONLine
)

func printResult(w io.Writer, result docagent.Result, format resultFormat) error {
	if format != formatText {
		out := resultJSON{Result: result}
		if result.Err != nil {
			out.Error = result.Err.Error()
		}
		enc := json.NewEncoder(w)
		if format == formatJSON {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "%s\n\n", result.FinalMessage)
	fmt.Fprintf(w, "Status:    %s\n", result.Status)
	fmt.Fprintf(w, "Complete:  %t\n", result.Complete)
	fmt.Fprintf(w, "Iterations: %d, confirmed changes: %d, steps: %d\n",
		result.Iterations, result.ConfirmedChanges, len(result.Steps))
	return nil
}
