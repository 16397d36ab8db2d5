package docagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/martinemde/docagent/unifiedllm"
)

// Agent runs bounded edit sessions against a document store using a chat
// model and a tool registry.
type Agent struct {
	chat       ChatService
	store      DocumentStore
	registry   *ToolRegistry
	dispatcher *Dispatcher
	verifier   *MutationVerifier
	checker    *ConvergenceChecker
	planner    *PlanBuilder
	narration  NarrationClassifier
	config     LoopConfig
	trusted    map[string]bool
	logger     *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithLoopConfig replaces the default loop policy. Zero fields take their
// default values.
func WithLoopConfig(cfg LoopConfig) Option {
	return func(a *Agent) { a.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithNarrationClassifier replaces the keyword classifier.
func WithNarrationClassifier(c NarrationClassifier) Option {
	return func(a *Agent) { a.narration = c }
}

// NewAgent creates an Agent. The registry's tools are offered to the model
// on every primary call.
func NewAgent(chat ChatService, store DocumentStore, registry *ToolRegistry, opts ...Option) *Agent {
	a := &Agent{
		chat:     chat,
		store:    store,
		registry: registry,
		config:   DefaultLoopConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.config = a.config.withDefaults()
	if a.narration == nil {
		a.narration = NewKeywordClassifier()
	}
	a.trusted = nameSet(a.config.TrustedArgTools)
	a.dispatcher = NewDispatcher(registry, a.config, a.logger)
	a.verifier = NewMutationVerifier(store, a.config.MutatingTools, a.logger)
	a.checker = NewConvergenceChecker(chat, a.logger)
	a.planner = NewPlanBuilder(chat, a.logger)
	return a
}

// Config returns the effective loop policy.
func (a *Agent) Config() LoopConfig { return a.config }

// ProcessRequest runs one session to completion and returns its Result.
// It never panics and never returns without a Result; cancelling ctx ends
// the session with StatusCancelled.
func (a *Agent) ProcessRequest(ctx context.Context, req Request, listener Listener) (result Result) {
	if listener == nil {
		listener = nopListener{}
	}
	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	logger := a.logger.With("session", id, "document", req.DocumentID)
	s := newSessionState(id, req, a.config, safeListener{inner: listener, logger: logger})

	defer func() {
		if r := recover(); r != nil {
			logger.Error("agent loop panicked", "panic", r)
			result = s.finish(StatusFailed, fmt.Sprintf("The agent stopped after an internal error: %v", r), false, fmt.Errorf("agent loop panic: %v", r))
		}
	}()

	snapshot, err := a.store.ReadContent(ctx, req.DocumentID, req.Identity.UserID)
	if err != nil {
		logger.Error("initial document read failed", "error", err)
		return s.finish(StatusFailed, "Could not read the document: "+err.Error(), false, fmt.Errorf("reading document %s: %w", req.DocumentID, err))
	}
	s.snapshot = snapshot
	s.history = append(s.history, NewUserTurn(initialUserTurn(req.Goal, snapshot)))
	logger.Info("session started", "goal", req.Goal, "max_iterations", a.config.MaxIterations)

	for s.iteration = 1; s.iteration <= a.config.MaxIterations; s.iteration++ {
		s.status = StatusRunning
		log := logger.With("iteration", s.iteration)

		if ctx.Err() != nil {
			return a.cancelled(s, log)
		}

		if s.iteration%a.config.StatusCheckInterval == 0 {
			if stop, reason := a.periodicCheck(ctx, s, log); stop {
				return s.finish(StatusConverged, reason, true, nil)
			}
		}

		if ctx.Err() != nil {
			return a.cancelled(s, log)
		}

		resp, err := a.chat.Complete(ctx, ChatRequest{
			System:   buildSystemPrompt(s, a.registry.Definitions()),
			Messages: ConvertHistoryToMessages(s.history),
			Tools:    a.registry.UnifiedDefinitions(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return a.cancelled(s, log)
			}
			merr := &ModelCallError{Iteration: s.iteration, Cause: err}
			log.Error("model call failed", "error", err)
			return s.finish(StatusFailed, "The model could not be reached: "+err.Error(), false, merr)
		}
		s.lastText = resp.Text

		if s.responses.Observe(responseSignal(resp)) {
			log.Warn("repeated model response", "threshold", a.config.RepetitionThreshold)
			s.history = append(s.history, NewAssistantTurn(resp.Text, nil), NewCorrectionTurn(correctionRepeat))
			s.addStep("Repeated response; asked the model for a different approach", nil, correctionRepeat)
			continue
		}

		if len(resp.ToolCalls) > 0 {
			s.noToolCalls = 0
			s.status = StatusAwaitingToolResults
			if res, done := a.runTools(ctx, s, resp, log); done {
				return res
			}
			continue
		}

		if res, done := a.handleIdle(ctx, s, resp.Text, log); done {
			return res
		}
	}

	logger.Warn("iteration limit reached", "changes", s.changes)
	return s.finish(StatusExhausted,
		fmt.Sprintf("Max iterations reached (%d) before the goal was confirmed complete. %d change(s) were applied.", a.config.MaxIterations, s.changes),
		true, nil)
}

// periodicCheck runs the gated status check and applies the fallback
// policy when the check itself fails.
func (a *Agent) periodicCheck(ctx context.Context, s *sessionState, log *slog.Logger) (bool, string) {
	verdict, err := a.checker.CheckStatus(ctx, s.req.Goal, buildContextSummary(s, a.config), s.lastText)
	check := StatusCheck{Iteration: s.iteration, Periodic: true, Verdict: verdict, Err: err}
	if err != nil && ctx.Err() != nil {
		// The caller's cancellation wins over the fallback schedule; the
		// loop reports it next.
		s.listener.OnStatusCheck(check)
		return false, ""
	}
	if err != nil {
		log.Warn("status check failed; applying fallback", "error", err)
		stop, reason := a.config.Fallback.ShouldStop(s.iteration, s.changes)
		check.FallbackStop = stop
		s.listener.OnStatusCheck(check)
		if stop {
			return true, fmt.Sprintf("Stopped at iteration %d with %d confirmed change(s): %s.", s.iteration, s.changes, reason)
		}
		return false, ""
	}
	s.listener.OnStatusCheck(check)
	log.Info("status check", "verdict", verdict.String(), "reason", verdict.Reason)
	if verdict.Done {
		return true, verdictMessage(verdict, s.lastText)
	}
	return false, ""
}

// runTools dispatches one batch of tool calls in order and decides whether
// the session ends.
func (a *Agent) runTools(ctx context.Context, s *sessionState, resp *ChatResponse, log *slog.Logger) (Result, bool) {
	s.history = append(s.history, NewAssistantTurn(resp.Text, resp.ToolCalls))

	var records []ToolCallRecord
	var results []unifiedllm.ToolResultData
	cancelled := false

	for _, tc := range resp.ToolCalls {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		call := ToolCall{ID: tc.ID, Name: tc.Name}
		var outcome ToolOutcome
		args, perr := ParseToolArguments(tc.Arguments)
		if perr != nil {
			outcome = newOutcome(fmt.Sprintf("Error: %s: %v", tc.Name, perr), false, 0, time.Now())
		} else {
			a.injectTrustedArgs(tc.Name, args, s.req)
			outcome = a.dispatcher.Execute(ctx, tc.Name, args)
		}
		call.Arguments = args

		rec := ToolCallRecord{Call: call, Outcome: outcome, Mutating: a.verifier.IsMutating(tc.Name)}
		progressed := outcome.Succeeded
		if outcome.Succeeded && rec.Mutating {
			v := a.verifier.VerifyChange(ctx, s.req.DocumentID, s.req.Identity, s.snapshot, tc.Name)
			if v.Confirmed {
				rec.Confirmed = true
				s.snapshot = v.NewSnapshot
				s.changes++
				log.Info("document change confirmed", "tool", tc.Name, "changes", s.changes)
				s.listener.OnDocumentChange(DocumentChange{
					DocumentID: s.req.DocumentID,
					ToolName:   tc.Name,
					Iteration:  s.iteration,
					Count:      s.changes,
					Content:    v.NewSnapshot,
				})
			} else {
				rec.Outcome.ResultText += v.Warning
				progressed = false
			}
		}
		if progressed {
			s.recordOutput(rec.Outcome.ResultText, rec.Confirmed)
		}
		if refs := extractImageRefs(rec.Outcome.ResultText); len(refs) > 0 && !rec.Mutating {
			s.pendingImages = refs
		}

		records = append(records, rec)
		results = append(results, unifiedllm.ToolResultData{
			ToolCallID: tc.ID,
			Content:    TruncateToolOutput(rec.Outcome.ResultText, tc.Name, a.config.ToolOutputLimits),
			IsError:    !outcome.Succeeded,
		})
	}

	if len(records) > 0 {
		s.history = append(s.history, NewToolResultsTurn(results), NewUserTurn(formatToolResults(records)))
		s.addStep(describeToolStep(records), records, aggregateResults(records))
	}
	if cancelled {
		return a.cancelled(s, log), true
	}

	if s.planCursor < len(s.plan) {
		s.planCursor++
	}

	if s.progress.Observe(s.cumulativeOutput()) {
		log.Warn("no new tool output; stopping", "threshold", a.config.StallThreshold)
		return s.finish(StatusStalled, stalledMessage, true, nil), true
	}

	if a.config.ChangeStopCount > 0 && s.changes >= a.config.ChangeStopCount {
		log.Info("change limit reached", "changes", s.changes)
		return s.finish(StatusConverged,
			fmt.Sprintf("Applied %d confirmed change(s) to the document.", s.changes), true, nil), true
	}
	return Result{}, false
}

const stalledMessage = "The agent appears to be stuck: recent iterations produced no new results. Please review the document and provide more specific instructions."

// handleIdle handles a reply without tool calls.
func (a *Agent) handleIdle(ctx context.Context, s *sessionState, text string, log *slog.Logger) (Result, bool) {
	s.history = append(s.history, NewAssistantTurn(text, nil))
	s.noToolCalls++

	if s.progress.Observe(s.cumulativeOutput()) {
		log.Warn("no new tool output; stopping", "threshold", a.config.StallThreshold)
		return s.finish(StatusStalled, stalledMessage, true, nil), true
	}

	verdict, err := a.checker.CheckStatus(ctx, s.req.Goal, buildContextSummary(s, a.config), text)
	check := StatusCheck{Iteration: s.iteration, Verdict: verdict, Err: err}
	if err != nil {
		if ctx.Err() != nil {
			s.listener.OnStatusCheck(check)
			return a.cancelled(s, log), true
		}
		stop, reason := a.config.Fallback.ShouldStop(s.iteration, s.changes)
		check.FallbackStop = stop
		s.listener.OnStatusCheck(check)
		log.Warn("status check failed; applying fallback", "error", err, "stop", stop)
		if stop {
			return s.finish(StatusConverged,
				fmt.Sprintf("Stopped at iteration %d with %d confirmed change(s): %s.", s.iteration, s.changes, reason), true, nil), true
		}
	} else {
		s.listener.OnStatusCheck(check)
		log.Info("status check", "verdict", verdict.String(), "reason", verdict.Reason)
		if verdict.Done {
			return s.finish(StatusConverged, verdictMessage(verdict, text), true, nil), true
		}
	}

	if a.narration.IsNarratingNotActing(text) {
		return a.correct(s, correctionNarration, "Reply narrated an edit; asked the model to act", log), false
	}
	if mentionsImage(text, s.pendingImages) {
		s.pendingImages = nil
		return a.correct(s, correctionImage, "Reply described search images; asked the model to act", log), false
	}

	if s.noToolCalls == 1 && a.config.EnablePlanning && !s.planBuilt {
		s.planBuilt = true
		s.plan = a.planner.BuildPlan(ctx, s.req.Goal, text)
		if len(s.plan) > 0 && !s.planAnnounced {
			s.planAnnounced = true
			instruction := planStepInstruction(s.planCursor, s.plan[s.planCursor])
			s.history = append(s.history, NewUserTurn(instruction))
			s.addStep(fmt.Sprintf("Built a %d-step plan", len(s.plan)), nil, instruction)
			log.Info("plan announced", "steps", len(s.plan))
			return Result{}, false
		}
	}

	if s.noToolCalls > a.config.NoToolCallLimit {
		log.Info("model stopped calling tools", "count", s.noToolCalls)
	}
	return s.finish(StatusConverged, text, true, nil), true
}

func (a *Agent) correct(s *sessionState, instruction, description string, log *slog.Logger) Result {
	s.noToolCalls = 0
	s.history = append(s.history, NewCorrectionTurn(instruction))
	s.addStep(description, nil, instruction)
	log.Info("corrective instruction injected", "reason", description)
	return Result{}
}

func (a *Agent) cancelled(s *sessionState, log *slog.Logger) Result {
	log.Info("session cancelled by caller")
	return s.finish(StatusCancelled, "Stopped by caller before the goal was completed.", true, nil)
}

// injectTrustedArgs overwrites document_id and user_id for tools in the
// trusted-argument allow-list so the model cannot address another
// document or user.
func (a *Agent) injectTrustedArgs(toolName string, args map[string]any, req Request) {
	if !a.trusted[toolName] {
		return
	}
	args["document_id"] = req.DocumentID
	args["user_id"] = req.Identity.UserID
}

// responseSignal is the raw reply watched by the repetition detector:
// the text plus the name and arguments of any tool calls. Call IDs are
// left out since providers mint a fresh one per reply.
func responseSignal(resp *ChatResponse) string {
	if len(resp.ToolCalls) == 0 {
		return resp.Text
	}
	type signature struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	sigs := make([]signature, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		sigs[i] = signature{Name: tc.Name, Arguments: tc.Arguments}
	}
	calls, _ := json.Marshal(sigs)
	return resp.Text + "\n" + string(calls)
}

func verdictMessage(v Verdict, text string) string {
	if text != "" {
		return text
	}
	if v.Reason != "" {
		return v.Reason
	}
	return "The goal has been achieved."
}
