package docagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/martinemde/docagent/unifiedllm"
)

// ToolOutcome is the result of dispatching one tool call. ResultText is
// always populated, including on failure.
type ToolOutcome struct {
	ResultText   string        `json:"result_text"`
	Succeeded    bool          `json:"succeeded"`
	AttemptsUsed int           `json:"attempts_used"`
	Elapsed      time.Duration `json:"elapsed"`
	ResultHash   string        `json:"result_hash"`
}

// Dispatcher executes registered tools with bounded retries. Attempt n
// runs under a timeout of base*2^(n-1) derived from the caller's context.
type Dispatcher struct {
	registry    *ToolRegistry
	attempts    int
	baseTimeout time.Duration
	backoff     unifiedllm.RetryPolicy
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher over registry using the attempt,
// timeout and backoff settings of cfg.
func NewDispatcher(registry *ToolRegistry, cfg LoopConfig, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:    registry,
		attempts:    cfg.ToolAttempts,
		baseTimeout: cfg.ToolBaseTimeout,
		backoff:     cfg.ToolBackoff,
		logger:      logger,
	}
}

// AttemptTimeout returns the timeout applied to the given 1-based attempt.
func (d *Dispatcher) AttemptTimeout(attempt int) time.Duration {
	return d.baseTimeout << (attempt - 1)
}

// Execute runs the named tool. It never returns an error: unknown tools,
// timeouts, tool errors and panics are all reported as a failed outcome
// whose text describes the problem.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) ToolOutcome {
	start := time.Now()
	log := d.logger.With("tool", name)

	tool := d.registry.Get(name)
	if tool == nil {
		log.Warn("unknown tool requested")
		return newOutcome(fmt.Sprintf("Error: %v: %s", ErrUnknownTool, name), false, 0, start)
	}

	for attempt := 1; attempt <= d.attempts; attempt++ {
		timeout := d.AttemptTimeout(attempt)
		text, err := d.runAttempt(ctx, tool, args, timeout)
		if err == nil {
			log.Debug("tool succeeded", "attempt", attempt, "elapsed", time.Since(start))
			return newOutcome(text, true, attempt, start)
		}

		if ctx.Err() != nil {
			log.Info("tool call cancelled", "attempt", attempt)
			return newOutcome(fmt.Sprintf("Error: tool %s cancelled: %v", name, ctx.Err()), false, attempt, start)
		}

		if !errors.Is(err, context.DeadlineExceeded) {
			log.Warn("tool failed", "attempt", attempt, "error", err)
			return newOutcome("Error: "+err.Error(), false, attempt, start)
		}

		log.Warn("tool attempt timed out", "attempt", attempt, "timeout", timeout)
		if attempt == d.attempts {
			break
		}
		if err := d.backoff.Sleep(ctx, attempt-1); err != nil {
			return newOutcome(fmt.Sprintf("Error: tool %s cancelled: %v", name, err), false, attempt, start)
		}
	}

	terr := &ToolTimeoutError{
		ToolName:    name,
		Attempts:    d.attempts,
		LastTimeout: d.AttemptTimeout(d.attempts),
	}
	return newOutcome("Error: "+terr.Error(), false, d.attempts, start)
}

type attemptResult struct {
	text string
	err  error
}

// runAttempt runs one attempt in its own goroutine so a tool that ignores
// its context cannot hold the loop past the attempt deadline.
func (d *Dispatcher) runAttempt(ctx context.Context, tool *RegisteredTool, args map[string]any, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := tool.Definition.Name
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: &ToolExecutionError{ToolName: name, Cause: fmt.Errorf("panic: %v", r)}}
			}
		}()
		text, err := tool.Executor(attemptCtx, args)
		done <- attemptResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.text, nil
		}
		if errors.Is(r.err, context.DeadlineExceeded) && attemptCtx.Err() != nil {
			return "", context.DeadlineExceeded
		}
		var execErr *ToolExecutionError
		if errors.As(r.err, &execErr) {
			return "", r.err
		}
		return "", &ToolExecutionError{ToolName: name, Cause: r.err}
	case <-attemptCtx.Done():
		return "", attemptCtx.Err()
	}
}

func newOutcome(text string, ok bool, attempts int, start time.Time) ToolOutcome {
	return ToolOutcome{
		ResultText:   text,
		Succeeded:    ok,
		AttemptsUsed: attempts,
		Elapsed:      time.Since(start),
		ResultHash:   contentHash(text),
	}
}
