package docagent

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTool is returned when a tool call names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrConvergenceCheck wraps failures of the secondary status-check call.
var ErrConvergenceCheck = errors.New("convergence check failed")

// ToolTimeoutError reports that every attempt of a tool call timed out.
type ToolTimeoutError struct {
	ToolName    string
	Attempts    int
	LastTimeout time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %d attempts (last attempt limit %s)", e.ToolName, e.Attempts, e.LastTimeout)
}

// ToolExecutionError wraps an error or panic raised by a tool.
type ToolExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// VerificationReadError reports that the document could not be re-read
// after a mutating tool call.
type VerificationReadError struct {
	DocumentID string
	Cause      error
}

func (e *VerificationReadError) Error() string {
	return fmt.Sprintf("re-reading document %s: %v", e.DocumentID, e.Cause)
}

func (e *VerificationReadError) Unwrap() error { return e.Cause }

// ModelCallError is the one failure that aborts a session: the primary
// generation call did not return a response.
type ModelCallError struct {
	Iteration int
	Cause     error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed at iteration %d: %v", e.Iteration, e.Cause)
}

func (e *ModelCallError) Unwrap() error { return e.Cause }
