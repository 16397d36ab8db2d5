package docagent

import (
	"strings"
	"time"
)

// SessionStatus is the state of a session. Every status other than
// Running and AwaitingToolResults ends the session.
type SessionStatus string

const (
	StatusRunning             SessionStatus = "running"
	StatusAwaitingToolResults SessionStatus = "awaiting_tool_results"
	StatusStalled             SessionStatus = "stalled"
	StatusConverged           SessionStatus = "converged"
	StatusCancelled           SessionStatus = "cancelled"
	StatusExhausted           SessionStatus = "exhausted"
	StatusFailed              SessionStatus = "failed"
)

// Request is the input to Agent.ProcessRequest.
type Request struct {
	Goal       string   `json:"goal"`
	DocumentID string   `json:"document_id"`
	Identity   Identity `json:"identity"`
	// SessionID labels logs and events. Generated when empty.
	SessionID string `json:"session_id,omitempty"`
}

// ToolCallRecord is a dispatched tool call and what came of it.
type ToolCallRecord struct {
	Call      ToolCall    `json:"call"`
	Outcome   ToolOutcome `json:"outcome"`
	Mutating  bool        `json:"mutating"`
	Confirmed bool        `json:"confirmed"`
}

// Step is one entry in a session's audit trail: a tool iteration, an
// injected correction, a plan announcement or the terminal event.
type Step struct {
	Number      int              `json:"number"`
	Iteration   int              `json:"iteration"`
	Description string           `json:"description"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
	ResultText  string           `json:"result_text"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Result is returned exactly once by ProcessRequest.
type Result struct {
	SessionID        string        `json:"session_id"`
	FinalMessage     string        `json:"final_message"`
	Steps            []Step        `json:"steps"`
	Complete         bool          `json:"complete"`
	Status           SessionStatus `json:"status"`
	Iterations       int           `json:"iterations"`
	ConfirmedChanges int           `json:"confirmed_changes"`
	Err              error         `json:"-"`
}

// sessionState is owned by a single ProcessRequest call.
type sessionState struct {
	id        string
	req       Request
	listener  Listener
	maxIter   int
	status    SessionStatus
	iteration int
	steps     []Step

	snapshot string
	changes  int

	toolOutputs []string
	seenOutputs map[string]bool
	responses   *RepetitionDetector
	progress    *RepetitionDetector
	noToolCalls int

	plan          []string
	planCursor    int
	planBuilt     bool
	planAnnounced bool

	pendingImages []string
	lastText      string
	history       []Turn
}

func newSessionState(id string, req Request, cfg LoopConfig, listener Listener) *sessionState {
	return &sessionState{
		id:          id,
		req:         req,
		listener:    listener,
		maxIter:     cfg.MaxIterations,
		status:      StatusRunning,
		seenOutputs: make(map[string]bool),
		responses:   NewRepetitionDetector(cfg.RepetitionThreshold),
		progress:    NewRepetitionDetector(cfg.StallThreshold),
	}
}

// addStep appends a dense-numbered step and notifies the listener.
func (s *sessionState) addStep(description string, calls []ToolCallRecord, resultText string) {
	step := Step{
		Number:      len(s.steps) + 1,
		Iteration:   s.iteration,
		Description: description,
		ToolCalls:   calls,
		ResultText:  resultText,
		Timestamp:   time.Now(),
	}
	s.steps = append(s.steps, step)
	s.listener.OnStep(step)
}

// recordOutput adds a tool output to the cumulative log watched by the
// stall detector.
func (s *sessionState) recordOutput(text string, force bool) {
	h := contentHash(text)
	if s.seenOutputs[h] && !force {
		return
	}
	s.seenOutputs[h] = true
	s.toolOutputs = append(s.toolOutputs, text)
}

func (s *sessionState) cumulativeOutput() string {
	return strings.Join(s.toolOutputs, "\n")
}

func (s *sessionState) finish(status SessionStatus, message string, complete bool, err error) Result {
	s.status = status
	iterations := s.iteration
	if iterations > s.maxIter {
		iterations = s.maxIter
	}
	s.addStep(terminalDescription(status), nil, message)
	steps := make([]Step, len(s.steps))
	copy(steps, s.steps)
	return Result{
		SessionID:        s.id,
		FinalMessage:     message,
		Steps:            steps,
		Complete:         complete,
		Status:           status,
		Iterations:       iterations,
		ConfirmedChanges: s.changes,
		Err:              err,
	}
}

func terminalDescription(status SessionStatus) string {
	switch status {
	case StatusConverged:
		return "Finished"
	case StatusStalled:
		return "Stopped: no new progress"
	case StatusCancelled:
		return "Stopped by caller"
	case StatusExhausted:
		return "Stopped: iteration limit reached"
	case StatusFailed:
		return "Failed"
	default:
		return string(status)
	}
}
