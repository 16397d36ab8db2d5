package docagent

import (
	"log/slog"
	"sync"
	"time"
)

// DocumentChange is delivered when a mutating tool's edit is confirmed.
type DocumentChange struct {
	DocumentID string `json:"document_id"`
	ToolName   string `json:"tool_name"`
	Iteration  int    `json:"iteration"`
	// Count is the confirmed change count after this change.
	Count   int    `json:"count"`
	Content string `json:"-"`
}

// StatusCheck is delivered after every convergence check.
type StatusCheck struct {
	Iteration int     `json:"iteration"`
	Periodic  bool    `json:"periodic"`
	Verdict   Verdict `json:"verdict"`
	Err       error   `json:"-"`
	// FallbackStop is set when the check failed and the fallback policy
	// ended the session.
	FallbackStop bool `json:"fallback_stop"`
}

// Listener observes a running session. Calls are synchronous and made
// from the loop goroutine; panics are recovered and logged.
type Listener interface {
	OnStep(step Step)
	OnDocumentChange(change DocumentChange)
	OnStatusCheck(check StatusCheck)
}

// ListenerFuncs adapts optional functions to a Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Step           func(Step)
	DocumentChange func(DocumentChange)
	StatusCheck    func(StatusCheck)
}

func (f ListenerFuncs) OnStep(step Step) {
	if f.Step != nil {
		f.Step(step)
	}
}

func (f ListenerFuncs) OnDocumentChange(change DocumentChange) {
	if f.DocumentChange != nil {
		f.DocumentChange(change)
	}
}

func (f ListenerFuncs) OnStatusCheck(check StatusCheck) {
	if f.StatusCheck != nil {
		f.StatusCheck(check)
	}
}

// MultiListener fans out to several listeners in order.
type MultiListener []Listener

func (m MultiListener) OnStep(step Step) {
	for _, l := range m {
		l.OnStep(step)
	}
}

func (m MultiListener) OnDocumentChange(change DocumentChange) {
	for _, l := range m {
		l.OnDocumentChange(change)
	}
}

func (m MultiListener) OnStatusCheck(check StatusCheck) {
	for _, l := range m {
		l.OnStatusCheck(check)
	}
}

// safeListener recovers listener panics so observers cannot fail the loop.
type safeListener struct {
	inner  Listener
	logger *slog.Logger
}

func (s safeListener) guard(kind EventKind) {
	if r := recover(); r != nil {
		s.logger.Error("listener panicked", "event", string(kind), "panic", r)
	}
}

func (s safeListener) OnStep(step Step) {
	defer s.guard(EventStep)
	s.inner.OnStep(step)
}

func (s safeListener) OnDocumentChange(change DocumentChange) {
	defer s.guard(EventDocumentChange)
	s.inner.OnDocumentChange(change)
}

func (s safeListener) OnStatusCheck(check StatusCheck) {
	defer s.guard(EventStatusCheck)
	s.inner.OnStatusCheck(check)
}

// EventKind identifies the type of session event.
type EventKind string

const (
	EventStep           EventKind = "step"
	EventDocumentChange EventKind = "document_change"
	EventStatusCheck    EventKind = "status_check"
)

// SessionEvent is a typed event delivered over an EventEmitter channel.
type SessionEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter is a Listener that forwards events to a buffered channel.
// It never blocks the loop: events are dropped when the buffer is full.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// Emit sends an event to the channel. If the emitter is closed, the event
// is silently dropped.
func (e *EventEmitter) Emit(kind EventKind, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

func (e *EventEmitter) OnStep(step Step) {
	e.Emit(EventStep, map[string]any{"step": step})
}

func (e *EventEmitter) OnDocumentChange(change DocumentChange) {
	e.Emit(EventDocumentChange, map[string]any{"change": change})
}

func (e *EventEmitter) OnStatusCheck(check StatusCheck) {
	data := map[string]any{"check": check}
	if check.Err != nil {
		data["error"] = check.Err.Error()
	}
	e.Emit(EventStatusCheck, data)
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

type nopListener struct{}

func (nopListener) OnStep(Step)                     {}
func (nopListener) OnDocumentChange(DocumentChange) {}
func (nopListener) OnStatusCheck(StatusCheck)       {}
