package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed model call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuth
	KindNotFound
	KindRateLimit
	KindContextLength
	KindContentFilter
	KindServer
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindContextLength:
		return "context_length"
	case KindContentFilter:
		return "content_filter"
	case KindServer:
		return "server"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified model failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	// RetryAfter is the wait the provider asked for, zero when it gave none.
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindNotFound, KindContextLength, KindContentFilter:
		return false
	default:
		return true
	}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth another attempt. Caller
// cancellation never is; unclassified errors are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}
