package agent

import (
	"context"
	"errors"
)

// ErrorKind is the closed error taxonomy from spec.md §7.
type ErrorKind string

const (
	KindInvalidInput     ErrorKind = "invalidInput"
	KindUnavailable      ErrorKind = "unavailable"
	KindTimeout          ErrorKind = "timeout"
	KindInternal         ErrorKind = "internal"
	KindEscalationFailed ErrorKind = "escalationFailed"
)

// HandlerError lets a Handler classify its own failure; an unclassified
// error is treated as KindInternal.
type HandlerError struct {
	Kind ErrorKind
	Err  error
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func NewHandlerError(kind ErrorKind, err error) *HandlerError {
	return &HandlerError{Kind: kind, Err: err}
}

func classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}
