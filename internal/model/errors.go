package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures into stable, user-visible categories.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindUnconfigured    ErrorKind = "UNCONFIGURED"
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	KindUpstreamFailure ErrorKind = "UPSTREAM_FAILURE"
	KindCancelled       ErrorKind = "CANCELLED"
	KindTimeout         ErrorKind = "TIMEOUT"
	KindInternal        ErrorKind = "INTERNAL_ERROR"
)

// Error is an application error carrying a kind, a human-readable message
// and an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. A target with a
// message only matches errors carrying that exact message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// NewError creates a new Error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

var (
	// Kind sentinels: errors.Is(err, ErrNotFound) matches any not-found error.
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrUnconfigured    = &Error{Kind: KindUnconfigured}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = NewError(KindNotFound, "session not found", nil)

	// ErrSandboxNotFound is returned when a sandbox is not found.
	ErrSandboxNotFound = NewError(KindNotFound, "sandbox not found", nil)

	// ErrContentRequired is returned when a chat message has no content.
	ErrContentRequired = NewError(KindInvalidArgument, "content is required", nil)

	// ErrCommandRequired is returned when an execution request has no command.
	ErrCommandRequired = NewError(KindInvalidArgument, "command is required", nil)
)

// KindOf classifies err. Context errors map to Cancelled and Timeout;
// anything unrecognised is Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// Unconfigured builds the error returned when a provider credential is missing.
func Unconfigured(slot string) *Error {
	return NewError(KindUnconfigured, slot+" is not configured", nil)
}
