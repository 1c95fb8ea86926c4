package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures of locators, actions, waits and probes.
type ErrorKind string

const (
	ErrElementNotFound  ErrorKind = "element-not-found"
	ErrElementAmbiguous ErrorKind = "element-ambiguous"
	ErrActionFailed     ErrorKind = "action-failed"
	ErrTimeout          ErrorKind = "timeout"
	ErrAssertionFailed  ErrorKind = "assertion-failed"
	ErrProbeFailed      ErrorKind = "probe-failed"
	ErrTransport        ErrorKind = "transport-error"
	ErrAborted          ErrorKind = "aborted"
)

// Error carries the kind of a failure together with the diagnostic context
// needed to attribute it: the operation, the locator and expected vs actual.
type Error struct {
	Kind     ErrorKind
	Op       string
	Locator  string
	Expected string
	Actual   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Locator != "" {
		fmt.Fprintf(&b, " [%s]", e.Locator)
	}
	if e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&b, ": expected %q, got %q", e.Expected, e.Actual)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns an Error of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Context
// cancellation is reported as ErrAborted and a missed deadline as ErrTimeout.
// Unclassified errors are ErrActionFailed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrActionFailed
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
